package reader

import (
	"context"
	"fmt"
	"time"

	"github.com/rshade/healthbridge/internal/healthstore"
)

// exerciseLookbackDays is the span of ReadExerciseSessions, ending one day ago.
const exerciseLookbackDays = 7

// ChangeSource serves the store's change log.
type ChangeSource interface {
	Changes(ctx context.Context, token string) (healthstore.ChangesPage, error)
}

// ReadChanges follows token through every available page and returns the
// changes together with the token to use for the next sync. An expired token
// fails with healthstore.ErrChangesTokenExpired.
func ReadChanges(ctx context.Context, src ChangeSource, token string) ([]healthstore.Change, string, error) {
	var changes []healthstore.Change
	for {
		page, err := src.Changes(ctx, token)
		if err != nil {
			return nil, "", fmt.Errorf("reading changes: %w", err)
		}
		changes = append(changes, page.Changes...)
		token = page.NextToken
		if !page.HasMore {
			return changes, token, nil
		}
	}
}

// ExerciseWindow is the fixed week read by ReadExerciseSessions:
// from 8 days before now up to 1 day before now.
func ExerciseWindow(now time.Time) Window {
	end := now.AddDate(0, 0, -1)
	return Window{Start: end.AddDate(0, 0, -exerciseLookbackDays), End: end}
}

// ReadExerciseSessions reads the exercise sessions of ExerciseWindow(now),
// newest first. Unlike the other readers it does not start at Jan 1.
func (r *Reader) ReadExerciseSessions(ctx context.Context, now time.Time) ([]healthstore.HealthRecord, error) {
	return r.readWindow(ctx, healthstore.ExerciseSession, ExerciseWindow(now))
}
