package healthstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rshade/healthbridge/internal/logging"
)

// Changes API defaults.
const (
	DefaultChangesPageSize = 1000
	DefaultChangesTokenTTL = 30 * 24 * time.Hour
)

// Changes API errors.
var (
	ErrChangesTokenExpired = errors.New("changes token has expired")
	ErrChangesTokenUnknown = errors.New("unknown changes token")
)

// Change is one entry of the change log. Deleted is false for inserts.
type Change struct {
	Seq       int64
	Type      RecordType
	RecordID  uuid.UUID
	Deleted   bool
	ChangedAt time.Time
}

// ChangesPage is one page of changes. NextToken continues after the last
// change in the page; when HasMore is false it is the token to keep for the
// next sync.
type ChangesPage struct {
	Changes   []Change
	NextToken string
	HasMore   bool
}

// ChangesToken returns a token marking the current end of the change log for
// types. Changes made later are returned by Changes.
func (s *SQLStore) ChangesToken(ctx context.Context, types []RecordType) (string, error) {
	if len(types) == 0 {
		return "", fmt.Errorf("%w: no record types", ErrUnknownRecordType)
	}
	names := make([]string, len(types))
	for i, t := range types {
		if !t.Valid() {
			return "", fmt.Errorf("%w: %q", ErrUnknownRecordType, t)
		}
		if err := s.checkPermission(ctx, t); err != nil {
			return "", err
		}
		names[i] = string(t)
	}

	var last int64
	if err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM record_change`).Scan(&last); err != nil {
		return "", fmt.Errorf("%w: reading change log: %w", ErrStoreUnavailable, err)
	}
	return s.issueChangesToken(ctx, strings.Join(names, ","), last)
}

// Changes returns the page of changes following token. A token older than the
// store's token lifetime fails with ErrChangesTokenExpired; callers then fall
// back to a full read and take a new token.
func (s *SQLStore) Changes(ctx context.Context, token string) (ChangesPage, error) {
	var (
		typeList         string
		afterSeq, issued int64
	)
	err := s.db.QueryRowContext(ctx,
		s.rebind(`SELECT record_types, after_seq, issued_at FROM changes_token WHERE token = ?`), token).
		Scan(&typeList, &afterSeq, &issued)
	if errors.Is(err, sql.ErrNoRows) {
		return ChangesPage{}, fmt.Errorf("%w: %q", ErrChangesTokenUnknown, token)
	}
	if err != nil {
		return ChangesPage{}, fmt.Errorf("%w: reading changes token: %w", ErrStoreUnavailable, err)
	}
	if time.Since(time.UnixMilli(issued)) > s.changeTTL {
		return ChangesPage{}, ErrChangesTokenExpired
	}

	types := strings.Split(typeList, ",")
	args := make([]any, 0, len(types)+2)
	args = append(args, afterSeq)
	for _, t := range types {
		if err = s.checkPermission(ctx, RecordType(t)); err != nil {
			return ChangesPage{}, err
		}
		args = append(args, t)
	}
	args = append(args, s.pageSize+1)

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(types)), ", ")
	rows, err := s.db.QueryContext(ctx, s.rebind(`SELECT seq, record_type, record_id, deleted, changed_at
		FROM record_change
		WHERE seq > ? AND record_type IN (`+placeholders+`)
		ORDER BY seq
		LIMIT ?`), args...)
	if err != nil {
		return ChangesPage{}, fmt.Errorf("%w: reading changes: %w", ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var page ChangesPage
	for rows.Next() {
		var (
			c         Change
			typ, id   string
			changedAt int64
		)
		if err = rows.Scan(&c.Seq, &typ, &id, &c.Deleted, &changedAt); err != nil {
			return ChangesPage{}, fmt.Errorf("%w: scanning change: %w", ErrStoreUnavailable, err)
		}
		if c.RecordID, err = uuid.Parse(id); err != nil {
			return ChangesPage{}, fmt.Errorf("%w: change record id %q: %w", ErrStoreUnavailable, id, err)
		}
		c.Type = RecordType(typ)
		c.ChangedAt = time.UnixMilli(changedAt).UTC()
		page.Changes = append(page.Changes, c)
	}
	if err = rows.Err(); err != nil {
		return ChangesPage{}, fmt.Errorf("%w: reading changes: %w", ErrStoreUnavailable, err)
	}
	rows.Close()

	if len(page.Changes) > s.pageSize {
		page.Changes = page.Changes[:s.pageSize]
		page.HasMore = true
	}
	if n := len(page.Changes); n > 0 {
		afterSeq = page.Changes[n-1].Seq
	}
	if page.NextToken, err = s.issueChangesToken(ctx, typeList, afterSeq); err != nil {
		return ChangesPage{}, err
	}

	logging.FromContext(ctx).Debug().Ctx(ctx).
		Str("component", "healthstore").
		Str("operation", "Changes").
		Int("changes", len(page.Changes)).
		Bool("has_more", page.HasMore).
		Msg("changes page read")
	return page, nil
}

func (s *SQLStore) issueChangesToken(ctx context.Context, typeList string, afterSeq int64) (string, error) {
	token := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		s.rebind(`INSERT INTO changes_token (token, record_types, after_seq, issued_at) VALUES (?, ?, ?, ?)`),
		token, typeList, afterSeq, time.Now().UnixMilli())
	if err != nil {
		return "", fmt.Errorf("%w: issuing changes token: %w", ErrStoreUnavailable, err)
	}
	return token, nil
}
