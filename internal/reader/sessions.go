package reader

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/rshade/healthbridge/internal/healthstore"
)

// SleepSessionData is a sleep session with its aggregated sleep duration.
type SleepSessionData struct {
	ID       uuid.UUID
	Title    string
	Notes    string
	Start    time.Time
	End      time.Time
	Duration time.Duration
}

// BloodOxygenData is one oxygen saturation reading; Value is the percentage.
type BloodOxygenData struct {
	ID    uuid.UUID
	Time  time.Time
	Value string
}

// ReadSleepSessions reads sleep sessions week by week and fills in each
// session's total sleep duration from an aggregate over the session's own span.
func (r *Reader) ReadSleepSessions(ctx context.Context, endDate time.Time) ([]SleepSessionData, error) {
	records, err := r.ReadRecordsByWeek(ctx, healthstore.SleepSession, endDate)
	if err != nil {
		return nil, err
	}

	sessions := make([]SleepSessionData, 0, len(records))
	for _, rec := range records {
		seconds, aggErr := r.store.Aggregate(ctx, healthstore.SleepDurationTotal, rec.Start, rec.End)
		if aggErr != nil {
			return nil, fmt.Errorf("aggregating sleep session %s: %w", rec.ID, aggErr)
		}
		sessions = append(sessions, SleepSessionData{
			ID:       rec.ID,
			Title:    rec.Title,
			Notes:    rec.Notes,
			Start:    rec.Start,
			End:      rec.End,
			Duration: time.Duration(seconds * float64(time.Second)),
		})
	}
	return sessions, nil
}

// ReadBloodOxygen reads oxygen saturation readings week by week.
func (r *Reader) ReadBloodOxygen(ctx context.Context, endDate time.Time) ([]BloodOxygenData, error) {
	records, err := r.ReadRecordsByWeek(ctx, healthstore.OxygenSaturation, endDate)
	if err != nil {
		return nil, err
	}

	readings := make([]BloodOxygenData, len(records))
	for i, rec := range records {
		readings[i] = BloodOxygenData{
			ID:    rec.ID,
			Time:  rec.Start,
			Value: strconv.FormatFloat(rec.Value, 'f', -1, 64),
		}
	}
	return readings, nil
}

// ReadAll reads the history of each type in types, stopping at the first error.
func (r *Reader) ReadAll(
	ctx context.Context,
	types []healthstore.RecordType,
	endDate time.Time,
) (map[healthstore.RecordType][]healthstore.HealthRecord, error) {
	out := make(map[healthstore.RecordType][]healthstore.HealthRecord, len(types))
	for _, t := range types {
		records, err := r.ReadRecordsByWeek(ctx, t, endDate)
		if err != nil {
			return nil, err
		}
		out[t] = records
	}
	return out, nil
}
