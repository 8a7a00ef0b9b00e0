package engine

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/rshade/healthbridge/internal/export"
	"github.com/rshade/healthbridge/internal/healthstore"
	"github.com/rshade/healthbridge/internal/logging"
	"github.com/rshade/healthbridge/internal/reader"
)

// Wire names for the two types exported in their enriched form.
const (
	SleepSessionData = "SleepSessionData"
	BloodOxygenData  = "BloodOxygenData"
)

// Batch holds the flattened records of one record type.
type Batch struct {
	Name    string
	Records []export.SampleRecord
}

// ExportName returns the URL path segment used for t.
func ExportName(t healthstore.RecordType) string {
	switch t {
	case healthstore.SleepSession:
		return SleepSessionData
	case healthstore.OxygenSaturation:
		return BloodOxygenData
	default:
		return string(t)
	}
}

// Collect reads the full history of each type up to endDate and flattens it.
// Types with no records are returned with an empty Records slice so callers can
// still show them. The first read error aborts the collection.
func Collect(
	ctx context.Context,
	r *reader.Reader,
	types []healthstore.RecordType,
	endDate time.Time,
	owner string,
) ([]Batch, error) {
	logger := logging.FromContext(ctx).With().
		Str("component", "engine").
		Str("operation", "Collect").
		Logger()

	batches := make([]Batch, 0, len(types))
	for _, t := range types {
		records, err := collectType(ctx, r, t, endDate, owner)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", t, err)
		}
		logger.Debug().Ctx(ctx).Str("record_type", string(t)).Int("records", len(records)).Msg("collected")
		batches = append(batches, Batch{Name: ExportName(t), Records: records})
	}
	return batches, nil
}

func collectType(
	ctx context.Context,
	r *reader.Reader,
	t healthstore.RecordType,
	endDate time.Time,
	owner string,
) ([]export.SampleRecord, error) {
	switch t {
	case healthstore.SleepSession:
		sessions, err := r.ReadSleepSessions(ctx, endDate)
		if err != nil {
			return nil, err
		}
		out := make([]export.SampleRecord, len(sessions))
		for i, s := range sessions {
			out[i] = sample(s.Duration.Seconds(), s.Start, owner)
		}
		return out, nil
	case healthstore.OxygenSaturation:
		readings, err := r.ReadBloodOxygen(ctx, endDate)
		if err != nil {
			return nil, err
		}
		out := make([]export.SampleRecord, len(readings))
		for i, o := range readings {
			out[i] = export.SampleRecord{
				Value:           o.Value,
				Timestamp:       o.Time.UTC().Format(time.RFC3339),
				OwnerIdentifier: owner,
			}
		}
		return out, nil
	default:
		records, err := r.ReadRecordsByWeek(ctx, t, endDate)
		if err != nil {
			return nil, err
		}
		return Flatten(records, owner), nil
	}
}

// Flatten converts store records into upload samples stamped with owner.
func Flatten(records []healthstore.HealthRecord, owner string) []export.SampleRecord {
	out := make([]export.SampleRecord, len(records))
	for i, rec := range records {
		out[i] = sample(rec.Value, rec.Start, owner)
	}
	return out
}

func sample(value float64, at time.Time, owner string) export.SampleRecord {
	return export.SampleRecord{
		Value:           strconv.FormatFloat(value, 'f', -1, 64),
		Timestamp:       at.UTC().Format(time.RFC3339),
		OwnerIdentifier: owner,
	}
}
