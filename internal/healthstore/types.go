package healthstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RecordType names a category of stored health record.
type RecordType string

// Record types held by the store.
const (
	SleepSession           RecordType = "SleepSessionRecord"
	OxygenSaturation       RecordType = "OxygenSaturationRecord"
	HeartRate              RecordType = "HeartRateRecord"
	ActiveCaloriesBurned   RecordType = "ActiveCaloriesBurnedRecord"
	BasalMetabolicRate     RecordType = "BasalMetabolicRateRecord"
	BloodPressure          RecordType = "BloodPressureRecord"
	BodyFat                RecordType = "BodyFatRecord"
	BodyTemperature        RecordType = "BodyTemperatureRecord"
	BoneMass               RecordType = "BoneMassRecord"
	Distance               RecordType = "DistanceRecord"
	ExerciseSession        RecordType = "ExerciseSessionRecord"
	Hydration              RecordType = "HydrationRecord"
	Speed                  RecordType = "SpeedRecord"
	Steps                  RecordType = "StepsRecord"
	TotalCaloriesBurned    RecordType = "TotalCaloriesBurnedRecord"
	Weight                 RecordType = "WeightRecord"
	BasalBodyTemperature   RecordType = "BasalBodyTemperatureRecord"
	FloorsClimbed          RecordType = "FloorsClimbedRecord"
	IntermenstrualBleeding RecordType = "IntermenstrualBleedingRecord"
	LeanBodyMass           RecordType = "LeanBodyMassRecord"
	MenstruationFlow       RecordType = "MenstruationFlowRecord"
	Nutrition              RecordType = "NutritionRecord"
	Power                  RecordType = "PowerRecord"
	RespiratoryRate        RecordType = "RespiratoryRateRecord"
	RestingHeartRate       RecordType = "RestingHeartRateRecord"
	SkinTemperature        RecordType = "SkinTemperatureRecord"
)

// recordUnits is the canonical unit per type; it also serves as the registry of known types.
var recordUnits = map[RecordType]string{ //nolint:gochecknoglobals // immutable lookup table
	SleepSession:           "s",
	OxygenSaturation:       "%",
	HeartRate:              "bpm",
	ActiveCaloriesBurned:   "kcal",
	BasalMetabolicRate:     "kcal/day",
	BloodPressure:          "mmHg",
	BodyFat:                "%",
	BodyTemperature:        "°C",
	BoneMass:               "kg",
	Distance:               "m",
	ExerciseSession:        "s",
	Hydration:              "l",
	Speed:                  "m/s",
	Steps:                  "count",
	TotalCaloriesBurned:    "kcal",
	Weight:                 "kg",
	BasalBodyTemperature:   "°C",
	FloorsClimbed:          "floors",
	IntermenstrualBleeding: "event",
	LeanBodyMass:           "kg",
	MenstruationFlow:       "level",
	Nutrition:              "kcal",
	Power:                  "W",
	RespiratoryRate:        "rpm",
	RestingHeartRate:       "bpm",
	SkinTemperature:        "°C",
}

// AllRecordTypes returns every known type in a stable order.
func AllRecordTypes() []RecordType {
	return []RecordType{
		SleepSession, OxygenSaturation, HeartRate, ActiveCaloriesBurned, BasalMetabolicRate,
		BloodPressure, BodyFat, BodyTemperature, BoneMass, Distance, ExerciseSession, Hydration,
		Speed, Steps, TotalCaloriesBurned, Weight, BasalBodyTemperature, FloorsClimbed,
		IntermenstrualBleeding, LeanBodyMass, MenstruationFlow, Nutrition, Power,
		RespiratoryRate, RestingHeartRate, SkinTemperature,
	}
}

// Valid reports whether t is a known record type.
func (t RecordType) Valid() bool {
	_, ok := recordUnits[t]
	return ok
}

// Unit returns the canonical unit for t.
func (t RecordType) Unit() string {
	return recordUnits[t]
}

// ParseRecordType validates s as a record type name.
func ParseRecordType(s string) (RecordType, error) {
	t := RecordType(s)
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownRecordType, s)
	}
	return t, nil
}

// Store errors.
var (
	ErrPermissionDenied  = errors.New("permission denied")
	ErrStoreUnavailable  = errors.New("health store unavailable")
	ErrUnknownRecordType = errors.New("unknown record type")
	ErrInvalidRange      = errors.New("invalid time range")
)

// HealthRecord is one stored measurement or session. Point-in-time records have
// Start equal to End.
type HealthRecord struct {
	ID    uuid.UUID
	Type  RecordType
	Start time.Time
	End   time.Time
	Value float64
	Unit  string
	Title string
	Notes string
}

// Duration returns End - Start.
func (r HealthRecord) Duration() time.Duration {
	return r.End.Sub(r.Start)
}

// Permission is a named grant such as "read:StepsRecord".
type Permission string

// ReadPermission returns the permission needed to read t.
func ReadPermission(t RecordType) Permission {
	return Permission("read:" + string(t))
}

// AllReadPermissions returns the read permission of every record type.
func AllReadPermissions() []Permission {
	types := AllRecordTypes()
	perms := make([]Permission, len(types))
	for i, t := range types {
		perms[i] = ReadPermission(t)
	}
	return perms
}

// AggregateKind selects how Aggregate combines records.
type AggregateKind string

// Aggregate kinds.
const (
	KindSum      AggregateKind = "sum"
	KindAvg      AggregateKind = "avg"
	KindMin      AggregateKind = "min"
	KindMax      AggregateKind = "max"
	KindDuration AggregateKind = "duration"
)

// Metric is an aggregate over one record type.
type Metric struct {
	Name string
	Type RecordType
	Kind AggregateKind
}

// Predefined metrics.
var (
	// SleepDurationTotal is total sleep time in seconds.
	SleepDurationTotal = Metric{Name: "SleepSessionRecord.SLEEP_DURATION_TOTAL", Type: SleepSession, Kind: KindDuration}
	StepsCountTotal    = Metric{Name: "StepsRecord.COUNT_TOTAL", Type: Steps, Kind: KindSum}
	HeartRateAvg       = Metric{Name: "HeartRateRecord.BPM_AVG", Type: HeartRate, Kind: KindAvg}
)

// Store is the health-record store as seen by readers.
type Store interface {
	// ReadRange returns records of t with Start in [start, end).
	ReadRange(ctx context.Context, t RecordType, start, end time.Time, ascending bool) ([]HealthRecord, error)
	// Aggregate combines records of m.Type in [start, end). Empty ranges yield 0.
	Aggregate(ctx context.Context, m Metric, start, end time.Time) (float64, error)
	HasPermissions(ctx context.Context, perms []Permission) (bool, error)
	RequestPermissions(ctx context.Context, perms []Permission) error
}
