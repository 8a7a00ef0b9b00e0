package healthstore

import (
	"math"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
)

const hoursPerDay = 24

type valueRange struct{ lo, hi float64 }

// sampleRanges bounds generated values per point-in-time type.
var sampleRanges = map[RecordType]valueRange{ //nolint:gochecknoglobals // immutable lookup table
	OxygenSaturation:       {94, 100},
	HeartRate:              {55, 150},
	ActiveCaloriesBurned:   {5, 120},
	BasalMetabolicRate:     {1400, 2000},
	BloodPressure:          {105, 135},
	BodyFat:                {12, 30},
	BodyTemperature:        {36.1, 37.4},
	BoneMass:               {2.5, 3.5},
	Distance:               {100, 3000},
	Hydration:              {0.1, 0.5},
	Speed:                  {0.8, 3.5},
	Steps:                  {50, 2500},
	TotalCaloriesBurned:    {60, 250},
	Weight:                 {60, 90},
	BasalBodyTemperature:   {36.0, 36.9},
	FloorsClimbed:          {0, 12},
	IntermenstrualBleeding: {1, 1},
	LeanBodyMass:           {45, 70},
	MenstruationFlow:       {1, 3},
	Nutrition:              {150, 900},
	Power:                  {80, 300},
	RespiratoryRate:        {12, 20},
	RestingHeartRate:       {48, 72},
	SkinTemperature:        {32, 35},
}

var sleepNotes = []string{ //nolint:gochecknoglobals // immutable lookup table
	"Slept well", "Woke up once", "Restless night", "Late dinner", "",
}

// Generator produces plausible demo records.
type Generator struct {
	rng *rand.Rand
}

// NewGenerator returns a deterministic generator for seed.
func NewGenerator(seed uint64) *Generator {
	return &Generator{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// SleepSessions returns one session per night for the days before end. Each
// starts between 22:00 and 23:59 and lasts 6 to 9 hours; Value is the duration
// in seconds.
func (g *Generator) SleepSessions(days int, end time.Time) []HealthRecord {
	records := make([]HealthRecord, 0, days)
	base := startOfDay(end)
	for i := days; i >= 1; i-- {
		night := base.AddDate(0, 0, -i)
		start := night.Add(22*time.Hour + time.Duration(g.rng.IntN(120))*time.Minute)
		duration := 6*time.Hour + time.Duration(g.rng.IntN(180))*time.Minute
		records = append(records, HealthRecord{
			ID:    uuid.New(),
			Type:  SleepSession,
			Start: start,
			End:   start.Add(duration),
			Value: duration.Seconds(),
			Unit:  SleepSession.Unit(),
			Title: "Sleep session",
			Notes: sleepNotes[g.rng.IntN(len(sleepNotes))],
		})
	}
	return records
}

// ExerciseSessions returns one 20-90 minute session every other day.
func (g *Generator) ExerciseSessions(days int, end time.Time) []HealthRecord {
	var records []HealthRecord
	base := startOfDay(end)
	for i := days; i >= 1; i -= 2 {
		start := base.AddDate(0, 0, -i).Add(time.Duration(7+g.rng.IntN(12)) * time.Hour)
		duration := time.Duration(20+g.rng.IntN(70)) * time.Minute
		records = append(records, HealthRecord{
			ID:    uuid.New(),
			Type:  ExerciseSession,
			Start: start,
			End:   start.Add(duration),
			Value: duration.Seconds(),
			Unit:  ExerciseSession.Unit(),
			Title: "Workout",
		})
	}
	return records
}

// Samples returns perDay point-in-time samples of t for each day before end.
// Types without a sample range yield nothing.
func (g *Generator) Samples(t RecordType, days, perDay int, end time.Time) []HealthRecord {
	r, ok := sampleRanges[t]
	if !ok || perDay < 1 {
		return nil
	}
	records := make([]HealthRecord, 0, days*perDay)
	base := startOfDay(end)
	step := time.Duration(hoursPerDay) * time.Hour / time.Duration(perDay)
	for i := days; i >= 1; i-- {
		day := base.AddDate(0, 0, -i)
		for j := range perDay {
			at := day.Add(time.Duration(j)*step + time.Duration(g.rng.IntN(int(step/time.Minute)+1))*time.Minute)
			records = append(records, HealthRecord{
				ID:    uuid.New(),
				Type:  t,
				Start: at,
				End:   at,
				Value: g.value(r),
				Unit:  t.Unit(),
			})
		}
	}
	return records
}

// All returns sleep, exercise and samplesPerDay samples of every other type.
func (g *Generator) All(days, samplesPerDay int, end time.Time) []HealthRecord {
	records := g.SleepSessions(days, end)
	records = append(records, g.ExerciseSessions(days, end)...)
	for _, t := range AllRecordTypes() {
		records = append(records, g.Samples(t, days, samplesPerDay, end)...)
	}
	return records
}

func (g *Generator) value(r valueRange) float64 {
	v := r.lo + g.rng.Float64()*(r.hi-r.lo)
	return math.Round(v*10) / 10
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
