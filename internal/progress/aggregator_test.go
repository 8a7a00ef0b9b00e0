package progress

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startAggregator(t *testing.T, opts ...Option) *Aggregator {
	t.Helper()
	agg := NewAggregator(opts...)
	go agg.Run(context.Background())
	t.Cleanup(agg.Stop)
	return agg
}

func TestAggregator_Totals(t *testing.T) {
	agg := startAggregator(t)

	agg.Register("StepsRecord", 120)
	agg.Register("HeartRateRecord", 30)
	steps := agg.Reporter("StepsRecord")
	steps(50, 120)
	steps(100, 120)
	agg.Reporter("HeartRateRecord")(30, 30)
	agg.Stop()

	snap := agg.Snapshot()
	assert.Equal(t, TypeProgress{Completed: 100, Total: 120}, snap.Types["StepsRecord"])
	assert.Equal(t, TypeProgress{Completed: 30, Total: 30}, snap.Types["HeartRateRecord"])
	assert.Equal(t, 130, snap.Completed)
	assert.Equal(t, 150, snap.Total)
	assert.Equal(t, 86, snap.Percent())
	assert.Equal(t, []string{"HeartRateRecord", "StepsRecord"}, snap.TypeNames())
}

func TestAggregator_Monotonic(t *testing.T) {
	agg := startAggregator(t)

	report := agg.Reporter("WeightRecord")
	report(40, 50)
	report(10, 50)
	report(80, 50)
	agg.Stop()

	assert.Equal(t, TypeProgress{Completed: 50, Total: 50}, agg.Snapshot().Types["WeightRecord"])
}

func TestAggregator_ListenerSeesNonDecreasingTotals(t *testing.T) {
	var mu sync.Mutex
	var seen []int
	agg := startAggregator(t, WithBuffer(4), WithListener(func(s Snapshot) {
		mu.Lock()
		seen = append(seen, s.Completed)
		mu.Unlock()
	}))

	var wg sync.WaitGroup
	for _, name := range []string{"A", "B", "C", "D"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			report := agg.Reporter(name)
			for completed := 0; completed <= 100; completed += 10 {
				report(completed, 100)
			}
		}()
	}
	wg.Wait()
	agg.Stop()

	require.NotEmpty(t, seen)
	for i := 1; i < len(seen); i++ {
		assert.GreaterOrEqual(t, seen[i], seen[i-1])
	}
	assert.Equal(t, 400, agg.Snapshot().Completed)
	assert.Equal(t, 100, agg.Snapshot().Percent())
}

func TestAggregator_ReportAfterStop(t *testing.T) {
	agg := NewAggregator()
	go agg.Run(context.Background())
	agg.Stop()
	agg.Stop()

	agg.Report(Update{Type: "StepsRecord", Completed: 1, Total: 1})
	assert.Empty(t, agg.Snapshot().Types)
}

func TestAggregator_ContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	agg := NewAggregator()
	finished := make(chan struct{})
	go func() {
		agg.Run(ctx)
		close(finished)
	}()

	agg.Report(Update{Type: "StepsRecord", Completed: 5, Total: 10})
	cancel()
	<-finished

	assert.Equal(t, 5, agg.Snapshot().Completed)
}

func TestSnapshot_PercentEmpty(t *testing.T) {
	assert.Zero(t, Snapshot{}.Percent())
}
