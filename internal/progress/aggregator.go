package progress

import (
	"context"
	"maps"
	"sort"
	"sync"
	"sync/atomic"
)

const defaultBuffer = 64

// Update is one report from an export task.
type Update struct {
	Type      string
	Completed int
	Total     int
}

// TypeProgress is the (completed, total) pair for one record type.
type TypeProgress struct {
	Completed int
	Total     int
}

// Snapshot is an immutable view of aggregated progress.
type Snapshot struct {
	Types     map[string]TypeProgress
	Completed int
	Total     int
}

// Percent returns overall completion as an integer 0..100.
func (s Snapshot) Percent() int {
	if s.Total == 0 {
		return 0
	}
	return s.Completed * 100 / s.Total
}

// TypeNames returns the record types in the snapshot, sorted.
func (s Snapshot) TypeNames() []string {
	names := make([]string, 0, len(s.Types))
	for name := range s.Types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Listener is called on the aggregator goroutine after every applied update.
// It must not block.
type Listener func(Snapshot)

// Aggregator owns the progress map. Run must be started before tasks report.
type Aggregator struct {
	updates   chan Update
	stop      chan struct{}
	done      chan struct{}
	stopOnce  sync.Once
	snapshot  atomic.Pointer[Snapshot]
	listeners []Listener
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithBuffer sets the update channel capacity.
func WithBuffer(n int) Option {
	return func(a *Aggregator) {
		if n > 0 {
			a.updates = make(chan Update, n)
		}
	}
}

// WithListener adds a listener notified after each update.
func WithListener(l Listener) Option {
	return func(a *Aggregator) { a.listeners = append(a.listeners, l) }
}

// NewAggregator creates an idle aggregator.
func NewAggregator(opts ...Option) *Aggregator {
	a := &Aggregator{
		updates: make(chan Update, defaultBuffer),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.snapshot.Store(&Snapshot{Types: map[string]TypeProgress{}})
	return a
}

// Run applies updates until ctx is cancelled or Stop is called. Updates already
// queued at that point are applied before Run returns.
func (a *Aggregator) Run(ctx context.Context) {
	defer close(a.done)

	state := map[string]TypeProgress{}
	for {
		select {
		case u := <-a.updates:
			a.apply(state, u)
		case <-a.stop:
			a.drain(state)
			return
		case <-ctx.Done():
			a.drain(state)
			return
		}
	}
}

// Stop ends Run after draining queued updates and waits for it to return.
func (a *Aggregator) Stop() {
	a.stopOnce.Do(func() { close(a.stop) })
	<-a.done
}

// Report queues u. It blocks while the buffer is full and returns without
// queuing once the aggregator has stopped.
func (a *Aggregator) Report(u Update) {
	select {
	case <-a.done:
		return
	default:
	}
	select {
	case a.updates <- u:
	case <-a.done:
	}
}

// Register announces a record type with its total before any chunk completes.
func (a *Aggregator) Register(recordType string, total int) {
	a.Report(Update{Type: recordType, Total: total})
}

// Reporter returns a callback suitable for the exporter's progress hook.
func (a *Aggregator) Reporter(recordType string) func(completed, total int) {
	return func(completed, total int) {
		a.Report(Update{Type: recordType, Completed: completed, Total: total})
	}
}

// Snapshot returns the latest published state.
func (a *Aggregator) Snapshot() Snapshot {
	return *a.snapshot.Load()
}

func (a *Aggregator) drain(state map[string]TypeProgress) {
	for {
		select {
		case u := <-a.updates:
			a.apply(state, u)
		default:
			return
		}
	}
}

// apply clamps completed into [previous, total] so a type never goes backwards.
func (a *Aggregator) apply(state map[string]TypeProgress, u Update) {
	prev := state[u.Type]
	total := max(u.Total, 0)
	completed := min(max(u.Completed, prev.Completed), total)
	state[u.Type] = TypeProgress{Completed: completed, Total: total}

	snap := Snapshot{Types: maps.Clone(state)}
	for _, tp := range state {
		snap.Completed += tp.Completed
		snap.Total += tp.Total
	}
	a.snapshot.Store(&snap)

	for _, l := range a.listeners {
		l(snap)
	}
}
