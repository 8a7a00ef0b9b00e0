package export

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Chunk outcomes used as the "outcome" label.
const (
	OutcomeAccepted     = "accepted"
	OutcomeAuthExpired  = "auth_expired"
	OutcomeRejected     = "rejected"
	OutcomeNetworkError = "network_error"
	OutcomeFailed       = "failed"
)

// Metrics counts chunk uploads and token refreshes.
type Metrics struct {
	Chunks    *prometheus.CounterVec
	Records   *prometheus.CounterVec
	Refreshes *prometheus.CounterVec
}

// NewMetrics creates the export counters and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Chunks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "healthbridge_export_chunks_total",
			Help: "Chunks uploaded, by record type and outcome.",
		}, []string{"record_type", "outcome"}),
		Records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "healthbridge_export_records_total",
			Help: "Records in accepted chunks, by record type.",
		}, []string{"record_type"}),
		Refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "healthbridge_token_refreshes_total",
			Help: "Access token refresh attempts, by outcome.",
		}, []string{"outcome"}),
	}
	if reg != nil {
		reg.MustRegister(m.Chunks, m.Records, m.Refreshes)
	}
	return m
}

func (m *Metrics) observeChunk(recordType string, size int, err error) {
	if m == nil {
		return
	}
	outcome := chunkOutcome(err)
	m.Chunks.WithLabelValues(recordType, outcome).Inc()
	if outcome == OutcomeAccepted {
		m.Records.WithLabelValues(recordType).Add(float64(size))
	}
}

func (m *Metrics) observeRefresh(ok bool) {
	if m == nil {
		return
	}
	outcome := OutcomeAccepted
	if !ok {
		outcome = OutcomeFailed
	}
	m.Refreshes.WithLabelValues(outcome).Inc()
}

func chunkOutcome(err error) string {
	switch {
	case err == nil:
		return OutcomeAccepted
	case errors.Is(err, ErrAuthExpired):
		return OutcomeAuthExpired
	case errors.Is(err, ErrRemoteRejected):
		return OutcomeRejected
	case errors.Is(err, ErrNetworkFailure):
		return OutcomeNetworkError
	default:
		return OutcomeFailed
	}
}
