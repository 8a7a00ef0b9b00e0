// Package sink is a local receiving endpoint for exports. It serves the
// discovery document, accepts chunk uploads, refreshes tokens and records
// progress beacons, so the whole export flow can run on one machine.
package sink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rshade/healthbridge/internal/export"
	"github.com/rshade/healthbridge/internal/logging"
)

// Route paths served by the sink.
const (
	ConfigPath   = "/config"
	ExportPrefix = "/export"
	RefreshPath  = "/token/refresh"
	ProgressPath = "/progress"
	MetricsPath  = "/metrics"
	HealthPath   = "/health"

	maxBodyBytes    = 8 << 20
	shutdownTimeout = 5 * time.Second
)

// Options configures a Server.
type Options struct {
	// Email is returned as the owner identifier in the discovery document.
	Email string
	// TokenLifetimeChunks expires an access token after this many accepted
	// chunks. Zero keeps tokens valid until refreshed.
	TokenLifetimeChunks int
	// Registry receives the sink's counters and is served on /metrics.
	// A fresh registry is used when nil.
	Registry *prometheus.Registry
}

// ProgressReport is one beacon received on /progress.
type ProgressReport struct {
	Progress string    `json:"progress"`
	Email    string    `json:"email"`
	Received time.Time `json:"-"`
}

// Server is the receiving side of an export.
type Server struct {
	opts     Options
	router   *mux.Router
	registry *prometheus.Registry
	records  *prometheus.CounterVec
	requests *prometheus.CounterVec

	mu           sync.Mutex
	accessToken  string
	refreshToken string
	issued       map[string]struct{}
	acceptedWith int
	received     map[string][]export.SampleRecord
	progress     []ProgressReport
}

// New builds a Server with a freshly issued token pair.
func New(opts Options) *Server {
	reg := opts.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	s := &Server{
		opts:         opts,
		registry:     reg,
		accessToken:  uuid.NewString(),
		refreshToken: uuid.NewString(),
		issued:       map[string]struct{}{},
		received:     map[string][]export.SampleRecord{},
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "healthbridge_sink_records_received_total",
			Help: "Records accepted by the sink, by record type.",
		}, []string{"record_type"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "healthbridge_sink_requests_total",
			Help: "Requests handled by the sink, by route and status code.",
		}, []string{"route", "code"}),
	}
	s.issued[s.accessToken] = struct{}{}
	reg.MustRegister(s.records, s.requests)

	r := mux.NewRouter()
	r.HandleFunc(ConfigPath, s.handleConfig).Methods(http.MethodGet)
	r.HandleFunc(ExportPrefix+"/{type}", s.handleExport).Methods(http.MethodPost)
	r.HandleFunc(RefreshPath, s.handleRefresh).Methods(http.MethodPost)
	r.HandleFunc(ProgressPath, s.handleProgress).Methods(http.MethodPost)
	r.Handle(MetricsPath, promhttp.HandlerFor(reg, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	r.HandleFunc(HealthPath, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = fmt.Fprintln(w, "OK")
	}).Methods(http.MethodGet)
	s.router = r

	return s
}

// Handler returns the sink's router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ConfigFor returns the discovery document for a sink reachable at baseURL.
func (s *Server) ConfigFor(baseURL string) export.ExportConfig {
	base := strings.TrimRight(baseURL, "/")

	s.mu.Lock()
	defer s.mu.Unlock()
	return export.ExportConfig{
		PostEndpointBase: base + ExportPrefix,
		AccessToken:      s.accessToken,
		RefreshToken:     s.refreshToken,
		RefreshTokenURL:  base + RefreshPath,
		TokenType:        "Bearer",
		OwnerIdentifier:  s.opts.Email,
	}
}

// ExpireToken rotates the access token. Uploads with the old token get 403,
// while a rescan through ConfigFor picks up the new one.
func (s *Server) ExpireToken() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rotateLocked()
}

// rotateLocked issues a new access token. Earlier tokens stay known so that
// they are answered with 403 and can still be exchanged for a refresh.
func (s *Server) rotateLocked() string {
	next := uuid.NewString()
	s.accessToken = next
	s.issued[next] = struct{}{}
	s.acceptedWith = 0
	return next
}

// Received returns a copy of the records accepted for recordType.
func (s *Server) Received(recordType string) []export.SampleRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]export.SampleRecord(nil), s.received[recordType]...)
}

// ReceivedCounts returns the number of accepted records per type.
func (s *Server) ReceivedCounts() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := make(map[string]int, len(s.received))
	for k, v := range s.received {
		counts[k] = len(v)
	}
	return counts
}

// Progress returns every beacon received so far, oldest first.
func (s *Server) Progress() []ProgressReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ProgressReport(nil), s.progress...)
}

// LastProgress returns the most recent beacon.
func (s *Server) LastProgress() (ProgressReport, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.progress) == 0 {
		return ProgressReport{}, false
	}
	return s.progress[len(s.progress)-1], true
}

// Serve runs the sink on l until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	logger := logging.FromContext(ctx).With().Str("component", "sink").Logger()

	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return logger.WithContext(ctx) },
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("address", l.Addr().String()).Msg("sink listening")
		errCh <- srv.Serve(l)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down sink: %w", err)
	}
	logger.Info().Msg("sink stopped")
	return nil
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	s.writeJSON(w, "config", http.StatusOK, s.ConfigFor(scheme+"://"+r.Host))
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	logger := logging.FromContext(r.Context())
	recordType := mux.Vars(r)["type"]

	token, ok := bearer(r)
	if !ok {
		s.fail(w, "export", http.StatusUnauthorized, "missing bearer token")
		return
	}
	if ct := r.Header.Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		s.fail(w, "export", http.StatusUnsupportedMediaType, "expected application/json")
		return
	}

	var records []export.SampleRecord
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&records); err != nil {
		s.fail(w, "export", http.StatusBadRequest, "invalid JSON body")
		return
	}

	s.mu.Lock()
	if token != s.accessToken {
		_, known := s.issued[token]
		s.mu.Unlock()
		if known {
			s.fail(w, "export", http.StatusForbidden, "access token expired")
		} else {
			s.fail(w, "export", http.StatusUnauthorized, "unknown access token")
		}
		return
	}
	s.received[recordType] = append(s.received[recordType], records...)
	s.acceptedWith++
	if s.opts.TokenLifetimeChunks > 0 && s.acceptedWith >= s.opts.TokenLifetimeChunks {
		s.rotateLocked()
	}
	s.mu.Unlock()

	s.records.WithLabelValues(recordType).Add(float64(len(records)))
	logger.Debug().Str("record_type", recordType).Int("records", len(records)).Msg("chunk received")
	s.requests.WithLabelValues("export", "201").Inc()
	w.WriteHeader(http.StatusCreated)
}

type refreshBody struct {
	RefreshToken string `json:"refresh_token"`
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	token, ok := bearer(r)
	if !ok {
		s.fail(w, "refresh", http.StatusUnauthorized, "missing bearer token")
		return
	}

	var body refreshBody
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&body); err != nil {
		s.fail(w, "refresh", http.StatusBadRequest, "invalid JSON body")
		return
	}

	s.mu.Lock()
	_, known := s.issued[token]
	if !known || body.RefreshToken != s.refreshToken {
		s.mu.Unlock()
		s.fail(w, "refresh", http.StatusUnauthorized, "refresh rejected")
		return
	}
	next := s.rotateLocked()
	s.mu.Unlock()

	logging.FromContext(r.Context()).Info().Msg("access token reissued")
	s.writeJSON(w, "refresh", http.StatusOK, map[string]string{"access_token": next})
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	var report ProgressReport
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&report); err != nil {
		s.fail(w, "progress", http.StatusBadRequest, "invalid JSON body")
		return
	}
	report.Received = time.Now()

	s.mu.Lock()
	s.progress = append(s.progress, report)
	s.mu.Unlock()

	logging.FromContext(r.Context()).Debug().Str("progress", report.Progress).Msg("progress received")
	s.requests.WithLabelValues("progress", "204").Inc()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) writeJSON(w http.ResponseWriter, route string, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
	s.requests.WithLabelValues(route, strconv.Itoa(status)).Inc()
}

func (s *Server) fail(w http.ResponseWriter, route string, status int, msg string) {
	s.requests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	http.Error(w, msg, status)
}

func bearer(r *http.Request) (string, bool) {
	const prefix = "Bearer "
	h := r.Header.Get("Authorization")
	if !strings.HasPrefix(h, prefix) {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(h, prefix))
	return token, token != ""
}
