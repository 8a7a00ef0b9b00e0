package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rshade/healthbridge/internal/config"
	"github.com/rshade/healthbridge/internal/discovery"
	"github.com/rshade/healthbridge/internal/engine"
	"github.com/rshade/healthbridge/internal/healthstore"
	"github.com/rshade/healthbridge/internal/reader"
)

// dateLayout is the format of --end-date.
const dateLayout = "2006-01-02"

// openStore opens the configured health store, creating the SQLite
// directory when needed.
func openStore(ctx context.Context, cfg *config.Config) (*healthstore.SQLStore, error) {
	opts := healthstore.Options{
		Driver:             cfg.Store.Driver,
		DSN:                cfg.Store.Path,
		EnforcePermissions: cfg.Store.EnforcePermission,
	}
	if cfg.Store.Driver == config.StoreDriverPostgres {
		opts.DSN = cfg.Store.DSN
	} else if err := os.MkdirAll(filepath.Dir(cfg.Store.Path), 0o750); err != nil {
		return nil, fmt.Errorf("creating store directory: %w", err)
	}

	store, err := healthstore.Open(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("opening health store: %w", err)
	}
	return store, nil
}

// newReader builds a week-by-week reader with the configured retry policy.
func newReader(cfg *config.Config, store healthstore.Store) *reader.Reader {
	return reader.New(store, reader.WithRetryPolicy(reader.RetryPolicy{
		MaxAttempts:    cfg.Reader.MaxAttempts,
		InitialBackoff: time.Duration(cfg.Reader.BackoffMillis) * time.Millisecond,
		MaxBackoff:     time.Duration(cfg.Reader.MaxBackoffMillis) * time.Millisecond,
	}))
}

// newActive returns the active-session holder persisted under the cache directory.
func newActive(cfg *config.Config) (*discovery.Active, error) {
	store, err := discovery.NewSessionFile(cfg.Discovery.CacheDir,
		time.Duration(cfg.Discovery.SessionTTLSeconds)*time.Second)
	if err != nil {
		return nil, fmt.Errorf("opening session store: %w", err)
	}
	return discovery.NewActive(store), nil
}

// newHTTPClient returns a client with the configured request timeout.
func newHTTPClient(cfg *config.Config) *http.Client {
	return &http.Client{Timeout: time.Duration(cfg.Export.RequestTimeoutSeconds) * time.Second}
}

// parseEndDate parses --end-date, defaulting to today in local time.
func parseEndDate(value string) (time.Time, error) {
	if value == "" {
		return time.Now(), nil
	}
	d, err := time.ParseInLocation(dateLayout, value, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --end-date %q, expected YYYY-MM-DD: %w", value, err)
	}
	return d, nil
}

// parseTypes resolves record type names, accepting export names too and defaulting to every known type.
func parseTypes(names []string) ([]healthstore.RecordType, error) {
	if len(names) == 0 {
		return healthstore.AllRecordTypes(), nil
	}
	types := make([]healthstore.RecordType, 0, len(names))
	for _, name := range names {
		switch name {
		case engine.SleepSessionData:
			name = string(healthstore.SleepSession)
		case engine.BloodOxygenData:
			name = string(healthstore.OxygenSaturation)
		}
		t, err := healthstore.ParseRecordType(name)
		if err != nil {
			return nil, err
		}
		types = append(types, t)
	}
	return types, nil
}
