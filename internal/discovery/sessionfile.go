package discovery

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rshade/healthbridge/internal/export"
)

const sessionFileName = "active-session.json"

// ErrInvalidTTL is returned for a session lifetime shorter than one second.
var ErrInvalidTTL = errors.New("session TTL must be at least 1 second")

// savedSession is the on-disk form of the active session.
type savedSession struct {
	Config    export.ExportConfig `json:"config"`
	SavedAt   time.Time           `json:"saved_at"`
	ExpiresAt time.Time           `json:"expires_at"`
}

// SessionFile keeps the active export configuration in a single JSON file.
// Save restarts the lifetime; Update keeps it. Writes go through a temp file
// and rename.
type SessionFile struct {
	path string
	ttl  time.Duration

	mu sync.Mutex
}

// NewSessionFile stores the session under dir, creating it if needed.
func NewSessionFile(dir string, ttl time.Duration) (*SessionFile, error) {
	if dir == "" {
		return nil, errors.New("session directory cannot be empty")
	}
	if ttl < time.Second {
		return nil, fmt.Errorf("%w: got %v", ErrInvalidTTL, ttl)
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating session directory: %w", err)
	}
	return &SessionFile{path: filepath.Join(dir, sessionFileName), ttl: ttl}, nil
}

// Path returns the file holding the session.
func (f *SessionFile) Path() string {
	return f.path
}

// Save writes cfg with a fresh expiry.
func (f *SessionFile) Save(cfg export.ExportConfig) error {
	now := time.Now().UTC()

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writeLocked(savedSession{Config: cfg, SavedAt: now, ExpiresAt: now.Add(f.ttl)})
}

// Update replaces the saved configuration but keeps its expiry, so a refreshed
// token does not extend the session. It fails with ErrNoActiveSession when
// there is no live session to update.
func (f *SessionFile) Update(cfg export.ExportConfig) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	saved, err := f.loadLocked()
	if err != nil {
		return err
	}
	saved.Config = cfg
	saved.SavedAt = time.Now().UTC()
	return f.writeLocked(saved)
}

// Load returns the saved configuration and its expiry. A missing or expired
// file yields ErrNoActiveSession; an expired file is removed.
func (f *SessionFile) Load() (export.ExportConfig, time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	saved, err := f.loadLocked()
	if err != nil {
		return export.ExportConfig{}, time.Time{}, err
	}
	return saved.Config, saved.ExpiresAt, nil
}

func (f *SessionFile) loadLocked() (savedSession, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return savedSession{}, ErrNoActiveSession
	}
	if err != nil {
		return savedSession{}, fmt.Errorf("reading session file: %w", err)
	}

	var saved savedSession
	if err = json.Unmarshal(data, &saved); err != nil {
		return savedSession{}, fmt.Errorf("%w: session file: %w", export.ErrMalformedConfig, err)
	}
	if !time.Now().Before(saved.ExpiresAt) {
		_ = os.Remove(f.path)
		return savedSession{}, ErrNoActiveSession
	}
	return saved, nil
}

func (f *SessionFile) writeLocked(saved savedSession) error {
	data, err := json.MarshalIndent(saved, "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling session: %w", err)
	}

	tmp := f.path + ".tmp"
	if err = os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("writing session file: %w", err)
	}
	if err = os.Rename(tmp, f.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("renaming session file: %w", err)
	}
	return nil
}

// Remove deletes the file. Removing a missing file is not an error.
func (f *SessionFile) Remove() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing session file: %w", err)
	}
	return nil
}
