package discovery

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rshade/healthbridge/internal/export"
	"github.com/rshade/healthbridge/internal/logging"
)

// ErrNoActiveSession means nothing has been scanned, or the last scan expired.
var ErrNoActiveSession = errors.New("no active export session; scan a QR code first")

// Active holds the one export session in effect. Replace swaps in a new
// Session; sessions already handed out keep their own configuration.
type Active struct {
	store *SessionFile

	mu      sync.Mutex
	session *export.Session
}

// NewActive returns an Active persisted through store. A nil store keeps the
// session in memory only.
func NewActive(store *SessionFile) *Active {
	return &Active{store: store}
}

// Replace makes cfg the active configuration and returns its new Session.
func (a *Active) Replace(ctx context.Context, cfg export.ExportConfig) (*export.Session, error) {
	session := export.NewSession(cfg)

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.store != nil {
		if err := a.store.Save(cfg); err != nil {
			return nil, fmt.Errorf("persisting active session: %w", err)
		}
	}
	a.session = session

	logging.FromContext(ctx).Debug().Ctx(ctx).
		Str("component", "discovery").
		Str("session_id", session.ID()).
		Msg("active session replaced")
	return session, nil
}

// Current returns the active Session, loading it from disk on first use.
func (a *Active) Current(ctx context.Context) (*export.Session, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.session != nil {
		return a.session, nil
	}
	if a.store == nil {
		return nil, ErrNoActiveSession
	}

	cfg, expiresAt, err := a.store.Load()
	if err != nil {
		return nil, err
	}
	a.session = export.NewSession(cfg)

	logging.FromContext(ctx).Debug().Ctx(ctx).
		Str("component", "discovery").
		Str("session_id", a.session.ID()).
		Time("expires_at", expiresAt).
		Msg("active session loaded")
	return a.session, nil
}

// Persist writes the session's current configuration back to disk so a
// refreshed token survives the process. The expiry set by the scan is kept.
// Sessions that are no longer active are ignored.
func (a *Active) Persist(session *export.Session) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.store == nil || session == nil || session != a.session {
		return nil
	}
	if err := a.store.Update(session.Config()); err != nil {
		return fmt.Errorf("persisting active session: %w", err)
	}
	return nil
}

// ExpiresIn reports how long the persisted session remains usable.
func (a *Active) ExpiresIn() (time.Duration, error) {
	if a.store == nil {
		return 0, ErrNoActiveSession
	}
	_, expiresAt, err := a.store.Load()
	if err != nil {
		return 0, err
	}
	return max(time.Until(expiresAt), 0), nil
}

// Clear forgets the active session.
func (a *Active) Clear() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.session = nil
	if a.store == nil {
		return nil
	}
	return a.store.Remove()
}
