// Package uistate runs store operations behind a permission check and turns
// their failures into displayable error states.
package uistate

import (
	"context"
	"errors"
	"io/fs"
	"sync"

	"github.com/rshade/healthbridge/internal/healthstore"
	"github.com/rshade/healthbridge/internal/logging"
)

// Kind is the state of the last store operation.
type Kind int

// State kinds.
const (
	Uninitialized Kind = iota
	Done
	Error
)

func (k Kind) String() string {
	switch k {
	case Done:
		return "done"
	case Error:
		return "error"
	default:
		return "uninitialized"
	}
}

// State is the outcome of a store operation. Every Error state gets a fresh ID,
// so two identical failures are still two distinct states.
type State struct {
	Kind Kind
	Err  error
	ID   string
}

// Result is returned by TryWithPermissionsCheck.
type Result struct {
	State              State
	PermissionsGranted bool
}

// PermissionChecker is the subset of healthstore.Store needed for the check.
type PermissionChecker interface {
	HasPermissions(ctx context.Context, perms []healthstore.Permission) (bool, error)
}

// TryWithPermissionsCheck runs block only if every permission in perms is granted.
//
// Without the permissions, block is skipped and the state is Done with
// PermissionsGranted false. Store failures (permission denied, store
// unavailable, file system errors) from the check or from block become an Error
// state. Any other error from block is returned unchanged.
func TryWithPermissionsCheck(
	ctx context.Context,
	checker PermissionChecker,
	perms []healthstore.Permission,
	block func(ctx context.Context) error,
) (Result, error) {
	logger := logging.FromContext(ctx).With().
		Str("component", "uistate").
		Str("operation", "TryWithPermissionsCheck").
		Logger()

	granted, err := checker.HasPermissions(ctx, perms)
	if err != nil {
		if isStoreError(err) {
			return Result{State: errorState(err)}, nil
		}
		return Result{}, err
	}
	if !granted {
		logger.Debug().Ctx(ctx).Int("permissions", len(perms)).Msg("permissions not granted, skipping")
		return Result{State: State{Kind: Done}}, nil
	}

	if err = block(ctx); err != nil {
		if isStoreError(err) {
			state := errorState(err)
			logger.Warn().Ctx(ctx).Err(err).Str("error_id", state.ID).Msg("store operation failed")
			return Result{State: state, PermissionsGranted: true}, nil
		}
		return Result{PermissionsGranted: true}, err
	}

	return Result{State: State{Kind: Done}, PermissionsGranted: true}, nil
}

func errorState(err error) State {
	return State{Kind: Error, Err: err, ID: logging.NewID()}
}

// isStoreError matches the failure classes a health store is known to produce.
func isStoreError(err error) bool {
	var pathErr *fs.PathError
	return errors.Is(err, healthstore.ErrPermissionDenied) ||
		errors.Is(err, healthstore.ErrStoreUnavailable) ||
		errors.Is(err, healthstore.ErrInvalidRange) ||
		errors.As(err, &pathErr)
}

// Notifier reports each error state once, however many times it is observed.
type Notifier struct {
	mu     sync.Mutex
	lastID string
	notify func(State)
}

// NewNotifier calls notify for every not-yet-seen error state.
func NewNotifier(notify func(State)) *Notifier {
	return &Notifier{notify: notify}
}

// Observe notifies s if it is an Error whose ID differs from the last one notified.
// It reports whether a notification was sent.
func (n *Notifier) Observe(s State) bool {
	if s.Kind != Error {
		return false
	}
	n.mu.Lock()
	if s.ID == n.lastID {
		n.mu.Unlock()
		return false
	}
	n.lastID = s.ID
	n.mu.Unlock()

	n.notify(s)
	return true
}
