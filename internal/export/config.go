package export

import (
	"errors"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/rshade/healthbridge/internal/logging"
)

// ErrEmptyAccessToken is returned when a refresh would leave the session without a token.
var ErrEmptyAccessToken = errors.New("access token cannot be empty")

// ExportConfig is the credential bundle served by the discovery endpoint.
// Values are immutable; a refreshed token yields a new value with Version+1.
//
//nolint:revive // ExportConfig is the established name on the wire side.
type ExportConfig struct {
	PostEndpointBase string `json:"post_here"`
	AccessToken      string `json:"access_token"`
	RefreshToken     string `json:"refresh_token"`
	RefreshTokenURL  string `json:"refresh_token_url"`
	TokenType        string `json:"token_type"`
	OwnerIdentifier  string `json:"email,omitempty"`
	Version          int    `json:"version,omitempty"`
}

// WithAccessToken returns a copy carrying token and the next version.
func (c ExportConfig) WithAccessToken(token string) (ExportConfig, error) {
	if token == "" {
		return c, ErrEmptyAccessToken
	}
	c.AccessToken = token
	c.Version++
	return c, nil
}

// Endpoint returns the upload URL for a record type.
func (c ExportConfig) Endpoint(recordType string) string {
	return strings.TrimRight(c.PostEndpointBase, "/") + "/" + recordType
}

// Session is one export session. Export tasks share a Session so that a token
// refreshed by one task is used by the chunks of every other task. A new scan
// creates a new Session instead of mutating an old one.
type Session struct {
	id      string
	current atomic.Pointer[ExportConfig]
	// refreshes allows one refresh request per config version. The remote
	// invalidates earlier tokens on every reissue.
	refreshes singleflight.Group
}

// NewSession starts a session at cfg.
func NewSession(cfg ExportConfig) *Session {
	s := &Session{id: logging.NewID()}
	s.current.Store(&cfg)
	return s
}

// ID identifies the session in logs.
func (s *Session) ID() string {
	return s.id
}

// Config returns a snapshot of the current configuration.
func (s *Session) Config() ExportConfig {
	return *s.current.Load()
}

// replaceToken swaps in token if the session is still at the version the caller
// refreshed from. It returns the config now in effect and whether this call
// performed the swap.
func (s *Session) replaceToken(from ExportConfig, token string) (ExportConfig, bool, error) {
	next, err := from.WithAccessToken(token)
	if err != nil {
		return from, false, err
	}
	for {
		cur := s.current.Load()
		if cur.Version != from.Version {
			return *cur, false, nil
		}
		if s.current.CompareAndSwap(cur, &next) {
			return next, true, nil
		}
	}
}
