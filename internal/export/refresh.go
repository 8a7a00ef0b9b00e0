package export

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/rshade/healthbridge/internal/logging"
)

// maxResponseBytes bounds how much of a response body is read.
const maxResponseBytes = 1 << 20

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type refreshResponse struct {
	AccessToken string `json:"access_token"`
}

// TokenRefresher exchanges a session's refresh token for a new access token.
type TokenRefresher struct {
	client *http.Client
}

// NewTokenRefresher returns a refresher using client, or http.DefaultClient when nil.
func NewTokenRefresher(client *http.Client) *TokenRefresher {
	if client == nil {
		client = http.DefaultClient
	}
	return &TokenRefresher{client: client}
}

// Refresh requests a new access token for the session's current configuration.
// On success the session moves to a new config version. Any failure leaves the
// session untouched and returns false. It never retries.
func (r *TokenRefresher) Refresh(ctx context.Context, session *Session) bool {
	ok, _ := r.refreshFrom(ctx, session, session.Config())
	return ok
}

// refreshFrom refreshes on behalf of a request made with cfg. Callers that fail
// with the same config version share a single refresh request; callers arriving
// after the session moved past cfg.Version make none. sent reports whether this
// call issued the request.
func (r *TokenRefresher) refreshFrom(ctx context.Context, session *Session, cfg ExportConfig) (ok, sent bool) {
	logger := logging.FromContext(ctx).With().
		Str("component", "export").
		Str("operation", "RefreshToken").
		Str("session_id", session.ID()).
		Int("from_version", cfg.Version).
		Logger()

	if cur := session.Config(); cur.Version != cfg.Version {
		logger.Debug().Ctx(ctx).Int("version", cur.Version).Msg("token already refreshed by another task")
		return true, false
	}

	v, _, shared := session.refreshes.Do(strconv.Itoa(cfg.Version), func() (any, error) {
		if cur := session.Config(); cur.Version != cfg.Version {
			return true, nil
		}
		sent = true

		token, err := r.requestToken(ctx, cfg)
		if err != nil {
			logger.Warn().Ctx(ctx).Err(err).Msg("token refresh failed")
			return false, nil
		}

		next, swapped, err := session.replaceToken(cfg, token)
		if err != nil {
			logger.Warn().Ctx(ctx).Err(err).Msg("token refresh rejected")
			return false, nil
		}
		logger.Info().Ctx(ctx).Int("version", next.Version).Bool("swapped", swapped).Msg("access token refreshed")
		return true, nil
	})
	if shared && !sent {
		logger.Debug().Ctx(ctx).Msg("joined refresh started by another task")
	}
	ok, _ = v.(bool)
	return ok, sent
}

func (r *TokenRefresher) requestToken(ctx context.Context, cfg ExportConfig) (string, error) {
	body, err := json.Marshal(refreshRequest{RefreshToken: cfg.RefreshToken})
	if err != nil {
		return "", fmt.Errorf("marshalling refresh request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.RefreshTokenURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: building refresh request: %w", ErrInvalidInput, err)
	}
	req.Header.Set("Authorization", "Bearer "+cfg.AccessToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrNetworkFailure, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return "", &StatusError{Code: resp.StatusCode}
	}

	var out refreshResponse
	if err = json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: decoding refresh response: %w", ErrMalformedResponse, err)
	}
	if out.AccessToken == "" {
		return "", fmt.Errorf("%w: refresh response has no access_token", ErrMalformedResponse)
	}
	return out.AccessToken, nil
}
