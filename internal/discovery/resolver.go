package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/rshade/healthbridge/internal/export"
	"github.com/rshade/healthbridge/internal/logging"
)

const maxConfigBytes = 64 << 10

// ValidateURL accepts only absolute http or https URLs with a host.
func ValidateURL(raw string) (*url.URL, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: empty url", export.ErrInvalidInput)
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("%w: %q is not a url: %w", export.ErrInvalidInput, raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: %q must use http or https", export.ErrInvalidInput, raw)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: %q has no host", export.ErrInvalidInput, raw)
	}
	return u, nil
}

// ParseConfig decodes a discovery response. post_here, access_token,
// refresh_token, refresh_token_url and token_type are required, and both URLs
// must be absolute http(s) URLs.
func ParseConfig(data []byte) (export.ExportConfig, error) {
	var cfg export.ExportConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return export.ExportConfig{}, fmt.Errorf("%w: %w", export.ErrMalformedConfig, err)
	}

	required := []struct{ name, value string }{
		{"post_here", cfg.PostEndpointBase},
		{"access_token", cfg.AccessToken},
		{"refresh_token", cfg.RefreshToken},
		{"refresh_token_url", cfg.RefreshTokenURL},
		{"token_type", cfg.TokenType},
	}
	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			return export.ExportConfig{}, fmt.Errorf("%w: missing %s", export.ErrMalformedConfig, f.name)
		}
	}
	if _, err := ValidateURL(cfg.PostEndpointBase); err != nil {
		return export.ExportConfig{}, fmt.Errorf("%w: post_here: %w", export.ErrMalformedConfig, err)
	}
	if _, err := ValidateURL(cfg.RefreshTokenURL); err != nil {
		return export.ExportConfig{}, fmt.Errorf("%w: refresh_token_url: %w", export.ErrMalformedConfig, err)
	}

	cfg.Version = 0
	return cfg, nil
}

// Resolver fetches export configurations.
type Resolver struct {
	client *http.Client
	active *Active
}

// NewResolver returns a resolver. When active is non-nil every successful
// resolution replaces the active session.
func NewResolver(client *http.Client, active *Active) *Resolver {
	if client == nil {
		client = http.DefaultClient
	}
	return &Resolver{client: client, active: active}
}

// Resolve validates scanned, fetches it and parses the configuration.
// An invalid URL fails with ErrInvalidInput before any request is made.
func (r *Resolver) Resolve(ctx context.Context, scanned string) (export.ExportConfig, error) {
	logger := logging.FromContext(ctx).With().
		Str("component", "discovery").
		Str("operation", "Resolve").
		Logger()

	u, err := ValidateURL(scanned)
	if err != nil {
		return export.ExportConfig{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return export.ExportConfig{}, fmt.Errorf("%w: %w", export.ErrInvalidInput, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return export.ExportConfig{}, fmt.Errorf("%w: %w", export.ErrNetworkFailure, err)
	}
	defer resp.Body.Close()

	if statusErr := export.CheckStatus(resp.StatusCode); statusErr != nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxConfigBytes))
		logger.Warn().Ctx(ctx).Int("status", resp.StatusCode).Str("host", u.Host).Msg("discovery rejected")
		return export.ExportConfig{}, fmt.Errorf("%w: %w", export.ErrRemoteRejected, statusErr)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxConfigBytes))
	if err != nil {
		return export.ExportConfig{}, fmt.Errorf("%w: reading body: %w", export.ErrNetworkFailure, err)
	}

	cfg, err := ParseConfig(body)
	if err != nil {
		return export.ExportConfig{}, err
	}

	if r.active != nil {
		session, replaceErr := r.active.Replace(ctx, cfg)
		if replaceErr != nil {
			return export.ExportConfig{}, replaceErr
		}
		logger.Info().Ctx(ctx).Str("session_id", session.ID()).Str("host", u.Host).Msg("export session activated")
	}
	return cfg, nil
}
