package export

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRefresher_Refresh(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		payload string
		want    bool
	}{
		{"success", http.StatusOK, `{"access_token":"new"}`, true},
		{"created is not success", http.StatusCreated, `{"access_token":"new"}`, false},
		{"forbidden", http.StatusForbidden, ``, false},
		{"empty token", http.StatusOK, `{"access_token":""}`, false},
		{"missing token", http.StatusOK, `{"token":"x"}`, false},
		{"malformed body", http.StatusOK, `{not json`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			remote, srv := newFakeRemote(t)
			remote.refreshStatus = func(int) (int, string) { return tt.status, tt.payload }

			session := NewSession(testConfig(srv.URL))
			got := NewTokenRefresher(srv.Client()).Refresh(context.Background(), session)

			assert.Equal(t, tt.want, got)
			assert.Equal(t, 1, remote.refreshCount())
			if tt.want {
				assert.Equal(t, "new", session.Config().AccessToken)
				assert.Equal(t, 1, session.Config().Version)
			} else {
				assert.Equal(t, "old", session.Config().AccessToken)
				assert.Equal(t, 0, session.Config().Version)
			}
		})
	}
}

func TestTokenRefresher_NetworkFailure(t *testing.T) {
	_, srv := newFakeRemote(t)
	session := NewSession(testConfig(srv.URL))
	srv.Close()

	assert.False(t, NewTokenRefresher(nil).Refresh(context.Background(), session))
	assert.Equal(t, "old", session.Config().AccessToken)
}

func TestTokenRefresher_AlreadyRefreshed(t *testing.T) {
	remote, srv := newFakeRemote(t)
	session := NewSession(testConfig(srv.URL))
	stale := session.Config()

	_, swapped, err := session.replaceToken(stale, "from-other-task")
	require.NoError(t, err)
	require.True(t, swapped)

	ok, sent := NewTokenRefresher(srv.Client()).refreshFrom(context.Background(), session, stale)
	assert.True(t, ok)
	assert.False(t, sent)
	assert.Zero(t, remote.refreshCount())
	assert.Equal(t, "from-other-task", session.Config().AccessToken)
}

func TestTokenRefresher_RequestToken(t *testing.T) {
	_, srv := newFakeRemote(t)
	r := NewTokenRefresher(srv.Client())

	cfg := testConfig(srv.URL)
	cfg.RefreshTokenURL = "://bad"
	_, err := r.requestToken(context.Background(), cfg)
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestSession_ConcurrentRefreshSingleSwap(t *testing.T) {
	session := NewSession(ExportConfig{AccessToken: "old"})
	from := session.Config()

	var wg sync.WaitGroup
	var mu sync.Mutex
	swaps := 0
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, swapped, err := session.replaceToken(from, "new")
			require.NoError(t, err)
			if swapped {
				mu.Lock()
				swaps++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, swaps)
	assert.Equal(t, 1, session.Config().Version)
}

func TestExportConfig(t *testing.T) {
	cfg := ExportConfig{PostEndpointBase: "https://sink.example/upload/", AccessToken: "a"}

	assert.Equal(t, "https://sink.example/upload/StepsRecord", cfg.Endpoint("StepsRecord"))

	next, err := cfg.WithAccessToken("b")
	require.NoError(t, err)
	assert.Equal(t, "b", next.AccessToken)
	assert.Equal(t, 1, next.Version)
	assert.Equal(t, "a", cfg.AccessToken, "original value is not mutated")

	_, err = cfg.WithAccessToken("")
	require.ErrorIs(t, err, ErrEmptyAccessToken)
}

func TestStatusError(t *testing.T) {
	tests := []struct {
		code int
		want error
	}{
		{http.StatusUnauthorized, ErrAuthExpired},
		{http.StatusForbidden, ErrAuthExpired},
		{http.StatusNotFound, ErrRemoteRejected},
		{http.StatusInternalServerError, ErrRemoteRejected},
	}
	for _, tt := range tests {
		err := CheckStatus(tt.code)
		require.ErrorIs(t, err, tt.want)
		assert.Equal(t, tt.code, StatusCode(err))
	}

	require.NoError(t, CheckStatus(http.StatusNoContent))
	assert.Zero(t, StatusCode(errors.New("plain")))
	assert.True(t, errors.Is(ErrMalformedConfig, ErrMalformedResponse))
}
