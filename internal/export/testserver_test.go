package export

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type postedChunk struct {
	Path    string
	Auth    string
	Records []SampleRecord
}

type refreshCall struct {
	Auth   string
	Accept string
	Body   refreshRequest
}

// fakeRemote records uploads and refresh calls. uploadStatus and refreshStatus
// choose the response for the n-th call (0-based); nil means 200.
type fakeRemote struct {
	t *testing.T

	mu            sync.Mutex
	chunks        []postedChunk
	refreshes     []refreshCall
	uploadStatus  func(n int, auth string) int
	refreshStatus func(n int) (int, string)
}

func newFakeRemote(t *testing.T) (*fakeRemote, *httptest.Server) {
	t.Helper()
	f := &fakeRemote{t: t}
	srv := httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeRemote) serve(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	require.NoError(f.t, err)

	f.mu.Lock()
	defer f.mu.Unlock()

	if r.URL.Path == "/token/refresh" {
		var req refreshRequest
		require.NoError(f.t, json.Unmarshal(body, &req))
		n := len(f.refreshes)
		f.refreshes = append(f.refreshes, refreshCall{
			Auth:   r.Header.Get("Authorization"),
			Accept: r.Header.Get("Accept"),
			Body:   req,
		})
		status, payload := http.StatusOK, `{"access_token":"new"}`
		if f.refreshStatus != nil {
			status, payload = f.refreshStatus(n)
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(payload))
		return
	}

	require.Equal(f.t, "application/json", r.Header.Get("Content-Type"))
	var records []SampleRecord
	require.NoError(f.t, json.Unmarshal(body, &records))
	n := len(f.chunks)
	auth := r.Header.Get("Authorization")
	f.chunks = append(f.chunks, postedChunk{Path: r.URL.Path, Auth: auth, Records: records})

	status := http.StatusOK
	if f.uploadStatus != nil {
		status = f.uploadStatus(n, auth)
	}
	w.WriteHeader(status)
}

func (f *fakeRemote) chunkSizes() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	sizes := make([]int, len(f.chunks))
	for i, c := range f.chunks {
		sizes[i] = len(c.Records)
	}
	return sizes
}

func (f *fakeRemote) refreshCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.refreshes)
}

func testConfig(baseURL string) ExportConfig {
	return ExportConfig{
		PostEndpointBase: baseURL + "/export",
		AccessToken:      "old",
		RefreshToken:     "refresh-me",
		RefreshTokenURL:  baseURL + "/token/refresh",
		TokenType:        "Bearer",
		OwnerIdentifier:  "user@example.com",
	}
}

func makeRecords(n int) []SampleRecord {
	records := make([]SampleRecord, n)
	for i := range records {
		records[i] = SampleRecord{
			Value:           strings.Repeat("7", 1+i%3),
			Timestamp:       "2026-01-01T00:00:00Z",
			OwnerIdentifier: "user@example.com",
		}
	}
	return records
}
