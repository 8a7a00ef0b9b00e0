package progress

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBeacon_PostsOnPercentChange(t *testing.T) {
	var mu sync.Mutex
	var got []beaconPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p beaconPayload
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&p))
		mu.Lock()
		got = append(got, p)
		mu.Unlock()
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	beacon := NewBeacon(srv.Client(), srv.URL, "user@example.com")
	ctx := context.Background()

	beacon.Notify(ctx, Snapshot{Completed: 50, Total: 100})
	beacon.Wait()
	beacon.Notify(ctx, Snapshot{Completed: 50, Total: 100})
	beacon.Notify(ctx, Snapshot{Completed: 100, Total: 100})
	beacon.Wait()

	require.Len(t, got, 2)
	assert.Equal(t, "50", got[0].Progress)
	assert.Equal(t, "100", got[1].Progress)
	assert.Equal(t, "user@example.com", got[0].Email)
}

func TestBeacon_LastPostIsLatestValue(t *testing.T) {
	var mu sync.Mutex
	var got []string
	started := make(chan struct{}, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p beaconPayload
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&p))
		if p.Progress == "50" {
			started <- struct{}{}
			time.Sleep(100 * time.Millisecond)
		}
		mu.Lock()
		got = append(got, p.Progress)
		mu.Unlock()
	}))
	defer srv.Close()

	beacon := NewBeacon(srv.Client(), srv.URL, "")
	ctx := context.Background()

	beacon.Notify(ctx, Snapshot{Completed: 50, Total: 100})
	<-started
	beacon.Notify(ctx, Snapshot{Completed: 75, Total: 100})
	beacon.Notify(ctx, Snapshot{Completed: 100, Total: 100})
	beacon.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"50", "100"}, got, "a slow post is followed by the latest value only")
}

func TestBeacon_IgnoresFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	url := srv.URL
	srv.Close()

	beacon := NewBeacon(nil, url, "")
	beacon.Notify(context.Background(), Snapshot{Completed: 1, Total: 2})
	beacon.Wait()
}

func TestBeacon_AsListener(t *testing.T) {
	var mu sync.Mutex
	count := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		mu.Lock()
		count++
		mu.Unlock()
	}))
	defer srv.Close()

	beacon := NewBeacon(srv.Client(), srv.URL, "owner")
	agg := NewAggregator(WithListener(beacon.Listener(context.Background())))
	go agg.Run(context.Background())

	agg.Register("StepsRecord", 10)
	agg.Reporter("StepsRecord")(10, 10)
	agg.Stop()
	beacon.Wait()

	assert.GreaterOrEqual(t, count, 1)
	assert.LessOrEqual(t, count, 2, "0 percent may be skipped in favour of 100")
}
