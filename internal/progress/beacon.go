package progress

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/rshade/healthbridge/internal/logging"
)

const defaultBeaconTimeout = 5 * time.Second

type beaconPayload struct {
	Progress string `json:"progress"`
	Email    string `json:"email"`
}

// Beacon posts the overall percentage to a progress endpoint whenever it changes.
// Posts are fire-and-forget; responses are ignored. A single sender goroutine
// posts in order and skips to the latest value when it falls behind, so the
// endpoint always sees the final percentage last.
type Beacon struct {
	client  *http.Client
	url     string
	email   string
	timeout time.Duration

	mu         sync.Mutex
	last       int
	pending    int
	pendingCtx context.Context
	sending    bool
	wg         sync.WaitGroup
}

// NewBeacon returns a beacon for url. A nil client uses http.DefaultClient.
func NewBeacon(client *http.Client, url, email string) *Beacon {
	if client == nil {
		client = http.DefaultClient
	}
	return &Beacon{
		client:  client,
		url:     url,
		email:   email,
		timeout: defaultBeaconTimeout,
		last:    -1,
		pending: -1,
	}
}

// Listener returns an aggregator listener bound to ctx for logging.
func (b *Beacon) Listener(ctx context.Context) Listener {
	return func(s Snapshot) { b.Notify(ctx, s) }
}

// Notify queues s.Percent() unless it equals the last value queued. It never
// blocks on the network.
func (b *Beacon) Notify(ctx context.Context, s Snapshot) {
	percent := s.Percent()

	b.mu.Lock()
	defer b.mu.Unlock()
	if percent == b.last {
		return
	}
	b.last = percent
	b.pending = percent
	b.pendingCtx = ctx
	if b.sending {
		return
	}
	b.sending = true
	b.wg.Add(1)
	go b.run()
}

// run posts queued values until none is left.
func (b *Beacon) run() {
	defer b.wg.Done()
	for {
		b.mu.Lock()
		if b.pending < 0 {
			b.sending = false
			b.pendingCtx = nil
			b.mu.Unlock()
			return
		}
		percent, ctx := b.pending, b.pendingCtx
		b.pending = -1
		b.mu.Unlock()

		b.send(ctx, percent)
	}
}

// Wait blocks until every queued post has been sent.
func (b *Beacon) Wait() {
	b.wg.Wait()
}

func (b *Beacon) send(ctx context.Context, percent int) {
	logger := logging.FromContext(ctx).With().
		Str("component", "progress").
		Str("operation", "Beacon").
		Logger()

	body, err := json.Marshal(beaconPayload{Progress: strconv.Itoa(percent), Email: b.email})
	if err != nil {
		return
	}

	// Not cancelled with ctx; bounded by the beacon timeout.
	reqCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, b.url, bytes.NewReader(body))
	if err != nil {
		logger.Debug().Ctx(ctx).Err(err).Msg("building progress beacon request")
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		logger.Debug().Ctx(ctx).Err(err).Int("percent", percent).Msg("progress beacon failed")
		return
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}
