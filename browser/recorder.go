package browser

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/aluiziolira/marketplace-capture/parser"
)

type pendingResponse struct {
	url        string
	generation uint64
}

// DefaultDrainTimeout bounds how long Exchanges waits for body fetches that
// are still running.
const DefaultDrainTimeout = 5 * time.Second

// Recorder buffers the bodies of responses whose URL contains endpoint. It
// implements scraper.CaptureBuffer.
type Recorder struct {
	// DrainTimeout bounds the wait for in-flight body fetches in Exchanges.
	DrainTimeout time.Duration

	endpoint  string
	fetchBody func(ctx context.Context, id network.RequestID) ([]byte, error)

	mu         sync.Mutex
	generation uint64
	pending    map[network.RequestID]pendingResponse
	exchanges  []parser.Exchange
	fetching   int

	// fetched is closed and replaced whenever a body fetch completes.
	fetched chan struct{}
}

// NewRecorder returns a recorder for responses from endpoint. An empty
// endpoint records every response.
func NewRecorder(endpoint string) *Recorder {
	return &Recorder{
		DrainTimeout: DefaultDrainTimeout,
		endpoint:     endpoint,
		fetchBody:    cdpResponseBody,
		pending:      make(map[network.RequestID]pendingResponse),
		fetched:      make(chan struct{}),
	}
}

// Attach starts listening to the network events of the tab in ctx. Network
// tracking must be enabled on the tab for events to arrive.
func (r *Recorder) Attach(ctx context.Context) {
	chromedp.ListenTarget(ctx, func(ev any) {
		r.handle(ctx, ev)
	})
}

func (r *Recorder) handle(ctx context.Context, ev any) {
	switch e := ev.(type) {
	case *network.EventResponseReceived:
		if e.Response == nil || !strings.Contains(e.Response.URL, r.endpoint) {
			return
		}
		r.mu.Lock()
		r.pending[e.RequestID] = pendingResponse{url: e.Response.URL, generation: r.generation}
		r.mu.Unlock()
	case *network.EventLoadingFinished:
		r.mu.Lock()
		p, ok := r.pending[e.RequestID]
		delete(r.pending, e.RequestID)
		if ok {
			r.fetching++
		}
		r.mu.Unlock()
		if !ok {
			return
		}
		// Event handlers must not block the event loop.
		go r.collect(ctx, e.RequestID, p)
	case *network.EventLoadingFailed:
		r.mu.Lock()
		delete(r.pending, e.RequestID)
		r.mu.Unlock()
	}
}

func (r *Recorder) collect(ctx context.Context, id network.RequestID, p pendingResponse) {
	body, err := r.fetchBody(ctx, id)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.fetching--
	close(r.fetched)
	r.fetched = make(chan struct{})

	if err != nil {
		slog.Debug("response body unavailable", slog.String("url", p.url), slog.Any("error", err))
		return
	}
	if p.generation != r.generation {
		return
	}
	// The DevTools protocol hands out bodies already decoded.
	r.exchanges = append(r.exchanges, parser.Exchange{URL: p.url, Body: body, ContentEncoding: "identity"})
}

// Clear drops every buffered and in-flight exchange.
func (r *Recorder) Clear() {
	r.mu.Lock()
	r.generation++
	r.exchanges = nil
	clear(r.pending)
	r.mu.Unlock()
}

// Exchanges returns the exchanges captured since the last Clear, in
// completion order. Body fetches still running are waited for, up to
// DrainTimeout.
func (r *Recorder) Exchanges() []parser.Exchange {
	ctx, cancel := context.WithTimeout(context.Background(), r.DrainTimeout)
	defer cancel()
	if err := r.drain(ctx); err != nil {
		slog.Debug("response bodies still loading", slog.Any("error", err))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]parser.Exchange, len(r.exchanges))
	copy(out, r.exchanges)
	return out
}

// drain waits until no body fetch is running or ctx is done.
func (r *Recorder) drain(ctx context.Context) error {
	for {
		r.mu.Lock()
		if r.fetching == 0 {
			r.mu.Unlock()
			return nil
		}
		fetched := r.fetched
		r.mu.Unlock()

		select {
		case <-fetched:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func cdpResponseBody(ctx context.Context, id network.RequestID) ([]byte, error) {
	c := chromedp.FromContext(ctx)
	if c == nil || c.Target == nil {
		return nil, chromedp.ErrInvalidContext
	}
	return network.GetResponseBody(id).Do(cdp.WithExecutor(ctx, c.Target))
}
