package agent

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/thomassophiea/aura-offline/store"
)

// Fetcher performs the single network attempt for an intercepted request.
//
// Contract:
// - Exactly one attempt per call; no retries.
// - A non-success origin response is returned as a snapshot with err == nil;
//   err is reserved for transport failures (origin unreachable, timeout).
// - Implementations must be safe for concurrent use.
type Fetcher func(ctx context.Context, req Request) (store.Snapshot, error)

// MaxResponseBody caps how much of an origin response is snapshotted.
const MaxResponseBody = 32 << 20 // 32 MiB

// NewHTTPFetcher adapts an *http.Client into a Fetcher. Origin-relative
// request URLs are resolved against base. A nil client uses
// http.DefaultClient.
func NewHTTPFetcher(client *http.Client, base *url.URL) Fetcher {
	if client == nil {
		client = http.DefaultClient
	}

	return func(ctx context.Context, req Request) (store.Snapshot, error) {
		target := req.URL
		if base != nil {
			target = base.ResolveReference(req.URL)
		}

		hreq, err := http.NewRequestWithContext(ctx, req.Method, target.String(), nil)
		if err != nil {
			return store.Snapshot{}, err
		}

		resp, err := client.Do(hreq)
		if err != nil {
			return store.Snapshot{}, err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseBody))
		if err != nil {
			return store.Snapshot{}, err
		}

		return store.Snapshot{
			Status:   resp.StatusCode,
			Header:   resp.Header.Clone(),
			Body:     body,
			StoredAt: time.Now(),
		}, nil
	}
}

// WithTimeout wraps the fetcher so each attempt is bounded by d. A zero or
// negative d returns the fetcher unchanged. Timeouts surface as
// ErrFetchTimeout.
func (f Fetcher) WithTimeout(d time.Duration) Fetcher {
	if d <= 0 {
		return f
	}

	return func(ctx context.Context, req Request) (store.Snapshot, error) {
		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()

		snap, err := f(ctx, req)
		if err != nil && ctx.Err() == context.DeadlineExceeded {
			return store.Snapshot{}, ErrFetchTimeout
		}
		return snap, err
	}
}
