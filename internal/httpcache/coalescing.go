package httpcache

import (
	"context"
	"sync"
	"time"
)

// inFlightRequest tracks a single network request that multiple callers may wait for.
type inFlightRequest struct {
	mu      sync.Mutex
	result  *Entry
	err     error
	done    bool
	waiters []chan struct{}
}

func (r *inFlightRequest) outcome() (*Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.result, r.err
}

// requestCoalescer runs at most one network request per key at a time. Later callers for the
// same key wait for the running request instead of starting their own.
type requestCoalescer struct {
	mu       sync.Mutex
	inFlight map[string]*inFlightRequest
	timeout  time.Duration
}

func newRequestCoalescer(timeout time.Duration) *requestCoalescer {
	return &requestCoalescer{
		inFlight: make(map[string]*inFlightRequest),
		timeout:  timeout,
	}
}

// GetOrDo returns the result of the in-flight request for key, or runs fn if there is none.
// shared reports whether the caller joined a request started by someone else. fn runs in its
// own goroutine and is not cancelled when a waiter gives up; waiters stop waiting when ctx is
// done or the coalescer timeout passes.
func (rc *requestCoalescer) GetOrDo(ctx context.Context, key string, fn func() (*Entry, error)) (entry *Entry, shared bool, err error) {
	rc.mu.Lock()
	req, shared := rc.inFlight[key]
	if !shared {
		req = &inFlightRequest{}
		rc.inFlight[key] = req
	}
	notify := make(chan struct{})
	req.mu.Lock()
	if req.done {
		req.mu.Unlock()
		rc.mu.Unlock()
		entry, err = req.outcome()
		return entry, shared, err
	}
	req.waiters = append(req.waiters, notify)
	req.mu.Unlock()
	rc.mu.Unlock()

	if !shared {
		go func() {
			result, err := fn()

			req.mu.Lock()
			req.result = result
			req.err = err
			req.done = true
			waiters := req.waiters
			req.waiters = nil
			req.mu.Unlock()

			rc.cleanup(key)
			for _, w := range waiters {
				close(w)
			}
		}()
	}

	waitCtx, cancel := context.WithTimeout(ctx, rc.timeout)
	defer cancel()
	select {
	case <-notify:
		entry, err = req.outcome()
		return entry, shared, err
	case <-waitCtx.Done():
		return nil, shared, waitCtx.Err()
	}
}

// cleanup removes the in-flight request for key once it has completed.
func (rc *requestCoalescer) cleanup(key string) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	delete(rc.inFlight, key)
}
