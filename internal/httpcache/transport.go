package httpcache

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/skycast/internal/observability"
)

// DefaultAPIHosts are the provider hosts whose responses are cached.
var DefaultAPIHosts = []string{"api.open-meteo.com", "geocoding-api.open-meteo.com"}

const defaultNetworkTimeout = 30 * time.Second

// Config configures a Transport.
type Config struct {
	// Origin is the app origin whose same-host GETs are cached. Optional.
	Origin *url.URL
	// APIHosts are additional hosts to cache. Nil means DefaultAPIHosts.
	APIHosts []string
	// NetworkTimeout bounds each network leg. The leg is detached from the caller's context
	// so a cancelled caller never aborts a cache refresh. Zero means 30s.
	NetworkTimeout time.Duration
	// Outcomes, if set, is told whether each network leg got a response.
	Outcomes OutcomeRecorder
	// Now overrides the clock in tests.
	Now func() time.Time
}

// OutcomeRecorder receives network leg outcomes. Implemented by traffic.Tracker.
type OutcomeRecorder interface {
	RecordSuccess()
	RecordError()
}

// Transport is a stale-while-revalidate http.RoundTripper. Intercepted GETs are answered from
// the static store, then the runtime store; a hit returns immediately while the network leg
// refreshes the runtime store in the background. A miss waits for the network. When the
// network fails and nothing is cached the error is returned.
type Transport struct {
	base      http.RoundTripper
	storage   Storage
	origin    *url.URL
	hosts     map[string]struct{}
	timeout   time.Duration
	outcomes  OutcomeRecorder
	now       func() time.Time
	logger    *zap.Logger
	coalescer *requestCoalescer
	wg        sync.WaitGroup
}

// NewTransport wraps base (http.DefaultTransport if nil).
func NewTransport(base http.RoundTripper, storage Storage, cfg Config, logger *zap.Logger) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	hosts := cfg.APIHosts
	if hosts == nil {
		hosts = DefaultAPIHosts
	}
	t := &Transport{
		base:     base,
		storage:  storage,
		origin:   cfg.Origin,
		hosts:    make(map[string]struct{}, len(hosts)),
		timeout:  cfg.NetworkTimeout,
		outcomes: cfg.Outcomes,
		now:      cfg.Now,
		logger:   observability.OrNop(logger),
	}
	for _, h := range hosts {
		t.hosts[strings.ToLower(h)] = struct{}{}
	}
	if t.timeout <= 0 {
		t.timeout = defaultNetworkTimeout
	}
	if t.now == nil {
		t.now = time.Now
	}
	t.coalescer = newRequestCoalescer(t.timeout)
	return t
}

// Intercepts reports whether req is handled by the cache: GET to the app origin or an API host.
func (t *Transport) Intercepts(req *http.Request) bool {
	if req.Method != http.MethodGet {
		return false
	}
	if t.origin != nil && req.URL.Scheme == t.origin.Scheme && req.URL.Host == t.origin.Host {
		return true
	}
	_, ok := t.hosts[strings.ToLower(req.URL.Hostname())]
	return ok
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if !t.Intercepts(req) {
		observability.HTTPCacheRequestsTotal.WithLabelValues("bypass").Inc()
		return t.base.RoundTrip(req)
	}
	ctx := req.Context()
	key := RequestKey(req)

	if cached := t.lookup(ctx, key); cached != nil {
		observability.HTTPCacheRequestsTotal.WithLabelValues("hit").Inc()
		t.revalidate(req, key)
		return cached.Response(req), nil
	}

	entry, _, err := t.coalescer.GetOrDo(ctx, key, t.networkLeg(req, key))
	if err != nil {
		// A concurrent request may have populated the store while this one was failing.
		if cached := t.lookup(context.WithoutCancel(ctx), key); cached != nil {
			observability.HTTPCacheRequestsTotal.WithLabelValues("offline_fallback").Inc()
			return cached.Response(req), nil
		}
		observability.HTTPCacheRequestsTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	observability.HTTPCacheRequestsTotal.WithLabelValues("miss").Inc()
	return entry.Response(req), nil
}

// Wait blocks until background revalidations and cache writes have finished.
func (t *Transport) Wait() {
	t.wg.Wait()
}

// lookup checks the static store, then the runtime store. Storage errors count as a miss.
func (t *Transport) lookup(ctx context.Context, key string) *Entry {
	for _, name := range []string{StaticStoreName, RuntimeStoreName} {
		store, err := t.storage.Open(ctx, name)
		if err != nil {
			t.logger.Warn("open cache store failed", zap.String("store", name), zap.Error(err))
			continue
		}
		e, ok, err := store.Match(ctx, key)
		if err != nil {
			t.logger.Warn("cache match failed", zap.String("store", name), zap.Error(err))
			continue
		}
		if ok {
			return e
		}
	}
	return nil
}

// revalidate refreshes key in the background. Concurrent refreshes of one key share a request.
func (t *Transport) revalidate(req *http.Request, key string) {
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		ctx := context.WithoutCancel(req.Context())
		_, shared, err := t.coalescer.GetOrDo(ctx, key, t.networkLeg(req, key))
		switch {
		case shared:
			observability.HTTPCacheRevalidationsCoalescedTotal.Inc()
		case err != nil:
			observability.HTTPCacheRevalidationsTotal.WithLabelValues("error").Inc()
			t.logger.Debug("revalidation failed, serving cached response",
				zap.String("url", req.URL.Redacted()), zap.Error(err))
		default:
			observability.HTTPCacheRevalidationsTotal.WithLabelValues("success").Inc()
		}
	}()
}

// networkLeg returns the function that fetches req from the network and, on a 2xx answer,
// writes a copy into the runtime store without delaying the caller.
func (t *Transport) networkLeg(req *http.Request, key string) func() (*Entry, error) {
	return func() (*Entry, error) {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(req.Context()), t.timeout)
		defer cancel()

		resp, err := t.base.RoundTrip(req.Clone(ctx))
		t.recordOutcome(err)
		if err != nil {
			return nil, fmt.Errorf("fetch %s: %w", req.URL.Redacted(), err)
		}
		entry, err := readEntry(resp, t.now())
		if err != nil {
			return nil, err
		}
		if entry.ok() {
			t.put(key, entry)
		}
		return entry, nil
	}
}

func (t *Transport) recordOutcome(err error) {
	if t.outcomes == nil {
		return
	}
	if err != nil {
		t.outcomes.RecordError()
		return
	}
	t.outcomes.RecordSuccess()
}

func (t *Transport) put(key string, entry *Entry) {
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
		defer cancel()
		store, err := t.storage.Open(ctx, RuntimeStoreName)
		if err == nil {
			err = store.Put(ctx, key, entry)
		}
		if err != nil {
			t.logger.Warn("cache write failed", zap.String("key", key), zap.Error(err))
		}
	}()
}

// Install prefetches the app's static assets into the static store. Every critical asset must
// fetch with a 2xx status or Install fails. Optional assets are fetched in the background and
// their failures are only logged.
func (t *Transport) Install(ctx context.Context, critical, optional []string) error {
	if len(critical) == 0 && len(optional) == 0 {
		return nil
	}
	if t.origin == nil {
		return errors.New("install static assets: no app origin configured")
	}
	store, err := t.storage.Open(ctx, StaticStoreName)
	if err != nil {
		return fmt.Errorf("install: %w", err)
	}
	for _, path := range critical {
		if err := t.precache(ctx, store, path); err != nil {
			return fmt.Errorf("install: %w", err)
		}
	}
	for _, path := range optional {
		path := path
		t.wg.Add(1)
		go func() {
			defer t.wg.Done()
			bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), t.timeout)
			defer cancel()
			if err := t.precache(bg, store, path); err != nil {
				t.logger.Warn("optional asset not cached", zap.String("path", path), zap.Error(err))
			}
		}()
	}
	return nil
}

func (t *Transport) precache(ctx context.Context, store Store, path string) error {
	u := t.origin.ResolveReference(&url.URL{Path: path})
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", path, err)
	}
	entry, err := readEntry(resp, t.now())
	if err != nil {
		return err
	}
	if !entry.ok() {
		return fmt.Errorf("fetch %s: status %d", path, entry.StatusCode)
	}
	return store.Put(ctx, RequestKey(req), entry)
}

// Activate deletes every store this version does not own and returns how many were removed.
func (t *Transport) Activate(ctx context.Context) (int, error) {
	names, err := t.storage.Keys(ctx)
	if err != nil {
		return 0, fmt.Errorf("activate: %w", err)
	}
	deleted := 0
	for _, name := range names {
		if name == StaticStoreName || name == RuntimeStoreName {
			continue
		}
		ok, err := t.storage.Delete(ctx, name)
		if err != nil {
			return deleted, fmt.Errorf("activate: delete %s: %w", name, err)
		}
		if ok {
			deleted++
			observability.HTTPCacheStoresDeletedTotal.Inc()
			t.logger.Info("deleted outdated cache store", zap.String("store", name))
		}
	}
	return deleted, nil
}
