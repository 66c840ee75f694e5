// Package search runs place searches as the user types. Each keystroke supersedes the previous
// one: the pending timer and any in-flight request are cancelled, so at most one search is
// outstanding and a superseded query never delivers results.
package search

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/skycast/internal/models"
	"github.com/kjstillabower/skycast/internal/observability"
)

// DefaultDelay is the quiet period after the last keystroke before searching.
const DefaultDelay = 300 * time.Millisecond

// Searcher is implemented by the weather client.
type Searcher interface {
	SearchPlaces(ctx context.Context, query string, count int, language string) ([]models.Location, error)
}

// Result is one delivered search outcome. Places is empty, never nil, on failure.
type Result struct {
	Query  string
	Places []models.Location
	Err    error
}

// Options tunes a Debouncer. Zero values use defaults.
type Options struct {
	Delay    time.Duration
	Count    int
	Language string
}

// Debouncer turns a stream of query edits into at most one search at a time.
type Debouncer struct {
	searcher Searcher
	opts     Options
	deliver  func(Result)
	logger   *zap.Logger

	mu      sync.Mutex
	seq     uint64
	timer   *time.Timer
	cancel  context.CancelFunc
	stopped bool
}

// New creates a Debouncer. deliver is called with d's lock held and must not call back into d.
func New(searcher Searcher, opts Options, deliver func(Result), logger *zap.Logger) *Debouncer {
	if opts.Delay <= 0 {
		opts.Delay = DefaultDelay
	}
	return &Debouncer{
		searcher: searcher,
		opts:     opts,
		deliver:  deliver,
		logger:   observability.OrNop(logger),
	}
}

// Input records a new query value. A blank query clears results immediately without a search.
func (d *Debouncer) Input(query string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	d.seq++
	d.abortLocked()

	q := strings.TrimSpace(query)
	if q == "" {
		observability.SearchRequestsTotal.WithLabelValues("empty_query").Inc()
		d.deliver(Result{Query: q, Places: []models.Location{}})
		return
	}
	seq := d.seq
	d.timer = time.AfterFunc(d.opts.Delay, func() { d.run(seq, q) })
}

// abortLocked stops the pending timer and cancels the in-flight search.
func (d *Debouncer) abortLocked() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
}

func (d *Debouncer) run(seq uint64, q string) {
	d.mu.Lock()
	if seq != d.seq || d.stopped {
		d.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	d.mu.Unlock()
	defer cancel()

	places, err := d.searcher.SearchPlaces(ctx, q, d.opts.Count, d.opts.Language)

	d.mu.Lock()
	defer d.mu.Unlock()
	if seq != d.seq || d.stopped {
		observability.SearchRequestsTotal.WithLabelValues("cancelled").Inc()
		return
	}
	d.cancel = nil
	if err != nil {
		observability.SearchRequestsTotal.WithLabelValues("error").Inc()
		d.logger.Warn("place search failed", zap.String("query", q), zap.Error(err))
		d.deliver(Result{Query: q, Places: []models.Location{}, Err: err})
		return
	}
	observability.SearchRequestsTotal.WithLabelValues("success").Inc()
	if places == nil {
		places = []models.Location{}
	}
	d.deliver(Result{Query: q, Places: places})
}

// Stop cancels any pending or in-flight search. Later Input calls are ignored.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	d.abortLocked()
}
