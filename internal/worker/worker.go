// Package worker is the background worker. It owns the HTTP cache lifecycle (install, then
// activate) and a message loop that shows notifications posted by the foreground.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/kjstillabower/skycast/internal/notify"
	"github.com/kjstillabower/skycast/internal/observability"
)

// State is the worker lifecycle state.
type State int32

const (
	StateNew State = iota
	StateInstalling
	StateActivating
	StateActive
	StateStopped
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateInstalling:
		return "installing"
	case StateActivating:
		return "activating"
	case StateActive:
		return "active"
	case StateStopped:
		return "stopped"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

var (
	ErrNotActive      = errors.New("worker not active")
	ErrInboxFull      = errors.New("worker inbox full")
	ErrAlreadyStarted = errors.New("worker already started")
)

// Cache is the part of the HTTP cache the worker drives.
type Cache interface {
	Install(ctx context.Context, critical, optional []string) error
	Activate(ctx context.Context) (int, error)
	Wait()
}

// Config lists the static assets to precache and the inbox size.
type Config struct {
	CriticalAssets []string
	OptionalAssets []string
	InboxSize      int
}

// Worker runs the cache lifecycle and the notification message loop.
type Worker struct {
	cache    Cache
	notifier notify.Notifier
	cfg      Config
	logger   *zap.Logger

	mu     sync.RWMutex
	state  State
	inbox  chan notify.Message
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a Worker in StateNew.
func New(cache Cache, notifier notify.Notifier, cfg Config, logger *zap.Logger) *Worker {
	if cfg.InboxSize <= 0 {
		cfg.InboxSize = 16
	}
	return &Worker{
		cache:    cache,
		notifier: notifier,
		cfg:      cfg,
		logger:   observability.OrNop(logger),
		state:    StateNew,
	}
}

// Start installs, activates and claims, then runs the message loop until ctx is done or Stop is
// called. A failed install leaves the worker in StateFailed and returns the error; the app keeps
// working without it.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.state != StateNew {
		w.mu.Unlock()
		return ErrAlreadyStarted
	}
	w.state = StateInstalling
	w.mu.Unlock()

	if err := w.cache.Install(ctx, w.cfg.CriticalAssets, w.cfg.OptionalAssets); err != nil {
		w.setState(StateFailed)
		return fmt.Errorf("worker install: %w", err)
	}
	w.setState(StateActivating)

	deleted, err := w.cache.Activate(ctx)
	if err != nil {
		w.setState(StateFailed)
		return fmt.Errorf("worker activate: %w", err)
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	w.mu.Lock()
	w.inbox = make(chan notify.Message, w.cfg.InboxSize)
	w.cancel = cancel
	w.done = make(chan struct{})
	w.state = StateActive
	inbox, done := w.inbox, w.done
	w.mu.Unlock()

	go w.loop(loopCtx, inbox, done)
	w.logger.Info("worker active", zap.Int("stores_deleted", deleted))
	return nil
}

func (w *Worker) setState(s State) {
	w.mu.Lock()
	w.state = s
	w.mu.Unlock()
}

// State returns the lifecycle state.
func (w *Worker) State() State {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.state
}

// Active reports whether the worker is controlling and accepting messages.
func (w *Worker) Active() bool {
	return w.State() == StateActive
}

// PostMessage enqueues msg without blocking.
func (w *Worker) PostMessage(msg notify.Message) error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.state != StateActive {
		return ErrNotActive
	}
	select {
	case w.inbox <- msg:
		return nil
	default:
		return ErrInboxFull
	}
}

// Registration implements notify.Registrar.
func (w *Worker) Registration() (notify.Registration, bool) {
	if !w.Active() {
		return nil, false
	}
	return w, true
}

func (w *Worker) loop(ctx context.Context, inbox <-chan notify.Message, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-inbox:
			w.handle(ctx, msg)
		}
	}
}

// handle shows SHOW_ALERT_NOTIFICATION messages with a title. Everything else is ignored.
func (w *Worker) handle(ctx context.Context, msg notify.Message) {
	if msg.Type != notify.MessageTypeShowAlert || msg.Payload.Title == "" {
		w.logger.Debug("ignoring worker message", zap.String("type", msg.Type))
		return
	}
	p := msg.Payload
	if p.Tag == "" {
		p.Tag = notify.DefaultTag
	}
	if p.Data == nil {
		p.Data = map[string]any{}
	}
	if w.notifier == nil {
		return
	}
	if err := w.notifier.Show(ctx, p); err != nil {
		w.logger.Warn("worker notification failed", zap.String("title", p.Title), zap.Error(err))
	}
}

// Stop ends the message loop and waits for it and for outstanding cache writes.
func (w *Worker) Stop() {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	if w.state == StateActive {
		w.state = StateStopped
	}
	w.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	w.cache.Wait()
}
