package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kjstillabower/skycast/internal/notify"
)

type fakeCache struct {
	installErr  error
	activateErr error
	mu          sync.Mutex
	calls       []string
	critical    []string
}

func (f *fakeCache) Install(ctx context.Context, critical, optional []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "install")
	f.critical = critical
	return f.installErr
}

func (f *fakeCache) Activate(ctx context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "activate")
	return 1, f.activateErr
}

func (f *fakeCache) Wait() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "wait")
}

type recordingNotifier struct {
	shown chan notify.Payload
}

func (r *recordingNotifier) Permission() notify.Permission { return notify.PermissionGranted }
func (r *recordingNotifier) RequestPermission(ctx context.Context) (notify.Permission, error) {
	return notify.PermissionGranted, nil
}
func (r *recordingNotifier) Show(ctx context.Context, p notify.Payload) error {
	r.shown <- p
	return nil
}

func TestWorker_StartLifecycle(t *testing.T) {
	cache := &fakeCache{}
	w := New(cache, nil, Config{CriticalAssets: []string{"/", "/index.html"}}, nil)
	assert.Equal(t, StateNew, w.State())
	_, ok := w.Registration()
	assert.False(t, ok)

	require.NoError(t, w.Start(context.Background()))
	assert.Equal(t, StateActive, w.State())
	assert.Equal(t, []string{"install", "activate"}, cache.calls)
	assert.Equal(t, []string{"/", "/index.html"}, cache.critical)
	reg, ok := w.Registration()
	require.True(t, ok)
	assert.True(t, reg.Active())

	assert.ErrorIs(t, w.Start(context.Background()), ErrAlreadyStarted)

	w.Stop()
	assert.Equal(t, StateStopped, w.State())
	assert.Equal(t, "wait", cache.calls[len(cache.calls)-1])
	assert.ErrorIs(t, w.PostMessage(notify.Message{Type: notify.MessageTypeShowAlert}), ErrNotActive)
}

func TestWorker_InstallFailure(t *testing.T) {
	cache := &fakeCache{installErr: errors.New("index.html: status 404")}
	w := New(cache, nil, Config{}, nil)

	err := w.Start(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateFailed, w.State())
	assert.Equal(t, []string{"install"}, cache.calls, "activate must not run after a failed install")
	_, ok := w.Registration()
	assert.False(t, ok)
}

func TestWorker_ActivateFailure(t *testing.T) {
	w := New(&fakeCache{activateErr: errors.New("locked")}, nil, Config{}, nil)
	require.Error(t, w.Start(context.Background()))
	assert.Equal(t, StateFailed, w.State())
}

func TestWorker_ShowsAlertWithDefaults(t *testing.T) {
	n := &recordingNotifier{shown: make(chan notify.Payload, 1)}
	w := New(&fakeCache{}, n, Config{}, nil)
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	require.NoError(t, w.PostMessage(notify.Message{
		Type:    notify.MessageTypeShowAlert,
		Payload: notify.Payload{Title: "Weather alert: Storm", Body: "Severe Storm"},
	}))

	select {
	case p := <-n.shown:
		assert.Equal(t, "Weather alert: Storm", p.Title)
		assert.Equal(t, notify.DefaultTag, p.Tag)
		assert.NotNil(t, p.Data)
		assert.Empty(t, p.Data)
	case <-time.After(2 * time.Second):
		t.Fatal("notification not shown")
	}
}

func TestWorker_IgnoresUntitledAndUnknownMessages(t *testing.T) {
	n := &recordingNotifier{shown: make(chan notify.Payload, 3)}
	w := New(&fakeCache{}, n, Config{}, nil)
	require.NoError(t, w.Start(context.Background()))

	require.NoError(t, w.PostMessage(notify.Message{Type: "PING"}))
	require.NoError(t, w.PostMessage(notify.Message{Type: notify.MessageTypeShowAlert}))
	require.NoError(t, w.PostMessage(notify.Message{Type: notify.MessageTypeShowAlert, Payload: notify.Payload{Title: "t", Tag: "custom"}}))

	// Messages are handled in order, so the first two were dropped by the time this one shows.
	select {
	case p := <-n.shown:
		assert.Equal(t, "custom", p.Tag)
	case <-time.After(2 * time.Second):
		t.Fatal("titled alert not shown")
	}
	w.Stop()
	assert.Empty(t, n.shown)
}

func TestWorker_InboxFull(t *testing.T) {
	block := make(chan struct{})
	n := &blockingNotifier{release: block, started: make(chan struct{})}
	w := New(&fakeCache{}, n, Config{InboxSize: 1}, nil)
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()
	defer close(block)

	msg := notify.Message{Type: notify.MessageTypeShowAlert, Payload: notify.Payload{Title: "t"}}
	require.NoError(t, w.PostMessage(msg))
	<-n.started
	require.NoError(t, w.PostMessage(msg))
	assert.ErrorIs(t, w.PostMessage(msg), ErrInboxFull)
}

type blockingNotifier struct {
	recordingNotifier
	release chan struct{}
	started chan struct{}
	once    sync.Once
}

func (b *blockingNotifier) Show(ctx context.Context, p notify.Payload) error {
	b.once.Do(func() { close(b.started) })
	select {
	case <-b.release:
	case <-ctx.Done():
	}
	return nil
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "active", StateActive.String())
	assert.Equal(t, "failed", StateFailed.String())
}
