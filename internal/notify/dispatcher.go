package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/kjstillabower/skycast/internal/observability"
)

// Channel is how an alert was delivered.
type Channel string

const (
	ChannelNone       Channel = "none"
	ChannelWorker     Channel = "worker"
	ChannelForeground Channel = "foreground"
)

// Dispatcher picks a delivery channel for alert notifications. It never prompts for
// permission and never fails the caller.
type Dispatcher struct {
	registrar Registrar
	notifier  Notifier
	logger    *zap.Logger
}

// NewDispatcher creates a Dispatcher. registrar may be nil when there is no worker.
func NewDispatcher(registrar Registrar, notifier Notifier, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{registrar: registrar, notifier: notifier, logger: observability.OrNop(logger)}
}

// Dispatch delivers p unless notifications are disabled. An active worker gets the message
// and shows it itself; otherwise the foreground notifier shows it if permission is already
// granted. A failed post to the worker falls back to the foreground path.
func (d *Dispatcher) Dispatch(ctx context.Context, enabled bool, p Payload) Channel {
	ch := d.dispatch(ctx, enabled, p)
	observability.NotificationsTotal.WithLabelValues(string(ch)).Inc()
	return ch
}

func (d *Dispatcher) dispatch(ctx context.Context, enabled bool, p Payload) Channel {
	if !enabled {
		return ChannelNone
	}
	logger := observability.LoggerFromContext(ctx, d.logger)

	if d.registrar != nil {
		if reg, ok := d.registrar.Registration(); ok && reg.Active() {
			err := reg.PostMessage(Message{Type: MessageTypeShowAlert, Payload: p})
			if err == nil {
				return ChannelWorker
			}
			logger.Warn("post to worker failed", zap.Error(err))
		}
	}

	if d.notifier == nil || d.notifier.Permission() != PermissionGranted {
		return ChannelNone
	}
	if err := d.notifier.Show(ctx, p); err != nil {
		logger.Warn("foreground notification failed", zap.Error(err))
		return ChannelNone
	}
	return ChannelForeground
}
