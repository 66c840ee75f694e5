// Package notify delivers severe-weather alerts as local notifications, through the background
// worker when one is active and in the foreground otherwise.
package notify

import "context"

// MessageTypeShowAlert is the worker message asking it to display a notification.
const MessageTypeShowAlert = "SHOW_ALERT_NOTIFICATION"

// DefaultTag groups alert notifications so a newer one replaces the older.
const DefaultTag = "weather-alert"

// Payload is the notification content.
type Payload struct {
	Title string         `json:"title"`
	Body  string         `json:"body"`
	Tag   string         `json:"tag,omitempty"`
	Icon  string         `json:"icon,omitempty"`
	Data  map[string]any `json:"data,omitempty"`
}

// Message is posted to the worker.
type Message struct {
	Type    string  `json:"type"`
	Payload Payload `json:"payload"`
}

// Permission is the platform notification permission state.
type Permission string

const (
	PermissionDefault Permission = "default"
	PermissionGranted Permission = "granted"
	PermissionDenied  Permission = "denied"
)

// Notifier is the platform notification API.
type Notifier interface {
	// Permission reports the current state without prompting.
	Permission() Permission
	// RequestPermission prompts the user. Only called on an explicit user action.
	RequestPermission(ctx context.Context) (Permission, error)
	Show(ctx context.Context, p Payload) error
}

// Registration is a background worker that can receive messages.
type Registration interface {
	Active() bool
	PostMessage(msg Message) error
}

// Registrar looks up the current worker registration, if any.
type Registrar interface {
	Registration() (Registration, bool)
}
