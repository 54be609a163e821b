package domain

import (
	"context"
	"encoding/json"
)

// Response is a successful remote reply.
type Response struct {
	Status int
	Body   json.RawMessage
}

// RemoteClient issues calls against the authoritative store. Non-success
// statuses are returned as *RemoteError.
type RemoteClient interface {
	Get(ctx context.Context, path string) (Response, error)
	Patch(ctx context.Context, path string, body any) (Response, error)
	Post(ctx context.Context, path string, body any) (Response, error)
	Delete(ctx context.Context, path string, body any) (Response, error)
}

// NotifySeverity distinguishes user notifications.
type NotifySeverity string

// Notification severities.
const (
	NotifyError NotifySeverity = "error"
	NotifyInfo  NotifySeverity = "info"
)

// Notifier surfaces messages to the user. Calls are fire and forget.
type Notifier interface {
	Notify(message string, severity NotifySeverity)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(message string, severity NotifySeverity)

// Notify implements Notifier.
func (f NotifierFunc) Notify(message string, severity NotifySeverity) {
	f(message, severity)
}
