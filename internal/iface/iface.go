package iface

import (
	"context"
	"net/http"
)

// Doer is the outbound HTTP capability used by components that issue
// requests. The standard *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Notifier delivers a status message to an external channel. Delivery is
// best-effort: implementations never panic and never surface errors to the
// caller; failures are logged and swallowed internally.
type Notifier interface {
	Notify(ctx context.Context, message string)
}
