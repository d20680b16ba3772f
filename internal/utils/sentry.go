package utils

import (
	"net/http"

	"github.com/getsentry/sentry-go"
)

// CaptureError forwards an unexpected error to Sentry when it is configured.
// Without a DSN the SDK is a no-op.
func CaptureError(r *http.Request, err error, tags map[string]string) {
	hub := sentry.CurrentHub()
	if r != nil {
		if h := sentry.GetHubFromContext(r.Context()); h != nil {
			hub = h
		}
	}
	hub.WithScope(func(scope *sentry.Scope) {
		if r != nil {
			scope.SetRequest(r)
		}
		for k, v := range tags {
			scope.SetTag(k, v)
		}
		hub.CaptureException(err)
	})
}
