package httpmiddleware

import (
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Instrument wraps handlers with otelhttp tracing and metrics. Spans are
// named "<METHOD> <operation>": otelhttp picks the name before routing
// runs, so route patterns are not available here and path segments must
// not leak into the name.
func Instrument(serviceName string) Middleware {
	return func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, serviceName,
			otelhttp.WithSpanNameFormatter(func(operation string, r *http.Request) string {
				return r.Method + " " + operation
			}),
		)
	}
}
