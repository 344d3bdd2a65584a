package llm

import "errors"

// The gateway's closed error taxonomy. Decode-level failures are never
// retried inside the pipeline; they terminate the exchange and surface to
// the client as a single terminal error frame. Classification happens via
// errors.Is against these sentinels.
var (
	// ErrUpstreamMalformed indicates an upstream chunk failed to parse.
	ErrUpstreamMalformed = errors.New("upstream stream malformed")

	// ErrUpstreamClosedEarly indicates the upstream connection ended before
	// a finish event was seen.
	ErrUpstreamClosedEarly = errors.New("upstream closed before finish")

	// ErrUpstreamTransport indicates a connection-level failure talking to
	// the upstream provider.
	ErrUpstreamTransport = errors.New("upstream transport error")

	// ErrClientDisconnected indicates the downstream client went away
	// mid-stream. The exchange is cancelled silently.
	ErrClientDisconnected = errors.New("client disconnected")

	// ErrConfigurationMissing indicates an unknown provider or model id.
	// Detected before the pipeline starts.
	ErrConfigurationMissing = errors.New("unknown provider or model")
)

// ErrorKind maps a pipeline error to its canonical wire name, so clients can
// distinguish upstream failure from client-side misuse.
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, ErrUpstreamMalformed):
		return "upstream_malformed"
	case errors.Is(err, ErrUpstreamClosedEarly):
		return "upstream_closed_early"
	case errors.Is(err, ErrUpstreamTransport):
		return "upstream_transport_error"
	case errors.Is(err, ErrClientDisconnected):
		return "client_disconnected"
	case errors.Is(err, ErrConfigurationMissing):
		return "configuration_missing"
	default:
		return "internal"
	}
}
