package gateway

import "time"

const defaultUpstreamTimeout = 5 * time.Minute

// Config holds the gateway server settings not derived from the profile
// store.
type Config struct {
	// ListenAddr is the address the server binds to. Falls back to the
	// store's configured listen address when empty.
	ListenAddr string

	// QueueSize bounds the per-exchange delta queue. Zero uses the
	// governor default.
	QueueSize int

	// UpstreamTimeout caps one upstream exchange end to end. Zero means
	// five minutes; reasoning models can stream for a long time.
	UpstreamTimeout time.Duration
}

func (c Config) upstreamTimeout() time.Duration {
	if c.UpstreamTimeout > 0 {
		return c.UpstreamTimeout
	}
	return defaultUpstreamTimeout
}
