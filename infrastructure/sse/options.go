package sse

import "time"

// Default configuration values.
const (
	DefaultEventBufferSize   = 256
	DefaultClientBufferSize  = 64
	DefaultHeartbeatInterval = 15 * time.Second
	DefaultShutdownTimeout   = 5 * time.Second
	DefaultMaxClients        = 100
)

// BrokerOption configures a broker.
type BrokerOption func(*broker)

// WithClientBufferSize sets the default client buffer size.
func WithClientBufferSize(size int) BrokerOption {
	return func(b *broker) {
		if size > 0 {
			b.clientBufferSize = size
		}
	}
}

// WithHeartbeatInterval sets the heartbeat interval.
func WithHeartbeatInterval(interval time.Duration) BrokerOption {
	return func(b *broker) {
		if interval > 0 {
			b.heartbeatInterval = interval
		}
	}
}

// WithMaxClients caps concurrent clients. Zero means unlimited.
func WithMaxClients(maxClients int) BrokerOption {
	return func(b *broker) {
		b.maxClients = maxClients
	}
}

// ClientOption configures a client subscription.
type ClientOption func(*ClientOptions)

// WithFilter sets an event filter for the client.
func WithFilter(filter EventFilter) ClientOption {
	return func(opts *ClientOptions) {
		opts.Filter = filter
	}
}

// WithJobFilter passes only events for jobID.
func WithJobFilter(jobID string) ClientOption {
	return WithFilter(func(event Event) bool {
		return event.ID == jobID
	})
}
