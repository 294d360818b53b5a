package sse

import (
	"context"
	"fmt"
	"sync"
	"time"

	infralogger "github.com/jonesrussell/north-cloud/scrape-analyzer/infrastructure/logger"
)

type broker struct {
	logger  infralogger.Logger
	mu      sync.RWMutex
	clients map[string]*client
	publish chan Event

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	clientBufferSize  int
	heartbeatInterval time.Duration
	maxClients        int
}

// NewBroker creates a broker. Call Start before publishing.
func NewBroker(logger infralogger.Logger, opts ...BrokerOption) Broker {
	b := &broker{
		logger:            logger,
		clients:           make(map[string]*client),
		publish:           make(chan Event, DefaultEventBufferSize),
		clientBufferSize:  DefaultClientBufferSize,
		heartbeatInterval: DefaultHeartbeatInterval,
		maxClients:        DefaultMaxClients,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *broker) Start(ctx context.Context) error {
	b.ctx, b.cancel = context.WithCancel(ctx)

	b.wg.Add(1)
	go b.broadcastLoop()

	b.logger.Info("SSE broker started",
		infralogger.Int("client_buffer_size", b.clientBufferSize),
		infralogger.Int("max_clients", b.maxClients),
	)
	return nil
}

func (b *broker) Stop() error {
	if b.cancel != nil {
		b.cancel()
	}

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		b.logger.Info("SSE broker stopped")
	case <-time.After(DefaultShutdownTimeout):
		b.logger.Warn("SSE broker shutdown timeout exceeded")
	}
	return nil
}

// Publish never blocks; a full buffer drops the event.
func (b *broker) Publish(ctx context.Context, event Event) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("publish cancelled: %w", ctx.Err())
	default:
	}

	select {
	case b.publish <- event:
		return nil
	default:
		return fmt.Errorf("%w: dropped %s", ErrBufferFull, event.Type)
	}
}

func (b *broker) Subscribe(ctx context.Context, opts ...ClientOption) (<-chan Event, func(), error) {
	clientOpts := ClientOptions{BufferSize: b.clientBufferSize}
	for _, opt := range opts {
		opt(&clientOpts)
	}

	c := newClient(ctx, clientOpts.BufferSize, clientOpts.Filter)

	b.mu.Lock()
	if b.maxClients > 0 && len(b.clients) >= b.maxClients {
		b.mu.Unlock()
		c.close()
		return nil, nil, ErrTooManyClients
	}
	b.clients[c.id] = c
	total := len(b.clients)
	b.mu.Unlock()

	b.logger.Debug("SSE client subscribed",
		infralogger.String("client_id", c.id),
		infralogger.Int("total_clients", total),
	)

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		<-c.ctx.Done()
		b.removeClient(c.id)
	}()

	return c.events, func() { b.removeClient(c.id) }, nil
}

// HeartbeatInterval is how often handlers write keep-alive comments.
func (b *broker) HeartbeatInterval() time.Duration {
	return b.heartbeatInterval
}

func (b *broker) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

func (b *broker) broadcastLoop() {
	defer b.wg.Done()

	for {
		select {
		case event := <-b.publish:
			b.broadcast(event)
		case <-b.ctx.Done():
			b.disconnectAll()
			return
		}
	}
}

func (b *broker) broadcast(event Event) {
	b.mu.RLock()
	clients := make([]*client, 0, len(b.clients))
	for _, c := range b.clients {
		clients = append(clients, c)
	}
	b.mu.RUnlock()

	for _, c := range clients {
		if !c.send(event) {
			b.logger.Warn("SSE client buffer full, closing slow connection",
				infralogger.String("client_id", c.id),
				infralogger.String("event_type", event.Type),
			)
			b.removeClient(c.id)
		}
	}
}

func (b *broker) removeClient(clientID string) {
	b.mu.Lock()
	c, exists := b.clients[clientID]
	delete(b.clients, clientID)
	b.mu.Unlock()

	if exists {
		c.close()
	}
}

func (b *broker) disconnectAll() {
	b.mu.Lock()
	clients := b.clients
	b.clients = make(map[string]*client)
	b.mu.Unlock()

	for _, c := range clients {
		c.close()
	}
}
