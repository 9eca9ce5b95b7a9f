package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nats-io/nats.go"
)

// InvalidationSubject is the NATS subject carrying cache invalidations.
const InvalidationSubject = "portal.cache.invalidate"

// Invalidation announces that listings of Kind changed on replica Origin.
type Invalidation struct {
	Kind   string `json:"kind"`
	Origin string `json:"origin"`
}

// Bus carries invalidations between server replicas.
type Bus interface {
	Publish(ctx context.Context, inv Invalidation) error
	// Subscribe registers fn and returns a function that unregisters it.
	Subscribe(fn func(Invalidation)) (func(), error)
	Close() error
}

// LocalBus delivers invalidations synchronously within one process.
type LocalBus struct {
	mu   sync.RWMutex
	next int
	subs map[int]func(Invalidation)
}

// NewLocalBus creates an empty in-process bus.
func NewLocalBus() *LocalBus {
	return &LocalBus{subs: make(map[int]func(Invalidation))}
}

func (b *LocalBus) Publish(_ context.Context, inv Invalidation) error {
	b.mu.RLock()
	subs := make([]func(Invalidation), 0, len(b.subs))
	for _, fn := range b.subs {
		subs = append(subs, fn)
	}
	b.mu.RUnlock()

	for _, fn := range subs {
		fn(inv)
	}
	return nil
}

func (b *LocalBus) Subscribe(fn func(Invalidation)) (func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.next
	b.next++
	b.subs[id] = fn
	return func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}, nil
}

func (b *LocalBus) Close() error { return nil }

// NATSBus broadcasts invalidations over a NATS subject.
type NATSBus struct {
	nc     *nats.Conn
	logger *slog.Logger
}

// NewNATSBus connects to the NATS server at url.
func NewNATSBus(url string, logger *slog.Logger) (*NATSBus, error) {
	if logger == nil {
		logger = slog.Default()
	}
	nc, err := nats.Connect(url,
		nats.Name("portal"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &NATSBus{nc: nc, logger: logger}, nil
}

func (b *NATSBus) Publish(_ context.Context, inv Invalidation) error {
	data, err := json.Marshal(inv)
	if err != nil {
		return fmt.Errorf("encode invalidation: %w", err)
	}
	if err := b.nc.Publish(InvalidationSubject, data); err != nil {
		return fmt.Errorf("publish invalidation: %w", err)
	}
	return nil
}

func (b *NATSBus) Subscribe(fn func(Invalidation)) (func(), error) {
	sub, err := b.nc.Subscribe(InvalidationSubject, func(msg *nats.Msg) {
		var inv Invalidation
		if err := json.Unmarshal(msg.Data, &inv); err != nil {
			b.logger.Warn("malformed invalidation", "error", err)
			return
		}
		fn(inv)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", InvalidationSubject, err)
	}
	return func() { _ = sub.Unsubscribe() }, nil
}

// Close drains pending messages and closes the connection.
func (b *NATSBus) Close() error {
	return b.nc.Drain()
}
