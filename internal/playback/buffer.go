package playback

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/raphaelgruber/portal-go/internal/metrics"
)

// Buffer is an owned handle on decoded audio. It must be released through
// the pool that issued it.
type Buffer struct {
	id       uint64
	data     []byte
	mime     string
	duration time.Duration
	released atomic.Bool
}

// Data returns the audio bytes, or nil once released.
func (b *Buffer) Data() []byte {
	if b == nil || b.released.Load() {
		return nil
	}
	return b.data
}

func (b *Buffer) MIME() string            { return b.mime }
func (b *Buffer) Duration() time.Duration { return b.duration }
func (b *Buffer) Released() bool          { return b.released.Load() }

// BufferPool issues buffers and tracks the live ones.
type BufferPool struct {
	mu      sync.Mutex
	next    uint64
	live    map[uint64]*Buffer
	metrics *metrics.Collector
}

// NewBufferPool creates a pool. mc may be nil.
func NewBufferPool(mc *metrics.Collector) *BufferPool {
	return &BufferPool{live: make(map[uint64]*Buffer), metrics: mc}
}

// Acquire wraps data in a new live buffer.
func (p *BufferPool) Acquire(data []byte, mime string, duration time.Duration) *Buffer {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.next++
	b := &Buffer{id: p.next, data: data, mime: mime, duration: duration}
	p.live[b.id] = b
	p.metrics.AddGauge(metrics.GaugeLiveBuffers, 1)
	return b
}

// Release frees b. Releasing twice or releasing nil is a no-op.
func (p *BufferPool) Release(b *Buffer) {
	if b == nil || !b.released.CompareAndSwap(false, true) {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	delete(p.live, b.id)
	p.metrics.AddGauge(metrics.GaugeLiveBuffers, -1)
}

// Live returns the number of unreleased buffers.
func (p *BufferPool) Live() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.live)
}
