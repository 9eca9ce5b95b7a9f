// Package metrics provides in-memory runtime statistics collection with a
// Prometheus export.
package metrics

import (
	"math"
	"sync"
	"time"
)

// OperationMetrics holds aggregated metrics for a single operation type.
type OperationMetrics struct {
	Count     int64
	TotalTime time.Duration
	MinTime   time.Duration
	MaxTime   time.Duration

	// Token metrics (only for LLM operations)
	TotalInputTokens  int64
	TotalOutputTokens int64
	MinInputTokens    int64
	MaxInputTokens    int64
	MinOutputTokens   int64
	MaxOutputTokens   int64
}

// OperationSnapshot provides computed stats from raw metrics.
type OperationSnapshot struct {
	Count       int64   `json:"count"`
	TotalTimeMs int64   `json:"total_time_ms"`
	AvgTimeMs   float64 `json:"avg_time_ms"`
	MinTimeMs   int64   `json:"min_time_ms"`
	MaxTimeMs   int64   `json:"max_time_ms"`

	// Token stats (nil if not applicable)
	TotalInputTokens  *int64   `json:"total_input_tokens,omitempty"`
	TotalOutputTokens *int64   `json:"total_output_tokens,omitempty"`
	AvgInputTokens    *float64 `json:"avg_input_tokens,omitempty"`
	AvgOutputTokens   *float64 `json:"avg_output_tokens,omitempty"`
	MinInputTokens    *int64   `json:"min_input_tokens,omitempty"`
	MaxInputTokens    *int64   `json:"max_input_tokens,omitempty"`
	MinOutputTokens   *int64   `json:"min_output_tokens,omitempty"`
	MaxOutputTokens   *int64   `json:"max_output_tokens,omitempty"`
}

// Snapshot represents the full server statistics at a point in time.
type Snapshot struct {
	UptimeSeconds  float64            `json:"uptime_seconds"`
	LLMGenerate    *OperationSnapshot `json:"llm_generate,omitempty"`
	LLMRetry       *OperationSnapshot `json:"llm_retry,omitempty"`
	TTSSynthesize  *OperationSnapshot `json:"tts_synthesize,omitempty"`
	StoreQuery     *OperationSnapshot `json:"store_query,omitempty"`
	StoreMutate    *OperationSnapshot `json:"store_mutate,omitempty"`
	CacheHit       *OperationSnapshot `json:"cache_hit,omitempty"`
	CacheMiss      *OperationSnapshot `json:"cache_miss,omitempty"`
	ActiveSessions int64              `json:"active_sessions"`
	LiveBuffers    int64              `json:"live_buffers"`
}

// Operation names for the collector.
const (
	OpLLMGenerate   = "llm_generate"
	OpLLMRetry      = "llm_retry"
	OpTTSSynthesize = "tts_synthesize"
	OpStoreQuery    = "store_query"
	OpStoreMutate   = "store_mutate"
	OpCacheHit      = "cache_hit"
	OpCacheMiss     = "cache_miss"
)

// Gauge names for the collector.
const (
	GaugeActiveSessions = "active_sessions"
	GaugeLiveBuffers    = "live_buffers"
)

// Collector aggregates in-memory runtime statistics and mirrors them to
// Prometheus. All methods are thread-safe and safe to call on a nil Collector.
type Collector struct {
	mu        sync.RWMutex
	startTime time.Time
	ops       map[string]*OperationMetrics
	gauges    map[string]int64
	prom      *promMetrics
}

// NewCollector creates a new metrics collector.
func NewCollector() *Collector {
	return &Collector{
		startTime: time.Now(),
		ops:       make(map[string]*OperationMetrics),
		gauges:    make(map[string]int64),
		prom:      newPromMetrics(),
	}
}

// getOrCreate returns existing metrics or creates new ones for an operation.
// Caller must hold write lock.
func (c *Collector) getOrCreate(op string) *OperationMetrics {
	m, ok := c.ops[op]
	if !ok {
		m = &OperationMetrics{
			MinTime:         time.Duration(math.MaxInt64),
			MinInputTokens:  math.MaxInt64,
			MinOutputTokens: math.MaxInt64,
		}
		c.ops[op] = m
	}
	return m
}

// RecordTiming records timing for an operation.
func (c *Collector) RecordTiming(op string, duration time.Duration) {
	if c == nil {
		return
	}
	c.prom.observe(op, duration)

	c.mu.Lock()
	defer c.mu.Unlock()

	m := c.getOrCreate(op)
	m.Count++
	m.TotalTime += duration

	if duration < m.MinTime {
		m.MinTime = duration
	}
	if duration > m.MaxTime {
		m.MaxTime = duration
	}
}

// RecordLLMUsage records timing and token usage for an LLM operation.
func (c *Collector) RecordLLMUsage(op string, duration time.Duration, inputTokens, outputTokens int64) {
	if c == nil {
		return
	}
	c.prom.observe(op, duration)
	c.prom.tokens(inputTokens, outputTokens)

	c.mu.Lock()
	defer c.mu.Unlock()

	m := c.getOrCreate(op)
	m.Count++
	m.TotalTime += duration

	if duration < m.MinTime {
		m.MinTime = duration
	}
	if duration > m.MaxTime {
		m.MaxTime = duration
	}

	m.TotalInputTokens += inputTokens
	m.TotalOutputTokens += outputTokens

	if inputTokens < m.MinInputTokens {
		m.MinInputTokens = inputTokens
	}
	if inputTokens > m.MaxInputTokens {
		m.MaxInputTokens = inputTokens
	}
	if outputTokens < m.MinOutputTokens {
		m.MinOutputTokens = outputTokens
	}
	if outputTokens > m.MaxOutputTokens {
		m.MaxOutputTokens = outputTokens
	}
}

// Count increments an event counter without timing.
func (c *Collector) Count(op string) {
	c.RecordTiming(op, 0)
}

// AddGauge adjusts a gauge by delta.
func (c *Collector) AddGauge(name string, delta int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.gauges[name] += delta
	v := c.gauges[name]
	c.mu.Unlock()
	c.prom.gauge(name, v)
}

// snapshotOp creates a snapshot for an operation, returning nil if no data.
func snapshotOp(m *OperationMetrics, includeTokens bool) *OperationSnapshot {
	if m == nil || m.Count == 0 {
		return nil
	}

	snap := &OperationSnapshot{
		Count:       m.Count,
		TotalTimeMs: m.TotalTime.Milliseconds(),
		AvgTimeMs:   float64(m.TotalTime.Milliseconds()) / float64(m.Count),
		MinTimeMs:   m.MinTime.Milliseconds(),
		MaxTimeMs:   m.MaxTime.Milliseconds(),
	}

	if includeTokens && (m.TotalInputTokens > 0 || m.TotalOutputTokens > 0) {
		totalIn := m.TotalInputTokens
		totalOut := m.TotalOutputTokens
		avgIn := float64(m.TotalInputTokens) / float64(m.Count)
		avgOut := float64(m.TotalOutputTokens) / float64(m.Count)
		minIn := m.MinInputTokens
		maxIn := m.MaxInputTokens
		minOut := m.MinOutputTokens
		maxOut := m.MaxOutputTokens

		// Reset sentinel values for display
		if minIn == math.MaxInt64 {
			minIn = 0
		}
		if minOut == math.MaxInt64 {
			minOut = 0
		}

		snap.TotalInputTokens = &totalIn
		snap.TotalOutputTokens = &totalOut
		snap.AvgInputTokens = &avgIn
		snap.AvgOutputTokens = &avgOut
		snap.MinInputTokens = &minIn
		snap.MaxInputTokens = &maxIn
		snap.MinOutputTokens = &minOut
		snap.MaxOutputTokens = &maxOut
	}

	return snap
}

// Snapshot returns a point-in-time snapshot of all metrics.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	return Snapshot{
		UptimeSeconds:  time.Since(c.startTime).Seconds(),
		LLMGenerate:    snapshotOp(c.ops[OpLLMGenerate], true),
		LLMRetry:       snapshotOp(c.ops[OpLLMRetry], false),
		TTSSynthesize:  snapshotOp(c.ops[OpTTSSynthesize], false),
		StoreQuery:     snapshotOp(c.ops[OpStoreQuery], false),
		StoreMutate:    snapshotOp(c.ops[OpStoreMutate], false),
		CacheHit:       snapshotOp(c.ops[OpCacheHit], false),
		CacheMiss:      snapshotOp(c.ops[OpCacheMiss], false),
		ActiveSessions: c.gauges[GaugeActiveSessions],
		LiveBuffers:    c.gauges[GaugeLiveBuffers],
	}
}
