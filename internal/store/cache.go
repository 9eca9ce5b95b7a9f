package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/raphaelgruber/portal-go/internal/metrics"
	"github.com/raphaelgruber/portal-go/internal/models"
)

// Cache holds List results for every cached store, keyed by kind and query.
// Mutations bump a per-kind generation so a List that started before the
// mutation never repopulates the cache with stale rows.
type Cache struct {
	mu      sync.Mutex
	lru     *lru.Cache[string, entry]
	gen     map[string]uint64
	origin  string
	bus     Bus
	unsub   func()
	logger  *slog.Logger
	metrics *metrics.Collector
}

type entry struct {
	opts ListOptions
	recs any
}

// NewCache creates a cache of size entries. bus may be nil.
func NewCache(size int, bus Bus, logger *slog.Logger, mc *metrics.Collector) (*Cache, error) {
	if size <= 0 {
		size = 256
	}
	l, err := lru.New[string, entry](size)
	if err != nil {
		return nil, fmt.Errorf("create lru: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	c := &Cache{
		lru:     l,
		gen:     make(map[string]uint64),
		origin:  models.NewRecordID(),
		bus:     bus,
		logger:  logger,
		metrics: mc,
	}
	if bus != nil {
		unsub, err := bus.Subscribe(c.onRemote)
		if err != nil {
			return nil, fmt.Errorf("subscribe invalidations: %w", err)
		}
		c.unsub = unsub
	}
	return c, nil
}

// Close stops listening for remote invalidations.
func (c *Cache) Close() {
	if c.unsub != nil {
		c.unsub()
	}
}

// Len returns the number of cached listings.
func (c *Cache) Len() int {
	return c.lru.Len()
}

// Invalidate drops every cached listing of kind, locally and on peers.
func (c *Cache) Invalidate(ctx context.Context, kind string) {
	c.invalidateLocal(kind)
	c.broadcast(ctx, kind)
}

func (c *Cache) onRemote(inv Invalidation) {
	if inv.Origin == c.origin {
		return
	}
	c.logger.Debug("remote cache invalidation", "kind", inv.Kind, "origin", inv.Origin)
	c.invalidateLocal(inv.Kind)
}

func (c *Cache) invalidateLocal(kind string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen[kind]++
	for _, k := range c.keysLocked(kind) {
		c.lru.Remove(k)
	}
}

func (c *Cache) broadcast(ctx context.Context, kind string) {
	if c.bus == nil {
		return
	}
	if err := c.bus.Publish(ctx, Invalidation{Kind: kind, Origin: c.origin}); err != nil {
		c.logger.Warn("publish cache invalidation failed", "kind", kind, "error", err)
	}
}

func (c *Cache) keysLocked(kind string) []string {
	prefix := kind + "|"
	var keys []string
	for _, k := range c.lru.Keys() {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys
}

func cacheKey(kind string, opts ListOptions) string {
	return fmt.Sprintf("%s|%s|%d", kind, opts.spec(), max(opts.Limit, 0))
}

// Cached wraps a Store with the shared Cache.
type Cached[T models.Record] struct {
	inner Store[T]
	cache *Cache
}

// NewCached wraps inner.
func NewCached[T models.Record](inner Store[T], cache *Cache) *Cached[T] {
	return &Cached[T]{inner: inner, cache: cache}
}

func (s *Cached[T]) Kind() string { return s.inner.Kind() }

func (s *Cached[T]) List(ctx context.Context, opts ListOptions) ([]T, error) {
	kind := s.Kind()
	key := cacheKey(kind, opts)

	s.cache.mu.Lock()
	e, ok := s.cache.lru.Get(key)
	gen := s.cache.gen[kind]
	s.cache.mu.Unlock()

	if ok {
		s.cache.metrics.Count(metrics.OpCacheHit)
		return cloneRecords(e.recs.([]T)), nil
	}
	s.cache.metrics.Count(metrics.OpCacheMiss)

	start := time.Now()
	recs, err := s.inner.List(ctx, opts)
	s.cache.metrics.RecordTiming(metrics.OpStoreQuery, time.Since(start))
	if err != nil {
		return nil, err
	}

	s.cache.mu.Lock()
	if s.cache.gen[kind] == gen {
		s.cache.lru.Add(key, entry{opts: opts, recs: cloneRecords(recs)})
	}
	s.cache.mu.Unlock()
	return recs, nil
}

// Create stores rec and mirrors it into cached listings of the kind.
func (s *Cached[T]) Create(ctx context.Context, rec T) (T, error) {
	start := time.Now()
	created, err := s.inner.Create(ctx, rec)
	s.cache.metrics.RecordTiming(metrics.OpStoreMutate, time.Since(start))
	if err != nil {
		return created, err
	}
	mirrored := cloneRecords([]T{created})[0]
	s.mirror(func(recs []T, opts ListOptions) ([]T, bool) {
		out := append(slices.Clone(recs), mirrored)
		sortRecords(out, opts.spec())
		return limit(out, opts.Limit), true
	})
	s.cache.broadcast(ctx, s.Kind())
	return created, nil
}

// Delete removes the record and drops it from cached listings. A full
// listing that loses a row is evicted, since the row that should replace
// it is unknown.
func (s *Cached[T]) Delete(ctx context.Context, id string) error {
	start := time.Now()
	err := s.inner.Delete(ctx, id)
	s.cache.metrics.RecordTiming(metrics.OpStoreMutate, time.Since(start))
	if err != nil {
		return err
	}
	s.mirror(func(recs []T, opts ListOptions) ([]T, bool) {
		out := slices.DeleteFunc(slices.Clone(recs), func(r T) bool { return r.RecordID() == id })
		if len(out) == len(recs) {
			return recs, true
		}
		if opts.Limit > 0 && len(recs) == opts.Limit {
			return nil, false
		}
		return out, true
	})
	s.cache.broadcast(ctx, s.Kind())
	return nil
}

// mirror applies fn to every cached listing of the kind; fn returning
// false evicts the listing. In-flight fills are fenced off.
func (s *Cached[T]) mirror(fn func(recs []T, opts ListOptions) ([]T, bool)) {
	kind := s.Kind()
	c := s.cache
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen[kind]++
	for _, k := range c.keysLocked(kind) {
		e, ok := c.lru.Peek(k)
		if !ok {
			continue
		}
		recs, ok := e.recs.([]T)
		if !ok {
			c.lru.Remove(k)
			continue
		}
		next, keep := fn(recs, e.opts)
		if !keep {
			c.lru.Remove(k)
			continue
		}
		c.lru.Add(k, entry{opts: e.opts, recs: next})
	}
}

// cloneRecords deep-copies recs so callers never share records with the
// cache. Records round-trip through their JSON form, as every backend
// stores them.
func cloneRecords[T models.Record](recs []T) []T {
	data, err := json.Marshal(recs)
	if err != nil {
		return slices.Clone(recs)
	}
	var out []T
	if err := json.Unmarshal(data, &out); err != nil || len(out) != len(recs) {
		return slices.Clone(recs)
	}
	return out
}
