package policy

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"sort"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/vmihailenco/msgpack/v5"
	"github.com/zoobzio/capitan"
	"github.com/zoobzio/clockz"
)

// CacheEntry is what a CacheBackend stores per key.
type CacheEntry[V any] struct {
	Value     V
	CreatedAt time.Time
	ExpiresAt time.Time
}

// CacheStats reports the counters tracked by a CacheBackend.
type CacheStats struct {
	Hits      uint64
	Misses    uint64
	Evictions uint64
	Size      int
	MaxSize   int
}

// CacheBackend is the contract every cache implementation (in-memory or
// distributed) satisfies.
type CacheBackend[V any] interface {
	Get(ctx context.Context, key string) (CacheEntry[V], bool)
	Set(ctx context.Context, key string, value V, ttl time.Duration)
	Delete(ctx context.Context, key string) bool
	Clear(ctx context.Context)
	Stats() CacheStats
	// GetOrCompute returns the cached value for key, computing and storing
	// it via compute on a miss. Concurrent calls for the same key share the
	// in-flight computation rather than each invoking compute.
	GetOrCompute(ctx context.Context, key string, ttl time.Duration, compute func(context.Context) (V, error)) (V, error)
}

// Serde serializes cache values to bytes, the abstraction distributed
// backends use in place of storing V directly in process memory.
type Serde[V any] interface {
	Marshal(V) ([]byte, error)
	Unmarshal([]byte) (V, error)
}

// MsgpackSerde implements Serde using msgpack, the encoding pipz contracts
// use for binary payloads.
type MsgpackSerde[V any] struct{}

// Marshal implements Serde.
func (MsgpackSerde[V]) Marshal(v V) ([]byte, error) { return msgpack.Marshal(v) }

// Unmarshal implements Serde.
func (MsgpackSerde[V]) Unmarshal(data []byte) (V, error) {
	var v V
	err := msgpack.Unmarshal(data, &v)
	return v, err
}

// inflight tracks a computation shared by concurrent GetOrCompute callers
// for the same key.
type inflight[V any] struct {
	done  chan struct{}
	value V
	err   error
}

// LRUCache is the in-memory CacheBackend variant: least-recently-used
// eviction on insertion at maxSize, lazy pruning of expired entries on read.
type LRUCache[V any] struct {
	name    Name
	clock   clockz.Clock
	lru     *lru.Cache
	maxSize int

	mu        sync.Mutex
	hits      uint64
	misses    uint64
	evictions uint64
	inflights map[string]*inflight[V]
}

// NewLRUCache constructs an in-memory cache holding at most maxSize entries.
func NewLRUCache[V any](name Name, maxSize int) *LRUCache[V] {
	if maxSize < 1 {
		maxSize = 1
	}
	c := &LRUCache[V]{
		name:      name,
		clock:     clockz.RealClock,
		maxSize:   maxSize,
		inflights: make(map[string]*inflight[V]),
	}
	backing, err := lru.NewWithEvict(maxSize, func(key interface{}, value interface{}) {
		c.mu.Lock()
		c.evictions++
		c.mu.Unlock()
		_ = key
		_ = value
	})
	if err != nil {
		// lru.NewWithEvict only errors on size <= 0, already guarded above.
		panic(fmt.Sprintf("policy: lru cache %q: %v", name, err))
	}
	c.lru = backing
	return c
}

// Get implements CacheBackend.
func (c *LRUCache[V]) Get(ctx context.Context, key string) (CacheEntry[V], bool) {
	raw, ok := c.lru.Get(key)
	if !ok {
		c.mu.Lock()
		c.misses++
		c.mu.Unlock()
		capitan.Info(ctx, SignalCacheMiss, FieldName.Field(c.name), FieldCacheKey.Field(key))
		return CacheEntry[V]{}, false
	}
	entry := raw.(CacheEntry[V])
	if !entry.ExpiresAt.IsZero() && c.clock.Now().After(entry.ExpiresAt) {
		c.lru.Remove(key)
		c.mu.Lock()
		c.misses++
		c.mu.Unlock()
		capitan.Info(ctx, SignalCacheMiss, FieldName.Field(c.name), FieldCacheKey.Field(key))
		return CacheEntry[V]{}, false
	}
	c.mu.Lock()
	c.hits++
	c.mu.Unlock()
	capitan.Info(ctx, SignalCacheHit, FieldName.Field(c.name), FieldCacheKey.Field(key))
	return entry, true
}

// Set implements CacheBackend. A ttl of 0 means the entry never expires.
func (c *LRUCache[V]) Set(_ context.Context, key string, value V, ttl time.Duration) {
	now := c.clock.Now()
	entry := CacheEntry[V]{Value: value, CreatedAt: now}
	if ttl > 0 {
		entry.ExpiresAt = now.Add(ttl)
	}
	c.lru.Add(key, entry)
}

// Delete implements CacheBackend.
func (c *LRUCache[V]) Delete(_ context.Context, key string) bool {
	return c.lru.Remove(key)
}

// Clear implements CacheBackend.
func (c *LRUCache[V]) Clear(_ context.Context) {
	c.lru.Purge()
}

// Stats implements CacheBackend.
func (c *LRUCache[V]) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
		Size:      c.lru.Len(),
		MaxSize:   c.maxSize,
	}
}

// GetOrCompute implements CacheBackend, coalescing concurrent misses for
// the same key into a single compute call.
func (c *LRUCache[V]) GetOrCompute(ctx context.Context, key string, ttl time.Duration, compute func(context.Context) (V, error)) (V, error) {
	if entry, ok := c.Get(ctx, key); ok {
		return entry.Value, nil
	}

	c.mu.Lock()
	if f, ok := c.inflights[key]; ok {
		c.mu.Unlock()
		<-f.done
		return f.value, f.err
	}
	f := &inflight[V]{done: make(chan struct{})}
	c.inflights[key] = f
	c.mu.Unlock()

	value, err := compute(ctx)
	f.value, f.err = value, err
	close(f.done)

	c.mu.Lock()
	delete(c.inflights, key)
	c.mu.Unlock()

	if err == nil {
		c.Set(ctx, key, value, ttl)
	}
	return value, err
}

// CacheKey deterministically derives a cache key from a module name, an
// optional version, and its canonicalized inputs: equal logical inputs
// yield equal keys regardless of map insertion order.
func CacheKey(moduleName string, version string, inputs map[string]string) string {
	keys := make([]string, 0, len(inputs))
	for k := range inputs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%s", moduleName, version)
	for _, k := range keys {
		fmt.Fprintf(h, "\x00%s=%s", k, inputs[k])
	}
	return base64.URLEncoding.EncodeToString(h.Sum(nil))
}
