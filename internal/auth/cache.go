// ABOUTME: Bounded TTL cache of recent positive account validations
// ABOUTME: Keys combine the account with a password digest so plain passwords are never held

package auth

import (
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// DefaultCacheSize bounds a ValidationCache created with a non-positive size.
const DefaultCacheSize = 1024

type validation struct {
	key    string
	marked time.Time
}

// ValidationCache remembers validated credential keys for a fixed TTL. The
// list is kept in mark order, oldest first, so both eviction and expiry work
// from the front.
type ValidationCache struct {
	mu      sync.Mutex
	byKey   map[string]*list.Element
	lru     *list.List
	ttl     time.Duration
	maxSize int
	clock   clockwork.Clock

	stop     chan struct{}
	stopOnce sync.Once
}

// NewValidationCache creates a cache and starts its sweeper. A nil clock means
// the real clock.
func NewValidationCache(ttl time.Duration, maxSize int, clock clockwork.Clock) *ValidationCache {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if maxSize <= 0 {
		maxSize = DefaultCacheSize
	}
	c := &ValidationCache{
		byKey:   make(map[string]*list.Element),
		lru:     list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		clock:   clock,
		stop:    make(chan struct{}),
	}
	go c.sweep()
	return c
}

// ValidationKey derives the cache key for a credential triple as answered by
// the checker identified by scope.
func ValidationKey(scope, account, password string, privileges Privileges) string {
	sum := sha256.Sum256([]byte(password))
	return scope + "\x00" + account + "\x00" + hex.EncodeToString(sum[:]) + "\x00" + strconv.Itoa(int(privileges))
}

// Check reports whether key was marked within the TTL.
func (c *ValidationCache) Check(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.byKey[key]
	return ok && c.fresh(el.Value.(*validation))
}

// Mark records key as validated now, evicting the oldest entry when full.
func (c *ValidationCache) Mark(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.byKey[key]; ok {
		el.Value.(*validation).marked = c.clock.Now()
		c.lru.MoveToBack(el)
		return
	}
	for c.lru.Len() >= c.maxSize {
		c.removeLocked(c.lru.Front())
	}
	c.byKey[key] = c.lru.PushBack(&validation{key: key, marked: c.clock.Now()})
}

// Forget drops key, used when a cached credential stops validating.
func (c *ValidationCache) Forget(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.byKey[key]; ok {
		c.removeLocked(el)
	}
}

// Len returns the number of entries, expired or not.
func (c *ValidationCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Close stops the sweeper. Safe to call more than once.
func (c *ValidationCache) Close() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *ValidationCache) fresh(v *validation) bool {
	return c.clock.Since(v.marked) < c.ttl
}

func (c *ValidationCache) removeLocked(el *list.Element) {
	if el == nil {
		return
	}
	c.lru.Remove(el)
	delete(c.byKey, el.Value.(*validation).key)
}

// expire drops entries past the TTL.
func (c *ValidationCache) expire() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for el := c.lru.Front(); el != nil && !c.fresh(el.Value.(*validation)); el = c.lru.Front() {
		c.removeLocked(el)
	}
}

func (c *ValidationCache) sweep() {
	ticker := c.clock.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.Chan():
			c.expire()
		case <-c.stop:
			return
		}
	}
}
