package summarizer

import (
	"container/list"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"sync"
	"time"
)

type responseCache struct {
	mu         sync.Mutex
	entries    map[string]*list.Element
	order      *list.List
	maxEntries int
}

type responseCacheEntry struct {
	key       string
	text      string
	model     string
	expiresAt time.Time
}

func newResponseCache(maxEntries int) *responseCache {
	if maxEntries <= 0 {
		return nil
	}

	return &responseCache{
		entries:    make(map[string]*list.Element, maxEntries),
		order:      list.New(),
		maxEntries: maxEntries,
	}
}

func (c *responseCache) get(key string, now time.Time) (*responseCacheEntry, bool) {
	if c == nil || key == "" {
		return nil, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[key]
	if !ok {
		return nil, false
	}

	entry, ok := elem.Value.(*responseCacheEntry)
	if !ok {
		return nil, false
	}

	if now.After(entry.expiresAt) {
		c.removeElement(elem)

		return nil, false
	}

	c.order.MoveToFront(elem)

	cp := *entry

	return &cp, true
}

func (c *responseCache) set(
	key string,
	text string,
	model string,
	expiresAt time.Time,
	now time.Time,
) {
	if c == nil || key == "" || text == "" || !expiresAt.After(now) {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		entry, castOk := elem.Value.(*responseCacheEntry)
		if !castOk {
			return
		}

		entry.text = text
		entry.model = model
		entry.expiresAt = expiresAt
		c.order.MoveToFront(elem)

		return
	}

	elem := c.order.PushFront(&responseCacheEntry{
		key:       key,
		text:      text,
		model:     model,
		expiresAt: expiresAt,
	})
	c.entries[key] = elem

	c.evictExpiredLocked(now)
	c.enforceSizeLimitLocked()
}

func (c *responseCache) size() int {
	if c == nil {
		return 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.entries)
}

func (c *responseCache) evictExpiredLocked(now time.Time) {
	for elem := c.order.Back(); elem != nil; {
		prev := elem.Prev()

		entry, ok := elem.Value.(*responseCacheEntry)
		if ok && now.After(entry.expiresAt) {
			c.removeElement(elem)
		}

		elem = prev
	}
}

func (c *responseCache) enforceSizeLimitLocked() {
	for len(c.entries) > c.maxEntries {
		elem := c.order.Back()
		if elem == nil {
			return
		}
		c.removeElement(elem)
	}
}

func (c *responseCache) removeElement(elem *list.Element) {
	entry, ok := elem.Value.(*responseCacheEntry)
	if !ok {
		return
	}

	delete(c.entries, entry.key)
	c.order.Remove(elem)
}

// CachingInvoker serves repeated identical requests from an in-memory LRU
// cache. Probe requests and failures are never cached.
type CachingInvoker struct {
	inner Invoker
	cache *responseCache
	ttl   time.Duration
	now   func() time.Time
}

// NewCachingInvoker wraps inner; a non-positive size or ttl returns inner
// unchanged.
func NewCachingInvoker(inner Invoker, size int, ttl time.Duration) Invoker {
	if inner == nil || size <= 0 || ttl <= 0 {
		return inner
	}

	return &CachingInvoker{
		inner: inner,
		cache: newResponseCache(size),
		ttl:   ttl,
		now:   time.Now,
	}
}

func (c *CachingInvoker) Invoke(ctx context.Context, req Request) (*Response, error) {
	if req.Step == StepProbe {
		return c.inner.Invoke(ctx, req)
	}

	key := requestCacheKey(req)
	now := c.now()

	if entry, ok := c.cache.get(key, now); ok {
		return &Response{Text: entry.text, Model: entry.model}, nil
	}

	resp, err := c.inner.Invoke(ctx, req)
	if err != nil {
		return nil, err
	}

	c.cache.set(key, strings.TrimSpace(resp.Text), resp.Model, now.Add(c.ttl), now)

	return resp, nil
}

func requestCacheKey(req Request) string {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return ""
	}

	h := sha256.New()
	h.Write([]byte(req.Model))
	h.Write([]byte{0})
	h.Write([]byte(strconv.FormatFloat(req.Temperature, 'f', -1, 64)))
	h.Write([]byte{0})
	h.Write([]byte(strconv.FormatInt(req.MaxOutputTokens, 10)))
	h.Write([]byte{0})
	h.Write([]byte(prompt))

	return hex.EncodeToString(h.Sum(nil))
}
