// Package cache holds a TTL cache for filtered dataset views.
//
// Read traffic is dashboard-shaped: the same (company, range) view is
// requested many times between uploads, and a view only changes when an
// activation swaps the underlying dataset. Entries therefore carry a short
// TTL and are dropped eagerly for a company whenever one of its datasets is
// activated.
package cache

import (
	"strings"
	"sync"
	"time"

	"github.com/sentraview/sentraview-core/internal/record"
)

// View is one cached read result: the filtered bundles keyed by tool.
type View = map[record.ToolType]*record.Bundle

type entry struct {
	view    View
	company string
	expires time.Time
}

// ViewCache is a concurrency-safe TTL cache of filtered views.
type ViewCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]entry
	hits    uint64
	misses  uint64

	// now is swapped in tests.
	now func() time.Time
}

// NewViewCache returns a cache whose entries live for ttl.
func NewViewCache(ttl time.Duration) *ViewCache {
	return &ViewCache{
		ttl:     ttl,
		entries: make(map[string]entry),
		now:     time.Now,
	}
}

// Key builds a cache key from a company and the parts of a filter spec.
func Key(companyID string, parts ...string) string {
	return companyID + "|" + strings.Join(parts, "|")
}

// Get returns a deep copy of the cached view, so callers can mutate their
// result without poisoning the cache.
func (c *ViewCache) Get(key string) (View, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok || c.now().After(e.expires) {
		if ok {
			delete(c.entries, key)
		}
		c.misses++
		return nil, false
	}
	c.hits++
	return cloneView(e.view), true
}

// Set stores a deep copy of the view under the key, tagged with the company
// for invalidation. Expired entries are purged on the way.
func (c *ViewCache) Set(key, companyID string, view View) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for k, e := range c.entries {
		if now.After(e.expires) {
			delete(c.entries, k)
		}
	}
	c.entries[key] = entry{
		view:    cloneView(view),
		company: companyID,
		expires: now.Add(c.ttl),
	}
}

// InvalidateCompany drops every view cached for the company.
func (c *ViewCache) InvalidateCompany(companyID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, e := range c.entries {
		if e.company == companyID {
			delete(c.entries, k)
		}
	}
}

// Clear empties the cache.
func (c *ViewCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]entry)
}

// Stats reports lifetime hits and misses and the current entry count.
func (c *ViewCache) Stats() (hits, misses uint64, entries int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses, len(c.entries)
}

func cloneView(view View) View {
	out := make(View, len(view))
	for tool, b := range view {
		out[tool] = b.Clone()
	}
	return out
}
