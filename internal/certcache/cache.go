// Package certcache memoizes issuer-certificate lookups.
package certcache

import (
	"crypto/x509"
	"sync"

	"github.com/golang/groupcache/lru"
)

// DefaultCapacity is the number of issuers remembered when no capacity is given.
const DefaultCapacity = 100

// Cache is a bounded LRU from an issuer's raw distinguished name to the certificates
// carrying that subject. One mutex guards the entries and their recency order; it
// is held only for the cache operation itself.
type Cache struct {
	mu  sync.Mutex
	lru *lru.Cache
}

// New returns a cache holding at most capacity issuers.
func New(capacity int) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Cache{lru: lru.New(capacity)}
}

// Get returns the certificates cached for rawIssuer.
func (c *Cache) Get(rawIssuer []byte) ([]*x509.Certificate, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.lru.Get(string(rawIssuer))
	if !ok {
		return nil, false
	}
	return v.([]*x509.Certificate), true
}

// Put caches parents for rawIssuer, evicting the least recently used issuer when
// full.
func (c *Cache) Put(rawIssuer []byte, parents []*x509.Certificate) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Add(string(rawIssuer), append([]*x509.Certificate(nil), parents...))
}

// Clear drops every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Clear()
}

// Len returns the number of cached issuers.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}
