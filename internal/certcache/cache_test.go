package certcache

import (
	"crypto/x509"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetPut(t *testing.T) {
	t.Parallel()

	c := New(0)
	_, ok := c.Get([]byte("issuer"))
	assert.False(t, ok)

	parent := &x509.Certificate{Raw: []byte{1}}
	c.Put([]byte("issuer"), []*x509.Certificate{parent})

	got, ok := c.Get([]byte("issuer"))
	require.True(t, ok)
	assert.Equal(t, []*x509.Certificate{parent}, got)
}

func TestEvictsLeastRecentlyUsed(t *testing.T) {
	t.Parallel()

	c := New(2)
	c.Put([]byte("a"), nil)
	c.Put([]byte("b"), nil)
	_, _ = c.Get([]byte("a"))
	c.Put([]byte("c"), nil)

	assert.Equal(t, 2, c.Len())
	_, ok := c.Get([]byte("b"))
	assert.False(t, ok, "b was least recently used")
	_, ok = c.Get([]byte("a"))
	assert.True(t, ok)
}

func TestDefaultCapacityBound(t *testing.T) {
	t.Parallel()

	c := New(DefaultCapacity)
	for i := 0; i < DefaultCapacity+10; i++ {
		c.Put([]byte(fmt.Sprint(i)), nil)
	}
	assert.Equal(t, DefaultCapacity, c.Len())
}

func TestClear(t *testing.T) {
	t.Parallel()

	c := New(4)
	c.Put([]byte("a"), nil)
	c.Clear()
	assert.Zero(t, c.Len())
}

func TestConcurrentAccess(t *testing.T) {
	t.Parallel()

	c := New(8)
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := []byte(fmt.Sprint(i % 10))
			c.Put(key, nil)
			c.Get(key)
			if i%5 == 0 {
				c.Clear()
			}
		}(i)
	}
	wg.Wait()
	assert.LessOrEqual(t, c.Len(), 8)
}
