package cache

import (
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLRU_Eviction(t *testing.T) {
	l := NewLRU(LRUOpts{Size: 2})
	l.Put("a", 1)
	l.Put("b", 2)

	// promote a, so b is the least recently used
	v, ok := l.Get("a")
	require.True(t, ok)
	require.Equal(t, 1, v)

	l.Put("c", 3)
	_, ok = l.Get("b")
	require.False(t, ok)
	_, ok = l.Get("a")
	require.True(t, ok)
	require.Equal(t, 2, l.Len())
}

func TestLRU_UpdateAndDelete(t *testing.T) {
	l := NewLRU(LRUOpts{Size: 2})
	l.Put("a", 1)
	l.Put("a", 2)
	v, ok := l.Get("a")
	require.True(t, ok)
	require.Equal(t, 2, v)

	l.Delete("a")
	_, ok = l.Get("a")
	require.False(t, ok)
	require.Equal(t, 0, l.Len())
	l.Delete("missing")
}

func TestLRU_TTL(t *testing.T) {
	now := time.Now()
	l := NewLRU(LRUOpts{Size: 4})
	l.now = func() time.Time { return now }

	l.Put("short", 1, WithTTL(time.Second))
	l.Put("forever", 2)

	now = now.Add(2 * time.Second)
	_, ok := l.Get("short")
	require.False(t, ok)
	_, ok = l.Get("forever")
	require.True(t, ok)
}

func TestLRU_Concurrent(t *testing.T) {
	l := NewLRU(LRUOpts{Size: 16})
	var wg sync.WaitGroup
	for w := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 500 {
				k := strconv.Itoa((w + i) % 32)
				l.Put(k, i)
				l.Get(k)
				if i%7 == 0 {
					l.Delete(k)
				}
			}
		}()
	}
	wg.Wait()
	require.LessOrEqual(t, l.Len(), 16)
}

func TestTypedCache(t *testing.T) {
	c := NewTyped[string](NewLRU(LRUOpts{}))
	c.Put("k", "v")
	v, ok := c.Get("k")
	require.True(t, ok)
	require.Equal(t, "v", v)

	raw := NewLRU(LRUOpts{})
	raw.Put("k", 1)
	_, ok = NewTyped[string](raw).Get("k")
	require.False(t, ok, "type mismatch is a miss")
}
