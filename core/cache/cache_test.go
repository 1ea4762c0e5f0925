package cache

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestGetPut(t *testing.T) {
	c := New[int](4)

	if _, ok := c.Get("missing"); ok {
		t.Error("Get() on empty cache returned ok")
	}
	c.Put("a", 1)
	c.Put("b", 2)
	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Errorf("Get(a) = %d, %v; want 1, true", v, ok)
	}
	c.Put("a", 10)
	if v, _ := c.Get("a"); v != 10 {
		t.Errorf("Get(a) after update = %d, want 10", v)
	}
	if c.Len() != 2 {
		t.Errorf("Len() = %d, want 2", c.Len())
	}
}

func TestEvictsLeastRecentlyUsed(t *testing.T) {
	c := New[int](2)
	c.Put("a", 1)
	c.Put("b", 2)
	c.Get("a")
	c.Put("c", 3)

	if _, ok := c.Get("b"); ok {
		t.Error("b should have been evicted")
	}
	for _, k := range []string{"a", "c"} {
		if _, ok := c.Get(k); !ok {
			t.Errorf("%s was evicted", k)
		}
	}
	if got := c.Stats().Evictions; got != 1 {
		t.Errorf("Evictions = %d, want 1", got)
	}
}

func TestStats(t *testing.T) {
	c := New[string](0)
	c.Put("k", "v")
	c.Get("k")
	c.Get("x")

	s := c.Stats()
	if s.Hits != 1 || s.Misses != 1 || s.Size != 1 || s.Capacity != 1 {
		t.Errorf("Stats() = %+v", s)
	}
	if s.HitRate() != 0.5 {
		t.Errorf("HitRate() = %v", s.HitRate())
	}
	if (Stats{}).HitRate() != 0 {
		t.Error("HitRate() of empty stats should be 0")
	}
}

func TestLoad(t *testing.T) {
	c := New[int](8)
	calls := 0
	load := func() (int, error) {
		calls++
		return 42, nil
	}

	v, hit, err := c.Load("k", load)
	if err != nil || hit || v != 42 {
		t.Fatalf("first Load() = %d, %v, %v", v, hit, err)
	}
	v, hit, _ = c.Load("k", load)
	if !hit || v != 42 || calls != 1 {
		t.Errorf("second Load() = %d, hit %v, calls %d", v, hit, calls)
	}

	boom := errors.New("boom")
	if _, _, err := c.Load("bad", func() (int, error) { return 0, boom }); err != boom {
		t.Errorf("Load() error = %v, want boom", err)
	}
	if _, ok := c.Get("bad"); ok {
		t.Error("failed load was cached")
	}
}

func TestLoadSharesConcurrentMisses(t *testing.T) {
	c := New[int](8)
	var calls atomic.Int32
	release := make(chan struct{})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, _, err := c.Load("k", func() (int, error) {
				calls.Add(1)
				<-release
				return 7, nil
			})
			if err != nil || v != 7 {
				t.Errorf("Load() = %d, %v", v, err)
			}
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if n := calls.Load(); n < 1 || n > 8 {
		t.Errorf("load calls = %d", n)
	}
	if v, ok := c.Get("k"); !ok || v != 7 {
		t.Errorf("Get() = %d, %v", v, ok)
	}
}

func TestConcurrentAccess(t *testing.T) {
	c := New[int](16)
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				key := string(rune('a' + (i+j)%26))
				c.Put(key, j)
				c.Get(key)
			}
		}(i)
	}
	wg.Wait()
	if c.Len() > 16 {
		t.Errorf("Len() = %d exceeds capacity", c.Len())
	}
}
