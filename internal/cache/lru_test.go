package cache

import (
	"context"
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func newWithClock(size int, ttl time.Duration) (*LRU[string], *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)}
	c := New[string](size, ttl)
	c.now = clock.now
	return c, clock
}

func TestLRU_GetSet(t *testing.T) {
	c, _ := newWithClock(2, time.Minute)
	c.Set("a", "1")
	if v, ok := c.Get("a"); !ok || v != "1" {
		t.Fatalf("Get(a) = %q, %v", v, ok)
	}
	c.Set("a", "2")
	if v, _ := c.Get("a"); v != "2" {
		t.Fatalf("overwrite: got %q", v)
	}
	if c.Len() != 1 {
		t.Fatalf("Len = %d", c.Len())
	}
	c.Delete("a")
	if _, ok := c.Get("a"); ok {
		t.Fatal("deleted key still present")
	}
}

func TestLRU_EvictsLeastRecentlyUsed(t *testing.T) {
	c, _ := newWithClock(2, time.Minute)
	c.Set("a", "1")
	c.Set("b", "2")
	c.Get("a")
	c.Set("c", "3")

	if _, ok := c.Get("b"); ok {
		t.Fatal("b should have been evicted")
	}
	for _, k := range []string{"a", "c"} {
		if _, ok := c.Get(k); !ok {
			t.Fatalf("%s should be present", k)
		}
	}
}

func TestLRU_Expiry(t *testing.T) {
	c, clock := newWithClock(4, time.Minute)
	c.Set("a", "1")
	clock.t = clock.t.Add(30 * time.Second)
	c.Set("b", "2")

	clock.t = clock.t.Add(45 * time.Second)
	if _, ok := c.Get("a"); ok {
		t.Fatal("a should have expired")
	}
	if n := c.CleanExpired(); n != 0 {
		t.Fatalf("CleanExpired removed %d, want 0", n)
	}
	clock.t = clock.t.Add(time.Minute)
	if n := c.CleanExpired(); n != 1 {
		t.Fatalf("CleanExpired removed %d, want 1", n)
	}
	if c.Len() != 0 {
		t.Fatalf("Len = %d", c.Len())
	}
}

func TestSweepStopsOnCancel(t *testing.T) {
	c, _ := newWithClock(1, time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := Sweep(ctx, time.Millisecond, c); err != nil {
		t.Fatalf("Sweep: %v", err)
	}
}
