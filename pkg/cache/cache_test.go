package cache

import (
	"testing"
	"time"
)

func TestSetGet(t *testing.T) {
	c := NewInMemoryCache[string, int](time.Minute)
	c.Set("a", 1, 0)
	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Errorf("got %d, %v", v, ok)
	}
	if _, ok := c.Get("missing"); ok {
		t.Error("missing key should not hit")
	}
}

func TestExpiry(t *testing.T) {
	c := NewInMemoryCache[string, int](time.Minute)
	c.Set("a", 1, 10*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	if _, ok := c.Get("a"); ok {
		t.Error("expired entry should miss")
	}
}

func TestDeleteAndClear(t *testing.T) {
	c := NewInMemoryCache[int, string](time.Minute)
	c.Set(1, "x", 0)
	c.Set(2, "y", 0)
	c.Delete(1)
	if _, ok := c.Get(1); ok {
		t.Error("deleted key still present")
	}
	if c.Size() != 1 {
		t.Errorf("size: %d", c.Size())
	}
	c.Clear()
	if c.Size() != 0 {
		t.Errorf("size after clear: %d", c.Size())
	}
}
