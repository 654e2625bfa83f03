package cache

import (
	"testing"
	"time"
)

func TestTTLCacheGetSetDelete(t *testing.T) {
	c := NewTTLCache[string, int]()

	if _, ok := c.Get("a"); ok {
		t.Fatalf("expected miss before set")
	}

	c.Set("a", 1, time.Minute)
	v, ok := c.Get("a")
	if !ok || v != 1 {
		t.Fatalf("expected hit with value 1, got %v %v", v, ok)
	}

	c.Delete("a")
	if _, ok := c.Get("a"); ok {
		t.Fatalf("expected miss after delete")
	}
}

func TestTTLCacheExpires(t *testing.T) {
	c := NewTTLCache[string, int]()
	c.Set("a", 1, time.Millisecond)

	time.Sleep(5 * time.Millisecond)
	if _, ok := c.Get("a"); ok {
		t.Fatalf("expected entry to have expired")
	}
}
