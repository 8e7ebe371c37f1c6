package cache

import (
	"testing"
	"time"
)

func TestSetGetDelete(t *testing.T) {
	c := NewMemoryTTLCache(8, time.Hour)

	c.Set("a", []byte("payload"), time.Minute)
	got, ok := c.Get("a")
	if !ok || string(got) != "payload" {
		t.Fatalf("Get = %q, %v", got, ok)
	}

	c.Delete("a")
	if _, ok := c.Get("a"); ok {
		t.Error("entry should be gone after Delete")
	}

	// deleting a missing key is a no-op
	c.Delete("missing")
}

func TestPerEntryTTL(t *testing.T) {
	c := NewMemoryTTLCache(8, time.Hour)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	c.Set("short", []byte("x"), time.Minute)
	if _, ok := c.Get("short"); !ok {
		t.Fatal("entry should be live before its deadline")
	}

	// a per-entry TTL shorter than the cache-wide one is honored
	now = now.Add(2 * time.Minute)
	if _, ok := c.Get("short"); ok {
		t.Error("entry should be expired after its own TTL")
	}
}

func TestNonPositiveTTLIgnored(t *testing.T) {
	c := NewMemoryTTLCache(8, time.Hour)

	c.Set("a", []byte("x"), 0)
	if _, ok := c.Get("a"); ok {
		t.Error("a zero TTL entry should never be stored")
	}
	c.Set("b", []byte("x"), -time.Second)
	if _, ok := c.Get("b"); ok {
		t.Error("a negative TTL entry should never be stored")
	}
}

func TestOverwrite(t *testing.T) {
	c := NewMemoryTTLCache(8, time.Hour)

	c.Set("a", []byte("old"), time.Minute)
	c.Set("a", []byte("new"), time.Minute)
	got, ok := c.Get("a")
	if !ok || string(got) != "new" {
		t.Errorf("Get after overwrite = %q, %v", got, ok)
	}
}
