package cache

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestMemoryCache_BasicOperations(t *testing.T) {
	cache := NewMemoryCache(1024)

	key := "test-key"
	value := []byte("test-value")

	if err := cache.Put(key, value); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	retrieved, ok := cache.Get(key)
	if !ok {
		t.Fatal("Get failed: key not found")
	}
	if string(retrieved) != string(value) {
		t.Errorf("Retrieved value mismatch: got %s, want %s", retrieved, value)
	}
	if !cache.Contains(key) {
		t.Error("Contains returned false for existing key")
	}
	if cache.Size() != int64(len(value)) {
		t.Errorf("Size mismatch: got %d, want %d", cache.Size(), len(value))
	}

	if err := cache.Delete(key); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if cache.Contains(key) {
		t.Error("Key still exists after delete")
	}
	if cache.Size() != 0 {
		t.Errorf("Size not zero after delete: %d", cache.Size())
	}
}

func TestMemoryCache_LRUEviction(t *testing.T) {
	cache := NewMemoryCache(100)

	for i := range 5 {
		if err := cache.Put(fmt.Sprintf("key-%d", i), make([]byte, 20)); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}

	// Touch key-0 and key-1 so key-2 and key-3 are the oldest.
	cache.Get("key-0")
	cache.Get("key-1")

	if err := cache.Put("key-new", make([]byte, 30)); err != nil {
		t.Fatalf("Put failed for new key: %v", err)
	}

	for _, key := range []string{"key-0", "key-1", "key-4", "key-new"} {
		if !cache.Contains(key) {
			t.Errorf("%s was evicted", key)
		}
	}
	for _, key := range []string{"key-2", "key-3"} {
		if cache.Contains(key) {
			t.Errorf("%s should have been evicted", key)
		}
	}
	if cache.Size() != 90 {
		t.Errorf("Size = %d, want 90", cache.Size())
	}
	if got := cache.Stats().Evictions; got != 2 {
		t.Errorf("Evictions = %d, want 2", got)
	}
}

func TestMemoryCache_ReplaceUpdatesSize(t *testing.T) {
	cache := NewMemoryCache(100)
	_ = cache.Put("k", make([]byte, 40))
	_ = cache.Put("k", make([]byte, 10))

	if cache.Size() != 10 {
		t.Errorf("Size = %d, want 10", cache.Size())
	}
	if got := cache.Stats().ItemCount; got != 1 {
		t.Errorf("ItemCount = %d, want 1", got)
	}
}

func TestMemoryCache_ItemTooLarge(t *testing.T) {
	cache := NewMemoryCache(10)
	if err := cache.Put("big", make([]byte, 11)); !errors.Is(err, ErrItemTooLarge) {
		t.Errorf("expected ErrItemTooLarge, got %v", err)
	}
}

func TestMemoryCache_Stats(t *testing.T) {
	cache := NewMemoryCache(100)
	_ = cache.Put("a", []byte("x"))
	cache.Get("a")
	cache.Get("a")
	cache.Get("missing")

	stats := cache.Stats()
	if stats.Hits != 2 || stats.Misses != 1 {
		t.Errorf("hits/misses = %d/%d, want 2/1", stats.Hits, stats.Misses)
	}
	if stats.HitRate < 0.66 || stats.HitRate > 0.67 {
		t.Errorf("HitRate = %f", stats.HitRate)
	}
}

func TestMemoryCache_Prune(t *testing.T) {
	cache := NewMemoryCache(100)
	_ = cache.Put("old", []byte("1"))
	time.Sleep(20 * time.Millisecond)
	_ = cache.Put("new", []byte("2"))

	if n := cache.Prune(10 * time.Millisecond); n != 1 {
		t.Errorf("Prune removed %d, want 1", n)
	}
	if cache.Contains("old") || !cache.Contains("new") {
		t.Errorf("unexpected keys after prune: %v", cache.Keys())
	}
	if cache.Size() != 1 {
		t.Errorf("Size = %d, want 1", cache.Size())
	}
}

func TestMemoryCache_Clear(t *testing.T) {
	cache := NewMemoryCache(100)
	_ = cache.Put("a", []byte("1"))
	_ = cache.Put("b", []byte("2"))
	_ = cache.Clear()

	if cache.Size() != 0 || len(cache.Keys()) != 0 {
		t.Error("cache not empty after Clear")
	}
}

func TestMemoryCache_Concurrent(t *testing.T) {
	cache := NewMemoryCache(1000)

	var wg sync.WaitGroup
	for i := range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range 100 {
				key := fmt.Sprintf("key-%d-%d", i, j%5)
				_ = cache.Put(key, make([]byte, 10))
				cache.Get(key)
			}
		}()
	}
	wg.Wait()

	if cache.Size() > 1000 {
		t.Errorf("Size %d exceeds capacity", cache.Size())
	}
}
