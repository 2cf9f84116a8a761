package cache

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func pcmPattern(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i % 7)
	}
	return b
}

func TestDiskCache_PutGet(t *testing.T) {
	dc, err := NewDiskCache(t.TempDir(), 1<<20, 3)
	if err != nil {
		t.Fatalf("NewDiskCache failed: %v", err)
	}
	defer dc.Close()

	value := pcmPattern(8192)
	if err := dc.Put("k", value); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	got, ok := dc.Get("k")
	if !ok || !bytes.Equal(got, value) {
		t.Fatal("Get returned a different value")
	}
	if dc.Size() >= int64(len(value)) {
		t.Errorf("repetitive PCM was not compressed: %d bytes on disk", dc.Size())
	}
}

func TestDiskCache_SurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	dc, err := NewDiskCache(dir, 1<<20, 3)
	if err != nil {
		t.Fatalf("NewDiskCache failed: %v", err)
	}
	value := pcmPattern(4096)
	_ = dc.Put("k", value)
	if err := dc.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := dc.Put("late", value); !errors.Is(err, ErrCacheClosed) {
		t.Errorf("Put after Close: expected ErrCacheClosed, got %v", err)
	}

	// Compression off on reopen; old compressed entries still decode.
	reopened, err := NewDiskCache(dir, 1<<20, 0)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()

	got, ok := reopened.Get("k")
	if !ok || !bytes.Equal(got, value) {
		t.Fatal("entry lost across reopen")
	}
}

func TestDiskCache_CorruptFileIsMiss(t *testing.T) {
	dir := t.TempDir()
	dc, _ := NewDiskCache(dir, 1<<20, 0)
	defer dc.Close()

	_ = dc.Put("k", []byte("abcdef"))
	if err := os.WriteFile(filepath.Join(dir, fileName("k")), []byte("abc"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, ok := dc.Get("k"); ok {
		t.Error("truncated entry returned as hit")
	}
	if dc.Contains("k") {
		t.Error("corrupt entry kept in index")
	}
	if dc.Size() != 0 {
		t.Errorf("Size = %d after dropping corrupt entry", dc.Size())
	}
}

func TestDiskCache_CapacityEviction(t *testing.T) {
	dc, _ := NewDiskCache(t.TempDir(), 100, 0)
	defer dc.Close()

	_ = dc.Put("a", make([]byte, 40))
	time.Sleep(2 * time.Millisecond)
	_ = dc.Put("b", make([]byte, 40))
	time.Sleep(2 * time.Millisecond)
	dc.Get("a")
	_ = dc.Put("c", make([]byte, 40))

	if dc.Contains("b") {
		t.Error("least recently used entry not evicted")
	}
	if !dc.Contains("a") || !dc.Contains("c") {
		t.Error("recent entries evicted")
	}
	if err := dc.Put("huge", make([]byte, 101)); !errors.Is(err, ErrItemTooLarge) {
		t.Errorf("expected ErrItemTooLarge, got %v", err)
	}
}

func TestDiskCache_RemoveOlderThan(t *testing.T) {
	dc, _ := NewDiskCache(t.TempDir(), 1<<20, 0)
	defer dc.Close()

	_ = dc.Put("old", []byte("1"))
	cutoff := time.Now().Add(time.Millisecond)
	time.Sleep(5 * time.Millisecond)
	_ = dc.Put("new", []byte("2"))

	if n := dc.RemoveOlderThan(cutoff); n != 1 {
		t.Errorf("removed %d, want 1", n)
	}
	if dc.Contains("old") || !dc.Contains("new") {
		t.Error("wrong entry removed")
	}
}

func TestDiskCache_Clear(t *testing.T) {
	dir := t.TempDir()
	dc, _ := NewDiskCache(dir, 1<<20, 0)
	defer dc.Close()

	_ = dc.Put("a", []byte("1"))
	if err := dc.Clear(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if dc.Size() != 0 || dc.Contains("a") {
		t.Error("cache not empty after Clear")
	}
	if _, err := os.Stat(filepath.Join(dir, fileName("a"))); !errors.Is(err, os.ErrNotExist) {
		t.Error("entry file not removed")
	}
}
