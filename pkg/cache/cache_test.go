package cache

import (
	"context"
	"testing"
)

func TestMemoryCache(t *testing.T) {
	c := NewMemory()
	ctx := context.Background()

	// Miss on empty cache
	val, hit := c.GetCache(ctx, "any-key")
	if hit {
		t.Error("Expected cache miss, got hit")
	}
	if val != nil {
		t.Error("Expected nil value, got bytes")
	}

	// Set then hit
	if err := c.SetCache(ctx, "any-key", []byte("data")); err != nil {
		t.Errorf("Set returned error: %v", err)
	}
	val, hit = c.GetCache(ctx, "any-key")
	if !hit {
		t.Fatal("Expected cache hit")
	}
	if string(val) != "data" {
		t.Errorf("Expected 'data', got %q", string(val))
	}
	if c.Len() != 1 {
		t.Errorf("Expected 1 entry, got %d", c.Len())
	}

	// Returned slice must be a copy
	val[0] = 'X'
	val2, _ := c.GetCache(ctx, "any-key")
	if string(val2) != "data" {
		t.Errorf("Stored value mutated through returned slice: %q", string(val2))
	}
}

func TestNopCache(t *testing.T) {
	var c Nop
	ctx := context.Background()

	if err := c.SetCache(ctx, "k", []byte("v")); err != nil {
		t.Errorf("Set returned error: %v", err)
	}
	if _, hit := c.GetCache(ctx, "k"); hit {
		t.Error("Nop cache must always miss")
	}
}
