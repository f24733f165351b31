// Package cachetest provides a compliance suite that any Cache
// implementation's tests can run.
package cachetest

import (
	"context"
	"testing"
	"time"

	"github.com/Strob0t/MemCore/internal/port/cache"
)

// Run exercises the standard Cache contract against c.
func Run(t *testing.T, c cache.Cache) {
	t.Helper()
	ctx := context.Background()

	t.Run("SetAndGet", func(t *testing.T) {
		if err := c.Set(ctx, "ref:personal", []byte{0x3f, 0x80, 0x00, 0x00}, time.Minute); err != nil {
			t.Fatal(err)
		}
		val, found, err := c.Get(ctx, "ref:personal")
		if err != nil {
			t.Fatal(err)
		}
		if !found {
			t.Fatal("expected found after Set")
		}
		if len(val) != 4 {
			t.Fatalf("expected 4 bytes, got %d", len(val))
		}
	})

	t.Run("GetMiss", func(t *testing.T) {
		_, found, err := c.Get(ctx, "ref:never-warmed")
		if err != nil {
			t.Fatal(err)
		}
		if found {
			t.Fatal("expected miss for unknown key")
		}
	})

	t.Run("Delete", func(t *testing.T) {
		_ = c.Set(ctx, "query:abc", []byte("v"), time.Minute)
		if err := c.Delete(ctx, "query:abc"); err != nil {
			t.Fatal(err)
		}
		_, found, err := c.Get(ctx, "query:abc")
		if err != nil {
			t.Fatal(err)
		}
		if found {
			t.Fatal("expected miss after Delete")
		}
	})

	t.Run("Overwrite", func(t *testing.T) {
		_ = c.Set(ctx, "ref:work", []byte("v1"), time.Minute)
		_ = c.Set(ctx, "ref:work", []byte("v2"), time.Minute)
		val, found, err := c.Get(ctx, "ref:work")
		if err != nil {
			t.Fatal(err)
		}
		if !found {
			t.Fatal("expected found after overwrite")
		}
		if string(val) != "v2" {
			t.Fatalf("expected v2 after overwrite, got %s", val)
		}
	})
}
