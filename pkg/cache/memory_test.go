package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryCacheSetGet(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()
	ctx := context.Background()

	type quote struct {
		Price string `json:"price"`
	}
	if err := mc.Set(ctx, "q", quote{Price: "101.5"}, 0); err != nil {
		t.Fatalf("set: %v", err)
	}
	var got quote
	if err := mc.Get(ctx, "q", &got); err != nil || got.Price != "101.5" {
		t.Fatalf("get = %+v, %v", got, err)
	}
	_ = mc.Delete(ctx, "q")
	if err := mc.Get(ctx, "q", &got); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("deleted key: %v", err)
	}
}

func TestMemoryCacheExpiry(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()
	ctx := context.Background()

	_ = mc.Set(ctx, "k", 1, time.Millisecond)
	time.Sleep(5 * time.Millisecond)
	var v int
	if err := mc.Get(ctx, "k", &v); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expired key returned: %v", err)
	}
}

func TestMemoryCacheEvictsLeastRecentlyUsed(t *testing.T) {
	mc := NewMemoryCache(WithMemoryMaxSize(2))
	defer mc.Close()
	ctx := context.Background()

	_ = mc.Set(ctx, "a", 1, 0)
	time.Sleep(time.Millisecond)
	_ = mc.Set(ctx, "b", 2, 0)
	time.Sleep(time.Millisecond)
	var v int
	_ = mc.Get(ctx, "a", &v)
	time.Sleep(time.Millisecond)
	_ = mc.Set(ctx, "c", 3, 0)

	if err := mc.Get(ctx, "b", &v); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("b should be evicted: %v", err)
	}
	if err := mc.Get(ctx, "a", &v); err != nil || v != 1 {
		t.Fatalf("a should survive: %v", err)
	}
}

func TestMemoryCacheLockTTL(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()
	ctx := context.Background()

	if ok, _ := mc.TryLock(ctx, "l", 2*time.Millisecond); !ok {
		t.Fatalf("first lock failed")
	}
	if ok, _ := mc.TryLock(ctx, "l", time.Minute); ok {
		t.Fatalf("lock acquired while held")
	}
	time.Sleep(5 * time.Millisecond)
	if ok, _ := mc.TryLock(ctx, "l", time.Minute); !ok {
		t.Fatalf("expired lock not reclaimed")
	}
}

func TestKey(t *testing.T) {
	if got := Key("sigtrack", "quote", "BTCUSDT", 3); got != "sigtrack:quote:BTCUSDT:3" {
		t.Fatalf("key = %q", got)
	}
}
