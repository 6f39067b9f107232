package core

import (
	"fmt"
	"testing"
	"time"
)

func TestRewriteCache_PutAndGet(t *testing.T) {
	cache := NewRewriteCache(RewriteCacheConfig{Enabled: true, MaxMemoryMB: 4})

	entry := &CachedRewrite{SQL: "SELECT 1 UNION ALL SELECT 2", Outcome: OutcomeRewritten}
	cache.Put("SELECT 1", 2, 0, "id", entry)

	got, ok := cache.Get("SELECT 1", 2, 0, "id")
	if !ok {
		t.Fatal("Expected cache hit")
	}
	if got.SQL != entry.SQL {
		t.Errorf("Expected cached SQL %q, got %q", entry.SQL, got.SQL)
	}
}

func TestRewriteCache_KeyCoversAllInputs(t *testing.T) {
	cache := NewRewriteCache(RewriteCacheConfig{Enabled: true, MaxMemoryMB: 4})
	cache.Put("SELECT 1", 2, 0, "id", &CachedRewrite{SQL: "two workers"})

	// Different workers, batch size, or key column must miss.
	if _, ok := cache.Get("SELECT 1", 3, 0, "id"); ok {
		t.Errorf("Expected miss for different worker count")
	}
	if _, ok := cache.Get("SELECT 1", 2, 10, "id"); ok {
		t.Errorf("Expected miss for different batch size")
	}
	if _, ok := cache.Get("SELECT 1", 2, 0, "row_id"); ok {
		t.Errorf("Expected miss for different key column")
	}
	if _, ok := cache.Get("SELECT 2", 2, 0, "id"); ok {
		t.Errorf("Expected miss for different statement")
	}
}

func TestRewriteCache_DisabledNeverHits(t *testing.T) {
	cache := NewRewriteCache(RewriteCacheConfig{Enabled: false})
	cache.Put("SELECT 1", 2, 0, "id", &CachedRewrite{SQL: "x"})

	if _, ok := cache.Get("SELECT 1", 2, 0, "id"); ok {
		t.Errorf("Expected disabled cache to miss")
	}
}

func TestRewriteCache_TTLExpiry(t *testing.T) {
	cache := NewRewriteCache(RewriteCacheConfig{Enabled: true, MaxMemoryMB: 4, DefaultTTL: 10 * time.Millisecond})
	cache.Put("SELECT 1", 2, 0, "id", &CachedRewrite{SQL: "x"})

	time.Sleep(20 * time.Millisecond)

	if _, ok := cache.Get("SELECT 1", 2, 0, "id"); ok {
		t.Errorf("Expected expired entry to miss")
	}
	stats := cache.GetStats()
	if stats.Misses != 1 {
		t.Errorf("Expected 1 miss, got %d", stats.Misses)
	}
}

func TestRewriteCache_EvictsWhenOverLimit(t *testing.T) {
	// MaxMemoryMB of 0 forces eviction after every insert.
	cache := NewRewriteCache(RewriteCacheConfig{Enabled: true, MaxMemoryMB: 0})

	for i := 0; i < 5; i++ {
		cache.Put(fmt.Sprintf("SELECT %d", i), 2, 0, "id", &CachedRewrite{SQL: "rewritten"})
	}

	stats := cache.GetStats()
	if stats.Evictions == 0 {
		t.Errorf("Expected evictions under a zero memory budget, got %+v", stats)
	}
	if stats.CurrentSize != 0 {
		t.Errorf("Expected empty cache, got size %d", stats.CurrentSize)
	}
}

func TestRewriteCache_ClearResets(t *testing.T) {
	cache := NewRewriteCache(RewriteCacheConfig{Enabled: true, MaxMemoryMB: 4})
	cache.Put("SELECT 1", 2, 0, "id", &CachedRewrite{SQL: "x"})

	cache.Clear()

	if _, ok := cache.Get("SELECT 1", 2, 0, "id"); ok {
		t.Errorf("Expected miss after clear")
	}
}

func TestRewriteCacheStats_HitRate(t *testing.T) {
	cache := NewRewriteCache(RewriteCacheConfig{Enabled: true, MaxMemoryMB: 4})
	cache.Put("SELECT 1", 2, 0, "id", &CachedRewrite{SQL: "x"})

	cache.Get("SELECT 1", 2, 0, "id")
	cache.Get("SELECT 2", 2, 0, "id")

	stats := cache.GetStats()
	if rate := stats.GetHitRate(); rate != 50.0 {
		t.Errorf("Expected 50%% hit rate, got %.1f", rate)
	}
}
