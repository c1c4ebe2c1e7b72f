package cache

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/mikey/mail-trust-filter/internal/core"
	"go.uber.org/zap"
)

func testEntry(id string, now time.Time, ttl time.Duration) *core.CacheEntry {
	v := core.Analyze(core.RawMessage{
		ID:           id,
		Snippet:      "All checks passed",
		InternalDate: "1700000000000",
		Headers: []core.Header{
			{Name: "From", Value: "GitHub <noreply@github.com>"},
			{Name: "Subject", Value: "Build passed"},
		},
	})
	return &core.CacheEntry{Key: id, Verdict: v, CachedAt: now, ExpiresAt: now.Add(ttl)}
}

type verdictCache interface {
	core.VerdictCache
	Stop()
}

func exerciseCache(t *testing.T, c verdictCache, setNow func(time.Time)) {
	t.Helper()
	ctx := context.Background()
	base := time.UnixMilli(1710000000000)
	setNow(base)

	if _, err := c.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get(missing) err = %v; want ErrNotFound", err)
	}

	if err := c.Set(ctx, testEntry("a", base, time.Hour)); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := c.Set(ctx, testEntry("b", base, time.Minute)); err != nil {
		t.Fatalf("Set: %v", err)
	}

	got, err := c.Get(ctx, "a")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Verdict.TrustScore != 85 || len(got.Verdict.Flags) != 4 {
		t.Fatalf("verdict = %+v", got.Verdict)
	}
	if !got.Verdict.ReceivedAt.Equal(time.UnixMilli(1700000000000)) {
		t.Fatalf("ReceivedAt = %v", got.Verdict.ReceivedAt)
	}
	if !got.ExpiresAt.Equal(base.Add(time.Hour)) {
		t.Fatalf("ExpiresAt = %v", got.ExpiresAt)
	}

	setNow(base.Add(2 * time.Minute))
	if _, err := c.Get(ctx, "b"); !errors.Is(err, ErrExpired) {
		t.Fatalf("Get(b) err = %v; want ErrExpired", err)
	}
	if err := c.Cleanup(ctx); err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	setNow(base)
	if _, err := c.Get(ctx, "b"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get(b) after cleanup err = %v; want ErrNotFound", err)
	}

	if err := c.Delete(ctx, "a"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := c.Get(ctx, "a"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get(a) after delete err = %v; want ErrNotFound", err)
	}
}

func TestMemoryCache(t *testing.T) {
	c := NewMemoryCache(zap.NewNop(), 0)
	defer c.Stop()
	exerciseCache(t, c, func(now time.Time) { c.now = func() time.Time { return now } })
}

func TestSQLiteCache(t *testing.T) {
	c, err := NewSQLiteCache(filepath.Join(t.TempDir(), "cache.db"), zap.NewNop(), 0)
	if err != nil {
		t.Fatalf("NewSQLiteCache: %v", err)
	}
	defer c.Stop()
	exerciseCache(t, c, func(now time.Time) { c.now = func() time.Time { return now } })
}

func TestSQLiteCacheReplacesEntry(t *testing.T) {
	c, err := NewSQLiteCache(filepath.Join(t.TempDir(), "cache.db"), zap.NewNop(), 0)
	if err != nil {
		t.Fatalf("NewSQLiteCache: %v", err)
	}
	defer c.Stop()

	ctx := context.Background()
	now := time.Now()
	e := testEntry("a", now, time.Hour)
	if err := c.Set(ctx, e); err != nil {
		t.Fatal(err)
	}
	e.Verdict.TrustScore = 12
	if err := c.Set(ctx, e); err != nil {
		t.Fatal(err)
	}
	got, err := c.Get(ctx, "a")
	if err != nil || got.Verdict.TrustScore != 12 {
		t.Fatalf("Get = %+v, %v", got, err)
	}
}

func TestMySQLCacheUnreachable(t *testing.T) {
	_, err := NewMySQLCache("user:pw@tcp(127.0.0.1:1)/mail_trust?timeout=1s", zap.NewNop(), 0)
	if err == nil {
		t.Fatal("expected connection error")
	}
}
