package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Harsh-BH/sentinel-judge/internal/domain"
	"github.com/Harsh-BH/sentinel-judge/internal/repository/mock"
)

func newTestClient(t *testing.T) (*miniredis.Miniredis, *goredis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

// ---- JudgingLock ----

func TestJudgingLock_AcquireRelease(t *testing.T) {
	_, client := newTestClient(t)
	lock := NewRedisJudgingLock(client)
	ctx := context.Background()

	token, ok, err := lock.Acquire(ctx, 1, 2, time.Minute)
	if err != nil || !ok || token == "" {
		t.Fatalf("first acquire: token=%q ok=%v err=%v", token, ok, err)
	}

	if _, ok, err := lock.Acquire(ctx, 1, 2, time.Minute); err != nil || ok {
		t.Fatalf("second acquire must fail: ok=%v err=%v", ok, err)
	}

	// Other pairs are independent.
	if _, ok, _ := lock.Acquire(ctx, 1, 3, time.Minute); !ok {
		t.Error("different problem should not be blocked")
	}

	if err := lock.Release(ctx, 1, 2, token); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, ok, _ := lock.Acquire(ctx, 1, 2, time.Minute); !ok {
		t.Error("acquire after release should succeed")
	}
}

func TestJudgingLock_ReleaseWithStaleToken(t *testing.T) {
	mr, client := newTestClient(t)
	lock := NewRedisJudgingLock(client)
	ctx := context.Background()

	stale, _, _ := lock.Acquire(ctx, 5, 6, time.Second)
	mr.FastForward(2 * time.Second)

	fresh, ok, _ := lock.Acquire(ctx, 5, 6, time.Minute)
	if !ok {
		t.Fatal("expected acquire after expiry")
	}

	if err := lock.Release(ctx, 5, 6, stale); err != nil {
		t.Fatalf("release: %v", err)
	}
	got, err := mr.Get(lockKey(5, 6))
	if err != nil || got != fresh {
		t.Errorf("stale release must keep the new holder's lock: got %q err=%v", got, err)
	}
}

func TestJudgingLock_TTL(t *testing.T) {
	mr, client := newTestClient(t)
	lock := NewRedisJudgingLock(client)

	_, _, _ = lock.Acquire(context.Background(), 9, 9, 30*time.Second)
	if ttl := mr.TTL(lockKey(9, 9)); ttl != 30*time.Second {
		t.Errorf("expected 30s TTL, got %v", ttl)
	}
}

func TestJudgingLock_RedisDown(t *testing.T) {
	mr, client := newTestClient(t)
	lock := NewRedisJudgingLock(client)
	mr.Close()

	if _, _, err := lock.Acquire(context.Background(), 1, 1, time.Minute); err == nil {
		t.Error("expected error when redis is unreachable")
	}
}

// ---- CachedSnippetStore ----

func TestCachedSnippetStore_CachesHitsAndMisses(t *testing.T) {
	_, client := newTestClient(t)
	backing := mock.NewSnippetStore()
	backing.Put(1, domain.LangCpp, "// USER_CODE_PLACEHOLDER")
	cache := NewCachedSnippetStore(backing, client, time.Minute, zap.NewNop())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		tpl, found, err := cache.FindTemplate(ctx, 1, domain.LangCpp)
		if err != nil || !found || tpl != "// USER_CODE_PLACEHOLDER" {
			t.Fatalf("lookup %d: %q %v %v", i, tpl, found, err)
		}
		if _, found, err := cache.FindTemplate(ctx, 1, domain.LangPython); err != nil || found {
			t.Fatalf("miss lookup %d: found=%v err=%v", i, found, err)
		}
	}

	if backing.Calls != 2 {
		t.Errorf("expected 2 backing lookups (one hit, one miss), got %d", backing.Calls)
	}
}

func TestCachedSnippetStore_TemplateWithoutMarker(t *testing.T) {
	_, client := newTestClient(t)
	backing := mock.NewSnippetStore()
	backing.Put(1, domain.LangPython, "print('fixed')\n")
	cache := NewCachedSnippetStore(backing, client, time.Minute, zap.NewNop())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		tpl, found, err := cache.FindTemplate(ctx, 1, domain.LangPython)
		if err != nil || !found || tpl != "print('fixed')\n" {
			t.Fatalf("lookup %d: %q %v %v", i, tpl, found, err)
		}
	}
	if backing.Calls != 1 {
		t.Errorf("expected the markerless template to be cached, got %d backing lookups", backing.Calls)
	}
}

func TestCachedSnippetStore_Expiry(t *testing.T) {
	mr, client := newTestClient(t)
	backing := mock.NewSnippetStore()
	cache := NewCachedSnippetStore(backing, client, time.Minute, zap.NewNop())
	ctx := context.Background()

	_, _, _ = cache.FindTemplate(ctx, 1, domain.LangJava)
	backing.Put(1, domain.LangJava, "/* USER_CODE_PLACEHOLDER */")

	if _, found, _ := cache.FindTemplate(ctx, 1, domain.LangJava); found {
		t.Error("cached miss should still be served before expiry")
	}

	mr.FastForward(2 * time.Minute)
	if _, found, _ := cache.FindTemplate(ctx, 1, domain.LangJava); !found {
		t.Error("expected fresh template after expiry")
	}
}

func TestCachedSnippetStore_BackingErrorNotCached(t *testing.T) {
	mr, client := newTestClient(t)
	backing := mock.NewSnippetStore()
	backing.FindTemplateFn = func(ctx context.Context, problemID int64, lang domain.Language) (string, bool, error) {
		return "", false, errors.New("db down")
	}
	cache := NewCachedSnippetStore(backing, client, time.Minute, zap.NewNop())

	if _, _, err := cache.FindTemplate(context.Background(), 1, domain.LangC); err == nil {
		t.Fatal("expected backing error")
	}
	if mr.Exists(snippetKey(1, domain.LangC)) {
		t.Error("errors must not be cached")
	}
}

func TestCachedSnippetStore_RedisDownFallsThrough(t *testing.T) {
	mr, client := newTestClient(t)
	backing := mock.NewSnippetStore()
	backing.Put(2, domain.LangC, "// USER_CODE_PLACEHOLDER")
	cache := NewCachedSnippetStore(backing, client, time.Minute, zap.NewNop())
	mr.Close()

	tpl, found, err := cache.FindTemplate(context.Background(), 2, domain.LangC)
	if err != nil || !found || tpl != "// USER_CODE_PLACEHOLDER" {
		t.Errorf("expected backing result, got %q %v %v", tpl, found, err)
	}
}
