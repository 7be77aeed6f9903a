package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
)

func newTestMiniredis(t *testing.T) (*miniredis.Miniredis, *goredis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run() error = %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
	})

	return mr, rdb
}

func TestReplayGuardAcquireOnce(t *testing.T) {
	t.Parallel()

	mr, rdb := newTestMiniredis(t)

	guard, err := NewReplayGuard(rdb, time.Minute)
	if err != nil {
		t.Fatalf("NewReplayGuard() error = %v", err)
	}

	ok, err := guard.Acquire(context.Background(), "log-1")
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if !ok {
		t.Fatal("first Acquire() should succeed")
	}

	ok, err = guard.Acquire(context.Background(), "log-1")
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if ok {
		t.Fatal("second Acquire() within cooldown should fail")
	}

	ok, err = guard.Acquire(context.Background(), "log-2")
	if err != nil || !ok {
		t.Fatalf("Acquire(log-2) = %v, %v; want true, nil", ok, err)
	}

	if ttl := mr.TTL("notify:replay:log-1"); ttl != time.Minute {
		t.Fatalf("TTL = %s, want 1m", ttl)
	}

	mr.FastForward(time.Minute + time.Second)

	ok, err = guard.Acquire(context.Background(), "log-1")
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if !ok {
		t.Fatal("Acquire() after cooldown should succeed")
	}
}

func TestReplayGuardRejectsEmptyID(t *testing.T) {
	t.Parallel()

	_, rdb := newTestMiniredis(t)
	guard, err := NewReplayGuard(rdb, 0)
	if err != nil {
		t.Fatalf("NewReplayGuard() error = %v", err)
	}
	if guard.cooldown != defaultReplayCooldown {
		t.Fatalf("cooldown = %s, want default", guard.cooldown)
	}

	if _, err := guard.Acquire(context.Background(), " "); err == nil {
		t.Fatal("expected error for empty log id")
	}
}
