package ratelimit

import (
	"testing"
	"time"

	"golang.org/x/time/rate"
)

func TestAllowWithinBurst(t *testing.T) {
	l := New(rate.Limit(1), 3)
	defer l.Stop()

	for i := 0; i < 3; i++ {
		if !l.Allow("key") {
			t.Fatalf("request %d within burst should be allowed", i)
		}
	}
	if l.Allow("key") {
		t.Error("request beyond burst should be rejected")
	}
}

func TestKeysAreIndependent(t *testing.T) {
	l := New(rate.Limit(1), 1)
	defer l.Stop()

	if !l.Allow("a") {
		t.Fatal("first request for 'a' should be allowed")
	}
	if l.Allow("a") {
		t.Error("second request for 'a' should be rejected")
	}
	if !l.Allow("b") {
		t.Error("'b' must have its own bucket")
	}
}

func TestForgetResetsBucket(t *testing.T) {
	l := New(rate.Limit(1), 1)
	defer l.Stop()

	l.Allow("key")
	if l.Allow("key") {
		t.Fatal("bucket should be drained")
	}

	l.Forget("key")
	if !l.Allow("key") {
		t.Error("forgotten key must start with a full bucket")
	}
}

func TestLen(t *testing.T) {
	l := New(rate.Limit(1), 1)
	defer l.Stop()

	l.Allow("a")
	l.Allow("b")
	if l.Len() != 2 {
		t.Errorf("expected 2 tracked keys, got %d", l.Len())
	}
	l.Forget("a")
	if l.Len() != 1 {
		t.Errorf("expected 1 tracked key, got %d", l.Len())
	}
}

func TestCleanupRemovesIdleEntries(t *testing.T) {
	l := New(rate.Limit(1), 1)
	defer l.Stop()

	l.Allow("stale")
	l.mu.Lock()
	l.entries["stale"].lastAccess = time.Now().Add(-3 * cleanupInterval)
	l.mu.Unlock()

	l.cleanup()
	if l.Len() != 0 {
		t.Errorf("expected stale entry reaped, got %d", l.Len())
	}
}
