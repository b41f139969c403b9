package infra

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"click-reply-correlator/correlator/domain"
)

func TestClientLimits_GetSameKeyReturnsSameLimiter(t *testing.T) {
	s := NewClientLimits(10, 1)

	l1 := s.Get(domain.Key("k"))
	l2 := s.Get(domain.Key("k"))
	if l1 != l2 {
		t.Fatalf("expected same limiter pointer for same key")
	}
}

func TestClientLimits_LowBurstRejectsSecondImmediateAllow(t *testing.T) {
	s := NewClientLimits(0.02, 1)

	lim := s.Get(domain.Key("k"))
	if !lim.Allow() {
		t.Fatalf("expected first Allow to be true")
	}
	if lim.Allow() {
		t.Fatalf("expected second immediate Allow to be false (burst=1)")
	}
}

func TestClientLimits_CleanupRemovesIdleEntries(t *testing.T) {
	clock := newFakeClock()
	s := NewClientLimits(10, 1, WithIdleTTL(time.Minute), WithCleanupEvery(0), WithClientClock(clock.Now))

	before := s.Get(domain.Key("k"))
	clock.Advance(2 * time.Minute)

	if n := s.Cleanup(); n != 1 {
		t.Fatalf("expected 1 idle client removed, got %d", n)
	}

	after := s.Get(domain.Key("k"))
	if before == after {
		t.Fatalf("expected limiter to be recreated after cleanup")
	}
}

func TestClientLimits_CleanupKeepsActiveEntries(t *testing.T) {
	clock := newFakeClock()
	s := NewClientLimits(10, 1, WithIdleTTL(time.Minute), WithClientClock(clock.Now))

	s.Get(domain.Key("k"))
	clock.Advance(30 * time.Second)
	s.Get(domain.Key("k"))
	clock.Advance(45 * time.Second)

	if n := s.Cleanup(); n != 0 {
		t.Fatalf("expected no removal, got %d", n)
	}
	if s.Len() != 1 {
		t.Fatalf("expected 1 client, got %d", s.Len())
	}
}

func TestClientLimits_JanitorDropsIdleClientsAndLogs(t *testing.T) {
	clock := newFakeClock()
	core, logs := observer.New(zapcore.DebugLevel)
	s := NewClientLimits(10, 1,
		WithIdleTTL(time.Minute),
		WithCleanupEvery(5*time.Millisecond),
		WithClientClock(clock.Now),
		WithClientLimitsLogger(zap.New(core)))

	s.Get(domain.Key("a"))
	s.Get(domain.Key("b"))
	clock.Advance(2 * time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.StartJanitor(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for logs.FilterMessage("Dropped idle clients").Len() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("janitor did not drop idle clients")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if s.Len() != 0 {
		t.Fatalf("expected no clients left, got %d", s.Len())
	}
	entry := logs.FilterMessage("Dropped idle clients").All()[0]
	if got := entry.ContextMap()["dropped"]; got != int64(2) {
		t.Fatalf("expected dropped=2, got %v", got)
	}
}
