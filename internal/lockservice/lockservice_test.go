package lockservice

import (
	"testing"

	"lockservd/pkg/logger"
)

// testLogger discards everything; the handlers under test log on
// protocol violations and we don't want that noise in test output.
type testLogger struct{}

func (testLogger) Trace(level logger.Severity, module string, message string) {}
func (testLogger) Release()                                                  {}

// alwaysPrimary satisfies PrimaryOracle and never flips.
type alwaysPrimary struct{}

func (alwaysPrimary) IsPrimary() bool { return true }

// neverPrimary satisfies PrimaryOracle and always rejects.
type neverPrimary struct{}

func (neverPrimary) IsPrimary() bool { return false }

// noopResolver never resolves any client, so every enqueued callback
// is silently dropped by the dispatcher. That's fine for these tests:
// they only assert on reply codes and table state, not on delivery.
type noopResolver struct{}

func (noopResolver) Resolve(id string) (ClientConn, bool) { return nil, false }

func newTestService(t *testing.T) *Service {
	t.Helper()

	svc := NewService(Config{}, alwaysPrimary{}, noopResolver{}, testLogger{}, nil)
	if err := svc.Start(); err != nil {
		t.Fatalf("failed to start service: %v", err)
	}
	t.Cleanup(svc.Stop)

	return svc
}

func TestAcquireUncontended(t *testing.T) {
	svc := newTestService(t)

	if got := svc.Acquire(7, "A", 1); got != OK {
		t.Fatalf("acquire(7, A, 1) = %v, want OK", got)
	}

	l, ok := svc.table.lookup(7)
	if !ok {
		t.Fatalf("expected lock 7 to exist after acquire")
	}
	if !l.held || l.holder != "A" {
		t.Fatalf("expected lock 7 held by A, got held=%v holder=%q", l.held, l.holder)
	}
}

func TestReleaseUncontended(t *testing.T) {
	svc := newTestService(t)

	svc.Acquire(7, "A", 1)

	if got := svc.Release(7, "A", 1); got != OK {
		t.Fatalf("release(7, A, 1) = %v, want OK", got)
	}

	l, _ := svc.table.lookup(7)
	if l.held {
		t.Fatalf("expected lock 7 to be free after release")
	}
}

func TestContendedAcquireTriggersRevoke(t *testing.T) {
	svc := newTestService(t)

	if got := svc.Acquire(7, "A", 1); got != OK {
		t.Fatalf("acquire(7, A, 1) = %v, want OK", got)
	}

	if got := svc.Acquire(7, "B", 1); got != RETRY {
		t.Fatalf("acquire(7, B, 1) = %v, want RETRY", got)
	}

	l, _ := svc.table.lookup(7)
	if !l.isWaiter("B") {
		t.Fatalf("expected B to be registered as a waiter")
	}
	if !l.revoked {
		t.Fatalf("expected a revoke to have been queued against the holder")
	}

	if got := svc.Release(7, "A", 1); got != OK {
		t.Fatalf("release(7, A, 1) = %v, want OK", got)
	}

	// Duplicate acquire at the same xid returns the cached reply.
	if got := svc.Acquire(7, "B", 1); got != RETRY {
		t.Fatalf("duplicate acquire(7, B, 1) = %v, want cached RETRY", got)
	}

	if got := svc.Acquire(7, "B", 2); got != OK {
		t.Fatalf("acquire(7, B, 2) = %v, want OK", got)
	}

	l, _ = svc.table.lookup(7)
	if !l.held || l.holder != "B" {
		t.Fatalf("expected lock 7 held by B, got held=%v holder=%q", l.held, l.holder)
	}
	if l.hasWaiters() {
		t.Fatalf("expected no waiters left, got %v", l.waiters)
	}
}

func TestThreeWayContentionImmediateRevokeOfFreshHolder(t *testing.T) {
	svc := newTestService(t)

	svc.Acquire(7, "A", 1)
	svc.Acquire(7, "B", 1)
	if got := svc.Acquire(7, "C", 1); got != RETRY {
		t.Fatalf("acquire(7, C, 1) = %v, want RETRY", got)
	}

	l, _ := svc.table.lookup(7)
	if !l.isWaiter("B") || !l.isWaiter("C") {
		t.Fatalf("expected both B and C to be waiters, got %v", l.waiters)
	}

	if got := svc.Release(7, "A", 1); got != OK {
		t.Fatalf("release(7, A, 1) = %v, want OK", got)
	}

	// B is the lexicographically smallest waiter, and is granted the
	// lock next. Because C is still waiting, a revoke must be queued
	// against B immediately.
	if got := svc.Acquire(7, "B", 2); got != OK {
		t.Fatalf("acquire(7, B, 2) = %v, want OK", got)
	}

	l, _ = svc.table.lookup(7)
	if !l.held || l.holder != "B" {
		t.Fatalf("expected lock 7 held by B, got held=%v holder=%q", l.held, l.holder)
	}
	if !l.revoked {
		t.Fatalf("expected B's fresh grant to be immediately revoked since C is still waiting")
	}
	if !l.isWaiter("C") {
		t.Fatalf("expected C to remain a waiter")
	}
}

func TestDuplicateReleaseIsIdempotent(t *testing.T) {
	svc := newTestService(t)

	svc.Acquire(7, "A", 1)
	svc.Release(7, "A", 1)

	l, _ := svc.table.lookup(7)
	before := l.releaseReply["A"]

	if got := svc.Release(7, "A", 1); got != OK {
		t.Fatalf("duplicate release(7, A, 1) = %v, want OK", got)
	}

	after := l.releaseReply["A"]
	if before != after {
		t.Fatalf("expected release_reply to be unchanged by a duplicate release")
	}
}

func TestProtocolViolations(t *testing.T) {
	svc := newTestService(t)

	if got := svc.Release(7, "X", 1); got != NOENT {
		t.Fatalf("release on absent lock = %v, want NOENT", got)
	}

	svc.Acquire(7, "X", 3)

	if got := svc.Release(7, "X", 1); got != RPCERR {
		t.Fatalf("release with stale xid = %v, want RPCERR", got)
	}
}

func TestNonPrimaryRejectsEverything(t *testing.T) {
	svc := NewService(Config{}, neverPrimary{}, noopResolver{}, testLogger{}, nil)
	if err := svc.Start(); err != nil {
		t.Fatalf("failed to start service: %v", err)
	}
	defer svc.Stop()

	if got := svc.Acquire(7, "A", 1); got != RPCERR {
		t.Fatalf("acquire on non-primary = %v, want RPCERR", got)
	}
	if got := svc.Release(7, "A", 1); got != RPCERR {
		t.Fatalf("release on non-primary = %v, want RPCERR", got)
	}
}

func TestAcquireIdempotence(t *testing.T) {
	svc := newTestService(t)

	first := svc.Acquire(7, "A", 1)
	countBefore := svc.table.Count()

	second := svc.Acquire(7, "A", 1)

	if first != second {
		t.Fatalf("repeated acquire at same xid returned %v then %v", first, second)
	}
	if svc.table.Count() != countBefore {
		t.Fatalf("repeated acquire changed the number of tracked locks")
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	s1 := newTestService(t)

	s1.Acquire(7, "A", 1)
	s1.Acquire(7, "B", 1)
	s1.Acquire(7, "C", 1)
	s1.Release(7, "A", 1)

	data := s1.MarshalState()

	s2 := newTestService(t)
	if err := s2.UnmarshalState(data); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	if got := s2.Acquire(7, "B", 2); got != OK {
		t.Fatalf("acquire(7, B, 2) on restored replica = %v, want OK", got)
	}

	l, _ := s2.table.lookup(7)
	if !l.held || l.holder != "B" {
		t.Fatalf("expected restored replica to grant lock 7 to B, got held=%v holder=%q", l.held, l.holder)
	}
}

func TestMarshalStateIsDeterministic(t *testing.T) {
	s1 := newTestService(t)
	s2 := newTestService(t)

	ops := func(svc *Service) {
		svc.Acquire(7, "A", 1)
		svc.Acquire(7, "B", 1)
		svc.Acquire(3, "C", 1)
		svc.Release(7, "A", 1)
	}

	ops(s1)
	ops(s2)

	b1 := s1.MarshalState()
	b2 := s2.MarshalState()

	if len(b1) != len(b2) {
		t.Fatalf("snapshots have different lengths: %d vs %d", len(b1), len(b2))
	}
	for i := range b1 {
		if b1[i] != b2[i] {
			t.Fatalf("snapshots differ at byte %d: %d vs %d", i, b1[i], b2[i])
		}
	}
}

func TestStat(t *testing.T) {
	svc := newTestService(t)

	reply, count := svc.Stat(1)
	if reply != OK {
		t.Fatalf("stat reply = %v, want OK", reply)
	}
	if count != 0 {
		t.Fatalf("stat count = %d, want 0 on an empty table", count)
	}

	svc.Acquire(7, "A", 1)
	svc.Acquire(9, "A", 1)

	_, count = svc.Stat(1)
	if count != 2 {
		t.Fatalf("stat count = %d, want 2 after two granted acquires", count)
	}

	// A third acquire against an already-held lock only queues the
	// caller as a waiter: it is not a grant and must not move the
	// counter.
	svc.Acquire(7, "B", 1)
	if _, count = svc.Stat(1); count != 2 {
		t.Fatalf("stat count = %d, want 2 after a non-granting acquire", count)
	}
}
