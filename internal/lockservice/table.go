package lockservice

import (
	"sort"
	"sync"
)

// lockState :
// Describes the per-lock record tracked by the table. A record is
// created lazily the first time an acquire references a lock id and
// is never destroyed afterwards, so an absent record means the lock
// id was never acquired: release answers `NOENT` for it, whereas a
// record holding no entry for the releasing client yields `RPCERR`.
//
// The `held` and `holder` fields track the current grant: `held` is
// true if and only if `holder` is not empty.
//
// The `revoked` flag marks that a revoke has already been enqueued
// for the current holder, so that a second waiter arriving before the
// holder releases does not cause a duplicate revoke to be queued.
//
// The `waiters` set holds the client ids that were told `RETRY` and
// are awaiting a retry notification. It is kept as both a map (for
// membership tests) and sorted on demand, since release must pick
// the lexicographically smallest waiter deterministically.
//
// The `highestXid` map records, per client, the greatest xid ever
// observed for this lock. The `acquireReply` map caches the reply
// produced for the request at that xid so that retried acquires are
// idempotent. The `releaseReply` map records which (client, xid)
// pairs have already been released, the presence of an entry means
// `OK`, the map never stores anything else.
type lockState struct {
	held    bool
	holder  string
	revoked bool

	waiters map[string]struct{}

	highestXid   map[string]uint64
	acquireReply map[string]ReplyCode
	releaseReply map[string]uint64
}

// newLockState :
// Builds a zero-value lock record ready to be mutated by the
// acquire/release handlers.
func newLockState() *lockState {
	return &lockState{
		waiters:      make(map[string]struct{}),
		highestXid:   make(map[string]uint64),
		acquireReply: make(map[string]ReplyCode),
		releaseReply: make(map[string]uint64),
	}
}

// insertWaiter :
// Registers `id` as waiting for a retry notification on this lock.
func (l *lockState) insertWaiter(id string) {
	l.waiters[id] = struct{}{}
}

// removeWaiter :
// Clears `id` from the waiter set because it was just granted the
// lock. Picking a waiter as the retry target does not remove it.
func (l *lockState) removeWaiter(id string) {
	delete(l.waiters, id)
}

// isWaiter :
// Returns whether `id` is currently registered as a waiter.
func (l *lockState) isWaiter(id string) bool {
	_, ok := l.waiters[id]
	return ok
}

// hasWaiters :
// Returns whether at least one client is waiting for a retry.
func (l *lockState) hasWaiters() bool {
	return len(l.waiters) > 0
}

// sortedWaiters :
// Returns the waiter ids sorted lexicographically. Used both to pick
// a deterministic retry target and to produce reproducible snapshots
// across replicas, which is why this must never iterate the backing
// map directly.
func (l *lockState) sortedWaiters() []string {
	ids := make([]string, 0, len(l.waiters))
	for id := range l.waiters {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// sortedClients :
// Returns the union of client ids referenced by `highestXid`,
// `acquireReply` and `releaseReply`, sorted lexicographically. Used
// exclusively by the snapshot codec to guarantee a canonical
// iteration order (see invariant in §9 of the design: marshalling
// must not depend on map iteration order).
func (l *lockState) sortedClients() []string {
	seen := make(map[string]struct{}, len(l.highestXid))
	for id := range l.highestXid {
		seen[id] = struct{}{}
	}
	for id := range l.acquireReply {
		seen[id] = struct{}{}
	}
	for id := range l.releaseReply {
		seen[id] = struct{}{}
	}

	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// LockTable :
// Holds the in-memory map from lock id to per-lock state. All reads
// and writes performed by the acquire/release handlers and by the
// snapshot codec happen while the caller holds `Lock`/`Unlock` on
// this object: a single coarse mutex is adequate here because every
// handler is CPU-bound and short, and the dispatchers never touch
// this table (see the concurrency notes carried over into
// SPEC_FULL.md).
//
// `records` is never pruned: a lock id referenced once keeps a
// record for the lifetime of the process, which is what lets the
// snapshot codec reason about "every lock ever seen".
type LockTable struct {
	lock    sync.Mutex
	records map[uint64]*lockState
}

// NewLockTable :
// Builds an empty lock table.
func NewLockTable() *LockTable {
	return &LockTable{
		records: make(map[uint64]*lockState),
	}
}

// lookup :
// Returns the record for `lid`, or nil if none was ever created.
// Does not create a record: used by `release`, which must return
// `NOENT` on an unknown lock rather than materialize one.
func (t *LockTable) lookup(lid uint64) (*lockState, bool) {
	l, ok := t.records[lid]
	return l, ok
}

// ensure :
// Returns the record for `lid`, creating a fresh one on first
// reference. Used exclusively by `acquire`, the only operation
// allowed to materialize a lock record.
func (t *LockTable) ensure(lid uint64) *lockState {
	l, ok := t.records[lid]
	if !ok {
		l = newLockState()
		t.records[lid] = l
	}
	return l
}

// sortedLockIds :
// Returns every lock id ever referenced, sorted ascending. Used by
// the snapshot codec to guarantee a canonical marshalling order.
func (t *LockTable) sortedLockIds() []uint64 {
	ids := make([]uint64, 0, len(t.records))
	for lid := range t.records {
		ids = append(ids, lid)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Count :
// Returns the number of distinct lock ids ever referenced by this
// table, regardless of whether they are currently held.
func (t *LockTable) Count() int {
	return len(t.records)
}
