package lockservice

import (
	"fmt"
	"lockservd/pkg/logger"
)

const moduleName = "lockservice"

// loggerError is a thin alias kept local to this package so that the
// handler files above do not need to import `pkg/logger` just to
// name one severity level.
const loggerError = logger.Error

// PrimaryOracle :
// Abstracts whatever tells this replica whether it is currently the
// RSM primary. Kept as a one-method interface so the lock service
// never depends on how leadership is actually decided; `internal/rsm`
// provides the concrete implementation.
type PrimaryOracle interface {
	IsPrimary() bool
}

// AuditEntry :
// Describes one state-mutating operation handled by the service, for
// consumption by an optional audit sink. `Reply` records the outcome
// actually returned to the caller.
type AuditEntry struct {
	Op       string
	Lid      uint64
	ClientID string
	Xid      uint64
	Reply    ReplyCode
}

// AuditSink :
// Abstracts recording `AuditEntry` values somewhere durable. `Record`
// must not block the caller for long: the lock table mutex is held
// while it is invoked, so implementations are expected to hand the
// entry to their own background worker (see `internal/audit`).
type AuditSink interface {
	Record(entry AuditEntry)
}

// Service :
// Ties the lock table together with its two callback dispatchers,
// the primary oracle and an optional audit sink. This is the type
// the transport layer and the RSM state-transfer hooks are built
// around; `Acquire`/`Release` are defined in their own files but are
// methods of this type.
//
// The revoke/retry dispatcher capacities come from the `Config`
// passed to `NewService`, so callers can size them independently of
// the rest of the wiring.
type Service struct {
	table   *LockTable
	primary PrimaryOracle
	log     logger.Logger
	audit   AuditSink

	revokes *dispatcher
	retries *dispatcher

	// acquireCount is a monotonic count of every acquire granted by
	// this replica (an `OK` reply), mirroring the original `nacquire`
	// counter the `stat` RPC reports.
	acquireCount uint64
}

// Config :
// Groups the tunables needed to build a `Service`.
//
// The `RevokeQueueCapacity`/`RetryQueueCapacity` bound how many
// outstanding callbacks may be buffered before new ones are dropped;
// both default to 1024 if left at zero.
type Config struct {
	RevokeQueueCapacity int
	RetryQueueCapacity  int
}

// NewService :
// Builds a service around a fresh, empty lock table. `resolver` is
// used by both dispatchers to turn a client id into a live
// `ClientConn` at delivery time; `audit` may be nil, in which case no
// entries are recorded.
func NewService(cfg Config, primary PrimaryOracle, resolver ClientResolver, log logger.Logger, audit AuditSink) *Service {
	revokeCap := cfg.RevokeQueueCapacity
	if revokeCap <= 0 {
		revokeCap = 1024
	}
	retryCap := cfg.RetryQueueCapacity
	if retryCap <= 0 {
		retryCap = 1024
	}

	return &Service{
		table:   NewLockTable(),
		primary: primary,
		log:     log,
		audit:   audit,
		revokes: newRevokeDispatcher(revokeCap, resolver, log),
		retries: newRetryDispatcher(retryCap, resolver, log),
	}
}

// Start :
// Launches both the revoke and retry dispatcher goroutines. Must be
// called once before the service starts receiving traffic.
func (s *Service) Start() error {
	if err := s.revokes.start(); err != nil {
		return err
	}
	if err := s.retries.start(); err != nil {
		s.revokes.stop()
		return err
	}
	return nil
}

// Stop :
// Terminates both dispatcher goroutines and waits for them to
// return.
func (s *Service) Stop() {
	s.revokes.stop()
	s.retries.stop()
}

// Stat :
// Implements the diagnostic endpoint from the design: always
// succeeds and reports the total number of acquires this replica has
// granted so far, regardless of `lid` (matching the original
// `nacquire` counter reported by the `stat` RPC).
func (s *Service) Stat(lid uint64) (ReplyCode, int) {
	s.table.lock.Lock()
	defer s.table.lock.Unlock()

	return OK, int(s.acquireCount)
}

// MarshalState :
// Produces a deterministic snapshot of the full lock table, suitable
// for RSM state transfer. See `snapshot.go` for the wire layout.
func (s *Service) MarshalState() []byte {
	s.table.lock.Lock()
	defer s.table.lock.Unlock()

	return marshalTable(s.table)
}

// UnmarshalState :
// Installs a snapshot produced by `MarshalState`, replacing the
// entire table. The revoke/retry queues are left untouched: they are
// never part of the snapshot and are expected to drain naturally
// (see §4.F).
func (s *Service) UnmarshalState(data []byte) error {
	s.table.lock.Lock()
	defer s.table.lock.Unlock()

	table, err := unmarshalTable(data)
	if err != nil {
		return err
	}

	s.table.records = table.records
	return nil
}

func staleAcquireMessage(lid uint64, id string, xid uint64, stored uint64) string {
	return fmt.Sprintf("Stale acquire for lock %d from %q: xid=%d < highest seen %d", lid, id, xid, stored)
}

func releaseWithoutAcquireMessage(lid uint64, id string, xid uint64) string {
	return fmt.Sprintf("Release for lock %d from %q at xid=%d with no prior acquire", lid, id, xid)
}

func staleReleaseMessage(lid uint64, id string, xid uint64, stored uint64) string {
	return fmt.Sprintf("Stale release for lock %d from %q: xid=%d < highest seen %d", lid, id, xid, stored)
}
