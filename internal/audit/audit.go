// Package audit persists a best-effort trail of every state-mutating
// acquire/release decision made by the lock service, for later
// forensics ("who held lock 7 at 14:32?"). It is deliberately kept
// off the critical path: writes are hung off a background queue so
// that a slow or unavailable database never delays a handler holding
// the table lock.
package audit

import (
	"fmt"
	"lockservd/internal/lockservice"
	"lockservd/pkg/background"
	"lockservd/pkg/db"
	"lockservd/pkg/logger"
	"time"
)

// Log :
// Wraps a `db.Proxy` with a `background.QueueProcess` so that
// `Record` never blocks its caller on the database. Entries that
// arrive while the queue is saturated are dropped and logged, the
// same tradeoff the revoke/retry dispatchers make: audit is a
// diagnostic aid, not part of the replicated protocol.
type Log struct {
	proxy db.Proxy
	queue *background.QueueProcess
	log   logger.Logger
}

// NewLog :
// Builds an audit log writing through `dbase`, a database connection
// already established via `db.NewPool`. `capacity` bounds how many
// unwritten entries may be buffered.
func NewLog(dbase *db.DB, capacity int, log logger.Logger) *Log {
	if capacity <= 0 {
		capacity = 1024
	}

	l := &Log{
		proxy: db.NewProxy(dbase),
		log:   log,
	}

	l.queue = background.NewQueueProcess(capacity, log).WithModule("audit")
	l.queue.WithOperation(func(item interface{}) error {
		entry, ok := item.(lockservice.AuditEntry)
		if !ok {
			return fmt.Errorf("Discarding malformed audit entry")
		}
		return l.write(entry)
	})

	return l
}

// Start :
// Launches the background writer goroutine.
func (l *Log) Start() error {
	return l.queue.Start()
}

// Stop :
// Terminates the background writer goroutine and waits for it to
// return. Entries still queued are discarded.
func (l *Log) Stop() {
	l.queue.Stop()
}

// Record :
// Implements `lockservice.AuditSink`. Enqueues `entry` for
// asynchronous persistence; never blocks.
func (l *Log) Record(entry lockservice.AuditEntry) {
	err := l.queue.Enqueue(entry)
	if err != nil {
		l.log.Trace(logger.Warning, "audit", fmt.Sprintf("Dropping audit entry for lock %d (err: %v)", entry.Lid, err))
	}
}

// write :
// Performs the actual insertion, calling into the
// `lockservd_log_operation` stored procedure through the shared
// `InsertReq` convention used by the rest of the DB layer.
func (l *Log) write(entry lockservice.AuditEntry) error {
	req := db.InsertReq{
		Script: "lockservd_log_operation",
		Args: []interface{}{
			entry.Op,
			entry.Lid,
			entry.ClientID,
			entry.Xid,
			int32(entry.Reply),
			time.Now().UTC(),
		},
		SkipReturn: true,
	}

	return l.proxy.InsertToDB(req)
}

// Entries :
// Queries the audit trail for `clientID` between `since` and now,
// exercising the generic `db.Filter`/`db.QueryDesc` machinery rather
// than hand-rolled SQL. Intended for operator diagnostics, not for
// anything on the protocol's critical path.
func (l *Log) Entries(clientID string, since time.Time) (db.QueryResult, error) {
	query := db.QueryDesc{
		Props: []string{"op", "lid", "client_id", "xid", "reply", "recorded_at"},
		Table: "lock_audit_log",
		Filters: []db.Filter{
			{Key: "client_id", Values: []interface{}{clientID}, Operator: db.In},
			{Key: "recorded_at", Values: []interface{}{since}, Operator: db.GreaterThan},
		},
	}

	return l.proxy.FetchFromDB(query)
}
