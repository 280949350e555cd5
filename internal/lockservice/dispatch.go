package lockservice

import (
	"fmt"
	"lockservd/pkg/background"
	"lockservd/pkg/logger"
)

// ClientConn :
// Abstracts the outbound handle used to reach a single client. It is
// resolved by client id at dispatch time rather than captured when
// the callback is enqueued, so that a client which disconnects and
// reconnects under the same id remains reachable (see the "Outbound
// RPC indirection" design note).
type ClientConn interface {
	Revoke(lid uint64, xid uint64) error
	Retry(lid uint64, xid uint64) error
}

// ClientResolver :
// Abstracts looking up the current `ClientConn` for a client id.
// Implemented by the client registry; kept as a narrow interface
// here so that this package never depends on how clients are
// actually tracked or dialed.
type ClientResolver interface {
	Resolve(id string) (ClientConn, bool)
}

// callback :
// Describes a single pending outbound notification: the client to
// reach, the lock it concerns and the xid to report back so the
// client can correlate the callback with its own outstanding
// request.
type callback struct {
	clientID string
	lid      uint64
	xid      uint64
}

// dispatcher :
// Wraps a `background.QueueProcess` to turn it into a FIFO consumer
// of `callback` values, invoking either `Revoke` or `Retry` on the
// resolved client handle. Enqueue is always non-blocking: it is
// called by the handlers while holding the table lock, and it must
// never stall them (see §5 of the concurrency model).
type dispatcher struct {
	queue    *background.QueueProcess
	resolver ClientResolver
	log      logger.Logger
	kind     string
}

// newDispatcher :
// Builds a dispatcher named `kind` ("revoke" or "retry") backed by a
// bounded queue of the given capacity. `deliver` performs the actual
// outbound call once a client handle has been resolved.
func newDispatcher(kind string, capacity int, resolver ClientResolver, log logger.Logger, deliver func(conn ClientConn, lid uint64, xid uint64) error) *dispatcher {
	d := &dispatcher{
		resolver: resolver,
		log:      log,
		kind:     kind,
	}

	d.queue = background.NewQueueProcess(capacity, log).WithModule(kind)
	d.queue.WithOperation(func(item interface{}) error {
		cb, ok := item.(callback)
		if !ok {
			return fmt.Errorf("Discarding malformed %s callback item", kind)
		}

		conn, ok := resolver.Resolve(cb.clientID)
		if !ok {
			// The client handle cannot be bound: it has died or
			// moved on. Dropping the callback here is safe, see
			// the revoke/retry dispatcher design notes.
			log.Trace(logger.Notice, kind, fmt.Sprintf("Dropping %s for unreachable client %q (lock %d, xid %d)", kind, cb.clientID, cb.lid, cb.xid))
			return nil
		}

		return deliver(conn, cb.lid, cb.xid)
	})

	return d
}

// enqueue :
// Registers a pending callback for asynchronous delivery. Never
// blocks; a saturated queue drops the callback with a warning, which is
// acceptable because callback delivery is a liveness hint, not a
// safety requirement (see §4.D/§4.E).
func (d *dispatcher) enqueue(clientID string, lid uint64, xid uint64) {
	err := d.queue.Enqueue(callback{clientID: clientID, lid: lid, xid: xid})
	if err != nil {
		d.log.Trace(logger.Warning, d.kind, fmt.Sprintf("Dropping %s for %q (lock %d, xid %d): %v", d.kind, clientID, lid, xid, err))
	}
}

// start :
// Launches the underlying worker goroutine.
func (d *dispatcher) start() error {
	return d.queue.Start()
}

// stop :
// Terminates the underlying worker goroutine and waits for it to
// return.
func (d *dispatcher) stop() {
	d.queue.Stop()
}

// newRevokeDispatcher :
// Builds the dispatcher delivering `revoke(lid, xid)` callbacks.
func newRevokeDispatcher(capacity int, resolver ClientResolver, log logger.Logger) *dispatcher {
	return newDispatcher("revoke", capacity, resolver, log, func(conn ClientConn, lid uint64, xid uint64) error {
		return conn.Revoke(lid, xid)
	})
}

// newRetryDispatcher :
// Builds the dispatcher delivering `retry(lid, xid)` callbacks.
func newRetryDispatcher(capacity int, resolver ClientResolver, log logger.Logger) *dispatcher {
	return newDispatcher("retry", capacity, resolver, log, func(conn ClientConn, lid uint64, xid uint64) error {
		return conn.Retry(lid, xid)
	})
}
