package lockservice

// Acquire :
// Implements the acquire handler described in the design: a client
// identified by `id` asks for lock `lid` at transaction id `xid`.
// Must be invoked by the RSM only after the operation has been
// totally ordered; the whole handler runs under the table lock so
// concurrent acquire/release calls for any lock are serialized.
//
// Returns `RPCERR` if this replica is not primary or the request is
// a stale retransmission, `RETRY` if the lock is currently held by
// someone else, `OK` if the lock was free and is now held by `id`.
func (s *Service) Acquire(lid uint64, id string, xid uint64) ReplyCode {
	s.table.lock.Lock()
	defer s.table.lock.Unlock()

	if !s.primary.IsPrimary() {
		return RPCERR
	}

	l := s.table.ensure(lid)

	stored, known := l.highestXid[id]

	switch {
	case !known || stored < xid:
		return s.acquireNew(l, lid, id, xid)
	case stored == xid:
		return l.acquireReply[id]
	default:
		s.log.Trace(loggerError, moduleName, staleAcquireMessage(lid, id, xid, stored))
		return RPCERR
	}
}

// acquireNew :
// Handles the "new request" branch of the acquire handler: `xid` is
// strictly greater than anything seen before from `id` on this lock
// (or this is the very first request from `id`). The open question
// flagged in the design about the brand-new-client case is resolved
// here by always inserting/assigning `highestXid[id]`, never relying
// on an iterator that might point at a nonexistent entry.
func (s *Service) acquireNew(l *lockState, lid uint64, id string, xid uint64) ReplyCode {
	l.highestXid[id] = xid

	// A release reply recorded against an older epoch for this
	// client no longer applies once a new xid is observed.
	delete(l.releaseReply, id)

	var reply ReplyCode

	if l.held {
		reply = RETRY
		l.insertWaiter(id)

		if !l.revoked {
			l.revoked = true
			s.revokes.enqueue(l.holder, lid, l.highestXid[l.holder])
		}
	} else {
		l.held = true
		l.holder = id
		l.revoked = false
		l.removeWaiter(id)
		reply = OK
		s.acquireCount++

		if l.hasWaiters() {
			l.revoked = true
			s.revokes.enqueue(id, lid, xid)
		}
	}

	l.acquireReply[id] = reply

	if s.audit != nil {
		s.audit.Record(AuditEntry{Op: "acquire", Lid: lid, ClientID: id, Xid: xid, Reply: reply})
	}

	return reply
}
