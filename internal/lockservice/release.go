package lockservice

// Release :
// Implements the release handler described in the design: a client
// identified by `id` releases lock `lid` at transaction id `xid`.
// Runs under the table lock, exactly like `Acquire`.
//
// Returns `RPCERR` if this replica is not primary, if `id` never
// acquired this lock, or if `xid` is stale; `NOENT` if the lock was
// never referenced before; `OK` otherwise, including on a duplicate
// release of an already-processed xid.
func (s *Service) Release(lid uint64, id string, xid uint64) ReplyCode {
	s.table.lock.Lock()
	defer s.table.lock.Unlock()

	if !s.primary.IsPrimary() {
		return RPCERR
	}

	l, known := s.table.lookup(lid)
	if !known {
		return NOENT
	}

	stored, seen := l.highestXid[id]
	switch {
	case !seen:
		s.log.Trace(loggerError, moduleName, releaseWithoutAcquireMessage(lid, id, xid))
		return RPCERR
	case xid < stored:
		s.log.Trace(loggerError, moduleName, staleReleaseMessage(lid, id, xid, stored))
		return RPCERR
	}

	// Treat "entry present" as OK, per the resolved open question:
	// the stored value is a marker, not a reply code to echo back.
	if _, duplicate := l.releaseReply[id]; duplicate {
		return OK
	}

	l.held = false
	l.holder = ""
	// `revoked` is intentionally left untouched here; it is only
	// ever overwritten at the next grant (see the revoke flag
	// lifecycle design note).

	l.releaseReply[id] = xid

	if l.hasWaiters() {
		waiters := l.sortedWaiters()
		w := waiters[0]
		s.retries.enqueue(w, lid, l.highestXid[w])
	}

	if s.audit != nil {
		s.audit.Record(AuditEntry{Op: "release", Lid: lid, ClientID: id, Xid: xid, Reply: OK})
	}

	return OK
}
