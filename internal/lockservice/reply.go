package lockservice

// ReplyCode :
// Describes the outcome of an inbound RPC handled by the lock
// table. Values are part of the client-visible wire protocol and
// must not be reassigned even though some of them are never
// produced together by the same handler.
type ReplyCode int32

// Definition of the reply codes understood by clients. The values
// are not contiguous: they mirror the numbering used historically
// by the caching lock protocol and are fixed across the wire.
const (
	OK     ReplyCode = 0
	RETRY  ReplyCode = 2
	NOENT  ReplyCode = 3
	RPCERR ReplyCode = 4
)

// String :
// Returns a human readable representation of the reply code, mostly
// useful for logging and for test failure messages.
func (r ReplyCode) String() string {
	switch r {
	case OK:
		return "OK"
	case RETRY:
		return "RETRY"
	case NOENT:
		return "NOENT"
	case RPCERR:
		return "RPCERR"
	default:
		return "UNKNOWN"
	}
}
