// Package clientreg tracks the live caching clients a lock service
// replica can reach to deliver revoke/retry callbacks. Clients
// register their callback endpoint when they first contact the
// service and are looked up again by id whenever a dispatcher has a
// callback to deliver, so a client that reconnects under the same id
// after a network blip is immediately reachable again.
package clientreg

import (
	"sync"

	"lockservd/internal/lockservice"
)

// ClientConn :
// Alias of `lockservice.ClientConn`, kept under a short local name so
// the rest of this package doesn't have to qualify every reference.
// A plain structurally-identical redeclaration would not satisfy
// `lockservice.ClientResolver` at the wiring sites (Go requires the
// exact named interface type there, not merely the same method set),
// so this has to be a genuine alias, not a lookalike type.
type ClientConn = lockservice.ClientConn

// Registry :
// A mutex-protected map from client id to its current `ClientConn`.
// Registration and resolution are cheap, uncontended operations; a
// single mutex is enough, matching the lock table's own reasoning
// for coarse locking over per-entry locks.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]ClientConn
}

// NewRegistry :
// Builds an empty client registry.
func NewRegistry() *Registry {
	return &Registry{
		clients: make(map[string]ClientConn),
	}
}

// Register :
// Records (or replaces) the callback handle for `id`. Called
// whenever a client's registration endpoint is hit, including on
// reconnection.
func (r *Registry) Register(id string, conn ClientConn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.clients[id] = conn
}

// Unregister :
// Removes the callback handle for `id`, typically on an explicit
// disconnect notification. Safe to call even if `id` was never
// registered.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.clients, id)
}

// Resolve :
// Looks up the current handle for `id`. Implements
// `lockservice.ClientResolver` directly, since `ClientConn` is an
// alias for `lockservice.ClientConn`.
func (r *Registry) Resolve(id string) (ClientConn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, ok := r.clients[id]
	return conn, ok
}
