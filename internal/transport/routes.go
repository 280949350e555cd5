package transport

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"lockservd/internal/clientreg"
	"lockservd/internal/lockservice"
	"lockservd/pkg/dispatcher"
	"lockservd/pkg/duration"
	"lockservd/pkg/logger"
)

// routes :
// Registers every endpoint exposed by this server on its internal
// router, each wrapped in `dispatcher.WithSafetyNet` so a panic in
// one handler never takes the whole server down.
func (s *Server) routes() {
	s.router.HandleFunc("/acquire", dispatcher.WithSafetyNet(s.log, s.handleAcquire)).Methods("POST")
	s.router.HandleFunc("/release", dispatcher.WithSafetyNet(s.log, s.handleRelease)).Methods("POST")
	s.router.HandleFunc("/stat", dispatcher.WithSafetyNet(s.log, s.handleStat)).Methods("GET")
	s.router.HandleFunc("/clients/register", dispatcher.WithSafetyNet(s.log, s.handleRegister)).Methods("POST")
}

// acquireRequest / releaseRequest mirror the inbound RPC arguments
// from the design: a lock id, a client id and an xid.
type acquireRequest struct {
	Lid uint64 `json:"lid"`
	ID  string `json:"id"`
	Xid uint64 `json:"xid"`
}

type releaseRequest struct {
	Lid uint64 `json:"lid"`
	ID  string `json:"id"`
	Xid uint64 `json:"xid"`
}

// replyResponse is the JSON envelope returned for every acquire and
// release call: a numeric reply code plus its human readable name
// for easier debugging on the client side.
type replyResponse struct {
	Reply ReplyCode `json:"reply"`
	Name  string    `json:"name"`
}

// ReplyCode mirrors lockservice.ReplyCode's wire representation.
type ReplyCode = lockservice.ReplyCode

type statResponse struct {
	Reply  ReplyCode         `json:"reply"`
	Count  int               `json:"count"`
	Uptime duration.Duration `json:"uptime"`
}

type registerRequest struct {
	ID       string `json:"id"`
	Endpoint string `json:"endpoint"`
}

// handleAcquire :
// Decodes an `acquireRequest` and forwards it to the service's
// `Acquire` handler.
func (s *Server) handleAcquire(w http.ResponseWriter, r *http.Request) {
	var req acquireRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid acquire request: %v", err), http.StatusBadRequest)
		return
	}

	reply := s.service.Acquire(req.Lid, req.ID, req.Xid)
	writeReply(w, reply)
}

// handleRelease :
// Decodes a `releaseRequest` and forwards it to the service's
// `Release` handler.
func (s *Server) handleRelease(w http.ResponseWriter, r *http.Request) {
	var req releaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid release request: %v", err), http.StatusBadRequest)
		return
	}

	reply := s.service.Release(req.Lid, req.ID, req.Xid)
	writeReply(w, reply)
}

// handleStat :
// Exposes the diagnostic `stat` RPC described in the design.
func (s *Server) handleStat(w http.ResponseWriter, r *http.Request) {
	var lid uint64
	if v := r.URL.Query().Get("lid"); v != "" {
		fmt.Sscanf(v, "%d", &lid)
	}

	reply, count := s.service.Stat(lid)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(statResponse{
		Reply:  reply,
		Count:  count,
		Uptime: duration.NewDuration(time.Since(s.startedAt)),
	})
}

// handleRegister :
// Lets a caching client advertise the endpoint its revoke/retry
// handler listens on, so that the revoke and retry dispatchers can
// later resolve it by client id.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid registration request: %v", err), http.StatusBadRequest)
		return
	}

	if req.ID == "" || req.Endpoint == "" {
		http.Error(w, "Both \"id\" and \"endpoint\" are required to register a client", http.StatusBadRequest)
		return
	}

	conn := clientreg.NewHTTPClientConn(req.Endpoint, 5*time.Second)
	s.registry.Register(req.ID, conn)

	s.log.Trace(logger.Info, "server", fmt.Sprintf("Registered client %q at %q", req.ID, req.Endpoint))

	w.WriteHeader(http.StatusNoContent)
}

// writeReply :
// Encodes a reply code response as JSON.
func writeReply(w http.ResponseWriter, reply ReplyCode) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(replyResponse{Reply: reply, Name: reply.String()})
}
