package transport

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"lockservd/internal/clientreg"
	"lockservd/internal/lockservice"
	"lockservd/pkg/dispatcher"
	"lockservd/pkg/logger"
)

type testLogger struct{}

func (testLogger) Trace(level logger.Severity, module string, message string) {}
func (testLogger) Release()                                                  {}

type alwaysPrimary struct{}

func (alwaysPrimary) IsPrimary() bool { return true }

func newTestServer(t *testing.T) *Server {
	t.Helper()

	log := testLogger{}
	registry := clientreg.NewRegistry()
	service := lockservice.NewService(lockservice.Config{}, alwaysPrimary{}, registry, log, nil)
	if err := service.Start(); err != nil {
		t.Fatalf("failed to start service: %v", err)
	}
	t.Cleanup(service.Stop)

	s := &Server{
		port:     0,
		service:  service,
		registry: registry,
		log:      log,
	}
	s.router = dispatcher.NewRouter(log)
	s.routes()

	return s
}

func postJSON(t *testing.T, router http.Handler, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("failed to encode request body: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	return rec
}

func TestHandleAcquireAndRelease(t *testing.T) {
	s := newTestServer(t)

	rec := postJSON(t, s.router, "/acquire", acquireRequest{Lid: 7, ID: "A", Xid: 1})
	if rec.Code != http.StatusOK {
		t.Fatalf("acquire status = %d, want 200", rec.Code)
	}

	var acquireResp replyResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &acquireResp); err != nil {
		t.Fatalf("failed to decode acquire response: %v", err)
	}
	if acquireResp.Reply != lockservice.OK {
		t.Fatalf("acquire reply = %v, want OK", acquireResp.Reply)
	}

	rec = postJSON(t, s.router, "/release", releaseRequest{Lid: 7, ID: "A", Xid: 1})
	if rec.Code != http.StatusOK {
		t.Fatalf("release status = %d, want 200", rec.Code)
	}

	var releaseResp replyResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &releaseResp); err != nil {
		t.Fatalf("failed to decode release response: %v", err)
	}
	if releaseResp.Reply != lockservice.OK {
		t.Fatalf("release reply = %v, want OK", releaseResp.Reply)
	}
}

func TestHandleAcquireRejectsMalformedBody(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/acquire", bytes.NewReader([]byte("not json")))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for a malformed acquire body", rec.Code)
	}
}

func TestHandleRegister(t *testing.T) {
	s := newTestServer(t)

	rec := postJSON(t, s.router, "/clients/register", registerRequest{ID: "A", Endpoint: "http://127.0.0.1:9999/callbacks"})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("register status = %d, want 204", rec.Code)
	}

	if _, ok := s.registry.Resolve("A"); !ok {
		t.Fatalf("expected client A to be registered")
	}
}

func TestHandleStat(t *testing.T) {
	s := newTestServer(t)

	postJSON(t, s.router, "/acquire", acquireRequest{Lid: 7, ID: "A", Xid: 1})

	req := httptest.NewRequest(http.MethodGet, "/stat?lid=7", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("stat status = %d, want 200", rec.Code)
	}

	var resp statResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode stat response: %v", err)
	}
	if resp.Count != 1 {
		t.Fatalf("stat count = %d, want 1", resp.Count)
	}
}
