package clientreg

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type recordingConn struct {
	revokes []uint64
	retries []uint64
}

func (c *recordingConn) Revoke(lid uint64, xid uint64) error {
	c.revokes = append(c.revokes, lid)
	return nil
}

func (c *recordingConn) Retry(lid uint64, xid uint64) error {
	c.retries = append(c.retries, lid)
	return nil
}

func TestRegisterAndResolve(t *testing.T) {
	reg := NewRegistry()

	if _, ok := reg.Resolve("A"); ok {
		t.Fatalf("expected no handle registered for a fresh registry")
	}

	conn := &recordingConn{}
	reg.Register("A", conn)

	got, ok := reg.Resolve("A")
	if !ok {
		t.Fatalf("expected to resolve a handle for A")
	}
	if got != conn {
		t.Fatalf("resolved handle does not match the registered one")
	}
}

func TestUnregister(t *testing.T) {
	reg := NewRegistry()
	reg.Register("A", &recordingConn{})

	reg.Unregister("A")

	if _, ok := reg.Resolve("A"); ok {
		t.Fatalf("expected A to no longer resolve after Unregister")
	}
}

func TestReRegisterReplacesHandle(t *testing.T) {
	reg := NewRegistry()

	first := &recordingConn{}
	second := &recordingConn{}

	reg.Register("A", first)
	reg.Register("A", second)

	got, _ := reg.Resolve("A")
	if got != second {
		t.Fatalf("expected the latest registration to win")
	}
}

func TestHTTPClientConnDeliversCallbacks(t *testing.T) {
	var received []string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received = append(received, r.Method)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	conn := NewHTTPClientConn(srv.URL, time.Second)

	if err := conn.Revoke(7, 1); err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}
	if err := conn.Retry(7, 1); err != nil {
		t.Fatalf("Retry failed: %v", err)
	}

	if len(received) != 2 {
		t.Fatalf("expected 2 requests to reach the test server, got %d", len(received))
	}
}

func TestHTTPClientConnSurfacesErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	conn := NewHTTPClientConn(srv.URL, time.Second)

	if err := conn.Revoke(7, 1); err == nil {
		t.Fatalf("expected an error when the client endpoint rejects the callback")
	}
}
