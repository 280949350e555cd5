package clientreg

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// callbackEnvelope :
// Wire format posted to a client's revoke/retry endpoint. `Kind`
// distinguishes the two callback methods so a client can expose a
// single endpoint if it wants to. `CorrelationID` lets the client
// correlate the callback with its own logs even though the protocol
// itself never requires a reply.
type callbackEnvelope struct {
	Kind          string `json:"kind"`
	Lid           uint64 `json:"lid"`
	Xid           uint64 `json:"xid"`
	CorrelationID string `json:"correlationId"`
}

// HTTPClientConn :
// Implements `ClientConn` by POSTing a JSON envelope to the
// endpoint the client advertised at registration time. Outbound
// calls are best-effort: the design only requires that a callback is
// attempted, not that it is acknowledged, so a non-2xx response or a
// transport error is simply returned to the dispatcher, which logs
// and moves on to the next queued item.
type HTTPClientConn struct {
	endpoint string
	client   *http.Client
	timeout  time.Duration
}

// NewHTTPClientConn :
// Builds a callback handle targeting `endpoint`, the base URL a
// client registered (e.g. "http://10.0.0.4:9100/callbacks").
func NewHTTPClientConn(endpoint string, timeout time.Duration) *HTTPClientConn {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	return &HTTPClientConn{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
		timeout:  timeout,
	}
}

// Revoke :
// Asks the client to release lock `lid` soon.
func (c *HTTPClientConn) Revoke(lid uint64, xid uint64) error {
	return c.post("revoke", lid, xid)
}

// Retry :
// Notifies the client that it may now be able to acquire `lid`.
func (c *HTTPClientConn) Retry(lid uint64, xid uint64) error {
	return c.post("retry", lid, xid)
}

func (c *HTTPClientConn) post(kind string, lid uint64, xid uint64) error {
	envelope := callbackEnvelope{
		Kind:          kind,
		Lid:           lid,
		Xid:           xid,
		CorrelationID: uuid.New().String(),
	}

	raw, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("Failed to encode %s callback: %v", kind, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("Failed to build %s request: %v", kind, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("Failed to deliver %s to %q: %v", kind, c.endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("Client at %q rejected %s with status %d", c.endpoint, kind, resp.StatusCode)
	}

	return nil
}
