package agenttransport

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Frame is one event pushed down an agent's long-lived stream, ready to be
// written as SSE `id:`/`event:`/`data:` lines by the HTTP layer.
type Frame struct {
	ID    string
	Event string
	Data  []byte
}

// Connection is the push channel for one connected agent. The HTTP layer
// (internal/httpapi) drains Events until the request context is done or
// Closed fires.
type Connection struct {
	agentID string
	events  chan Frame
	closed  chan struct{}
	once    sync.Once
}

// Events yields frames to write as SSE `id:`/`event:`/`data:` lines.
func (c *Connection) Events() <-chan Frame { return c.events }

// Closed signals Connection teardown, e.g. the client disconnected.
func (c *Connection) Closed() <-chan struct{} { return c.closed }

type pendingAgentCall struct {
	resultCh chan *AgentResponse
	errCh    chan error
}

// SSETransport implements the push-to-agent SSE delivery mode: Cubicler is
// the SSE server, the agent is a long-lived GET client that posts its
// response back out of band.
type SSETransport struct {
	agentID         string
	responseTimeout time.Duration

	mu      sync.Mutex
	conn    *Connection
	pending map[string]*pendingAgentCall
}

// NewSSETransport builds an SSETransport for one agent identifier.
func NewSSETransport(agentID string, responseTimeout time.Duration) *SSETransport {
	if responseTimeout <= 0 {
		responseTimeout = DefaultSSEResponseTimeout
	}
	return &SSETransport{agentID: agentID, responseTimeout: responseTimeout, pending: make(map[string]*pendingAgentCall)}
}

// RegisterConnection installs a new stream for this agent, replacing and
// disconnecting any prior one.
func (t *SSETransport) RegisterConnection() *Connection {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn != nil {
		t.disconnectLocked()
	}
	conn := &Connection{agentID: t.agentID, events: make(chan Frame, 16), closed: make(chan struct{})}
	t.conn = conn
	return conn
}

// Disconnect tears down the current connection, if any, and rejects every
// pending dispatch waiting on it.
func (t *SSETransport) Disconnect() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.disconnectLocked()
}

func (t *SSETransport) disconnectLocked() {
	if t.conn != nil {
		t.conn.once.Do(func() { close(t.conn.closed) })
		t.conn = nil
	}
	for rid, p := range t.pending {
		p.errCh <- fmt.Errorf("agent connection closed")
		delete(t.pending, rid)
	}
}

func (t *SSETransport) Dispatch(ctx context.Context, req AgentRequest, _ MCPHandler) (*AgentResponse, error) {
	t.mu.Lock()
	conn := t.conn
	if conn == nil {
		t.mu.Unlock()
		return nil, fmt.Errorf("no established connection for agent %q", t.agentID)
	}
	rid := uuid.NewString()
	p := &pendingAgentCall{resultCh: make(chan *AgentResponse, 1), errCh: make(chan error, 1)}
	t.pending[rid] = p
	t.mu.Unlock()

	payload, err := json.Marshal(req)
	if err != nil {
		t.removePending(rid)
		return nil, fmt.Errorf("encoding agent request: %w", err)
	}

	select {
	case conn.events <- Frame{ID: rid, Event: "agent_request", Data: payload}:
	case <-conn.closed:
		t.removePending(rid)
		return nil, fmt.Errorf("agent connection closed")
	case <-ctx.Done():
		t.removePending(rid)
		return nil, ctx.Err()
	}

	timer := time.NewTimer(t.responseTimeout)
	defer timer.Stop()

	select {
	case resp := <-p.resultCh:
		return resp, nil
	case err := <-p.errCh:
		return nil, err
	case <-timer.C:
		t.removePending(rid)
		return nil, fmt.Errorf("timed out waiting for agent response")
	case <-ctx.Done():
		t.removePending(rid)
		return nil, ctx.Err()
	}
}

func (t *SSETransport) removePending(rid string) {
	t.mu.Lock()
	delete(t.pending, rid)
	t.mu.Unlock()
}

// HandleAgentResponse resolves the dispatch parked under rid. Called by
// the HTTP layer when the agent posts its response back. Returns false if
// no dispatch is waiting under that id (already timed out or unknown).
func (t *SSETransport) HandleAgentResponse(rid string, resp AgentResponse) bool {
	t.mu.Lock()
	p, ok := t.pending[rid]
	if ok {
		delete(t.pending, rid)
	}
	t.mu.Unlock()
	if !ok {
		return false
	}
	if !resp.Complete() {
		p.errCh <- fmt.Errorf("incomplete agent response")
		return true
	}
	p.resultCh <- &resp
	return true
}
