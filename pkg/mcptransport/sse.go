package mcptransport

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// pendingCall tracks one in-flight request awaiting its correlated response
// over the inbound SSE stream.
type pendingCall struct {
	resultCh chan json.RawMessage
	errCh    chan error
}

// SSETransport posts requests to {base}/mcp and correlates responses
// delivered asynchronously over a GET {base}/mcp/sse?clientId=... stream.
// Each SSE `data:` line carries one full JSON-RPC Response object, keyed
// for correlation by its `id` field alone; there is no separate envelope.
type SSETransport struct {
	identifier string
	baseURL    string
	clientID   string
	bearer     func() string
	httpClient *http.Client
	openTimeout time.Duration

	requestID atomic.Int64

	mu      sync.Mutex
	pending map[string]*pendingCall
	cancel  context.CancelFunc
	connected atomic.Bool
}

// NewSSETransport builds a transport against baseURL (no trailing slash),
// posting to {baseURL}/mcp and listening on {baseURL}/mcp/sse.
func NewSSETransport(identifier, baseURL string, bearer func() string) *SSETransport {
	return &SSETransport{
		identifier:  identifier,
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		clientID:    uuid.NewString(),
		bearer:      bearer,
		httpClient:  &http.Client{},
		openTimeout: DefaultSSEOpenTimeout,
		pending:     make(map[string]*pendingCall),
	}
}

func (t *SSETransport) ServerIdentifier() string { return t.identifier }

func (t *SSETransport) IsConnected() bool { return t.connected.Load() }

// Initialize opens the inbound SSE stream, waits for it to confirm open
// (a 200 response to the GET) within DefaultSSEOpenTimeout, then performs the MCP
// initialize handshake over the outbound POST side.
func (t *SSETransport) Initialize(ctx context.Context) error {
	streamCtx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel

	opened := make(chan error, 1)
	go t.readLoop(streamCtx, opened)

	select {
	case err := <-opened:
		if err != nil {
			cancel()
			return fmt.Errorf("opening sse stream for %s: %w", t.identifier, err)
		}
	case <-time.After(t.openTimeout):
		cancel()
		return fmt.Errorf("opening sse stream for %s: timed out after %s", t.identifier, t.openTimeout)
	case <-ctx.Done():
		cancel()
		return ctx.Err()
	}

	params := InitializeParams{
		ProtocolVersion: ProtocolVersion,
		ClientInfo:      ClientInfo{Name: "cubicler", Version: "1.0.0"},
		Capabilities:    Capabilities{Tools: &ToolsCapability{}},
	}
	if _, err := t.SendRequest(ctx, "initialize", params); err != nil {
		cancel()
		return fmt.Errorf("initialize %s: %w", t.identifier, err)
	}
	t.connected.Store(true)
	return nil
}

func (t *SSETransport) Close() error {
	t.connected.Store(false)
	if t.cancel != nil {
		t.cancel()
	}
	t.mu.Lock()
	for _, p := range t.pending {
		p.errCh <- fmt.Errorf("transport closed")
	}
	t.pending = make(map[string]*pendingCall)
	t.mu.Unlock()
	return nil
}

// readLoop performs the single long-lived GET, splitting the byte stream on
// blank-line-delimited SSE frames and dispatching each `data:` JSON-RPC
// response to its waiter. opened is signaled exactly once, on first
// connection success or failure.
func (t *SSETransport) readLoop(ctx context.Context, opened chan<- error) {
	url := fmt.Sprintf("%s/mcp/sse?clientId=%s", t.baseURL, t.clientID)
	if tok := t.bearerToken(); tok != "" {
		url += "&token=" + tok
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		opened <- err
		return
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		opened <- err
		return
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		opened <- fmt.Errorf("HTTP %d opening sse stream", resp.StatusCode)
		return
	}
	defer resp.Body.Close()
	opened <- nil

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var data bytes.Buffer
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if data.Len() > 0 {
				t.dispatch(data.Bytes())
				data.Reset()
			}
		case strings.HasPrefix(line, ":"):
			// keepalive comment, ignore
		case strings.HasPrefix(line, "data:"):
			data.WriteString(strings.TrimPrefix(line, "data:"))
		}
	}
}

func (t *SSETransport) dispatch(raw []byte) {
	var resp Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return
	}
	if resp.ID == nil {
		return
	}
	key := string(*resp.ID)

	t.mu.Lock()
	p, ok := t.pending[key]
	if ok {
		delete(t.pending, key)
	}
	t.mu.Unlock()
	if !ok {
		return
	}

	if resp.Error != nil {
		p.errCh <- fmt.Errorf("RPC error %d from %s: %s", resp.Error.Code, t.identifier, resp.Error.Message)
		return
	}
	p.resultCh <- resp.Result
}

func (t *SSETransport) bearerToken() string {
	if t.bearer == nil {
		return ""
	}
	return t.bearer()
}

// SendRequest posts the request and waits on the inbound SSE stream for the
// correlated response, up to DefaultRequestTimeout.
func (t *SSETransport) SendRequest(ctx context.Context, method string, params any) (json.RawMessage, error) {
	id := t.requestID.Add(1)
	idBytes, _ := json.Marshal(id)
	rawID := json.RawMessage(idBytes)

	var paramsBytes json.RawMessage
	if params != nil {
		var err error
		paramsBytes, err = json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("marshaling params: %w", err)
		}
	}

	req := Request{JSONRPC: "2.0", ID: &rawID, Method: method, Params: paramsBytes}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	waiter := &pendingCall{resultCh: make(chan json.RawMessage, 1), errCh: make(chan error, 1)}
	key := string(idBytes)
	t.mu.Lock()
	t.pending[key] = waiter
	t.mu.Unlock()

	postCtx, postCancel := context.WithTimeout(ctx, DefaultRequestTimeout)
	defer postCancel()

	httpReq, err := http.NewRequestWithContext(postCtx, http.MethodPost, t.baseURL+"/mcp", bytes.NewReader(body))
	if err != nil {
		t.removePending(key)
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-mcp-client-id", t.clientID)
	if tok := t.bearerToken(); tok != "" {
		httpReq.Header.Set("Authorization", "Bearer "+tok)
	}

	httpResp, err := t.httpClient.Do(httpReq)
	if err != nil {
		t.removePending(key)
		return nil, fmt.Errorf("posting request to %s: %w", t.identifier, err)
	}
	io.Copy(io.Discard, httpResp.Body)
	httpResp.Body.Close()
	if httpResp.StatusCode >= 300 {
		t.removePending(key)
		return nil, fmt.Errorf("HTTP %d posting request to %s", httpResp.StatusCode, t.identifier)
	}

	timer := time.NewTimer(DefaultRequestTimeout)
	defer timer.Stop()

	select {
	case result := <-waiter.resultCh:
		return result, nil
	case err := <-waiter.errCh:
		return nil, err
	case <-timer.C:
		t.removePending(key)
		return nil, fmt.Errorf("waiting for response from %s: timed out after %s", t.identifier, DefaultRequestTimeout)
	case <-ctx.Done():
		t.removePending(key)
		return nil, ctx.Err()
	}
}

func (t *SSETransport) removePending(key string) {
	t.mu.Lock()
	delete(t.pending, key)
	t.mu.Unlock()
}
