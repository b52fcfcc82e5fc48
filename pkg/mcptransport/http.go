package mcptransport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"

	"github.com/cubicler/cubicler/pkg/config"
)

// HTTPTransport sends one POST per request to a server URL and waits for a
// single JSON response.
type HTTPTransport struct {
	identifier string
	url        string
	headers    map[string]string
	bearer     func() string
	httpClient *http.Client
	requestID  atomic.Int64
	connected  atomic.Bool
}

// NewHTTPTransport builds a transport posting to url. bearer, if non-nil, is
// called per-request to obtain the current JWT to attach.
func NewHTTPTransport(identifier, url string, headers map[string]string, bearer func() string) *HTTPTransport {
	return &HTTPTransport{
		identifier: identifier,
		url:        url,
		headers:    headers,
		bearer:     bearer,
		httpClient: &http.Client{Timeout: DefaultRequestTimeout},
	}
}

func (t *HTTPTransport) ServerIdentifier() string { return t.identifier }

func (t *HTTPTransport) Initialize(ctx context.Context) error {
	params := InitializeParams{
		ProtocolVersion: ProtocolVersion,
		ClientInfo:      ClientInfo{Name: "cubicler", Version: "1.0.0"},
		Capabilities:    Capabilities{Tools: &ToolsCapability{}},
	}
	if _, err := t.SendRequest(ctx, "initialize", params); err != nil {
		return fmt.Errorf("initialize %s: %w", t.identifier, err)
	}
	t.connected.Store(true)
	return nil
}

func (t *HTTPTransport) IsConnected() bool { return t.connected.Load() }

func (t *HTTPTransport) Close() error {
	t.connected.Store(false)
	return nil
}

// SendRequest performs one JSON-RPC call and returns the raw result payload.
func (t *HTTPTransport) SendRequest(ctx context.Context, method string, params any) (json.RawMessage, error) {
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

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range t.headers {
		httpReq.Header.Set(k, v)
	}
	if t.bearer != nil {
		if tok := t.bearer(); tok != "" {
			httpReq.Header.Set("Authorization", "Bearer "+tok)
		}
	}

	httpResp, err := t.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("sending request to %s: %w", t.identifier, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(httpResp.Body)
		return nil, fmt.Errorf("HTTP %d from %s: %s", httpResp.StatusCode, t.identifier, string(data))
	}

	var resp Response
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("decoding response from %s: %w", t.identifier, err)
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("RPC error %d from %s: %s", resp.Error.Code, t.identifier, resp.Error.Message)
	}
	return resp.Result, nil
}

// bearerFrom resolves an optional JWT bearer source from config, for
// use by both the http and sse transports.
func bearerFrom(auth *config.AuthConfig) func() string {
	if auth == nil || auth.Type != "jwt" || auth.TokenEnv == "" {
		return nil
	}
	envName := auth.TokenEnv
	return func() string { return lookupEnv(envName) }
}
