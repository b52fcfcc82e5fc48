// Package httpapi is the broker's own HTTP surface: dispatch, the MCP
// JSON-RPC/SSE endpoints, agent discovery, and health.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cubicler/cubicler/pkg/agenttransport"
	"github.com/cubicler/cubicler/pkg/brokererr"
	"github.com/cubicler/cubicler/pkg/config"
	"github.com/cubicler/cubicler/pkg/dispatch"
	"github.com/cubicler/cubicler/pkg/jsonrpc"
	"github.com/cubicler/cubicler/pkg/jwtauth"
	"github.com/cubicler/cubicler/pkg/logging"
	"github.com/cubicler/cubicler/pkg/mcpservice"
)

// DispatchService is the contract handleDispatch drives. *dispatch.Service
// satisfies this.
type DispatchService interface {
	Dispatch(ctx context.Context, agentID string, req dispatch.DispatchRequest) (*dispatch.DispatchResponse, error)
}

// MCPHandler is the contract handleMCP drives. pkg/dispatcher.Dispatcher
// satisfies this.
type MCPHandler interface {
	Handle(ctx context.Context, req jsonrpc.Request) jsonrpc.Response
}

// AgentsSource supplies the agents snapshot for GET /agents.
type AgentsSource interface {
	Get() (*config.AgentsConfig, error)
}

// HealthSource reports per-backend health for GET /health.
// *mcpservice.Service satisfies this; nil means no backends to report.
type HealthSource interface {
	ServerHealth() []mcpservice.ServerHealth
}

// Server is the broker's HTTP surface.
type Server struct {
	dispatcher DispatchService
	mcp        MCPHandler
	agents     AgentsSource
	sse        map[string]*agenttransport.SSETransport
	jwt        *jwtauth.Verifier
	health     HealthSource
	logs       *logging.LogBuffer
	startedAt  time.Time

	mcpStreamsMu sync.Mutex
	mcpStreams   map[string]chan jsonrpc.Response
}

// NewServer builds a Server. sse maps agent identifier to its registered
// SSETransport, for agents configured with the push-to-agent transport.
// jwt may be nil or disabled, in which case every request passes. health
// may be nil, in which case /health always reports healthy. logs, when
// non-nil, feeds /health's recent-errors list.
func NewServer(dispatcher DispatchService, mcp MCPHandler, agents AgentsSource, sse map[string]*agenttransport.SSETransport, jwt *jwtauth.Verifier, health HealthSource, logs *logging.LogBuffer) *Server {
	return &Server{
		dispatcher: dispatcher, mcp: mcp, agents: agents, sse: sse, jwt: jwt,
		health: health, logs: logs, startedAt: time.Now(),
		mcpStreams: make(map[string]chan jsonrpc.Response),
	}
}

// registerMCPStream installs the push channel for one SSE MCP client. A
// reconnect under the same clientId replaces the previous channel.
func (s *Server) registerMCPStream(clientID string) chan jsonrpc.Response {
	ch := make(chan jsonrpc.Response, 8)
	s.mcpStreamsMu.Lock()
	s.mcpStreams[clientID] = ch
	s.mcpStreamsMu.Unlock()
	return ch
}

func (s *Server) unregisterMCPStream(clientID string, ch chan jsonrpc.Response) {
	s.mcpStreamsMu.Lock()
	if s.mcpStreams[clientID] == ch {
		delete(s.mcpStreams, clientID)
	}
	s.mcpStreamsMu.Unlock()
}

// pushMCPResponse delivers resp to clientID's open stream, if any. A full
// channel drops the push; the client still has the synchronous POST body.
func (s *Server) pushMCPResponse(clientID string, resp jsonrpc.Response) {
	if clientID == "" {
		return
	}
	s.mcpStreamsMu.Lock()
	ch, ok := s.mcpStreams[clientID]
	s.mcpStreamsMu.Unlock()
	if !ok {
		return
	}
	select {
	case ch <- resp:
	default:
	}
}

// Handler returns the main HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/dispatch", s.handleDispatch)
	mux.HandleFunc("/dispatch/", s.handleDispatch)
	mux.HandleFunc("/mcp", s.handleMCP)
	mux.HandleFunc("/mcp/sse", s.handleMCPSSE)
	mux.HandleFunc("/agents", s.handleAgents)
	mux.HandleFunc("/agents/", s.handleAgentStream)
	mux.HandleFunc("/health", s.handleHealth)

	return corsMiddleware(jwtauth.Middleware(s.jwt, skipAuth, writeAuthFailure, mux))
}

func skipAuth(r *http.Request) bool {
	return r.URL.Path == "/health" || r.URL.Path == "/mcp/sse"
}

func writeAuthFailure(w http.ResponseWriter, r *http.Request, verr *jwtauth.VerifyError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": verr.Message, "code": string(verr.Code)})
}

// handleDispatch serves POST /dispatch and POST /dispatch/:agentId.
func (s *Server) handleDispatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "", "method not allowed")
		return
	}

	agentID := strings.TrimPrefix(r.URL.Path, "/dispatch")
	agentID = strings.Trim(agentID, "/")

	var body struct {
		Messages []agenttransport.Message `json:"messages"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, string(brokererr.InvalidRequest), "invalid request body")
		return
	}

	resp, err := s.dispatcher.Dispatch(r.Context(), agentID, dispatch.DispatchRequest{Messages: body.Messages})
	if err != nil {
		status := http.StatusInternalServerError
		switch brokererr.CodeOf(err) {
		case brokererr.InvalidRequest:
			status = http.StatusBadRequest
		case brokererr.UnknownAgent, brokererr.NoAgents:
			status = http.StatusNotFound
		}
		writeError(w, status, string(brokererr.CodeOf(err)), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleMCP serves POST /mcp: one JSON-RPC request in, one response out.
func (s *Server) handleMCP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "", "method not allowed")
		return
	}

	var req jsonrpc.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusOK, jsonrpc.NewErrorResponse(nil, jsonrpc.ParseError, "invalid JSON"))
		return
	}

	resp := s.mcp.Handle(r.Context(), req)
	s.pushMCPResponse(r.Header.Get("x-mcp-client-id"), resp)
	writeJSON(w, http.StatusOK, resp)
}

// handleMCPSSE serves GET /mcp/sse?clientId=...&token=...: the push side
// of the SSE MCP pair. Responses to POST /mcp requests carrying a matching
// x-mcp-client-id header are re-delivered here as mcp-response events,
// correlated by the JSON-RPC id; keepalive comments go out every 15s.
func (s *Server) handleMCPSSE(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "", "method not allowed")
		return
	}

	clientID := r.URL.Query().Get("clientId")
	if clientID == "" {
		writeError(w, http.StatusBadRequest, "", "missing clientId")
		return
	}
	if s.jwt != nil && s.jwt.Enabled() {
		if _, err := s.jwt.VerifyToken(r.URL.Query().Get("token")); err != nil {
			writeAuthFailure(w, r, err.(*jwtauth.VerifyError))
			return
		}
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "", "streaming unsupported")
		return
	}

	ch := s.registerMCPStream(clientID)
	defer s.unregisterMCPStream(clientID, ch)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "event: ready\ndata: %s\n\n", clientID)
	flusher.Flush()

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case resp := <-ch:
			data, err := json.Marshal(resp)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: mcp-response\ndata: %s\n\n", data)
			flusher.Flush()
		case <-ticker.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		}
	}
}

// handleAgents serves GET /agents.
func (s *Server) handleAgents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "", "method not allowed")
		return
	}

	cfg, err := s.agents.Get()
	if err != nil {
		writeError(w, http.StatusInternalServerError, string(brokererr.Internal), err.Error())
		return
	}

	type agentInfo struct {
		Identifier  string `json:"identifier"`
		Name        string `json:"name"`
		Description string `json:"description,omitempty"`
		Transport   string `json:"transport"`
	}
	agents := make([]agentInfo, 0, len(cfg.Agents))
	for _, a := range cfg.Agents {
		agents = append(agents, agentInfo{Identifier: a.Identifier, Name: a.Name, Description: a.Description, Transport: string(a.Transport)})
	}

	writeJSON(w, http.StatusOK, struct {
		Total  int         `json:"total"`
		Agents []agentInfo `json:"agents"`
	}{Total: len(agents), Agents: agents})
}

// handleHealth serves GET /health: 200 while every configured backend is
// healthy, 503 once any is not.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	code := http.StatusOK
	var servers []mcpservice.ServerHealth
	if s.health != nil {
		servers = s.health.ServerHealth()
		for _, sv := range servers {
			if !sv.Healthy {
				status = "degraded"
				code = http.StatusServiceUnavailable
				break
			}
		}
	}
	var recentErrors []logging.BufferedEntry
	if s.logs != nil {
		for _, entry := range s.logs.GetRecent(100) {
			if entry.Level == slog.LevelError.String() {
				recentErrors = append(recentErrors, entry)
			}
		}
		if len(recentErrors) > 10 {
			recentErrors = recentErrors[len(recentErrors)-10:]
		}
	}
	writeJSON(w, code, struct {
		Status       string                    `json:"status"`
		Uptime       string                    `json:"uptime"`
		Since        time.Time                 `json:"since"`
		Servers      []mcpservice.ServerHealth `json:"servers,omitempty"`
		RecentErrors []logging.BufferedEntry   `json:"recentErrors,omitempty"`
	}{Status: status, Uptime: time.Since(s.startedAt).String(), Since: s.startedAt, Servers: servers, RecentErrors: recentErrors})
}

// handleAgentStream routes the out-of-band endpoints an SSE-transported
// agent uses: GET /agents/:id/stream opens the long-lived connection,
// POST /agents/:id/respond posts the agent's response back for a pending
// dispatch.
func (s *Server) handleAgentStream(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/agents/")
	parts := strings.SplitN(path, "/", 2)
	if len(parts) != 2 {
		writeError(w, http.StatusNotFound, "", "not found")
		return
	}
	agentID, action := parts[0], parts[1]

	transport, ok := s.sse[agentID]
	if !ok {
		writeError(w, http.StatusNotFound, "", fmt.Sprintf("agent %q has no sse transport", agentID))
		return
	}

	switch action {
	case "stream":
		s.handleAgentConnect(w, r, transport)
	case "respond":
		s.handleAgentRespond(w, r, transport)
	default:
		writeError(w, http.StatusNotFound, "", "unknown action")
	}
}

func (s *Server) handleAgentConnect(w http.ResponseWriter, r *http.Request, transport *agenttransport.SSETransport) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "", "method not allowed")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "", "streaming unsupported")
		return
	}

	conn := transport.RegisterConnection()
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-conn.Closed():
			return
		case frame := <-conn.Events():
			fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", frame.ID, frame.Event, frame.Data)
			flusher.Flush()
		case <-ticker.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		}
	}
}

func (s *Server) handleAgentRespond(w http.ResponseWriter, r *http.Request, transport *agenttransport.SSETransport) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "", "method not allowed")
		return
	}

	var body struct {
		RequestID string                      `json:"requestId"`
		Response  agenttransport.AgentResponse `json:"response"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.RequestID == "" {
		writeError(w, http.StatusBadRequest, "", "invalid response body")
		return
	}

	if !transport.HandleAgentResponse(body.RequestID, body.Response) {
		writeError(w, http.StatusNotFound, "", "no pending dispatch for that request id")
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Status string `json:"status"`
	}{Status: "accepted"})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, struct {
		Error string `json:"error"`
		Code  string `json:"code,omitempty"`
	}{Error: message, Code: code})
}

// corsMiddleware adds permissive CORS headers to every response.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
