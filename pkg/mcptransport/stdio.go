package mcptransport

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/cubicler/cubicler/pkg/logging"
)

// StdioTransport spawns a local command and speaks line-delimited JSON-RPC
// over its stdin/stdout, with stderr drained to the debug log.
type StdioTransport struct {
	identifier string
	command    []string
	workDir    string
	env        []string
	logger     *slog.Logger
	requestID  atomic.Int64

	procMu  sync.Mutex
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	started bool

	responses   map[int64]chan *Response
	responsesMu sync.Mutex

	connected atomic.Bool
}

// NewStdioTransport builds a transport for the given command, run in workDir
// with env merged over the current process environment.
func NewStdioTransport(identifier string, command []string, workDir string, env map[string]string, logger *slog.Logger) *StdioTransport {
	envList := os.Environ()
	for k, v := range env {
		envList = append(envList, fmt.Sprintf("%s=%s", k, v))
	}
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	return &StdioTransport{
		identifier: identifier,
		command:    command,
		workDir:    workDir,
		env:        envList,
		logger:     logger,
		responses:  make(map[int64]chan *Response),
	}
}

func (t *StdioTransport) ServerIdentifier() string { return t.identifier }

func (t *StdioTransport) IsConnected() bool { return t.connected.Load() }

func (t *StdioTransport) connect(ctx context.Context) error {
	t.procMu.Lock()
	defer t.procMu.Unlock()

	if t.started {
		return nil
	}
	if len(t.command) == 0 {
		return fmt.Errorf("no command specified for %s", t.identifier)
	}

	cmd := exec.Command(t.command[0], t.command[1:]...)
	cmd.Dir = t.workDir
	cmd.Env = t.env

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("creating stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return fmt.Errorf("creating stdout pipe: %w", err)
	}
	if stderr, err := cmd.StderrPipe(); err == nil {
		go t.readStderr(stderr)
	}

	if err := cmd.Start(); err != nil {
		stdin.Close()
		return fmt.Errorf("starting process %s: %w", t.identifier, err)
	}

	t.cmd = cmd
	t.stdin = stdin
	t.started = true

	go t.readResponses(stdout)
	return nil
}

func (t *StdioTransport) readResponses(stdout io.Reader) {
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var resp Response
		if err := json.Unmarshal(line, &resp); err != nil {
			t.logger.Info("server output", "server", t.identifier, "msg", string(line))
			continue
		}
		if resp.ID == nil || (resp.Result == nil && resp.Error == nil) {
			continue
		}
		var id int64
		if err := json.Unmarshal(*resp.ID, &id); err != nil {
			continue
		}
		t.responsesMu.Lock()
		if ch, ok := t.responses[id]; ok {
			ch <- &resp
			delete(t.responses, id)
		}
		t.responsesMu.Unlock()
	}
}

func (t *StdioTransport) readStderr(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		t.logger.Warn("server stderr", "server", t.identifier, "output", scanner.Text())
	}
}

func (t *StdioTransport) Initialize(ctx context.Context) error {
	if err := t.connect(ctx); err != nil {
		return err
	}

	params := InitializeParams{
		ProtocolVersion: ProtocolVersion,
		ClientInfo:      ClientInfo{Name: "cubicler", Version: "1.0.0"},
		Capabilities:    Capabilities{Tools: &ToolsCapability{}},
	}
	if _, err := t.SendRequest(ctx, "initialize", params); err != nil {
		return fmt.Errorf("initialize %s: %w", t.identifier, err)
	}
	_ = t.notify(ctx, "notifications/initialized", nil)
	t.connected.Store(true)
	return nil
}

func (t *StdioTransport) SendRequest(ctx context.Context, method string, params any) (json.RawMessage, error) {
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

	respCh := make(chan *Response, 1)
	t.responsesMu.Lock()
	t.responses[id] = respCh
	t.responsesMu.Unlock()

	if err := t.send(req); err != nil {
		t.responsesMu.Lock()
		delete(t.responses, id)
		t.responsesMu.Unlock()
		return nil, err
	}

	timer := time.NewTimer(DefaultRequestTimeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		t.responsesMu.Lock()
		delete(t.responses, id)
		t.responsesMu.Unlock()
		return nil, ctx.Err()
	case <-timer.C:
		t.responsesMu.Lock()
		delete(t.responses, id)
		t.responsesMu.Unlock()
		return nil, fmt.Errorf("timeout waiting for response from %s", t.identifier)
	case resp := <-respCh:
		if resp.Error != nil {
			return nil, fmt.Errorf("RPC error %d from %s: %s", resp.Error.Code, t.identifier, resp.Error.Message)
		}
		return resp.Result, nil
	}
}

func (t *StdioTransport) notify(ctx context.Context, method string, params any) error {
	var paramsBytes json.RawMessage
	if params != nil {
		var err error
		paramsBytes, err = json.Marshal(params)
		if err != nil {
			return fmt.Errorf("marshaling params: %w", err)
		}
	}
	return t.send(Request{JSONRPC: "2.0", Method: method, Params: paramsBytes})
}

func (t *StdioTransport) send(req Request) error {
	t.procMu.Lock()
	defer t.procMu.Unlock()

	if !t.started || t.stdin == nil {
		return fmt.Errorf("%s not connected", t.identifier)
	}
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}
	if _, err := t.stdin.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("writing to stdin: %w", err)
	}
	return nil
}

// Close sends SIGTERM, waits up to DefaultStdioKillGrace, then SIGKILLs.
func (t *StdioTransport) Close() error {
	t.connected.Store(false)
	t.procMu.Lock()
	defer t.procMu.Unlock()

	if t.cmd == nil || t.cmd.Process == nil {
		return nil
	}
	if t.stdin != nil {
		t.stdin.Close()
	}
	if err := t.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		return nil
	}

	done := make(chan error, 1)
	go func() { done <- t.cmd.Wait() }()

	select {
	case <-done:
		return nil
	case <-time.After(DefaultStdioKillGrace):
		_ = t.cmd.Process.Kill()
		<-done
		return nil
	}
}
