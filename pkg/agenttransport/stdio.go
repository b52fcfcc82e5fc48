package agenttransport

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

	"github.com/cubicler/cubicler/pkg/brokererr"
	"github.com/cubicler/cubicler/pkg/logging"
)

type workerState int32

const (
	stateSpawned workerState = iota
	stateReady
	stateBusy
	stateTerminated
)

// stdioWorker is one pooled subprocess agent: a spawned command with pool
// state and bidirectional request servicing during a dispatch.
type stdioWorker struct {
	id        string
	primary   bool
	command   []string
	cwd       string
	env       map[string]string
	logger    *slog.Logger
	killGrace time.Duration

	cmd      *exec.Cmd
	stdin    io.WriteCloser
	stdout   *bufio.Scanner
	writeMu  sync.Mutex
	state    atomic.Int32
	lastUsed atomic.Int64
	reqID    atomic.Int64
}

func newStdioWorker(id string, primary bool, command []string, cwd string, env map[string]string, killGrace time.Duration, logger *slog.Logger) *stdioWorker {
	w := &stdioWorker{id: id, primary: primary, command: command, cwd: cwd, env: env, killGrace: killGrace, logger: logger}
	w.state.Store(int32(stateSpawned))
	w.touch()
	return w
}

func (w *stdioWorker) touch() { w.lastUsed.Store(time.Now().UnixNano()) }

func (w *stdioWorker) spawn(ctx context.Context) error {
	if len(w.command) == 0 {
		return fmt.Errorf("stdio worker %s: empty command", w.id)
	}
	cmd := exec.Command(w.command[0], w.command[1:]...)
	cmd.Dir = w.cwd
	if len(w.env) > 0 {
		env := os.Environ()
		for k, v := range w.env {
			env = append(env, k+"="+v)
		}
		cmd.Env = env
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("stdio worker %s: stdin pipe: %w", w.id, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdio worker %s: stdout pipe: %w", w.id, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stdio worker %s: stderr pipe: %w", w.id, err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("stdio worker %s: start: %w", w.id, err)
	}

	w.cmd = cmd
	w.stdin = stdin
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	w.stdout = scanner

	go func() {
		s := bufio.NewScanner(stderr)
		for s.Scan() {
			w.logger.Debug("stdio worker stderr", "worker", w.id, "line", s.Text())
		}
	}()

	w.state.Store(int32(stateReady))
	return nil
}

func (w *stdioWorker) send(payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	if _, err := w.stdin.Write(append(raw, '\n')); err != nil {
		return fmt.Errorf("writing to worker: %w", err)
	}
	return nil
}

func (w *stdioWorker) terminate() {
	if w.cmd == nil || w.cmd.Process == nil {
		w.state.Store(int32(stateTerminated))
		return
	}
	prev := workerState(w.state.Swap(int32(stateTerminated)))
	if prev == stateTerminated {
		return
	}
	_ = w.cmd.Process.Signal(syscall.SIGTERM)
	done := make(chan struct{})
	go func() { _ = w.cmd.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(w.killGrace):
		_ = w.cmd.Process.Kill()
		<-done
	}
}

// rpcFrame is the generic line shape read from a worker's stdout: either
// a response to our own dispatch request (has Result/Error) or an inbound
// tools/* request the worker is issuing against the MCP dispatcher (has
// Method).
type rpcFrame struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// StdioPoolTransport pools stdio worker subprocesses behind one dispatch
// interface. Workers move Spawned -> Ready -> Busy -> Ready; non-primary
// workers idle out, the primary never does.
type StdioPoolTransport struct {
	command     []string
	cwd         string
	env         map[string]string
	maxPoolSize int
	maxIdleTime time.Duration
	queueMax    int
	queueWait   time.Duration
	killGrace   time.Duration
	logger      *slog.Logger

	mu      sync.Mutex
	primary *stdioWorker
	pool    []*stdioWorker
	cursor  int
	waiters []chan *stdioWorker
	nextID  atomic.Int64
}

// StdioPoolOptions configures pool sizing and timeouts; zero values take
// the package defaults.
type StdioPoolOptions struct {
	MaxPoolSize int
	MaxIdleTime time.Duration
	QueueMax    int
	QueueWait   time.Duration
	KillGrace   time.Duration
	Logger      *slog.Logger
}

// NewStdioPoolTransport builds a pool for one agent's stdio command. The
// primary worker is spawned lazily on first Dispatch and never idles out.
func NewStdioPoolTransport(command []string, cwd string, env map[string]string, opts StdioPoolOptions) *StdioPoolTransport {
	if opts.MaxPoolSize <= 0 {
		opts.MaxPoolSize = DefaultMaxPoolSize
	}
	if opts.MaxIdleTime <= 0 {
		opts.MaxIdleTime = DefaultStdioIdleTime
	}
	if opts.QueueMax <= 0 {
		opts.QueueMax = DefaultQueueMax
	}
	if opts.QueueWait <= 0 {
		opts.QueueWait = DefaultStdioQueueWait
	}
	if opts.KillGrace <= 0 {
		opts.KillGrace = DefaultStdioKillGrace
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewDiscardLogger()
	}
	return &StdioPoolTransport{
		command: command, cwd: cwd, env: env,
		maxPoolSize: opts.MaxPoolSize, maxIdleTime: opts.MaxIdleTime,
		queueMax: opts.QueueMax, queueWait: opts.QueueWait,
		killGrace: opts.KillGrace, logger: opts.Logger,
	}
}

// ReapIdle terminates and removes non-primary workers idle past
// maxIdleTime. Intended to be called periodically by a caller-owned
// ticker.
func (t *StdioPoolTransport) ReapIdle() {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := time.Now().UnixNano()
	kept := t.pool[:0]
	for _, w := range t.pool {
		if workerState(w.state.Load()) == stateReady && time.Duration(now-w.lastUsed.Load()) > t.maxIdleTime {
			w.terminate()
			continue
		}
		kept = append(kept, w)
	}
	t.pool = kept
}

func (t *StdioPoolTransport) all() []*stdioWorker {
	if t.primary == nil {
		return t.pool
	}
	return append([]*stdioWorker{t.primary}, t.pool...)
}

// acquire reserves a Ready worker via round-robin, spawning one if the
// pool has headroom, or parking on the waiter queue otherwise.
func (t *StdioPoolTransport) acquire(ctx context.Context) (*stdioWorker, error) {
	t.mu.Lock()
	if t.primary == nil {
		t.primary = newStdioWorker("primary", true, t.command, t.cwd, t.env, t.killGrace, t.logger)
		if err := t.primary.spawn(ctx); err != nil {
			t.mu.Unlock()
			return nil, err
		}
	}

	workers := t.all()
	for i := 0; i < len(workers); i++ {
		idx := (t.cursor + i) % len(workers)
		w := workers[idx]
		if workerState(w.state.Load()) == stateReady && w.state.CompareAndSwap(int32(stateReady), int32(stateBusy)) {
			t.cursor = (idx + 1) % len(workers)
			t.mu.Unlock()
			w.touch()
			return w, nil
		}
	}

	if len(t.pool)+1 < t.maxPoolSize {
		w := newStdioWorker(fmt.Sprintf("worker-%d", len(t.pool)+1), false, t.command, t.cwd, t.env, t.killGrace, t.logger)
		if err := w.spawn(ctx); err != nil {
			t.mu.Unlock()
			return nil, err
		}
		w.state.Store(int32(stateBusy))
		t.pool = append(t.pool, w)
		t.mu.Unlock()
		return w, nil
	}

	if len(t.waiters) >= t.queueMax {
		t.mu.Unlock()
		return nil, brokererr.New(brokererr.PoolSaturated, "stdio pool saturated")
	}
	waiter := make(chan *stdioWorker, 1)
	t.waiters = append(t.waiters, waiter)
	t.mu.Unlock()

	timer := time.NewTimer(t.queueWait)
	defer timer.Stop()
	select {
	case w := <-waiter:
		return w, nil
	case <-timer.C:
		t.removeWaiter(waiter)
		return nil, brokererr.New(brokererr.PoolSaturated, "timed out waiting for a stdio worker")
	case <-ctx.Done():
		t.removeWaiter(waiter)
		return nil, ctx.Err()
	}
}

func (t *StdioPoolTransport) removeWaiter(waiter chan *stdioWorker) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, w := range t.waiters {
		if w == waiter {
			t.waiters = append(t.waiters[:i], t.waiters[i+1:]...)
			return
		}
	}
}

// release returns a worker to Ready, handing it straight to the oldest
// waiter if one is parked.
func (t *StdioPoolTransport) release(w *stdioWorker) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if workerState(w.state.Load()) == stateTerminated {
		t.removeTerminatedLocked(w)
		return
	}
	w.touch()
	if len(t.waiters) > 0 {
		waiter := t.waiters[0]
		t.waiters = t.waiters[1:]
		waiter <- w
		return
	}
	w.state.Store(int32(stateReady))
}

func (t *StdioPoolTransport) removeTerminatedLocked(w *stdioWorker) {
	if t.primary == w {
		t.primary = nil
		return
	}
	for i, p := range t.pool {
		if p == w {
			t.pool = append(t.pool[:i], t.pool[i+1:]...)
			return
		}
	}
}

// Dispatch acquires a worker, sends the dispatch request, and services
// any inbound tools/list or tools/call requests from the worker against
// handler until the worker answers our own dispatch call.
func (t *StdioPoolTransport) Dispatch(ctx context.Context, req AgentRequest, handler MCPHandler) (*AgentResponse, error) {
	w, err := t.acquire(ctx)
	if err != nil {
		return nil, err
	}

	id := w.reqID.Add(1)
	if err := w.send(map[string]any{"jsonrpc": "2.0", "id": id, "method": "dispatch", "params": req}); err != nil {
		w.terminate()
		return nil, err
	}

	resp, err := t.readUntilResponse(ctx, w, id, handler)
	if err != nil {
		w.terminate()
		return nil, err
	}
	t.release(w)
	return resp, nil
}

func (t *StdioPoolTransport) readUntilResponse(ctx context.Context, w *stdioWorker, ourID int64, handler MCPHandler) (*AgentResponse, error) {
	lines := make(chan string, 1)
	scanErr := make(chan error, 1)
	go func() {
		if w.stdout.Scan() {
			lines <- w.stdout.Text()
			return
		}
		if err := w.stdout.Err(); err != nil {
			scanErr <- err
			return
		}
		exitCode := 0
		if w.cmd != nil && w.cmd.ProcessState != nil {
			exitCode = w.cmd.ProcessState.ExitCode()
		}
		scanErr <- fmt.Errorf("agent process exited with code %d", exitCode)
	}()

	for {
		select {
		case line := <-lines:
			var frame rpcFrame
			if err := json.Unmarshal([]byte(line), &frame); err != nil {
				return nil, fmt.Errorf("parsing worker message: %w", err)
			}
			if frame.Method != "" {
				t.serviceInbound(ctx, w, frame, handler)
				go func() {
					if w.stdout.Scan() {
						lines <- w.stdout.Text()
						return
					}
					scanErr <- fmt.Errorf("worker stream closed")
				}()
				continue
			}
			if string(frame.ID) != fmt.Sprint(ourID) {
				continue
			}
			if frame.Error != nil {
				return nil, fmt.Errorf("agent error %d: %s", frame.Error.Code, frame.Error.Message)
			}
			var resp AgentResponse
			if err := json.Unmarshal(frame.Result, &resp); err != nil {
				return nil, fmt.Errorf("decoding dispatch result: %w", err)
			}
			if !resp.Complete() {
				return nil, fmt.Errorf("incomplete agent response")
			}
			return &resp, nil
		case err := <-scanErr:
			return nil, err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (t *StdioPoolTransport) serviceInbound(ctx context.Context, w *stdioWorker, frame rpcFrame, handler MCPHandler) {
	if frame.Method != "tools/list" && frame.Method != "tools/call" {
		_ = w.send(map[string]any{"jsonrpc": "2.0", "id": json.RawMessage(frame.ID), "error": map[string]any{"code": -32601, "message": "method not found"}})
		return
	}
	var params any
	if len(frame.Params) > 0 {
		_ = json.Unmarshal(frame.Params, &params)
	}
	result, err := handler.HandleMCPRequest(ctx, frame.Method, params)
	if err != nil {
		code := -32603
		switch brokererr.CodeOf(err) {
		case brokererr.UnknownTool, brokererr.MalformedToolName:
			code = -32601
		}
		_ = w.send(map[string]any{"jsonrpc": "2.0", "id": json.RawMessage(frame.ID), "error": map[string]any{"code": code, "message": err.Error()}})
		return
	}
	_ = w.send(map[string]any{"jsonrpc": "2.0", "id": json.RawMessage(frame.ID), "result": result})
}

// Close terminates every worker, primary included. Parked waiters fail on
// their queue timeout; the pool is unusable afterwards.
func (t *StdioPoolTransport) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.primary != nil {
		t.primary.terminate()
		t.primary = nil
	}
	for _, w := range t.pool {
		w.terminate()
	}
	t.pool = nil
}
