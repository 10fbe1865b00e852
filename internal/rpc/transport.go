// Package rpc talks to the capture subordinate: a child process that
// speaks newline-delimited JSON-RPC 2.0 over its stdin and stdout.
//
// Each request is one JSON object followed by "\n". Responses may arrive in
// any order and in arbitrarily split chunks; they are matched to callers by
// id. Every call has its own timeout. Output that is not a well-formed
// response is logged and dropped, so a chatty subordinate cannot break the
// transport.
package rpc

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	slotel "github.com/timvw/shotlens/internal/otel"
)

const (
	// DefaultSettleDelay is how long Start waits after spawning before the
	// transport is considered connected.
	DefaultSettleDelay = time.Second

	// DefaultRequestTimeout bounds each call.
	DefaultRequestTimeout = 30 * time.Second
)

var tracer = otel.Tracer("shotlens/rpc")

// State is the lifecycle state of a Transport.
type State int

const (
	StateNotStarted State = iota
	StateStarting
	StateConnected
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not_started"
	case StateStarting:
		return "starting"
	case StateConnected:
		return "connected"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Options configures a Transport.
type Options struct {
	// Command and Args launch the subordinate.
	Command string
	Args    []string
	// Dir is the working directory; empty inherits ours.
	Dir string
	// Env replaces the environment when non-nil.
	Env []string

	// SettleDelay defaults to DefaultSettleDelay; negative skips the wait.
	SettleDelay time.Duration
	// RequestTimeout defaults to DefaultRequestTimeout.
	RequestTimeout time.Duration

	Logger  *slog.Logger
	Metrics *slotel.Metrics // nil-safe
}

// Transport owns one subordinate process. It moves through NotStarted,
// Starting, Connected and Stopped, and is never restarted.
type Transport struct {
	opts   Options
	logger *slog.Logger

	mu     sync.Mutex
	state  State
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	exited chan struct{}
	once   sync.Once

	writeMu sync.Mutex
	nextID  atomic.Int64

	pendingMu sync.Mutex
	pending   map[int64]*pendingCall

	// buf holds unconsumed stdout bytes. Only the read loop touches it.
	buf []byte
}

type pendingCall struct {
	id          int64
	method      string
	submittedAt time.Time
	done        chan callResult
	timer       *time.Timer
}

type callResult struct {
	result json.RawMessage
	err    error
}

// New creates a Transport. Nothing is spawned until Start.
func New(opts Options) *Transport {
	if opts.SettleDelay == 0 {
		opts.SettleDelay = DefaultSettleDelay
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Transport{
		opts:    opts,
		logger:  logger,
		exited:  make(chan struct{}),
		pending: make(map[int64]*pendingCall),
	}
}

// State returns the current lifecycle state.
func (t *Transport) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Done is closed once the subordinate has exited, or on Stop if it was
// never started.
func (t *Transport) Done() <-chan struct{} {
	return t.exited
}

// Start spawns the subordinate and waits for the settle delay. It fails
// with ErrSpawn if the process cannot be launched or exits while settling,
// and returns ctx.Err() (after stopping the process) if ctx ends first.
func (t *Transport) Start(ctx context.Context) error {
	t.mu.Lock()
	if t.state != StateNotStarted {
		t.mu.Unlock()
		return ErrAlreadyStarted
	}
	t.state = StateStarting
	t.mu.Unlock()

	if t.opts.Command == "" {
		t.markStopped()
		return fmt.Errorf("%w: no command configured", ErrSpawn)
	}

	cmd := exec.Command(t.opts.Command, t.opts.Args...)
	cmd.Dir = t.opts.Dir
	if t.opts.Env != nil {
		cmd.Env = t.opts.Env
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		t.markStopped()
		return fmt.Errorf("%w: stdin pipe: %w", ErrSpawn, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		t.markStopped()
		return fmt.Errorf("%w: stdout pipe: %w", ErrSpawn, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		t.markStopped()
		return fmt.Errorf("%w: stderr pipe: %w", ErrSpawn, err)
	}

	t.logger.Info("starting capture subordinate",
		slog.String("command", t.opts.Command),
		slog.Any("args", t.opts.Args),
	)
	if err := cmd.Start(); err != nil {
		t.markStopped()
		return fmt.Errorf("%w: %s: %w", ErrSpawn, t.opts.Command, err)
	}

	t.mu.Lock()
	t.cmd = cmd
	t.stdin = stdin
	stopped := t.state == StateStopped
	t.mu.Unlock()
	if stopped {
		// Stop ran while we were spawning.
		_ = stdin.Close()
		_ = cmd.Process.Kill()
	}

	readDone := make(chan struct{})
	stderrDone := make(chan struct{})
	go func() {
		defer close(readDone)
		t.readLoop(stdout)
	}()
	go func() {
		defer close(stderrDone)
		t.drainStderr(stderr)
	}()
	// Wait closes the pipes, so it must only run once both readers are done.
	go func() {
		<-readDone
		<-stderrDone
		t.handleExit(cmd.Wait())
	}()

	if t.opts.SettleDelay > 0 {
		timer := time.NewTimer(t.opts.SettleDelay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-t.exited:
			return fmt.Errorf("%w: %s exited during startup", ErrSpawn, t.opts.Command)
		case <-ctx.Done():
			_ = t.Stop()
			return ctx.Err()
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != StateStarting {
		return fmt.Errorf("%w: %s stopped during startup", ErrSpawn, t.opts.Command)
	}
	t.state = StateConnected
	t.logger.Info("capture subordinate connected", slog.Int("pid", cmd.Process.Pid))
	return nil
}

func (t *Transport) markStopped() {
	t.mu.Lock()
	t.state = StateStopped
	t.mu.Unlock()
	t.once.Do(func() { close(t.exited) })
}

// handleExit records process termination. Pending calls are left to
// their own timeouts.
func (t *Transport) handleExit(err error) {
	t.mu.Lock()
	requested := t.state == StateStopped
	t.state = StateStopped
	t.mu.Unlock()

	switch {
	case requested:
		t.logger.Debug("capture subordinate stopped")
	case err != nil:
		t.logger.Warn("capture subordinate exited", slog.Any("error", err))
	default:
		t.logger.Warn("capture subordinate exited")
	}
	t.once.Do(func() { close(t.exited) })
}

func (t *Transport) readLoop(r io.Reader) {
	chunk := make([]byte, 32*1024)
	for {
		n, err := r.Read(chunk)
		if n > 0 {
			t.handleChunk(chunk[:n])
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) {
				t.logger.Debug("subordinate stdout read failed", slog.Any("error", err))
			}
			return
		}
	}
}

func (t *Transport) drainStderr(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		t.logger.Debug("subordinate stderr", slog.String("line", scanner.Text()))
	}
}

// handleChunk appends raw stdout bytes and dispatches every complete line.
// An unterminated tail is kept for the next chunk unless it already forms
// a complete JSON object.
func (t *Transport) handleChunk(chunk []byte) {
	t.buf = append(t.buf, chunk...)

	consumed := 0
	for {
		i := bytes.IndexByte(t.buf[consumed:], '\n')
		if i < 0 {
			break
		}
		t.handleLine(t.buf[consumed : consumed+i])
		consumed += i + 1
	}
	if consumed > 0 {
		t.buf = append([]byte(nil), t.buf[consumed:]...)
	}

	tail := bytes.TrimSpace(t.buf)
	if len(tail) > 0 && tail[0] == '{' && json.Valid(tail) {
		t.buf = nil
		t.handleLine(tail)
	}
}

func (t *Transport) handleLine(line []byte) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return
	}
	var resp response
	if err := json.Unmarshal(line, &resp); err != nil {
		t.logger.Debug("dropping malformed subordinate output",
			slog.String("line", truncate(line, 200)),
			slog.Any("error", err),
		)
		return
	}
	if resp.ID == nil {
		t.logger.Debug("dropping subordinate message without id", slog.String("line", truncate(line, 200)))
		return
	}

	p, ok := t.take(*resp.ID)
	if !ok {
		t.logger.Debug("dropping response for unknown id", slog.Int64("id", *resp.ID))
		return
	}

	if resp.Error != nil {
		p.done <- callResult{err: &RemoteError{
			Code:    resp.Error.Code,
			Message: resp.Error.text(),
			Data:    resp.Error.Data,
		}}
		return
	}
	result := resp.Result
	if result == nil {
		result = json.RawMessage("null")
	}
	p.done <- callResult{result: result}
}

// register adds a pending entry for id and arms its timeout.
func (t *Transport) register(id int64, method string) *pendingCall {
	p := &pendingCall{
		id:          id,
		method:      method,
		submittedAt: time.Now(),
		done:        make(chan callResult, 1),
	}
	t.pendingMu.Lock()
	t.pending[id] = p
	p.timer = time.AfterFunc(t.opts.RequestTimeout, func() { t.expire(id) })
	t.pendingMu.Unlock()
	return p
}

// take removes and returns the pending entry for id. The caller that wins
// take is the only one allowed to complete it.
func (t *Transport) take(id int64) (*pendingCall, bool) {
	t.pendingMu.Lock()
	defer t.pendingMu.Unlock()
	p, ok := t.pending[id]
	if !ok {
		return nil, false
	}
	delete(t.pending, id)
	p.timer.Stop()
	return p, true
}

func (t *Transport) expire(id int64) {
	p, ok := t.take(id)
	if !ok {
		return
	}
	t.logger.Warn("capture request timed out",
		slog.String("method", p.method),
		slog.Int64("id", id),
		slog.Duration("timeout", t.opts.RequestTimeout),
	)
	p.done <- callResult{err: fmt.Errorf("%w: %s after %s", ErrTimeout, p.method, t.opts.RequestTimeout)}
}

func (t *Transport) pendingCount() int {
	t.pendingMu.Lock()
	defer t.pendingMu.Unlock()
	return len(t.pending)
}

// Call sends a tools/call request for method with params as its
// arguments and waits for the matching response. Nil params are sent as
// an empty object. A RemoteError is returned when the subordinate answers
// with an error.
func (t *Transport) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "rpc.call", trace.WithAttributes(attribute.String("rpc.method", method)))
	defer span.End()

	result, err := t.call(ctx, method, params)

	outcome := outcomeOf(err)
	t.opts.Metrics.RecordCall(ctx, method, outcome, time.Since(start))
	span.SetAttributes(attribute.String("rpc.outcome", outcome))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return result, err
}

func (t *Transport) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	t.mu.Lock()
	state, stdin := t.state, t.stdin
	t.mu.Unlock()
	if state != StateConnected {
		return nil, fmt.Errorf("%w (state %s)", ErrNotConnected, state)
	}

	if params == nil {
		params = struct{}{}
	}
	id := t.nextID.Add(1)
	payload, err := json.Marshal(request{
		JSONRPC: jsonrpcVersion,
		ID:      id,
		Method:  toolsCallMethod,
		Params:  toolCall{Name: method, Arguments: params},
	})
	if err != nil {
		return nil, fmt.Errorf("encoding %s request: %w", method, err)
	}
	payload = append(payload, '\n')

	p := t.register(id, method)

	t.writeMu.Lock()
	_, err = stdin.Write(payload)
	t.writeMu.Unlock()
	if err != nil {
		t.take(id)
		return nil, fmt.Errorf("%w: %s: %w", ErrWrite, method, err)
	}

	select {
	case res := <-p.done:
		return res.result, res.err
	case <-ctx.Done():
		t.take(id)
		return nil, ctx.Err()
	}
}

func outcomeOf(err error) string {
	var remote *RemoteError
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &remote):
		return "remote_error"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrWrite):
		return "write_error"
	case errors.Is(err, ErrNotConnected):
		return "not_connected"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "error"
	}
}

// Stop terminates the subordinate. It is idempotent and does not fail
// pending calls; they complete by response or timeout.
func (t *Transport) Stop() error {
	t.mu.Lock()
	prev := t.state
	t.state = StateStopped
	cmd, stdin := t.cmd, t.stdin
	t.mu.Unlock()

	if prev == StateStopped {
		return nil
	}
	if cmd == nil {
		t.once.Do(func() { close(t.exited) })
		return nil
	}

	t.logger.Info("stopping capture subordinate", slog.Int("pid", cmd.Process.Pid))
	if stdin != nil {
		_ = stdin.Close()
	}
	if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("killing capture subordinate: %w", err)
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
