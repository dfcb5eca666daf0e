package tsp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/agentmesh/orchestrator/internal/common/logger"
)

// LaunchSpec describes how to start a tool server subprocess: either an
// explicit command+args, or a path+type pair where type selects the
// canonical interpreter.
type LaunchSpec struct {
	Command string
	Args    []string
	Path    string
	Type    string // python, node, custom
}

// resolveCommand derives the actual argv from the descriptor, applying the
// path+type -> interpreter convention when Command is unset.
func (s LaunchSpec) resolveCommand() (string, []string, error) {
	if s.Command != "" {
		return s.Command, s.Args, nil
	}
	switch s.Type {
	case "python":
		return "python3", append([]string{s.Path}, s.Args...), nil
	case "node":
		return "node", append([]string{s.Path}, s.Args...), nil
	default:
		return "", nil, fmt.Errorf("tool server launch spec has neither command nor a recognized path+type (got type %q)", s.Type)
	}
}

// process owns one subprocess tool server's stdio and request/response loop.
// Concurrent tool calls are serialized at this boundary by reqMu — the TSP
// boundary itself, per spec, unless a server advertises multiplexing (no
// server in this implementation does).
type process struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Reader

	nextID  int64
	pending sync.Map // id -> chan *jsonrpcResponse

	reqMu sync.Mutex // serializes request/response turns on this subprocess

	exited chan struct{}
	logger *logger.Logger
}

func startProcess(ctx context.Context, spec LaunchSpec, log *logger.Logger) (*process, error) {
	command, args, err := spec.resolveCommand()
	if err != nil {
		return nil, err
	}

	cmd := exec.Command(command, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}
	cmd.SysProcAttr = buildSysProcAttr()

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start tool server subprocess: %w", err)
	}

	p := &process{
		cmd:    cmd,
		stdin:  stdin,
		stdout: bufio.NewReader(stdout),
		exited: make(chan struct{}),
		logger: log,
	}

	go p.pipeStderr(stderr)
	go p.readLoop()
	go p.monitorExit()

	return p, nil
}

func (p *process) pipeStderr(stderr io.ReadCloser) {
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		p.logger.Warn("tool server stderr", zap.String("line", scanner.Text()))
	}
}

func (p *process) monitorExit() {
	_ = p.cmd.Wait()
	close(p.exited)
}

// readLoop reads newline-delimited JSON-RPC frames from stdout and resolves
// the matching pending call by id. Unsolicited notifications are logged and
// dropped — the adapter doesn't currently act on server-pushed notifications.
func (p *process) readLoop() {
	for {
		line, err := p.stdout.ReadBytes('\n')
		if len(line) > 0 {
			var resp jsonrpcResponse
			if err := json.Unmarshal(line, &resp); err != nil {
				p.logger.Warn("tool server sent unparsable frame", zap.Error(err))
				continue
			}
			if resp.ID == nil {
				continue // notification, not a response to a pending call
			}
			key := fmt.Sprintf("%v", resp.ID)
			if ch, ok := p.pending.LoadAndDelete(key); ok {
				ch.(chan *jsonrpcResponse) <- &resp
			}
		}
		if err != nil {
			return
		}
	}
}

// jsonrpcResponse is a local decode target matching jsonrpc.Response's shape,
// kept separate so partial/invalid frames don't abort the whole read loop.
type jsonrpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *struct {
		Code    int             `json:"code"`
		Message string          `json:"message"`
		Data    json.RawMessage `json:"data,omitempty"`
	} `json:"error,omitempty"`
}

// call sends a JSON-RPC request and awaits its response, serialized against
// any other in-flight call on this subprocess.
func (p *process) call(ctx context.Context, method string, params interface{}, timeout time.Duration) (json.RawMessage, error) {
	p.reqMu.Lock()
	defer p.reqMu.Unlock()

	id := atomic.AddInt64(&p.nextID, 1)
	paramsRaw, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	req := struct {
		JSONRPC string          `json:"jsonrpc"`
		ID      int64           `json:"id"`
		Method  string          `json:"method"`
		Params  json.RawMessage `json:"params,omitempty"`
	}{JSONRPC: "2.0", ID: id, Method: method, Params: paramsRaw}

	data, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	key := fmt.Sprintf("%v", float64(id)) // matches how encoding/json decodes numeric ids
	replyCh := make(chan *jsonrpcResponse, 1)
	p.pending.Store(key, replyCh)
	defer p.pending.Delete(key)

	if _, err := p.stdin.Write(append(data, '\n')); err != nil {
		return nil, fmt.Errorf("write to tool server: %w", err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case resp := <-replyCh:
		if resp.Error != nil {
			return nil, fmt.Errorf("tool server error %d: %s", resp.Error.Code, resp.Error.Message)
		}
		return resp.Result, nil
	case <-timer.C:
		return nil, fmt.Errorf("tool server call %q timed out after %s", method, timeout)
	case <-p.exited:
		return nil, fmt.Errorf("tool server exited while awaiting %q", method)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// stop terminates the subprocess: SIGTERM, then SIGKILL if it hasn't exited
// within the grace period.
func (p *process) stop(ctx context.Context, grace time.Duration) {
	select {
	case <-p.exited:
		return
	default:
	}

	_ = gracefulStop(p.cmd.Process)

	select {
	case <-p.exited:
	case <-time.After(grace):
		_ = p.cmd.Process.Kill()
	case <-ctx.Done():
		_ = p.cmd.Process.Kill()
	}
	_ = p.stdin.Close()
}
