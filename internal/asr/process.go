package asr

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/hubenschmidt/interview-assistant/internal/failure"
)

const maxLineBytes = 1 << 20

// ProcessConfig describes an engine binary speaking NDJSON on stdio.
type ProcessConfig struct {
	Binary     string
	Model      string
	Device     string
	ChunkMs    int
	EndpointMs int
	ExtraArgs  []string
	Env        map[string]string
}

// ProcessDialer spawns a fresh engine process per session.
type ProcessDialer struct {
	Config ProcessConfig
}

func (d ProcessDialer) Dial(opts StartOptions) (Transport, error) {
	cfg := d.Config
	if strings.TrimSpace(cfg.Binary) == "" {
		return nil, failure.Errorf(failure.ErrConfiguration, "asr binary is not configured")
	}
	path, err := exec.LookPath(cfg.Binary)
	if err != nil {
		return nil, failure.Errorf(failure.ErrConfiguration, "asr binary %q not found", cfg.Binary)
	}
	if looksLikePath(cfg.Model) {
		if _, err := os.Stat(cfg.Model); err != nil {
			return nil, failure.Errorf(failure.ErrConfiguration, "asr model %q not found", cfg.Model)
		}
	}

	return &processTransport{
		path: path,
		args: processArgs(cfg, opts),
		env:  processEnv(cfg.Env),
		cfg:  cfg,
	}, nil
}

func looksLikePath(model string) bool {
	return strings.ContainsRune(model, os.PathSeparator) || strings.HasPrefix(model, ".")
}

func processArgs(cfg ProcessConfig, opts StartOptions) []string {
	var args []string
	if cfg.Model != "" {
		args = append(args, "--model", cfg.Model)
	}
	if opts.Language != "" {
		args = append(args, "--language", opts.Language)
	}
	if cfg.Device != "" {
		args = append(args, "--device", cfg.Device)
	}
	if cfg.ChunkMs > 0 {
		args = append(args, "--chunk-ms", strconv.Itoa(cfg.ChunkMs))
	}
	if cfg.EndpointMs > 0 {
		args = append(args, "--endpoint-ms", strconv.Itoa(cfg.EndpointMs))
	}
	return append(args, cfg.ExtraArgs...)
}

func processEnv(extra map[string]string) []string {
	env := os.Environ()
	for k, v := range extra {
		env = append(env, k+"="+v)
	}
	return env
}

type processTransport struct {
	path string
	args []string
	env  []string
	cfg  ProcessConfig

	mu     sync.Mutex
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	exited chan struct{}
	closed bool
}

// killGrace is how long Close waits after SIGTERM before killing the engine.
var killGrace = 2 * time.Second

func (p *processTransport) Connect(_ context.Context, h Handler) error {
	// Held through Start so a concurrent Close either wins before the spawn
	// or finds the process to signal.
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return fmt.Errorf("asr process closed before start")
	}
	cmd, stdin, stdout, stderr, err := p.spawn()
	if err != nil {
		p.mu.Unlock()
		return err
	}
	p.cmd = cmd
	p.stdin = stdin
	p.exited = make(chan struct{})
	exited := p.exited
	p.mu.Unlock()

	var readers sync.WaitGroup
	readers.Add(2)
	go func() {
		defer readers.Done()
		scanLines(stdout, func(line string) {
			if h.OnMessage != nil {
				h.OnMessage([]byte(line))
			}
		})
	}()
	go func() {
		defer readers.Done()
		scanLines(stderr, func(line string) {
			if h.OnStderr != nil {
				h.OnStderr(line)
			}
		})
	}()
	go func() {
		readers.Wait()
		err := cmd.Wait()
		close(exited)
		if h.OnClose != nil {
			h.OnClose(exitError(err))
		}
	}()
	return nil
}

func (p *processTransport) spawn() (*exec.Cmd, io.WriteCloser, io.ReadCloser, io.ReadCloser, error) {
	cmd := exec.Command(p.path, p.args...)
	cmd.Env = p.env

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("start %s: %w", p.path, err)
	}
	return cmd, stdin, stdout, stderr, nil
}

// scanLines calls fn for every non-blank line. A partial trailing line is
// carried across reads by the scanner.
func scanLines(r io.Reader, fn func(string)) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		fn(line)
	}
}

func exitError(err error) error {
	if err == nil {
		return failure.Errorf(failure.ErrProcessExit, "asr process exited with code 0")
	}
	return failure.Errorf(failure.ErrProcessExit, "asr process exited: %v", err)
}

func (p *processTransport) Handshake(opts StartOptions) []Frame {
	start := map[string]any{
		"type":        "start",
		"sample_rate": opts.SampleRate,
		"chunk_ms":    p.cfg.ChunkMs,
		"endpoint_ms": p.cfg.EndpointMs,
	}
	if opts.Language != "" {
		start["language"] = opts.Language
	}
	return []Frame{ndjson(start)}
}

func (p *processTransport) EncodeChunk(c Chunk) (Frame, error) {
	data, err := json.Marshal(chunkMessage{
		Type:        "chunk",
		ChunkID:     c.ID,
		Audio:       base64.StdEncoding.EncodeToString(c.PCM),
		ChunkSentAt: c.SentAt.UnixMilli(),
	})
	if err != nil {
		return Frame{}, fmt.Errorf("marshal chunk %d: %w", c.ID, err)
	}
	return Frame{Data: append(data, '\n')}, nil
}

func (p *processTransport) StopFrame() (Frame, bool) {
	return ndjson(map[string]any{"type": "stop"}), true
}

func (p *processTransport) Send(f Frame) error {
	p.mu.Lock()
	stdin := p.stdin
	closed := p.closed
	p.mu.Unlock()
	if stdin == nil || closed {
		return fmt.Errorf("asr process not running")
	}
	_, err := stdin.Write(f.Data)
	return err
}

// Close closes stdin and sends SIGTERM, escalating to SIGKILL if the engine
// is still running after killGrace. The exit is reported via OnClose.
func (p *processTransport) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	if p.stdin != nil {
		_ = p.stdin.Close()
	}
	cmd, exited := p.cmd, p.exited
	p.mu.Unlock()

	if cmd == nil || cmd.Process == nil {
		return nil
	}
	if err := cmd.Process.Signal(syscall.SIGTERM); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("signal asr process: %w", err)
	}
	go func() {
		timer := time.NewTimer(killGrace)
		defer timer.Stop()
		select {
		case <-exited:
		case <-timer.C:
			_ = cmd.Process.Kill()
		}
	}()
	return nil
}

type chunkMessage struct {
	Type        string `json:"type"`
	ChunkID     int64  `json:"chunk_id"`
	Audio       string `json:"audio"`
	ChunkSentAt int64  `json:"chunk_sent_at"`
}

func ndjson(v any) Frame {
	data, _ := json.Marshal(v)
	return Frame{Data: append(data, '\n')}
}
