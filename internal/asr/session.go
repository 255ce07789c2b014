package asr

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/hubenschmidt/interview-assistant/internal/failure"
	"github.com/hubenschmidt/interview-assistant/internal/metrics"
)

const (
	defaultReadyTimeout = 4 * time.Second
	defaultSampleRate   = 16000
	stopWriteTimeout    = 500 * time.Millisecond
	// maxPendingChunks bounds the latency map for engines that never echo
	// chunk ids.
	maxPendingChunks = 4096
)

var errStopped = errors.New("asr session stopped")

// Config tunes a session.
type Config struct {
	ReadyTimeout time.Duration
	Logger       *slog.Logger
	Now          func() time.Time
}

// Session owns at most one live engine connection at a time. All methods
// are safe for concurrent use.
type Session struct {
	dialer    Dialer
	cfg       Config
	log       *slog.Logger
	listeners []Listener

	mu        sync.Mutex
	state     State
	epoch     uint64
	transport Transport
	writer    *writer
	nextChunk int64
	pending   map[int64]time.Time
	ready     chan struct{}
	readySet  bool
	startErr  chan error
}

// NewSession creates an idle session. Listeners are fixed for its lifetime.
func NewSession(dialer Dialer, cfg Config, listeners ...Listener) *Session {
	if cfg.ReadyTimeout <= 0 {
		cfg.ReadyTimeout = defaultReadyTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Session{
		dialer:    dialer,
		cfg:       cfg,
		log:       log,
		listeners: listeners,
		state:     StateIdle,
		pending:   make(map[int64]time.Time),
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Ready reports whether audio is currently accepted.
func (s *Session) Ready() bool {
	return s.State().Accepting()
}

// PendingLatencies returns the number of sent chunks not yet acknowledged.
func (s *Session) PendingLatencies() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Start stops any running session, opens a new transport, sends the
// handshake and waits for the engine to become ready. Engines that never
// announce readiness are assumed ready once the ready timeout elapses.
func (s *Session) Start(ctx context.Context, opts StartOptions) error {
	if opts.SampleRate <= 0 {
		opts.SampleRate = defaultSampleRate
	}
	if s.State().Running() {
		s.Stop()
	}

	transport, err := s.dialer.Dial(opts)
	if err != nil {
		metrics.SessionStarts.WithLabelValues(failure.Label(err)).Inc()
		s.emit(StatusEvent{Status: StatusError, Message: err.Error(), Err: err})
		return err
	}

	s.mu.Lock()
	next, err := Transition(s.state, TriggerStart)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.state = next
	s.epoch++
	epoch := s.epoch
	s.transport = transport
	s.nextChunk = 1
	s.pending = make(map[int64]time.Time)
	s.ready = make(chan struct{})
	s.readySet = false
	s.startErr = make(chan error, 1)
	readyCh, errCh := s.ready, s.startErr
	s.mu.Unlock()

	s.log.Info("asr session starting", "language", opts.Language, "sample_rate", opts.SampleRate)
	s.emit(StatusEvent{Status: StatusStarting, Message: "starting asr engine"})

	if err := transport.Connect(ctx, s.handler(epoch)); err != nil {
		return s.abortStart(epoch, transport, failure.Errorf(failure.ErrConnection, "connect asr engine: %v", err))
	}

	w := newWriter(transport.Send, func(err error) { s.onWriteError(epoch, err) })
	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		w.close()
		_ = transport.Close()
		metrics.SessionStarts.WithLabelValues("connection").Inc()
		return failure.Errorf(failure.ErrConnection, "asr session closed during start")
	}
	s.writer = w
	s.mu.Unlock()

	for _, f := range transport.Handshake(opts) {
		if err := w.control(ctx, f); err != nil {
			return s.abortStart(epoch, transport, failure.Errorf(failure.ErrConnection, "send asr handshake: %v", err))
		}
	}

	if r, ok := transport.(ReadyOnConnect); ok && r.ReadyOnConnect() {
		s.markReady(epoch, "asr engine connected")
	}

	timer := time.NewTimer(s.cfg.ReadyTimeout)
	defer timer.Stop()

	select {
	case <-readyCh:
	case err := <-errCh:
		return s.abortStart(epoch, transport, err)
	case <-timer.C:
		s.log.Warn("asr engine sent no ready signal, assuming ready", "timeout", s.cfg.ReadyTimeout)
		s.markReady(epoch, "no ready signal, assuming ready")
	case <-ctx.Done():
		return s.abortStart(epoch, transport, failure.Errorf(failure.ErrConnection, "asr start cancelled: %v", ctx.Err()))
	}

	s.mu.Lock()
	ok := s.epoch == epoch && s.state.Accepting()
	s.mu.Unlock()
	if !ok {
		_ = transport.Close()
		metrics.SessionStarts.WithLabelValues("connection").Inc()
		return failure.Errorf(failure.ErrConnection, "asr session closed during start")
	}

	metrics.SessionStarts.WithLabelValues("ok").Inc()
	s.log.Info("asr session ready")
	return nil
}

// SendAudioChunk stamps pcm with the next chunk id and queues it. Returns
// false without side effects unless the session is ready.
func (s *Session) SendAudioChunk(pcm []byte) bool {
	if len(pcm) == 0 {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.state.Accepting() || s.writer == nil {
		return false
	}

	now := s.cfg.Now()
	id := s.nextChunk
	frame, err := s.transport.EncodeChunk(Chunk{ID: id, PCM: pcm, SentAt: now})
	if err != nil {
		s.log.Warn("encode audio chunk", "chunk_id", id, "error", err)
		return false
	}
	if !s.writer.audio(frame) {
		return false
	}

	s.nextChunk++
	s.pending[id] = now
	delete(s.pending, id-maxPendingChunks)
	if next, err := Transition(s.state, TriggerChunk); err == nil {
		s.state = next
	}
	metrics.ChunksSent.Inc()
	return true
}

// Stop sends a best-effort stop message, then closes the transport and
// resets all session-local counters regardless of whether the stop landed.
func (s *Session) Stop() {
	s.mu.Lock()
	if s.transport == nil {
		s.mu.Unlock()
		return
	}
	t, w := s.transport, s.writer
	wasActive := s.state.Accepting()
	select {
	case s.startErr <- failure.Errorf(failure.ErrConnection, "%v", errStopped):
	default:
	}
	s.resetLocked(StateStopped)
	s.mu.Unlock()

	if w != nil {
		if f, ok := t.StopFrame(); ok {
			ctx, cancel := context.WithTimeout(context.Background(), stopWriteTimeout)
			if err := w.control(ctx, f); err != nil {
				s.log.Debug("asr stop message not delivered", "error", err)
			}
			cancel()
		}
	}
	if err := t.Close(); err != nil {
		s.log.Debug("close asr transport", "error", err)
	}
	if w != nil {
		w.close()
	}
	if wasActive {
		metrics.SessionsActive.Dec()
	}

	s.log.Info("asr session stopped")
	s.emit(StatusEvent{Status: StatusStopped, Message: "asr session stopped"})
}

// resetLocked invalidates in-flight callbacks and clears per-session state.
func (s *Session) resetLocked(state State) {
	s.epoch++
	s.state = state
	s.transport = nil
	s.writer = nil
	s.nextChunk = 1
	s.pending = make(map[int64]time.Time)
}

func (s *Session) current(epoch uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.epoch == epoch
}

// fail tears the session down into the error state. Returns false if epoch
// is stale.
func (s *Session) fail(epoch uint64, err error, status Status) bool {
	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		return false
	}
	t, w := s.transport, s.writer
	wasActive := s.state.Accepting()
	s.resetLocked(StateError)
	s.mu.Unlock()

	if t != nil {
		_ = t.Close()
	}
	if w != nil {
		w.close()
	}
	if wasActive {
		metrics.SessionsActive.Dec()
	}
	metrics.Errors.WithLabelValues("asr", failure.Label(err)).Inc()
	s.log.Error("asr session failed", "error", err)
	s.emit(StatusEvent{Status: status, Message: err.Error(), Err: err})
	return true
}

// abortStart fails the session. When Stop already superseded this start,
// t is no longer owned by the session and is closed here instead.
func (s *Session) abortStart(epoch uint64, t Transport, err error) error {
	metrics.SessionStarts.WithLabelValues(failure.Label(err)).Inc()
	if !s.fail(epoch, err, StatusError) {
		_ = t.Close()
	}
	return err
}

func (s *Session) markReady(epoch uint64, msg string) {
	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		return
	}
	next, err := Transition(s.state, TriggerReady)
	if err != nil {
		s.mu.Unlock()
		return
	}
	first := s.state == StateStarting
	s.state = next
	signal := !s.readySet
	s.readySet = true
	ready := s.ready
	s.mu.Unlock()

	if first {
		metrics.SessionsActive.Inc()
	}
	// Listeners see ready before Start returns.
	s.emit(StatusEvent{Status: StatusReady, Message: msg})
	if signal {
		close(ready)
	}
}

func (s *Session) handler(epoch uint64) Handler {
	return Handler{
		OnMessage: func(data []byte) { s.handleMessage(epoch, data) },
		OnStderr: func(line string) {
			if !s.current(epoch) {
				return
			}
			s.log.Warn("asr engine stderr", "line", line)
			s.emit(StatusEvent{Status: StatusInfo, Message: line})
		},
		OnClose: func(err error) { s.handleClose(epoch, err) },
	}
}

func (s *Session) handleClose(epoch uint64, err error) {
	if err == nil {
		err = failure.Errorf(failure.ErrProcessExit, "asr transport closed")
	}
	if s.rejectStart(epoch, failure.Errorf(failure.ErrConnection, "asr engine closed before ready: %v", err)) {
		return
	}
	s.fail(epoch, err, StatusStopped)
}

// onWriteError runs on the writer goroutine. A failed write means the peer
// is going away; teardown happens when the transport reports the close.
func (s *Session) onWriteError(epoch uint64, err error) {
	if !s.current(epoch) {
		return
	}
	metrics.Errors.WithLabelValues("asr", "connection").Inc()
	s.log.Warn("write to asr engine", "error", err)
}

// rejectStart hands err to a Start still waiting for readiness.
func (s *Session) rejectStart(epoch uint64, err error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != epoch || s.state != StateStarting {
		return false
	}
	select {
	case s.startErr <- err:
	default:
	}
	return true
}

func (s *Session) handleMessage(epoch uint64, data []byte) {
	if !s.current(epoch) {
		return
	}
	m, err := decodeMessage(data)
	if err != nil {
		s.protocolError(err)
		return
	}

	switch m.Type {
	case "ready", "started":
		s.markReady(epoch, "asr engine ready")
	case "transcript":
		s.handleTranscript(m)
	case "status":
		switch m.Status {
		case "ready":
			s.markReady(epoch, m.Message)
		case "error":
			s.upstreamError(epoch, m.Message)
		default:
			msg := m.Status
			if m.Message != "" {
				msg += ": " + m.Message
			}
			s.emit(StatusEvent{Status: StatusInfo, Message: msg})
		}
	case "error":
		s.upstreamError(epoch, m.Message)
	default:
		s.protocolError(failure.Errorf(failure.ErrProtocol, "unknown message type %q from asr engine", m.Type))
	}
}

func (s *Session) handleTranscript(m engineMessage) {
	now := s.cfg.Now()

	var latency *float64
	s.mu.Lock()
	if m.ChunkID != 0 {
		if m.ChunkSentAt != 0 {
			latency = msSince(now, time.UnixMilli(m.ChunkSentAt))
		} else if sent, ok := s.pending[m.ChunkID]; ok {
			latency = msSince(now, sent)
		}
		delete(s.pending, m.ChunkID)
	}
	s.mu.Unlock()

	if latency != nil {
		metrics.ChunkLatency.Observe(*latency / 1000)
	} else {
		latency = m.LatencyMs
	}

	final := m.final()
	kind := "partial"
	if final {
		kind = "final"
	}
	metrics.TranscriptSegments.WithLabelValues(kind).Inc()

	s.emit(TranscriptEvent{
		Text:       m.text(),
		IsFinal:    final,
		Confidence: m.Confidence,
		LatencyMs:  latency,
		ChunkID:    m.ChunkID,
	})
}

func (s *Session) upstreamError(epoch uint64, msg string) {
	if msg == "" {
		msg = "asr engine reported an error"
	}
	err := failure.Errorf(failure.ErrUpstream, "%s", msg)
	if s.rejectStart(epoch, err) {
		return
	}
	metrics.Errors.WithLabelValues("asr", "upstream").Inc()
	s.log.Warn("asr engine error", "message", msg)
	s.emit(StatusEvent{Status: StatusError, Message: msg, Err: err})
}

func (s *Session) protocolError(err error) {
	metrics.Errors.WithLabelValues("asr", "protocol").Inc()
	s.log.Warn("asr protocol error", "error", err)
	s.emit(StatusEvent{Status: StatusError, Message: err.Error(), Err: err})
}

func (s *Session) emit(ev Event) {
	for _, l := range s.listeners {
		l(ev)
	}
}

func msSince(now, then time.Time) *float64 {
	ms := float64(now.Sub(then).Microseconds()) / 1000
	return &ms
}
