// Package ws serves the IPC surface over WebSocket: loopback audio in,
// commands in, orchestrator events out.
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/hubenschmidt/interview-assistant/internal/asr"
	"github.com/hubenschmidt/interview-assistant/internal/audio"
	"github.com/hubenschmidt/interview-assistant/internal/ipc"
	"github.com/hubenschmidt/interview-assistant/internal/metrics"
	"github.com/hubenschmidt/interview-assistant/internal/mode"
	"github.com/hubenschmidt/interview-assistant/internal/orchestrator"
	"github.com/hubenschmidt/interview-assistant/internal/pipeline"
	"github.com/hubenschmidt/interview-assistant/internal/state"
)

const (
	defaultSampleRate = 16000
	writeTimeout      = 2 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  16384,
	WriteBufferSize: 16384,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Orchestrator is the part of the orchestrator a client may drive.
type Orchestrator interface {
	PushAudio(channels [][]float32, nativeRate int) int
	SendAudioChunk(pcm []byte) bool
	RequestStatus() state.Snapshot
	KnowledgeReady() error
	OverrideMode(m mode.Mode)
	SendHotkey(index int) (pipeline.Suggestion, bool)
	StartASR(ctx context.Context, opts asr.StartOptions) error
	StopASR(ctx context.Context)
	Subscribe(l orchestrator.Listener) func()
}

// HandlerConfig holds the orchestrator and the admission limit.
type HandlerConfig struct {
	Orchestrator  Orchestrator
	MaxConcurrent int
	Logger        *slog.Logger
}

// Handler manages IPC client connections with admission control.
type Handler struct {
	cfg HandlerConfig
	log *slog.Logger
	sem chan struct{}
}

// NewHandler creates a handler admitting at most cfg.MaxConcurrent clients.
func NewHandler(cfg HandlerConfig) *Handler {
	maxConc := cfg.MaxConcurrent
	if maxConc <= 0 {
		maxConc = 8
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		cfg: cfg,
		log: log,
		sem: make(chan struct{}, maxConc),
	}
}

// ServeHTTP upgrades the connection and runs the client session.
// Returns 503 if at max concurrent client capacity.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	select {
	case h.sem <- struct{}{}:
		defer func() { <-h.sem }()
	default:
		http.Error(w, "at capacity", http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	metrics.IPCClientsActive.Inc()
	metrics.IPCClientsTotal.Inc()
	defer metrics.IPCClientsActive.Dec()

	h.runSession(r.Context(), conn)
}

type client struct {
	id         string
	name       string
	sampleRate int
	codec      audio.Codec
	chunked    bool
	send       func(ipc.Channel, any)
	log        *slog.Logger
}

func (h *Handler) runSession(parent context.Context, conn *websocket.Conn) {
	ctx, cancel := context.WithCancel(context.WithoutCancel(parent))
	defer cancel()

	hello, err := readHello(conn)
	if err != nil {
		h.log.Error("read hello", "error", err)
		return
	}

	c := &client{
		id:         uuid.NewString(),
		name:       hello.Client,
		sampleRate: hello.SampleRate,
		codec:      audio.Codec(hello.Codec),
		chunked:    hello.Chunked,
		send:       newEventSender(conn, h.log),
	}
	if c.sampleRate <= 0 {
		c.sampleRate = defaultSampleRate
	}
	c.log = h.log.With("client_id", c.id, "client", c.name)
	c.log.Info("ipc client connected", "sample_rate", c.sampleRate, "chunked", c.chunked)

	unsubscribe := h.cfg.Orchestrator.Subscribe(func(ev orchestrator.Event) {
		c.send(ev.Channel, ev.Payload)
	})
	defer unsubscribe()

	c.send(ipc.StatusSnapshot, h.cfg.Orchestrator.RequestStatus())
	h.processMessages(ctx, conn, c)

	c.log.Info("ipc client disconnected")
}

// processMessages reads frames until the connection closes. Binary frames
// are loopback audio; text frames are commands.
func (h *Handler) processMessages(ctx context.Context, conn *websocket.Conn, c *client) {
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			c.log.Info("connection closed", "error", err)
			return
		}

		if msgType == websocket.BinaryMessage {
			h.pushAudio(c, data)
			continue
		}

		var msg ipc.Message
		if err = json.Unmarshal(data, &msg); err != nil {
			c.send(ipc.Error, ipc.ErrorPayload{Message: fmt.Sprintf("invalid message: %v", err)})
			continue
		}
		if err = h.dispatch(ctx, c, msg); err != nil {
			c.log.Warn("ipc command failed", "channel", msg.Channel, "error", err)
			c.send(ipc.Error, ipc.ErrorPayload{Channel: msg.Channel, Message: err.Error()})
		}
	}
}

func (h *Handler) pushAudio(c *client, data []byte) {
	if c.chunked {
		if len(data)%2 != 0 {
			c.send(ipc.Error, ipc.ErrorPayload{Channel: ipc.LoopbackAudio, Message: "chunked audio must be whole pcm16 samples"})
			return
		}
		if !h.cfg.Orchestrator.SendAudioChunk(data) {
			c.log.Debug("chunk dropped, asr not ready", "bytes", len(data))
		}
		return
	}
	samples, err := audio.Decode(data, c.codec)
	if err != nil {
		c.send(ipc.Error, ipc.ErrorPayload{Channel: ipc.LoopbackAudio, Message: err.Error()})
		return
	}
	h.cfg.Orchestrator.PushAudio([][]float32{samples}, c.sampleRate)
}

func (h *Handler) dispatch(ctx context.Context, c *client, msg ipc.Message) error {
	o := h.cfg.Orchestrator

	switch msg.Channel {
	case ipc.StatusRequest:
		c.send(ipc.StatusSnapshot, o.RequestStatus())

	case ipc.KnowledgeRequest:
		status := ipc.KnowledgeStatus{Ready: true}
		if err := o.KnowledgeReady(); err != nil {
			status = ipc.KnowledgeStatus{Error: err.Error()}
		}
		c.send(ipc.KnowledgePayload, status)

	case ipc.ModeOverride:
		var raw string
		if err := json.Unmarshal(msg.Payload, &raw); err != nil {
			return fmt.Errorf("decode mode: %w", err)
		}
		m, err := mode.Parse(raw)
		if err != nil {
			return err
		}
		o.OverrideMode(m)

	case ipc.DeckHotkey:
		var index int
		if err := json.Unmarshal(msg.Payload, &index); err != nil {
			return fmt.Errorf("decode hotkey: %w", err)
		}
		if sg, ok := o.SendHotkey(index); ok {
			c.send(ipc.DeckHotkey, sg)
		}

	case ipc.ASRStart:
		opts := asr.StartOptions{SampleRate: defaultSampleRate}
		if len(msg.Payload) > 0 && string(msg.Payload) != "null" {
			if err := json.Unmarshal(msg.Payload, &opts); err != nil {
				return fmt.Errorf("decode asr options: %w", err)
			}
		}
		// Start may wait for the engine; keep reading audio and commands.
		go func() {
			if err := o.StartASR(ctx, opts); err != nil {
				c.log.Warn("asr start failed", "error", err)
				c.send(ipc.Error, ipc.ErrorPayload{Channel: ipc.ASRStart, Message: err.Error()})
			}
		}()

	case ipc.ASRStop:
		o.StopASR(ctx)

	default:
		return fmt.Errorf("unknown channel %q", msg.Channel)
	}
	return nil
}

// newEventSender serializes writes to conn. Events are pushed from the
// orchestration goroutine, so each write is bounded by writeTimeout.
func newEventSender(conn *websocket.Conn, log *slog.Logger) func(ipc.Channel, any) {
	var mu sync.Mutex
	return func(ch ipc.Channel, payload any) {
		data, err := ipc.Encode(ch, payload)
		if err != nil {
			log.Error("encode event", "channel", ch, "error", err)
			return
		}

		mu.Lock()
		defer mu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err = conn.WriteMessage(websocket.TextMessage, data); err != nil {
			log.Debug("write event", "channel", ch, "error", err)
		}
	}
}

func readHello(conn *websocket.Conn) (*ipc.Hello, error) {
	msgType, data, err := conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	if msgType != websocket.TextMessage {
		return nil, fmt.Errorf("expected hello text frame, got type %d", msgType)
	}
	var hello ipc.Hello
	if err = json.Unmarshal(data, &hello); err != nil {
		return nil, err
	}
	return &hello, nil
}
