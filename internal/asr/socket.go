package asr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hubenschmidt/interview-assistant/internal/failure"
)

// SocketConfig describes a WebSocket engine peer.
type SocketConfig struct {
	URL              string
	AuthToken        string
	ChunkMs          int
	HandshakeTimeout time.Duration
}

// SocketDialer connects to an engine already listening on a WebSocket URL.
type SocketDialer struct {
	Config SocketConfig
}

func (d SocketDialer) Dial(_ StartOptions) (Transport, error) {
	raw := strings.TrimSpace(d.Config.URL)
	if raw == "" {
		return nil, failure.Errorf(failure.ErrConfiguration, "asr socket url is not configured")
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
		return nil, failure.Errorf(failure.ErrConfiguration, "asr socket url %q must be ws:// or wss://", raw)
	}
	timeout := d.Config.HandshakeTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &socketTransport{url: u.String(), cfg: d.Config, timeout: timeout}, nil
}

type socketTransport struct {
	url     string
	cfg     SocketConfig
	timeout time.Duration

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
}

func (s *socketTransport) ReadyOnConnect() bool { return true }

func (s *socketTransport) Connect(ctx context.Context, h Handler) error {
	dialer := websocket.Dialer{
		HandshakeTimeout: s.timeout,
		ReadBufferSize:   16384,
		WriteBufferSize:  16384,
	}
	conn, _, err := dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", s.url, err)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = conn.Close()
		return errors.New("asr socket closed while dialing")
	}
	s.conn = conn
	s.mu.Unlock()

	go s.readLoop(conn, h)
	return nil
}

func (s *socketTransport) readLoop(conn *websocket.Conn, h Handler) {
	var closeErr error
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			closeErr = err
			break
		}
		if msgType != websocket.TextMessage {
			continue
		}
		for _, line := range strings.Split(string(data), "\n") {
			line = strings.TrimSpace(line)
			if line != "" && h.OnMessage != nil {
				h.OnMessage([]byte(line))
			}
		}
	}

	s.mu.Lock()
	wasClosed := s.closed
	s.mu.Unlock()
	if h.OnClose == nil {
		return
	}
	if wasClosed || websocket.IsCloseError(closeErr, websocket.CloseNormalClosure) {
		h.OnClose(failure.Errorf(failure.ErrProcessExit, "asr socket closed"))
		return
	}
	h.OnClose(failure.Errorf(failure.ErrProcessExit, "asr socket closed: %v", closeErr))
}

func (s *socketTransport) Handshake(opts StartOptions) []Frame {
	msg := map[string]any{
		"type":       "config",
		"sampleRate": opts.SampleRate,
	}
	if opts.Language != "" {
		msg["language"] = opts.Language
	}
	if s.cfg.ChunkMs > 0 {
		msg["chunkMs"] = s.cfg.ChunkMs
	}
	if s.cfg.AuthToken != "" {
		msg["authToken"] = s.cfg.AuthToken
	}
	data, _ := json.Marshal(msg)
	return []Frame{{Data: data}}
}

// EncodeChunk sends raw PCM; the socket protocol carries no chunk ids.
func (s *socketTransport) EncodeChunk(c Chunk) (Frame, error) {
	return Frame{Binary: true, Data: c.PCM}, nil
}

func (s *socketTransport) StopFrame() (Frame, bool) { return Frame{}, false }

func (s *socketTransport) Send(f Frame) error {
	s.mu.Lock()
	conn := s.conn
	closed := s.closed
	s.mu.Unlock()
	if conn == nil || closed {
		return errors.New("asr socket not connected")
	}
	msgType := websocket.TextMessage
	if f.Binary {
		msgType = websocket.BinaryMessage
	}
	return conn.WriteMessage(msgType, f.Data)
}

func (s *socketTransport) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.conn == nil {
		s.closed = true
		return nil
	}
	s.closed = true
	deadline := time.Now().Add(time.Second)
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	return s.conn.Close()
}
