// Package asr drives one streaming speech recognition engine over a
// pluggable transport: a child process speaking newline-delimited JSON on
// stdio, or a WebSocket peer taking a JSON handshake and binary audio.
package asr

import (
	"context"
	"time"
)

// Frame is one framed write to the engine.
type Frame struct {
	Binary bool
	Data   []byte
}

// Chunk is one audio buffer stamped by the session.
type Chunk struct {
	ID     int64
	PCM    []byte
	SentAt time.Time
}

// StartOptions are the per-session parameters.
type StartOptions struct {
	Language   string `json:"language,omitempty"`
	SampleRate int    `json:"sampleRate"`
}

// Handler receives transport callbacks. Callbacks may run on transport
// goroutines; OnClose fires at most once.
type Handler struct {
	OnMessage func(data []byte)
	OnStderr  func(line string)
	OnClose   func(err error)
}

// Transport is one engine connection.
type Transport interface {
	// Connect opens the connection and starts delivering messages to h.
	Connect(ctx context.Context, h Handler) error
	// Handshake returns the frames sent once after Connect.
	Handshake(opts StartOptions) []Frame
	// EncodeChunk frames one audio chunk.
	EncodeChunk(c Chunk) (Frame, error)
	// StopFrame returns the graceful stop message, if the protocol has one.
	StopFrame() (Frame, bool)
	// Send writes one frame. Never called concurrently.
	Send(f Frame) error
	// Close tears the connection down. Safe to call more than once.
	Close() error
}

// ReadyOnConnect is implemented by transports whose engines never announce
// readiness explicitly.
type ReadyOnConnect interface {
	ReadyOnConnect() bool
}

// Dialer validates configuration and builds a transport without doing I/O.
// A missing binary, model or URL is reported as a configuration error.
type Dialer interface {
	Dial(opts StartOptions) (Transport, error)
}
