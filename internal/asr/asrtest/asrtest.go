// Package asrtest provides an in-memory ASR transport for tests of code
// built on asr.Session.
package asrtest

import (
	"context"
	"sync"

	"github.com/hubenschmidt/interview-assistant/internal/asr"
)

// Transport records every frame and lets tests inject engine messages.
type Transport struct {
	// Ready makes the session ready as soon as it connects.
	Ready bool

	mu     sync.Mutex
	h      asr.Handler
	chunks []asr.Chunk
	frames []asr.Frame
	closed bool
}

func (t *Transport) Connect(_ context.Context, h asr.Handler) error {
	t.mu.Lock()
	t.h = h
	t.mu.Unlock()
	return nil
}

func (t *Transport) Handshake(asr.StartOptions) []asr.Frame {
	return []asr.Frame{{Data: []byte(`{"type":"start"}`)}}
}

func (t *Transport) EncodeChunk(c asr.Chunk) (asr.Frame, error) {
	t.mu.Lock()
	t.chunks = append(t.chunks, c)
	t.mu.Unlock()
	return asr.Frame{Binary: true, Data: c.PCM}, nil
}

func (t *Transport) StopFrame() (asr.Frame, bool) {
	return asr.Frame{Data: []byte(`{"type":"stop"}`)}, true
}

func (t *Transport) Send(f asr.Frame) error {
	t.mu.Lock()
	t.frames = append(t.frames, f)
	t.mu.Unlock()
	return nil
}

func (t *Transport) Close() error {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	return nil
}

func (t *Transport) ReadyOnConnect() bool { return t.Ready }

// Emit delivers one engine message as if it arrived on the wire.
func (t *Transport) Emit(msg string) {
	t.mu.Lock()
	h := t.h
	t.mu.Unlock()
	if h.OnMessage != nil {
		h.OnMessage([]byte(msg))
	}
}

// Drop simulates the engine going away.
func (t *Transport) Drop(err error) {
	t.mu.Lock()
	h := t.h
	t.mu.Unlock()
	if h.OnClose != nil {
		h.OnClose(err)
	}
}

// Chunks returns the audio chunks encoded so far.
func (t *Transport) Chunks() []asr.Chunk {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]asr.Chunk(nil), t.chunks...)
}

// Closed reports whether Close was called.
func (t *Transport) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// Dialer hands out fresh transports and remembers the last one.
type Dialer struct {
	Ready bool
	Err   error

	mu   sync.Mutex
	last *Transport
	opts asr.StartOptions
}

func (d *Dialer) Dial(opts asr.StartOptions) (asr.Transport, error) {
	if d.Err != nil {
		return nil, d.Err
	}
	t := &Transport{Ready: d.Ready}
	d.mu.Lock()
	d.last = t
	d.opts = opts
	d.mu.Unlock()
	return t, nil
}

// Last returns the most recently dialed transport.
func (d *Dialer) Last() *Transport {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.last
}

// Options returns the options of the last Dial.
func (d *Dialer) Options() asr.StartOptions {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.opts
}
