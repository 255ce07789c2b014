package asr

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hubenschmidt/interview-assistant/internal/failure"
)

type fakeTransport struct {
	readyOnConnect bool
	connectErr     error

	mu     sync.Mutex
	h      Handler
	frames []Frame
	chunks []Chunk
	closed bool
	sent   chan Frame
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{sent: make(chan Frame, 256)}
}

func (f *fakeTransport) Connect(_ context.Context, h Handler) error {
	if f.connectErr != nil {
		return f.connectErr
	}
	f.mu.Lock()
	f.h = h
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) Handshake(opts StartOptions) []Frame {
	return []Frame{{Data: []byte(fmt.Sprintf(`{"type":"start","sample_rate":%d}`, opts.SampleRate))}}
}

func (f *fakeTransport) EncodeChunk(c Chunk) (Frame, error) {
	f.mu.Lock()
	f.chunks = append(f.chunks, c)
	f.mu.Unlock()
	return Frame{Binary: true, Data: c.PCM}, nil
}

func (f *fakeTransport) StopFrame() (Frame, bool) {
	return Frame{Data: []byte(`{"type":"stop"}`)}, true
}

func (f *fakeTransport) Send(fr Frame) error {
	f.mu.Lock()
	f.frames = append(f.frames, fr)
	f.mu.Unlock()
	select {
	case f.sent <- fr:
	default:
	}
	return nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) ReadyOnConnect() bool { return f.readyOnConnect }

func (f *fakeTransport) handler() Handler {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.h
}

func (f *fakeTransport) chunkIDs() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]int64, 0, len(f.chunks))
	for _, c := range f.chunks {
		ids = append(ids, c.ID)
	}
	return ids
}

func (f *fakeTransport) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeTransport) sentData() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.frames))
	for _, fr := range f.frames {
		out = append(out, string(fr.Data))
	}
	return out
}

type fakeDialer struct {
	mu         sync.Mutex
	err        error
	next       func() *fakeTransport
	transports []*fakeTransport
}

func (d *fakeDialer) Dial(StartOptions) (Transport, error) {
	if d.err != nil {
		return nil, d.err
	}
	t := newFakeTransport()
	if d.next != nil {
		t = d.next()
	}
	d.mu.Lock()
	d.transports = append(d.transports, t)
	d.mu.Unlock()
	return t, nil
}

func (d *fakeDialer) last() *fakeTransport {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.transports[len(d.transports)-1]
}

type collector struct {
	mu     sync.Mutex
	events []Event
}

func (c *collector) listen(ev Event) {
	c.mu.Lock()
	c.events = append(c.events, ev)
	c.mu.Unlock()
}

func (c *collector) statuses() []StatusEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []StatusEvent
	for _, ev := range c.events {
		if s, ok := ev.(StatusEvent); ok {
			out = append(out, s)
		}
	}
	return out
}

func (c *collector) transcripts() []TranscriptEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []TranscriptEvent
	for _, ev := range c.events {
		if t, ok := ev.(TranscriptEvent); ok {
			out = append(out, t)
		}
	}
	return out
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func readyOnConnectDialer() *fakeDialer {
	return &fakeDialer{next: func() *fakeTransport {
		t := newFakeTransport()
		t.readyOnConnect = true
		return t
	}}
}

func TestStartWaitsForReadyMessage(t *testing.T) {
	d := &fakeDialer{}
	c := &collector{}
	s := NewSession(d, Config{ReadyTimeout: 5 * time.Second}, c.listen)

	go func() {
		for {
			d.mu.Lock()
			n := len(d.transports)
			d.mu.Unlock()
			if n > 0 {
				break
			}
			time.Sleep(time.Millisecond)
		}
		ft := d.last()
		<-ft.sent
		ft.handler().OnMessage([]byte(`{"type":"started"}`))
	}()

	require.NoError(t, s.Start(context.Background(), StartOptions{Language: "en"}))
	require.Equal(t, StateReady, s.State())
	require.True(t, s.Ready())

	ft := d.last()
	require.Equal(t, []string{`{"type":"start","sample_rate":16000}`}, ft.sentData())

	st := c.statuses()
	require.Equal(t, StatusStarting, st[0].Status)
	require.Equal(t, StatusReady, st[len(st)-1].Status)
}

func TestStartResolvesOptimisticallyAfterTimeout(t *testing.T) {
	c := &collector{}
	s := NewSession(&fakeDialer{}, Config{ReadyTimeout: 20 * time.Millisecond}, c.listen)

	start := time.Now()
	require.NoError(t, s.Start(context.Background(), StartOptions{SampleRate: 16000}))
	require.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
	require.True(t, s.Ready())

	st := c.statuses()
	require.Equal(t, StatusReady, st[len(st)-1].Status)
	require.Contains(t, st[len(st)-1].Message, "assuming ready")
}

func TestStartConfigurationError(t *testing.T) {
	c := &collector{}
	d := &fakeDialer{err: failure.Errorf(failure.ErrConfiguration, "asr binary is not configured")}
	s := NewSession(d, Config{}, c.listen)

	err := s.Start(context.Background(), StartOptions{})
	require.ErrorIs(t, err, failure.ErrConfiguration)
	require.Equal(t, StateIdle, s.State())
	require.False(t, s.SendAudioChunk([]byte{1, 2}))

	st := c.statuses()
	require.Len(t, st, 1)
	require.Equal(t, StatusError, st[0].Status)
}

func TestStartConnectionError(t *testing.T) {
	d := &fakeDialer{next: func() *fakeTransport {
		t := newFakeTransport()
		t.connectErr = errors.New("connection refused")
		return t
	}}
	s := NewSession(d, Config{})

	err := s.Start(context.Background(), StartOptions{})
	require.ErrorIs(t, err, failure.ErrConnection)
	require.Equal(t, StateError, s.State())
}

func TestStartRejectedByEngineError(t *testing.T) {
	d := &fakeDialer{}
	s := NewSession(d, Config{ReadyTimeout: 5 * time.Second})

	go func() {
		for {
			d.mu.Lock()
			n := len(d.transports)
			d.mu.Unlock()
			if n > 0 {
				break
			}
			time.Sleep(time.Millisecond)
		}
		ft := d.last()
		<-ft.sent
		ft.handler().OnMessage([]byte(`{"type":"error","message":"no gpu"}`))
	}()

	err := s.Start(context.Background(), StartOptions{})
	require.ErrorIs(t, err, failure.ErrUpstream)
	require.Contains(t, err.Error(), "no gpu")
	require.Equal(t, StateError, s.State())
	require.True(t, d.last().isClosed())
}

func TestSendAudioChunkBeforeReady(t *testing.T) {
	s := NewSession(&fakeDialer{}, Config{})
	require.False(t, s.SendAudioChunk([]byte{0, 1}))
	require.Equal(t, StateIdle, s.State())
}

func TestChunkIDsStartAtOneAndResetOnRestart(t *testing.T) {
	d := readyOnConnectDialer()
	s := NewSession(d, Config{})

	require.NoError(t, s.Start(context.Background(), StartOptions{}))
	for i := 0; i < 3; i++ {
		require.True(t, s.SendAudioChunk([]byte{byte(i), 0}))
	}
	require.Equal(t, StateStreaming, s.State())
	first := d.last()
	require.Equal(t, []int64{1, 2, 3}, first.chunkIDs())
	require.Equal(t, 3, s.PendingLatencies())

	s.Stop()
	require.Equal(t, StateStopped, s.State())
	require.True(t, first.isClosed())
	require.Contains(t, first.sentData(), `{"type":"stop"}`)
	require.Equal(t, 0, s.PendingLatencies())
	require.False(t, s.SendAudioChunk([]byte{1, 2}))

	require.NoError(t, s.Start(context.Background(), StartOptions{}))
	require.True(t, s.SendAudioChunk([]byte{9, 9}))
	require.True(t, s.SendAudioChunk([]byte{9, 9}))
	second := d.last()
	require.NotSame(t, first, second)
	require.Equal(t, []int64{1, 2}, second.chunkIDs())
}

func TestStartStopsRunningSession(t *testing.T) {
	d := readyOnConnectDialer()
	c := &collector{}
	s := NewSession(d, Config{}, c.listen)

	require.NoError(t, s.Start(context.Background(), StartOptions{}))
	first := d.last()
	require.NoError(t, s.Start(context.Background(), StartOptions{}))
	require.True(t, first.isClosed())
	require.Len(t, d.transports, 2)
	require.True(t, s.Ready())
}

func TestTranscriptLatencyFromPendingMap(t *testing.T) {
	clk := &clock{t: time.UnixMilli(1_700_000_000_000)}
	d := readyOnConnectDialer()
	c := &collector{}
	s := NewSession(d, Config{Now: clk.Now}, c.listen)
	require.NoError(t, s.Start(context.Background(), StartOptions{}))

	require.True(t, s.SendAudioChunk([]byte{1, 2}))
	require.True(t, s.SendAudioChunk([]byte{3, 4}))
	clk.Advance(150 * time.Millisecond)

	h := d.last().handler()
	h.OnMessage([]byte(`{"type":"transcript","transcript":"hello","is_final":false,"chunk_id":1}`))
	require.Equal(t, 1, s.PendingLatencies())

	h.OnMessage([]byte(`{"type":"transcript","text":"hello there","final":true,"confidence":0.8,"chunk_id":2,"chunk_sent_at":1700000000100}`))
	require.Equal(t, 0, s.PendingLatencies())

	h.OnMessage([]byte(`{"type":"transcript","transcript":"later","isFinal":true,"latency_ms":42}`))

	tr := c.transcripts()
	require.Len(t, tr, 3)

	require.Equal(t, "hello", tr[0].Text)
	require.False(t, tr[0].IsFinal)
	require.InDelta(t, 150.0, *tr[0].LatencyMs, 0.001)

	require.Equal(t, "hello there", tr[1].Text)
	require.True(t, tr[1].IsFinal)
	require.InDelta(t, 0.8, *tr[1].Confidence, 1e-9)
	require.InDelta(t, 50.0, *tr[1].LatencyMs, 0.001)

	require.True(t, tr[2].IsFinal)
	require.InDelta(t, 42.0, *tr[2].LatencyMs, 0.001)
	require.Nil(t, tr[2].Confidence)
}

func TestUnknownMessageIsNonFatalProtocolError(t *testing.T) {
	d := readyOnConnectDialer()
	c := &collector{}
	s := NewSession(d, Config{}, c.listen)
	require.NoError(t, s.Start(context.Background(), StartOptions{}))

	h := d.last().handler()
	h.OnMessage([]byte(`{"type":"telemetry"}`))
	h.OnMessage([]byte(`not json`))

	require.True(t, s.Ready())
	st := c.statuses()
	last2 := st[len(st)-2:]
	for _, ev := range last2 {
		require.Equal(t, StatusError, ev.Status)
		require.ErrorIs(t, ev.Err, failure.ErrProtocol)
	}
}

func TestEngineStatusMessages(t *testing.T) {
	d := readyOnConnectDialer()
	c := &collector{}
	s := NewSession(d, Config{}, c.listen)
	require.NoError(t, s.Start(context.Background(), StartOptions{}))

	h := d.last().handler()
	h.OnMessage([]byte(`{"type":"status","status":"warming","message":"loading model"}`))
	h.OnMessage([]byte(`{"type":"status","status":"error","message":"overloaded"}`))

	st := c.statuses()
	require.Equal(t, StatusInfo, st[len(st)-2].Status)
	require.Equal(t, "warming: loading model", st[len(st)-2].Message)
	require.Equal(t, StatusError, st[len(st)-1].Status)
	require.ErrorIs(t, st[len(st)-1].Err, failure.ErrUpstream)
	require.True(t, s.Ready())
}

func TestUnexpectedCloseResetsSession(t *testing.T) {
	d := readyOnConnectDialer()
	c := &collector{}
	s := NewSession(d, Config{}, c.listen)
	require.NoError(t, s.Start(context.Background(), StartOptions{}))
	require.True(t, s.SendAudioChunk([]byte{1, 2}))

	d.last().handler().OnClose(failure.Errorf(failure.ErrProcessExit, "exit status 1"))

	require.Equal(t, StateError, s.State())
	require.False(t, s.SendAudioChunk([]byte{1, 2}))
	require.Equal(t, 0, s.PendingLatencies())

	st := c.statuses()
	require.Equal(t, StatusStopped, st[len(st)-1].Status)
	require.ErrorIs(t, st[len(st)-1].Err, failure.ErrProcessExit)
}

func TestLateCallbacksAfterStopAreIgnored(t *testing.T) {
	d := readyOnConnectDialer()
	c := &collector{}
	s := NewSession(d, Config{}, c.listen)
	require.NoError(t, s.Start(context.Background(), StartOptions{}))

	h := d.last().handler()
	s.Stop()
	before := len(c.statuses())

	h.OnMessage([]byte(`{"type":"transcript","transcript":"late","is_final":true}`))
	h.OnClose(errors.New("gone"))

	require.Empty(t, c.transcripts())
	require.Len(t, c.statuses(), before)
	require.Equal(t, StateStopped, s.State())
}
