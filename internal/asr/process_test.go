package asr

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hubenschmidt/interview-assistant/internal/failure"
)

// TestMain turns the test binary into a fake engine when re-executed by the
// process transport. Flags are not parsed in that mode, so the engine
// accepts any argv.
func TestMain(m *testing.M) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") == "1" {
		os.Exit(helperEngine(os.Getenv("HELPER_MODE")))
	}
	os.Exit(m.Run())
}

func helperEngine(mode string) int {
	if mode == "stubborn" {
		signal.Ignore(syscall.SIGTERM)
	}
	out := bufio.NewWriter(os.Stdout)
	write := func(v any) {
		data, _ := json.Marshal(v)
		out.Write(append(data, '\n'))
		out.Flush()
	}

	write(map[string]any{"type": "status", "status": "args", "message": strings.Join(os.Args[1:], " ")})
	if mode == "stderr" {
		fmt.Fprintln(os.Stderr, "loading weights")
	}

	in := bufio.NewScanner(os.Stdin)
	in.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for in.Scan() {
		var msg struct {
			Type       string `json:"type"`
			SampleRate int    `json:"sample_rate"`
			ChunkID    int64  `json:"chunk_id"`
			Audio      string `json:"audio"`
		}
		if err := json.Unmarshal(in.Bytes(), &msg); err != nil {
			write(map[string]any{"type": "error", "message": "bad input"})
			continue
		}
		switch msg.Type {
		case "start":
			if mode != "noready" {
				write(map[string]any{"type": "ready", "sample_rate": msg.SampleRate})
			}
		case "chunk":
			if mode == "crash" {
				return 3
			}
			pcm, _ := base64.StdEncoding.DecodeString(msg.Audio)
			write(map[string]any{
				"type":       "transcript",
				"transcript": fmt.Sprintf("chunk %d bytes %d", msg.ChunkID, len(pcm)),
				"is_final":   true,
				"confidence": 0.9,
				"chunk_id":   msg.ChunkID,
			})
		case "stop":
			return 0
		}
	}
	if mode == "stubborn" {
		time.Sleep(time.Hour)
	}
	return 0
}

func helperDialer(mode string) ProcessDialer {
	return ProcessDialer{Config: ProcessConfig{
		Binary:     os.Args[0],
		Model:      "tiny",
		Device:     "cpu",
		ChunkMs:    200,
		EndpointMs: 800,
		ExtraArgs:  []string{"--beam", "2"},
		Env:        map[string]string{"GO_WANT_HELPER_PROCESS": "1", "HELPER_MODE": mode},
	}}
}

func TestProcessTransportEndToEnd(t *testing.T) {
	c := &collector{}
	s := NewSession(helperDialer("normal"), Config{ReadyTimeout: 5 * time.Second}, c.listen)

	require.NoError(t, s.Start(context.Background(), StartOptions{Language: "en", SampleRate: 16000}))
	require.True(t, s.Ready())

	var args string
	for _, st := range c.statuses() {
		if strings.HasPrefix(st.Message, "args: ") {
			args = strings.TrimPrefix(st.Message, "args: ")
		}
	}
	require.Equal(t, "--model tiny --language en --device cpu --chunk-ms 200 --endpoint-ms 800 --beam 2", args)

	require.True(t, s.SendAudioChunk([]byte{1, 2, 3, 4}))
	require.True(t, s.SendAudioChunk([]byte{5, 6}))

	require.Eventually(t, func() bool { return len(c.transcripts()) == 2 }, 5*time.Second, 10*time.Millisecond)
	tr := c.transcripts()
	require.Equal(t, "chunk 1 bytes 4", tr[0].Text)
	require.Equal(t, "chunk 2 bytes 2", tr[1].Text)
	require.True(t, tr[0].IsFinal)
	require.NotNil(t, tr[0].LatencyMs)
	require.Equal(t, 0, s.PendingLatencies())

	s.Stop()
	require.Equal(t, StateStopped, s.State())
}

func TestProcessTransportOptimisticReady(t *testing.T) {
	s := NewSession(helperDialer("noready"), Config{ReadyTimeout: 50 * time.Millisecond})
	require.NoError(t, s.Start(context.Background(), StartOptions{}))
	require.True(t, s.Ready())
	s.Stop()
}

func TestProcessTransportStderrIsForwarded(t *testing.T) {
	c := &collector{}
	s := NewSession(helperDialer("stderr"), Config{ReadyTimeout: 5 * time.Second}, c.listen)
	require.NoError(t, s.Start(context.Background(), StartOptions{}))
	defer s.Stop()

	require.Eventually(t, func() bool {
		for _, st := range c.statuses() {
			if st.Status == StatusInfo && st.Message == "loading weights" {
				return true
			}
		}
		return false
	}, 5*time.Second, 10*time.Millisecond)
	require.True(t, s.Ready())
}

func TestProcessExitForcesReset(t *testing.T) {
	c := &collector{}
	s := NewSession(helperDialer("crash"), Config{ReadyTimeout: 5 * time.Second}, c.listen)
	require.NoError(t, s.Start(context.Background(), StartOptions{}))
	require.True(t, s.SendAudioChunk([]byte{1, 2}))

	require.Eventually(t, func() bool { return s.State() == StateError }, 5*time.Second, 10*time.Millisecond)
	require.False(t, s.SendAudioChunk([]byte{1, 2}))

	var exit *StatusEvent
	for _, st := range c.statuses() {
		if st.Status == StatusStopped && st.Err != nil {
			st := st
			exit = &st
		}
	}
	require.NotNil(t, exit)
	require.ErrorIs(t, exit.Err, failure.ErrProcessExit)
}

func TestProcessDialerConfiguration(t *testing.T) {
	tests := []struct {
		name string
		cfg  ProcessConfig
	}{
		{"empty binary", ProcessConfig{}},
		{"missing binary", ProcessConfig{Binary: "/nonexistent/asr-engine"}},
		{"missing model file", ProcessConfig{Binary: os.Args[0], Model: "./no-such-model.bin"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ProcessDialer{Config: tt.cfg}.Dial(StartOptions{})
			require.ErrorIs(t, err, failure.ErrConfiguration)
		})
	}
}

func TestProcessArgsOmitEmpty(t *testing.T) {
	require.Empty(t, processArgs(ProcessConfig{}, StartOptions{}))
	require.Equal(t,
		[]string{"--model", "m", "--chunk-ms", "100"},
		processArgs(ProcessConfig{Model: "m", ChunkMs: 100}, StartOptions{SampleRate: 16000}))
}

func TestProcessChunkEncoding(t *testing.T) {
	p := &processTransport{}
	f, err := p.EncodeChunk(Chunk{ID: 7, PCM: []byte{1, 2, 3}, SentAt: time.UnixMilli(1234)})
	require.NoError(t, err)
	require.False(t, f.Binary)
	require.Equal(t, `{"type":"chunk","chunk_id":7,"audio":"AQID","chunk_sent_at":1234}`+"\n", string(f.Data))

	stop, ok := p.StopFrame()
	require.True(t, ok)
	require.Equal(t, `{"type":"stop"}`+"\n", string(stop.Data))
}

func TestProcessCloseKillsStubbornEngine(t *testing.T) {
	grace := killGrace
	killGrace = 100 * time.Millisecond
	t.Cleanup(func() { killGrace = grace })

	tr, err := helperDialer("stubborn").Dial(StartOptions{})
	require.NoError(t, err)

	started := make(chan struct{}, 1)
	exited := make(chan error, 1)
	require.NoError(t, tr.Connect(context.Background(), Handler{
		OnMessage: func([]byte) {
			select {
			case started <- struct{}{}:
			default:
			}
		},
		OnClose: func(err error) { exited <- err },
	}))
	<-started

	require.NoError(t, tr.Close())
	select {
	case err := <-exited:
		require.ErrorIs(t, err, failure.ErrProcessExit)
		require.Contains(t, err.Error(), "killed")
	case <-time.After(5 * time.Second):
		t.Fatal("engine ignoring SIGTERM was never killed")
	}
}

func TestProcessConnectAfterClose(t *testing.T) {
	tr, err := helperDialer("normal").Dial(StartOptions{})
	require.NoError(t, err)
	require.NoError(t, tr.Close())

	require.Error(t, tr.Connect(context.Background(), Handler{}))
	require.Nil(t, tr.(*processTransport).cmd)
}
