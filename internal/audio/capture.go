package audio

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/jfreymuth/pulse"
	pulseproto "github.com/jfreymuth/pulse/proto"
)

// Sink receives one capture callback worth of channel data.
type Sink func(channels [][]float32, nativeRate int)

// CaptureConfig selects the Pulse source and record rate.
type CaptureConfig struct {
	Source     string // empty selects the server default
	SampleRate int
}

// Capture streams mono PCM from a Pulse source into a Sink.
type Capture struct {
	client *pulse.Client
	stream *pulse.RecordStream
	rate   int
	sink   Sink

	mu      sync.Mutex
	stopped bool
}

// StartCapture connects to Pulse and starts recording. Cancelling ctx stops it.
func StartCapture(ctx context.Context, cfg CaptureConfig, sink Sink) (*Capture, error) {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 48000
	}
	client, err := pulse.NewClient(
		pulse.ClientApplicationName("interview-assistant"),
		pulse.ClientApplicationIconName("audio-input-microphone"),
	)
	if err != nil {
		return nil, fmt.Errorf("connect pulse server: %w", err)
	}

	source, err := resolveSource(client, cfg.Source)
	if err != nil {
		client.Close()
		return nil, err
	}

	c := &Capture{client: client, rate: cfg.SampleRate, sink: sink}
	writer := pulse.NewWriter(writerFunc(c.onPCM), pulseproto.FormatInt16LE)
	stream, err := client.NewRecord(
		writer,
		pulse.RecordSource(source),
		pulse.RecordMono,
		pulse.RecordSampleRate(cfg.SampleRate),
		pulse.RecordMediaName("interview assistant loopback"),
	)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("create pulse record stream: %w", err)
	}
	c.stream = stream
	stream.Start()

	go func() {
		<-ctx.Done()
		c.Stop()
	}()
	return c, nil
}

func resolveSource(client *pulse.Client, id string) (*pulse.Source, error) {
	if id == "" {
		src, err := client.DefaultSource()
		if err != nil {
			return nil, fmt.Errorf("read default source: %w", err)
		}
		return src, nil
	}
	src, err := client.SourceByID(id)
	if err != nil {
		return nil, fmt.Errorf("resolve source %q: %w", id, err)
	}
	return src, nil
}

// Stop halts the stream once.
func (c *Capture) Stop() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	c.mu.Unlock()

	if c.stream != nil {
		c.stream.Stop()
		c.stream.Close()
	}
	c.client.Close()
}

func (c *Capture) onPCM(buffer []byte) (int, error) {
	c.mu.Lock()
	stopped := c.stopped
	c.mu.Unlock()
	if stopped {
		return 0, io.EOF
	}
	if len(buffer) == 0 {
		return 0, nil
	}
	c.sink([][]float32{decodePCM16(buffer)}, c.rate)
	return len(buffer), nil
}

// writerFunc adapts a function to io.Writer for pulse.NewWriter.
type writerFunc func([]byte) (int, error)

func (f writerFunc) Write(b []byte) (int, error) {
	return f(b)
}
