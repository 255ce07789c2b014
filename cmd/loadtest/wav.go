package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-audio/wav"
)

// clip is one mono sample file normalized to [-1, 1].
type clip struct {
	rate    int
	samples []float32
}

// readWAV decodes an integer PCM wav file and keeps the first channel.
func readWAV(path string) (clip, error) {
	f, err := os.Open(path)
	if err != nil {
		return clip{}, err
	}
	defer f.Close()

	d := wav.NewDecoder(f)
	if !d.IsValidFile() {
		return clip{}, errors.New("not a valid wav file")
	}
	buf, err := d.FullPCMBuffer()
	if err != nil {
		return clip{}, fmt.Errorf("decode: %w", err)
	}
	if buf.Format == nil || buf.Format.NumChannels == 0 {
		return clip{}, errors.New("missing format chunk")
	}

	depth := buf.SourceBitDepth
	if depth == 0 {
		depth = int(d.BitDepth)
	}
	if depth <= 0 || depth > 32 {
		return clip{}, fmt.Errorf("unsupported bit depth %d", depth)
	}
	scale := float32(int64(1) << (depth - 1))
	channels := buf.Format.NumChannels

	samples := make([]float32, 0, len(buf.Data)/channels)
	for i := 0; i < len(buf.Data); i += channels {
		samples = append(samples, float32(buf.Data[i])/scale)
	}
	return clip{rate: buf.Format.SampleRate, samples: samples}, nil
}
