package audio

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodePCM16Clamps(t *testing.T) {
	out := EncodePCM16([]float32{0, 1, -1, 2, -3})
	require.Len(t, out, 10)

	got := make([]int16, 5)
	for i := range got {
		got[i] = int16(binary.LittleEndian.Uint16(out[i*2:]))
	}
	require.Equal(t, []int16{0, math.MaxInt16, -math.MaxInt16, math.MaxInt16, -math.MaxInt16}, got)
}

func TestDecodeCodecs(t *testing.T) {
	pcm := EncodePCM16([]float32{0.5, -0.25})
	samples, err := Decode(pcm, "")
	require.NoError(t, err)
	require.InDelta(t, 0.5, samples[0], 1e-3)
	require.InDelta(t, -0.25, samples[1], 1e-3)

	f32 := make([]byte, 8)
	binary.LittleEndian.PutUint32(f32[0:], math.Float32bits(0.75))
	binary.LittleEndian.PutUint32(f32[4:], math.Float32bits(-1))
	samples, err = Decode(f32, CodecFloat32)
	require.NoError(t, err)
	require.Equal(t, []float32{0.75, -1}, samples)

	_, err = Decode(pcm, "g711_ulaw")
	require.Error(t, err)
}
