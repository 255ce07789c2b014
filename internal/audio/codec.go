package audio

import "fmt"

// Codec names the sample encoding of loopback audio frames.
type Codec string

const (
	CodecPCM16   Codec = "pcm16"
	CodecFloat32 Codec = "f32le"
)

var decoders = map[Codec]func([]byte) []float32{
	CodecPCM16:   decodePCM16,
	CodecFloat32: decodeFloat32,
}

// Decode converts encoded mono audio bytes to float32 samples normalized to [-1, 1].
// An empty codec means pcm16.
func Decode(data []byte, codec Codec) ([]float32, error) {
	if codec == "" {
		codec = CodecPCM16
	}
	fn, ok := decoders[codec]
	if !ok {
		return nil, fmt.Errorf("unsupported codec: %s", codec)
	}
	return fn(data), nil
}
