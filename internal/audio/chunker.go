package audio

import (
	"time"

	"github.com/hubenschmidt/interview-assistant/internal/metrics"
)

const (
	DefaultTargetSampleRate = 16000
	DefaultChunkDurationMs  = 512
)

// Chunk is one fixed-length slice of decimated audio.
type Chunk struct {
	Seq        uint64
	Samples    []float32
	CapturedAt time.Time
}

// ChunkerConfig sets the output rate and chunk duration.
type ChunkerConfig struct {
	TargetSampleRate int
	ChunkDurationMs  int
}

// DecimationFactor is max(1, floor(native/target)).
func DecimationFactor(nativeRate, targetRate int) int {
	if targetRate <= 0 {
		return 1
	}
	return max(1, nativeRate/targetRate)
}

// ChunkSize is floor(target * ms / 1000) samples.
func ChunkSize(targetRate, chunkMs int) int {
	return targetRate * chunkMs / 1000
}

// Chunker decimates capture buffers into a FIFO and emits fixed-size chunks,
// oldest first. It never blocks: when out is full the chunk is dropped and
// counted.
type Chunker struct {
	targetRate int
	chunkSize  int
	out        chan<- Chunk
	fifo       []float32
	seq        uint64
	dropped    uint64
	now        func() time.Time
}

// NewChunker creates a chunker posting to out. Zero config fields take the
// 16 kHz / 512 ms defaults.
func NewChunker(cfg ChunkerConfig, out chan<- Chunk) *Chunker {
	if cfg.TargetSampleRate <= 0 {
		cfg.TargetSampleRate = DefaultTargetSampleRate
	}
	if cfg.ChunkDurationMs <= 0 {
		cfg.ChunkDurationMs = DefaultChunkDurationMs
	}
	size := max(1, ChunkSize(cfg.TargetSampleRate, cfg.ChunkDurationMs))
	return &Chunker{
		targetRate: cfg.TargetSampleRate,
		chunkSize:  size,
		out:        out,
		fifo:       make([]float32, 0, size*2),
		now:        time.Now,
	}
}

// Size returns the number of samples per emitted chunk.
func (c *Chunker) Size() int { return c.chunkSize }

// Buffered returns the number of samples waiting in the FIFO.
func (c *Chunker) Buffered() int { return len(c.fifo) }

// Dropped returns how many chunks were discarded on a full queue.
func (c *Chunker) Dropped() uint64 { return c.dropped }

// Process consumes one capture callback. Only the first channel is used; no
// input is a no-op. It returns the number of chunks emitted.
func (c *Chunker) Process(channels [][]float32, nativeRate int) int {
	if len(channels) == 0 || len(channels[0]) == 0 {
		return 0
	}
	step := DecimationFactor(nativeRate, c.targetRate)
	in := channels[0]
	for i := 0; i < len(in); i += step {
		c.fifo = append(c.fifo, in[i])
	}

	emitted := 0
	for len(c.fifo) >= c.chunkSize {
		samples := make([]float32, c.chunkSize)
		copy(samples, c.fifo[:c.chunkSize])
		c.fifo = append(c.fifo[:0], c.fifo[c.chunkSize:]...)

		c.seq++
		chunk := Chunk{Seq: c.seq, Samples: samples, CapturedAt: c.now()}
		select {
		case c.out <- chunk:
			metrics.ChunksEmitted.Inc()
			emitted++
		default:
			c.dropped++
			metrics.ChunksDropped.Inc()
		}
	}
	return emitted
}
