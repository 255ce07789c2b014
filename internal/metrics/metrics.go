package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "asr_sessions_active",
		Help: "Currently running ASR engine sessions",
	})

	SessionStarts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "asr_session_starts_total",
		Help: "ASR session start attempts by result",
	}, []string{"result"})

	ChunksEmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "audio_chunks_emitted_total",
		Help: "Fixed-duration chunks produced by the chunker",
	})

	ChunksDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "audio_chunks_dropped_total",
		Help: "Chunks dropped because the consumer queue was full",
	})

	ChunksSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "asr_chunks_sent_total",
		Help: "Audio chunks enqueued to the ASR transport",
	})

	ChunkLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "asr_chunk_latency_seconds",
		Help:    "Time from chunk send to the transcript that acknowledged it",
		Buckets: []float64{0.05, 0.1, 0.2, 0.3, 0.5, 0.8, 1.0, 2.0, 5.0},
	})

	TranscriptSegments = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "transcript_segments_total",
		Help: "Transcript messages by kind",
	}, []string{"kind"})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pipeline_stage_duration_seconds",
		Help:    "Per-stage latency",
		Buckets: []float64{0.05, 0.1, 0.2, 0.3, 0.5, 0.8, 1.0, 2.0, 5.0, 10.0},
	}, []string{"stage"})

	E2EDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pipeline_e2e_duration_seconds",
		Help:    "End-to-end latency from final transcript to suggestion deck",
		Buckets: []float64{0.2, 0.5, 0.8, 1.0, 1.5, 2.0, 3.0, 5.0, 10.0},
	})

	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pipeline_errors_total",
		Help: "Error counts by stage",
	}, []string{"stage", "error_type"})

	StaleResults = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pipeline_stale_results_total",
		Help: "Suggestion runs that finished after a newer deck was applied",
	})

	IPCClientsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ipc_clients_active",
		Help: "Currently connected IPC WebSocket clients",
	})

	IPCClientsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ipc_clients_total",
		Help: "Total IPC WebSocket connections accepted",
	})
)
