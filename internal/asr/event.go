package asr

// Status is a session lifecycle status as reported to listeners.
type Status string

const (
	StatusStarting Status = "starting"
	StatusReady    Status = "ready"
	StatusStopped  Status = "stopped"
	StatusError    Status = "error"
	// StatusInfo forwards engine status messages and stderr output that do
	// not change readiness.
	StatusInfo Status = "info"
)

// Event is delivered to listeners. It is either a StatusEvent or a
// TranscriptEvent.
type Event interface {
	isEvent()
}

// StatusEvent reports a lifecycle change or a failure. Err carries the
// failure kind when Status is StatusError or an unexpected StatusStopped.
type StatusEvent struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
	Err     error  `json:"-"`
}

// TranscriptEvent is one recognized partial or final utterance.
type TranscriptEvent struct {
	Text       string   `json:"transcript"`
	IsFinal    bool     `json:"isFinal"`
	Confidence *float64 `json:"confidence,omitempty"`
	LatencyMs  *float64 `json:"latencyMs,omitempty"`
	ChunkID    int64    `json:"chunkId,omitempty"`
}

func (StatusEvent) isEvent()     {}
func (TranscriptEvent) isEvent() {}

// Listener receives session events. Called from transport goroutines; must
// not block.
type Listener func(Event)
