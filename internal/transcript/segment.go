// Package transcript holds recognized utterances passed between the ASR
// session, the prompt builder and the store.
package transcript

import (
	"time"

	"github.com/google/uuid"
)

// Segment is one recognized utterance. Partial segments are never persisted.
type Segment struct {
	ID         string  `json:"id"`
	Timestamp  string  `json:"timestamp"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Partial    bool    `json:"partial,omitempty"`
	LatencyMs  float64 `json:"latency_ms,omitempty"`
}

// New stamps a segment with a fresh id and an RFC 3339 timestamp.
func New(text string, confidence float64, partial bool, at time.Time) Segment {
	return Segment{
		ID:         uuid.NewString(),
		Timestamp:  at.UTC().Format(time.RFC3339Nano),
		Text:       text,
		Confidence: confidence,
		Partial:    partial,
	}
}
