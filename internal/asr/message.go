package asr

import (
	"encoding/json"

	"github.com/hubenschmidt/interview-assistant/internal/failure"
)

// engineMessage is the union of every engine-to-host message. Engines
// disagree on field names, so aliases are decoded side by side.
type engineMessage struct {
	Type string `json:"type"`

	Transcript  string   `json:"transcript"`
	Text        string   `json:"text"`
	IsFinal     *bool    `json:"is_final"`
	IsFinalAlt  *bool    `json:"isFinal"`
	Final       *bool    `json:"final"`
	Confidence  *float64 `json:"confidence"`
	LatencyMs   *float64 `json:"latency_ms"`
	ChunkID     int64    `json:"chunk_id"`
	ChunkSentAt int64    `json:"chunk_sent_at"`

	Status  string `json:"status"`
	Message string `json:"message"`
}

func decodeMessage(data []byte) (engineMessage, error) {
	var m engineMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return m, failure.Errorf(failure.ErrProtocol, "malformed engine message: %v", err)
	}
	return m, nil
}

func (m engineMessage) text() string {
	if m.Transcript != "" {
		return m.Transcript
	}
	return m.Text
}

func (m engineMessage) final() bool {
	for _, b := range []*bool{m.IsFinal, m.IsFinalAlt, m.Final} {
		if b != nil {
			return *b
		}
	}
	return false
}
