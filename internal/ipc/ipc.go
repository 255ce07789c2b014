// Package ipc names the channels shared by the orchestrator and its
// clients, and the envelope every message travels in.
package ipc

import "encoding/json"

// Channel names one message stream.
type Channel string

const (
	StatusSnapshot    Channel = "status/snapshot"
	StatusRequest     Channel = "status/request"
	TranscriptPartial Channel = "transcript/partial"
	TranscriptFinal   Channel = "transcript/final"
	AutosuggestResult Channel = "autosuggest/result"
	ModeOverride      Channel = "mode/override"
	DeckHotkey        Channel = "deck/hotkey"
	LoopbackAudio     Channel = "loopback/audio-chunk"
	KnowledgeRequest  Channel = "knowledge/request"
	KnowledgePayload  Channel = "knowledge/payload"
	ASRStart          Channel = "asr/start"
	ASRStop           Channel = "asr/stop"
	ASRStatus         Channel = "asr/status"
	Error             Channel = "error"
)

// Message is the wire envelope in both directions.
type Message struct {
	Channel Channel         `json:"channel"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Encode wraps payload in an envelope.
func Encode(ch Channel, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Message{Channel: ch, Payload: raw})
}

// KnowledgeStatus answers a knowledge/request.
type KnowledgeStatus struct {
	Ready bool   `json:"ready"`
	Error string `json:"error,omitempty"`
}

// ASRStatusPayload forwards a session status.
type ASRStatusPayload struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// ErrorPayload reports a failed command back to the client that sent it.
type ErrorPayload struct {
	Channel Channel `json:"channel,omitempty"`
	Message string  `json:"message"`
}

// Hello is the first text frame of every IPC connection.
type Hello struct {
	Client     string `json:"client"`
	SampleRate int    `json:"sample_rate"`
	Codec      string `json:"codec,omitempty"`
	// Chunked clients send 16 kHz mono PCM16 frames that are already sized
	// as engine chunks; they bypass resampling and chunking.
	Chunked bool `json:"chunked,omitempty"`
}
