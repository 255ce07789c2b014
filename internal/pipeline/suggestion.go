package pipeline

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/google/uuid"

	"github.com/hubenschmidt/interview-assistant/internal/failure"
	"github.com/hubenschmidt/interview-assistant/internal/mode"
)

// MaxSuggestions bounds every deck.
const MaxSuggestions = 3

// Suggestion is one ranked deck entry. Immutable once created.
type Suggestion struct {
	ID        string    `json:"id"`
	TxID      string    `json:"txId"`
	Mode      mode.Mode `json:"mode"`
	Summary   string    `json:"summary"`
	NextLine  string    `json:"nextLine"`
	Probe     *string   `json:"probe"`
	Why       string    `json:"why"`
	CreatedAt int64     `json:"createdAt"`
}

// Result is the outcome of one two-stage run.
type Result struct {
	TxID        string       `json:"txId"`
	Mode        mode.Mode    `json:"mode"`
	Suggestions []Suggestion `json:"suggestions"`
	LatencyMs   float64      `json:"latencyMs"`
}

type draftPayload struct {
	Suggestions json.RawMessage `json:"suggestions"`
}

type draftStub struct {
	Summary  *string `json:"summary"`
	NextLine *string `json:"next_line"`
}

type refineEntry struct {
	Summary  *string `json:"summary"`
	NextLine *string `json:"next_line"`
	Probe    *string `json:"probe"`
	Why      *string `json:"why"`
}

type refinePayload struct {
	Suggestions *[]refineEntry `json:"suggestions"`
}

// stripFence removes a surrounding markdown code fence such as ```json ... ```.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	} else {
		s = strings.TrimPrefix(s, "```")
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// parseDraft returns the compact JSON array of draft stubs. Every stub must
// carry summary and next_line.
func parseDraft(raw string) (string, error) {
	var p draftPayload
	if err := json.Unmarshal([]byte(stripFence(raw)), &p); err != nil {
		return "", failure.Errorf(failure.ErrParse, "draft is not valid JSON: %v", err)
	}
	if len(p.Suggestions) == 0 || string(p.Suggestions) == "null" {
		return "", failure.Errorf(failure.ErrParse, "draft missing suggestions")
	}
	var stubs []draftStub
	if err := json.Unmarshal(p.Suggestions, &stubs); err != nil {
		return "", failure.Errorf(failure.ErrParse, "draft suggestions is not an array of objects")
	}
	if len(stubs) == 0 {
		return "", failure.Errorf(failure.ErrParse, "draft suggestions is empty")
	}
	for i, st := range stubs {
		if st.Summary == nil || st.NextLine == nil {
			return "", failure.Errorf(failure.ErrParse, "draft suggestion %d missing summary or next_line", i)
		}
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, p.Suggestions); err != nil {
		return "", failure.Errorf(failure.ErrParse, "compact draft: %v", err)
	}
	return buf.String(), nil
}

// parseRefine maps the refined payload to at most MaxSuggestions lines.
// Any entry lacking summary, next_line or why fails the whole run.
func parseRefine(raw string, env envelopeRef, base int64) ([]Suggestion, error) {
	var p refinePayload
	if err := json.Unmarshal([]byte(stripFence(raw)), &p); err != nil {
		return nil, failure.Errorf(failure.ErrParse, "refine is not valid JSON: %v", err)
	}
	if p.Suggestions == nil {
		return nil, failure.Errorf(failure.ErrParse, "refine missing suggestions")
	}

	entries := *p.Suggestions
	if len(entries) > MaxSuggestions {
		entries = entries[:MaxSuggestions]
	}

	out := make([]Suggestion, 0, len(entries))
	for i, e := range entries {
		if e.Summary == nil || e.NextLine == nil || e.Why == nil {
			return nil, failure.Errorf(failure.ErrParse, "refine suggestion %d missing required field", i)
		}
		out = append(out, Suggestion{
			ID:        uuid.NewString(),
			TxID:      env.txID,
			Mode:      env.mode,
			Summary:   strings.TrimSpace(*e.Summary),
			NextLine:  strings.TrimSpace(*e.NextLine),
			Probe:     trimProbe(e.Probe),
			Why:       strings.TrimSpace(*e.Why),
			CreatedAt: base + int64(i),
		})
	}
	return out, nil
}

type envelopeRef struct {
	txID string
	mode mode.Mode
}

func trimProbe(p *string) *string {
	if p == nil {
		return nil
	}
	s := strings.TrimSpace(*p)
	if s == "" {
		return nil
	}
	return &s
}
