package prompts

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hubenschmidt/interview-assistant/internal/knowledge"
	"github.com/hubenschmidt/interview-assistant/internal/mode"
	"github.com/hubenschmidt/interview-assistant/internal/transcript"
)

var seg = transcript.Segment{ID: "tx-1", Timestamp: "2026-10-19T10:00:00Z", Text: "How would we deploy this?"}

func TestAssembleBeforePrime(t *testing.T) {
	b := NewBuilder(mode.NewDetector())
	require.False(t, b.Primed())

	env := b.Assemble(seg)
	require.Equal(t, mode.Technical, env.Mode)
	require.Equal(t, "tx-1", env.TxID)
	require.Equal(t,
		SystemHeader+"\nACTIVE MODE: TECHNICAL\nKnowledge not yet loaded.",
		env.SystemPrompt)
	require.Equal(t,
		"CLIENT INPUT [tx-1] (2026-10-19T10:00:00Z):\n"+
			"\"How would we deploy this?\"\n"+
			`Return JSON: {"response_id","source_transcript","mode","assistant_response":{"summary","next_line","probe"},"why"}`,
		env.UserPrompt)
}

func TestAssembleWithKnowledge(t *testing.T) {
	b := NewBuilder(mode.NewDetector())
	b.Prime(knowledge.Bundle{
		Permanent: map[string]string{"profile.md": "Go developer"},
		Project:   map[string]string{"brief.md": "Realtime app"},
	})
	require.True(t, b.Primed())

	env := b.Assemble(transcript.Segment{ID: "tx-2", Timestamp: "t", Text: "sounds good"})
	require.Equal(t, mode.Discovery, env.Mode)
	require.Equal(t,
		SystemHeader+"\nACTIVE MODE: DISCOVERY\nLOADED KNOWLEDGE:\n\n# profile.md\nGo developer\n\n# brief.md\nRealtime app",
		env.SystemPrompt)
}

func TestAssembleIsPure(t *testing.T) {
	a := Assemble(nil, seg, mode.Discovery)
	b := Assemble(nil, seg, mode.Discovery)
	require.Equal(t, a, b)
	require.Contains(t, a.SystemPrompt, "ACTIVE MODE: DISCOVERY")
}
