package state

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hubenschmidt/interview-assistant/internal/mode"
)

func TestInitialSnapshot(t *testing.T) {
	require.Equal(t, Snapshot{Mode: mode.Discovery}, New().Snapshot())
}

func TestSnapshotIsACopy(t *testing.T) {
	s := New()
	s.UpdateAsrReady(true)
	snap := s.Snapshot()

	s.UpdateLlmReady(true)
	s.UpdateDbReady(true)
	s.SetMode(mode.Technical)

	require.Equal(t, Snapshot{AsrReady: true, Mode: mode.Discovery}, snap)
	require.Equal(t, Snapshot{AsrReady: true, LlmReady: true, DbReady: true, Mode: mode.Technical}, s.Snapshot())
}
