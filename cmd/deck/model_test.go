package main

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hubenschmidt/interview-assistant/internal/ipc"
	"github.com/hubenschmidt/interview-assistant/internal/mode"
	"github.com/hubenschmidt/interview-assistant/internal/orchestrator"
	"github.com/hubenschmidt/interview-assistant/internal/pipeline"
	"github.com/hubenschmidt/interview-assistant/internal/state"
	"github.com/hubenschmidt/interview-assistant/internal/transcript"
)

type sent struct {
	ch      ipc.Channel
	payload any
}

type fakeConn struct {
	mu     sync.Mutex
	sent   []sent
	closed bool
}

func (f *fakeConn) send(ch ipc.Channel, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sent{ch, payload})
	return nil
}

func (f *fakeConn) next() (ipc.Message, error) { return ipc.Message{}, errors.New("closed") }

func (f *fakeConn) close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}

func connected(t *testing.T) (model, *fakeConn) {
	t.Helper()
	fc := &fakeConn{}
	m := newModel("ws://test")
	updated, cmd := m.Update(connectedMsg{conn: fc})
	require.NotNil(t, cmd)
	return updated.(model), fc
}

func event(t *testing.T, m model, ch ipc.Channel, payload any) model {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	updated, _ := m.Update(eventMsg{msg: ipc.Message{Channel: ch, Payload: raw}})
	return updated.(model)
}

func key(m model, k string) (model, tea.Cmd) {
	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)})
	return updated.(model), cmd
}

func TestConnectError(t *testing.T) {
	m := newModel("ws://test")
	updated, cmd := m.Update(connectErrMsg{err: errors.New("connection refused")})
	got := updated.(model)

	assert.False(t, got.connected)
	assert.Equal(t, "connection refused", got.errMsg)
	assert.NotNil(t, cmd)
	assert.Contains(t, got.View(), "gateway offline")
}

func TestStatusAndCaption(t *testing.T) {
	m, _ := connected(t)
	m = event(t, m, ipc.StatusSnapshot, state.Snapshot{AsrReady: true, LlmReady: true, Mode: mode.Technical})
	m = event(t, m, ipc.TranscriptPartial, transcript.Segment{Text: "so the api", Partial: true})

	assert.True(t, m.status.AsrReady)
	assert.Equal(t, "so the api", m.partial)

	m = event(t, m, ipc.TranscriptFinal, transcript.Segment{Text: "so the api layer is slow"})
	assert.Empty(t, m.partial)
	require.Len(t, m.captions, 1)

	view := m.View()
	assert.Contains(t, view, "TECHNICAL")
	assert.Contains(t, view, "so the api layer is slow")
}

func TestDeckUpdates(t *testing.T) {
	m, _ := connected(t)
	deck := []pipeline.Suggestion{
		{ID: "a", NextLine: "Which database?", Summary: "storage"},
		{ID: "b", NextLine: "What's the p99?", Summary: "latency"},
	}
	m = event(t, m, ipc.AutosuggestResult, orchestrator.SuggestionPayload{TxID: "tx1", Suggestions: deck, LatencyMs: 420})
	require.Len(t, m.deck, 2)

	m = event(t, m, ipc.AutosuggestResult, orchestrator.SuggestionPayload{TxID: "tx0", Stale: true,
		Suggestions: []pipeline.Suggestion{{ID: "old", NextLine: "stale"}}})
	assert.Equal(t, "a", m.deck[0].ID, "stale results must not replace the deck")

	m = event(t, m, ipc.DeckHotkey, deck[1])
	assert.Equal(t, 1, m.selected)
	assert.Contains(t, m.View(), "What's the p99?")
}

func TestKeysSendCommands(t *testing.T) {
	m, fc := connected(t)

	tests := []struct {
		key     string
		channel ipc.Channel
		payload any
	}{
		{"2", ipc.DeckHotkey, 1},
		{"t", ipc.ModeOverride, mode.Technical},
		{"d", ipc.ModeOverride, mode.Discovery},
		{"x", ipc.ASRStop, nil},
	}
	for _, tc := range tests {
		t.Run(tc.key, func(t *testing.T) {
			var cmd tea.Cmd
			m, cmd = key(m, tc.key)
			require.NotNil(t, cmd)
			assert.Nil(t, cmd())

			fc.mu.Lock()
			last := fc.sent[len(fc.sent)-1]
			fc.mu.Unlock()
			assert.Equal(t, tc.channel, last.ch)
			assert.Equal(t, tc.payload, last.payload)
		})
	}
}

func TestKeysIgnoredWhileOffline(t *testing.T) {
	m := newModel("ws://test")
	_, cmd := key(m, "1")
	assert.Nil(t, cmd)
}

func TestErrorEventClears(t *testing.T) {
	m, _ := connected(t)
	m = event(t, m, ipc.Error, ipc.ErrorPayload{Channel: ipc.ASRStart, Message: "asr binary not configured"})
	assert.Contains(t, m.View(), "asr binary not configured")

	updated, _ := m.Update(clearErrMsg{})
	assert.Empty(t, updated.(model).errMsg)
}

func TestDisconnectReconnects(t *testing.T) {
	m, fc := connected(t)
	updated, cmd := m.Update(eventErrMsg{err: errors.New("eof")})
	got := updated.(model)

	assert.False(t, got.connected)
	assert.True(t, fc.closed)
	assert.NotNil(t, cmd)

	updated, _ = got.Update(reconnectMsg{})
	assert.Equal(t, 1, updated.(model).attempt)
}
