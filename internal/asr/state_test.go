package asr

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTransitionHappyPath(t *testing.T) {
	s := StateIdle

	next, err := Transition(s, TriggerStart)
	require.NoError(t, err)
	require.Equal(t, StateStarting, next)

	next, err = Transition(next, TriggerReady)
	require.NoError(t, err)
	require.Equal(t, StateReady, next)

	next, err = Transition(next, TriggerChunk)
	require.NoError(t, err)
	require.Equal(t, StateStreaming, next)

	next, err = Transition(next, TriggerChunk)
	require.NoError(t, err)
	require.Equal(t, StateStreaming, next)

	next, err = Transition(next, TriggerStop)
	require.NoError(t, err)
	require.Equal(t, StateStopped, next)

	next, err = Transition(next, TriggerStart)
	require.NoError(t, err)
	require.Equal(t, StateStarting, next)
}

func TestTransitionFailFromAnyStateGoesError(t *testing.T) {
	states := []State{StateIdle, StateStarting, StateReady, StateStreaming, StateStopped, StateError}
	for _, state := range states {
		next, err := Transition(state, TriggerFail)
		require.NoError(t, err)
		require.Equal(t, StateError, next)
	}
}

func TestTransitionMatrixInvalidTransitions(t *testing.T) {
	tests := []struct {
		name    string
		state   State
		trigger Trigger
		want    State
		wantErr bool
	}{
		{name: "idle chunk invalid", state: StateIdle, trigger: TriggerChunk, want: StateIdle, wantErr: true},
		{name: "idle stop invalid", state: StateIdle, trigger: TriggerStop, want: StateIdle, wantErr: true},
		{name: "starting chunk invalid", state: StateStarting, trigger: TriggerChunk, want: StateStarting, wantErr: true},
		{name: "starting start invalid", state: StateStarting, trigger: TriggerStart, want: StateStarting, wantErr: true},
		{name: "ready start invalid", state: StateReady, trigger: TriggerStart, want: StateReady, wantErr: true},
		{name: "streaming start invalid", state: StateStreaming, trigger: TriggerStart, want: StateStreaming, wantErr: true},
		{name: "stopped chunk invalid", state: StateStopped, trigger: TriggerChunk, want: StateStopped, wantErr: true},
		{name: "error ready invalid", state: StateError, trigger: TriggerReady, want: StateError, wantErr: true},
		{name: "error start valid", state: StateError, trigger: TriggerStart, want: StateStarting, wantErr: false},
		{name: "starting stop valid", state: StateStarting, trigger: TriggerStop, want: StateStopped, wantErr: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			next, err := Transition(tc.state, tc.trigger)
			require.Equal(t, tc.want, next)
			if tc.wantErr {
				require.Error(t, err)
				require.Contains(t, err.Error(), "invalid transition")
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestTransitionUnknownState(t *testing.T) {
	_, err := Transition(State("bogus"), TriggerStart)
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown state")
}

func TestStatePredicates(t *testing.T) {
	require.True(t, StateReady.Accepting())
	require.True(t, StateStreaming.Accepting())
	require.False(t, StateStarting.Accepting())
	require.True(t, StateStarting.Running())
	require.False(t, StateStopped.Running())
	require.False(t, StateError.Running())
}
