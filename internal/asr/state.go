package asr

import "fmt"

// State is the lifecycle position of a session.
type State string

// Trigger drives a state transition.
type Trigger string

const (
	StateIdle      State = "idle"
	StateStarting  State = "starting"
	StateReady     State = "ready"
	StateStreaming State = "streaming"
	StateStopped   State = "stopped"
	StateError     State = "error"
)

const (
	TriggerStart Trigger = "start"
	TriggerReady Trigger = "ready"
	TriggerChunk Trigger = "chunk"
	TriggerStop  Trigger = "stop"
	TriggerFail  Trigger = "fail"
)

// Transition returns the state reached from current on trigger.
func Transition(current State, trigger Trigger) (State, error) {
	if trigger == TriggerFail {
		return StateError, nil
	}

	switch current {
	case StateIdle, StateStopped, StateError:
		switch trigger {
		case TriggerStart:
			return StateStarting, nil
		default:
			return current, invalidTransition(current, trigger)
		}
	case StateStarting:
		switch trigger {
		case TriggerReady:
			return StateReady, nil
		case TriggerStop:
			return StateStopped, nil
		default:
			return current, invalidTransition(current, trigger)
		}
	case StateReady:
		switch trigger {
		case TriggerReady:
			return StateReady, nil
		case TriggerChunk:
			return StateStreaming, nil
		case TriggerStop:
			return StateStopped, nil
		default:
			return current, invalidTransition(current, trigger)
		}
	case StateStreaming:
		switch trigger {
		case TriggerReady, TriggerChunk:
			return StateStreaming, nil
		case TriggerStop:
			return StateStopped, nil
		default:
			return current, invalidTransition(current, trigger)
		}
	default:
		return current, fmt.Errorf("unknown state %q", current)
	}
}

// Accepting reports whether audio may be sent in s.
func (s State) Accepting() bool {
	return s == StateReady || s == StateStreaming
}

// Running reports whether a transport is open in s.
func (s State) Running() bool {
	return s == StateStarting || s.Accepting()
}

func invalidTransition(state State, trigger Trigger) error {
	return fmt.Errorf("invalid transition: %s --(%s)--> ?", state, trigger)
}
