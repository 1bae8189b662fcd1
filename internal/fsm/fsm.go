// Package fsm defines the capture-state transition table driven by the voice controller.
package fsm

import "fmt"

type State string

type Event string

const (
	StateIdle                 State = "idle"
	StateRequestingPermission State = "requesting_permission"
	StateInitializingAudio    State = "initializing_audio"
	StateConnecting           State = "connecting"
	StateListening            State = "listening"
	StateError                State = "error"
)

// States lists every capture state in lifecycle order.
var States = []State{
	StateIdle,
	StateRequestingPermission,
	StateInitializingAudio,
	StateConnecting,
	StateListening,
	StateError,
}

const (
	EventStart      Event = "start"
	EventGranted    Event = "granted"
	EventDenied     Event = "denied"
	EventAudioReady Event = "audio_ready"
	EventOpened     Event = "opened"
	EventClear      Event = "clear"
	EventStop       Event = "stop"
	EventFail       Event = "fail"
)

// CanStart reports whether a capture attempt may begin from state.
func (s State) CanStart() bool {
	return s == StateIdle || s == StateError
}

// Pending reports whether state is between a start request and an open remote session.
func (s State) Pending() bool {
	switch s {
	case StateRequestingPermission, StateInitializingAudio, StateConnecting:
		return true
	default:
		return false
	}
}

func Transition(current State, event Event) (State, error) {
	switch event {
	case EventFail:
		return StateError, nil
	case EventStop:
		if !known(current) {
			return current, fmt.Errorf("unknown state %q", current)
		}
		return StateIdle, nil
	}

	switch current {
	case StateIdle, StateError:
		switch event {
		case EventStart:
			return StateRequestingPermission, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateRequestingPermission:
		switch event {
		case EventGranted:
			return StateInitializingAudio, nil
		case EventDenied:
			return StateError, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateInitializingAudio:
		switch event {
		case EventAudioReady:
			return StateConnecting, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateConnecting:
		switch event {
		case EventOpened:
			return StateListening, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateListening:
		switch event {
		case EventClear:
			return StateListening, nil
		default:
			return current, invalidTransition(current, event)
		}
	default:
		return current, fmt.Errorf("unknown state %q", current)
	}
}

func known(state State) bool {
	switch state {
	case StateIdle, StateRequestingPermission, StateInitializingAudio, StateConnecting, StateListening, StateError:
		return true
	default:
		return false
	}
}

func invalidTransition(state State, event Event) error {
	return fmt.Errorf("invalid transition: %s --(%s)--> ?", state, event)
}
