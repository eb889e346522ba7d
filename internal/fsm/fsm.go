package fsm

import "fmt"

// State is the observable status of a voice conversation session.
type State string

// Event is a transport-level occurrence that may move the session between states.
type Event string

const (
	StateIdle       State = "idle"
	StateConnecting State = "connecting"
	StateListening  State = "listening"
	StateThinking   State = "thinking"
	StateSpeaking   State = "speaking"
	StateError      State = "error"
)

const (
	EventStart        Event = "start"
	EventOpen         Event = "open"
	EventUserSpeech   Event = "user_speech"
	EventThinking     Event = "thinking"
	EventModelTurn    Event = "model_turn"
	EventTurnComplete Event = "turn_complete"
	EventInterrupted  Event = "interrupted"
	EventFail         Event = "fail"
	EventClose        Event = "close"
)

// States lists every known state in lifecycle order.
func States() []State {
	return []State{StateIdle, StateConnecting, StateListening, StateThinking, StateSpeaking, StateError}
}

// Active reports whether state belongs to an open conversation.
func Active(state State) bool {
	switch state {
	case StateListening, StateThinking, StateSpeaking:
		return true
	default:
		return false
	}
}

// Transition returns the state reached from current on event.
// Invalid pairs return current unchanged together with an error.
func Transition(current State, event Event) (State, error) {
	if !known(current) {
		return current, fmt.Errorf("unknown state %q", current)
	}

	switch event {
	case EventFail:
		return StateError, nil
	case EventClose:
		return StateIdle, nil
	}

	switch current {
	case StateIdle, StateError:
		switch event {
		case EventStart:
			return StateConnecting, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateConnecting:
		switch event {
		case EventOpen:
			return StateListening, nil
		default:
			return current, invalidTransition(current, event)
		}
	default:
		switch event {
		case EventUserSpeech, EventTurnComplete, EventInterrupted:
			return StateListening, nil
		case EventModelTurn:
			return StateSpeaking, nil
		case EventThinking:
			if current == StateSpeaking {
				return current, invalidTransition(current, event)
			}
			return StateThinking, nil
		default:
			return current, invalidTransition(current, event)
		}
	}
}

func known(state State) bool {
	for _, candidate := range States() {
		if candidate == state {
			return true
		}
	}
	return false
}

func invalidTransition(state State, event Event) error {
	return fmt.Errorf("invalid transition: %s --(%s)--> ?", state, event)
}
