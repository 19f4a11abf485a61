package checkout

import "fmt"

// State is the checkout lifecycle state.
type State string

const (
	StateIdle       State = "idle"
	StateLoading    State = "loading"
	StateProcessing State = "processing"
	StateSuccess    State = "success"
	StateError      State = "error"
)

// Event drives a state transition.
type Event string

const (
	EventLoadStarted      Event = "load_started"
	EventLoadFinished     Event = "load_finished"
	EventSubmitStarted    Event = "submit_started"
	EventPaymentSucceeded Event = "payment_succeeded"
	EventPaymentFailed    Event = "payment_failed"
)

var transitions = map[State]map[Event]State{
	StateIdle: {
		EventLoadStarted:   StateLoading,
		EventSubmitStarted: StateProcessing,
	},
	StateLoading: {
		EventLoadFinished: StateIdle,
	},
	StateError: {
		EventSubmitStarted: StateProcessing,
	},
	StateProcessing: {
		EventPaymentSucceeded: StateSuccess,
		EventPaymentFailed:    StateError,
	},
}

// next returns the target state for ev, or ErrInvalidTransition.
func next(from State, ev Event) (State, error) {
	if to, ok := transitions[from][ev]; ok {
		return to, nil
	}
	return from, fmt.Errorf("%w: %s on %s", ErrInvalidTransition, ev, from)
}

// Listener is notified after every accepted transition.
type Listener func(from, to State)
