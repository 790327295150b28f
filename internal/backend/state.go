package backend

import "fmt"

// ConnState is the lifecycle state of one Stream handle.
type ConnState int32

const (
	Connecting ConnState = iota
	Open
	Closed
	Errored
)

// ConnStates lists every state, in declaration order.
var ConnStates = []ConnState{Connecting, Open, Closed, Errored}

func (s ConnState) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	case Closed:
		return "closed"
	case Errored:
		return "errored"
	default:
		return fmt.Sprintf("ConnState(%d)", int32(s))
	}
}

// Terminal reports whether no transition leaves s.
func (s ConnState) Terminal() bool {
	return s == Closed || s == Errored
}

// transitions holds the only allowed moves. Nothing leads back to Connecting.
var transitions = map[ConnState][]ConnState{
	Connecting: {Open, Closed, Errored},
	Open:       {Closed, Errored},
}

// CanTransition reports whether from → to is allowed.
func CanTransition(from, to ConnState) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
