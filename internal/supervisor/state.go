package supervisor

import "fmt"

// State is the supervisor lifecycle state.
type State int

const (
	Idle State = iota
	Initializing
	Running
	ShuttingDown
	Terminated
)

var stateNames = [...]string{
	Idle:         "idle",
	Initializing: "initializing",
	Running:      "running",
	ShuttingDown: "shutting_down",
	Terminated:   "terminated",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// States lists every state in lifecycle order.
func States() []State {
	return []State{Idle, Initializing, Running, ShuttingDown, Terminated}
}
