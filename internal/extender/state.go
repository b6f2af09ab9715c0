package extender

// State is the lifecycle state of the extender. Only the Orchestrator
// changes it.
type State string

const (
	StateStopped      State = "stopped"
	StateInitializing State = "initializing"
	StateRunning      State = "running"
	StateDegraded     State = "degraded"
	StateStopping     State = "stopping"
	StateFailed       State = "failed"
)

// States lists every state in declaration order.
var States = []State{
	StateStopped,
	StateInitializing,
	StateRunning,
	StateDegraded,
	StateStopping,
	StateFailed,
}

var transitions = map[State][]State{
	StateStopped:      {StateInitializing},
	StateInitializing: {StateRunning, StateStopped},
	StateRunning:      {StateDegraded, StateStopping},
	StateDegraded:     {StateRunning, StateFailed, StateStopping},
	StateFailed:       {StateStopping},
	StateStopping:     {StateStopped},
}

// CanTransition reports whether the state machine allows from -> to.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Active reports whether the reconcile loop supervises this state.
func (s State) Active() bool {
	return s == StateRunning || s == StateDegraded
}

func (s State) String() string { return string(s) }
