package operation

// State represents the lifecycle state of an operation
type State int

const (
	// Stopped is the initial state and the state after termination or failure
	Stopped State = iota
	// Starting means the worker is being spawned
	Starting
	// Running means the worker is processing
	Running
	// Pausing means a pause was requested and the worker has not parked yet
	Pausing
	// Paused means the worker is parked at its checkpoint
	Paused
	// Stopping means a stop was requested and the worker has not exited yet
	Stopping
)

// String returns a string representation of the state
func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Starting:
		return "starting"
	case Running:
		return "running"
	case Pausing:
		return "pausing"
	case Paused:
		return "paused"
	case Stopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// Active reports whether a worker may exist in this state.
func (s State) Active() bool {
	return s != Stopped
}

// Rewirable reports whether connections may change in this state.
func (s State) Rewirable() bool {
	return s == Stopped || s == Paused
}

// Aggregate derives one state from a set of member states. Transitional
// states dominate, then a uniform Stopped or Paused set, otherwise Running.
func Aggregate(states []State) State {
	if len(states) == 0 {
		return Stopped
	}

	counts := make(map[State]int, 6)
	for _, s := range states {
		counts[s]++
	}

	switch {
	case counts[Stopping] > 0:
		return Stopping
	case counts[Starting] > 0:
		return Starting
	case counts[Pausing] > 0:
		return Pausing
	case counts[Stopped] == len(states):
		return Stopped
	case counts[Paused]+counts[Stopped] == len(states):
		return Paused
	default:
		return Running
	}
}
