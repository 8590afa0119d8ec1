package layout

// State is the simulation lifecycle state.
type State int

const (
	StateIdle     State = iota // no nodes
	StateSeeding               // assigning initial positions
	StateRunning               // ticking, alpha decaying
	StateSettled               // alpha below AlphaMin, no ticks
	StateReheated              // alpha reset by an external event
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSeeding:
		return "seeding"
	case StateRunning:
		return "running"
	case StateSettled:
		return "settled"
	case StateReheated:
		return "reheated"
	default:
		return "unknown"
	}
}

// Active reports whether the state wants frames.
func (s State) Active() bool {
	return s == StateRunning || s == StateReheated
}
