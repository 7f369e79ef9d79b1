package loop

// State is the acquisition loop's position in its lifecycle. Transitions are
// linear per tile with a Restoring stage guaranteed on every exit path.
type State int

const (
	StateIdle State = iota
	StatePreparing
	StateCapturing
	StateStabilizing
	StateComparing
	StateAccepted
	StateRejected
	StateRestoring
	StateComplete
	StateFailed
)

var stateNames = map[State]string{
	StateIdle:        "idle",
	StatePreparing:   "preparing",
	StateCapturing:   "capturing",
	StateStabilizing: "stabilizing",
	StateComparing:   "comparing",
	StateAccepted:    "accepted",
	StateRejected:    "rejected",
	StateRestoring:   "restoring",
	StateComplete:    "complete",
	StateFailed:      "failed",
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return "unknown"
}
