package eventbus

// State is the lifecycle state of a Client's connection.
type State int

const (
	StateConnecting State = iota
	StateOpen
	StateClosing
	StateClosed
	StateUnknown
)

var stateLabels = map[State]string{
	StateConnecting: "connecting",
	StateOpen:       "open",
	StateClosing:    "closing",
	StateClosed:     "closed",
	StateUnknown:    "unknown",
}

// String returns the state label, or "unknown" for values outside the known set.
func (s State) String() string {
	if label, ok := stateLabels[s]; ok {
		return label
	}
	return stateLabels[StateUnknown]
}
