package session

// Phase is the coarse connection lifecycle position.
type Phase int

const (
	Idle Phase = iota
	Connecting
	Streaming
	Disconnected
	Failed
)

var phaseLabels = map[Phase]string{
	Idle:         "idle",
	Connecting:   "connecting",
	Streaming:    "streaming",
	Disconnected: "disconnected",
	Failed:       "failed",
}

// Label is the lowercase machine name used in logs and metrics.
func (p Phase) Label() string {
	if s, ok := phaseLabels[p]; ok {
		return s
	}
	return "unknown"
}

// State is the manager's single source of truth. Reason is set only when
// Phase is Failed.
type State struct {
	Phase  Phase
	Reason string
}

// Active reports whether a session is in progress. The shell disables
// start while this is true.
func (s State) Active() bool {
	return s.Phase == Connecting || s.Phase == Streaming
}

// String renders the state for display.
func (s State) String() string {
	switch s.Phase {
	case Idle:
		return "Idle"
	case Connecting:
		return "Connecting…"
	case Streaming:
		return "Streaming"
	case Disconnected:
		return "Disconnected"
	case Failed:
		if s.Reason == "" {
			return "Failed"
		}
		return "Failed: " + s.Reason
	default:
		return "Unknown"
	}
}
