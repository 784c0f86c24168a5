package hypervisor

// State is the hypervisor-reported phase of a virtual machine instance.
// The zero value is StateUnconfigured: no machine has been constructed,
// or the controller has discarded its interest in the previous one.
type State int

const (
	StateUnconfigured State = iota
	StateStarting
	StateRunning
	StatePausing
	StatePaused
	StateResuming
	StateStopping
	StateStopped
	StateError
)

func (s State) String() string {
	switch s {
	case StateUnconfigured:
		return "unconfigured"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StatePausing:
		return "pausing"
	case StatePaused:
		return "paused"
	case StateResuming:
		return "resuming"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Terminal reports whether the guest has reached a final state for this
// boot, whether a clean shutdown or a fatal guest error.
func (s State) Terminal() bool {
	return s == StateStopped || s == StateError
}
