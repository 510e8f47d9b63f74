package controller

// State is the lifecycle position of the managed server. Stopped is
// re-enterable: auto-restart, scheduled restart and operator starts all
// loop back through CheckingPrerequisites.
type State int32

const (
	StateIdle State = iota
	StateCheckingPrerequisites
	StateUpdatingServer
	StateBackingUp
	StateLaunching
	StateRunning
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCheckingPrerequisites:
		return "checking-prerequisites"
	case StateUpdatingServer:
		return "updating-server"
	case StateBackingUp:
		return "backing-up"
	case StateLaunching:
		return "launching"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}
