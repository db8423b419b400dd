package tracker

// State is the lifecycle state of the recognition session supervisor.
type State string

const (
	// StateIdle means no reading segment has been started yet.
	StateIdle State = "idle"

	// StateStarting means a recognition session is being established.
	StateStarting State = "starting"

	// StateListening means a session is live and transcript updates flow.
	StateListening State = "listening"

	// StateRetrying means the session failed and a debounced restart is
	// pending.
	StateRetrying State = "retrying"

	// StateStopped means listening was stopped by the caller; Resume can
	// restart it from the current cursor.
	StateStopped State = "stopped"

	// StateFailed means an unrecoverable error occurred (authorization
	// denied or the restart budget was exhausted). Only a fresh Start
	// clears it.
	StateFailed State = "failed"
)

// IsValid reports whether s is a recognised state.
func (s State) IsValid() bool {
	switch s {
	case StateIdle, StateStarting, StateListening, StateRetrying, StateStopped, StateFailed:
		return true
	}
	return false
}
