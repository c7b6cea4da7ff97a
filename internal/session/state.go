package session

// State is the externally visible state of a Session.
type State int

const (
	// StateUninitialized means no client handle exists and no token is held.
	StateUninitialized State = iota
	StateInitializing
	StateSignedOut
	StateSignedIn
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateSignedOut:
		return "signed_out"
	case StateSignedIn:
		return "signed_in"
	default:
		return "unknown"
	}
}
