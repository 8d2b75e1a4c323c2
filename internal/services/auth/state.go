package auth

// State is the session lifecycle state
type State string

const (
	StateUnauthenticated State = "unauthenticated"
	StateAuthenticating  State = "authenticating"
	StateAuthenticated   State = "authenticated"
)

// Authenticated reports whether the state grants access to records
func (s State) Authenticated() bool {
	return s == StateAuthenticated
}

// Subscriber receives state changes synchronously
type Subscriber func(State)
