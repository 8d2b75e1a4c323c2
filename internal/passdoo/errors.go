package passdoo

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Kind classifies every failure that crosses a component boundary
type Kind string

const (
	KindNetworkUnreachable Kind = "NetworkUnreachable"
	KindSessionInvalid     Kind = "SessionInvalid"
	KindUnauthorized       Kind = "Unauthorized"
	KindVersionOutdated    Kind = "VersionOutdated"
	KindServerUnavailable  Kind = "ServerUnavailable"
	KindRequestFailed      Kind = "RequestFailed"
	KindUnknownAction      Kind = "UnknownAction"
	KindAuthTimeout        Kind = "AuthTimeout"
	KindAuthFailed         Kind = "AuthFailed"
	KindAuthInProgress     Kind = "AuthInProgress"
	KindInvalidRequest     Kind = "InvalidRequest"
)

// Code returns the wire code sent to front-ends
func (k Kind) Code() string {
	switch k {
	case KindNetworkUnreachable:
		return "NETWORK_UNREACHABLE"
	case KindSessionInvalid, KindUnauthorized:
		return "SESSION_EXPIRED"
	case KindVersionOutdated:
		return "VERSION_OUTDATED"
	case KindServerUnavailable:
		return "SERVER_UNAVAILABLE"
	case KindRequestFailed:
		return "REQUEST_FAILED"
	case KindUnknownAction:
		return "UNKNOWN_ACTION"
	case KindAuthTimeout:
		return "AUTH_TIMEOUT"
	case KindAuthFailed:
		return "AUTH_FAILED"
	case KindAuthInProgress:
		return "AUTH_IN_PROGRESS"
	case KindInvalidRequest:
		return "INVALID_REQUEST"
	}
	return ""
}

// SessionRejected reports whether the backend no longer accepts the credential
func (k Kind) SessionRejected() bool {
	return k == KindUnauthorized || k == KindSessionInvalid
}

// Error is a classified failure
type Error struct {
	Kind     Kind
	Message  string
	Status   int             // HTTP status, 0 when no response was received
	Endpoint string          // Backend endpoint, empty for local failures
	Data     json.RawMessage // Server payload, set for VersionOutdated
	Err      error
}

func (e *Error) Error() string {
	if e.Endpoint != "" {
		return fmt.Sprintf("passdoo %s: %s (status: %d, endpoint: %s)", e.Kind, e.Message, e.Status, e.Endpoint)
	}
	return fmt.Sprintf("passdoo %s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates an unclassified-cause error of the given kind
func NewError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// AsError extracts a classified error from err's chain
func AsError(err error) (*Error, bool) {
	var perr *Error
	if errors.As(err, &perr) {
		return perr, true
	}
	return nil, false
}

// KindOf returns the kind of err, or "" when err is not classified
func KindOf(err error) Kind {
	if perr, ok := AsError(err); ok {
		return perr.Kind
	}
	return ""
}

// IsKind reports whether err is classified as kind
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
