package pbx

import (
	"errors"
	"fmt"
)

// Error categories. Typed errors below unwrap to them so callers can use
// errors.Is for the category and errors.As for the detail.
var (
	// ErrChallengeUnavailable is returned when the PBX answers a challenge
	// request without a challenge token.
	ErrChallengeUnavailable = errors.New("challenge unavailable")

	// ErrLoginRejected is returned when the PBX answers a login with a
	// non-zero status.
	ErrLoginRejected = errors.New("login rejected")

	// ErrRemoteUnavailable is returned when the PBX cannot be reached, times
	// out, or the circuit breaker is open.
	ErrRemoteUnavailable = errors.New("remote unavailable")

	// ErrNoActiveSession is returned when no valid session exists for a user.
	ErrNoActiveSession = errors.New("no active session")
)

// LoginRejectedError carries the remote status of a rejected login.
type LoginRejectedError struct {
	// Status is nil when the reply carried no status at all.
	Status *int
}

func (e *LoginRejectedError) Error() string {
	if e.Status == nil {
		return "login failed with status undefined"
	}
	return fmt.Sprintf("login failed with status %d", *e.Status)
}

func (e *LoginRejectedError) Unwrap() error { return ErrLoginRejected }

// RemoteError describes a failed round trip to the PBX.
type RemoteError struct {
	// Op is the action that failed.
	Op string
	// HTTPStatus is set when the PBX answered with a non-success status.
	HTTPStatus int
	// Body holds the (truncated) answer body, if any.
	Body []byte
	// Err is the underlying transport error, if any.
	Err error
}

func (e *RemoteError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	case e.HTTPStatus != 0:
		return fmt.Sprintf("%s: remote returned HTTP %d", e.Op, e.HTTPStatus)
	default:
		return e.Op + ": remote unavailable"
	}
}

// Is makes errors.Is(err, ErrRemoteUnavailable) true for every RemoteError.
func (e *RemoteError) Is(target error) bool { return target == ErrRemoteUnavailable }

func (e *RemoteError) Unwrap() error { return e.Err }

// NoActiveSessionError names the user without a session.
type NoActiveSessionError struct {
	User string
}

func (e *NoActiveSessionError) Error() string {
	return fmt.Sprintf("no session found for user: %s. Please login first", e.User)
}

func (e *NoActiveSessionError) Unwrap() error { return ErrNoActiveSession }

// StatusOf extracts the remote status carried by err, if any.
func StatusOf(err error) (int, bool) {
	var rejected *LoginRejectedError
	if errors.As(err, &rejected) && rejected.Status != nil {
		return *rejected.Status, true
	}
	var remote *RemoteError
	if errors.As(err, &remote) && remote.HTTPStatus != 0 {
		return remote.HTTPStatus, true
	}
	return 0, false
}
