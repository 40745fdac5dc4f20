// Package api
// Author: momentics <momentics@gmail.com>
//
// Error taxonomy shared across the stream stack, the websocket engine, and
// the IO service. WouldBlock is a plain sentinel so hot-path callers can
// check it with errors.Is without allocating; everything else fatal to a
// component is wrapped in *Error with a Kind so the IOService can decide
// how to react without string matching.

package api

import "fmt"

// ErrWouldBlock signals "no progress possible right now, try again after
// readiness". It is never wrapped in *Error: callers on the hot read/write
// path must be able to test for it as cheaply as possible.
var ErrWouldBlock = fmt.Errorf("api: would block")

// Kind classifies a fatal error for the purposes of §7 of the design: how
// the IOService reacts to it.
type Kind int

const (
	// KindTransport covers OS I/O failures, TLS session failures, and peer
	// reset. Fatal to the stream; the owning slot moves to Backoff.
	KindTransport Kind = iota
	// KindProtocol covers malformed frames, handshake rejection, and other
	// invariant violations in the websocket engine.
	KindProtocol
	// KindResolution covers DNS failures.
	KindResolution
	// KindConfiguration covers invalid URLs, missing SNI names, invalid
	// interfaces. Fatal immediately on register, never retried.
	KindConfiguration
	// KindApplication is returned by a user Endpoint.Poll. Treated the same
	// as KindTransport: torn down and retried.
	KindApplication
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindProtocol:
		return "protocol"
	case KindResolution:
		return "resolution"
	case KindConfiguration:
		return "configuration"
	case KindApplication:
		return "application"
	default:
		return "unknown"
	}
}

// Error is a structured, fatal error carrying a Kind and an optional cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// NewError builds an *Error of the given Kind wrapping cause. cause may be nil.
func NewError(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}
