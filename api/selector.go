// Package api
// Author: momentics <momentics@gmail.com>
//
// Selector abstracts an OS readiness mechanism. Selectors do not own
// sockets; they hold opaque tokens that reference slots owned by the
// IOService (see the reactor and ioservice packages).

package api

import "time"

// Interest describes which readiness events a registration cares about.
type Interest uint8

const (
	InterestRead Interest = 1 << iota
	InterestWrite
)

// Token is an opaque handle returned by Register, passed back on
// Deregister, and echoed on ready events.
type Token uint64

// Ready describes one readiness event returned from a Selector.Poll call.
type Ready struct {
	Token   Token
	Read    bool
	Write   bool
	Error   bool
}

// Selector is the pluggable readiness capability from §6. One live
// registration exists per slot; on reconnect the old registration is
// removed before a new one is added.
type Selector interface {
	// Register begins watching fd for the given interest, returning a fresh
	// opaque token.
	Register(fd uintptr, interest Interest) (Token, error)
	// Reregister changes the interest set for an existing token.
	Reregister(token Token, interest Interest) error
	// Deregister stops watching the fd behind token.
	Deregister(token Token) error
	// Poll blocks up to timeout waiting for readiness, appending ready
	// events to dst and returning the extended slice. timeout == 0 means
	// return immediately with whatever is already ready.
	Poll(dst []Ready, timeout time.Duration) ([]Ready, error)
	// Close releases the underlying OS resource.
	Close() error
}
