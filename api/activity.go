// Package api
// Author: momentics <momentics@gmail.com>

package api

// ActivityReporter is optionally implemented by a connection returned from
// Endpoint.CreateConnection to distinguish a Poll call that observed
// genuine inbound bytes from one that merely found the socket would-block.
// Without it the IOService cannot tell the two apart — Poll returning nil
// is not by itself evidence of activity — so a connection that doesn't
// implement ActivityReporter is conservatively treated as active on every
// successful Poll, so its auto-disconnect TTL (if any) fires only once Poll
// has not been called for that long, and never while it is polled every
// tick.
type ActivityReporter interface {
	// ActivityObserved reports whether the most recent Poll call read at
	// least one byte from the peer. It is called once per Poll, after Poll
	// returns a nil error.
	ActivityObserved() bool
}
