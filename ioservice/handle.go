// Package ioservice
// Author: momentics <momentics@gmail.com>
//
// IOService owns a Selector, an IdleStrategy, and an ordered collection of
// EndpointSlots, driving connect -> poll -> reconnect per §4.6. Grounded on
// the teacher's client package for the shape of a long-lived connection
// manager, and on original_source/service/mod.rs for the actual tick
// sequence and per-slot state machine, since the teacher's own
// internal/concurrency/eventloop.go is multithreaded and does not match
// the single-threaded cooperative model spec §5 requires.
package ioservice

import "github.com/google/uuid"

// Handle identifies a registered endpoint slot. Opaque to callers; carries
// a uuid so a stale handle from a torn-down slot can never alias a live
// one, matching the "Handle identity" role from the retrieval pack's
// kephasnet client (internal/websocket/websocket_client.go).
type Handle struct {
	id uuid.UUID
}

func newHandle() Handle { return Handle{id: uuid.New()} }

func (h Handle) String() string { return h.id.String() }
