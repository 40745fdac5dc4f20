// Package api
// Author: momentics <momentics@gmail.com>
//
// Endpoint is the user-supplied glue between a resolved network address and
// business logic, as described in §3 and §6. It is intentionally minimal:
// everything about lifecycle (resolve, connect, backoff, reconnect) is owned
// by the IOService; the Endpoint only builds streams and reacts to
// readiness. Endpoint is generic over S, the concrete, statically composed
// stream stack this endpoint drives end to end (e.g.
// *ws.Engine[*stream.TCPStream]) — per §9's "static composition over
// dynamic dispatch", every call inside S's own methods dispatches
// statically. The IOService itself holds many different Endpoint[S]
// instances side by side behind a narrow, erased adapter built at
// registration time (§9's "polymorphic endpoint registries... a
// tagged-variant or erased-capability wrapper at the slot boundary only").

package api

import "net"

type Endpoint[S Closable] interface {
	// Host returns the DNS name or literal address to resolve.
	Host() string
	// Port returns the destination TCP port.
	Port() uint16

	// CreateConnection builds the fully composed stream stack (TCP, TLS,
	// recorder, websocket, ...) once addr has been resolved. The returned
	// S may still be mid-connect (a non-blocking TCP connect in flight);
	// if S implements Connectable, the IOService waits for writability and
	// calls FinishConnect before treating the slot as Ready. ctx is the
	// optional user context threaded through by the IOService (nil if
	// none was configured).
	CreateConnection(addr net.Addr, ctx any) (S, error)

	// Poll is called whenever the IOService observed readiness (or, under
	// a direct selector, on every tick) for this endpoint's connection. It
	// should perform one bounded unit of work and return promptly;
	// ErrWouldBlock is not an error at this level, any other non-nil error
	// tears the connection down and is treated as KindApplication.
	Poll(conn S, ctx any) error
}

// Closable is the only capability the IOService itself requires of a
// composed stream stack: it must be closeable on teardown. Everything else
// (Read/Write/frame decode/...) is used only by the Endpoint's own Poll
// implementation, which knows S's concrete type statically.
type Closable interface {
	Close() error
}

// ReconnectAdvisor is an optional interface an Endpoint may implement to
// veto an automatic reconnect or auto-disconnect decision. Endpoints that
// do not implement it are always reconnectable and always eligible for
// auto-disconnect.
type ReconnectAdvisor interface {
	// CanRecreate is asked before the IOService schedules another connect
	// attempt after a disconnect. Returning false makes the slot Dead.
	CanRecreate(reason DisconnectReason) bool
	// CanAutoDisconnect is asked before the auto-disconnect timer forces a
	// slot into Backoff. Returning false postpones the disconnect.
	CanAutoDisconnect() bool
}

// DisconnectReason explains why a slot is leaving the Ready state.
type DisconnectReason struct {
	// AutoDisconnect is true when the disconnect was triggered by the
	// per-slot inactivity deadline rather than an I/O error.
	AutoDisconnect bool
	// Err is the triggering error; nil when AutoDisconnect is true.
	Err error
}

func (r DisconnectReason) String() string {
	if r.AutoDisconnect {
		return "auto-disconnect"
	}
	if r.Err != nil {
		return r.Err.Error()
	}
	return "unknown"
}
