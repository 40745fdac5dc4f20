// File: ioservice/slot.go
// Author: momentics <momentics@gmail.com>
//
// Per-endpoint state machine data (§4.6's EndpointSlot). Endpoint[S] is
// generic per registration, but the IOService holds many different S types
// side by side; endpointHandle is the narrow, erased adapter built at
// Register time that lets the single tick loop drive every slot uniformly
// without knowing S (§9's tagged-variant / erased-capability boundary).

package ioservice

import (
	"net"
	"time"

	"github.com/momentics/hioload-net/api"
)

// SlotState is one stage of the per-endpoint lifecycle from §4.6.
type SlotState int

const (
	// Unresolved: registered, waiting for admission through the
	// endpoint-creation rate limiter before DNS resolution begins.
	Unresolved SlotState = iota
	// Resolving: an asynchronous DNS lookup is in flight.
	Resolving
	// Connecting: CreateConnection has been called and, if the returned
	// connection is api.Connectable, the IOService is waiting for
	// writability and FinishConnect to succeed.
	Connecting
	// Ready: the connection is open; Poll is called on readiness (or every
	// tick, for a connection that isn't api.Connectable).
	Ready
	// Backoff: disconnected, waiting for a jittered delay to expire before
	// retrying (or permanently Dead if the advisor vetoed the retry).
	Backoff
	// Dead: terminal. The advisor vetoed a reconnect, or Deregister was
	// called. No further work is done for this slot.
	Dead
)

func (s SlotState) String() string {
	switch s {
	case Unresolved:
		return "unresolved"
	case Resolving:
		return "resolving"
	case Connecting:
		return "connecting"
	case Ready:
		return "ready"
	case Backoff:
		return "backoff"
	case Dead:
		return "dead"
	default:
		return "unknown"
	}
}

// endpointHandle erases the type parameter of api.Endpoint[S] so the
// IOService can hold a homogeneous slice/map of registrations. Every method
// dispatches statically inside the concrete *endpointAdapter[S] that
// implements it; the interface itself carries no generic overhead beyond
// one indirect call per invocation, same price as any other Go interface.
type endpointHandle interface {
	host() string
	port() uint16
	beginConnect(addr net.Addr, ctx any) error
	tryFinishConnect() (bool, error)
	connectableFd() (uintptr, bool)
	poll(ctx any) (activity bool, err error)
	close() error
	reconnectAdvisor() (api.ReconnectAdvisor, bool)
	autoDisconnectTTL(fallback time.Duration) time.Duration
}

// endpointAdapter binds one api.Endpoint[S] and its live connection (once
// created) behind endpointHandle.
type endpointAdapter[S api.Closable] struct {
	ep      api.Endpoint[S]
	conn    S
	hasConn bool
}

func newEndpointAdapter[S api.Closable](ep api.Endpoint[S]) *endpointAdapter[S] {
	return &endpointAdapter[S]{ep: ep}
}

func (a *endpointAdapter[S]) host() string { return a.ep.Host() }
func (a *endpointAdapter[S]) port() uint16 { return a.ep.Port() }

func (a *endpointAdapter[S]) beginConnect(addr net.Addr, ctx any) error {
	conn, err := a.ep.CreateConnection(addr, ctx)
	if err != nil {
		return err
	}
	a.conn = conn
	a.hasConn = true
	return nil
}

func (a *endpointAdapter[S]) tryFinishConnect() (bool, error) {
	if !a.hasConn {
		return false, api.NewError(api.KindConfiguration, "no connection to finish", nil)
	}
	if c, ok := any(a.conn).(api.Connectable); ok {
		return c.FinishConnect()
	}
	return true, nil
}

func (a *endpointAdapter[S]) connectableFd() (uintptr, bool) {
	if !a.hasConn {
		return 0, false
	}
	c, ok := any(a.conn).(api.Connectable)
	if !ok {
		return 0, false
	}
	return c.Fd(), true
}

// poll drives the connection and reports whether it made genuine inbound
// progress this call. A connection that doesn't implement
// api.ActivityReporter is conservatively treated as always active, so its
// auto-disconnect timer resets on every successful Poll rather than only on
// genuine inbound bytes.
func (a *endpointAdapter[S]) poll(ctx any) (bool, error) {
	if !a.hasConn {
		return false, nil
	}
	if err := a.ep.Poll(a.conn, ctx); err != nil {
		return false, err
	}
	if reporter, ok := any(a.conn).(api.ActivityReporter); ok {
		return reporter.ActivityObserved(), nil
	}
	return true, nil
}

func (a *endpointAdapter[S]) close() error {
	if !a.hasConn {
		return nil
	}
	var zero S
	err := a.conn.Close()
	a.conn = zero
	a.hasConn = false
	return err
}

func (a *endpointAdapter[S]) reconnectAdvisor() (api.ReconnectAdvisor, bool) {
	adv, ok := any(a.ep).(api.ReconnectAdvisor)
	return adv, ok
}

func (a *endpointAdapter[S]) autoDisconnectTTL(fallback time.Duration) time.Duration {
	if s, ok := any(a.ep).(AutoDisconnectSupplier); ok {
		return s.AutoDisconnectTTL()
	}
	return fallback
}

// slot is the IOService's private bookkeeping for one registered endpoint.
type slot struct {
	handle Handle
	ep     endpointHandle
	ctx    any

	state SlotState

	resolvedAddrs []net.IP
	addrIdx       int

	token    api.Token
	hasToken bool

	backoffAttempt int
	backoffUntil   time.Time

	lastErr      error
	lastActivity time.Time
}
