// File: ioservice/service_test.go
// Author: momentics <momentics@gmail.com>

package ioservice

import (
	"errors"
	"net"
	"testing"
	"time"

	"github.com/momentics/hioload-net/api"
	"github.com/momentics/hioload-net/control"
	"github.com/momentics/hioload-net/reactor"
)

// fakeConn is a minimal api.Closable connection with no Connectable
// capability, so slots built on it are polled unconditionally every tick.
type fakeConn struct {
	closed   bool
	pollErr  error
	polls    int
	failOnce bool
}

func (c *fakeConn) Close() error { c.closed = true; return nil }

// fakeEndpoint implements api.Endpoint[*fakeConn].
type fakeEndpoint struct {
	host       string
	created    int
	conn       *fakeConn
	createErr  error
	pollErrSeq []error // consumed one per Poll call; nil once exhausted

	// failAttempts makes the first N CreateConnection calls fail with
	// createErr before the (N+1)th succeeds, letting tests exercise
	// multi-address fan-out. attemptedAddrs records the address tried on
	// each call, in order.
	failAttempts   int
	attemptedAddrs []net.IP
}

func (e *fakeEndpoint) Host() string { return e.host }
func (e *fakeEndpoint) Port() uint16 { return 9999 }

func (e *fakeEndpoint) CreateConnection(addr net.Addr, ctx any) (*fakeConn, error) {
	e.created++
	if tcpAddr, ok := addr.(*net.TCPAddr); ok {
		e.attemptedAddrs = append(e.attemptedAddrs, tcpAddr.IP)
	}
	if e.createErr != nil && e.created <= e.failAttempts {
		return nil, e.createErr
	}
	e.conn = &fakeConn{}
	return e.conn, nil
}

func (e *fakeEndpoint) Poll(conn *fakeConn, ctx any) error {
	conn.polls++
	if len(e.pollErrSeq) > 0 {
		err := e.pollErrSeq[0]
		e.pollErrSeq = e.pollErrSeq[1:]
		return err
	}
	return nil
}

func newTestService() *IOService {
	cfg := control.NewConfig(control.Settings{
		DialTimeout:                time.Second,
		DNSTimeout:                 time.Second,
		BackoffInitial:             10 * time.Millisecond,
		BackoffMax:                 40 * time.Millisecond,
		BackoffMultiplier:          2.0,
		EndpointCreationRatePerSec: 1000,
		EndpointCreationBurst:      1000,
	})
	return New(reactor.NewDirectSelector(), BusySpin{}, cfg)
}

func drainDNSFor(t *testing.T, svc *IOService, handle Handle, host string) {
	t.Helper()
	// beginResolve's goroutine uses the real resolver; a literal loopback
	// or IP-shaped host resolves without touching the network.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		svc.Tick(0)
		if st, ok := svc.State(handle); ok && st != Unresolved && st != Resolving {
			return
		}
	}
	t.Fatalf("slot for %s never left resolving", host)
}

func TestRegisterResolvesConnectsAndPolls(t *testing.T) {
	svc := newTestService()
	ep := &fakeEndpoint{host: "127.0.0.1"}
	handle := Register[*fakeConn](svc, ep, nil)

	drainDNSFor(t, svc, handle, ep.host)

	st, ok := svc.State(handle)
	if !ok || st != Ready {
		t.Fatalf("expected Ready, got %v (ok=%v)", st, ok)
	}
	if ep.created != 1 {
		t.Fatalf("expected exactly one CreateConnection call, got %d", ep.created)
	}

	svc.Tick(0)
	if ep.conn.polls == 0 {
		t.Fatalf("expected Poll to have been called on the unconditional path")
	}
}

func TestPollErrorEntersBackoffThenRecovers(t *testing.T) {
	svc := newTestService()
	ep := &fakeEndpoint{host: "127.0.0.1", pollErrSeq: []error{errors.New("boom")}}
	handle := Register[*fakeConn](svc, ep, nil)
	drainDNSFor(t, svc, handle, ep.host)
	svc.Tick(0) // ensures the injected poll error has been consumed by now

	st, _ := svc.State(handle)
	if st != Backoff {
		t.Fatalf("expected Backoff after poll error, got %v", st)
	}
	if !ep.conn.closed {
		t.Fatalf("expected connection to be closed on disconnect")
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		svc.Tick(0)
		if st, _ := svc.State(handle); st == Ready {
			return
		}
	}
	t.Fatalf("slot never recovered to Ready after backoff expired")
}

// §4.6: when DNS resolves multiple addresses, connect attempts proceed in
// order through resolvedAddrs, only entering Backoff once every address has
// been tried.
func TestMultiAddressFanoutTriesEachAddressBeforeBackoff(t *testing.T) {
	svc := newTestService()
	ep := &fakeEndpoint{host: "multi.example", createErr: errors.New("connection refused"), failAttempts: 2}
	addrs := []net.IP{net.ParseIP("127.0.0.2"), net.ParseIP("127.0.0.3"), net.ParseIP("127.0.0.4")}

	handle := newHandle()
	sl := &slot{handle: handle, ep: newEndpointAdapter[*fakeConn](ep), state: Resolving, resolvedAddrs: addrs}
	svc.slots[handle] = sl

	svc.beginConnecting(sl)

	if ep.created != 3 {
		t.Fatalf("expected 3 connect attempts across all resolved addresses, got %d", ep.created)
	}
	if sl.state != Ready {
		t.Fatalf("expected Ready once the last address succeeds, got %v", sl.state)
	}
	if len(ep.attemptedAddrs) != len(addrs) {
		t.Fatalf("expected %d attempted addresses, got %d", len(addrs), len(ep.attemptedAddrs))
	}
	for i, want := range addrs {
		if !ep.attemptedAddrs[i].Equal(want) {
			t.Fatalf("attempt %d used %v, want %v", i, ep.attemptedAddrs[i], want)
		}
	}
}

// Once every resolved address has failed, the slot enters Backoff instead
// of retrying forever.
func TestMultiAddressFanoutExhaustionEntersBackoff(t *testing.T) {
	svc := newTestService()
	ep := &fakeEndpoint{host: "multi.example", createErr: errors.New("connection refused"), failAttempts: 99}
	addrs := []net.IP{net.ParseIP("127.0.0.2"), net.ParseIP("127.0.0.3")}

	handle := newHandle()
	sl := &slot{handle: handle, ep: newEndpointAdapter[*fakeConn](ep), state: Resolving, resolvedAddrs: addrs}
	svc.slots[handle] = sl

	svc.beginConnecting(sl)

	if ep.created != len(addrs) {
		t.Fatalf("expected exactly %d connect attempts, got %d", len(addrs), ep.created)
	}
	if sl.state != Backoff {
		t.Fatalf("expected Backoff after every address failed, got %v", sl.state)
	}
}

// activityConn optionally reports whether its last poll observed genuine
// inbound bytes, exercising api.ActivityReporter independently of the
// unconditional-activity fallback fakeConn gets.
type activityConn struct {
	fakeConn
	active bool
}

func (c *activityConn) ActivityObserved() bool { return c.active }

type activityEndpoint struct {
	conn *activityConn
}

func (e *activityEndpoint) Host() string { return "127.0.0.1" }
func (e *activityEndpoint) Port() uint16 { return 9999 }
func (e *activityEndpoint) CreateConnection(addr net.Addr, ctx any) (*activityConn, error) {
	return e.conn, nil
}
func (e *activityEndpoint) Poll(conn *activityConn, ctx any) error { return nil }

// A Poll call that returns nil only because the connection would-blocked
// must not look like activity: checkAutoDisconnect depends on lastActivity
// only advancing on genuine inbound progress.
func TestPollReadyOnlyBumpsActivityOnGenuineProgress(t *testing.T) {
	svc := newTestService()
	conn := &activityConn{}
	ep := &activityEndpoint{conn: conn}
	adapter := newEndpointAdapter[*activityConn](ep)
	if err := adapter.beginConnect(&net.TCPAddr{}, nil); err != nil {
		t.Fatalf("beginConnect: %v", err)
	}

	stale := time.Now().Add(-time.Hour)
	sl := &slot{handle: newHandle(), ep: adapter, state: Ready, lastActivity: stale}
	svc.slots[sl.handle] = sl

	conn.active = false
	svc.pollReady(sl)
	if !sl.lastActivity.Equal(stale) {
		t.Fatalf("lastActivity moved from %v to %v on a would-block poll", stale, sl.lastActivity)
	}

	conn.active = true
	svc.pollReady(sl)
	if sl.lastActivity.Equal(stale) {
		t.Fatalf("lastActivity did not advance on a poll with genuine activity")
	}
}

// AutoDisconnectSupplier + the endpoint's silence past the TTL must force a
// Ready slot into Backoff (supplemented features 3/5).
type autoDisconnectEndpoint struct {
	fakeEndpoint
	ttl time.Duration
}

func (e *autoDisconnectEndpoint) AutoDisconnectTTL() time.Duration { return e.ttl }

func TestCheckAutoDisconnectForcesIdleSlotToBackoff(t *testing.T) {
	svc := newTestService()
	ep := &autoDisconnectEndpoint{fakeEndpoint: fakeEndpoint{host: "127.0.0.1"}, ttl: 10 * time.Millisecond}
	sl := &slot{
		handle:       newHandle(),
		ep:           newEndpointAdapter[*fakeConn](ep),
		state:        Ready,
		lastActivity: time.Now().Add(-time.Hour),
	}
	svc.slots[sl.handle] = sl

	if n := svc.checkAutoDisconnect(); n != 1 {
		t.Fatalf("expected checkAutoDisconnect to act on the idle slot, got %d", n)
	}
	if sl.state != Backoff {
		t.Fatalf("expected Backoff once the auto-disconnect TTL elapsed, got %v", sl.state)
	}
}

// A slot that has seen recent activity must not be auto-disconnected even
// though the endpoint supplies a short TTL.
func TestCheckAutoDisconnectLeavesActiveSlotAlone(t *testing.T) {
	svc := newTestService()
	ep := &autoDisconnectEndpoint{fakeEndpoint: fakeEndpoint{host: "127.0.0.1"}, ttl: time.Hour}
	sl := &slot{
		handle:       newHandle(),
		ep:           newEndpointAdapter[*fakeConn](ep),
		state:        Ready,
		lastActivity: time.Now(),
	}
	svc.slots[sl.handle] = sl

	if n := svc.checkAutoDisconnect(); n != 0 {
		t.Fatalf("expected no action on a recently-active slot, got %d", n)
	}
	if sl.state != Ready {
		t.Fatalf("expected slot to remain Ready, got %v", sl.state)
	}
}

type vetoAdvisor struct{ BaseAdvisor }

func (vetoAdvisor) CanRecreate(api.DisconnectReason) bool { return false }

type vetoingEndpoint struct {
	fakeEndpoint
	vetoAdvisor
}

func TestReconnectVetoMarksSlotDead(t *testing.T) {
	svc := newTestService()
	ep := &vetoingEndpoint{fakeEndpoint: fakeEndpoint{host: "127.0.0.1", pollErrSeq: []error{errors.New("fatal")}}}
	handle := Register[*fakeConn](svc, ep, nil)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		svc.Tick(0)
		if _, ok := svc.State(handle); !ok {
			return // slot destroyed: the veto took effect
		}
	}
	t.Fatalf("expected slot to be gone (Dead) after a vetoed reconnect")
}

func TestBackoffPolicyGrowsAndClamps(t *testing.T) {
	p := BackoffPolicy{Initial: 100 * time.Millisecond, Max: time.Second, Multiplier: 2.0}
	prevBound := p.Initial
	for attempt := 0; attempt < 10; attempt++ {
		d := p.Next(attempt)
		if d < 0 {
			t.Fatalf("negative backoff at attempt %d: %v", attempt, d)
		}
		bound := time.Duration(float64(p.Initial) * pow2(attempt))
		if bound > p.Max {
			bound = p.Max
		}
		if d > bound {
			t.Fatalf("attempt %d: backoff %v exceeds bound %v", attempt, d, bound)
		}
		prevBound = bound
	}
	if prevBound != p.Max {
		t.Fatalf("expected bound to have clamped to Max by attempt 9, got %v", prevBound)
	}
}

func pow2(n int) float64 {
	v := 1.0
	for i := 0; i < n; i++ {
		v *= 2.0
	}
	return v
}
