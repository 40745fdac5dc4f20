// File: ioservice/service.go
// Author: momentics <momentics@gmail.com>
//
// IOService is the single-threaded, cooperative reactor from §4/§5: one
// goroutine repeatedly calls Tick, which drains completed DNS lookups,
// polls the selector once, steps every ready slot's state machine, advances
// expired backoffs, and finally applies the configured IdleStrategy if no
// work was done. Register/Deregister may be called from any goroutine; they
// only ever enqueue a request, so the tick loop itself never takes a lock
// (grounded on the teacher's own single-consumer channel idiom in
// reactor/reactor.go, generalized from an epoll-only loop to the full
// resolve/connect/ready/backoff table).

package ioservice

import (
	"errors"
	"net"
	"time"

	"github.com/eapache/queue"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/momentics/hioload-net/api"
	"github.com/momentics/hioload-net/control"
)

type registration struct {
	handle Handle
	ep     endpointHandle
	ctx    any
}

// IOService drives every registered endpoint's connection lifecycle from a
// single goroutine (whichever one calls Tick).
type IOService struct {
	selector api.Selector
	idle     api.IdleStrategy
	cfg      *control.Config
	log      *logrus.Entry

	slots  map[Handle]*slot
	tokens map[api.Token]Handle

	registerCh   chan registration
	deregisterCh chan Handle
	dnsDone      chan dnsResult

	pending *queue.Queue // handles admitted past rate-limiting, awaiting resolve
	limiter *rate.Limiter

	readyBuf []api.Ready
}

// New builds an IOService. sel is the readiness backend (reactor.EpollSelector
// on Linux, reactor.DirectSelector elsewhere); idle is applied whenever a
// tick makes no progress; cfg supplies dial/backoff/rate tunables and is
// safe to Update concurrently while the service runs.
func New(sel api.Selector, idle api.IdleStrategy, cfg *control.Config) *IOService {
	settings := cfg.Snapshot()
	return &IOService{
		selector:     sel,
		idle:         idle,
		cfg:          cfg,
		log:          control.ComponentLogger("ioservice"),
		slots:        make(map[Handle]*slot),
		tokens:       make(map[api.Token]Handle),
		registerCh:   make(chan registration, 256),
		deregisterCh: make(chan Handle, 256),
		dnsDone:      make(chan dnsResult, 256),
		pending:      queue.New(),
		limiter:      rate.NewLimiter(rate.Limit(settings.EndpointCreationRatePerSec), settings.EndpointCreationBurst),
	}
}

// Register admits ep into the service under a fresh Handle. ctx is passed
// back to ep.CreateConnection and ep.Poll verbatim on every call. Register
// is a free function, not a method, because Go forbids a generic method on
// a non-generic receiver; it hides the erasure into *endpointAdapter[S]
// from callers.
func Register[S api.Closable](svc *IOService, ep api.Endpoint[S], ctx any) Handle {
	h := newHandle()
	svc.registerCh <- registration{handle: h, ep: newEndpointAdapter[S](ep), ctx: ctx}
	return h
}

// Deregister removes handle's slot, closing its connection if one is open.
// Safe to call from any goroutine.
func (s *IOService) Deregister(handle Handle) {
	s.deregisterCh <- handle
}

// Tick runs one iteration of the reactor loop: drain registrations and
// deregistrations, drain completed DNS lookups, poll the selector once with
// the given timeout, step every slot the poll (or the unconditional list)
// touched, advance expired backoffs, and finally hand workCount to the
// configured IdleStrategy.
func (s *IOService) Tick(pollTimeout time.Duration) {
	work := 0

	work += s.drainRegistrations()
	work += s.drainDeregistrations()
	work += s.drainDNS()
	work += s.admitPending()
	work += s.pollSelector(pollTimeout)
	work += s.pollUnconditional()
	work += s.advanceBackoffs()
	work += s.checkAutoDisconnect()

	s.idle.Idle(work)
}

func (s *IOService) drainRegistrations() int {
	n := 0
	for {
		select {
		case reg := <-s.registerCh:
			sl := &slot{handle: reg.handle, ep: reg.ep, ctx: reg.ctx, state: Unresolved}
			s.slots[reg.handle] = sl
			s.pending.Add(reg.handle)
			n++
		default:
			return n
		}
	}
}

func (s *IOService) drainDeregistrations() int {
	n := 0
	for {
		select {
		case h := <-s.deregisterCh:
			s.destroySlot(h, nil)
			n++
		default:
			return n
		}
	}
}

// admitPending pops handles waiting in Unresolved off the FIFO as fast as
// the endpoint-creation rate limiter allows, kicking off DNS resolution for
// each (§4.6's ENDPOINT_CREATION_THROTTLE_NS, generalized into a
// configurable token bucket).
func (s *IOService) admitPending() int {
	n := 0
	for s.pending.Length() > 0 && s.limiter.Allow() {
		h := s.pending.Remove().(Handle)
		sl, ok := s.slots[h]
		if !ok || sl.state == Dead {
			continue
		}
		settings := s.cfg.Snapshot()
		sl.state = Resolving
		s.beginResolve(h, sl.ep.host(), settings.DNSTimeout)
		n++
	}
	return n
}

func (s *IOService) drainDNS() int {
	n := 0
	for {
		select {
		case res := <-s.dnsDone:
			s.handleDNSResult(res)
			n++
		default:
			return n
		}
	}
}

func (s *IOService) handleDNSResult(res dnsResult) {
	sl, ok := s.slots[res.handle]
	if !ok || sl.state != Resolving {
		return
	}
	if res.err != nil || len(res.addrs) == 0 {
		s.enterBackoff(sl, api.NewError(api.KindResolution, "resolve "+sl.ep.host(), res.err))
		return
	}
	sl.resolvedAddrs = res.addrs
	sl.addrIdx = 0
	s.beginConnecting(sl)
}

func (s *IOService) beginConnecting(sl *slot) {
	port := sl.ep.port()
	addr := &net.TCPAddr{IP: sl.resolvedAddrs[sl.addrIdx], Port: int(port)}
	if err := sl.ep.beginConnect(addr, sl.ctx); err != nil {
		s.retryNextAddrOrBackoff(sl, err)
		return
	}
	sl.state = Connecting

	if fd, ok := sl.ep.connectableFd(); ok {
		tok, err := s.selector.Register(fd, api.InterestWrite)
		if err != nil {
			s.retryNextAddrOrBackoff(sl, api.NewError(api.KindTransport, "register connecting socket", err))
			return
		}
		sl.token = tok
		sl.hasToken = true
		s.tokens[tok] = sl.handle
		return
	}

	// No selectable descriptor: the connection does not implement
	// api.Connectable, so it is treated as already fully composed. Try to
	// finish immediately rather than waiting on a selector event that will
	// never come.
	s.finishConnecting(sl)
}

func (s *IOService) finishConnecting(sl *slot) {
	done, err := sl.ep.tryFinishConnect()
	if err != nil {
		s.retryNextAddrOrBackoff(sl, err)
		return
	}
	if !done {
		return
	}
	sl.state = Ready
	sl.lastActivity = time.Now()
	sl.backoffAttempt = 0
	if sl.hasToken {
		if err := s.selector.Reregister(sl.token, api.InterestRead); err != nil {
			s.enterBackoff(sl, api.NewError(api.KindTransport, "reregister for read", err))
		}
	}
}

// retryNextAddrOrBackoff advances to the next address DNS resolved for this
// host and retries the connect immediately, exhausting resolvedAddrs before
// falling back to Backoff (§4.6: "connect attempts proceed in order;
// exhaustion transitions to Backoff").
func (s *IOService) retryNextAddrOrBackoff(sl *slot, cause error) {
	s.teardownConnection(sl)
	sl.addrIdx++
	if sl.addrIdx < len(sl.resolvedAddrs) {
		s.beginConnecting(sl)
		return
	}
	s.enterBackoff(sl, cause)
}

func (s *IOService) pollSelector(timeout time.Duration) int {
	if len(s.slots) == 0 {
		return 0
	}
	ready, err := s.selector.Poll(s.readyBuf[:0], timeout)
	if err != nil {
		s.log.WithError(err).Warn("selector poll failed")
		return 0
	}
	s.readyBuf = ready
	n := 0
	for _, r := range ready {
		h, ok := s.tokens[r.Token]
		if !ok {
			continue
		}
		sl, ok := s.slots[h]
		if !ok {
			continue
		}
		n++
		switch sl.state {
		case Connecting:
			if r.Error {
				s.retryNextAddrOrBackoff(sl, api.NewError(api.KindTransport, "connect failed", nil))
				continue
			}
			s.finishConnecting(sl)
		case Ready:
			s.pollReady(sl)
		}
	}
	return n
}

// pollUnconditional steps every Ready slot whose connection isn't
// selector-registered (connectableFd returned false): it has no readiness
// signal to wait for, so it is polled every tick instead.
func (s *IOService) pollUnconditional() int {
	n := 0
	for _, sl := range s.slots {
		if sl.state != Ready || sl.hasToken {
			continue
		}
		s.pollReady(sl)
		n++
	}
	return n
}

func (s *IOService) pollReady(sl *slot) {
	activity, err := sl.ep.poll(sl.ctx)
	if err == nil {
		if activity {
			sl.lastActivity = time.Now()
		}
		return
	}
	if err == api.ErrWouldBlock {
		return
	}
	s.enterBackoff(sl, err)
}

// enterBackoff tears down sl's connection and schedules a retry, or marks
// the slot Dead if the endpoint's ReconnectAdvisor vetoes it.
func (s *IOService) enterBackoff(sl *slot, cause error) {
	s.enterBackoffReason(sl, api.DisconnectReason{Err: cause})
}

func (s *IOService) enterBackoffReason(sl *slot, reason api.DisconnectReason) {
	sl.lastErr = reason.Err
	s.log.WithField("host", sl.ep.host()).WithField("reason", reason.String()).Debug("disconnect")

	var apiErr *api.Error
	if errors.As(reason.Err, &apiErr) && apiErr.Kind == api.KindConfiguration {
		s.destroySlot(sl.handle, reason.Err)
		return
	}

	if adv, ok := sl.ep.reconnectAdvisor(); ok && !adv.CanRecreate(reason) {
		s.destroySlot(sl.handle, reason.Err)
		return
	}

	s.teardownConnection(sl)

	settings := s.cfg.Snapshot()
	policy := BackoffPolicy{Initial: settings.BackoffInitial, Max: settings.BackoffMax, Multiplier: settings.BackoffMultiplier}
	sl.backoffUntil = time.Now().Add(policy.Next(sl.backoffAttempt))
	sl.backoffAttempt++
	sl.state = Backoff
}

func (s *IOService) teardownConnection(sl *slot) {
	if sl.hasToken {
		_ = s.selector.Deregister(sl.token)
		delete(s.tokens, sl.token)
		sl.hasToken = false
	}
	_ = sl.ep.close()
}

func (s *IOService) destroySlot(handle Handle, cause error) {
	sl, ok := s.slots[handle]
	if !ok {
		return
	}
	s.teardownConnection(sl)
	sl.state = Dead
	delete(s.slots, handle)
}

// advanceBackoffs promotes every slot whose backoff delay has elapsed back
// to Unresolved (retrying via a fresh DNS resolution, since the resolved
// address may have changed) unless the advisor now vetoes the retry.
func (s *IOService) advanceBackoffs() int {
	n := 0
	now := time.Now()
	for h, sl := range s.slots {
		if sl.state != Backoff || now.Before(sl.backoffUntil) {
			continue
		}
		reason := api.DisconnectReason{Err: sl.lastErr}
		if adv, ok := sl.ep.reconnectAdvisor(); ok && !adv.CanRecreate(reason) {
			s.destroySlot(h, sl.lastErr)
			n++
			continue
		}
		sl.state = Unresolved
		s.pending.Add(h)
		n++
	}
	return n
}

// checkAutoDisconnect forces a Ready slot into Backoff once it has been
// idle past its configured (or endpoint-supplied) TTL, provided the
// advisor allows it (supplemented feature 3/5).
func (s *IOService) checkAutoDisconnect() int {
	n := 0
	now := time.Now()
	fallback := s.cfg.Snapshot().DefaultAutoDisconnectTTL
	for _, sl := range s.slots {
		if sl.state != Ready {
			continue
		}
		ttl := sl.ep.autoDisconnectTTL(fallback)
		if ttl <= 0 {
			continue
		}
		if now.Sub(sl.lastActivity) < ttl {
			continue
		}
		if adv, ok := sl.ep.reconnectAdvisor(); ok && !adv.CanAutoDisconnect() {
			continue
		}
		s.enterBackoffReason(sl, api.DisconnectReason{AutoDisconnect: true})
		n++
	}
	return n
}

// State reports handle's current lifecycle stage, mainly for tests and
// diagnostics.
func (s *IOService) State(handle Handle) (SlotState, bool) {
	sl, ok := s.slots[handle]
	if !ok {
		return Dead, false
	}
	return sl.state, true
}

// Close deregisters every slot and releases the selector.
func (s *IOService) Close() error {
	for h := range s.slots {
		s.destroySlot(h, nil)
	}
	return s.selector.Close()
}
