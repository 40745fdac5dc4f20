// File: ws/engine.go
// Author: momentics <momentics@gmail.com>
//
// The client-side WebSocket engine from §4.5/§3: owns a read buffer, a
// write buffer, a masking policy, connection state, fragmentation assembly
// and a per-batch timestamp slot. Grounded on the teacher's
// protocol/connection.go for the shape of a WS session (handshake once,
// then steady-state frame exchange) but rebuilt as a single-threaded,
// pull-based, non-blocking state machine instead of the teacher's
// goroutine/channel design, since the IOService drives this from one
// thread per §5.

package ws

import (
	"io"
	"time"

	"github.com/momentics/hioload-net/api"
	"github.com/momentics/hioload-net/pool"
)

// maxControlPayload is RFC 6455 §5.5's hard limit on control frame
// payloads; they must also never be fragmented.
const maxControlPayload = 125

// controlReplyPool amortizes the allocation for the outgoing copy of a
// Ping's payload when building the automatic Pong reply. Its lifetime is
// entirely local to handleFrame: Get, copy, hand to sendFrame, Put back
// before returning. The Event surfaced to the caller for the Ping itself
// is a separate, unpooled copy since the caller may retain it indefinitely.
var controlReplyPool = pool.NewBytePool(maxControlPayload)

// State is the connection's lifecycle stage.
type State int

const (
	StateHandshaking State = iota
	StateOpen
	StateClosing
	StateClosed
)

// EventKind classifies what Poll surfaced.
type EventKind int

const (
	EventMessage EventKind = iota
	EventPing
	EventPong
	EventClose
)

// Event is one thing the engine surfaced from a single Poll call. Payload
// is owned by the event (safe for the caller to retain).
type Event struct {
	Kind      EventKind
	Opcode    Opcode
	Payload   []byte
	Timestamp time.Time
}

// Option configures an Engine at construction.
type Option func(*engineConfig)

type engineConfig struct {
	extraHeaders     map[string]string
	maskSrc          MaskSource
	clock            func() time.Time
	initialReadBuf   int
	maxReadBuf       int
	maxMessage       int
	lingerAfterClose time.Duration
}

func defaultConfig() engineConfig {
	return engineConfig{
		maskSrc:          CryptoRandMask{},
		clock:            time.Now,
		initialReadBuf:   4096,
		maxReadBuf:       1 << 20,
		maxMessage:       8 << 20,
		lingerAfterClose: time.Second,
	}
}

// WithExtraHeaders adds headers to the handshake request (e.g. Origin,
// Sec-WebSocket-Protocol).
func WithExtraHeaders(h map[string]string) Option {
	return func(c *engineConfig) { c.extraHeaders = h }
}

// WithMaskSource overrides the default crypto/rand masking key source.
func WithMaskSource(m MaskSource) Option {
	return func(c *engineConfig) { c.maskSrc = m }
}

// WithClock overrides the default time.Now, for deterministic batch
// timestamp tests (§8 invariant 6).
func WithClock(clock func() time.Time) Option {
	return func(c *engineConfig) { c.clock = clock }
}

// WithMaxMessage bounds the size a fragmentation-assembled logical message
// may grow to before it is treated as a fatal protocol error.
func WithMaxMessage(n int) Option {
	return func(c *engineConfig) { c.maxMessage = n }
}

// WithCloseLinger bounds how long the engine waits in StateClosing for the
// peer's mirrored Close before forcing StateClosed (§9 open question: a
// bounded linger of about one second is the chosen default).
func WithCloseLinger(d time.Duration) Option {
	return func(c *engineConfig) { c.lingerAfterClose = d }
}

// Engine is the RFC 6455 client engine layered over any ByteStream S.
type Engine[S api.ByteStream] struct {
	under S
	cfg   engineConfig

	handshaker *Handshaker
	state      State

	readBuf []byte
	readLen int

	pendingWrite []byte
	writeScratch []byte

	fragActive bool
	fragOpcode Opcode
	fragBuf    []byte

	events []Event

	closeSentAt time.Time
	closeSent   bool

	activePoll bool
}

// NewEngine constructs an Engine that will perform a client handshake to
// host/path over under before surfacing any application data.
func NewEngine[S api.ByteStream](under S, host, path string, opts ...Option) *Engine[S] {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Engine[S]{
		under:      under,
		cfg:        cfg,
		handshaker: NewHandshaker(host, path, cfg.extraHeaders),
		state:      StateHandshaking,
		readBuf:    make([]byte, cfg.initialReadBuf),
	}
}

// State reports the engine's current lifecycle stage.
func (e *Engine[S]) State() State { return e.state }

// ActivityObserved implements api.ActivityReporter: it reports whether the
// most recent Poll call actually read bytes from the peer, as opposed to
// finding the underlying stream would-block. The IOService uses this to
// decide whether a Ready slot's auto-disconnect timer should reset.
func (e *Engine[S]) ActivityObserved() bool { return e.activePoll }

// Fd delegates to the underlying stream when it implements api.Connectable,
// so an IOService can register a *TCPStream-backed Engine for connect
// readiness without knowing it is wrapped in a websocket engine. Returns 0
// when the underlying stream doesn't expose a descriptor.
func (e *Engine[S]) Fd() uintptr {
	if c, ok := any(e.under).(api.Connectable); ok {
		return c.Fd()
	}
	return 0
}

// FinishConnect delegates to the underlying stream's Connectable
// implementation, if any; otherwise reports the connection already
// established (matching the portable TCPStream fallback's own behavior).
func (e *Engine[S]) FinishConnect() (bool, error) {
	if c, ok := any(e.under).(api.Connectable); ok {
		return c.FinishConnect()
	}
	return true, nil
}

// Poll drives the handshake or, once open, pulls ciphertext-free bytes from
// the underlying stream and surfaces zero or more Events. A would-block
// from the underlying stream with nothing new to decode is not an error:
// Poll simply returns a nil/empty event slice. The returned slice is owned
// by the Engine and reused on the next call to Poll; copy it if you need to
// retain it past that point (events' Payload fields are independently
// owned and safe to retain).
func (e *Engine[S]) Poll() ([]Event, error) {
	e.events = e.events[:0]
	e.activePoll = false

	if e.state == StateClosed {
		return nil, io.EOF
	}

	if e.state == StateHandshaking {
		done, leftover, err := e.handshaker.Step(e.under)
		if err != nil {
			e.state = StateClosed
			return nil, err
		}
		if !done {
			return e.events, nil
		}
		e.state = StateOpen
		e.ensureReadCap(len(leftover))
		copy(e.readBuf, leftover)
		e.readLen = len(leftover)
	}

	var batchErr error
	if e.readLen == 0 || !e.hasCompleteFrame() {
		e.ensureReadCap(1)
		n, rerr := e.under.Read(e.readBuf[e.readLen:])
		if n > 0 {
			e.readLen += n
			e.activePoll = true
		}
		if rerr != nil && rerr != api.ErrWouldBlock {
			batchErr = rerr
		}
	}
	ts := e.cfg.clock()

	for {
		frame, consumed, derr := DecodeFrame(e.readBuf[:e.readLen])
		if derr != nil {
			e.state = StateClosed
			return e.events, api.NewError(api.KindProtocol, "decode frame", derr)
		}
		if consumed == 0 {
			break
		}
		if err := e.handleFrame(frame, ts); err != nil {
			e.state = StateClosed
			return e.events, err
		}
		copy(e.readBuf, e.readBuf[consumed:e.readLen])
		e.readLen -= consumed
	}

	if err := e.flushPending(); err != nil {
		e.state = StateClosed
		return e.events, err
	}

	if e.state == StateClosing && !e.closeSentAt.IsZero() && e.cfg.clock().Sub(e.closeSentAt) > e.cfg.lingerAfterClose {
		e.state = StateClosed
	}

	if batchErr == io.EOF {
		e.state = StateClosed
		return e.events, io.EOF
	}
	if batchErr != nil {
		e.state = StateClosed
		return e.events, api.NewError(api.KindTransport, "underlying read", batchErr)
	}
	return e.events, nil
}

// hasCompleteFrame reports whether readBuf already holds at least one
// fully-arrived frame, so Poll can skip the underlying read this call and
// let the decode loop drain what's already buffered (e.g. right after a
// handshake handed us leftover pipelined bytes).
func (e *Engine[S]) hasCompleteFrame() bool {
	_, consumed, err := DecodeFrame(e.readBuf[:e.readLen])
	return err == nil && consumed > 0
}

func (e *Engine[S]) ensureReadCap(extra int) {
	need := e.readLen + extra
	if need <= len(e.readBuf) {
		return
	}
	newCap := len(e.readBuf) * 2
	if newCap < need {
		newCap = need
	}
	if newCap > e.cfg.maxReadBuf {
		newCap = e.cfg.maxReadBuf
	}
	grown := make([]byte, newCap)
	copy(grown, e.readBuf[:e.readLen])
	e.readBuf = grown
}

func (e *Engine[S]) handleFrame(frame Frame, ts time.Time) error {
	if frame.Opcode.IsControl() {
		if !frame.Fin {
			return api.NewError(api.KindProtocol, "control frame must not be fragmented", nil)
		}
		if len(frame.Payload) > maxControlPayload {
			return api.NewError(api.KindProtocol, "control frame payload exceeds 125 bytes", nil)
		}
	}

	switch frame.Opcode {
	case OpPing:
		event := copyOut(frame.Payload)
		e.events = append(e.events, Event{Kind: EventPing, Opcode: OpPing, Payload: event, Timestamp: ts})

		reply := controlReplyPool.Get()[:len(frame.Payload)]
		copy(reply, frame.Payload)
		err := e.sendFrame(true, OpPong, reply)
		controlReplyPool.Put(reply[:cap(reply)])
		return err

	case OpPong:
		e.events = append(e.events, Event{Kind: EventPong, Opcode: OpPong, Payload: copyOut(frame.Payload), Timestamp: ts})
		return nil

	case OpClose:
		payload := copyOut(frame.Payload)
		e.events = append(e.events, Event{Kind: EventClose, Opcode: OpClose, Payload: payload, Timestamp: ts})
		if e.state == StateClosing {
			e.state = StateClosed
			return nil
		}
		e.state = StateClosed
		return e.sendFrame(true, OpClose, payload)

	case OpText, OpBinary:
		if !frame.Fin {
			e.fragActive = true
			e.fragOpcode = frame.Opcode
			e.fragBuf = append(e.fragBuf[:0], frame.Payload...)
			return nil
		}
		e.events = append(e.events, Event{Kind: EventMessage, Opcode: frame.Opcode, Payload: copyOut(frame.Payload), Timestamp: ts})
		return nil

	case OpContinuation:
		if !e.fragActive {
			return api.NewError(api.KindProtocol, "continuation frame without preceding start frame", nil)
		}
		e.fragBuf = append(e.fragBuf, frame.Payload...)
		if len(e.fragBuf) > e.cfg.maxMessage {
			return api.NewError(api.KindProtocol, "assembled message exceeds maximum size", nil)
		}
		if frame.Fin {
			e.events = append(e.events, Event{Kind: EventMessage, Opcode: e.fragOpcode, Payload: copyOut(e.fragBuf), Timestamp: ts})
			e.fragActive = false
			e.fragBuf = e.fragBuf[:0]
		}
		return nil

	default:
		return api.NewError(api.KindProtocol, "unknown opcode", nil)
	}
}

// WriteMessage sends payload as a single, complete frame of the given
// opcode (Text or Binary), with FIN set. The engine has no send-side
// fragmentation. A message written while the handshake is still in
// flight is buffered and flushed as the first thing once the connection
// opens, rather than rejected — callers don't need to watch State() before
// their first send.
func (e *Engine[S]) WriteMessage(opcode Opcode, payload []byte) error {
	switch e.state {
	case StateOpen, StateHandshaking:
		return e.sendFrame(true, opcode, payload)
	default:
		return api.NewError(api.KindProtocol, "write on closed or closing connection", nil)
	}
}

// CloseWithReason begins the close handshake: sends a Close frame with the
// given code/reason and moves to StateClosing. The engine forces
// StateClosed after the configured linger if the peer never mirrors the
// Close.
func (e *Engine[S]) CloseWithReason(code uint16, reason string) error {
	if e.state == StateClosed || e.closeSent {
		return nil
	}
	payload := closePayload(code, reason)
	e.closeSent = true
	e.closeSentAt = e.cfg.clock()
	if e.state == StateOpen {
		e.state = StateClosing
	}
	return e.sendFrame(true, OpClose, payload)
}

// Close implements api.Closable so an Engine can be used directly as the
// connection type S of an api.Endpoint[S]: it attempts a normal close
// handshake (code 1000, best effort) and then tears down the underlying
// stream regardless of whether the peer ever mirrors it.
func (e *Engine[S]) Close() error {
	_ = e.CloseWithReason(1000, "")
	e.state = StateClosed
	return e.under.Close()
}

func (e *Engine[S]) sendFrame(fin bool, opcode Opcode, payload []byte) error {
	key := e.cfg.maskSrc.NextMaskKey()
	e.writeScratch = EncodeFrame(e.writeScratch[:0], fin, opcode, payload, key)
	return e.queueWrite(e.writeScratch)
}

func (e *Engine[S]) queueWrite(data []byte) error {
	// Never interleave frame bytes with the raw HTTP upgrade exchange
	// still in flight; buffer instead and let Poll flush once the
	// handshake completes and the connection reaches StateOpen.
	if e.state == StateHandshaking {
		e.pendingWrite = append(e.pendingWrite, data...)
		return nil
	}
	if len(e.pendingWrite) > 0 {
		e.pendingWrite = append(e.pendingWrite, data...)
		return e.flushPending()
	}
	n, err := e.under.Write(data)
	if err != nil && err != api.ErrWouldBlock {
		return api.NewError(api.KindTransport, "ws write", err)
	}
	if n < len(data) {
		e.pendingWrite = append(e.pendingWrite[:0], data[n:]...)
	}
	return nil
}

func (e *Engine[S]) flushPending() error {
	if len(e.pendingWrite) == 0 {
		return nil
	}
	n, err := e.under.Write(e.pendingWrite)
	if n > 0 {
		e.pendingWrite = e.pendingWrite[n:]
	}
	if err != nil && err != api.ErrWouldBlock {
		return api.NewError(api.KindTransport, "ws write", err)
	}
	return nil
}

func copyOut(src []byte) []byte {
	out := make([]byte, len(src))
	copy(out, src)
	return out
}

func closePayload(code uint16, reason string) []byte {
	if code == 0 {
		return nil
	}
	buf := make([]byte, 2+len(reason))
	buf[0] = byte(code >> 8)
	buf[1] = byte(code)
	copy(buf[2:], reason)
	return buf
}
