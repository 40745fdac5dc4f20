// Package tlsbackend
// Author: momentics <momentics@gmail.com>
//
// The only standard-library-backed component of the ambient stack (see
// SPEC_FULL.md, DOMAIN STACK): a crypto/tls implementation of
// api.TLSSession. No third-party TLS session library appears anywhere in
// the retrieval pack, and crypto/tls itself exposes no non-blocking,
// step-the-handshake-yourself primitive the way the original Rust backend's
// rustls does (read_tls/write_tls/process_new_packets driven synchronously,
// no goroutine). To bridge that gap without ever blocking the caller, each
// Session runs its own single dedicated worker goroutine that owns the
// crypto/tls.Conn and talks to it over an in-memory pipe (pipe.go); the
// goroutine only ever executes crypto/tls's own code, holds no state shared
// with anything but this one Session, and exits the moment Close is called.
// From the IOService's point of view nothing changed: one thread drives
// every tick, and this goroutine is no more visible to it than the kernel's
// own TLS offload would be.
package tlsbackend

import (
	"crypto/tls"
	"errors"
	"io"

	"github.com/momentics/hioload-net/api"
)

type opKind int

const (
	opRead opKind = iota
	opWrite
)

type workResult struct {
	n   int
	err error
}

// Session is a crypto/tls-backed api.TLSSession.
type Session struct {
	adapter *pipeAdapter
	conn    *tls.Conn

	doOp   chan opKind
	opDone chan workResult

	readInFlight  bool
	writeInFlight bool

	readScratch []byte
	writeScratch []byte
	writeLen    int

	plainBuf []byte
	plainOff int

	closeCh  chan struct{}
	closed   bool
	fatalErr error
}

const scratchSize = 16 * 1024

// NewFactory returns an api.TLSSessionFactory backed by crypto/tls. cfg may
// be nil, in which case a zero-value tls.Config is used (system roots,
// default cipher suites).
func NewFactory(cfg *tls.Config) api.TLSSessionFactory {
	return factory{cfg}
}

type factory struct{ cfg *tls.Config }

func (f factory) NewClientSession(serverName string) (api.TLSSession, error) {
	cfg := f.cfg
	if cfg == nil {
		cfg = &tls.Config{}
	}
	cfg = cfg.Clone()
	cfg.ServerName = serverName

	s := &Session{
		adapter:      newPipeAdapter(),
		doOp:         make(chan opKind, 1),
		opDone:       make(chan workResult, 1),
		readScratch:  make([]byte, scratchSize),
		writeScratch: make([]byte, scratchSize),
		closeCh:      make(chan struct{}),
	}
	s.conn = tls.Client(netConnAdapter{s.adapter}, cfg)
	go s.run()
	return s, nil
}

func (s *Session) run() {
	for {
		select {
		case kind := <-s.doOp:
			switch kind {
			case opRead:
				n, err := s.conn.Read(s.readScratch)
				s.opDone <- workResult{n, err}
			case opWrite:
				n, err := s.conn.Write(s.writeScratch[:s.writeLen])
				s.opDone <- workResult{n, err}
			}
		case <-s.closeCh:
			_ = s.conn.Close()
			return
		}
	}
}

// ProcessNewPackets kicks the worker goroutine to advance the handshake and
// decrypt any ciphertext already fed via WriteCiphertext into the internal
// plaintext buffer. Never blocks: if the worker is still waiting on more
// ciphertext, this is simply a no-op until the next call.
func (s *Session) ProcessNewPackets() error {
	if s.fatalErr != nil {
		return s.fatalErr
	}
	if s.plainOff < len(s.plainBuf) {
		return nil
	}
	if !s.readInFlight {
		select {
		case s.doOp <- opRead:
			s.readInFlight = true
		default:
			return nil
		}
	}
	select {
	case res := <-s.opDone:
		s.readInFlight = false
		if res.err != nil {
			if errors.Is(res.err, io.EOF) {
				s.fatalErr = io.EOF
				return io.EOF
			}
			s.fatalErr = api.NewError(api.KindTransport, "tls process", res.err)
			return s.fatalErr
		}
		s.plainBuf = s.readScratch[:res.n]
		s.plainOff = 0
	default:
	}
	return nil
}

// ReadPlaintext implements api.TLSSession.
func (s *Session) ReadPlaintext(buf []byte) (int, error) {
	if s.plainOff < len(s.plainBuf) {
		n := copy(buf, s.plainBuf[s.plainOff:])
		s.plainOff += n
		return n, nil
	}
	if s.fatalErr != nil {
		return 0, s.fatalErr
	}
	return 0, api.ErrWouldBlock
}

// WritePlaintext implements api.TLSSession. A short write (fewer bytes
// accepted than len(buf)) is normal and matches ByteStream.Write semantics.
func (s *Session) WritePlaintext(buf []byte) (int, error) {
	if s.fatalErr != nil {
		return 0, s.fatalErr
	}
	if !s.writeInFlight {
		n := copy(s.writeScratch, buf)
		s.writeLen = n
		select {
		case s.doOp <- opWrite:
			s.writeInFlight = true
		default:
			return 0, api.ErrWouldBlock
		}
	}
	select {
	case res := <-s.opDone:
		s.writeInFlight = false
		if res.err != nil {
			s.fatalErr = api.NewError(api.KindTransport, "tls write", res.err)
			return 0, s.fatalErr
		}
		return s.writeLen, nil
	default:
		return 0, api.ErrWouldBlock
	}
}

// WantsRead always reports true: crypto/tls can always make use of more
// ciphertext, whether to advance the handshake or decode further records.
func (s *Session) WantsRead() bool { return true }

// WantsWrite reports whether ciphertext produced by the session (handshake
// flights or encrypted application records) is waiting to be sent.
func (s *Session) WantsWrite() bool { return s.adapter.pending() > 0 }

// ReadCiphertext implements api.TLSSession.
func (s *Session) ReadCiphertext(buf []byte) (int, error) {
	n := s.adapter.drain(buf)
	if n == 0 {
		return 0, api.ErrWouldBlock
	}
	return n, nil
}

// WriteCiphertext implements api.TLSSession.
func (s *Session) WriteCiphertext(buf []byte) (int, error) {
	s.adapter.feed(buf, false)
	return len(buf), nil
}

// HandshakeComplete implements api.TLSSession.
func (s *Session) HandshakeComplete() bool {
	return s.conn.ConnectionState().HandshakeComplete
}

// Close implements api.TLSSession.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	_ = s.adapter.Close()
	close(s.closeCh)
	return nil
}
