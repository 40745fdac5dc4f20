// Package tlsbackend
// Author: momentics <momentics@gmail.com>
//
// pipeAdapter is the byte-level bridge between the crypto/tls state machine
// (which only knows how to talk to a net.Conn) and the ciphertext buffers
// that stream.TLSStream pumps to and from the real, non-blocking
// api.ByteStream. It never blocks on Write and only blocks on Read when
// nothing is buffered — which is fine, because Read is only ever called
// from the session's dedicated worker goroutine (see session.go), never
// from the tick-loop thread.
package tlsbackend

import (
	"bytes"
	"io"
	"net"
	"sync"
	"time"
)

type pipeAdapter struct {
	mu       sync.Mutex
	cond     *sync.Cond
	inbound  bytes.Buffer
	outbound bytes.Buffer
	closed   bool
	eof      bool
}

func newPipeAdapter() *pipeAdapter {
	p := &pipeAdapter{}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Read implements io.Reader for the worker goroutine's crypto/tls.Conn.
func (p *pipeAdapter) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for p.inbound.Len() == 0 && !p.closed && !p.eof {
		p.cond.Wait()
	}
	if p.inbound.Len() > 0 {
		return p.inbound.Read(b)
	}
	if p.closed {
		return 0, io.ErrClosedPipe
	}
	return 0, io.EOF
}

// Write implements io.Writer for the worker goroutine's crypto/tls.Conn;
// ciphertext produced by the session lands in outbound for the pump to
// drain towards the real network stream.
func (p *pipeAdapter) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, io.ErrClosedPipe
	}
	n, _ := p.outbound.Write(b)
	p.cond.Broadcast()
	return n, nil
}

// feed appends ciphertext newly received from the peer.
func (p *pipeAdapter) feed(b []byte, eof bool) {
	p.mu.Lock()
	if len(b) > 0 {
		p.inbound.Write(b)
	}
	if eof {
		p.eof = true
	}
	p.cond.Broadcast()
	p.mu.Unlock()
}

// drain copies buffered outbound ciphertext into dst, non-blocking.
func (p *pipeAdapter) drain(dst []byte) int {
	p.mu.Lock()
	n, _ := p.outbound.Read(dst)
	p.mu.Unlock()
	return n
}

// pending reports how many bytes of outbound ciphertext are buffered.
func (p *pipeAdapter) pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.outbound.Len()
}

func (p *pipeAdapter) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.cond.Broadcast()
	return nil
}

// netConnAdapter dresses pipeAdapter up as a net.Conn so it can be handed
// to tls.Client. Deadlines are no-ops: the worker goroutine's calls are
// meant to block until the pump feeds or drains it.
type netConnAdapter struct {
	*pipeAdapter
}

func (netConnAdapter) LocalAddr() net.Addr                { return pipeAddr{} }
func (netConnAdapter) RemoteAddr() net.Addr               { return pipeAddr{} }
func (netConnAdapter) SetDeadline(time.Time) error        { return nil }
func (netConnAdapter) SetReadDeadline(time.Time) error    { return nil }
func (netConnAdapter) SetWriteDeadline(time.Time) error   { return nil }

type pipeAddr struct{}

func (pipeAddr) Network() string { return "pipe" }
func (pipeAddr) String() string  { return "pipe" }
