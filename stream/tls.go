// File: stream/tls.go
// Author: momentics <momentics@gmail.com>
//
// TlsStream<S> from §4.2: a byte stream that wraps any other ByteStream and
// speaks TLS over it via the narrow api.TLSSession capability, so the
// concrete TLS backend (crypto/tls today, see stream/tlsbackend) is a
// deployment choice rather than something baked into the stream stack.

package stream

import (
	"io"

	"github.com/momentics/hioload-net/api"
)

// TLSStream layers a TLS session on top of an underlying ByteStream S.
// Read/Write never block: ciphertext is pumped opportunistically to and
// from S, and a WouldBlock from S or the session propagates unchanged.
type TLSStream[S api.ByteStream] struct {
	under   S
	session api.TLSSession

	pumpScratch []byte
	transportErr error
	closed       bool
}

// NewTLSStream wraps under in a TLS client session for serverName, obtained
// from factory. The handshake is driven lazily by the first Read/Write call,
// same as the rest of the stack: nothing here blocks the caller.
func NewTLSStream[S api.ByteStream](under S, serverName string, factory api.TLSSessionFactory) (*TLSStream[S], error) {
	session, err := factory.NewClientSession(serverName)
	if err != nil {
		return nil, api.NewError(api.KindConfiguration, "create tls session", err)
	}
	return &TLSStream[S]{
		under:       under,
		session:     session,
		pumpScratch: make([]byte, 16*1024),
	}, nil
}

// HandshakeComplete reports whether the TLS handshake has finished.
func (t *TLSStream[S]) HandshakeComplete() bool {
	return t.session.HandshakeComplete()
}

// pumpIn drains ciphertext from the underlying stream into the session
// until S reports WouldBlock, EOF, or a fatal error.
func (t *TLSStream[S]) pumpIn() error {
	for {
		n, err := t.under.Read(t.pumpScratch)
		if n > 0 {
			if _, werr := t.session.WriteCiphertext(t.pumpScratch[:n]); werr != nil {
				return werr
			}
		}
		if err != nil {
			if err == api.ErrWouldBlock {
				return nil
			}
			if err == io.EOF {
				return io.EOF
			}
			return api.NewError(api.KindTransport, "tls underlying read", err)
		}
		if n == 0 {
			return nil
		}
	}
}

// pumpOut drains ciphertext produced by the session to the underlying
// stream until either side reports WouldBlock or there is nothing left.
func (t *TLSStream[S]) pumpOut() error {
	for t.session.WantsWrite() {
		n, err := t.session.ReadCiphertext(t.pumpScratch)
		if err != nil {
			if err == api.ErrWouldBlock {
				return nil
			}
			return err
		}
		if n == 0 {
			return nil
		}
		wn, werr := t.under.Write(t.pumpScratch[:n])
		if werr != nil && werr != api.ErrWouldBlock {
			return api.NewError(api.KindTransport, "tls underlying write", werr)
		}
		if wn < n {
			// S accepted only part of it; nothing more to do this tick,
			// the remainder was already dequeued from the session so it
			// would be lost — feed it back rather than drop it.
			if wn > 0 {
				// re-queue the undelivered tail.
				if _, rerr := t.session.WriteCiphertext(t.pumpScratch[wn:n]); rerr != nil {
					return rerr
				}
			} else {
				if _, rerr := t.session.WriteCiphertext(t.pumpScratch[:n]); rerr != nil {
					return rerr
				}
			}
			return nil
		}
	}
	return nil
}

// Read implements api.ByteStream.
func (t *TLSStream[S]) Read(buf []byte) (int, error) {
	if t.closed {
		return 0, io.EOF
	}
	if err := t.pumpIn(); err != nil {
		if err == io.EOF {
			// still let any already-decrypted plaintext drain first.
		} else {
			return 0, err
		}
	}
	if err := t.session.ProcessNewPackets(); err != nil {
		if err == io.EOF {
			n, _ := t.session.ReadPlaintext(buf)
			if n > 0 {
				return n, nil
			}
			return 0, io.EOF
		}
		return 0, err
	}
	if err := t.pumpOut(); err != nil {
		return 0, err
	}
	n, err := t.session.ReadPlaintext(buf)
	if err != nil {
		return n, err
	}
	if n == 0 {
		return 0, api.ErrWouldBlock
	}
	return n, nil
}

// Write implements api.ByteStream.
func (t *TLSStream[S]) Write(buf []byte) (int, error) {
	if t.closed {
		return 0, api.NewError(api.KindTransport, "write on closed tls stream", io.ErrClosedPipe)
	}
	n, err := t.session.WritePlaintext(buf)
	if err != nil && err != api.ErrWouldBlock {
		return n, err
	}
	if perr := t.pumpOut(); perr != nil {
		return n, perr
	}
	if err == api.ErrWouldBlock {
		return 0, api.ErrWouldBlock
	}
	return n, nil
}

// Close implements api.ByteStream.
func (t *TLSStream[S]) Close() error {
	if t.closed {
		return nil
	}
	t.closed = true
	_ = t.session.Close()
	return t.under.Close()
}
