//go:build !linux

// File: stream/tcp_other.go
// Author: momentics <momentics@gmail.com>
//
// Portable fallback TCPStream for platforms without a raw non-blocking
// socket implementation wired up (the teacher splits Linux epoll from a
// Windows IOCP path the same way; hioload-net only implements the raw path
// for Linux and falls back to net.Conn plus a zero read/write deadline
// trick to emulate would-block elsewhere).

package stream

import (
	"errors"
	"io"
	"net"
	"os"
	"time"

	"github.com/momentics/hioload-net/api"
)

// TCPStream owns a connected TCP socket, emulating non-blocking semantics
// over a net.Conn via an immediately-expired deadline.
type TCPStream struct {
	conn  *net.TCPConn
	raddr *net.TCPAddr
}

// DialOptions configures TCPStream creation.
type DialOptions struct {
	SourceInterface string
	SendBufferSize  int
	RecvBufferSize  int
}

// DialTCP connects to addr, applying TCP_NODELAY and optional buffer sizes.
// Interface binding is not supported on this fallback path.
func DialTCP(addr *net.TCPAddr, opts DialOptions) (*TCPStream, error) {
	conn, err := net.DialTCP("tcp", nil, addr)
	if err != nil {
		return nil, api.NewError(api.KindTransport, "dial", err)
	}
	_ = conn.SetNoDelay(true)
	if opts.SendBufferSize > 0 {
		_ = conn.SetWriteBuffer(opts.SendBufferSize)
	}
	if opts.RecvBufferSize > 0 {
		_ = conn.SetReadBuffer(opts.RecvBufferSize)
	}
	return &TCPStream{conn: conn, raddr: addr}, nil
}

// Fd is not meaningful on this fallback path; it always returns 0.
// Selector implementations on this platform poll via deadlines instead.
func (s *TCPStream) Fd() uintptr { return 0 }

// FinishConnect always reports success: net.DialTCP already blocks the
// caller's goroutine until the connect completes or fails.
func (s *TCPStream) FinishConnect() (bool, error) { return true, nil }

func (s *TCPStream) Read(buf []byte) (int, error) {
	_ = s.conn.SetReadDeadline(time.Now())
	n, err := s.conn.Read(buf)
	if err != nil {
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return 0, api.ErrWouldBlock
		}
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return 0, api.ErrWouldBlock
		}
		if errors.Is(err, io.EOF) && n == 0 {
			return 0, io.EOF
		}
		return n, api.NewError(api.KindTransport, "read", err)
	}
	return n, nil
}

func (s *TCPStream) Write(buf []byte) (int, error) {
	_ = s.conn.SetWriteDeadline(time.Now())
	n, err := s.conn.Write(buf)
	if err != nil {
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return n, api.ErrWouldBlock
		}
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return n, api.ErrWouldBlock
		}
		return n, api.NewError(api.KindTransport, "write", err)
	}
	return n, nil
}

func (s *TCPStream) Close() error {
	return s.conn.Close()
}
