//go:build linux

// File: stream/tcp_linux.go
// Author: momentics <momentics@gmail.com>
//
// Non-blocking TCP byte stream backed by a raw Linux socket. Grounded on
// the teacher's internal/transport/transport_linux.go: same
// socket()/TCP_NODELAY/EAGAIN idiom, simplified from batch sendmsg/recvmsg
// down to the single-buffer Read/Write shape api.ByteStream requires.

package stream

import (
	"fmt"
	"io"
	"net"

	"github.com/momentics/hioload-net/api"
	"golang.org/x/sys/unix"
)

// TCPStream owns a non-blocking, connected TCP socket. Optionally bound to
// a source interface. TCP_NODELAY is set by default (§4.1).
type TCPStream struct {
	fd    int
	raddr *net.TCPAddr
	laddr *net.TCPAddr
}

// DialOptions configures TCPStream creation.
type DialOptions struct {
	// SourceInterface, if non-empty, binds the socket to this interface
	// (SO_BINDTODEVICE) before connecting.
	SourceInterface string
	// SendBufferSize, if non-zero, sets SO_SNDBUF.
	SendBufferSize int
	// RecvBufferSize, if non-zero, sets SO_RCVBUF.
	RecvBufferSize int
}

// DialTCP begins a non-blocking connect to addr. The returned stream's
// socket is placed in non-blocking mode before the connect syscall; the
// caller must select on it for writability and then call FinishConnect to
// discover whether the connect actually succeeded.
func DialTCP(addr *net.TCPAddr, opts DialOptions) (*TCPStream, error) {
	domain := unix.AF_INET
	if addr.IP.To4() == nil {
		domain = unix.AF_INET6
	}

	fd, err := unix.Socket(domain, unix.SOCK_STREAM|unix.SOCK_NONBLOCK, unix.IPPROTO_TCP)
	if err != nil {
		return nil, api.NewError(api.KindTransport, "socket", err)
	}

	if err := unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1); err != nil {
		_ = unix.Close(fd)
		return nil, api.NewError(api.KindTransport, "setsockopt TCP_NODELAY", err)
	}
	if opts.SendBufferSize > 0 {
		_ = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_SNDBUF, opts.SendBufferSize)
	}
	if opts.RecvBufferSize > 0 {
		_ = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_RCVBUF, opts.RecvBufferSize)
	}
	if opts.SourceInterface != "" {
		if err := unix.BindToDevice(fd, opts.SourceInterface); err != nil {
			_ = unix.Close(fd)
			return nil, api.NewError(api.KindConfiguration, "bind to interface "+opts.SourceInterface, err)
		}
	}

	sa, err := sockaddrFromTCPAddr(addr)
	if err != nil {
		_ = unix.Close(fd)
		return nil, api.NewError(api.KindConfiguration, "resolve destination", err)
	}

	err = unix.Connect(fd, sa)
	if err != nil && err != unix.EINPROGRESS {
		_ = unix.Close(fd)
		return nil, api.NewError(api.KindTransport, "connect", err)
	}

	return &TCPStream{fd: fd, raddr: addr}, nil
}

// Fd returns the raw file descriptor for Selector registration.
func (s *TCPStream) Fd() uintptr { return uintptr(s.fd) }

// FinishConnect checks SO_ERROR after the selector reports the socket
// writable following a non-blocking connect. Returns (true, nil) once
// connected, (false, nil) if still in progress, or a fatal error.
func (s *TCPStream) FinishConnect() (bool, error) {
	errno, err := unix.GetsockoptInt(s.fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return false, api.NewError(api.KindTransport, "getsockopt SO_ERROR", err)
	}
	if errno == 0 {
		return true, nil
	}
	if unix.Errno(errno) == unix.EINPROGRESS || unix.Errno(errno) == unix.EALREADY {
		return false, nil
	}
	return false, api.NewError(api.KindTransport, "connect failed", unix.Errno(errno))
}

// Read implements api.ByteStream.
func (s *TCPStream) Read(buf []byte) (int, error) {
	n, err := unix.Read(s.fd, buf)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return 0, api.ErrWouldBlock
		}
		return 0, api.NewError(api.KindTransport, "read", err)
	}
	if n == 0 && len(buf) > 0 {
		return 0, io.EOF
	}
	return n, nil
}

// Write implements api.ByteStream.
func (s *TCPStream) Write(buf []byte) (int, error) {
	n, err := unix.Write(s.fd, buf)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return 0, api.ErrWouldBlock
		}
		return 0, api.NewError(api.KindTransport, "write", err)
	}
	return n, nil
}

// Close implements api.ByteStream.
func (s *TCPStream) Close() error {
	return unix.Close(s.fd)
}

func sockaddrFromTCPAddr(addr *net.TCPAddr) (unix.Sockaddr, error) {
	if ip4 := addr.IP.To4(); ip4 != nil {
		var sa unix.SockaddrInet4
		sa.Port = addr.Port
		copy(sa.Addr[:], ip4)
		return &sa, nil
	}
	ip6 := addr.IP.To16()
	if ip6 == nil {
		return nil, fmt.Errorf("invalid IP address %v", addr.IP)
	}
	var sa unix.SockaddrInet6
	sa.Port = addr.Port
	copy(sa.Addr[:], ip6)
	return &sa, nil
}
