// Package api
// Author: momentics <momentics@gmail.com>

package api

// Connectable is optionally implemented by a ByteStream returned from
// Endpoint.CreateConnection when it wraps a raw OS socket: Fd exposes the
// descriptor for Selector registration, and FinishConnect confirms whether
// a non-blocking connect has completed once the socket reports writable.
// A stream that doesn't implement Connectable (e.g. one already fully
// connected when returned) is polled unconditionally every IOService tick
// instead of through selector readiness. The portable non-Linux TCP
// fallback does implement it, with Fd always 0 and FinishConnect always
// true, so it goes through the selector like the Linux stream.
type Connectable interface {
	Fd() uintptr
	FinishConnect() (bool, error)
}
