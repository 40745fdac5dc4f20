// Package api
// Author: momentics <momentics@gmail.com>
//
// ByteStream is the capability every layer of the stream stack (TCP, TLS,
// recorder, websocket) both implements and consumes. Composition is static:
// TLSStream[S] is generic over any S satisfying ByteStream, RecordedStream[S]
// likewise, so the compiler inlines the whole chain and there is no v-table
// indirection on the read/write hot path.

package api

// ByteStream is a non-blocking, connected byte stream. Read and Write never
// block: when no progress is currently possible they return (0, ErrWouldBlock).
// Any other non-nil error is fatal to the stream.
type ByteStream interface {
	// Read fills buf with already-available bytes. Returns (n, nil) with
	// n > 0 on progress, (0, ErrWouldBlock) if nothing is available yet,
	// (0, io.EOF) on orderly peer close, or (0, err) on a fatal transport error.
	Read(buf []byte) (int, error)

	// Write accepts as much of buf as can be handed off right now. Returns
	// (n, nil) with 0 <= n <= len(buf), (0, ErrWouldBlock) if nothing could
	// be accepted, or (0, err) on a fatal transport error. A short write is
	// not an error: the caller resubmits the remainder.
	Write(buf []byte) (int, error)

	// Close releases the underlying resource. Idempotent.
	Close() error
}
