// File: stream/record.go
// Author: momentics <momentics@gmail.com>
//
// RecordedStream<S> from §4.3: a transparent tee onto an append-only,
// unframed byte log, plus a replay companion that plays the log back
// through the same ByteStream capability without touching the network.

package stream

import (
	"io"

	"github.com/momentics/hioload-net/api"
)

// Sink is the append-only destination a RecordedStream tees bytes into.
// *os.File satisfies it directly.
type Sink interface {
	Write(p []byte) (int, error)
}

// RecordedStream wraps an underlying ByteStream S, appending inbound bytes
// (Read) to one sink and outbound bytes (Write) to a separate sink. Two
// sinks, not one interleaved log, so that Replay can play back exactly the
// inbound half of the session without also handing the consumer's own
// outbound bytes back to it as if they had arrived from the peer — the same
// split the original recorder keeps between its inbound.rec and
// outbound.rec logs. A write failure to either sink is fatal for the
// stream, per §4.3.
type RecordedStream[S api.ByteStream] struct {
	under    S
	inbound  Sink
	outbound Sink
}

// NewRecordedStream returns a RecordedStream that tees under's inbound
// (Read) traffic to inbound and its outbound (Write) traffic to outbound.
// Pass the same Sink for both only if interleaved bytes are acceptable;
// Replay always assumes the inbound sink is read-only traffic.
func NewRecordedStream[S api.ByteStream](under S, inbound, outbound Sink) *RecordedStream[S] {
	return &RecordedStream[S]{under: under, inbound: inbound, outbound: outbound}
}

// Read implements api.ByteStream. Bytes are appended to the inbound sink
// before being returned to the caller.
func (r *RecordedStream[S]) Read(buf []byte) (int, error) {
	n, err := r.under.Read(buf)
	if n > 0 {
		if _, werr := r.inbound.Write(buf[:n]); werr != nil {
			return 0, api.NewError(api.KindTransport, "record read", werr)
		}
	}
	return n, err
}

// Write implements api.ByteStream. Bytes accepted by the underlying stream
// are appended to the outbound sink before Write returns to the caller;
// bytes never handed to the underlying stream (a short write) are not
// recorded.
func (r *RecordedStream[S]) Write(buf []byte) (int, error) {
	n, err := r.under.Write(buf)
	if n > 0 {
		if _, werr := r.outbound.Write(buf[:n]); werr != nil {
			return 0, api.NewError(api.KindTransport, "record write", werr)
		}
	}
	return n, err
}

// Close implements api.ByteStream.
func (r *RecordedStream[S]) Close() error {
	return r.under.Close()
}

// ReplaySource is the append-only log a Replay reads sequentially. *os.File
// or a *bytes.Reader satisfies it directly.
type ReplaySource interface {
	Read(p []byte) (int, error)
}

// Replay is an S-equivalent ByteStream that returns bytes recorded by a
// RecordedStream in order, without touching the network. Playback is as
// fast as consumed: no timing metadata was stored, so none is reproduced.
// Write is a no-op sink: replay only reproduces the read-side traffic a
// consumer observed, matching the same capability surface as the live
// stream so it can be driven through an identical protocol engine.
type Replay struct {
	src    ReplaySource
	eof    bool
}

// NewReplay returns a Replay reading recorded bytes from src.
func NewReplay(src ReplaySource) *Replay {
	return &Replay{src: src}
}

// Read implements api.ByteStream. Once the source is exhausted, Read
// returns io.EOF on every subsequent call rather than would-block: a replay
// has no further readiness to wait for.
func (r *Replay) Read(buf []byte) (int, error) {
	if r.eof {
		return 0, io.EOF
	}
	n, err := r.src.Read(buf)
	if err == io.EOF {
		r.eof = true
	}
	return n, err
}

// Write implements api.ByteStream by discarding the bytes: replay only
// reproduces recorded reads.
func (r *Replay) Write(buf []byte) (int, error) {
	return len(buf), nil
}

// Close implements api.ByteStream.
func (r *Replay) Close() error {
	if closer, ok := r.src.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
