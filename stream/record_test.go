package stream

import (
	"bytes"
	"io"
	"testing"

	"github.com/momentics/hioload-net/api"
)

type fakeStream struct {
	readChunks [][]byte
	writeBuf   bytes.Buffer
	readErr    error
}

func (f *fakeStream) Read(buf []byte) (int, error) {
	if len(f.readChunks) == 0 {
		if f.readErr != nil {
			return 0, f.readErr
		}
		return 0, api.ErrWouldBlock
	}
	chunk := f.readChunks[0]
	n := copy(buf, chunk)
	if n == len(chunk) {
		f.readChunks = f.readChunks[1:]
	} else {
		f.readChunks[0] = chunk[n:]
	}
	return n, nil
}

func (f *fakeStream) Write(buf []byte) (int, error) {
	return f.writeBuf.Write(buf)
}

func (f *fakeStream) Close() error { return nil }

func TestRecordedStreamTeesReadsAndWritesToSeparateSinks(t *testing.T) {
	under := &fakeStream{readChunks: [][]byte{[]byte("hello")}}
	var inbound, outbound bytes.Buffer
	rs := NewRecordedStream[*fakeStream](under, &inbound, &outbound)

	buf := make([]byte, 16)
	n, err := rs.Read(buf)
	if err != nil {
		t.Fatalf("unexpected read error: %v", err)
	}
	if string(buf[:n]) != "hello" {
		t.Fatalf("got %q", buf[:n])
	}
	if inbound.String() != "hello" {
		t.Fatalf("inbound sink after read = %q", inbound.String())
	}
	if outbound.Len() != 0 {
		t.Fatalf("outbound sink should be untouched by Read, got %q", outbound.String())
	}

	if _, err := rs.Write([]byte("world")); err != nil {
		t.Fatalf("unexpected write error: %v", err)
	}
	if outbound.String() != "world" {
		t.Fatalf("outbound sink after write = %q", outbound.String())
	}
	if inbound.String() != "hello" {
		t.Fatalf("inbound sink should be untouched by Write, got %q", inbound.String())
	}
	if under.writeBuf.String() != "world" {
		t.Fatalf("underlying write = %q", under.writeBuf.String())
	}
}

// A session that both reads and writes must replay cleanly: outbound bytes
// recorded by the caller's own writes must never resurface as inbound
// traffic during replay.
func TestReplayReproducesOnlyInboundHalfOfASession(t *testing.T) {
	under := &fakeStream{readChunks: [][]byte{[]byte("server-says-hi"), []byte("server-says-bye")}}
	var inbound, outbound bytes.Buffer
	rs := NewRecordedStream[*fakeStream](under, &inbound, &outbound)

	buf := make([]byte, 32)
	if _, err := rs.Read(buf); err != nil {
		t.Fatalf("read 1: %v", err)
	}
	if _, err := rs.Write([]byte("client-says-hi")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := rs.Read(buf); err != nil {
		t.Fatalf("read 2: %v", err)
	}

	replay := NewReplay(bytes.NewReader(inbound.Bytes()))
	got := make([]byte, 0)
	chunk := make([]byte, 8)
	for {
		n, err := replay.Read(chunk)
		got = append(got, chunk[:n]...)
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("replay read: %v", err)
		}
	}
	if string(got) != "server-says-hiserver-says-bye" {
		t.Fatalf("replay reproduced %q, want only the inbound bytes", got)
	}
}

func TestReplayReproducesRecordedReads(t *testing.T) {
	log := bytes.NewBufferString("foobar")
	r := NewReplay(log)

	buf := make([]byte, 3)
	n, err := r.Read(buf)
	if err != nil || string(buf[:n]) != "foo" {
		t.Fatalf("first read = %q, %v", buf[:n], err)
	}
	n, err = r.Read(buf)
	if err != nil || string(buf[:n]) != "bar" {
		t.Fatalf("second read = %q, %v", buf[:n], err)
	}
	if _, err := r.Read(buf); err != io.EOF {
		t.Fatalf("expected EOF, got %v", err)
	}
	// Once exhausted, Replay reports EOF on every subsequent call rather
	// than would-block.
	if _, err := r.Read(buf); err != io.EOF {
		t.Fatalf("expected sticky EOF, got %v", err)
	}
}

func TestReplayWriteIsDiscarded(t *testing.T) {
	r := NewReplay(bytes.NewBufferString(""))
	n, err := r.Write([]byte("ignored"))
	if err != nil || n != len("ignored") {
		t.Fatalf("write = %d, %v", n, err)
	}
}
