// File: ws/handshake_test.go
// Author: momentics <momentics@gmail.com>

package ws

import "testing"

// Invariant 5: a mismatching Sec-WebSocket-Accept is a fatal handshake
// error, not a value the engine tolerates or silently ignores.
func TestHandshakeRejectsAcceptMismatch(t *testing.T) {
	fs := &fakeStream{}
	h := NewHandshaker("example.com", "/ws", nil)

	response := "HTTP/1.1 101 Switching Protocols\r\n" +
		"Upgrade: websocket\r\n" +
		"Connection: Upgrade\r\n" +
		"Sec-WebSocket-Accept: bm90LXRoZS1yaWdodC12YWx1ZQ==\r\n\r\n"
	fs.chunks = append(fs.chunks, []byte(response))

	done, _, err := h.Step(fs)
	if err == nil {
		t.Fatal("expected a fatal error for a mismatched Sec-WebSocket-Accept")
	}
	if done {
		t.Fatal("handshake must not report done on a rejected response")
	}
}

func TestHandshakeRejectsNonSwitchingProtocolsStatus(t *testing.T) {
	fs := &fakeStream{}
	h := NewHandshaker("example.com", "/ws", nil)

	fs.chunks = append(fs.chunks, []byte("HTTP/1.1 404 Not Found\r\nContent-Length: 0\r\n\r\n"))

	done, _, err := h.Step(fs)
	if err == nil {
		t.Fatal("expected an error for a non-101 status")
	}
	if done {
		t.Fatal("handshake must not report done on a rejected response")
	}
}

func TestHandshakeRejectsMissingUpgradeHeader(t *testing.T) {
	fs := &fakeStream{}
	h := NewHandshaker("example.com", "/ws", nil)
	accept := ComputeAcceptKey(h.clientKey)

	response := "HTTP/1.1 101 Switching Protocols\r\n" +
		"Connection: Upgrade\r\n" +
		"Sec-WebSocket-Accept: " + accept + "\r\n\r\n"
	fs.chunks = append(fs.chunks, []byte(response))

	if _, _, err := h.Step(fs); err == nil {
		t.Fatal("expected an error for a response missing the Upgrade header")
	}
}

// A valid response completes the handshake and returns any bytes read past
// the header terminator as leftover, unmodified.
func TestHandshakeAcceptsValidResponseAndReturnsLeftover(t *testing.T) {
	fs := &fakeStream{}
	h := NewHandshaker("example.com", "/ws", nil)
	accept := ComputeAcceptKey(h.clientKey)

	response := "HTTP/1.1 101 Switching Protocols\r\n" +
		"Upgrade: websocket\r\n" +
		"Connection: Upgrade\r\n" +
		"Sec-WebSocket-Accept: " + accept + "\r\n\r\n" +
		"leftoverbytes"
	fs.chunks = append(fs.chunks, []byte(response))

	done, leftover, err := h.Step(fs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !done {
		t.Fatal("expected the handshake to complete")
	}
	if string(leftover) != "leftoverbytes" {
		t.Fatalf("leftover = %q, want %q", leftover, "leftoverbytes")
	}
}
