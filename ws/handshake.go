// File: ws/handshake.go
// Author: momentics <momentics@gmail.com>
//
// Client-side RFC 6455 handshake, driven across multiple would-block
// cycles per §4.5. The GUID constant and Sec-WebSocket-Accept computation
// are carried over from the teacher's protocol/native_handshake.go; header
// validation follows protocol/handshake.go's token-matching helper. Unlike
// the teacher (which only implements the server side and never checks a
// peer's Accept value) this validates the server's response against
// invariant 5: a mismatching Sec-WebSocket-Accept is a fatal handshake
// error, even though the original Rust source this system was distilled
// from skips that check entirely.

package ws

import (
	"bufio"
	"bytes"
	"crypto/rand"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"

	"github.com/momentics/hioload-net/api"
)

// WebSocketGUID is the RFC 6455 §1.3 magic constant.
const WebSocketGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

const maxHandshakeResponse = 64 * 1024

// ComputeAcceptKey computes the Sec-WebSocket-Accept value for clientKey.
func ComputeAcceptKey(clientKey string) string {
	h := sha1.Sum([]byte(clientKey + WebSocketGUID))
	return base64.StdEncoding.EncodeToString(h[:])
}

func generateClientKey() string {
	var raw [16]byte
	_, _ = rand.Read(raw[:])
	return base64.StdEncoding.EncodeToString(raw[:])
}

// Handshaker drives one client handshake to completion over a non-blocking
// api.ByteStream.
type Handshaker struct {
	clientKey string
	reqBuf    []byte
	reqSent   int
	respBuf   []byte
	respLen   int
}

// NewHandshaker builds the GET request for host/path, adding any extra
// caller-supplied headers (e.g. Sec-WebSocket-Protocol, Origin).
func NewHandshaker(host, path string, extraHeaders map[string]string) *Handshaker {
	key := generateClientKey()
	var b strings.Builder
	fmt.Fprintf(&b, "GET %s HTTP/1.1\r\n", path)
	fmt.Fprintf(&b, "Host: %s\r\n", host)
	b.WriteString("Upgrade: websocket\r\n")
	b.WriteString("Connection: Upgrade\r\n")
	fmt.Fprintf(&b, "Sec-WebSocket-Key: %s\r\n", key)
	b.WriteString("Sec-WebSocket-Version: 13\r\n")
	for k, v := range extraHeaders {
		fmt.Fprintf(&b, "%s: %s\r\n", k, v)
	}
	b.WriteString("\r\n")
	return &Handshaker{clientKey: key, reqBuf: []byte(b.String())}
}

// Step attempts to make progress on the handshake over under. On success it
// returns (true, leftover, nil) where leftover holds any bytes read past
// the response's header terminator — a server may pipeline the first WS
// frame right behind the 101 response. A would-block from under is not an
// error: the caller retries Step on the next readiness notification.
func (h *Handshaker) Step(under api.ByteStream) (done bool, leftover []byte, err error) {
	if h.reqSent < len(h.reqBuf) {
		n, werr := under.Write(h.reqBuf[h.reqSent:])
		h.reqSent += n
		if werr != nil && werr != api.ErrWouldBlock {
			return false, nil, api.NewError(api.KindTransport, "handshake write", werr)
		}
		if h.reqSent < len(h.reqBuf) {
			return false, nil, nil
		}
	}

	if h.respBuf == nil {
		h.respBuf = make([]byte, 4096)
	}
	for {
		if idx := findHeaderEnd(h.respBuf[:h.respLen]); idx >= 0 {
			if verr := validateResponse(h.respBuf[:idx], h.clientKey); verr != nil {
				return false, nil, verr
			}
			tail := h.respBuf[idx+4 : h.respLen]
			out := make([]byte, len(tail))
			copy(out, tail)
			return true, out, nil
		}
		if h.respLen == len(h.respBuf) {
			if len(h.respBuf) >= maxHandshakeResponse {
				return false, nil, api.NewError(api.KindProtocol, "handshake response too large", nil)
			}
			grown := make([]byte, len(h.respBuf)*2)
			copy(grown, h.respBuf)
			h.respBuf = grown
		}
		n, rerr := under.Read(h.respBuf[h.respLen:])
		h.respLen += n
		if rerr != nil {
			if rerr == api.ErrWouldBlock {
				return false, nil, nil
			}
			return false, nil, api.NewError(api.KindTransport, "handshake read", rerr)
		}
		if n == 0 {
			return false, nil, nil
		}
	}
}

func findHeaderEnd(buf []byte) int {
	return bytes.Index(buf, []byte("\r\n\r\n"))
}

func validateResponse(headerBytes []byte, clientKey string) error {
	full := append(append([]byte{}, headerBytes...), []byte("\r\n\r\n")...)
	resp, err := http.ReadResponse(bufio.NewReader(bytes.NewReader(full)), nil)
	if err != nil {
		return api.NewError(api.KindProtocol, "parse handshake response", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusSwitchingProtocols {
		return api.NewError(api.KindProtocol, fmt.Sprintf("handshake status %d", resp.StatusCode), nil)
	}
	if !headerContainsToken(resp.Header, "Upgrade", "websocket") ||
		!headerContainsToken(resp.Header, "Connection", "Upgrade") {
		return api.NewError(api.KindProtocol, "invalid upgrade headers", nil)
	}
	accept := resp.Header.Get("Sec-WebSocket-Accept")
	if accept != ComputeAcceptKey(clientKey) {
		return api.NewError(api.KindProtocol, "sec-websocket-accept mismatch", nil)
	}
	return nil
}

func headerContainsToken(h http.Header, headerName, token string) bool {
	token = strings.ToLower(token)
	for _, v := range h[http.CanonicalHeaderKey(headerName)] {
		for _, part := range strings.Split(v, ",") {
			if strings.ToLower(strings.TrimSpace(part)) == token {
				return true
			}
		}
	}
	return false
}
