// Package api
// Author: momentics <momentics@gmail.com>
//
// TLSSession is the narrow pluggable capability from §6. Picking the
// concrete backend (crypto/tls, or a future alternative) is a deployment
// decision; stream.TLSStream only ever talks to this interface.

package api

// TLSSession drives one TLS handshake and steady-state record layer over an
// in-memory byte pipe. The stream.TLSStream owns the pipe and feeds it
// ciphertext read from / destined for the underlying ByteStream.
type TLSSession interface {
	// ReadPlaintext returns decrypted application data already produced by
	// the session. (0, ErrWouldBlock) means no plaintext is ready yet.
	ReadPlaintext(buf []byte) (int, error)
	// WritePlaintext hands application data to the session for encryption.
	WritePlaintext(buf []byte) (int, error)
	// WantsRead reports whether the session needs more ciphertext from the
	// peer before it can make progress.
	WantsRead() bool
	// WantsWrite reports whether the session has ciphertext ready to be
	// sent to the peer.
	WantsWrite() bool
	// ReadCiphertext drains ciphertext produced by the session (handshake
	// messages or encrypted records) into buf.
	ReadCiphertext(buf []byte) (int, error)
	// WriteCiphertext feeds ciphertext received from the peer into the
	// session for processing.
	WriteCiphertext(buf []byte) (int, error)
	// ProcessNewPackets advances the handshake / unwraps newly fed
	// ciphertext into plaintext or outgoing ciphertext.
	ProcessNewPackets() error
	// HandshakeComplete reports whether the session has finished its
	// initial handshake.
	HandshakeComplete() bool
	// Close emits a close-notify best effort and releases session state.
	Close() error
}

// TLSSessionFactory constructs a new client TLSSession for the given SNI
// server name. A deployment supplies one implementation (e.g. backed by
// crypto/tls) via stream.NewTLSStream.
type TLSSessionFactory interface {
	NewClientSession(serverName string) (TLSSession, error)
}
