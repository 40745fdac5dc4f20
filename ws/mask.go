// File: ws/mask.go
// Author: momentics <momentics@gmail.com>
//
// Pluggable masking-key source (§8 invariant 4: masking must be verifiable
// against a known key, so randomness has to be swappable for tests).

package ws

import "crypto/rand"

// MaskSource produces the 4-byte mask key applied to each outbound frame.
type MaskSource interface {
	NextMaskKey() [4]byte
}

// CryptoRandMask draws mask keys from crypto/rand, as RFC 6455 §5.3
// requires ("unpredictable" keys, not merely unique).
type CryptoRandMask struct{}

func (CryptoRandMask) NextMaskKey() [4]byte {
	var key [4]byte
	_, _ = rand.Read(key[:])
	return key
}

// FixedMask always returns the same key. Used by tests that need to assert
// exact wire bytes (§8 invariant 4).
type FixedMask [4]byte

func (m FixedMask) NextMaskKey() [4]byte { return [4]byte(m) }
