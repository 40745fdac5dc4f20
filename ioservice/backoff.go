// File: ioservice/backoff.go
// Author: momentics <momentics@gmail.com>
//
// Exponential-with-jitter reconnect delay, per SPEC_FULL.md's Open
// Question decision: initial 100ms, multiplier 2.0, cap 30s, full jitter.

package ioservice

import (
	"math"
	"math/rand"
	"time"
)

// BackoffPolicy computes the delay before the Nth reconnect attempt.
type BackoffPolicy struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
}

// Next returns a jittered delay for the given zero-based attempt number.
// Uses full jitter (uniform in [0, cappedExponentialDelay)) so that many
// slots backing off simultaneously do not retry in lockstep.
func (b BackoffPolicy) Next(attempt int) time.Duration {
	raw := float64(b.Initial) * math.Pow(b.Multiplier, float64(attempt))
	if raw > float64(b.Max) || math.IsInf(raw, 1) {
		raw = float64(b.Max)
	}
	if raw <= 0 {
		return 0
	}
	return time.Duration(rand.Float64() * raw)
}
