// File: ioservice/idle.go
// Author: momentics <momentics@gmail.com>
//
// IdleStrategy implementations from §4.7. Applied once per tick when no
// progress was made (no slot transitioned state, no byte was read, no
// frame was surfaced).

package ioservice

import (
	"runtime"
	"time"
)

// BusySpin does nothing: the tightest possible loop, for the lowest
// possible latency at the cost of a fully pegged core.
type BusySpin struct{}

func (BusySpin) Idle(int) {}

// Yield hands the OS scheduler a chance to run something else without
// actually sleeping.
type Yield struct{}

func (Yield) Idle(workCount int) {
	if workCount == 0 {
		runtime.Gosched()
	}
}

// Sleep pauses for a fixed duration.
type Sleep struct {
	Duration time.Duration
}

func (s Sleep) Idle(workCount int) {
	if workCount == 0 {
		time.Sleep(s.Duration)
	}
}

// ProgressiveBackoff yields for the first SpinRounds idle ticks, then sleeps
// for durations starting at Min and doubling up to Max, resetting the moment
// any progress is observed.
type ProgressiveBackoff struct {
	Min, Max   time.Duration
	SpinRounds int

	streak  int
	current time.Duration
}

// NewProgressiveBackoff returns a ProgressiveBackoff with sane defaults.
func NewProgressiveBackoff(min, max time.Duration) *ProgressiveBackoff {
	return &ProgressiveBackoff{Min: min, Max: max, SpinRounds: 100}
}

func (p *ProgressiveBackoff) Idle(workCount int) {
	if workCount > 0 {
		p.streak = 0
		p.current = 0
		return
	}
	p.streak++
	if p.streak <= p.SpinRounds {
		runtime.Gosched()
		return
	}
	if p.current == 0 {
		p.current = p.Min
	} else {
		p.current *= 2
		if p.current > p.Max {
			p.current = p.Max
		}
	}
	time.Sleep(p.current)
}
