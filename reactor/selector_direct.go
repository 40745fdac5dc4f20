// File: reactor/selector_direct.go
// Author: momentics <momentics@gmail.com>
//
// Direct selector from §4.4: reports every registered token as ready on
// every poll. Used when the workload is latency-bound enough that
// busy-polling the stream stack directly beats the syscall overhead of
// asking the OS whether data has arrived. Portable: it never touches fd,
// so it compiles and runs identically on every platform.

package reactor

import (
	"sync/atomic"
	"time"

	"github.com/momentics/hioload-net/api"
)

// DirectSelector implements api.Selector as an always-ready no-op.
type DirectSelector struct {
	tokens  map[api.Token]api.Interest
	nextTok uint64
}

// NewDirectSelector returns a ready-to-use DirectSelector.
func NewDirectSelector() *DirectSelector {
	return &DirectSelector{tokens: make(map[api.Token]api.Interest)}
}

// Register implements api.Selector. fd is accepted but ignored: a Direct
// selector holds only tokens, never sockets, per §4.4.
func (s *DirectSelector) Register(fd uintptr, interest api.Interest) (api.Token, error) {
	tok := api.Token(atomic.AddUint64(&s.nextTok, 1))
	s.tokens[tok] = interest
	return tok, nil
}

// Reregister implements api.Selector.
func (s *DirectSelector) Reregister(token api.Token, interest api.Interest) error {
	if _, ok := s.tokens[token]; !ok {
		return api.NewError(api.KindConfiguration, "reregister unknown token", nil)
	}
	s.tokens[token] = interest
	return nil
}

// Deregister implements api.Selector.
func (s *DirectSelector) Deregister(token api.Token) error {
	delete(s.tokens, token)
	return nil
}

// Poll implements api.Selector: every registered token comes back ready for
// whatever interest it was registered with, regardless of timeout.
func (s *DirectSelector) Poll(dst []api.Ready, timeout time.Duration) ([]api.Ready, error) {
	out := dst[:0]
	for tok, interest := range s.tokens {
		out = append(out, api.Ready{
			Token: tok,
			Read:  interest&api.InterestRead != 0,
			Write: interest&api.InterestWrite != 0,
		})
	}
	return out, nil
}

// Close implements api.Selector.
func (s *DirectSelector) Close() error { return nil }
