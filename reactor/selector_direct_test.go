package reactor

import (
	"testing"
	"time"

	"github.com/momentics/hioload-net/api"
)

func TestDirectSelectorAlwaysReady(t *testing.T) {
	sel := NewDirectSelector()
	tok, err := sel.Register(0, api.InterestRead|api.InterestWrite)
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	ready, err := sel.Poll(make([]api.Ready, 0, 8), time.Second)
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if len(ready) != 1 || ready[0].Token != tok || !ready[0].Read || !ready[0].Write {
		t.Fatalf("unexpected ready set: %+v", ready)
	}

	if err := sel.Deregister(tok); err != nil {
		t.Fatalf("deregister: %v", err)
	}
	ready, err = sel.Poll(make([]api.Ready, 0, 8), time.Second)
	if err != nil {
		t.Fatalf("poll after deregister: %v", err)
	}
	if len(ready) != 0 {
		t.Fatalf("expected no ready tokens after deregister, got %+v", ready)
	}
}

func TestDirectSelectorReregisterUnknownFails(t *testing.T) {
	sel := NewDirectSelector()
	if err := sel.Reregister(api.Token(999), api.InterestRead); err == nil {
		t.Fatal("expected error reregistering unknown token")
	}
}
