package sessions

import (
	"context"
	"testing"
	"time"

	"github.com/k2ai/interview-relay/pkg/gateway/live/session"
)

func TestRegisterGetUnregister(t *testing.T) {
	r := NewRegistry()
	iv := &session.Interview{ConnID: "conn-1"}

	unregister := r.Register("conn-1", Handle{Interview: iv})
	if got, ok := r.Get("conn-1"); !ok || got != iv {
		t.Fatal("registered interview not found")
	}
	if r.Count() != 1 {
		t.Fatalf("count = %d", r.Count())
	}

	unregister()
	if _, ok := r.Get("conn-1"); ok {
		t.Fatal("interview still present after unregister")
	}
	if r.Count() != 0 {
		t.Fatalf("count = %d", r.Count())
	}

	// Unregister is idempotent.
	unregister()
}

func TestRegisterReplacesDuplicate(t *testing.T) {
	r := NewRegistry()
	first := &session.Interview{ConnID: "conn-1"}
	second := &session.Interview{ConnID: "conn-1"}

	unregisterFirst := r.Register("conn-1", Handle{Interview: first})
	r.Register("conn-1", Handle{Interview: second})

	if got, _ := r.Get("conn-1"); got != second {
		t.Fatal("second registration should win")
	}
	if r.Count() != 1 {
		t.Fatalf("count = %d", r.Count())
	}

	// The stale unregister func must not remove the replacement.
	unregisterFirst()
	if got, _ := r.Get("conn-1"); got != second {
		t.Fatal("stale unregister removed the replacement")
	}
}

func TestCancelAll(t *testing.T) {
	r := NewRegistry()
	canceled := 0
	r.Register("a", Handle{Cancel: func() { canceled++ }})
	r.Register("b", Handle{Cancel: func() { canceled++ }})
	r.Register("c", Handle{})

	if n := r.CancelAll(); n != 2 {
		t.Fatalf("CancelAll = %d", n)
	}
	if canceled != 2 {
		t.Fatalf("canceled = %d", canceled)
	}
}

func TestWaitDrains(t *testing.T) {
	r := NewRegistry()
	unregister := r.Register("a", Handle{})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if r.Wait(ctx) {
		t.Fatal("Wait should time out while a session is registered")
	}

	unregister()
	ctx2, cancel2 := context.WithTimeout(context.Background(), time.Second)
	defer cancel2()
	if !r.Wait(ctx2) {
		t.Fatal("Wait should return once the registry is empty")
	}
}
