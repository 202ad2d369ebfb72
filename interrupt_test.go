package axon

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

func TestInterruptReleaseBlocksResume(t *testing.T) {
	intr := newInterrupted("tools", Interrupt{Kind: InterruptAskHuman},
		func(_ context.Context, _ json.RawMessage) (Result, error) {
			t.Error("resume closure ran after Release")
			return Result{}, nil
		})
	intr.Release()
	intr.Release() // idempotent

	if _, err := intr.Resume(context.Background(), json.RawMessage(`"x"`)); err == nil {
		t.Error("Resume succeeded after Release")
	}
}

func TestInterruptTTLExpires(t *testing.T) {
	intr := newInterrupted("tools", Interrupt{Kind: InterruptApproval},
		func(_ context.Context, _ json.RawMessage) (Result, error) {
			t.Error("resume closure ran after TTL expiry")
			return Result{}, nil
		})
	intr.WithTTL(time.Millisecond)
	time.Sleep(50 * time.Millisecond)

	if _, err := intr.Resume(context.Background(), nil); err == nil {
		t.Error("Resume succeeded after TTL expiry")
	}
}

func TestInterruptZeroTTLDisablesTimer(t *testing.T) {
	resumed := false
	intr := newInterrupted("tools", Interrupt{Kind: InterruptAskHuman},
		func(_ context.Context, _ json.RawMessage) (Result, error) {
			resumed = true
			return Result{Output: "done"}, nil
		})
	intr.WithTTL(0)
	time.Sleep(5 * time.Millisecond)

	res, err := intr.Resume(context.Background(), json.RawMessage(`"hi"`))
	if err != nil {
		t.Fatal(err)
	}
	if !resumed || res.Output != "done" {
		t.Errorf("resumed=%v output=%q", resumed, res.Output)
	}
}

func TestInterruptErrorString(t *testing.T) {
	intr := newInterrupted("tools", Interrupt{Kind: InterruptApproval, Tool: "deploy"}, nil)
	defer intr.Release()
	got := intr.Error()
	want := `interrupted at node "tools" (approval)`
	if got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}
