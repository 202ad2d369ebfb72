package axon

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// --- interrupts ---
//
// An interrupt is a cooperative suspension of the graph: the engine returns
// ErrInterrupted to the host, the host elicits a decision or an answer from
// the user, and resumes. Interrupts are values, never panics, so the driver
// loop treats HITL approval, ask_human, and subagent questions uniformly.

// Interrupt kinds.
const (
	InterruptApproval = "approval"
	InterruptAskHuman = "ask_human"
)

// Interrupt is the payload handed to the host when the graph suspends.
type Interrupt struct {
	Kind     string          `json:"kind"`
	Tool     string          `json:"tool,omitempty"`
	Args     json.RawMessage `json:"args,omitempty"`
	Risk     string          `json:"risk,omitempty"`
	Question string          `json:"question,omitempty"`
	Default  string          `json:"default,omitempty"`
	CallID   string          `json:"call_id,omitempty"`
}

// ApprovalResponse is the host's answer to an approval interrupt.
type ApprovalResponse struct {
	Approved bool   `json:"approved"`
	Reason   string `json:"reason,omitempty"`
}

// defaultInterruptTTL bounds how long an unresumed interrupt retains its
// state snapshot before auto-release.
const defaultInterruptTTL = 30 * time.Minute

// ErrInterrupted is returned by Engine.Run when the graph suspends for host
// input. Inspect Payload, elicit a response, then call Resume with the
// JSON-encoded answer (ApprovalResponse for approval, plain text for
// ask_human).
//
// Retention: the value holds a closure over a deep copy of the session state.
// Resume is single-use; Release frees the snapshot early; a default TTL of
// 30 minutes releases abandoned interrupts automatically.
type ErrInterrupted struct {
	// Node names the suspended graph node.
	Node string
	// Payload describes what the host must ask the user.
	Payload Interrupt

	resume   func(ctx context.Context, answer json.RawMessage) (Result, error)
	mu       sync.Mutex
	ttlTimer *time.Timer
}

func (e *ErrInterrupted) Error() string {
	return fmt.Sprintf("interrupted at node %q (%s)", e.Node, e.Payload.Kind)
}

// newInterrupted wires an ErrInterrupted with its resume closure and the
// default TTL.
func newInterrupted(node string, payload Interrupt, resume func(ctx context.Context, answer json.RawMessage) (Result, error)) *ErrInterrupted {
	e := &ErrInterrupted{Node: node, Payload: payload, resume: resume}
	e.WithTTL(defaultInterruptTTL)
	return e
}

// Resume continues the suspended run with the host's answer. Single-use:
// a second call returns an error instead of re-running the graph.
func (e *ErrInterrupted) Resume(ctx context.Context, answer json.RawMessage) (Result, error) {
	e.mu.Lock()
	if e.ttlTimer != nil {
		e.ttlTimer.Stop()
	}
	fn := e.resume
	e.resume = nil
	e.mu.Unlock()

	if fn == nil {
		return Result{}, fmt.Errorf("ErrInterrupted: already resumed, released, or expired")
	}
	return fn(ctx, answer)
}

// Release frees the captured snapshot without resuming. Safe to call more
// than once; Resume afterwards returns an error.
func (e *ErrInterrupted) Release() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ttlTimer != nil {
		e.ttlTimer.Stop()
	}
	e.resume = nil
}

// WithTTL replaces the auto-release timer.
func (e *ErrInterrupted) WithTTL(d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ttlTimer != nil {
		e.ttlTimer.Stop()
	}
	if d <= 0 {
		e.ttlTimer = nil
		return
	}
	e.ttlTimer = time.AfterFunc(d, func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		e.resume = nil
	})
}
