package axon

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// maxToolResultChars bounds a single tool result before it enters the log.
const maxToolResultChars = 100_000

const truncationMarker = "\n[output truncated]"

// toolTurn is the transient execution record for one assistant tool batch. It
// lives in the driver (never serialized) and survives interrupts: approval
// decisions and ask_human answers are delivered onto it, then execution
// resumes at the call where it stopped.
type toolTurn struct {
	decisions map[string]ApprovalResponse
	answers   map[string]json.RawMessage
	resumes   map[string]func(ctx context.Context, answer json.RawMessage) (ToolOutcome, error)

	results []ChatMessage
	patch   *Update
	next    int
}

func newToolTurn() *toolTurn {
	return &toolTurn{
		decisions: make(map[string]ApprovalResponse),
		answers:   make(map[string]json.RawMessage),
		resumes:   make(map[string]func(context.Context, json.RawMessage) (ToolOutcome, error)),
		patch:     &Update{},
	}
}

// deliver records a host answer on the turn before execution resumes.
func (t *toolTurn) deliver(payload Interrupt, answer json.RawMessage) {
	switch payload.Kind {
	case InterruptApproval:
		var resp ApprovalResponse
		if err := json.Unmarshal(answer, &resp); err != nil {
			resp = ApprovalResponse{Approved: false, Reason: "unreadable approval response"}
		}
		t.decisions[payload.CallID] = resp
	default:
		t.answers[payload.CallID] = answer
	}
}

// toolsNode executes the pending tool batch of the latest assistant message.
// Every call yields exactly one Tool message, in emission order. A returned
// *Interrupt means the batch is suspended; the same turn re-enters later.
//
// Approval gating runs for the whole batch before anything executes, so a
// denied or escalated call never observes side effects of its neighbors.
func (e *Engine) toolsNode(ctx context.Context, s *State, turn *toolTurn) (*Update, *Interrupt, error) {
	calls := pendingToolCalls(s)
	if len(calls) == 0 {
		return &Update{}, nil, nil
	}
	if e.tracer != nil {
		var span Span
		ctx, span = e.tracer.Start(ctx, "node.tools",
			StringAttr("thread", s.ThreadID),
			IntAttr("calls", len(calls)))
		defer span.End()
	}

	// Phase one: gate. Undecided require_approval calls suspend the batch.
	for _, call := range calls {
		tool := e.tools.Resolve(call.Name)
		if tool == nil {
			continue
		}
		decision, risk := e.approval.Evaluate(call, tool.Meta)
		if decision == DecisionRequireApproval {
			if _, decided := turn.decisions[call.ID]; !decided {
				return nil, &Interrupt{
					Kind:   InterruptApproval,
					Tool:   call.Name,
					Args:   call.Args,
					Risk:   risk,
					CallID: call.ID,
				}, nil
			}
		}
	}

	// Phase two: execute. Batches where every tool is marked parallel-safe
	// dispatch concurrently; anything else runs serially and can suspend
	// mid-batch (ask_human, delegated subagent questions).
	if turn.next == 0 && e.batchParallel(calls) {
		e.runParallel(ctx, s, turn, calls)
	} else {
		if intr := e.runSerial(ctx, s, turn, calls); intr != nil {
			return nil, intr, nil
		}
	}

	u := &Update{}
	u.Fold(turn.patch)
	if u.replaceSet {
		// A handler rewrote the log (compression). Re-append the calling
		// assistant message so the batch's call/result pairs stay answered.
		u.AppendMessages = append(u.AppendMessages, s.LastMessage())
	}
	u.AppendMessages = append(u.AppendMessages, turn.results...)
	return u, nil, nil
}

// batchParallel reports whether every call resolves to a parallel-safe tool.
func (e *Engine) batchParallel(calls []ToolCall) bool {
	if len(calls) < 2 {
		return false
	}
	for _, call := range calls {
		tool := e.tools.Resolve(call.Name)
		if tool == nil || !tool.Meta.Parallel {
			return false
		}
	}
	return true
}

// runSerial executes calls in order starting at turn.next, recording one Tool
// message each. A suspending outcome registers its resume closure on the turn
// and returns the interrupt; only this single-goroutine path ever writes the
// turn's maps during execution.
func (e *Engine) runSerial(ctx context.Context, s *State, turn *toolTurn, calls []ToolCall) *Interrupt {
	for i := turn.next; i < len(calls); i++ {
		call := calls[i]
		outcome := e.runCall(ctx, s, turn, call)
		if outcome.Interrupt != nil {
			if outcome.Resume != nil {
				turn.resumes[call.ID] = outcome.Resume
			}
			intr := *outcome.Interrupt
			intr.Tool = call.Name
			intr.CallID = call.ID
			return &intr
		}
		turn.record(call, outcome)
		turn.next = i + 1
	}
	return nil
}

// runParallel dispatches the whole batch concurrently. Results land in
// emission order regardless of completion order; patches fold in the same
// order. Parallel-safe tools must not suspend: a suspending outcome is
// converted to a tool error here, before it could touch the turn's maps, so
// the goroutines never write shared state.
func (e *Engine) runParallel(ctx context.Context, s *State, turn *toolTurn, calls []ToolCall) {
	outcomes := make([]ToolOutcome, len(calls))
	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(i int, call ToolCall) {
			defer wg.Done()
			outcome := e.runCall(ctx, s, turn, call)
			if outcome.Interrupt != nil {
				outcome = ToolOutcome{
					Content: fmt.Sprintf("error: %s attempted to suspend during parallel dispatch", call.Name),
					IsError: true,
				}
			}
			outcomes[i] = outcome
		}(i, call)
	}
	wg.Wait()
	for i, call := range calls {
		turn.record(call, outcomes[i])
		turn.next = i + 1
	}
}

// runCall resolves and executes one call, applying the gate decision and any
// previously delivered answer. An outcome with Interrupt set means the handler
// suspended; the caller decides whether that suspends the batch (serial) or
// degrades to an error (parallel).
func (e *Engine) runCall(ctx context.Context, s *State, turn *toolTurn, call ToolCall) ToolOutcome {
	tool := e.tools.Resolve(call.Name)
	if tool == nil {
		return ToolOutcome{Content: e.tools.UnknownToolMessage(call.Name), IsError: true}
	}

	decision, _ := e.approval.Evaluate(call, tool.Meta)
	switch decision {
	case DecisionAlwaysDeny:
		return ToolOutcome{Content: "Denied by policy: this tool call is not permitted.", IsError: true}
	case DecisionRequireApproval:
		resp := turn.decisions[call.ID]
		if !resp.Approved {
			content := "Denied by user."
			if resp.Reason != "" {
				content = "Denied by user: " + resp.Reason
			}
			return ToolOutcome{Content: content, IsError: true}
		}
	}

	// An answer delivered for this call resumes its suspended handler, or —
	// for plain ask_human — becomes the result text directly. Suspensions only
	// happen on the serial path, so these map writes are single-goroutine.
	if answer, ok := turn.answers[call.ID]; ok {
		delete(turn.answers, call.ID)
		if fn, hasResume := turn.resumes[call.ID]; hasResume {
			delete(turn.resumes, call.ID)
			outcome, err := fn(ctx, answer)
			return e.settle(tool, outcome, err)
		}
		return ToolOutcome{Content: answerText(answer)}
	}

	if err := tool.ValidateArgs(call.Args); err != nil {
		return ToolOutcome{Content: "error: " + err.Error(), IsError: true}
	}

	outcome, err := e.dispatch(ctx, tool, call.Args, s)
	return e.settle(tool, outcome, err)
}

// settle normalizes a handler return: errors become error outcomes, everything
// else (including suspending outcomes) passes through untouched.
func (e *Engine) settle(tool *Tool, outcome ToolOutcome, err error) ToolOutcome {
	if err != nil {
		e.logger.Warn("tool failed", "tool", tool.Name, "error", err)
		return ToolOutcome{Content: "error: " + err.Error(), IsError: true}
	}
	return outcome
}

// dispatch runs the handler under its timeout with panic containment.
func (e *Engine) dispatch(ctx context.Context, tool *Tool, args json.RawMessage, s *State) (outcome ToolOutcome, err error) {
	timeout := e.cfg.ToolTimeout()
	if tool.Meta.TimeoutSeconds > 0 {
		timeout = time.Duration(tool.Meta.TimeoutSeconds) * time.Second
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("tool panicked", "tool", tool.Name, "panic", r)
			outcome = ToolOutcome{}
			err = fmt.Errorf("tool %s panicked: %v", tool.Name, r)
		}
	}()
	return tool.Handler(ctx, args, ToolContext{State: s, Logger: e.logger})
}

// record appends the call's single Tool message and folds its state patch.
func (t *toolTurn) record(call ToolCall, outcome ToolOutcome) {
	content := outcome.Content
	if len(content) > maxToolResultChars {
		content = content[:maxToolResultChars] + truncationMarker
	}
	if content == "" {
		content = "(no output)"
	}
	t.results = append(t.results, ToolResultMessage(call.ID, content))
	if outcome.Patch != nil {
		t.patch.Fold(outcome.Patch)
	}
}

// answerText decodes an ask_human answer: a JSON string if it parses as one,
// the raw bytes otherwise.
func answerText(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
