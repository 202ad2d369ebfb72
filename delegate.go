package axon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// --- task delegation ---
//
// delegate_task runs a fresh isolated session (its own context id, message
// log, loop budget) through the same graph and returns only the terminal
// message to the parent. Subagents cannot delegate further. A subagent's
// ask_human propagates to the host with the subagent context id prefixed to
// the question; the resume answer flows back into the suspended subagent.

// delegateResult is the JSON payload returned to the parent model.
type delegateResult struct {
	OK        bool   `json:"ok"`
	Result    string `json:"result,omitempty"`
	Error     string `json:"error,omitempty"`
	ContextID string `json:"context_id"`
	Loops     int    `json:"loops,omitempty"`
}

func (e *Engine) delegateTool() *Tool {
	return &Tool{
		Name:        ToolDelegate,
		Description: "Delegates a self-contained task to a fresh agent session and returns its result. The subagent sees only the task text you provide, not this conversation.",
		Parameters: json.RawMessage(`{"type":"object","properties":{
			"task":{"type":"string","description":"Complete, self-contained task description"},
			"context":{"type":"string","description":"Optional background the subagent needs"},
			"max_loops":{"type":"integer","description":"Optional loop budget for the subagent; capped at the configured maximum"}
		},"required":["task"]}`),
		Handler: func(ctx context.Context, args json.RawMessage, tc ToolContext) (ToolOutcome, error) {
			if tc.State.IsSubagent() {
				return ToolOutcome{Content: "error: delegation is not available inside a delegated session", IsError: true}, nil
			}
			var p struct {
				Task     string `json:"task"`
				Context  string `json:"context"`
				MaxLoops int    `json:"max_loops"`
			}
			if err := json.Unmarshal(args, &p); err != nil || p.Task == "" {
				return ToolOutcome{Content: "error: delegate_task requires a non-empty task", IsError: true}, nil
			}
			input := p.Task
			if p.Context != "" {
				input = p.Task + "\n\nBackground:\n" + p.Context
			}
			maxLoops := p.MaxLoops
			if maxLoops <= 0 || maxLoops > e.cfg.MaxSubagentLoops {
				maxLoops = e.cfg.MaxSubagentLoops
			}

			contextID := NewSubagentContextID()
			sub := &State{
				ContextID:     contextID,
				ParentContext: tc.State.ContextID,
				ThreadID:      contextID,
				MaxLoops:      maxLoops,
				WorkspacePath: tc.State.WorkspacePath,
				Messages:      []ChatMessage{UserMessage(input)},
			}
			e.logger.Info("subagent started",
				"parent", tc.State.ThreadID, "context", contextID)
			return e.runSubagent(ctx, sub, false)
		},
		Meta: ToolMeta{Category: "delegation", Risk: RiskMedium, Enabled: true, AlwaysAvailable: true},
	}
}

// runSubagent drives a delegated session to completion and settles its result.
func (e *Engine) runSubagent(ctx context.Context, sub *State, retried bool) (ToolOutcome, error) {
	res, err := e.drive(ctx, sub, nil)
	return e.settleSubagent(ctx, sub, res, err, retried)
}

// settleSubagent converts a subagent run's outcome for the parent:
//
//   - an interrupt propagates upward with the subagent context id prefixed to
//     the question; the resume closure re-enters the suspended subagent and
//     settles again;
//   - a failure becomes an {ok:false} payload, never an error of the parent
//     turn;
//   - a terminal message shorter than the configured minimum gets exactly one
//     continuation turn asking for a structured summary;
//   - anything else returns the terminal message as an {ok:true} payload.
func (e *Engine) settleSubagent(ctx context.Context, sub *State, res Result, err error, retried bool) (ToolOutcome, error) {
	var intr *ErrInterrupted
	if errors.As(err, &intr) {
		payload := intr.Payload
		if payload.Question != "" {
			payload.Question = fmt.Sprintf("[%s] %s", sub.ContextID, payload.Question)
		}
		return ToolOutcome{
			Interrupt: &payload,
			Resume: func(resumeCtx context.Context, answer json.RawMessage) (ToolOutcome, error) {
				r, rerr := intr.Resume(resumeCtx, answer)
				return e.settleSubagent(resumeCtx, sub, r, rerr, retried)
			},
		}, nil
	}
	if err != nil {
		e.logger.Warn("subagent failed", "context", sub.ContextID, "error", err)
		return delegateOutcome(delegateResult{
			OK:        false,
			Error:     err.Error(),
			ContextID: sub.ContextID,
		}, true), nil
	}

	if !retried && len(res.Output) < e.cfg.SubagentMinSummaryChars {
		e.logger.Debug("subagent summary too short, requesting continuation",
			"context", sub.ContextID, "chars", len(res.Output))
		st := res.State
		st.Messages = append(st.Messages, UserMessage(subagentContinuationPrompt))
		return e.runSubagent(ctx, st, true)
	}

	e.logger.Info("subagent finished",
		"context", sub.ContextID, "loops", res.State.Loops, "chars", len(res.Output))
	return delegateOutcome(delegateResult{
		OK:        true,
		Result:    res.Output,
		ContextID: sub.ContextID,
		Loops:     res.State.Loops,
	}, false), nil
}

func delegateOutcome(r delegateResult, isErr bool) ToolOutcome {
	data, err := json.Marshal(r)
	if err != nil {
		return ToolOutcome{Content: "error: could not encode subagent result", IsError: true}
	}
	return ToolOutcome{Content: string(data), IsError: isErr}
}
