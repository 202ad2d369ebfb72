package axon

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// --- built-in tools ---
//
// The persistent globals every session starts with: now, todo_read,
// todo_write, ask_human, and (main agent only) delegate_task. compress_context
// is discovered but disabled; the planner promotes it at critical token
// pressure so the model can compress deliberately.

// Built-in tool names.
const (
	ToolNow       = "now"
	ToolTodoRead  = "todo_read"
	ToolTodoWrite = "todo_write"
	ToolAskHuman  = "ask_human"
	ToolDelegate  = "delegate_task"
	ToolCompress  = "compress_context"
)

// registerBuiltins installs the built-in tool set into the engine's registry.
func (e *Engine) registerBuiltins() error {
	builtins := []*Tool{
		nowTool(),
		todoReadTool(),
		todoWriteTool(),
		askHumanTool(),
		e.delegateTool(),
		e.compressTool(),
	}
	for _, t := range builtins {
		var err error
		if t.Meta.Enabled {
			err = e.tools.Register(t)
		} else {
			err = e.tools.RegisterDiscovered(t)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func nowTool() *Tool {
	return &Tool{
		Name:        ToolNow,
		Description: "Returns the current date and time in UTC (RFC 3339).",
		Handler: func(_ context.Context, _ json.RawMessage, _ ToolContext) (ToolOutcome, error) {
			return ToolOutcome{Content: nowStamp().UTC().Format(time.RFC3339)}, nil
		},
		Meta: ToolMeta{Category: "utility", Risk: RiskLow, Enabled: true, AlwaysAvailable: true, Parallel: true},
	}
}

func todoReadTool() *Tool {
	return &Tool{
		Name:        ToolTodoRead,
		Description: "Returns the session task list with each item's status and priority.",
		Handler: func(_ context.Context, _ json.RawMessage, tc ToolContext) (ToolOutcome, error) {
			if len(tc.State.Todos) == 0 {
				return ToolOutcome{Content: "No todos."}, nil
			}
			var b strings.Builder
			for _, t := range tc.State.Todos {
				fmt.Fprintf(&b, "- [%s] %s (%s", t.Status, t.Content, t.ID)
				if t.Priority != "" {
					fmt.Fprintf(&b, ", %s", t.Priority)
				}
				b.WriteString(")\n")
			}
			return ToolOutcome{Content: b.String()}, nil
		},
		Meta: ToolMeta{Category: "planning", Risk: RiskLow, Enabled: true, AlwaysAvailable: true, Parallel: true},
	}
}

func todoWriteTool() *Tool {
	return &Tool{
		Name:        ToolTodoWrite,
		Description: "Replaces the session task list. Supply the complete list; omitted items are removed.",
		Parameters: json.RawMessage(`{"type":"object","properties":{
			"todos":{"type":"array","items":{"type":"object","properties":{
				"id":{"type":"string"},
				"content":{"type":"string"},
				"status":{"type":"string","enum":["pending","in_progress","completed"]},
				"priority":{"type":"string"}
			},"required":["content","status"]}}
		},"required":["todos"]}`),
		Handler: func(_ context.Context, args json.RawMessage, _ ToolContext) (ToolOutcome, error) {
			var p struct {
				Todos []Todo `json:"todos"`
			}
			if err := json.Unmarshal(args, &p); err != nil {
				return ToolOutcome{Content: "error: invalid todos payload: " + err.Error(), IsError: true}, nil
			}
			for i := range p.Todos {
				if p.Todos[i].ID == "" {
					p.Todos[i].ID = NewID()
				}
			}
			u := &Update{SetTodos: &p.Todos}
			return ToolOutcome{Content: fmt.Sprintf("Updated todo list (%d items).", len(p.Todos)), Patch: u}, nil
		},
		Meta: ToolMeta{Category: "planning", Risk: RiskLow, Enabled: true, AlwaysAvailable: true},
	}
}

func askHumanTool() *Tool {
	return &Tool{
		Name:        ToolAskHuman,
		Description: "Asks the user a question and waits for their reply. Use only when blocked.",
		Parameters: json.RawMessage(`{"type":"object","properties":{
			"question":{"type":"string","description":"The question to put to the user"},
			"default":{"type":"string","description":"Optional suggested answer"}
		},"required":["question"]}`),
		Handler: func(_ context.Context, args json.RawMessage, _ ToolContext) (ToolOutcome, error) {
			var p struct {
				Question string `json:"question"`
				Default  string `json:"default"`
			}
			if err := json.Unmarshal(args, &p); err != nil {
				return ToolOutcome{Content: "error: invalid ask_human payload: " + err.Error(), IsError: true}, nil
			}
			return ToolOutcome{Interrupt: &Interrupt{
				Kind:     InterruptAskHuman,
				Question: p.Question,
				Default:  p.Default,
			}}, nil
		},
		Meta: ToolMeta{Category: "interaction", Risk: RiskLow, Enabled: true, AlwaysAvailable: true},
	}
}

// compressTool lets the model compress deliberately. Discovered but disabled;
// the planner promotes it when token pressure is critical and an automatic
// pass already ran this request.
func (e *Engine) compressTool() *Tool {
	return &Tool{
		Name:        ToolCompress,
		Description: "Compresses older conversation history into a summary to free context space.",
		Parameters: json.RawMessage(`{"type":"object","properties":{
			"strategy":{"type":"string","enum":["auto","compact","summarize"],"description":"Summarization strategy (default auto)"}
		}}`),
		Handler: func(ctx context.Context, args json.RawMessage, tc ToolContext) (ToolOutcome, error) {
			var p struct {
				Strategy string `json:"strategy"`
			}
			_ = json.Unmarshal(args, &p)
			strategy := CompressStrategy(p.Strategy)
			if strategy == "" {
				strategy = StrategyAuto
			}
			res := e.compressor.Compress(ctx, tc.State, strategy)
			if res.Ratio >= 1 {
				return ToolOutcome{Content: "Nothing to compress."}, nil
			}
			u := compressionUpdate(tc.State, res)
			return ToolOutcome{
				Content: fmt.Sprintf("Compressed history (strategy=%s, ratio=%.2f).", res.Strategy, res.Ratio),
				Patch:   u,
			}, nil
		},
		Meta: ToolMeta{Category: "context", Risk: RiskLow},
	}
}

// compressionUpdate builds the state patch for a completed compression pass:
// log replacement, counter reset, strategy bookkeeping.
func compressionUpdate(s *State, res CompressResult) *Update {
	u := (&Update{}).ReplaceLog(res.Messages)
	u.ResetTokenCounters = true
	u.AddCompactCount = 1
	u.SetCompressionRatio = float64Ptr(res.Ratio)
	if res.Strategy == StrategySummarize {
		u.SetCompactsSinceSum = intPtr(0)
	} else {
		u.SetCompactsSinceSum = intPtr(s.CompactsSinceSummarize + 1)
	}
	return u
}
