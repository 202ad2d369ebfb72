package axon

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func TestToolsNodeValidatesArgs(t *testing.T) {
	provider := &mockProvider{steps: []scriptedStep{
		respondCalls(call("c1", "typed", `{"n":"not a number"}`)),
		respondText("noted"),
	}}
	e := newTestEngine(t, provider)
	tool := echoTool("typed", "ran")
	tool.Parameters = json.RawMessage(`{"type":"object","properties":{"n":{"type":"integer"}},"required":["n"]}`)
	if err := e.Tools().Register(tool); err != nil {
		t.Fatal(err)
	}

	res := mustRun(t, e, "t1", "go")
	var toolMsg string
	for _, m := range res.State.Messages {
		if m.Role == RoleTool {
			toolMsg = m.Content
		}
	}
	if !strings.HasPrefix(toolMsg, "error:") || !strings.Contains(toolMsg, "schema") {
		t.Errorf("tool message = %q", toolMsg)
	}
}

func TestToolsNodeContainsPanics(t *testing.T) {
	provider := &mockProvider{steps: []scriptedStep{
		respondCalls(call("c1", "bomb", `{}`)),
		respondText("survived"),
	}}
	e := newTestEngine(t, provider)
	bomb := echoTool("bomb", "")
	bomb.Handler = func(_ context.Context, _ json.RawMessage, _ ToolContext) (ToolOutcome, error) {
		panic("boom")
	}
	if err := e.Tools().Register(bomb); err != nil {
		t.Fatal(err)
	}

	res := mustRun(t, e, "t1", "go")
	var toolMsg string
	for _, m := range res.State.Messages {
		if m.Role == RoleTool {
			toolMsg = m.Content
		}
	}
	if !strings.Contains(toolMsg, "panicked") {
		t.Errorf("tool message = %q", toolMsg)
	}
	if res.Output != "survived" {
		t.Errorf("output = %q", res.Output)
	}
}

func TestToolsNodeAlwaysDenyByPolicy(t *testing.T) {
	provider := &mockProvider{steps: []scriptedStep{
		respondCalls(call("c1", "nuke", `{}`)),
		respondText("acknowledged"),
	}}
	policy, err := NewApprovalPolicy([]ApprovalRule{
		{ToolPattern: "nuke", Risk: RiskCritical, Decision: DecisionAlwaysDeny},
	})
	if err != nil {
		t.Fatal(err)
	}
	e := newTestEngine(t, provider, WithApprovalPolicy(policy))
	executed := false
	nuke := echoTool("nuke", "")
	nuke.Handler = func(_ context.Context, _ json.RawMessage, _ ToolContext) (ToolOutcome, error) {
		executed = true
		return ToolOutcome{Content: "launched"}, nil
	}
	if err := e.Tools().Register(nuke); err != nil {
		t.Fatal(err)
	}

	res := mustRun(t, e, "t1", "go")
	if executed {
		t.Error("always_deny tool executed")
	}
	var toolMsg string
	for _, m := range res.State.Messages {
		if m.Role == RoleTool {
			toolMsg = m.Content
		}
	}
	if !strings.HasPrefix(toolMsg, "Denied by policy") {
		t.Errorf("tool message = %q", toolMsg)
	}
}

func TestToolsNodeTruncatesHugeResults(t *testing.T) {
	provider := &mockProvider{steps: []scriptedStep{
		respondCalls(call("c1", "firehose", `{}`)),
		respondText("done"),
	}}
	e := newTestEngine(t, provider)
	firehose := echoTool("firehose", strings.Repeat("x", maxToolResultChars+500))
	if err := e.Tools().Register(firehose); err != nil {
		t.Fatal(err)
	}

	res := mustRun(t, e, "t1", "go")
	var toolMsg string
	for _, m := range res.State.Messages {
		if m.Role == RoleTool {
			toolMsg = m.Content
		}
	}
	if len(toolMsg) != maxToolResultChars+len(truncationMarker) {
		t.Errorf("len = %d", len(toolMsg))
	}
	if !strings.HasSuffix(toolMsg, truncationMarker) {
		t.Error("truncation marker missing")
	}
}

func TestToolsNodeStatePatchApplied(t *testing.T) {
	provider := &mockProvider{steps: []scriptedStep{
		respondCalls(call("c1", ToolTodoWrite, `{"todos":[{"content":"write tests","status":"pending"}]}`)),
		respondText("list updated"),
	}}
	e := newTestEngine(t, provider)

	res := mustRun(t, e, "t1", "track this")
	if len(res.State.Todos) != 1 {
		t.Fatalf("todos = %+v", res.State.Todos)
	}
	todo := res.State.Todos[0]
	if todo.Content != "write tests" || todo.Status != TodoPending || todo.ID == "" {
		t.Errorf("todo = %+v", todo)
	}
}

func TestBatchWithSerialToolRunsSerially(t *testing.T) {
	provider := &mockProvider{steps: []scriptedStep{
		respondCalls(
			call("c1", "par", `{}`),
			call("c2", "ser", `{}`),
		),
		respondText("ok"),
	}}
	e := newTestEngine(t, provider)
	par := echoTool("par", "p")
	par.Meta.Parallel = true
	ser := echoTool("ser", "s")
	if err := e.Tools().Register(par); err != nil {
		t.Fatal(err)
	}
	if err := e.Tools().Register(ser); err != nil {
		t.Fatal(err)
	}
	if e.batchParallel([]ToolCall{call("c1", "par", `{}`), call("c2", "ser", `{}`)}) {
		t.Error("mixed batch classified as parallel-safe")
	}

	res := mustRun(t, e, "t1", "go")
	var count int
	for _, m := range res.State.Messages {
		if m.Role == RoleTool {
			count++
		}
	}
	if count != 2 {
		t.Errorf("tool messages = %d, want 2", count)
	}
}

// A parallel-marked tool that tries to suspend must degrade to an error
// result; the suspension machinery is serial-only.
func TestParallelBatchConvertsSuspensionsToErrors(t *testing.T) {
	provider := &mockProvider{steps: []scriptedStep{
		respondCalls(
			call("c1", "watch_a", `{}`),
			call("c2", "watch_b", `{}`),
		),
		respondText("carried on"),
	}}
	e := newTestEngine(t, provider)
	suspending := func(name string) *Tool {
		tool := echoTool(name, "")
		tool.Meta.Parallel = true
		tool.Handler = func(_ context.Context, _ json.RawMessage, _ ToolContext) (ToolOutcome, error) {
			return ToolOutcome{
				Interrupt: &Interrupt{Kind: InterruptAskHuman, Question: "may I?"},
				Resume: func(context.Context, json.RawMessage) (ToolOutcome, error) {
					return ToolOutcome{Content: "resumed"}, nil
				},
			}, nil
		}
		return tool
	}
	for _, name := range []string{"watch_a", "watch_b"} {
		if err := e.Tools().Register(suspending(name)); err != nil {
			t.Fatal(err)
		}
	}

	res := mustRun(t, e, "t1", "go")
	if res.Output != "carried on" {
		t.Errorf("output = %q", res.Output)
	}
	var toolMsgs []string
	for _, m := range res.State.Messages {
		if m.Role == RoleTool {
			toolMsgs = append(toolMsgs, m.Content)
		}
	}
	if len(toolMsgs) != 2 {
		t.Fatalf("tool messages = %d, want 2", len(toolMsgs))
	}
	for _, content := range toolMsgs {
		if !strings.Contains(content, "attempted to suspend during parallel dispatch") {
			t.Errorf("tool message = %q", content)
		}
	}
}
