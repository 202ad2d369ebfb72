package axon

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestNowToolUsesClock(t *testing.T) {
	orig := nowStamp
	nowStamp = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	defer func() { nowStamp = orig }()

	out, err := nowTool().Handler(context.Background(), nil, ToolContext{})
	if err != nil {
		t.Fatal(err)
	}
	if out.Content != "2026-01-02T03:04:05Z" {
		t.Errorf("content = %q", out.Content)
	}
}

func TestTodoWriteAssignsIDs(t *testing.T) {
	args := json.RawMessage(`{"todos":[
		{"content":"first","status":"pending"},
		{"id":"keep-me","content":"second","status":"in_progress","priority":"high"}
	]}`)
	out, err := todoWriteTool().Handler(context.Background(), args, ToolContext{})
	if err != nil {
		t.Fatal(err)
	}
	if out.Patch == nil || out.Patch.SetTodos == nil {
		t.Fatalf("outcome = %+v", out)
	}
	todos := *out.Patch.SetTodos
	if len(todos) != 2 {
		t.Fatalf("todos = %+v", todos)
	}
	if todos[0].ID == "" {
		t.Error("missing id not assigned")
	}
	if todos[1].ID != "keep-me" {
		t.Errorf("supplied id rewritten to %q", todos[1].ID)
	}
	if !strings.Contains(out.Content, "2 items") {
		t.Errorf("content = %q", out.Content)
	}
}

func TestTodoReadRendersList(t *testing.T) {
	s := &State{Todos: []Todo{
		{ID: "t1", Content: "ship it", Status: TodoInProgress, Priority: "high"},
		{ID: "t2", Content: "clean up", Status: TodoPending},
	}}
	out, err := todoReadTool().Handler(context.Background(), nil, ToolContext{State: s})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.Content, "- [in_progress] ship it (t1, high)") {
		t.Errorf("content = %q", out.Content)
	}
	if !strings.Contains(out.Content, "- [pending] clean up (t2)") {
		t.Errorf("content = %q", out.Content)
	}
}

func TestTodoReadEmpty(t *testing.T) {
	out, err := todoReadTool().Handler(context.Background(), nil, ToolContext{State: &State{}})
	if err != nil {
		t.Fatal(err)
	}
	if out.Content != "No todos." {
		t.Errorf("content = %q", out.Content)
	}
}

func TestAskHumanReturnsInterrupt(t *testing.T) {
	args := json.RawMessage(`{"question":"which region?","default":"us-east-1"}`)
	out, err := askHumanTool().Handler(context.Background(), args, ToolContext{})
	if err != nil {
		t.Fatal(err)
	}
	if out.Interrupt == nil {
		t.Fatal("no interrupt")
	}
	if out.Interrupt.Kind != InterruptAskHuman ||
		out.Interrupt.Question != "which region?" ||
		out.Interrupt.Default != "us-east-1" {
		t.Errorf("interrupt = %+v", out.Interrupt)
	}
}

func TestBuiltinsRegisteredOnEngine(t *testing.T) {
	e := newTestEngine(t, &mockProvider{})
	for _, name := range []string{ToolNow, ToolTodoRead, ToolTodoWrite, ToolAskHuman, ToolDelegate} {
		if e.Tools().Get(name) == nil {
			t.Errorf("builtin %s not enabled", name)
		}
	}
	// compress_context stays discovered until the planner promotes it.
	if e.Tools().Get(ToolCompress) != nil {
		t.Error("compress_context enabled eagerly")
	}
	if !e.Tools().Known(ToolCompress) {
		t.Error("compress_context not discoverable")
	}
}
