package axon

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
)

const longSubagentAnswer = "The dataset was downloaded to data/raw.csv, cleaned into data/clean.csv " +
	"(4,812 rows kept, 121 dropped for missing timestamps), and the summary statistics were written " +
	"to reports/stats.md. Mean latency was 41ms with a p99 of 310ms."

func delegateCall(id, task string) ToolCall {
	args, _ := json.Marshal(map[string]string{"task": task})
	return ToolCall{ID: id, Name: ToolDelegate, Args: args}
}

func TestDelegateRunsIsolatedSubagent(t *testing.T) {
	provider := &mockProvider{steps: []scriptedStep{
		respondCalls(delegateCall("c1", "clean the dataset")),
		respondText(longSubagentAnswer), // subagent planner
		respondText("delegated and done"),
	}}
	e := newTestEngine(t, provider)

	res := mustRun(t, e, "t1", "handle the data work")
	if res.Output != "delegated and done" {
		t.Errorf("output = %q", res.Output)
	}

	var toolMsg string
	for _, m := range res.State.Messages {
		if m.Role == RoleTool {
			toolMsg = m.Content
		}
	}
	var payload delegateResult
	if err := json.Unmarshal([]byte(toolMsg), &payload); err != nil {
		t.Fatalf("tool message is not JSON: %q", toolMsg)
	}
	if !payload.OK {
		t.Errorf("payload = %+v", payload)
	}
	if payload.Result != longSubagentAnswer {
		t.Errorf("result = %q", payload.Result)
	}
	if !strings.HasPrefix(payload.ContextID, "subagent-") {
		t.Errorf("context id = %q", payload.ContextID)
	}

	// Isolation: none of the subagent's intermediate messages appear in the
	// parent log, and the subagent never saw the parent's conversation.
	for _, m := range res.State.Messages {
		if m.Role == RoleUser && m.Content == "clean the dataset" {
			t.Error("subagent task message leaked into the parent log")
		}
	}
	subReq := provider.request(1)
	if len(subReq.Messages) != 1 || subReq.Messages[0].Content != "clean the dataset" {
		t.Errorf("subagent saw %d messages, want only its task", len(subReq.Messages))
	}
	if !strings.Contains(subReq.System, "delegated task agent") {
		t.Errorf("subagent system prompt = %q", subReq.System)
	}
	// No delegation tool inside the subagent.
	for _, d := range subReq.Tools {
		if d.Name == ToolDelegate {
			t.Error("delegate tool visible to the subagent")
		}
	}
}

func TestDelegateShortAnswerTriggersOneContinuation(t *testing.T) {
	provider := &mockProvider{steps: []scriptedStep{
		respondCalls(delegateCall("c1", "check the feed")),
		respondText("ok"),              // too terse
		respondText(longSubagentAnswer), // continuation turn
		respondText("all set"),
	}}
	e := newTestEngine(t, provider)

	res := mustRun(t, e, "t1", "go")
	var payload delegateResult
	for _, m := range res.State.Messages {
		if m.Role == RoleTool {
			_ = json.Unmarshal([]byte(m.Content), &payload)
		}
	}
	if payload.Result != longSubagentAnswer {
		t.Errorf("result = %q, want the continuation answer", payload.Result)
	}
	// The continuation prompt was injected as a user turn.
	contReq := provider.request(2)
	last := contReq.Messages[len(contReq.Messages)-1]
	if last.Role != RoleUser || last.Content != subagentContinuationPrompt {
		t.Errorf("continuation request last message = %+v", last)
	}
}

func TestDelegateShortAnswerRetriesAtMostOnce(t *testing.T) {
	provider := &mockProvider{steps: []scriptedStep{
		respondCalls(delegateCall("c1", "quick check")),
		respondText("ok"),   // too terse
		respondText("done"), // continuation, still terse: accepted anyway
		respondText("fine"),
	}}
	e := newTestEngine(t, provider)

	res := mustRun(t, e, "t1", "go")
	var payload delegateResult
	for _, m := range res.State.Messages {
		if m.Role == RoleTool {
			_ = json.Unmarshal([]byte(m.Content), &payload)
		}
	}
	if !payload.OK || payload.Result != "done" {
		t.Errorf("payload = %+v", payload)
	}
	// delegate call + subagent turn + one continuation + parent wrap-up
	if provider.calls() != 4 {
		t.Errorf("provider calls = %d, want 4", provider.calls())
	}
}

func TestDelegateAnswerJustUnderMinimumContinues(t *testing.T) {
	under := strings.Repeat("x", 199) // one short of the 200-char default
	provider := &mockProvider{steps: []scriptedStep{
		respondCalls(delegateCall("c1", "measure the cutoff")),
		respondText(under),
		respondText(longSubagentAnswer), // continuation turn
		respondText("done"),
	}}
	e := newTestEngine(t, provider)

	res := mustRun(t, e, "t1", "go")
	var payload delegateResult
	for _, m := range res.State.Messages {
		if m.Role == RoleTool {
			_ = json.Unmarshal([]byte(m.Content), &payload)
		}
	}
	if payload.Result != longSubagentAnswer {
		t.Errorf("result = %q, want the continuation answer", payload.Result)
	}
	if provider.calls() != 4 {
		t.Errorf("provider calls = %d, want 4 (one continuation)", provider.calls())
	}
	contReq := provider.request(2)
	last := contReq.Messages[len(contReq.Messages)-1]
	if last.Content != subagentContinuationPrompt {
		t.Errorf("continuation request last message = %+v", last)
	}
}

func TestDelegateAnswerAtMinimumAccepted(t *testing.T) {
	exact := strings.Repeat("y", 200) // exactly the 200-char default
	provider := &mockProvider{steps: []scriptedStep{
		respondCalls(delegateCall("c1", "measure the cutoff")),
		respondText(exact),
		respondText("done"),
	}}
	e := newTestEngine(t, provider)

	res := mustRun(t, e, "t1", "go")
	var payload delegateResult
	for _, m := range res.State.Messages {
		if m.Role == RoleTool {
			_ = json.Unmarshal([]byte(m.Content), &payload)
		}
	}
	if payload.Result != exact {
		t.Errorf("result = %q, want the original answer", payload.Result)
	}
	if provider.calls() != 3 {
		t.Errorf("provider calls = %d, want 3 (no continuation)", provider.calls())
	}
}

func TestDelegateMaxLoopsParamCapsSubagent(t *testing.T) {
	args, _ := json.Marshal(map[string]any{"task": "poke the endpoint", "max_loops": 1})
	provider := &mockProvider{steps: []scriptedStep{
		respondCalls(ToolCall{ID: "c1", Name: ToolDelegate, Args: args}),
		respondCalls(call("s1", "poke", `{}`)), // burns the single subagent loop
		respondText(longSubagentAnswer),        // forced finalizer
		respondText("capped run reported"),
	}}
	e := newTestEngine(t, provider)
	executed := false
	poke := echoTool("poke", "")
	poke.Handler = func(_ context.Context, _ json.RawMessage, _ ToolContext) (ToolOutcome, error) {
		executed = true
		return ToolOutcome{Content: "poked"}, nil
	}
	if err := e.Tools().Register(poke); err != nil {
		t.Fatal(err)
	}

	res := mustRun(t, e, "t1", "go")
	if res.Output != "capped run reported" {
		t.Errorf("output = %q", res.Output)
	}
	if executed {
		t.Error("tool ran past the requested loop budget")
	}
	var payload delegateResult
	for _, m := range res.State.Messages {
		if m.Role == RoleTool {
			_ = json.Unmarshal([]byte(m.Content), &payload)
		}
	}
	if !payload.OK || payload.Loops != 1 {
		t.Errorf("payload = %+v, want ok with exactly 1 loop", payload)
	}
	// The budget forced the subagent straight to its finalizer.
	if provider.request(2).System != finalizerPrompt {
		t.Errorf("third call system = %q, want finalizer prompt", provider.request(2).System)
	}
}

func TestDelegateMaxLoopsClampedToConfig(t *testing.T) {
	args, _ := json.Marshal(map[string]any{"task": "keep digging", "max_loops": 9999})
	steps := []scriptedStep{
		respondCalls(ToolCall{ID: "c1", Name: ToolDelegate, Args: args}),
	}
	// One tool-calling turn per loop up to the configured subagent cap (5 in
	// the test engine); the cap must cut the run off, not the supplied 9999.
	for i := 0; i < 5; i++ {
		steps = append(steps, respondCalls(call("s1", "dig", `{}`)))
	}
	steps = append(steps, respondText(longSubagentAnswer), respondText("done"))
	provider := &mockProvider{steps: steps}
	e := newTestEngine(t, provider)
	if err := e.Tools().Register(echoTool("dig", "dug")); err != nil {
		t.Fatal(err)
	}

	res := mustRun(t, e, "t1", "go")
	var payload delegateResult
	for _, m := range res.State.Messages {
		if m.Role == RoleTool {
			_ = json.Unmarshal([]byte(m.Content), &payload)
		}
	}
	if !payload.OK || payload.Loops != 5 {
		t.Errorf("payload = %+v, want ok with exactly 5 loops", payload)
	}
}

func TestDelegateRefusedInsideSubagent(t *testing.T) {
	provider := &mockProvider{}
	e := newTestEngine(t, provider)

	outcome, err := e.delegateTool().Handler(context.Background(),
		json.RawMessage(`{"task":"recurse"}`),
		ToolContext{State: &State{ContextID: "subagent-1a2b3c4d"}, Logger: nopLogger})
	if err != nil {
		t.Fatal(err)
	}
	if !outcome.IsError || !strings.Contains(outcome.Content, "not available inside a delegated session") {
		t.Errorf("outcome = %+v", outcome)
	}
}

func TestDelegateSubagentQuestionPropagates(t *testing.T) {
	provider := &mockProvider{steps: []scriptedStep{
		respondCalls(delegateCall("c1", "audit the config")),
		respondCalls(call("s1", ToolAskHuman, `{"question":"Which environment?"}`)),
		respondText(longSubagentAnswer),
		respondText("audit delivered"),
	}}
	e := newTestEngine(t, provider)

	_, err := e.Run(context.Background(), "t1", "run the audit")
	intr, ok := err.(*ErrInterrupted)
	if !ok {
		t.Fatalf("err = %v, want *ErrInterrupted", err)
	}
	if intr.Payload.Kind != InterruptAskHuman {
		t.Errorf("kind = %q", intr.Payload.Kind)
	}
	if !strings.HasPrefix(intr.Payload.Question, "[subagent-") ||
		!strings.HasSuffix(intr.Payload.Question, "Which environment?") {
		t.Errorf("question = %q, want subagent-prefixed", intr.Payload.Question)
	}

	res, err := intr.Resume(context.Background(), json.RawMessage(`"staging"`))
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if res.Output != "audit delivered" {
		t.Errorf("output = %q", res.Output)
	}
	// The answer landed inside the subagent, not the parent log.
	for _, m := range res.State.Messages {
		if m.Role == RoleTool && m.Content == "staging" {
			t.Error("subagent answer leaked into the parent log")
		}
	}
}

func TestDelegateFailureReportsOKFalse(t *testing.T) {
	provider := &mockProvider{}
	e := newTestEngine(t, provider)

	outcome, err := e.delegateTool().Handler(context.Background(),
		json.RawMessage(`{"task":""}`),
		ToolContext{State: &State{ContextID: ContextMain}, Logger: nopLogger})
	if err != nil {
		t.Fatal(err)
	}
	if !outcome.IsError || !strings.Contains(outcome.Content, "non-empty task") {
		t.Errorf("outcome = %+v", outcome)
	}
}
