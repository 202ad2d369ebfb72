package axon

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
)

// mockProvider replays scripted responses in order and records every request
// it receives. Exhausting the script returns a plain "exhausted" response so
// a miscounted test fails on content, not on a panic.
type mockProvider struct {
	name  string
	model string
	steps []scriptedStep

	mu       sync.Mutex
	idx      int
	requests []ChatRequest
}

type scriptedStep struct {
	resp ChatResponse
	err  error
}

func (m *mockProvider) Name() string {
	if m.name == "" {
		return "mock"
	}
	return m.name
}

func (m *mockProvider) Model() string {
	if m.model == "" {
		return "gpt-4o"
	}
	return m.model
}

func (m *mockProvider) Chat(_ context.Context, req ChatRequest) (ChatResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	if m.idx >= len(m.steps) {
		return ChatResponse{Content: "exhausted", Usage: Usage{PromptTokens: 1, CompletionTokens: 1}}, nil
	}
	step := m.steps[m.idx]
	m.idx++
	return step.resp, step.err
}

func (m *mockProvider) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.idx
}

func (m *mockProvider) request(i int) ChatRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requests[i]
}

// respondText scripts a content-only assistant reply.
func respondText(content string) scriptedStep {
	return scriptedStep{resp: ChatResponse{
		Content: content,
		Usage:   Usage{PromptTokens: 10, CompletionTokens: 5},
	}}
}

// respondCalls scripts an assistant reply carrying tool calls.
func respondCalls(calls ...ToolCall) scriptedStep {
	return scriptedStep{resp: ChatResponse{
		ToolCalls: calls,
		Usage:     Usage{PromptTokens: 10, CompletionTokens: 5},
	}}
}

func respondErr(err error) scriptedStep {
	return scriptedStep{err: err}
}

func call(id, name, args string) ToolCall {
	return ToolCall{ID: id, Name: name, Args: json.RawMessage(args)}
}

// newTestEngine builds an engine over the scripted provider with test-sized
// limits.
func newTestEngine(t *testing.T, provider Provider, opts ...EngineOption) *Engine {
	t.Helper()
	cfg := Default()
	cfg.MaxLoops = 10
	cfg.MaxSubagentLoops = 5
	e, err := NewEngine(cfg, ModelSet{Base: provider}, opts...)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return e
}

// echoTool returns a fixed string; used wherever a test needs a harmless
// registered tool.
func echoTool(name, reply string) *Tool {
	return &Tool{
		Name:        name,
		Description: "echoes a fixed reply",
		Handler: func(_ context.Context, _ json.RawMessage, _ ToolContext) (ToolOutcome, error) {
			return ToolOutcome{Content: reply}, nil
		},
		Meta: ToolMeta{Category: "test", Risk: RiskLow, Enabled: true, AlwaysAvailable: true},
	}
}

func mustRun(t *testing.T, e *Engine, thread, input string) Result {
	t.Helper()
	res, err := e.Run(context.Background(), thread, input)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	return res
}
