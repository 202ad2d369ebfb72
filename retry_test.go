package axon

import (
	"context"
	"testing"
	"time"
)

// flakyProvider fails a fixed number of times before succeeding.
type flakyProvider struct {
	failures int
	err      error
	calls    int
}

func (f *flakyProvider) Name() string  { return "flaky" }
func (f *flakyProvider) Model() string { return "gpt-4o" }
func (f *flakyProvider) Chat(_ context.Context, _ ChatRequest) (ChatResponse, error) {
	f.calls++
	if f.calls <= f.failures {
		return ChatResponse{}, f.err
	}
	return ChatResponse{Content: "ok"}, nil
}

func TestRetryRecoversFromTransientFailure(t *testing.T) {
	inner := &flakyProvider{failures: 1, err: &ErrLLM{Provider: "flaky", Message: "503", Transient: true}}
	p := WithRetry(inner, RetryBaseDelay(time.Millisecond))

	resp, err := p.Chat(context.Background(), ChatRequest{})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Content != "ok" || inner.calls != 2 {
		t.Errorf("content=%q calls=%d", resp.Content, inner.calls)
	}
}

func TestRetrySkipsPermanentFailure(t *testing.T) {
	inner := &flakyProvider{failures: 5, err: &ErrLLM{Provider: "flaky", Message: "401 unauthorized"}}
	p := WithRetry(inner, RetryBaseDelay(time.Millisecond))

	if _, err := p.Chat(context.Background(), ChatRequest{}); err == nil {
		t.Fatal("permanent failure retried into success")
	}
	if inner.calls != 1 {
		t.Errorf("calls = %d, want 1 (no retry on permanent errors)", inner.calls)
	}
}

func TestRetrySkipsContextOverflow(t *testing.T) {
	inner := &flakyProvider{failures: 5, err: &ErrLLM{
		Provider: "flaky", Message: "context length exceeded", Transient: true, ContextOverflow: true,
	}}
	p := WithRetry(inner, RetryBaseDelay(time.Millisecond))

	if _, err := p.Chat(context.Background(), ChatRequest{}); err == nil {
		t.Fatal("overflow retried into success")
	}
	if inner.calls != 1 {
		t.Errorf("calls = %d, want 1 (overflow handled by compression, not retry)", inner.calls)
	}
}

func TestRetryHonorsMaxAttempts(t *testing.T) {
	inner := &flakyProvider{failures: 10, err: &ErrLLM{Provider: "flaky", Message: "timeout", Transient: true}}
	p := WithRetry(inner, RetryMaxAttempts(3), RetryBaseDelay(time.Millisecond))

	if _, err := p.Chat(context.Background(), ChatRequest{}); err == nil {
		t.Fatal("want error after exhausting attempts")
	}
	if inner.calls != 3 {
		t.Errorf("calls = %d, want 3", inner.calls)
	}
}
