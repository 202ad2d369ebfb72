package axon

import "context"

// Provider abstracts the LLM backend. Binding req.Tools must cause the model
// to emit structured tool-call requests when it wants to use a tool.
type Provider interface {
	// Chat sends a request and returns a complete response.
	Chat(ctx context.Context, req ChatRequest) (ChatResponse, error)
	// Name returns the provider name (e.g. "openai", "deepseek").
	Name() string
	// Model returns the model id sent on the wire, used for context-window
	// lookup and token estimation.
	Model() string
}

// ModelSet holds one provider per model slot. Base is required; every other
// slot falls back to Base when nil.
type ModelSet struct {
	Base      Provider
	Reasoning Provider
	Vision    Provider
	Code      Provider
	Chat      Provider
}

// Select resolves a slot to a provider, falling back to Base for empty or
// unconfigured slots.
func (m ModelSet) Select(slot ModelSlot) Provider {
	var p Provider
	switch slot {
	case SlotReasoning:
		p = m.Reasoning
	case SlotVision:
		p = m.Vision
	case SlotCode:
		p = m.Code
	case SlotChat:
		p = m.Chat
	}
	if p == nil {
		return m.Base
	}
	return p
}
