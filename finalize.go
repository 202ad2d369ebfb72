package axon

import (
	"context"
)

// finalize produces the user-facing response. When the latest message is a
// content-only assistant reply, that reply is the response and the node is a
// no-op. Otherwise (loop budget exhausted, skipped tool calls, empty reply)
// one summarization call renders the session so far into a closing answer.
func (e *Engine) finalize(ctx context.Context, s *State) (*Update, string, error) {
	if e.tracer != nil {
		var span Span
		ctx, span = e.tracer.Start(ctx, "node.finalizer",
			StringAttr("thread", s.ThreadID),
			IntAttr("loops", s.Loops))
		defer span.End()
	}

	last := s.LastMessage()
	if last.Role == RoleAssistant && len(last.ToolCalls) == 0 && last.Content != "" {
		return &Update{}, last.Content, nil
	}
	if len(pendingToolCalls(s)) > 0 {
		e.logger.Warn("loop budget exhausted with pending tool calls",
			"thread", s.ThreadID, "loops", s.Loops, "max_loops", s.MaxLoops)
	}

	provider := e.selectModel(s)
	req := ChatRequest{
		System:   finalizerPrompt,
		Messages: truncateHistory(sanitizeHistory(s.Messages), e.cfg.MaxMessageHistory),
		Model:    provider.Model(),
	}
	resp, usage, err := e.invoke(ctx, provider, req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, "", ctxErr
		}
		e.logger.Error("finalizer call failed", "thread", s.ThreadID, "error", err)
		output := "The session ended before a summary could be produced: " + err.Error()
		return &Update{AppendMessages: []ChatMessage{AssistantMessage(output)}}, output, nil
	}

	output := resp.Content
	if output == "" {
		output = "Done."
	}
	u := &Update{
		AppendMessages:      []ChatMessage{AssistantMessage(output)},
		AddPromptTokens:     usage.PromptTokens,
		AddCompletionTokens: usage.CompletionTokens,
	}
	return u, output, nil
}
