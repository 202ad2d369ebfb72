package axon

import (
	"context"
	"strings"
)

// planner runs one reasoning step: build the history view, bind the visible
// tools, invoke the model, and append its message. All mutations come back as
// a single atomic update.
func (e *Engine) planner(ctx context.Context, s *State) (*Update, error) {
	u := &Update{}
	if e.tracer != nil {
		var span Span
		ctx, span = e.tracer.Start(ctx, "node.planner",
			StringAttr("thread", s.ThreadID),
			IntAttr("loop", s.Loops))
		defer span.End()
	}

	// Mentions classified against the live registries; tool mentions promote
	// discovered handlers into this session's allowed set.
	mentions := ClassifyMentions(s.MentionedAgents, e.skills, e.tools)
	if len(s.MentionedAgents) > 0 {
		u.ClearMentions = true
	}
	for _, name := range mentions.Tools {
		if e.tools.LoadOnDemand(name) != nil {
			u.AddAllowedTools = append(u.AddAllowedTools, name)
		}
	}
	for _, name := range mentions.Unknown {
		e.logger.Debug("unknown mention ignored", "thread", s.ThreadID, "mention", name)
	}

	provider := e.selectModel(s)
	thresholds := e.thresholds()
	status := thresholds.Status(s.CumulativePromptTokens, provider.Model())

	// Critical pressure compresses before the model ever sees the prompt.
	// At most one automatic pass per request; after that the compress tool is
	// surfaced so the model decides.
	if status == StatusCritical {
		if !s.AutoCompressedThisRequest {
			res := e.compressor.Compress(ctx, s, StrategyAuto)
			if res.Ratio < 1 || res.Fallback {
				cu := compressionUpdate(s, res)
				cu.AppendMessages = []ChatMessage{autoCompressionNotice(res.Strategy, res.Ratio)}
				cu.SetAutoCompressed = boolPtr(true)
				u.Fold(cu)
				// No model call this entry; the router re-enters the planner.
				return u, nil
			}
			e.logger.Warn("critical token pressure with nothing left to compress",
				"thread", s.ThreadID, "prompt_tokens", s.CumulativePromptTokens)
		}
		e.tools.LoadOnDemand(ToolCompress)
		u.AddAllowedTools = append(u.AddAllowedTools, ToolCompress)
	}

	visible := e.visibleTools(s, u.AddAllowedTools)
	prompt := buildSystemPrompt(s, promptInputs{
		catalog:     e.skills.Catalog(),
		activeSkill: s.ActiveSkill,
		mentions:    mentions,
		newUploads:  s.NewUploadedFiles,
		tokenNotice: tokenNotice(status, s.CumulativePromptTokens, ContextWindow(provider.Model())),
	})
	u.ConsumeNewUploads = true

	history := truncateHistory(sanitizeHistory(s.Messages), e.cfg.MaxMessageHistory)
	req := ChatRequest{
		System:   prompt,
		Messages: history,
		Tools:    definitions(visible),
		Model:    provider.Model(),
	}

	resp, usage, err := e.invoke(ctx, provider, req)
	if err != nil && isContextOverflow(err) {
		// The request itself blew the window. Force a summarize pass over the
		// live log and retry once on the rewritten history.
		e.logger.Warn("context overflow from provider, forcing compression",
			"thread", s.ThreadID, "provider", provider.Name(), "error", err)
		res := e.compressor.Compress(ctx, s, StrategySummarize)
		cu := compressionUpdate(s, res)
		cu.SetAutoCompressed = boolPtr(true)
		cu.AppendMessages = []ChatMessage{autoCompressionNotice(res.Strategy, res.Ratio)}
		u.Fold(cu)
		req.Messages = truncateHistory(sanitizeHistory(res.Messages), e.cfg.MaxMessageHistory)
		resp, usage, err = e.invoke(ctx, provider, req)
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		// Provider failures end the turn with an explanation instead of
		// crashing the session; the router finalizes on the content-only
		// assistant message.
		e.logger.Error("provider call failed", "thread", s.ThreadID,
			"provider", provider.Name(), "error", err)
		u.AddLoops = 1
		u.AppendMessages = append(u.AppendMessages,
			AssistantMessage("I could not reach the language model: "+err.Error()))
		return u, nil
	}

	u.AddLoops = 1
	u.AddPromptTokens = usage.PromptTokens
	u.AddCompletionTokens = usage.CompletionTokens
	u.AppendMessages = append(u.AppendMessages, AssistantMessage(resp.Content, resp.ToolCalls...))
	e.logger.Debug("planner step",
		"thread", s.ThreadID, "loop", s.Loops+1,
		"tool_calls", len(resp.ToolCalls), "prompt_tokens", usage.PromptTokens)
	return u, nil
}

// invoke runs one provider call under the configured LLM timeout and
// normalizes its usage block.
func (e *Engine) invoke(ctx context.Context, provider Provider, req ChatRequest) (ChatResponse, Usage, error) {
	callCtx := ctx
	if d := e.cfg.LLMTimeout(); d > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}
	resp, err := provider.Chat(callCtx, req)
	if err != nil {
		return ChatResponse{}, Usage{}, err
	}
	return resp, ExtractUsage(req, resp, provider.Model()), nil
}

// thresholds lifts the configured band boundaries.
func (e *Engine) thresholds() TokenThresholds {
	return TokenThresholds{
		Info:     e.cfg.InfoThreshold,
		Warning:  e.cfg.WarningThreshold,
		Critical: e.cfg.CriticalThreshold,
	}
}

// selectModel picks the provider slot for this step: session pin first, then
// content hints (fresh image uploads want vision, fenced code wants the code
// model), base otherwise. Missing slots fall back to base inside Select.
func (e *Engine) selectModel(s *State) Provider {
	if s.ModelPref != "" {
		return e.models.Select(s.ModelPref)
	}
	for _, f := range s.NewUploadedFiles {
		if strings.HasPrefix(f.Mime, "image/") {
			return e.models.Select(SlotVision)
		}
	}
	if last := s.LastMessage(); last.Role == RoleUser && strings.Contains(last.Content, "```") {
		return e.models.Select(SlotCode)
	}
	return e.models.Select(SlotBase)
}

// visibleTools assembles the planner's visibility set: always-available
// built-ins, the session's allowed tools, plus any promoted this entry.
// Subagents never see the delegation tool.
func (e *Engine) visibleTools(s *State, promoted []string) []*Tool {
	seen := make(map[string]bool)
	var out []*Tool
	add := func(t *Tool) {
		if t == nil || seen[t.Name] {
			return
		}
		if s.IsSubagent() && t.Name == ToolDelegate {
			return
		}
		seen[t.Name] = true
		out = append(out, t)
	}
	for _, t := range e.tools.AlwaysAvailable() {
		add(t)
	}
	for _, name := range s.AllowedTools {
		add(e.tools.Get(name))
	}
	for _, name := range promoted {
		add(e.tools.Get(name))
	}
	return out
}

// definitions renders the visibility set for the wire.
func definitions(tools []*Tool) []ToolDefinition {
	if len(tools) == 0 {
		return nil
	}
	defs := make([]ToolDefinition, len(tools))
	for i, t := range tools {
		defs[i] = t.Definition()
	}
	return defs
}
