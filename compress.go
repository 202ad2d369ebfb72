package axon

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// CompressStrategy selects how aggressively old conversation is summarized.
type CompressStrategy string

const (
	// StrategyCompact produces a detailed (~1000 char) structured summary
	// preserving file paths, tool-call shapes, errors, and decisions.
	StrategyCompact CompressStrategy = "compact"
	// StrategySummarize produces a short (<=200 char) abstract.
	StrategySummarize CompressStrategy = "summarize"
	// StrategyAuto picks between the two from recent compression history.
	StrategyAuto CompressStrategy = "auto"
)

// summaryMarker prefixes the synthetic message carrying the compressed
// history so later compression passes can fold prior summaries together.
const summaryMarker = "[Summary of earlier conversation]\n"

// compactsBeforeSummarize is the auto-strategy rule: after this many
// consecutive compacts the next pass summarizes instead.
const compactsBeforeSummarize = 3

// poorCompactionRatio is the auto-strategy rule: a last ratio above this
// means compact is not earning its keep, so switch to summarize.
const poorCompactionRatio = 0.40

const compactPrompt = `Produce a detailed, structured summary of the conversation below in at most 1000 characters. Preserve: file paths touched, tool calls made and their outcomes, errors encountered, and decisions taken. Omit pleasantries and redundant detail.`

const summarizePrompt = `Produce a concise abstract of the conversation below in at most 200 characters. Keep only the task, key results, and unresolved issues.`

// Compressor reduces a session's message log via LLM summarization with a
// deterministic truncation fallback. Compression never fails upward: when the
// summarizer errors or returns an empty summary, emergency truncation applies.
type Compressor struct {
	// Provider runs the summarization call.
	Provider Provider
	// KeepRecent is the number of trailing non-system messages kept verbatim.
	KeepRecent int
	// CompactMiddle is the number of non-system messages preceding the recent
	// window that are summarized together with everything older.
	CompactMiddle int
	// EmergencyKeep is the fallback truncation window.
	EmergencyKeep int
	// MaxTokens bounds the summarizer's output so compression itself cannot
	// blow the output budget.
	MaxTokens int
	Logger    *slog.Logger
	Tracer    Tracer
}

// CompressResult is the outcome of one compression pass.
type CompressResult struct {
	Messages []ChatMessage
	// Ratio is compressed/original content length in (0, 1]. 1 means no-op.
	Ratio float64
	// Strategy is the concrete strategy used (never auto).
	Strategy CompressStrategy
	// Fallback marks that emergency truncation was used.
	Fallback bool
}

// partition splits messages into system anchors, old, middle, and recent per
// the compression windows. Anchors keep their relative order; old and middle
// are candidates for summarization; recent stays verbatim.
func (c *Compressor) partition(messages []ChatMessage) (anchors, old, middle, recent []ChatMessage) {
	var nonSystem []ChatMessage
	for _, m := range messages {
		if m.Role == RoleSystem {
			anchors = append(anchors, m)
		} else {
			nonSystem = append(nonSystem, m)
		}
	}
	n := len(nonSystem)
	recentStart := n - c.KeepRecent
	if recentStart < 0 {
		recentStart = 0
	}
	middleStart := recentStart - c.CompactMiddle
	if middleStart < 0 {
		middleStart = 0
	}
	return anchors, nonSystem[:middleStart], nonSystem[middleStart:recentStart], nonSystem[recentStart:]
}

// resolveStrategy applies the adaptive rule for StrategyAuto: summarize when
// the last pass compacted poorly or three compacts ran since the last
// summarize; compact otherwise.
func resolveStrategy(strategy CompressStrategy, s *State) CompressStrategy {
	if strategy != StrategyAuto {
		return strategy
	}
	if s.LastCompressionRatio > poorCompactionRatio && s.CompactCount > 0 {
		return StrategySummarize
	}
	if s.CompactsSinceSummarize >= compactsBeforeSummarize {
		return StrategySummarize
	}
	return StrategyCompact
}

// Compress performs one pass over the state's message log. When there is
// nothing older than the recent window the pass is a no-op (idempotence:
// recompressing an already-compressed log does not shrink it further).
func (c *Compressor) Compress(ctx context.Context, s *State, strategy CompressStrategy) CompressResult {
	logger := c.Logger
	if logger == nil {
		logger = nopLogger
	}
	anchors, old, middle, recent := c.partition(s.Messages)
	if len(old) == 0 && len(middle) == 0 {
		return CompressResult{Messages: s.Messages, Ratio: 1, Strategy: resolveStrategy(strategy, s)}
	}

	resolved := resolveStrategy(strategy, s)
	originalLen := contentLen(s.Messages)

	if c.Tracer != nil {
		var span Span
		ctx, span = c.Tracer.Start(ctx, "compress",
			StringAttr("strategy", string(resolved)),
			IntAttr("messages", len(s.Messages)))
		defer span.End()
	}

	summary, err := c.summarize(ctx, old, middle, resolved)
	if err != nil || strings.TrimSpace(summary) == "" {
		logger.Warn("summarization failed, falling back to emergency truncation",
			"thread", s.ThreadID, "strategy", resolved, "error", err)
		messages := c.emergencyTruncate(s.Messages)
		return CompressResult{
			Messages: messages,
			Ratio:    ratioOf(contentLen(messages), originalLen),
			Strategy: resolved,
			Fallback: true,
		}
	}

	compressed := make([]ChatMessage, 0, len(anchors)+1+len(recent))
	compressed = append(compressed, anchors...)
	compressed = append(compressed, UserMessage(summaryMarker+summary))
	compressed = append(compressed, sanitizeHistory(recent)...)

	ratio := ratioOf(contentLen(compressed), originalLen)
	logger.Info("context compressed",
		"thread", s.ThreadID,
		"strategy", resolved,
		"messages_before", len(s.Messages),
		"messages_after", len(compressed),
		"ratio", fmt.Sprintf("%.2f", ratio))
	return CompressResult{Messages: compressed, Ratio: ratio, Strategy: resolved}
}

// summarize runs the strategy's summarization prompt over the old and middle
// partitions. Old content is always included; prior summaries fold in.
func (c *Compressor) summarize(ctx context.Context, old, middle []ChatMessage, strategy CompressStrategy) (string, error) {
	prompt := compactPrompt
	if strategy == StrategySummarize {
		prompt = summarizePrompt
	}

	var b strings.Builder
	render := func(messages []ChatMessage) {
		for _, m := range messages {
			fmt.Fprintf(&b, "[%s] %s\n", m.Role, m.Content)
			for _, tc := range m.ToolCalls {
				fmt.Fprintf(&b, "  -> tool call %s(%s)\n", tc.Name, string(tc.Args))
			}
		}
	}
	render(old)
	render(middle)

	resp, err := c.Provider.Chat(ctx, ChatRequest{
		System:    prompt,
		Messages:  []ChatMessage{UserMessage(b.String())},
		MaxTokens: c.MaxTokens,
	})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

// emergencyTruncate keeps all system anchors and the most recent EmergencyKeep
// messages, sanitized so no orphaned tool-call pair survives the cut.
func (c *Compressor) emergencyTruncate(messages []ChatMessage) []ChatMessage {
	var anchors, nonSystem []ChatMessage
	for _, m := range messages {
		if m.Role == RoleSystem {
			anchors = append(anchors, m)
		} else {
			nonSystem = append(nonSystem, m)
		}
	}
	keep := c.EmergencyKeep
	if keep <= 0 {
		keep = 150
	}
	if len(nonSystem) > keep {
		nonSystem = nonSystem[len(nonSystem)-keep:]
	}
	out := make([]ChatMessage, 0, len(anchors)+len(nonSystem))
	out = append(out, anchors...)
	out = append(out, sanitizeHistory(nonSystem)...)
	return out
}

func contentLen(messages []ChatMessage) int {
	var n int
	for _, m := range messages {
		n += len(m.Content)
		for _, tc := range m.ToolCalls {
			n += len(tc.Args)
		}
	}
	return n
}

func ratioOf(compressed, original int) float64 {
	if original <= 0 {
		return 1
	}
	r := float64(compressed) / float64(original)
	if r > 1 {
		r = 1
	}
	if r <= 0 {
		r = 0.01
	}
	return r
}
