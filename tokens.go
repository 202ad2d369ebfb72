package axon

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// TokenStatus is the pressure band of a session's cumulative prompt tokens
// against the model's context window.
type TokenStatus string

const (
	StatusNormal   TokenStatus = "normal"
	StatusInfo     TokenStatus = "info"
	StatusWarning  TokenStatus = "warning"
	StatusCritical TokenStatus = "critical"
)

// contextWindows maps model-id prefixes to context window sizes. Longest
// prefix wins. Models not listed get defaultContextWindow, chosen
// conservatively so unknown models compress early rather than overflow.
var contextWindows = []struct {
	prefix string
	window int
}{
	{"gpt-4o", 128_000},
	{"gpt-4-turbo", 128_000},
	{"gpt-4", 8_192},
	{"gpt-3.5", 16_385},
	{"deepseek", 128_000},
	{"glm", 128_000},
	{"claude", 200_000},
	{"gemini", 1_000_000},
	{"qwen", 131_072},
}

const defaultContextWindow = 32_000

// ContextWindow returns the context window for a model id.
func ContextWindow(modelID string) int {
	model := strings.ToLower(modelID)
	best := 0
	window := defaultContextWindow
	for _, e := range contextWindows {
		if strings.HasPrefix(model, e.prefix) && len(e.prefix) > best {
			best = len(e.prefix)
			window = e.window
		}
	}
	return window
}

// usage key aliases across providers, canonical name first.
var promptTokenKeys = []string{"prompt_tokens", "input_tokens", "promptTokens", "inputTokens", "prompt_token_count"}
var completionTokenKeys = []string{"completion_tokens", "output_tokens", "completionTokens", "outputTokens", "candidates_token_count"}

// ExtractUsage normalizes the usage block of a model response. When the
// structured Usage is zero it falls back to the provider's raw usage map
// (field names vary by provider), and finally to a tokenizer estimate over
// the request and response text.
func ExtractUsage(req ChatRequest, resp ChatResponse, modelID string) Usage {
	u := resp.Usage
	if u.PromptTokens == 0 && u.CompletionTokens == 0 && resp.RawUsage != nil {
		u.PromptTokens = intFromAliases(resp.RawUsage, promptTokenKeys)
		u.CompletionTokens = intFromAliases(resp.RawUsage, completionTokenKeys)
	}
	if u.PromptTokens == 0 && u.CompletionTokens == 0 {
		u.PromptTokens = estimateRequestTokens(req, modelID)
		u.CompletionTokens = EstimateTokens(resp.Content, modelID)
	}
	return u
}

func intFromAliases(m map[string]any, keys []string) int {
	for _, k := range keys {
		v, ok := m[k]
		if !ok {
			continue
		}
		switch n := v.(type) {
		case int:
			return n
		case int64:
			return int(n)
		case float64:
			return int(n)
		}
	}
	return 0
}

// --- tokenizer-backed estimation ---

var (
	encodingCache   = make(map[string]*tiktoken.Tiktoken)
	encodingCacheMu sync.Mutex
)

// encodingFor returns a cached tiktoken encoding for the model, falling back
// to cl100k_base for models tiktoken does not know (non-OpenAI providers are
// approximated; the thresholds carry enough slack for that).
func encodingFor(modelID string) *tiktoken.Tiktoken {
	encodingCacheMu.Lock()
	defer encodingCacheMu.Unlock()
	if enc, ok := encodingCache[modelID]; ok {
		return enc
	}
	enc, err := tiktoken.EncodingForModel(modelID)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil
		}
	}
	encodingCache[modelID] = enc
	return enc
}

// EstimateTokens counts tokens in text with the model's tokenizer, or by the
// 4-chars-per-token rule when no tokenizer is available.
func EstimateTokens(text, modelID string) int {
	if enc := encodingFor(modelID); enc != nil {
		return len(enc.Encode(text, nil, nil))
	}
	return len(text) / 4
}

// perMessageOverhead approximates the per-message framing tokens of chat
// completion formats.
const perMessageOverhead = 3

func estimateRequestTokens(req ChatRequest, modelID string) int {
	total := EstimateTokens(req.System, modelID)
	for _, m := range req.Messages {
		total += perMessageOverhead
		total += EstimateTokens(m.Content, modelID)
		for _, tc := range m.ToolCalls {
			total += EstimateTokens(string(tc.Args), modelID)
		}
	}
	return total
}

// --- status bands ---

// TokenThresholds are the configured band boundaries, each in [0.5, 0.95].
type TokenThresholds struct {
	Info     float64
	Warning  float64
	Critical float64
}

// Status maps cumulative prompt tokens to a pressure band for the model's
// context window. A ratio exactly at a boundary lands in the higher band, so
// hitting critical_threshold exactly does trigger compression.
func (t TokenThresholds) Status(cumulativePromptTokens int, modelID string) TokenStatus {
	window := ContextWindow(modelID)
	if window <= 0 {
		return StatusNormal
	}
	ratio := float64(cumulativePromptTokens) / float64(window)
	switch {
	case ratio >= t.Critical:
		return StatusCritical
	case ratio >= t.Warning:
		return StatusWarning
	case ratio >= t.Info:
		return StatusInfo
	default:
		return StatusNormal
	}
}
