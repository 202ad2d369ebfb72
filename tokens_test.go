package axon

import "testing"

func TestContextWindowLongestPrefixWins(t *testing.T) {
	tests := []struct {
		model string
		want  int
	}{
		{"gpt-4o-2024-08-06", 128_000},
		{"gpt-4-turbo-preview", 128_000},
		{"gpt-4-0613", 8_192},
		{"claude-sonnet-4", 200_000},
		{"gemini-2.0-flash", 1_000_000},
		{"qwen2.5-72b", 131_072},
		{"some-unknown-model", defaultContextWindow},
	}
	for _, tt := range tests {
		if got := ContextWindow(tt.model); got != tt.want {
			t.Errorf("ContextWindow(%q) = %d, want %d", tt.model, got, tt.want)
		}
	}
}

func TestExtractUsageStructured(t *testing.T) {
	u := ExtractUsage(ChatRequest{}, ChatResponse{
		Usage: Usage{PromptTokens: 42, CompletionTokens: 7},
	}, "gpt-4o")
	if u.PromptTokens != 42 || u.CompletionTokens != 7 {
		t.Errorf("usage = %+v", u)
	}
}

func TestExtractUsageRawAliases(t *testing.T) {
	tests := []struct {
		name string
		raw  map[string]any
	}{
		{"openai names", map[string]any{"prompt_tokens": 42, "completion_tokens": 7}},
		{"anthropic names", map[string]any{"input_tokens": float64(42), "output_tokens": float64(7)}},
		{"camel case", map[string]any{"promptTokens": 42, "completionTokens": 7}},
		{"gemini names", map[string]any{"prompt_token_count": 42, "candidates_token_count": 7}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := ExtractUsage(ChatRequest{}, ChatResponse{RawUsage: tt.raw}, "gpt-4o")
			if u.PromptTokens != 42 || u.CompletionTokens != 7 {
				t.Errorf("usage = %+v", u)
			}
		})
	}
}

func TestTokenStatusBands(t *testing.T) {
	th := TokenThresholds{Info: 0.75, Warning: 0.85, Critical: 0.95}
	const window = 128_000 // gpt-4o

	tests := []struct {
		tokens int
		want   TokenStatus
	}{
		{0, StatusNormal},
		{window*75/100 - 1, StatusNormal},
		{window * 75 / 100, StatusInfo}, // boundary lands in the higher band
		{window * 80 / 100, StatusInfo},
		{window * 85 / 100, StatusWarning},
		{window * 95 / 100, StatusCritical}, // exactly critical triggers
		{window, StatusCritical},
	}
	for _, tt := range tests {
		if got := th.Status(tt.tokens, "gpt-4o"); got != tt.want {
			t.Errorf("Status(%d) = %s, want %s", tt.tokens, got, tt.want)
		}
	}
}
