package axon

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds every runtime knob recognized by the engine. Zero values are
// filled in by Default(); Validate() rejects out-of-range settings instead of
// silently clamping them, except where the field doc says otherwise.
type Config struct {
	// MaxLoops is the hard bound on planner iterations per session.
	MaxLoops int `toml:"max_loops"`
	// MaxSubagentLoops is the default cap for delegated subagents.
	MaxSubagentLoops int `toml:"max_subagent_loops"`
	// MaxMessageHistory is the window retained by the safe truncator,
	// clamped to [10, 100].
	MaxMessageHistory int `toml:"max_message_history"`

	// Token-usage bands, each validated to [0.5, 0.95].
	InfoThreshold     float64 `toml:"info_threshold"`
	WarningThreshold  float64 `toml:"warning_threshold"`
	CriticalThreshold float64 `toml:"critical_threshold"`

	// Compressor windows.
	KeepRecentMessages    int `toml:"keep_recent_messages"`
	CompactMiddleMessages int `toml:"compact_middle_messages"`
	// EmergencyKeepMessages is the fallback truncation window when the
	// summarizer fails.
	EmergencyKeepMessages int `toml:"emergency_keep_messages"`
	// CompressionMaxTokens bounds the summarizer's output budget.
	CompressionMaxTokens int `toml:"compression_max_tokens"`

	// SubagentMinSummaryChars is the continuation threshold: a subagent
	// terminal message shorter than this triggers one follow-up turn.
	SubagentMinSummaryChars int `toml:"subagent_min_summary_chars"`

	// ToolTimeout is the per-tool default timeout in seconds.
	ToolTimeoutSeconds int `toml:"tool_timeout_default_seconds"`
	// LLMTimeoutSeconds bounds a single provider call.
	LLMTimeoutSeconds int `toml:"llm_timeout_seconds"`
	// TurnTimeoutSeconds bounds one full planner+tools turn.
	TurnTimeoutSeconds int `toml:"turn_timeout_seconds"`

	// ApprovalRulesPath points to the YAML HITL rule file. Empty means no
	// rules beyond the built-in defaults.
	ApprovalRulesPath string `toml:"approval_rules_path"`

	// SkillDirs are scanned for <dir>/<skill>/SKILL.md packages.
	SkillDirs []string `toml:"skill_dirs"`

	// WorkspaceRoot is the parent directory for per-session workspaces.
	WorkspaceRoot string `toml:"workspace_root"`
}

// Default returns a Config with all defaults applied.
func Default() Config {
	return Config{
		MaxLoops:                100,
		MaxSubagentLoops:        15,
		MaxMessageHistory:       40,
		InfoThreshold:           0.75,
		WarningThreshold:        0.85,
		CriticalThreshold:       0.95,
		KeepRecentMessages:      10,
		CompactMiddleMessages:   30,
		EmergencyKeepMessages:   150,
		CompressionMaxTokens:    1440,
		SubagentMinSummaryChars: 200,
		ToolTimeoutSeconds:      30,
		LLMTimeoutSeconds:       120,
		TurnTimeoutSeconds:      300,
	}
}

// Load reads a TOML config file, layering it over defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks ranges and ordering of the configured values.
// MaxMessageHistory is clamped rather than rejected.
func (c *Config) Validate() error {
	if c.MaxLoops < 1 {
		return fmt.Errorf("max_loops must be >= 1, got %d", c.MaxLoops)
	}
	if c.MaxSubagentLoops < 1 {
		return fmt.Errorf("max_subagent_loops must be >= 1, got %d", c.MaxSubagentLoops)
	}
	if c.MaxMessageHistory < 10 {
		c.MaxMessageHistory = 10
	}
	if c.MaxMessageHistory > 100 {
		c.MaxMessageHistory = 100
	}
	for _, t := range []struct {
		name  string
		value float64
	}{
		{"info_threshold", c.InfoThreshold},
		{"warning_threshold", c.WarningThreshold},
		{"critical_threshold", c.CriticalThreshold},
	} {
		if t.value < 0.5 || t.value > 0.95 {
			return fmt.Errorf("%s must be in [0.5, 0.95], got %g", t.name, t.value)
		}
	}
	if !(c.InfoThreshold <= c.WarningThreshold && c.WarningThreshold <= c.CriticalThreshold) {
		return fmt.Errorf("thresholds must be ordered info <= warning <= critical")
	}
	if c.KeepRecentMessages < 1 {
		return fmt.Errorf("keep_recent_messages must be >= 1, got %d", c.KeepRecentMessages)
	}
	if c.CompactMiddleMessages < 0 {
		return fmt.Errorf("compact_middle_messages must be >= 0, got %d", c.CompactMiddleMessages)
	}
	if c.SubagentMinSummaryChars < 0 {
		return fmt.Errorf("subagent_min_summary_chars must be >= 0, got %d", c.SubagentMinSummaryChars)
	}
	return nil
}

// ToolTimeout returns the per-tool default timeout as a duration.
func (c *Config) ToolTimeout() time.Duration {
	return time.Duration(c.ToolTimeoutSeconds) * time.Second
}

// LLMTimeout returns the provider-call timeout as a duration.
func (c *Config) LLMTimeout() time.Duration {
	return time.Duration(c.LLMTimeoutSeconds) * time.Second
}

// TurnTimeout returns the total-turn wall clock as a duration.
func (c *Config) TurnTimeout() time.Duration {
	return time.Duration(c.TurnTimeoutSeconds) * time.Second
}
