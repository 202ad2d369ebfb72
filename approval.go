package axon

import (
	"fmt"
	"os"
	"path"
	"regexp"

	"gopkg.in/yaml.v3"
)

// --- HITL approval policy ---

// ApprovalDecision is the action a matched rule dictates.
type ApprovalDecision string

const (
	DecisionAutoAllow       ApprovalDecision = "auto_allow"
	DecisionRequireApproval ApprovalDecision = "require_approval"
	DecisionAlwaysDeny      ApprovalDecision = "always_deny"
)

// ApprovalRule gates tool calls. ToolPattern is a name or glob
// ("write_*", "run_bash_command"); ArgPattern, when set, is a regex applied
// to the raw JSON arguments — the rule matches only when both hit.
type ApprovalRule struct {
	ToolPattern string           `yaml:"tool"`
	ArgPattern  string           `yaml:"arg_pattern,omitempty"`
	Risk        string           `yaml:"risk"`
	Decision    ApprovalDecision `yaml:"decision"`

	argRe *regexp.Regexp
}

// ApprovalPolicy is an ordered rule set; the first matching rule wins.
// Unmatched calls get DefaultDecision (auto_allow unless configured).
type ApprovalPolicy struct {
	Rules           []ApprovalRule
	DefaultDecision ApprovalDecision
}

// NewApprovalPolicy compiles the rules' argument regexes. Invalid regexes or
// decisions are registration errors.
func NewApprovalPolicy(rules []ApprovalRule) (*ApprovalPolicy, error) {
	p := &ApprovalPolicy{Rules: rules, DefaultDecision: DecisionAutoAllow}
	for i := range p.Rules {
		r := &p.Rules[i]
		switch r.Decision {
		case DecisionAutoAllow, DecisionRequireApproval, DecisionAlwaysDeny:
		default:
			return nil, fmt.Errorf("rule %d (%s): unknown decision %q", i, r.ToolPattern, r.Decision)
		}
		if r.ArgPattern != "" {
			re, err := regexp.Compile(r.ArgPattern)
			if err != nil {
				return nil, fmt.Errorf("rule %d (%s): bad arg_pattern: %w", i, r.ToolPattern, err)
			}
			r.argRe = re
		}
		if r.Risk == "" {
			r.Risk = RiskMedium
		}
	}
	return p, nil
}

// approvalRulesFile is the YAML shape of the rule file.
type approvalRulesFile struct {
	Default ApprovalDecision `yaml:"default,omitempty"`
	Rules   []ApprovalRule   `yaml:"rules"`
}

// LoadApprovalRules reads and compiles a YAML rule file.
func LoadApprovalRules(rulesPath string) (*ApprovalPolicy, error) {
	data, err := os.ReadFile(rulesPath)
	if err != nil {
		return nil, err
	}
	var file approvalRulesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse approval rules: %w", err)
	}
	p, err := NewApprovalPolicy(file.Rules)
	if err != nil {
		return nil, err
	}
	if file.Default != "" {
		p.DefaultDecision = file.Default
	}
	return p, nil
}

// Evaluate returns the decision and risk for one tool call. The tool's own
// registry risk is reported when no rule matches.
func (p *ApprovalPolicy) Evaluate(tc ToolCall, meta ToolMeta) (ApprovalDecision, string) {
	if p == nil {
		return DecisionAutoAllow, defaultRisk(meta)
	}
	for _, r := range p.Rules {
		if !matchToolPattern(r.ToolPattern, tc.Name) {
			continue
		}
		if r.argRe != nil && !r.argRe.Match(tc.Args) {
			continue
		}
		return r.Decision, r.Risk
	}
	return p.DefaultDecision, defaultRisk(meta)
}

func defaultRisk(meta ToolMeta) string {
	if meta.Risk != "" {
		return meta.Risk
	}
	return RiskLow
}

// matchToolPattern matches a tool name against a literal name or glob.
func matchToolPattern(pattern, name string) bool {
	if pattern == name {
		return true
	}
	ok, err := path.Match(pattern, name)
	return err == nil && ok
}
