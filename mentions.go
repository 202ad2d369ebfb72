package axon

import (
	"regexp"
	"strings"
)

// agentHandle is the @-mention that summons the delegation tool.
const agentHandle = "agent"

// MentionGroups is the classifier output: each token from the user turn
// sorted into exactly one bucket, in input order within each bucket.
type MentionGroups struct {
	Tools   []string
	Skills  []string
	Agents  []string
	Unknown []string
}

// Empty reports whether no mention was classified at all.
func (g MentionGroups) Empty() bool {
	return len(g.Tools) == 0 && len(g.Skills) == 0 && len(g.Agents) == 0 && len(g.Unknown) == 0
}

var mentionPattern = regexp.MustCompile(`@([a-zA-Z0-9_][a-zA-Z0-9_-]*)`)

// ExtractMentions pulls @name tokens out of a user turn, deduplicated in
// first-appearance order.
func ExtractMentions(text string) []string {
	matches := mentionPattern.FindAllStringSubmatch(text, -1)
	var names []string
	seen := make(map[string]bool)
	for _, m := range matches {
		name := m[1]
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	return names
}

// ClassifyMentions sorts @name tokens into agent handle, skill, tool, or
// unknown. Precedence is agent > skill > tool: a skill named like a tool
// shadows the tool. Unknown names are recorded but never surfaced to the
// model as errors.
func ClassifyMentions(names []string, skills *SkillRegistry, tools *ToolRegistry) MentionGroups {
	var g MentionGroups
	for _, name := range names {
		lower := strings.ToLower(name)
		switch {
		case lower == agentHandle:
			g.Agents = append(g.Agents, name)
		case skills != nil && skills.Has(name):
			g.Skills = append(g.Skills, name)
		case tools != nil && tools.Known(name):
			g.Tools = append(g.Tools, name)
		default:
			g.Unknown = append(g.Unknown, name)
		}
	}
	return g
}
