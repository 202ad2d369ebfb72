package axon

import (
	"fmt"
	"strings"
	"time"
)

// --- system prompt assembly ---

const mainIdentity = `You are a general-purpose assistant that completes tasks by planning, calling tools, and observing their results. Work step by step. Use the todo tools to track multi-step work. Delegate large self-contained sub-tasks with delegate_task. Ask the user with ask_human only when genuinely blocked.`

const subagentIdentity = `You are a delegated task agent. Complete the assigned task directly and report results tersely: what was done, what was discovered, concrete outputs and file paths. You cannot delegate further. Use ask_human only when the task cannot proceed without an answer.`

const finalizerPrompt = `Summarize the work above for the user: what was asked, what was done, and the results. Be direct and complete; do not mention internal tooling.`

// subagentContinuationPrompt requests a structured summary when a subagent's
// terminal message is too terse to return to the parent.
const subagentContinuationPrompt = `Your previous answer was too brief. Reply with a structured summary: what was done, what was discovered, concrete results, and any file paths produced.`

// nowStamp is a seam for tests; production uses time.Now.
var nowStamp = time.Now

// promptInputs collects the per-turn dynamic pieces of the system prompt.
type promptInputs struct {
	catalog     string // skill registry markdown catalog
	activeSkill string
	mentions    MentionGroups
	newUploads  []UploadedFile
	tokenNotice string
}

// buildSystemPrompt assembles the full system prompt for one planner entry:
// identity, current time, skill catalog, dynamic reminders, token notice.
// Subagents get the terse task dialect and no skill catalog.
func buildSystemPrompt(s *State, in promptInputs) string {
	var b strings.Builder
	if s.IsSubagent() {
		b.WriteString(subagentIdentity)
	} else {
		b.WriteString(mainIdentity)
	}
	fmt.Fprintf(&b, "\n\n<current_time>%s</current_time>", nowStamp().UTC().Format(time.RFC3339))

	if s.WorkspacePath != "" {
		fmt.Fprintf(&b, "\n<workspace>%s</workspace>", s.WorkspacePath)
	}

	if !s.IsSubagent() && in.catalog != "" {
		b.WriteString("\n\n")
		b.WriteString(in.catalog)
	}

	if reminders := buildReminders(in); reminders != "" {
		b.WriteString("\n\n")
		b.WriteString(reminders)
	}

	if in.tokenNotice != "" {
		b.WriteString("\n\n")
		b.WriteString(in.tokenNotice)
	}
	return b.String()
}

// buildReminders renders the per-turn dynamic reminder block: active skill,
// classified mentions, freshly uploaded files.
func buildReminders(in promptInputs) string {
	var lines []string
	if in.activeSkill != "" {
		lines = append(lines, fmt.Sprintf("- Skill %q is active; honor its instructions.", in.activeSkill))
	}
	for _, name := range in.mentions.Skills {
		lines = append(lines, fmt.Sprintf("- The user mentioned skill @%s; read its entry document before acting.", name))
	}
	for _, name := range in.mentions.Tools {
		lines = append(lines, fmt.Sprintf("- The user mentioned tool @%s; it is available this turn.", name))
	}
	if len(in.mentions.Agents) > 0 {
		lines = append(lines, "- The user asked for delegation; delegate_task is available.")
	}
	for _, f := range in.newUploads {
		lines = append(lines, fmt.Sprintf("- The user uploaded %s at %s.", f.Name, f.Path))
	}
	if len(lines) == 0 {
		return ""
	}
	return "## Reminders\n\n" + strings.Join(lines, "\n")
}

// tokenNotice renders the usage advisory injected at info and warning levels.
// Normal adds nothing; critical is handled by compression before the prompt
// is built.
func tokenNotice(status TokenStatus, used, window int) string {
	switch status {
	case StatusInfo:
		return fmt.Sprintf("Note: the conversation has used %d of ~%d context tokens.", used, window)
	case StatusWarning:
		return fmt.Sprintf("Warning: the conversation has used %d of ~%d context tokens; be economical and consider compress_context.", used, window)
	default:
		return ""
	}
}

// autoCompressionNotice is appended to the log after an automatic compression
// so the model knows history was rewritten.
func autoCompressionNotice(strategy CompressStrategy, ratio float64) ChatMessage {
	return SystemMessage(fmt.Sprintf(
		"Conversation history was automatically compressed (strategy=%s, ratio=%.2f). Earlier turns are summarized above.",
		strategy, ratio))
}
