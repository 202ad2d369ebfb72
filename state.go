package axon

import (
	"encoding/json"
	"strings"
)

// --- session state ---

// ContextMain is the ContextID of a top-level session. Delegated sessions use
// "subagent-<8hex>" ids, which also serve as their ThreadID.
const ContextMain = "main"

// subagentPrefix marks delegated context ids. A context id with this prefix
// never sees the delegation tool (no nested delegation).
const subagentPrefix = "subagent-"

// State is the shared session record threaded through every node. Nodes never
// mutate it directly; they return *Update patches that the engine merges and
// checkpoints at each node boundary.
type State struct {
	Messages        []ChatMessage `json:"messages"`
	Todos           []Todo        `json:"todos,omitempty"`
	ActiveSkill     string        `json:"active_skill,omitempty"`
	AllowedTools    []string      `json:"allowed_tools,omitempty"`
	MentionedAgents []string      `json:"mentioned_agents,omitempty"`

	ContextID     string `json:"context_id"`
	ParentContext string `json:"parent_context,omitempty"`
	ThreadID      string `json:"thread_id"`

	Loops    int `json:"loops"`
	MaxLoops int `json:"max_loops"`

	CumulativePromptTokens     int     `json:"cumulative_prompt_tokens"`
	CumulativeCompletionTokens int     `json:"cumulative_completion_tokens"`
	CompactCount               int     `json:"compact_count"`
	LastCompressionRatio       float64 `json:"last_compression_ratio,omitempty"`
	AutoCompressedThisRequest  bool    `json:"auto_compressed_this_request,omitempty"`
	// compactsSinceSummarize drives the adaptive strategy rule: three
	// consecutive compacts force the next compression to summarize.
	CompactsSinceSummarize int `json:"compacts_since_summarize,omitempty"`

	WorkspacePath    string         `json:"workspace_path,omitempty"`
	UploadedFiles    []UploadedFile `json:"uploaded_files,omitempty"`
	NewUploadedFiles []UploadedFile `json:"new_uploaded_files,omitempty"`
	ModelPref        ModelSlot      `json:"model_pref,omitempty"`
}

// IsSubagent reports whether this state belongs to a delegated session.
func (s *State) IsSubagent() bool {
	return strings.HasPrefix(s.ContextID, subagentPrefix)
}

// LastMessage returns the final message in the log, or a zero message when
// the log is empty.
func (s *State) LastMessage() ChatMessage {
	if len(s.Messages) == 0 {
		return ChatMessage{}
	}
	return s.Messages[len(s.Messages)-1]
}

// LastAssistant returns the most recent assistant message and true, or false
// when none exists.
func (s *State) LastAssistant() (ChatMessage, bool) {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role == RoleAssistant {
			return s.Messages[i], true
		}
	}
	return ChatMessage{}, false
}

// Clone deep-copies the state so resume closures and checkpoints never share
// mutable slices with the live session.
func (s *State) Clone() *State {
	c := *s
	c.Messages = cloneMessages(s.Messages)
	c.Todos = append([]Todo(nil), s.Todos...)
	c.AllowedTools = append([]string(nil), s.AllowedTools...)
	c.MentionedAgents = append([]string(nil), s.MentionedAgents...)
	c.UploadedFiles = append([]UploadedFile(nil), s.UploadedFiles...)
	c.NewUploadedFiles = append([]UploadedFile(nil), s.NewUploadedFiles...)
	return &c
}

// cloneMessages deep-copies a message slice, including tool-call args and
// metadata byte slices, so snapshots never alias live buffers.
func cloneMessages(messages []ChatMessage) []ChatMessage {
	if messages == nil {
		return nil
	}
	out := make([]ChatMessage, len(messages))
	for i, m := range messages {
		out[i] = m
		if len(m.ToolCalls) > 0 {
			out[i].ToolCalls = make([]ToolCall, len(m.ToolCalls))
			for j, tc := range m.ToolCalls {
				out[i].ToolCalls[j] = tc
				if len(tc.Args) > 0 {
					out[i].ToolCalls[j].Args = append(json.RawMessage(nil), tc.Args...)
				}
			}
		}
		if len(m.Metadata) > 0 {
			out[i].Metadata = append(json.RawMessage(nil), m.Metadata...)
		}
	}
	return out
}

// --- update patches ---

// Update is the patch a node returns. The engine merges it into the state;
// message history is append-only unless ReplaceMessages is set (compression).
type Update struct {
	AppendMessages  []ChatMessage
	ReplaceMessages []ChatMessage // non-nil replaces the whole log
	replaceSet      bool

	SetTodos        *[]Todo
	SetActiveSkill  *string
	AddAllowedTools []string
	ClearMentions   bool

	AddLoops int

	AddPromptTokens     int
	AddCompletionTokens int
	ResetTokenCounters  bool
	AddCompactCount     int
	SetCompressionRatio *float64
	SetAutoCompressed   *bool
	SetCompactsSinceSum *int

	ConsumeNewUploads bool
	SetModelPref      *ModelSlot
}

// ReplaceLog marks the update as a full message-log replacement. Needed
// because a nil ReplaceMessages slice is also a valid (empty) replacement.
func (u *Update) ReplaceLog(messages []ChatMessage) *Update {
	u.ReplaceMessages = messages
	u.replaceSet = true
	return u
}

// Merge applies the patch. Messages are appended (or replaced for
// compression), scalars assigned, sets unioned. Merge is the only place
// session state changes.
func (s *State) Merge(u *Update) {
	if u == nil {
		return
	}
	if u.replaceSet {
		s.Messages = u.ReplaceMessages
	}
	s.Messages = append(s.Messages, u.AppendMessages...)

	if u.SetTodos != nil {
		s.Todos = *u.SetTodos
	}
	if u.SetActiveSkill != nil {
		s.ActiveSkill = *u.SetActiveSkill
	}
	for _, name := range u.AddAllowedTools {
		if !containsStr(s.AllowedTools, name) {
			s.AllowedTools = append(s.AllowedTools, name)
		}
	}
	if u.ClearMentions {
		s.MentionedAgents = nil
	}

	s.Loops += u.AddLoops

	if u.ResetTokenCounters {
		s.CumulativePromptTokens = 0
		s.CumulativeCompletionTokens = 0
	}
	s.CumulativePromptTokens += u.AddPromptTokens
	s.CumulativeCompletionTokens += u.AddCompletionTokens
	s.CompactCount += u.AddCompactCount
	if u.SetCompressionRatio != nil {
		s.LastCompressionRatio = *u.SetCompressionRatio
	}
	if u.SetAutoCompressed != nil {
		s.AutoCompressedThisRequest = *u.SetAutoCompressed
	}
	if u.SetCompactsSinceSum != nil {
		s.CompactsSinceSummarize = *u.SetCompactsSinceSum
	}

	if u.ConsumeNewUploads {
		if len(s.NewUploadedFiles) > 0 {
			s.UploadedFiles = append(s.UploadedFiles, s.NewUploadedFiles...)
			s.NewUploadedFiles = nil
		}
	}
	if u.SetModelPref != nil {
		s.ModelPref = *u.SetModelPref
	}
}

// Fold merges another update into u so a node can combine the patches of its
// internal phases (e.g. planner mention handling + LLM response) into one
// atomic update.
func (u *Update) Fold(other *Update) {
	if other == nil {
		return
	}
	if other.replaceSet {
		// A replacement discards messages appended earlier within this node.
		u.ReplaceLog(other.ReplaceMessages)
		u.AppendMessages = nil
	}
	u.AppendMessages = append(u.AppendMessages, other.AppendMessages...)
	if other.SetTodos != nil {
		u.SetTodos = other.SetTodos
	}
	if other.SetActiveSkill != nil {
		u.SetActiveSkill = other.SetActiveSkill
	}
	u.AddAllowedTools = append(u.AddAllowedTools, other.AddAllowedTools...)
	u.ClearMentions = u.ClearMentions || other.ClearMentions
	u.AddLoops += other.AddLoops
	u.AddPromptTokens += other.AddPromptTokens
	u.AddCompletionTokens += other.AddCompletionTokens
	u.ResetTokenCounters = u.ResetTokenCounters || other.ResetTokenCounters
	u.AddCompactCount += other.AddCompactCount
	if other.SetCompressionRatio != nil {
		u.SetCompressionRatio = other.SetCompressionRatio
	}
	if other.SetAutoCompressed != nil {
		u.SetAutoCompressed = other.SetAutoCompressed
	}
	if other.SetCompactsSinceSum != nil {
		u.SetCompactsSinceSum = other.SetCompactsSinceSum
	}
	u.ConsumeNewUploads = u.ConsumeNewUploads || other.ConsumeNewUploads
	if other.SetModelPref != nil {
		u.SetModelPref = other.SetModelPref
	}
}

func containsStr(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func boolPtr(b bool) *bool          { return &b }
func intPtr(n int) *int             { return &n }
func float64Ptr(f float64) *float64 { return &f }
func strPtr(s string) *string       { return &s }
