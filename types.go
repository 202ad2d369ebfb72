package axon

import "encoding/json"

// --- LLM protocol types ---

// Message roles. Every ChatMessage carries exactly one of these.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ChatMessage is one entry in a session's conversation log.
// Assistant messages may carry tool calls; tool messages answer exactly one
// tool call via ToolCallID.
type ChatMessage struct {
	Role       string          `json:"role"`
	Content    string          `json:"content"`
	ToolCalls  []ToolCall      `json:"tool_calls,omitempty"`
	ToolCallID string          `json:"tool_call_id,omitempty"`
	Metadata   json.RawMessage `json:"metadata,omitempty"` // provider-specific passthrough
}

// ToolCall is a structured tool invocation request emitted by the model.
type ToolCall struct {
	ID   string          `json:"id"`
	Name string          `json:"name"`
	Args json.RawMessage `json:"args"`
}

// Usage reports token consumption for one model invocation.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// ChatRequest is the provider-neutral request shape.
// Tools, when non-empty, are bound so the model can emit ToolCalls.
type ChatRequest struct {
	System      string           `json:"system,omitempty"`
	Messages    []ChatMessage    `json:"messages"`
	Tools       []ToolDefinition `json:"tools,omitempty"`
	Model       string           `json:"model,omitempty"`
	Temperature float64          `json:"temperature,omitempty"`
	MaxTokens   int              `json:"max_tokens,omitempty"`
}

// ChatResponse is the provider-neutral response shape. RawUsage carries the
// provider's unparsed usage block for providers whose field names differ from
// the canonical prompt_tokens/completion_tokens pair; the token tracker knows
// the common aliases.
type ChatResponse struct {
	Content   string         `json:"content"`
	ToolCalls []ToolCall     `json:"tool_calls,omitempty"`
	Usage     Usage          `json:"usage"`
	RawUsage  map[string]any `json:"raw_usage,omitempty"`
}

// ToolDefinition describes one tool to the model.
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters,omitempty"` // JSON Schema for the arguments object
}

// SystemMessage builds a system-role message.
func SystemMessage(content string) ChatMessage {
	return ChatMessage{Role: RoleSystem, Content: content}
}

// UserMessage builds a user-role message.
func UserMessage(content string) ChatMessage {
	return ChatMessage{Role: RoleUser, Content: content}
}

// AssistantMessage builds an assistant-role message with optional tool calls.
func AssistantMessage(content string, calls ...ToolCall) ChatMessage {
	return ChatMessage{Role: RoleAssistant, Content: content, ToolCalls: calls}
}

// ToolResultMessage builds a tool-role message answering the given call id.
func ToolResultMessage(callID, content string) ChatMessage {
	return ChatMessage{Role: RoleTool, Content: content, ToolCallID: callID}
}

// --- session domain types ---

// Todo statuses, mutated only through the todo_write built-in.
const (
	TodoPending    = "pending"
	TodoInProgress = "in_progress"
	TodoCompleted  = "completed"
)

// Todo is one entry in the session task list.
type Todo struct {
	ID       string `json:"id"`
	Content  string `json:"content"`
	Status   string `json:"status"`
	Priority string `json:"priority,omitempty"`
}

// UploadedFile describes a user-supplied file placed in the workspace.
type UploadedFile struct {
	Name string `json:"name"`
	Path string `json:"path"`
	Mime string `json:"mime,omitempty"`
	Size int64  `json:"size,omitempty"`
}

// ModelSlot selects one of the configured model roles.
type ModelSlot string

const (
	SlotBase      ModelSlot = "base"
	SlotReasoning ModelSlot = "reasoning"
	SlotVision    ModelSlot = "vision"
	SlotCode      ModelSlot = "code"
	SlotChat      ModelSlot = "chat"
)
