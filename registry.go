package axon

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// --- tool records ---

// Risk levels attached to tool metadata and HITL rules.
const (
	RiskLow      = "low"
	RiskMedium   = "medium"
	RiskHigh     = "high"
	RiskCritical = "critical"
)

// ToolContext carries per-session data into a tool handler. State is a
// read-only view; handlers mutate the session only through ToolOutcome.Patch.
type ToolContext struct {
	State  *State
	Logger *slog.Logger
}

// ToolOutcome is what a handler returns: plain content, content plus a state
// patch, or an interrupt awaiting host input. Resume, when set, continues a
// suspended handler with the host's answer (used by delegation to re-enter a
// suspended subagent); when nil, the answer text becomes the Tool message
// content directly (ask_human).
type ToolOutcome struct {
	Content   string
	Patch     *Update
	Interrupt *Interrupt
	Resume    func(ctx context.Context, answer json.RawMessage) (ToolOutcome, error)
	IsError   bool
}

// ToolHandler executes one tool call.
type ToolHandler func(ctx context.Context, args json.RawMessage, tc ToolContext) (ToolOutcome, error)

// ToolMeta is registry metadata. Config is the single source of truth for
// these fields; discovery only binds names to handlers.
type ToolMeta struct {
	Category        string
	Tags            []string
	Risk            string
	Enabled         bool
	AlwaysAvailable bool
	// Parallel marks the handler safe for concurrent dispatch within one
	// assistant batch. Batches mixing parallel and serial tools run serially.
	Parallel bool
	// TimeoutSeconds overrides the configured per-tool default when > 0.
	TimeoutSeconds int
}

// Tool is one registry entry: a name-keyed record, not a class hierarchy.
type Tool struct {
	Name        string
	Description string
	Parameters  json.RawMessage
	Handler     ToolHandler
	Meta        ToolMeta

	schema *jsonschema.Schema
}

// Definition renders the record as a model-facing tool definition.
func (t *Tool) Definition() ToolDefinition {
	return ToolDefinition{Name: t.Name, Description: t.Description, Parameters: t.Parameters}
}

// ValidateArgs checks args against the tool's input schema. Tools without a
// schema accept anything.
func (t *Tool) ValidateArgs(args json.RawMessage) error {
	if t.schema == nil {
		return nil
	}
	var v any
	if len(args) == 0 {
		v = map[string]any{}
	} else if err := json.Unmarshal(args, &v); err != nil {
		return fmt.Errorf("arguments are not valid JSON: %w", err)
	}
	if err := t.schema.Validate(v); err != nil {
		return fmt.Errorf("arguments do not match schema: %w", err)
	}
	return nil
}

// --- three-layer registry ---

// ToolRegistry tracks every discovered tool and the enabled subset. What the
// model can see (the visibility set bound by the planner) is narrower than
// what the runtime can execute (any discovered tool): the tools node accepts
// the full discovered set because handlers may be promoted on demand
// mid-session. The registry is read-only after startup except for on-demand
// promotion, which is idempotent under a mutex.
type ToolRegistry struct {
	mu         sync.RWMutex
	discovered map[string]*Tool
	enabled    map[string]*Tool
}

// NewToolRegistry creates an empty registry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{
		discovered: make(map[string]*Tool),
		enabled:    make(map[string]*Tool),
	}
}

// compileSchema compiles the tool's Parameters once at registration.
// An invalid schema is a registration error, not a dispatch-time surprise.
func compileSchema(t *Tool) error {
	if len(t.Parameters) == 0 {
		return nil
	}
	schema, err := jsonschema.CompileString(t.Name+".schema.json", string(t.Parameters))
	if err != nil {
		return fmt.Errorf("tool %q: invalid parameter schema: %w", t.Name, err)
	}
	t.schema = schema
	return nil
}

// RegisterDiscovered records a tool found by the startup scan without
// enabling it. Re-registering an already-enabled name keeps it enabled.
func (r *ToolRegistry) RegisterDiscovered(t *Tool) error {
	if t == nil || t.Name == "" {
		return fmt.Errorf("tool must have a name")
	}
	if err := compileSchema(t); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.discovered[t.Name] = t
	if t.Meta.Enabled {
		r.enabled[t.Name] = t
	}
	return nil
}

// Register discovers and enables a tool in one step.
func (r *ToolRegistry) Register(t *Tool) error {
	if t == nil || t.Name == "" {
		return fmt.Errorf("tool must have a name")
	}
	t.Meta.Enabled = true
	return r.RegisterDiscovered(t)
}

// Get returns the enabled tool with the given name, or nil.
func (r *ToolRegistry) Get(name string) *Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.enabled[name]
}

// Resolve returns the tool from the execution set (all discovered tools),
// or nil. The tools node dispatches through Resolve so on-demand-loaded
// handlers are never rejected.
func (r *ToolRegistry) Resolve(name string) *Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.discovered[name]
}

// LoadOnDemand promotes a discovered-but-disabled tool to enabled and returns
// it. Already-enabled names return the existing record unchanged; unknown
// names return nil. Idempotent.
func (r *ToolRegistry) LoadOnDemand(name string) *Tool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.enabled[name]; ok {
		return t
	}
	t, ok := r.discovered[name]
	if !ok {
		return nil
	}
	t.Meta.Enabled = true
	r.enabled[name] = t
	return t
}

// Metadata returns the metadata for a discovered tool and whether it exists.
func (r *ToolRegistry) Metadata(name string) (ToolMeta, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.discovered[name]
	if !ok {
		return ToolMeta{}, false
	}
	return t.Meta, true
}

// Known reports whether the name resolves to any discovered tool.
func (r *ToolRegistry) Known(name string) bool {
	return r.Resolve(name) != nil
}

// EnabledNames returns the sorted names of all enabled tools.
func (r *ToolRegistry) EnabledNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.enabled))
	for name := range r.enabled {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// AlwaysAvailable returns the enabled tools flagged always_available, sorted
// by name. These form the base of every planner visibility set.
func (r *ToolRegistry) AlwaysAvailable() []*Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var tools []*Tool
	for _, t := range r.enabled {
		if t.Meta.AlwaysAvailable {
			tools = append(tools, t)
		}
	}
	sort.Slice(tools, func(i, j int) bool { return tools[i].Name < tools[j].Name })
	return tools
}

// UnknownToolMessage renders the error content for a call to a name outside
// the execution set, listing what is actually available.
func (r *ToolRegistry) UnknownToolMessage(name string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.discovered))
	for n := range r.discovered {
		names = append(names, n)
	}
	sort.Strings(names)
	return fmt.Sprintf("Error: %s is not a valid tool; try one of [%s]", name, strings.Join(names, ", "))
}
