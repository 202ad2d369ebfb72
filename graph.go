package axon

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
)

// Engine drives the phase graph (planner -> tools -> ... -> finalizer) over a
// session state. One Engine serves many sessions; per-session state is
// threaded explicitly through the node functions, and the registries are
// read-only after startup apart from idempotent on-demand promotions.
type Engine struct {
	cfg        Config
	models     ModelSet
	tools      *ToolRegistry
	skills     *SkillRegistry
	approval   *ApprovalPolicy
	cp         Checkpointer
	compressor *Compressor
	tracer     Tracer
	logger     *slog.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

// WithTracer sets the span tracer (see the observer package).
func WithTracer(t Tracer) EngineOption {
	return func(e *Engine) { e.tracer = t }
}

// WithCheckpointer sets the state store. Defaults to an in-memory store.
func WithCheckpointer(cp Checkpointer) EngineOption {
	return func(e *Engine) { e.cp = cp }
}

// WithApprovalPolicy sets the HITL rule set. Without one, every tool call is
// auto-allowed.
func WithApprovalPolicy(p *ApprovalPolicy) EngineOption {
	return func(e *Engine) { e.approval = p }
}

// WithSkillRegistry sets the skill index injected into system prompts.
func WithSkillRegistry(r *SkillRegistry) EngineOption {
	return func(e *Engine) { e.skills = r }
}

// WithToolRegistry replaces the tool registry. Built-ins are still installed
// on top of it.
func WithToolRegistry(r *ToolRegistry) EngineOption {
	return func(e *Engine) { e.tools = r }
}

// NewEngine creates an engine. models.Base is required; cfg is validated.
func NewEngine(cfg Config, models ModelSet, opts ...EngineOption) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if models.Base == nil {
		return nil, fmt.Errorf("models.Base is required")
	}
	e := &Engine{cfg: cfg, models: models}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = nopLogger
	}
	if e.tools == nil {
		e.tools = NewToolRegistry()
	}
	if e.skills == nil {
		e.skills = NewSkillRegistry(e.logger)
	}
	if e.cp == nil {
		e.cp = NewMemoryCheckpointer()
	}
	if cfg.ApprovalRulesPath != "" && e.approval == nil {
		p, err := LoadApprovalRules(cfg.ApprovalRulesPath)
		if err != nil {
			return nil, err
		}
		e.approval = p
	}
	if len(cfg.SkillDirs) > 0 {
		if err := e.skills.Discover(cfg.SkillDirs...); err != nil {
			return nil, err
		}
	}
	e.compressor = &Compressor{
		Provider:      models.Base,
		KeepRecent:    cfg.KeepRecentMessages,
		CompactMiddle: cfg.CompactMiddleMessages,
		EmergencyKeep: cfg.EmergencyKeepMessages,
		MaxTokens:     cfg.CompressionMaxTokens,
		Logger:        e.logger,
		Tracer:        e.tracer,
	}
	if err := e.registerBuiltins(); err != nil {
		return nil, err
	}
	return e, nil
}

// Tools exposes the engine's registry so hosts can install external tool
// sources (file I/O, web, MCP servers) before the first session runs.
func (e *Engine) Tools() *ToolRegistry { return e.tools }

// Skills exposes the engine's skill registry.
func (e *Engine) Skills() *SkillRegistry { return e.skills }

// Result is the outcome of a completed run.
type Result struct {
	// Output is the user-facing final response.
	Output string
	// State is the session state after the finalizer.
	State *State
}

// RunOption adjusts a single Run invocation.
type RunOption func(*State)

// WithUploads attaches freshly uploaded files; they are surfaced to the model
// once and then folded into the session's upload list.
func WithUploads(files ...UploadedFile) RunOption {
	return func(s *State) { s.NewUploadedFiles = append(s.NewUploadedFiles, files...) }
}

// WithModelPref pins the model slot for this session.
func WithModelPref(slot ModelSlot) RunOption {
	return func(s *State) { s.ModelPref = slot }
}

// WithWorkspace sets the session's sandboxed workspace root.
func WithWorkspace(path string) RunOption {
	return func(s *State) { s.WorkspacePath = path }
}

// Run executes one user turn on the thread, hydrating state from the
// checkpointer when the thread exists. It returns the final response, or an
// *ErrInterrupted when the graph suspends for approval or a question.
func (e *Engine) Run(ctx context.Context, threadID, input string, opts ...RunOption) (Result, error) {
	s, err := e.cp.Get(ctx, threadID)
	if err != nil {
		return Result{}, fmt.Errorf("load checkpoint: %w", err)
	}
	if s == nil {
		s = &State{
			ContextID:     ContextMain,
			ThreadID:      threadID,
			MaxLoops:      e.cfg.MaxLoops,
			WorkspacePath: e.cfg.WorkspaceRoot,
		}
	}
	for _, opt := range opts {
		opt(s)
	}
	// New request: the double-compression guard resets, mentions are
	// re-extracted from this turn only.
	s.AutoCompressedThisRequest = false
	s.MentionedAgents = ExtractMentions(input)
	s.Messages = append(s.Messages, UserMessage(input))
	e.checkpoint(ctx, s, "input")

	if e.tracer != nil {
		var span Span
		ctx, span = e.tracer.Start(ctx, "engine.run",
			StringAttr("thread", threadID),
			StringAttr("context", s.ContextID))
		defer span.End()
	}
	e.logger.Info("run started", "thread", threadID, "context", s.ContextID)
	runCtx, cancel := e.turnContext(ctx)
	defer cancel()
	return e.drive(runCtx, s, nil)
}

// turnContext bounds one full graph traversal with the configured turn wall
// clock. A resumed interrupt gets a fresh clock.
func (e *Engine) turnContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if d := e.cfg.TurnTimeout(); d > 0 {
		return context.WithTimeout(ctx, d)
	}
	return context.WithCancel(ctx)
}

// drive is the runtime loop: route, run the node, merge its update,
// checkpoint, repeat. Node updates are merged only on success, so
// cancellation rolls back to the latest checkpoint with no partial Tool
// messages persisted.
func (e *Engine) drive(ctx context.Context, s *State, turn *toolTurn) (Result, error) {
	for {
		if err := ctx.Err(); err != nil {
			e.logger.Warn("run cancelled", "thread", s.ThreadID)
			return Result{}, err
		}
		switch node := route(s); node {
		case nodePlanner:
			turn = nil
			u, err := e.planner(ctx, s)
			if err != nil {
				return Result{}, err
			}
			s.Merge(u)
			e.checkpoint(ctx, s, nodePlanner)

		case nodeTools:
			if turn == nil {
				turn = newToolTurn()
			}
			u, intr, err := e.toolsNode(ctx, s, turn)
			if err != nil {
				return Result{}, err
			}
			if intr != nil {
				return Result{}, e.interruptRun(s, turn, *intr)
			}
			s.Merge(u)
			e.checkpoint(ctx, s, nodeTools)
			turn = nil

		case nodeFinalizer:
			u, output, err := e.finalize(ctx, s)
			if err != nil {
				return Result{}, err
			}
			s.Merge(u)
			e.checkpoint(ctx, s, nodeFinalizer)
			e.logger.Info("run finished", "thread", s.ThreadID, "loops", s.Loops)
			return Result{Output: output, State: s}, nil

		default:
			return Result{}, fmt.Errorf("router produced unknown node %q", node)
		}
	}
}

// interruptRun wraps a tools-node interrupt into an ErrInterrupted whose
// resume closure re-enters drive with the host's answer recorded on the
// in-flight tool turn. The snapshot is a deep copy: the host may discard the
// interrupt without corrupting the checkpointed session.
func (e *Engine) interruptRun(s *State, turn *toolTurn, payload Interrupt) *ErrInterrupted {
	snapshot := s.Clone()
	e.logger.Info("run interrupted",
		"thread", s.ThreadID, "kind", payload.Kind, "tool", payload.Tool)
	return newInterrupted(nodeTools, payload, func(ctx context.Context, answer json.RawMessage) (Result, error) {
		turn.deliver(payload, answer)
		runCtx, cancel := e.turnContext(ctx)
		defer cancel()
		return e.drive(runCtx, snapshot, turn)
	})
}

// checkpoint persists the state after a node transition. Persistence
// failures are logged, not fatal: the session continues on live state.
func (e *Engine) checkpoint(ctx context.Context, s *State, node string) {
	if err := e.cp.Put(ctx, s.ThreadID, node, s); err != nil {
		e.logger.Warn("checkpoint failed", "thread", s.ThreadID, "node", node, "error", err)
	}
}
