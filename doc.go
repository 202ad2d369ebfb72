// Package axon is an agent execution runtime for Go: a small graph of
// planner, tool, and finalizer nodes driven over a shared session state.
//
// A session is a conversation thread with persistent state. Each user turn
// enters the planner, which calls the model with the visible tool set; tool
// calls run through the tools node under the HITL approval policy; the
// finalizer renders the closing response. The router is a pure function of
// state, so every turn is replayable from its checkpoints.
//
// # Quick Start
//
//	models := axon.ModelSet{Base: provider}
//	engine, err := axon.NewEngine(axon.Default(), models,
//		axon.WithCheckpointer(sqlite.New("axon.db")),
//	)
//	res, err := engine.Run(ctx, threadID, "Summarize the report @pdf-analysis")
//
// A run either completes with a Result or suspends with [ErrInterrupted]
// when a tool needs human approval or an answer; call Resume on it to
// continue.
//
// # Core Pieces
//
//   - [Engine] — the graph driver: Run, checkpointing, interrupts
//   - [State] and [Update] — session record and the node patch protocol
//   - [Provider] and [ModelSet] — LLM backends by role slot
//   - [ToolRegistry] — discovered vs enabled tools, on-demand loading
//   - [SkillRegistry] — SKILL.md packages surfaced in the system prompt
//   - [ApprovalPolicy] — YAML rules gating tool calls
//   - [Compressor] — context compression with a truncation fallback
//   - [Checkpointer] — state persistence (memory, store/sqlite, store/postgres)
//
// The observer package adds OTEL tracing and metrics; tools/workspace adds
// sandboxed file tools.
package axon
