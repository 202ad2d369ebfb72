package axon

// Node names, used for routing and checkpoint labels.
const (
	nodePlanner   = "planner"
	nodeTools     = "tools"
	nodeFinalizer = "finalizer"
)

// pendingToolCalls returns the tool calls of the latest message when it is an
// assistant message with calls not yet answered.
func pendingToolCalls(s *State) []ToolCall {
	last := s.LastMessage()
	if last.Role != RoleAssistant || len(last.ToolCalls) == 0 {
		return nil
	}
	return last.ToolCalls
}

// route is the pure routing function: state in, next node out.
//
//   - pending tool calls on the latest assistant message go to the tools
//     node, unless the loop budget is exhausted (then the finalizer is forced
//     and the calls are skipped);
//   - a content-only assistant message as the latest entry finalizes;
//   - anything else (fresh input, completed tool batch, compression notice)
//     re-enters the planner, budget permitting.
func route(s *State) string {
	if len(pendingToolCalls(s)) > 0 {
		if s.Loops >= s.MaxLoops {
			return nodeFinalizer
		}
		return nodeTools
	}
	if s.Loops >= s.MaxLoops {
		return nodeFinalizer
	}
	last := s.LastMessage()
	if last.Role == RoleAssistant {
		return nodeFinalizer
	}
	return nodePlanner
}
