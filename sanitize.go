package axon

// --- history sanitation ---
//
// Chat completion APIs reject an assistant message whose tool calls are not
// all answered by later tool messages. The sanitizer enforces that invariant
// on every history handed to a provider; the truncator shrinks the window
// without ever splitting a call/answer pair or dropping a system message.

// sanitizeHistory drops assistant messages with unanswered tool-call ids and
// tool messages whose call id has no owning assistant message earlier in the
// sequence. A clean history is returned as the same slice, unmodified.
func sanitizeHistory(messages []ChatMessage) []ChatMessage {
	// Collect every answered call id.
	answered := make(map[string]bool)
	for _, m := range messages {
		if m.Role == RoleTool && m.ToolCallID != "" {
			answered[m.ToolCallID] = true
		}
	}

	// First pass: find assistant messages to drop.
	drop := make(map[int]bool)
	owned := make(map[string]bool) // call ids owned by a retained assistant
	for i, m := range messages {
		if m.Role != RoleAssistant || len(m.ToolCalls) == 0 {
			continue
		}
		complete := true
		for _, tc := range m.ToolCalls {
			if !answered[tc.ID] {
				complete = false
				break
			}
		}
		if !complete {
			drop[i] = true
			continue
		}
		for _, tc := range m.ToolCalls {
			owned[tc.ID] = true
		}
	}

	// Second pass: drop orphaned tool messages.
	for i, m := range messages {
		if m.Role == RoleTool && m.ToolCallID != "" && !owned[m.ToolCallID] {
			drop[i] = true
		}
	}

	if len(drop) == 0 {
		return messages
	}
	out := make([]ChatMessage, 0, len(messages)-len(drop))
	for i, m := range messages {
		if !drop[i] {
			out = append(out, m)
		}
	}
	return out
}

// truncateHistory keeps the last max entries while preserving every system
// message and every assistant/tool-call pair: when a retained tool message's
// originating assistant message falls outside the window, the assistant is
// pulled in anyway. Histories at or under the limit are returned unchanged.
func truncateHistory(messages []ChatMessage, max int) []ChatMessage {
	if max <= 0 || len(messages) <= max {
		return messages
	}

	keep := make([]bool, len(messages))
	windowStart := len(messages) - max
	for i := range messages {
		if i >= windowStart || messages[i].Role == RoleSystem {
			keep[i] = true
		}
	}

	// Map call ids to their owning assistant index.
	owner := make(map[string]int)
	for i, m := range messages {
		if m.Role == RoleAssistant {
			for _, tc := range m.ToolCalls {
				owner[tc.ID] = i
			}
		}
	}

	// Pull in the assistant for every retained tool message.
	for i, m := range messages {
		if keep[i] && m.Role == RoleTool && m.ToolCallID != "" {
			if idx, ok := owner[m.ToolCallID]; ok {
				keep[idx] = true
			}
		}
	}

	out := make([]ChatMessage, 0, max)
	for i, m := range messages {
		if keep[i] {
			out = append(out, m)
		}
	}
	// Pulled-in assistants may still have answers that were cut; a final
	// sanitize pass restores the invariant.
	return sanitizeHistory(out)
}
