package axon

import (
	"errors"
	"fmt"
	"strings"
)

// ErrLLM is a provider-level failure with enough context for retry policy.
type ErrLLM struct {
	Provider string
	Message  string
	// Transient marks timeouts and 5xx-class failures eligible for retry.
	Transient bool
	// ContextOverflow marks provider-reported context-length errors, which
	// trigger a forced compression pass instead of a retry.
	ContextOverflow bool
}

func (e *ErrLLM) Error() string {
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

// ErrHTTP is a raw transport failure surfaced by provider clients.
type ErrHTTP struct {
	Status int
	Body   string
}

func (e *ErrHTTP) Error() string {
	return fmt.Sprintf("http %d: %s", e.Status, e.Body)
}

// overflowMarkers are substrings providers use to report context-length
// exhaustion. Checked case-insensitively as a fallback when the provider
// client does not set ErrLLM.ContextOverflow itself.
var overflowMarkers = []string{
	"context_length_exceeded",
	"context length",
	"maximum context",
	"input is too long",
	"prompt is too long",
}

// isContextOverflow reports whether err looks like a provider context-length
// error.
func isContextOverflow(err error) bool {
	if err == nil {
		return false
	}
	var llmErr *ErrLLM
	if errors.As(err, &llmErr) && llmErr.ContextOverflow {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range overflowMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// isTransient reports whether err is a retryable provider failure
// (timeout, 429, 5xx).
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	var llmErr *ErrLLM
	if errors.As(err, &llmErr) && llmErr.Transient {
		return true
	}
	var httpErr *ErrHTTP
	if errors.As(err, &httpErr) {
		return httpErr.Status == 429 || httpErr.Status >= 500
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded")
}
