package axon

import (
	"context"
	"sync"
)

// Checkpointer persists session state at node boundaries, keyed by thread id.
// Implementations must tolerate concurrent sessions on distinct thread ids.
// store/sqlite and store/postgres provide durable implementations.
type Checkpointer interface {
	// Put stores the state snapshot taken after the named node completed.
	Put(ctx context.Context, threadID, node string, state *State) error
	// Get returns the most recent snapshot for the thread, or nil when the
	// thread has no checkpoint.
	Get(ctx context.Context, threadID string) (*State, error)
	// Delete removes all checkpoints for the thread.
	Delete(ctx context.Context, threadID string) error
}

// MemoryCheckpointer keeps the latest snapshot per thread in memory. Suitable
// for tests and ephemeral sessions; production sessions use store/sqlite or
// store/postgres.
type MemoryCheckpointer struct {
	mu    sync.Mutex
	state map[string]*State
}

// NewMemoryCheckpointer creates an empty in-memory checkpointer.
func NewMemoryCheckpointer() *MemoryCheckpointer {
	return &MemoryCheckpointer{state: make(map[string]*State)}
}

// Put stores a deep copy so later session mutations never leak into the
// checkpoint.
func (c *MemoryCheckpointer) Put(_ context.Context, threadID, _ string, state *State) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state[threadID] = state.Clone()
	return nil
}

// Get returns a deep copy of the latest snapshot, or nil when absent.
func (c *MemoryCheckpointer) Get(_ context.Context, threadID string) (*State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.state[threadID]
	if !ok {
		return nil, nil
	}
	return s.Clone(), nil
}

// Delete removes the thread's snapshot.
func (c *MemoryCheckpointer) Delete(_ context.Context, threadID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.state, threadID)
	return nil
}
