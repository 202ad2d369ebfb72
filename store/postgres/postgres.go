// Package postgres implements axon.Checkpointer using PostgreSQL.
//
// Store accepts an externally-owned *pgxpool.Pool via constructor injection.
// The caller creates and closes the pool.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nevindra/axon"
)

// Store implements axon.Checkpointer backed by PostgreSQL. Each thread keeps
// one row holding the latest state snapshot as JSONB plus the node label that
// produced it; history is deliberately not kept (the session log inside the
// state is the history).
type Store struct {
	pool *pgxpool.Pool
}

var _ axon.Checkpointer = (*Store)(nil)

// New creates a Store using an existing pgxpool.Pool.
// The caller owns the pool and is responsible for closing it.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Init creates the checkpoint table.
func (s *Store) Init(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS checkpoints (
		thread_id TEXT PRIMARY KEY,
		node TEXT NOT NULL,
		state JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`)
	if err != nil {
		return fmt.Errorf("create checkpoints table: %w", err)
	}
	return nil
}

// Put stores the latest state snapshot for the thread.
func (s *Store) Put(ctx context.Context, threadID, node string, state *axon.State) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO checkpoints (thread_id, node, state, updated_at)
		 VALUES ($1, $2, $3, now())
		 ON CONFLICT (thread_id) DO UPDATE SET
		   node = EXCLUDED.node,
		   state = EXCLUDED.state,
		   updated_at = now()`,
		threadID, node, data)
	if err != nil {
		return fmt.Errorf("put checkpoint: %w", err)
	}
	return nil
}

// Get loads the latest snapshot for the thread, or nil when none exists.
func (s *Store) Get(ctx context.Context, threadID string) (*axon.State, error) {
	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT state FROM checkpoints WHERE thread_id = $1`, threadID).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get checkpoint: %w", err)
	}
	var state axon.State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	return &state, nil
}

// Delete removes the thread's checkpoint. Deleting a missing thread is a
// no-op.
func (s *Store) Delete(ctx context.Context, threadID string) error {
	if _, err := s.pool.Exec(ctx,
		`DELETE FROM checkpoints WHERE thread_id = $1`, threadID); err != nil {
		return fmt.Errorf("delete checkpoint: %w", err)
	}
	return nil
}
