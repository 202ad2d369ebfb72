// Package sqlite implements axon.Checkpointer using pure-Go SQLite.
// Zero CGO required.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nevindra/axon"

	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// StoreOption configures a SQLite Store.
type StoreOption func(*Store)

// WithLogger sets a structured logger for the store.
func WithLogger(l *slog.Logger) StoreOption {
	return func(s *Store) { s.logger = l }
}

// Store implements axon.Checkpointer backed by a local SQLite file. Each
// thread keeps exactly one row holding the latest state snapshot as JSON plus
// the node label that produced it.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ axon.Checkpointer = (*Store)(nil)

// nopLogger discards all output.
var nopLogger = slog.New(discardHandler{})

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }

// New creates a Store using a local SQLite file at dbPath.
// A single shared connection serializes all goroutines through one
// connection, eliminating SQLITE_BUSY errors from concurrent writers.
func New(dbPath string, opts ...StoreOption) *Store {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		// sql.Open only fails when the driver is not registered; with the
		// blank import above that never happens.
		panic(fmt.Sprintf("sqlite: open driver: %v", err))
	}
	db.SetMaxOpenConns(1)
	s := &Store{db: db, logger: nopLogger}
	for _, o := range opts {
		o(s)
	}
	s.logger.Debug("sqlite: checkpointer opened", "path", dbPath)
	return s
}

// Init creates the checkpoint table.
func (s *Store) Init(ctx context.Context) error {
	ddl := `CREATE TABLE IF NOT EXISTS checkpoints (
		thread_id TEXT PRIMARY KEY,
		node TEXT NOT NULL,
		state TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	)`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
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
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO checkpoints (thread_id, node, state, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(thread_id) DO UPDATE SET
		   node = excluded.node,
		   state = excluded.state,
		   updated_at = excluded.updated_at`,
		threadID, node, string(data), axon.NowUnix())
	if err != nil {
		return fmt.Errorf("put checkpoint: %w", err)
	}
	s.logger.Debug("sqlite: checkpoint stored", "thread", threadID, "node", node)
	return nil
}

// Get loads the latest snapshot for the thread, or nil when none exists.
func (s *Store) Get(ctx context.Context, threadID string) (*axon.State, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT state FROM checkpoints WHERE thread_id = ?`, threadID).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get checkpoint: %w", err)
	}
	var state axon.State
	if err := json.Unmarshal([]byte(data), &state); err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	return &state, nil
}

// Delete removes the thread's checkpoint. Deleting a missing thread is a
// no-op.
func (s *Store) Delete(ctx context.Context, threadID string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM checkpoints WHERE thread_id = ?`, threadID); err != nil {
		return fmt.Errorf("delete checkpoint: %w", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
