package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/nevindra/axon"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := New(filepath.Join(t.TempDir(), "axon.db"))
	t.Cleanup(func() { s.Close() })
	if err := s.Init(context.Background()); err != nil {
		t.Fatal(err)
	}
	return s
}

func TestPutGetRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	state := &axon.State{ContextID: axon.ContextMain, Loops: 2}
	state.Messages = append(state.Messages,
		axon.UserMessage("hello"),
		axon.AssistantMessage("hi"),
	)
	if err := s.Put(ctx, "t1", "planner", state); err != nil {
		t.Fatal(err)
	}

	got, err := s.Get(ctx, "t1")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.Loops != 2 || len(got.Messages) != 2 {
		t.Fatalf("snapshot = %+v", got)
	}
	if got.Messages[0].Content != "hello" {
		t.Errorf("message = %+v", got.Messages[0])
	}
}

func TestPutOverwritesPerThread(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Put(ctx, "t1", "input", &axon.State{ContextID: axon.ContextMain, Loops: 1}); err != nil {
		t.Fatal(err)
	}
	if err := s.Put(ctx, "t1", "tools", &axon.State{ContextID: axon.ContextMain, Loops: 7}); err != nil {
		t.Fatal(err)
	}

	got, err := s.Get(ctx, "t1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Loops != 7 {
		t.Errorf("loops = %d, want latest snapshot", got.Loops)
	}
}

func TestGetMissingThread(t *testing.T) {
	s := newTestStore(t)
	got, err := s.Get(context.Background(), "nope")
	if err != nil || got != nil {
		t.Errorf("got %+v, %v; want nil, nil", got, err)
	}
}

func TestDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Put(ctx, "t1", "input", &axon.State{ContextID: axon.ContextMain}); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete(ctx, "t1"); err != nil {
		t.Fatal(err)
	}
	got, err := s.Get(ctx, "t1")
	if err != nil || got != nil {
		t.Errorf("got %+v, %v after delete", got, err)
	}
	// Deleting again is a no-op.
	if err := s.Delete(ctx, "t1"); err != nil {
		t.Errorf("second delete: %v", err)
	}
}
