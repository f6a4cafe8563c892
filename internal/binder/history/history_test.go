package history

import (
	"errors"
	"fmt"
	"testing"

	"github.com/ramonehamilton/binder-companion/internal/binder"
)

func stateWith(t *testing.T, n int) binder.State {
	t.Helper()
	b := binder.New("History", binder.MustGrid(binder.Grid3x3))
	for i := 0; i < n; i++ {
		if err := b.Cards.Set(i, binder.NewCardRef(fmt.Sprintf("sv5-%d", i), false)); err != nil {
			t.Fatalf("Failed to set card: %v", err)
		}
	}
	return b.Snapshot()
}

func TestHistory_UndoRestoresEveryStep(t *testing.T) {
	h := New(10)
	h.Record("Open", stateWith(t, 0))
	for i := 1; i <= 4; i++ {
		h.Record(fmt.Sprintf("Add %d", i), stateWith(t, i))
	}

	for want := 3; want >= 0; want-- {
		s, err := h.Undo()
		if err != nil {
			t.Fatalf("Undo failed: %v", err)
		}
		if s.Cards.Len() != want {
			t.Errorf("Expected %d cards after undo, got %d", want, s.Cards.Len())
		}
	}

	if _, err := h.Undo(); !errors.Is(err, binder.ErrNothingToUndo) {
		t.Errorf("Expected ErrNothingToUndo, got %v", err)
	}
	if !h.CanRedo() {
		t.Error("Expected redo to be available")
	}

	s, err := h.Redo()
	if err != nil {
		t.Fatalf("Redo failed: %v", err)
	}
	if s.Cards.Len() != 1 {
		t.Errorf("Expected 1 card after redo, got %d", s.Cards.Len())
	}
}

func TestHistory_RecordAfterUndoPrunesRedo(t *testing.T) {
	h := New(10)
	h.Record("Open", stateWith(t, 0))
	h.Record("Add 1", stateWith(t, 1))
	h.Record("Add 2", stateWith(t, 2))

	if _, err := h.Undo(); err != nil {
		t.Fatalf("Undo failed: %v", err)
	}
	h.Record("Add other", stateWith(t, 3))

	if h.CanRedo() {
		t.Error("Redo should be unavailable after a new record")
	}
	if _, err := h.Redo(); !errors.Is(err, binder.ErrNothingToRedo) {
		t.Errorf("Expected ErrNothingToRedo, got %v", err)
	}
	if h.Len() != 3 {
		t.Errorf("Expected 3 entries, got %d", h.Len())
	}
}

func TestHistory_EvictsOldest(t *testing.T) {
	h := New(3)
	var ids []int64
	for i := 0; i < 5; i++ {
		ids = append(ids, h.Record(fmt.Sprintf("Step %d", i), stateWith(t, i)).ID)
	}

	if h.Len() != 3 {
		t.Fatalf("Expected 3 entries, got %d", h.Len())
	}
	if h.Cursor() != 2 {
		t.Errorf("Expected cursor 2, got %d", h.Cursor())
	}
	entries := h.Entries()
	if entries[0].ID != ids[2] {
		t.Errorf("Expected oldest kept id %d, got %d", ids[2], entries[0].ID)
	}

	if _, err := h.RevertTo(ids[0]); !errors.Is(err, ErrEntryNotFound) {
		t.Errorf("Expected ErrEntryNotFound for evicted id, got %v", err)
	}
}

func TestHistory_RevertToIsNavigation(t *testing.T) {
	h := New(10)
	first := h.Record("Open", stateWith(t, 0))
	h.Record("Add 1", stateWith(t, 1))
	h.Record("Add 2", stateWith(t, 2))

	s, err := h.RevertTo(first.ID)
	if err != nil {
		t.Fatalf("RevertTo failed: %v", err)
	}
	if s.Cards.Len() != 0 {
		t.Errorf("Expected empty snapshot, got %d cards", s.Cards.Len())
	}
	if h.Len() != 3 {
		t.Errorf("RevertTo changed the entry count to %d", h.Len())
	}
	if !h.CanRedo() || h.CanUndo() {
		t.Error("Expected redo only after reverting to the first entry")
	}
}

func TestRestore(t *testing.T) {
	h := New(10)
	h.Record("Open", stateWith(t, 0))
	h.Record("Add 1", stateWith(t, 1))
	h.Record("Add 2", stateWith(t, 2))
	h.Undo()

	restored, err := Restore(h.Entries(), h.Cursor(), 10)
	if err != nil {
		t.Fatalf("Restore failed: %v", err)
	}
	if restored.Cursor() != 1 || !restored.CanRedo() {
		t.Errorf("Restored cursor %d, canRedo %v", restored.Cursor(), restored.CanRedo())
	}
	next := restored.Record("Add 3", stateWith(t, 3))
	if next.ID != 4 {
		t.Errorf("Expected next id 4, got %d", next.ID)
	}

	if _, err := Restore(h.Entries(), 7, 10); err == nil {
		t.Error("Expected error for cursor outside entries")
	}
}

func TestHistory_Empty(t *testing.T) {
	h := New(0)
	if h.MaxDepth() != DefaultMaxDepth {
		t.Errorf("Expected default depth, got %d", h.MaxDepth())
	}
	if h.CanUndo() || h.CanRedo() {
		t.Error("Empty history should not undo or redo")
	}
	if _, ok := h.Current(); ok {
		t.Error("Empty history has no current entry")
	}
}
