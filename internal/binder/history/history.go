// Package history keeps the linear undo/redo log of a binder's committed
// states.
//
// Entries live in an arena ordered oldest first and are addressed by a
// monotonically increasing id. A single cursor marks the entry that matches
// the binder's current state.
package history

import (
	"errors"
	"fmt"
	"time"

	"github.com/ramonehamilton/binder-companion/internal/binder"
)

// DefaultMaxDepth is used when no depth is configured.
const DefaultMaxDepth = 50

// ErrEntryNotFound is returned by RevertTo for unknown or evicted ids.
var ErrEntryNotFound = errors.New("history entry not found")

// Entry is one recorded state.
type Entry struct {
	ID          int64        `json:"id"`
	Timestamp   time.Time    `json:"timestamp"`
	Description string       `json:"description"`
	Snapshot    binder.State `json:"snapshot"`
}

// History is not safe for concurrent use; the editing session serializes access.
type History struct {
	entries  []Entry
	cursor   int
	nextID   int64
	maxDepth int
}

// New returns an empty history that keeps at most maxDepth entries.
func New(maxDepth int) *History {
	if maxDepth < 1 {
		maxDepth = DefaultMaxDepth
	}
	return &History{cursor: -1, nextID: 1, maxDepth: maxDepth}
}

// Restore rebuilds a history from persisted entries and cursor. Entries must
// be ordered by ascending id.
func Restore(entries []Entry, cursor int, maxDepth int) (*History, error) {
	h := New(maxDepth)
	if len(entries) == 0 {
		return h, nil
	}
	if cursor < 0 || cursor >= len(entries) {
		return nil, fmt.Errorf("history cursor %d outside %d entries", cursor, len(entries))
	}
	for i := 1; i < len(entries); i++ {
		if entries[i].ID <= entries[i-1].ID {
			return nil, fmt.Errorf("history entries are not ordered by id")
		}
	}

	h.entries = append([]Entry(nil), entries...)
	h.cursor = cursor
	h.nextID = entries[len(entries)-1].ID + 1
	for len(h.entries) > h.maxDepth {
		h.evict()
	}
	return h, nil
}

// Record pushes a new entry after the cursor. Entries after the cursor (the
// redo branch) are discarded and the oldest entry is evicted once the depth
// limit is exceeded.
func (h *History) Record(description string, snapshot binder.State) Entry {
	h.entries = h.entries[:h.cursor+1]

	entry := Entry{
		ID:          h.nextID,
		Timestamp:   time.Now().UTC(),
		Description: description,
		Snapshot:    snapshot,
	}
	h.nextID++
	h.entries = append(h.entries, entry)
	h.cursor = len(h.entries) - 1

	for len(h.entries) > h.maxDepth {
		h.evict()
	}
	return entry
}

func (h *History) evict() {
	h.entries[0] = Entry{}
	h.entries = h.entries[1:]
	h.cursor--
	if h.cursor < 0 {
		h.cursor = 0
	}
}

// Undo moves the cursor back one entry and returns that entry's snapshot.
func (h *History) Undo() (binder.State, error) {
	if !h.CanUndo() {
		return binder.State{}, binder.ErrNothingToUndo
	}
	h.cursor--
	return h.entries[h.cursor].Snapshot, nil
}

// Redo moves the cursor forward one entry and returns that entry's snapshot.
func (h *History) Redo() (binder.State, error) {
	if !h.CanRedo() {
		return binder.State{}, binder.ErrNothingToRedo
	}
	h.cursor++
	return h.entries[h.cursor].Snapshot, nil
}

// RevertTo jumps the cursor to an entry. It is a navigation, not a new
// mutation: later entries stay available for redo until the next Record.
func (h *History) RevertTo(id int64) (binder.State, error) {
	for i, entry := range h.entries {
		if entry.ID == id {
			h.cursor = i
			return entry.Snapshot, nil
		}
	}
	return binder.State{}, fmt.Errorf("%w: %d", ErrEntryNotFound, id)
}

// CanUndo reports whether an earlier entry exists.
func (h *History) CanUndo() bool {
	return h.cursor > 0
}

// CanRedo reports whether a later entry exists.
func (h *History) CanRedo() bool {
	return h.cursor >= 0 && h.cursor < len(h.entries)-1
}

// Current returns the entry at the cursor.
func (h *History) Current() (Entry, bool) {
	if h.cursor < 0 {
		return Entry{}, false
	}
	return h.entries[h.cursor], true
}

// Cursor returns the index of the current entry, or -1 when empty.
func (h *History) Cursor() int {
	return h.cursor
}

// Len returns the number of entries kept.
func (h *History) Len() int {
	return len(h.entries)
}

// MaxDepth returns the configured depth limit.
func (h *History) MaxDepth() int {
	return h.maxDepth
}

// Entries returns the entries, oldest first.
func (h *History) Entries() []Entry {
	return append([]Entry(nil), h.entries...)
}
