// Package remote holds the slower, shared copy of each binder and the
// adapters that reach it: an in-memory store, a shared directory, and an
// HTTP document server with its client.
package remote

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ramonehamilton/binder-companion/internal/binder"
)

var (
	// ErrNotFound is returned when the remote has no copy of a binder.
	ErrNotFound = errors.New("binder not found in remote store")

	// ErrInvalidPatch is returned when a diff cannot be applied to the
	// remote copy. Retrying the same diff will not help.
	ErrInvalidPatch = errors.New("invalid binder patch")
)

// Snapshot is a binder as the remote stores it at one version.
type Snapshot struct {
	Version    int64          `json:"version"`
	ModifiedAt time.Time      `json:"modifiedAt"`
	Binder     *binder.Binder `json:"binder"`
}

func newSnapshot(b *binder.Binder) *Snapshot {
	return &Snapshot{Version: b.Version, ModifiedAt: b.ModifiedAt, Binder: b.Clone()}
}

// Store is the remote persistence the reconciler writes through.
type Store interface {
	// Fetch returns the current snapshot or ErrNotFound.
	Fetch(ctx context.Context, id string) (*Snapshot, error)

	// Patch applies diff if the remote is still at expectedVersion and
	// returns the new snapshot. A binder that does not exist yet is at
	// version 0. A version mismatch returns a *ConflictError.
	Patch(ctx context.Context, id string, diff binder.Diff, expectedVersion int64) (*Snapshot, error)

	// Delete removes the remote copy. Deleting a missing binder is not an error.
	Delete(ctx context.Context, id string) error
}

// Watcher is implemented by stores that can report changes made by other
// writers. The channel carries binder ids and closes when ctx ends.
type Watcher interface {
	Watch(ctx context.Context) (<-chan string, error)
}

// ConflictError reports that the remote moved past the version a patch was
// computed against.
type ConflictError struct {
	BinderID string `json:"binderId"`
	Expected int64  `json:"expected"`
	Current  int64  `json:"current"`
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("binder %s: expected version %d, remote is at %d", e.BinderID, e.Expected, e.Current)
}

// Is makes a ConflictError match binder.ErrConflictingVersion.
func (e *ConflictError) Is(target error) bool {
	return target == binder.ErrConflictingVersion
}

// applyPatch is the version check and merge every store performs under its
// own lock. current is nil when the binder does not exist.
func applyPatch(id string, current *binder.Binder, diff binder.Diff, expected int64, now time.Time) (*binder.Binder, error) {
	var currentVersion int64
	if current != nil {
		currentVersion = current.Version
	}
	if expected != currentVersion {
		return nil, &ConflictError{BinderID: id, Expected: expected, Current: currentVersion}
	}

	base := current
	if base == nil {
		if diff.Settings == nil {
			return nil, fmt.Errorf("%w: first write of %s carries no settings", ErrInvalidPatch, id)
		}
		base = &binder.Binder{
			ID:       id,
			Settings: diff.Settings.Clone(),
			Cards:    binder.NewPositionMap(),
		}
	}

	next, err := binder.ApplyDiff(base, diff)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPatch, err)
	}
	next.ID = id
	if err := next.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPatch, err)
	}

	next.Version = currentVersion + 1
	next.ModifiedAt = now.UTC()
	return next, nil
}
