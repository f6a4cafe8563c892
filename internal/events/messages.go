package events

import (
	"time"

	"github.com/ramonehamilton/binder-companion/internal/binder"
)

// StaleEvent is the payload for binder:stale. The remote copy is newer than
// the one the session shows; the UI decides whether to adopt it.
type StaleEvent struct {
	LocalVersion     int64          `json:"localVersion"`
	RemoteVersion    int64          `json:"remoteVersion"`
	RemoteModifiedAt time.Time      `json:"remoteModifiedAt"`
	Remote           *binder.Binder `json:"remote,omitempty"`
}

// SyncedEvent is the payload for binder:synced. Delta is what the session
// must apply to the copy it pushed to match Remote.
type SyncedEvent struct {
	Version   int64          `json:"version"`
	Retries   int            `json:"retries"`
	Conflicts []int          `json:"conflicts,omitempty"` // positions where the remote won
	Dropped   int            `json:"dropped"`             // local placements dropped as duplicates
	Duration  int64          `json:"duration"`            // milliseconds
	Delta     binder.Diff    `json:"delta"`
	Remote    *binder.Binder `json:"-"`
}

// ConflictEvent is the payload for binder:conflict. Positions lists the
// slots where the remote change won over a local one.
type ConflictEvent struct {
	ExpectedVersion int64 `json:"expectedVersion"`
	CurrentVersion  int64 `json:"currentVersion"`
	Positions       []int `json:"positions,omitempty"`
}

// ChangedEvent is the payload for binder:changed, sent after every committed
// transition.
type ChangedEvent struct {
	Description string `json:"description"`
	CardCount   int    `json:"cardCount"`
	PageCount   int    `json:"pageCount"`
	CanUndo     bool   `json:"canUndo"`
	CanRedo     bool   `json:"canRedo"`
}

// PagesAddedEvent is the payload for binder:pages-added.
type PagesAddedEvent struct {
	Added     int `json:"added"`
	PageCount int `json:"pageCount"`
}

// AutoSortDisabledEvent is the payload for binder:autosort-disabled, sent when
// a manual move switches a sorted binder to custom order.
type AutoSortDisabledEvent struct {
	PreviousStrategy binder.SortStrategy `json:"previousStrategy"`
}

// SyncFailedEvent is the payload for sync:failed.
type SyncFailedEvent struct {
	Error   string `json:"error"`
	Retries int    `json:"retries"`
}

// CatalogUnavailableEvent is the payload for catalog:unavailable.
type CatalogUnavailableEvent struct {
	CardID string `json:"cardId"`
	Error  string `json:"error"`
}
