package models

import "time"

// Binder is a row of the binders table. Document holds the full binder as
// JSON; the other columns are copies used for listing without decoding it.
type Binder struct {
	ID            string
	Name          string
	Description   string
	GridSize      string
	PageCount     int
	CardCount     int
	Version       int64
	HistoryCursor int // -1 when no history is stored
	Document      []byte
	CreatedAt     time.Time
	ModifiedAt    time.Time
	UpdatedAt     time.Time
}

// BinderSummary is what listing returns.
type BinderSummary struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	GridSize   string    `json:"gridSize"`
	PageCount  int       `json:"pageCount"`
	CardCount  int       `json:"cardCount"`
	Version    int64     `json:"version"`
	ModifiedAt time.Time `json:"modifiedAt"`
}

// HistoryEntry is a row of the history_entries table. Snapshot is the JSON
// encoded cards and settings.
type HistoryEntry struct {
	BinderID    string
	EntryID     int64
	Seq         int
	Description string
	Snapshot    []byte
	CreatedAt   time.Time
}

// CatalogCard is a cached catalog response. Entries are immutable once
// published, so they never expire.
type CatalogCard struct {
	CardID    string
	Name      string
	Data      []byte
	FetchedAt time.Time
}
