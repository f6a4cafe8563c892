// Package transfer moves binders in and out of the application as portable
// JSON documents, optionally sealed with a passphrase.
package transfer

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ramonehamilton/binder-companion/internal/binder"
	"github.com/ramonehamilton/binder-companion/internal/binder/clipboard"
	"github.com/ramonehamilton/binder-companion/internal/binder/history"
)

// Format identifies the document layout.
const Format = "binder-companion/v1"

// Document is the exported form of a binder.
type Document struct {
	Format     string           `json:"format"`
	ExportedAt time.Time        `json:"exportedAt"`
	Binder     *binder.Binder   `json:"binder"`
	Clipboard  []clipboard.Item `json:"clipboard,omitempty"`
	History    *Journal         `json:"history,omitempty"`
}

// Journal is an exported undo history.
type Journal struct {
	Entries []history.Entry `json:"entries"`
	Cursor  int             `json:"cursor"`
}

// ExportOptions selects what travels with the binder.
type ExportOptions struct {
	Clipboard []clipboard.Item
	History   *history.History
}

// Export renders a binder as an indented JSON document.
func Export(b *binder.Binder, opts ExportOptions) ([]byte, error) {
	if b == nil {
		return nil, fmt.Errorf("binder is required")
	}
	if err := b.Validate(); err != nil {
		return nil, fmt.Errorf("refusing to export invalid binder %s: %w", b.ID, err)
	}

	doc := Document{
		Format:     Format,
		ExportedAt: time.Now().UTC(),
		Binder:     b,
		Clipboard:  opts.Clipboard,
	}
	if opts.History != nil && opts.History.Len() > 0 {
		doc.History = &Journal{
			Entries: opts.History.Entries(),
			Cursor:  opts.History.Cursor(),
		}
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode export document: %w", err)
	}
	return data, nil
}
