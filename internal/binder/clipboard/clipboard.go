// Package clipboard is the small staging area for cards lifted out of a
// binder or picked from search results before they are placed.
package clipboard

import (
	"fmt"
	"time"

	"github.com/ramonehamilton/binder-companion/internal/binder"
)

// Capacity is the maximum number of staged cards.
const Capacity = 5

// Item is one staged card.
type Item struct {
	Card             binder.CardRef `json:"card"`
	ClipboardAddedAt time.Time      `json:"clipboardAddedAt"`
}

// Clipboard is an ordered, bounded list of unique cards. It is owned by one
// editing session and is not safe for concurrent use.
type Clipboard struct {
	items []Item
}

// New returns an empty clipboard.
func New() *Clipboard {
	return &Clipboard{}
}

// FromItems rebuilds a clipboard from stored items, skipping duplicates and
// anything beyond capacity.
func FromItems(items []Item) *Clipboard {
	c := New()
	for _, item := range items {
		if len(c.items) >= Capacity || c.Contains(item.Card.Identity()) {
			continue
		}
		c.items = append(c.items, item)
	}
	return c
}

// Add appends ref. It returns false, leaving the clipboard unchanged, when
// the clipboard is full or already holds the identity.
func (c *Clipboard) Add(ref binder.CardRef) bool {
	return c.TryAdd(ref) == nil
}

// TryAdd is Add with the reason for a refusal.
func (c *Clipboard) TryAdd(ref binder.CardRef) error {
	if err := ref.Validate(); err != nil {
		return err
	}
	if c.Contains(ref.Identity()) {
		return fmt.Errorf("%w: %s is already on the clipboard", binder.ErrDuplicateEntry, ref.Identity())
	}
	if len(c.items) >= Capacity {
		return binder.ErrClipboardFull
	}
	c.items = append(c.items, Item{Card: ref, ClipboardAddedAt: time.Now().UTC()})
	return nil
}

// Remove drops the item at index and returns it.
func (c *Clipboard) Remove(index int) (Item, error) {
	if index < 0 || index >= len(c.items) {
		return Item{}, fmt.Errorf("%w: clipboard index %d", binder.ErrOutOfRange, index)
	}
	item := c.items[index]
	c.items = append(c.items[:index], c.items[index+1:]...)
	return item, nil
}

// Get returns the item at index.
func (c *Clipboard) Get(index int) (Item, error) {
	if index < 0 || index >= len(c.items) {
		return Item{}, fmt.Errorf("%w: clipboard index %d", binder.ErrOutOfRange, index)
	}
	return c.items[index], nil
}

// Clear empties the clipboard.
func (c *Clipboard) Clear() {
	c.items = nil
}

// Contains reports whether the identity is staged.
func (c *Clipboard) Contains(id binder.Identity) bool {
	return c.IndexOf(id) >= 0
}

// IndexOf returns the index of the identity, or -1.
func (c *Clipboard) IndexOf(id binder.Identity) int {
	for i, item := range c.items {
		if item.Card.Identity() == id {
			return i
		}
	}
	return -1
}

// Len returns the number of staged cards.
func (c *Clipboard) Len() int {
	return len(c.items)
}

// Full reports whether another card can be added.
func (c *Clipboard) Full() bool {
	return len(c.items) >= Capacity
}

// Items returns a copy of the staged cards in insertion order.
func (c *Clipboard) Items() []Item {
	return append([]Item(nil), c.items...)
}
