// Package binder holds the binder data model and the mutators that keep its
// position map consistent: placement, removal, insert-shift moves, page
// reordering, and page growth.
package binder

import (
	"fmt"
	"strings"
	"time"
)

// Identity is what makes two card references the same binder entry.
// The same catalog card with and without the reverse-holo variant are
// distinct entries.
type Identity struct {
	CardID        string `json:"cardId"`
	IsReverseHolo bool   `json:"isReverseHolo"`
}

// String renders the identity as "cardId" or "cardId (reverse)".
func (id Identity) String() string {
	if id.IsReverseHolo {
		return id.CardID + " (reverse)"
	}
	return id.CardID
}

// CardRef is a reference to a catalog card placed (or about to be placed) in a binder.
// A CardRef is never modified once placed.
type CardRef struct {
	CardID        string    `json:"cardId"`
	IsReverseHolo bool      `json:"isReverseHolo"`
	AddedAt       time.Time `json:"addedAt"`
}

// NewCardRef creates a card reference stamped with the current time.
func NewCardRef(cardID string, reverseHolo bool) CardRef {
	return CardRef{
		CardID:        cardID,
		IsReverseHolo: reverseHolo,
		AddedAt:       time.Now().UTC(),
	}
}

// Identity returns the (cardId, isReverseHolo) pair.
func (c CardRef) Identity() Identity {
	return Identity{CardID: c.CardID, IsReverseHolo: c.IsReverseHolo}
}

// Validate checks that the reference is well-formed.
func (c CardRef) Validate() error {
	if c.CardID == "" {
		return fmt.Errorf("card id is empty")
	}
	if strings.TrimSpace(c.CardID) != c.CardID {
		return fmt.Errorf("card id %q has surrounding whitespace", c.CardID)
	}
	return nil
}

// CardDetails is the catalog data for one card. Catalog entries never change
// once published, so details may be cached indefinitely.
type CardDetails struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Number    string   `json:"number"`
	SetID     string   `json:"setId,omitempty"`
	SetName   string   `json:"setName,omitempty"`
	Rarity    string   `json:"rarity,omitempty"`
	Supertype string   `json:"supertype,omitempty"`
	Types     []string `json:"types,omitempty"`
	ImageURL  string   `json:"imageUrl,omitempty"`

	// Placeholder is set when the catalog could not be reached and the
	// details only carry the card id.
	Placeholder bool `json:"placeholder,omitempty"`
}

// PlaceholderDetails stands in for a card the catalog could not describe.
func PlaceholderDetails(cardID string) *CardDetails {
	return &CardDetails{ID: cardID, Name: cardID, Placeholder: true}
}
