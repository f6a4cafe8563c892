package editor

import (
	"context"
	"fmt"

	"github.com/ramonehamilton/binder-companion/internal/binder"
)

// AddToClipboard stages a card, typically a catalog search result.
func (s *Session) AddToClipboard(ref binder.CardRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ref, err := stamp(ref)
	if err != nil {
		return err
	}
	if err := s.clip.TryAdd(ref); err != nil {
		return err
	}
	s.saveClipboard()
	return nil
}

// LiftToClipboard moves the card at position out of the binder and onto the
// clipboard. Nothing changes if the clipboard cannot take it.
func (s *Session) LiftToClipboard(ctx context.Context, position int) (binder.CardRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ref, ok := s.b.Cards.Get(position)
	if !ok {
		return binder.CardRef{}, fmt.Errorf("%w: no card at position %d", binder.ErrOutOfRange, position)
	}
	if s.clip.Full() {
		return binder.CardRef{}, binder.ErrClipboardFull
	}
	if s.clip.Contains(ref.Identity()) {
		return binder.CardRef{}, fmt.Errorf("%w: %s is already on the clipboard", binder.ErrDuplicateEntry, ref.Identity())
	}

	next, _ := binder.Remove(s.b, position)
	if err := s.commit(ctx, fmt.Sprintf("Move %s to clipboard", ref.Identity()), next); err != nil {
		return binder.CardRef{}, err
	}
	if err := s.clip.TryAdd(ref); err != nil {
		return binder.CardRef{}, err
	}
	s.saveClipboard()
	return ref, nil
}

// RemoveFromClipboard drops the staged card at index.
func (s *Session) RemoveFromClipboard(index int) (binder.CardRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, err := s.clip.Remove(index)
	if err != nil {
		return binder.CardRef{}, err
	}
	s.saveClipboard()
	return item.Card, nil
}

// ClearClipboard drops every staged card.
func (s *Session) ClearClipboard() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.clip.Clear()
	s.saveClipboard()
}

// AddToCurrentPage places the staged card at index into the first empty
// slot of the page being viewed. A full page returns ErrPageFull and the
// card stays on the clipboard.
func (s *Session) AddToCurrentPage(ctx context.Context, index int) (binder.Placement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, err := s.clip.Get(index)
	if err != nil {
		return binder.Placement{}, err
	}
	position, err := binder.FirstEmptyOnPage(s.b, s.page)
	if err != nil {
		return binder.Placement{}, err
	}
	next, placement, err := binder.Place(s.b, position, item.Card, s.placeOptions(false))
	if err != nil {
		return binder.Placement{}, err
	}
	if next, err = s.autoSort(ctx, next); err != nil {
		return binder.Placement{}, err
	}
	if err := s.commit(ctx, fmt.Sprintf("Place %s from clipboard", item.Card.Identity()), next); err != nil {
		return binder.Placement{}, err
	}

	if _, err := s.clip.Remove(index); err == nil {
		s.saveClipboard()
	}
	return placement, nil
}
