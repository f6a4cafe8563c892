package binder

import "errors"

// Local, recoverable errors. They describe invalid requests; state is left
// untouched whenever one of them is returned.
var (
	ErrDuplicateEntry     = errors.New("card is already in the binder")
	ErrOutOfRange         = errors.New("position out of range")
	ErrSamePosition       = errors.New("source and destination are the same")
	ErrCoverPageImmutable = errors.New("the cover page cannot be moved")
	ErrPageFull           = errors.New("page has no empty slot")
	ErrClipboardFull      = errors.New("clipboard is full")
	ErrNothingToUndo      = errors.New("nothing to undo")
	ErrNothingToRedo      = errors.New("nothing to redo")
)

// Transient errors. The reconciler retries ConflictingVersion; catalog
// unavailability degrades to placeholder details.
var (
	ErrConflictingVersion = errors.New("remote binder version conflict")
	ErrCatalogUnavailable = errors.New("card catalog unavailable")
)

// ErrInvalidImportFormat aborts an import without applying anything.
var ErrInvalidImportFormat = errors.New("invalid import format")
