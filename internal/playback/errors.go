package playback

import "errors"

// ErrNoBookLoaded indicates an operation that requires a loaded book.
var ErrNoBookLoaded = errors.New("no book loaded")

// ErrNoNarration indicates a book with no timed entries in any section.
var ErrNoNarration = errors.New("book has no narrated sections")

// ErrEntryNotFound indicates a (section, entry) pair outside the book
// structure.
var ErrEntryNotFound = errors.New("entry not found")

// ErrFragmentNotFound indicates a text fragment with no timed entry in
// the given section.
var ErrFragmentNotFound = errors.New("fragment has no timed entry")
