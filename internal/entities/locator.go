package entities

// Locator is a portable description of a position within a book,
// independent of any playback engine's internal indices. It is the
// wire and storage format exchanged with the remote progress store
// and the local cache.
//
// Every field besides Href is optional; consumers must degrade
// gracefully when a field is absent (fall back to TotalProgression).
type Locator struct {
	// Href is the path of the document the position falls in,
	// e.g. "OEBPS/ch1.xhtml".
	Href string `json:"href"`

	// Fragment is an optional fragment identifier into the document,
	// e.g. a paragraph id carried by a media-overlay entry.
	Fragment string `json:"fragment,omitempty"`

	// Progression is the 0-1 fraction within the chapter.
	Progression float64 `json:"progression,omitempty"`

	// TotalProgression is the 0-1 fraction within the whole book.
	TotalProgression float64 `json:"totalProgression,omitempty"`

	// CFI is an optional EPUB Canonical Fragment Identifier carried
	// for non-media-overlay readers. Opaque to this codebase.
	CFI string `json:"cfi,omitempty"`
}

// HasFragment reports whether the locator carries a resolvable fragment.
func (l Locator) HasFragment() bool {
	return l.Fragment != ""
}
