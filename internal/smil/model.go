// Package smil holds the immutable timing structure of a narrated book:
// ordered sections, each with an ordered sequence of timed text/audio
// entries, plus the lookup helpers the playback engine navigates with.
package smil

// Entry is one timed text-to-audio unit within a section.
//
// Invariants: entries within a section are time-ordered and
// non-overlapping, End > Begin, and CumSumAtEnd is monotonically
// non-decreasing across the flattened entry sequence of the book.
type Entry struct {
	// TextID is the fragment identifier into the section's HTML.
	TextID string

	// TextHref is the document path containing that fragment. Usually
	// equals the owning section's ID, but may differ in edge cases.
	TextHref string

	// AudioFile is the relative path to the audio asset covering this entry.
	AudioFile string

	// Begin and End are seconds within that audio file.
	Begin float64
	End   float64

	// CumSumAtEnd is the cumulative elapsed seconds across the whole
	// book at the end of this entry. Lets book-level progress be
	// computed without re-summing.
	CumSumAtEnd float64
}

// Duration returns the entry's length in seconds.
func (e Entry) Duration() float64 {
	return e.End - e.Begin
}

// SectionInfo is one chapter/section of a book. Immutable once loaded.
type SectionInfo struct {
	// Index is the 0-based position in the book.
	Index int

	// ID is the stable href identifying the section's text document.
	ID string

	// Label is an optional display title.
	Label string

	// Level is an optional outline depth.
	Level int

	// MediaOverlay is the ordered list of timed entries. Empty for
	// sections without narration (e.g. front matter).
	MediaOverlay []Entry
}

// Narrated reports whether the section has any timed entries.
func (s SectionInfo) Narrated() bool {
	return len(s.MediaOverlay) > 0
}

// Duration returns the narrated length of the section in seconds.
func (s SectionInfo) Duration() float64 {
	var total float64
	for _, e := range s.MediaOverlay {
		total += e.Duration()
	}
	return total
}
