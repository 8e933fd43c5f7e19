package smil

import (
	"path"
	"strings"
)

// FindSectionIndex resolves a possibly-legacy or differently-prefixed
// href to a section index. Matching rules, in order:
//
//  1. exact match on section ID;
//  2. suffix match ("/"+href) to tolerate absolute-vs-relative path
//     mismatches;
//  3. filename-only match with directory-suffix tolerance, to survive
//     locators generated before the path-prefixing convention changed.
//
// Returns (-1, false) if no section matches by any rule; callers must
// treat that as "position unrecoverable" and fall back to fractional
// progress.
func FindSectionIndex(href string, sections []SectionInfo) (int, bool) {
	if href == "" {
		return -1, false
	}

	for i, s := range sections {
		if s.ID == href {
			return i, true
		}
	}

	for i, s := range sections {
		if strings.HasSuffix(s.ID, "/"+href) {
			return i, true
		}
	}

	base := path.Base(href)
	dir := path.Dir(href)
	for i, s := range sections {
		if path.Base(s.ID) != base {
			continue
		}
		sdir := path.Dir(s.ID)
		if dir == "." || sdir == "." || strings.HasSuffix(sdir, dir) || strings.HasSuffix(dir, sdir) {
			return i, true
		}
	}

	return -1, false
}

// EntryIndexForTextID returns the index of the entry whose TextID
// matches, or (-1, false) if the section has no such entry.
func (s SectionInfo) EntryIndexForTextID(textID string) (int, bool) {
	for i, e := range s.MediaOverlay {
		if e.TextID == textID {
			return i, true
		}
	}
	return -1, false
}

// EntryIndexAtTime returns the index of the entry whose [Begin, End)
// range contains the given audio-file time, or (-1, false) if no entry
// in this section contains it.
func (s SectionInfo) EntryIndexAtTime(t float64) (int, bool) {
	for i, e := range s.MediaOverlay {
		if t >= e.Begin && t < e.End {
			return i, true
		}
	}
	return -1, false
}

// FirstNarratedSection returns the index of the first section with
// timed entries, or (-1, false) for a book with no narration at all.
func FirstNarratedSection(sections []SectionInfo) (int, bool) {
	for i, s := range sections {
		if s.Narrated() {
			return i, true
		}
	}
	return -1, false
}

// TotalDuration returns the narrated duration of the whole book in
// seconds, read off the last entry's cumulative sum.
func TotalDuration(sections []SectionInfo) float64 {
	for i := len(sections) - 1; i >= 0; i-- {
		if n := len(sections[i].MediaOverlay); n > 0 {
			return sections[i].MediaOverlay[n-1].CumSumAtEnd
		}
	}
	return 0
}

// EntryAtTotalProgression maps a 0-1 fraction of the whole book to the
// (section, entry) containing that moment. Used when a locator's
// fragment cannot be resolved and only TotalProgression remains.
func EntryAtTotalProgression(fraction float64, sections []SectionInfo) (sectionIdx, entryIdx int, ok bool) {
	total := TotalDuration(sections)
	if total <= 0 {
		return -1, -1, false
	}
	if fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}
	target := fraction * total

	for si, s := range sections {
		for ei, e := range s.MediaOverlay {
			if e.CumSumAtEnd >= target {
				return si, ei, true
			}
		}
	}

	// Floating-point slack at the very end of the book.
	for i := len(sections) - 1; i >= 0; i-- {
		if n := len(sections[i].MediaOverlay); n > 0 {
			return i, n - 1, true
		}
	}
	return -1, -1, false
}
