package smil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func twoChapterSections() []SectionInfo {
	return []SectionInfo{
		{
			Index: 0,
			ID:    "OEBPS/ch1.xhtml",
			MediaOverlay: []Entry{
				{TextID: "p0", TextHref: "OEBPS/ch1.xhtml", AudioFile: "audio1.mp3", Begin: 0, End: 5, CumSumAtEnd: 5},
				{TextID: "p1", TextHref: "OEBPS/ch1.xhtml", AudioFile: "audio1.mp3", Begin: 5, End: 9, CumSumAtEnd: 9},
			},
		},
		{
			Index: 1,
			ID:    "OEBPS/ch2.xhtml",
			MediaOverlay: []Entry{
				{TextID: "p0", TextHref: "OEBPS/ch2.xhtml", AudioFile: "audio2.mp3", Begin: 0, End: 4, CumSumAtEnd: 13},
			},
		},
	}
}

func TestFindSectionIndex_ExactMatch(t *testing.T) {
	sections := twoChapterSections()

	idx, ok := FindSectionIndex("OEBPS/ch1.xhtml", sections)
	require.True(t, ok)
	assert.Equal(t, 0, idx)
}

func TestFindSectionIndex_FilenameFallback(t *testing.T) {
	sections := twoChapterSections()

	idx, ok := FindSectionIndex("ch2.xhtml", sections)
	require.True(t, ok)
	assert.Equal(t, 1, idx)
}

func TestFindSectionIndex_SuffixMatch(t *testing.T) {
	sections := twoChapterSections()

	// Relative href against a prefixed section ID.
	idx, ok := FindSectionIndex("ch1.xhtml", sections)
	require.True(t, ok)
	assert.Equal(t, 0, idx)

	// Absolute-style href from an older locator still resolves.
	idx, ok = FindSectionIndex("/book/OEBPS/ch2.xhtml", sections)
	require.True(t, ok)
	assert.Equal(t, 1, idx)
}

func TestFindSectionIndex_DirectorySuffixTolerance(t *testing.T) {
	sections := []SectionInfo{
		{Index: 0, ID: "book/OEBPS/text/ch1.xhtml"},
	}

	// Older locators carried a shorter directory prefix.
	idx, ok := FindSectionIndex("text/ch1.xhtml", sections)
	require.True(t, ok)
	assert.Equal(t, 0, idx)
}

func TestFindSectionIndex_NoMatch(t *testing.T) {
	sections := twoChapterSections()

	idx, ok := FindSectionIndex("ch3.xhtml", sections)
	assert.False(t, ok)
	assert.Equal(t, -1, idx)
}

func TestFindSectionIndex_EmptyHref(t *testing.T) {
	_, ok := FindSectionIndex("", twoChapterSections())
	assert.False(t, ok)
}

func TestEntryIndexForTextID(t *testing.T) {
	s := twoChapterSections()[0]

	idx, ok := s.EntryIndexForTextID("p1")
	require.True(t, ok)
	assert.Equal(t, 1, idx)

	_, ok = s.EntryIndexForTextID("p99")
	assert.False(t, ok)
}

func TestEntryIndexAtTime(t *testing.T) {
	s := twoChapterSections()[0]

	tests := []struct {
		name    string
		time    float64
		wantIdx int
		wantOK  bool
	}{
		{"start of first entry", 0, 0, true},
		{"middle of first entry", 2.5, 0, true},
		{"boundary belongs to second entry", 5, 1, true},
		{"middle of second entry", 7, 1, true},
		{"past last entry", 9, -1, false},
		{"before first entry", -1, -1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idx, ok := s.EntryIndexAtTime(tt.time)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantIdx, idx)
		})
	}
}

func TestFirstNarratedSection_SkipsFrontMatter(t *testing.T) {
	sections := []SectionInfo{
		{Index: 0, ID: "cover.xhtml"},
		{Index: 1, ID: "toc.xhtml"},
		{Index: 2, ID: "ch1.xhtml", MediaOverlay: []Entry{{TextID: "p0", AudioFile: "a.mp3", Begin: 0, End: 1, CumSumAtEnd: 1}}},
	}

	idx, ok := FirstNarratedSection(sections)
	require.True(t, ok)
	assert.Equal(t, 2, idx)
}

func TestTotalDuration(t *testing.T) {
	assert.InDelta(t, 13, TotalDuration(twoChapterSections()), 1e-9)
	assert.Zero(t, TotalDuration(nil))
}

func TestEntryAtTotalProgression(t *testing.T) {
	sections := twoChapterSections()

	si, ei, ok := EntryAtTotalProgression(0, sections)
	require.True(t, ok)
	assert.Equal(t, 0, si)
	assert.Equal(t, 0, ei)

	// 10/13 of the book is inside section 1's only entry.
	si, ei, ok = EntryAtTotalProgression(10.0/13.0, sections)
	require.True(t, ok)
	assert.Equal(t, 1, si)
	assert.Equal(t, 0, ei)

	si, ei, ok = EntryAtTotalProgression(1, sections)
	require.True(t, ok)
	assert.Equal(t, 1, si)
	assert.Equal(t, 0, ei)

	_, _, ok = EntryAtTotalProgression(0.5, nil)
	assert.False(t, ok)
}

func TestCumulativeSums_MatchEntryDurations(t *testing.T) {
	sections := twoChapterSections()

	var flat []Entry
	for _, s := range sections {
		flat = append(flat, s.MediaOverlay...)
	}

	prev := 0.0
	for i, e := range flat {
		assert.GreaterOrEqual(t, e.CumSumAtEnd, prev, "entry %d", i)
		assert.InDelta(t, e.End-e.Begin, e.CumSumAtEnd-prev, 1e-9, "entry %d", i)
		prev = e.CumSumAtEnd
	}
}
