package smil

import (
	"encoding/xml"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// Structure is the loaded book structure: the ordered sections with
// their media-overlay timing, plus the directory all hrefs resolve
// against. Built once per book load and treated as immutable.
type Structure struct {
	Sections      []SectionInfo
	ContentDir    string  // filesystem dir hrefs and audio paths resolve against
	TotalDuration float64 // narrated seconds across the whole book
}

type containerXML struct {
	Rootfiles []struct {
		FullPath string `xml:"full-path,attr"`
	} `xml:"rootfiles>rootfile"`
}

type packageXML struct {
	Manifest struct {
		Items []manifestItem `xml:"item"`
	} `xml:"manifest"`
	Spine struct {
		ItemRefs []struct {
			IDRef string `xml:"idref,attr"`
		} `xml:"itemref"`
	} `xml:"spine"`
}

type manifestItem struct {
	ID           string `xml:"id,attr"`
	Href         string `xml:"href,attr"`
	MediaType    string `xml:"media-type,attr"`
	MediaOverlay string `xml:"media-overlay,attr"`
}

type smilXML struct {
	Body smilSeq `xml:"body"`
}

type smilSeq struct {
	Pars []smilPar `xml:"par"`
	Seqs []smilSeq `xml:"seq"`
}

type smilPar struct {
	Text struct {
		Src string `xml:"src,attr"`
	} `xml:"text"`
	Audio struct {
		Src       string `xml:"src,attr"`
		ClipBegin string `xml:"clipBegin,attr"`
		ClipEnd   string `xml:"clipEnd,attr"`
	} `xml:"audio"`
}

// LoadStructure reads the book structure from an extracted EPUB
// directory: section order from the package spine, timing entries from
// each section's media-overlay SMIL document. Sections without an
// overlay are kept with an empty entry list so navigation can skip
// them. Locating the package document is the only EPUB plumbing done
// here; everything else is SMIL timing.
func LoadStructure(root string) (*Structure, error) {
	opfPath, err := findPackageDocument(root)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(opfPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read package document: %w", err)
	}

	var pkg packageXML
	if err := xml.Unmarshal(data, &pkg); err != nil {
		return nil, fmt.Errorf("failed to parse package document: %w", err)
	}

	itemsByID := make(map[string]manifestItem, len(pkg.Manifest.Items))
	for _, item := range pkg.Manifest.Items {
		itemsByID[item.ID] = item
	}

	contentDir := filepath.Dir(opfPath)

	var sections []SectionInfo
	for _, ref := range pkg.Spine.ItemRefs {
		item, ok := itemsByID[ref.IDRef]
		if !ok {
			continue
		}

		section := SectionInfo{
			Index: len(sections),
			ID:    path.Clean(item.Href),
		}

		if item.MediaOverlay != "" {
			overlay, ok := itemsByID[item.MediaOverlay]
			if !ok {
				return nil, fmt.Errorf("spine item %s references missing media overlay %s", item.ID, item.MediaOverlay)
			}
			entries, err := parseOverlay(contentDir, overlay.Href)
			if err != nil {
				return nil, fmt.Errorf("failed to parse overlay %s: %w", overlay.Href, err)
			}
			section.MediaOverlay = entries
		}

		sections = append(sections, section)
	}

	applyCumulativeSums(sections)

	return &Structure{
		Sections:      sections,
		ContentDir:    contentDir,
		TotalDuration: TotalDuration(sections),
	}, nil
}

// findPackageDocument locates the .opf via META-INF/container.xml,
// falling back to a directory walk for books extracted without the
// container file.
func findPackageDocument(root string) (string, error) {
	containerPath := filepath.Join(root, "META-INF", "container.xml")
	if data, err := os.ReadFile(containerPath); err == nil {
		var c containerXML
		if err := xml.Unmarshal(data, &c); err == nil && len(c.Rootfiles) > 0 {
			return filepath.Join(root, filepath.FromSlash(c.Rootfiles[0].FullPath)), nil
		}
	}

	var found string
	err := filepath.WalkDir(root, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(p, ".opf") {
			found = p
			return filepath.SkipAll
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to scan for package document: %w", err)
	}
	if found == "" {
		return "", fmt.Errorf("no package document found under %s", root)
	}
	return found, nil
}

// parseOverlay reads one SMIL document and returns its timed entries
// with hrefs rebased to be relative to the package document directory.
func parseOverlay(contentDir, smilHref string) ([]Entry, error) {
	data, err := os.ReadFile(filepath.Join(contentDir, filepath.FromSlash(smilHref)))
	if err != nil {
		return nil, err
	}

	var doc smilXML
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}

	smilDir := path.Dir(smilHref)

	var entries []Entry
	var walk func(seq smilSeq) error
	walk = func(seq smilSeq) error {
		for _, par := range seq.Pars {
			entry, err := entryFromPar(smilDir, par)
			if err != nil {
				return err
			}
			entries = append(entries, entry)
		}
		for _, nested := range seq.Seqs {
			if err := walk(nested); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(doc.Body); err != nil {
		return nil, err
	}

	return entries, nil
}

func entryFromPar(smilDir string, par smilPar) (Entry, error) {
	textHref, fragment := splitFragment(par.Text.Src)

	begin, err := ParseClockValue(par.Audio.ClipBegin)
	if err != nil {
		return Entry{}, fmt.Errorf("clipBegin: %w", err)
	}
	end, err := ParseClockValue(par.Audio.ClipEnd)
	if err != nil {
		return Entry{}, fmt.Errorf("clipEnd: %w", err)
	}
	if end <= begin {
		return Entry{}, fmt.Errorf("clip end %.3f not after begin %.3f for %s", end, begin, par.Text.Src)
	}

	return Entry{
		TextID:    fragment,
		TextHref:  rebase(smilDir, textHref),
		AudioFile: rebase(smilDir, par.Audio.Src),
		Begin:     begin,
		End:       end,
	}, nil
}

// rebase resolves an href relative to the SMIL document's directory
// into a package-directory-relative path.
func rebase(smilDir, href string) string {
	if href == "" {
		return ""
	}
	if smilDir == "." {
		return path.Clean(href)
	}
	return path.Clean(path.Join(smilDir, href))
}

func splitFragment(src string) (href, fragment string) {
	if i := strings.IndexByte(src, '#'); i >= 0 {
		return src[:i], src[i+1:]
	}
	return src, ""
}

// applyCumulativeSums fills Entry.CumSumAtEnd across the flattened
// entry sequence of the book.
func applyCumulativeSums(sections []SectionInfo) {
	var cum float64
	for si := range sections {
		for ei := range sections[si].MediaOverlay {
			e := &sections[si].MediaOverlay[ei]
			cum += e.Duration()
			e.CumSumAtEnd = cum
		}
	}
}

// ValidateTimings checks the timing invariants: within every section
// entries are time-ordered per audio file and End > Begin, and the
// cumulative sums are non-decreasing across the whole book.
func ValidateTimings(sections []SectionInfo) error {
	var lastCum float64
	for _, s := range sections {
		var prev *Entry
		for i := range s.MediaOverlay {
			e := s.MediaOverlay[i]
			if e.End <= e.Begin {
				return fmt.Errorf("section %d entry %d: end %.3f not after begin %.3f", s.Index, i, e.End, e.Begin)
			}
			if prev != nil && prev.AudioFile == e.AudioFile && e.Begin < prev.End {
				return fmt.Errorf("section %d entry %d overlaps previous entry", s.Index, i)
			}
			if e.CumSumAtEnd < lastCum {
				return fmt.Errorf("section %d entry %d: cumulative sum decreased", s.Index, i)
			}
			lastCum = e.CumSumAtEnd
			prev = &s.MediaOverlay[i]
		}
	}
	return nil
}
