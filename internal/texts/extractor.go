// Package texts reads display strings out of a book's XHTML content:
// the sentence a timed fragment points at and section titles. Used to
// build the human-readable location on saved positions.
package texts

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ErrFragmentNotFound indicates the fragment id has no element in the
// section document.
var ErrFragmentNotFound = errors.New("fragment not found in document")

const maxLocationLength = 120

// Extractor resolves hrefs relative to the book's content directory.
type Extractor struct {
	root string
}

// NewExtractor creates an extractor rooted at the content directory.
func NewExtractor(root string) *Extractor {
	return &Extractor{root: root}
}

// FragmentText returns the visible text of the element a media-overlay
// fragment points at, collapsed to a single trimmed line.
func (e *Extractor) FragmentText(href, fragment string) (string, error) {
	doc, err := e.open(href)
	if err != nil {
		return "", err
	}

	sel := doc.Find("#" + fragment)
	if sel.Length() == 0 {
		return "", fmt.Errorf("%w: #%s in %s", ErrFragmentNotFound, fragment, href)
	}
	return collapse(sel.First().Text()), nil
}

// SectionTitle returns a display title for a section document: the
// first heading, falling back to the document title.
func (e *Extractor) SectionTitle(href string) (string, error) {
	doc, err := e.open(href)
	if err != nil {
		return "", err
	}

	if heading := collapse(doc.Find("h1, h2, h3").First().Text()); heading != "" {
		return heading, nil
	}
	return collapse(doc.Find("title").First().Text()), nil
}

// Location builds the human-readable position string stored alongside
// progress: "Section title: fragment text", truncated for display.
func (e *Extractor) Location(href, fragment string) string {
	title, err := e.SectionTitle(href)
	if err != nil {
		return ""
	}

	text, err := e.FragmentText(href, fragment)
	if err != nil || text == "" {
		return truncate(title, maxLocationLength)
	}
	if title == "" {
		return truncate(text, maxLocationLength)
	}
	return truncate(title+": "+text, maxLocationLength)
}

func (e *Extractor) open(href string) (*goquery.Document, error) {
	f, err := os.Open(filepath.Join(e.root, filepath.FromSlash(href)))
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", href, err)
	}
	defer f.Close()

	doc, err := goquery.NewDocumentFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", href, err)
	}
	return doc, nil
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return strings.TrimSpace(string(runes[:max-1])) + "…"
}
