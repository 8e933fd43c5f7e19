package playback

import (
	"context"
	"log"

	"github.com/mrlokans/readalong/internal/entities"
	"github.com/mrlokans/readalong/internal/smil"
)

// ChooseRestorePosition picks the best available saved position on
// book load. Remote progress wins when it is at least as recent as the
// locally cached fallback; on an exact timestamp tie the remote side
// wins, since another device already confirmed that position.
func ChooseRestorePosition(remote, cached *entities.SavedProgress) *entities.SavedProgress {
	switch {
	case remote == nil:
		return cached
	case cached == nil:
		return remote
	case cached.Timestamp.After(remote.Timestamp):
		return cached
	default:
		return remote
	}
}

// RestorePosition maps a saved locator back onto the loaded book
// structure. Resolution order: text fragment via direct href match,
// then via the tolerant section lookup for legacy path formats, then a
// fractional seek by TotalProgression. Failure to restore is non-fatal;
// playback simply starts from the top.
func (e *Engine) RestorePosition(ctx context.Context, loc entities.Locator) error {
	e.mu.Lock()
	sections := e.sections
	e.mu.Unlock()
	if len(sections) == 0 {
		return ErrNoBookLoaded
	}

	if loc.HasFragment() {
		if si, ok := resolveSection(loc.Href, sections); ok {
			if ei, ok := sections[si].EntryIndexForTextID(loc.Fragment); ok {
				return e.SetCurrentEntry(ctx, si, ei)
			}
			// Stale fragment: land at the section start if it is narrated.
			if sections[si].Narrated() {
				log.Printf("Fragment %q not found in %s, restoring to section start", loc.Fragment, loc.Href)
				return e.SetCurrentEntry(ctx, si, 0)
			}
		}
	}

	if loc.TotalProgression > 0 {
		return e.restoreByProgression(ctx, loc.TotalProgression)
	}

	log.Printf("Could not restore position for %s, starting from the beginning", e.BookID())
	return nil
}

// restoreByProgression seeks by the 0-1 fraction of the whole book,
// landing inside the containing entry rather than just at its start.
func (e *Engine) restoreByProgression(ctx context.Context, fraction float64) error {
	e.mu.Lock()
	sections := e.sections
	total := e.totalDuration
	e.mu.Unlock()

	si, ei, ok := smil.EntryAtTotalProgression(fraction, sections)
	if !ok {
		log.Printf("Could not map progression %.4f for %s, starting from the beginning", fraction, e.BookID())
		return nil
	}
	if err := e.SetCurrentEntry(ctx, si, ei); err != nil {
		return err
	}

	entry := sections[si].MediaOverlay[ei]
	target := fraction * total
	entryStart := entry.CumSumAtEnd - entry.Duration()
	if offset := target - entryStart; offset > 0 && offset < entry.Duration() {
		return e.player.Seek(entry.Begin + offset)
	}
	return nil
}

func resolveSection(href string, sections []smil.SectionInfo) (int, bool) {
	for i, s := range sections {
		if s.ID == href {
			return i, true
		}
	}
	return smil.FindSectionIndex(href, sections)
}
