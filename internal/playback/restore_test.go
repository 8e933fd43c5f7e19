package playback

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrlokans/readalong/internal/entities"
)

func TestChooseRestorePosition(t *testing.T) {
	older := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	newer := older.Add(time.Hour)

	remote := &entities.SavedProgress{BookID: "b", Timestamp: older, Source: "remote"}
	cached := &entities.SavedProgress{BookID: "b", Timestamp: newer, Source: "cache"}

	assert.Nil(t, ChooseRestorePosition(nil, nil))
	assert.Equal(t, cached, ChooseRestorePosition(nil, cached))
	assert.Equal(t, remote, ChooseRestorePosition(remote, nil))

	// Strictly newer cache wins.
	assert.Equal(t, cached, ChooseRestorePosition(remote, cached))

	// Newer remote wins.
	remote.Timestamp = newer.Add(time.Hour)
	assert.Equal(t, remote, ChooseRestorePosition(remote, cached))

	// Exact tie prefers remote.
	remote.Timestamp = cached.Timestamp
	assert.Equal(t, remote, ChooseRestorePosition(remote, cached))
}

func TestRestorePosition_ByFragment(t *testing.T) {
	engine, _, _ := newTestEngine(t, twoSectionBook())

	err := engine.RestorePosition(context.Background(), entities.Locator{
		Href:     "ch1.xhtml",
		Fragment: "p1",
	})
	require.NoError(t, err)

	snap := engine.Snapshot()
	assert.Equal(t, 0, snap.SectionIndex)
	assert.Equal(t, 1, snap.EntryIndex)
}

func TestRestorePosition_LegacyHrefFormat(t *testing.T) {
	engine, _, _ := newTestEngine(t, twoSectionBook())

	// Hrefs saved by older versions carry a path prefix.
	err := engine.RestorePosition(context.Background(), entities.Locator{
		Href:     "OEBPS/ch2.xhtml",
		Fragment: "p0",
	})
	require.NoError(t, err)

	snap := engine.Snapshot()
	assert.Equal(t, 1, snap.SectionIndex)
	assert.Equal(t, 0, snap.EntryIndex)
}

func TestRestorePosition_StaleFragmentFallsBackToSectionStart(t *testing.T) {
	engine, _, _ := newTestEngine(t, twoSectionBook())

	err := engine.RestorePosition(context.Background(), entities.Locator{
		Href:     "ch2.xhtml",
		Fragment: "p-gone",
	})
	require.NoError(t, err)

	snap := engine.Snapshot()
	assert.Equal(t, 1, snap.SectionIndex)
	assert.Equal(t, 0, snap.EntryIndex)
}

func TestRestorePosition_ByTotalProgression(t *testing.T) {
	engine, player, _ := newTestEngine(t, twoSectionBook())

	// 10s of 13s total lands 1s into section 1's only entry.
	err := engine.RestorePosition(context.Background(), entities.Locator{
		TotalProgression: 10.0 / 13.0,
	})
	require.NoError(t, err)

	snap := engine.Snapshot()
	assert.Equal(t, 1, snap.SectionIndex)
	assert.Equal(t, 0, snap.EntryIndex)
	assert.InDelta(t, 1.0, player.lastSeek(), 1e-6)
}

func TestRestorePosition_UnresolvableIsNonFatal(t *testing.T) {
	engine, _, _ := newTestEngine(t, twoSectionBook())

	err := engine.RestorePosition(context.Background(), entities.Locator{
		Href:     "missing.xhtml",
		Fragment: "p0",
	})
	require.NoError(t, err)

	// Position stays at the default start.
	snap := engine.Snapshot()
	assert.Equal(t, 0, snap.SectionIndex)
	assert.Equal(t, 0, snap.EntryIndex)
}

func TestRestorePosition_NoBook(t *testing.T) {
	engine := NewEngine(&fakePlayer{}, Config{})
	err := engine.RestorePosition(context.Background(), entities.Locator{Href: "ch1.xhtml"})
	assert.ErrorIs(t, err, ErrNoBookLoaded)
}
