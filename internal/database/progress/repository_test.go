package progress

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/mrlokans/readalong/internal/entities"
)

func setupTestDB(t *testing.T) (*Repository, func()) {
	dbPath := "./test_progress_" + t.Name() + ".db"

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	err = db.AutoMigrate(&entities.BookProgress{}, &entities.PendingSync{})
	require.NoError(t, err)

	repo := NewRepository(db)

	cleanup := func() {
		sqlDB, _ := db.DB()
		sqlDB.Close()
		os.Remove(dbPath)
	}

	return repo, cleanup
}

func sampleProgress(bookID string, ts time.Time) entities.SavedProgress {
	return entities.SavedProgress{
		BookID: bookID,
		Locator: entities.Locator{
			Href:             "ch3.xhtml",
			Fragment:         "p12",
			Progression:      0.5,
			TotalProgression: 0.31,
		},
		Timestamp: ts,
		Source:    "device-1",
		Location:  "Chapter 3",
	}
}

func TestRepository_SetProgress_RoundTrip(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	want := sampleProgress("book-1", time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC))
	require.NoError(t, repo.SetProgress(want))

	got, err := repo.GetProgress("book-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, want.Locator, got.Locator)
	assert.True(t, got.Timestamp.Equal(want.Timestamp))
	assert.Equal(t, "device-1", got.Source)
	assert.Equal(t, "Chapter 3", got.Location)
}

func TestRepository_SetProgress_OverwritesUnconditionally(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	newer := sampleProgress("book-1", time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC))
	require.NoError(t, repo.SetProgress(newer))

	// The local cache keeps the latest write even when its timestamp is
	// older, rewinding on this device is a legitimate position change.
	older := sampleProgress("book-1", newer.Timestamp.Add(-time.Hour))
	older.Locator.Fragment = "p2"
	require.NoError(t, repo.SetProgress(older))

	got, err := repo.GetProgress("book-1")
	require.NoError(t, err)
	assert.Equal(t, "p2", got.Locator.Fragment)
}

func TestRepository_GetProgress_UnknownBook(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	got, err := repo.GetProgress("never-opened")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRepository_ListProgress(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	base := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)
	require.NoError(t, repo.SetProgress(sampleProgress("book-old", base.Add(-time.Hour))))
	require.NoError(t, repo.SetProgress(sampleProgress("book-new", base)))

	all, err := repo.ListProgress()
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "book-new", all[0].BookID)
	assert.Equal(t, "book-old", all[1].BookID)
}

func TestRepository_Upsert_RejectsStale(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	current := sampleProgress("book-1", time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC))
	_, err := repo.Upsert(current)
	require.NoError(t, err)

	stale := sampleProgress("book-1", current.Timestamp.Add(-time.Minute))
	winner, err := repo.Upsert(stale)
	assert.ErrorIs(t, err, ErrStaleTimestamp)
	require.NotNil(t, winner)
	assert.True(t, winner.Timestamp.Equal(current.Timestamp))

	// The stored row is untouched.
	got, err := repo.GetProgress("book-1")
	require.NoError(t, err)
	assert.True(t, got.Timestamp.Equal(current.Timestamp))
}

func TestRepository_Upsert_AcceptsNewerAndEqual(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	first := sampleProgress("book-1", time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC))
	_, err := repo.Upsert(first)
	require.NoError(t, err)

	newer := sampleProgress("book-1", first.Timestamp.Add(time.Minute))
	newer.Locator.Fragment = "p20"
	_, err = repo.Upsert(newer)
	require.NoError(t, err)

	// Equal timestamp is an idempotent redelivery, not a conflict.
	_, err = repo.Upsert(newer)
	require.NoError(t, err)

	got, err := repo.GetProgress("book-1")
	require.NoError(t, err)
	assert.Equal(t, "p20", got.Locator.Fragment)
}

func TestRepository_PendingQueue(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	base := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)
	require.NoError(t, repo.EnqueuePending(entities.PendingProgressSync{
		BookID:    "book-2",
		Locator:   entities.Locator{Href: "ch1.xhtml"},
		Timestamp: base.Add(time.Minute),
		Reason:    entities.SyncReasonBookClosed,
	}))
	require.NoError(t, repo.EnqueuePending(entities.PendingProgressSync{
		BookID:    "book-1",
		Locator:   entities.Locator{Href: "ch5.xhtml"},
		Timestamp: base,
		Reason:    entities.SyncReasonPeriodic,
	}))

	// Oldest first.
	pending, err := repo.ListPending()
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "book-1", pending[0].BookID)
	assert.Equal(t, entities.SyncReasonBookClosed, pending[1].Reason)

	require.NoError(t, repo.DeletePending("book-1"))
	pending, err = repo.ListPending()
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "book-2", pending[0].BookID)
}

func TestRepository_CountPending(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	count, err := repo.CountPending()
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)

	require.NoError(t, repo.EnqueuePending(entities.PendingProgressSync{
		BookID:    "book-1",
		Locator:   entities.Locator{Href: "ch1.xhtml"},
		Timestamp: time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC),
		Reason:    entities.SyncReasonPeriodic,
	}))

	count, err = repo.CountPending()
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestRepository_EnqueuePending_SupersedesExisting(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	base := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)
	require.NoError(t, repo.EnqueuePending(entities.PendingProgressSync{
		BookID:    "book-1",
		Locator:   entities.Locator{Fragment: "p1"},
		Timestamp: base,
	}))
	require.NoError(t, repo.EnqueuePending(entities.PendingProgressSync{
		BookID:    "book-1",
		Locator:   entities.Locator{Fragment: "p9"},
		Timestamp: base.Add(time.Minute),
	}))

	pending, err := repo.ListPending()
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "p9", pending[0].Locator.Fragment)
}

func TestRepository_RecordPendingFailure(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	require.NoError(t, repo.EnqueuePending(entities.PendingProgressSync{
		BookID:    "book-1",
		Timestamp: time.Now().UTC(),
	}))

	require.NoError(t, repo.RecordPendingFailure("book-1", "server returned status 500"))
	require.NoError(t, repo.RecordPendingFailure("book-1", "server returned status 502"))

	pending, err := repo.ListPending()
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, 2, pending[0].Attempts)
	assert.Equal(t, "server returned status 502", pending[0].LastError)
}
