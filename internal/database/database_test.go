package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"artisanlink/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	logger := zerolog.Nop()
	db, err := NewDB(filepath.Join(t.TempDir(), "test.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestNewDB_DirectoryCreation(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "dir", "test.db")

	db, err := NewDB(dbPath, nil)
	require.NoError(t, err)
	defer db.Close()

	assert.FileExists(t, dbPath)
	assert.NoError(t, db.PingContext(context.Background()))
}

func TestCreateTablesIsIdempotent(t *testing.T) {
	db := setupTestDB(t)
	assert.NoError(t, createTables(db.db))
}

func testSnapshot() *models.Snapshot {
	updated := time.Date(2025, 1, 10, 8, 0, 0, 0, time.UTC)
	return &models.Snapshot{
		OwnerID: "c1",
		Role:    models.RoleCustomer,
		Bookings: []models.Booking{
			{ID: "b1", Status: models.StatusAccepted, UpdatedAt: &updated, Location: models.Location{Address: "12 Marina Rd"}},
		},
		SavedAt: time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC),
	}
}

func TestSnapshotStore(t *testing.T) {
	db := setupTestDB(t)
	st := NewSnapshotStore(db, time.Hour)
	ctx := context.Background()

	t.Run("SaveAndLoad", func(t *testing.T) {
		snap := testSnapshot()
		require.NoError(t, st.Save(ctx, snap))

		got, err := st.Load(ctx, snap.Key())
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "c1", got.OwnerID)
		assert.Equal(t, models.RoleCustomer, got.Role)
		assert.True(t, snap.SavedAt.Equal(got.SavedAt))
		require.Len(t, got.Bookings, 1)
		assert.Equal(t, "12 Marina Rd", got.Bookings[0].Location.Address)
		require.NotNil(t, got.Bookings[0].UpdatedAt)
		assert.True(t, snap.Bookings[0].UpdatedAt.Equal(*got.Bookings[0].UpdatedAt))
		assert.Empty(t, got.ArtisanBookings)
	})

	t.Run("Overwrite", func(t *testing.T) {
		snap := testSnapshot()
		snap.Bookings = append(snap.Bookings, models.Booking{ID: "b2"})
		require.NoError(t, st.Save(ctx, snap))

		got, err := st.Load(ctx, snap.Key())
		require.NoError(t, err)
		assert.Len(t, got.Bookings, 2)
	})

	t.Run("Missing", func(t *testing.T) {
		got, err := st.Load(ctx, "artisan:nobody")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("Delete", func(t *testing.T) {
		snap := testSnapshot()
		snap.OwnerID = "c9"
		require.NoError(t, st.Save(ctx, snap))
		require.NoError(t, st.Delete(ctx, snap.Key()))

		got, err := st.Load(ctx, snap.Key())
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("Nil", func(t *testing.T) {
		assert.ErrorIs(t, st.Save(ctx, nil), ErrNilSnapshot)
	})
}

func TestSnapshotStoreExpiry(t *testing.T) {
	db := setupTestDB(t)
	st := NewSnapshotStore(db, time.Minute)
	ctx := context.Background()

	now := time.Now()
	st.now = func() time.Time { return now }
	snap := testSnapshot()
	require.NoError(t, st.Save(ctx, snap))
	other := testSnapshot()
	other.OwnerID = "c2"
	require.NoError(t, st.Save(ctx, other))

	st.now = func() time.Time { return now.Add(2 * time.Minute) }

	got, err := st.Load(ctx, snap.Key())
	require.NoError(t, err)
	assert.Nil(t, got)

	n, err := st.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
