package repository_test

import (
	"context"
	"io/fs"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/primetalker/callkit/database"
	"github.com/primetalker/callkit/models"
	"github.com/primetalker/callkit/pkg"
	"github.com/primetalker/callkit/repository"
)

func newTestRepo(t *testing.T) repository.CallHistoryRepository {
	t.Helper()

	migrations, err := fs.Sub(database.EmbeddedMigrations, "migrations")
	require.NoError(t, err)

	db, err := database.New(filepath.Join(t.TempDir(), "archive.db"), migrations)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return repository.NewSQLiteCallHistoryRepo(db)
}

func testRecord(t *testing.T, endedOffset time.Duration) *models.CallRecord {
	t.Helper()
	session, err := models.NewSession("room-1", models.RoleCaller, "en", "Alice")
	require.NoError(t, err)

	record := models.NewCallRecord(session, "Asha", "local", []models.Transcript{
		{UserType: models.RoleReceiver, SourceLang: "hi", TargetLang: "en", OriginalText: "namaste", TranslatedText: "hello"},
		{UserType: models.RoleCaller, SourceLang: "en", TargetLang: "hi", OriginalText: "hi there", TranslatedText: "namaste"},
	})
	record.EndedAt = record.EndedAt.Add(endedOffset)
	return record
}

func TestCallHistoryRepo_InsertAndGet(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	record := testRecord(t, 0)
	require.NoError(t, repo.Insert(ctx, record))

	got, err := repo.Get(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, record.RoomID, got.RoomID)
	assert.Equal(t, record.Role, got.Role)
	assert.Equal(t, record.PeerName, got.PeerName)
	assert.Equal(t, record.EndReason, got.EndReason)

	// Transcript satırları seq sırasıyla geri gelir.
	require.Len(t, got.Transcripts, 2)
	assert.Equal(t, "namaste", got.Transcripts[0].OriginalText)
	assert.Equal(t, "hi there", got.Transcripts[1].OriginalText)
	assert.Equal(t, models.RoleReceiver, got.Transcripts[0].UserType)
}

func TestCallHistoryRepo_GetMissing(t *testing.T) {
	repo := newTestRepo(t)

	_, err := repo.Get(context.Background(), "no-such-call")
	assert.ErrorIs(t, err, pkg.ErrNotFound)
}

func TestCallHistoryRepo_List(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	older := testRecord(t, -time.Hour)
	newer := testRecord(t, 0)
	require.NoError(t, repo.Insert(ctx, older))
	require.NoError(t, repo.Insert(ctx, newer))

	records, err := repo.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, records, 2)

	// En son biten arama başta; liste transcript taşımaz.
	assert.Equal(t, newer.ID, records[0].ID)
	assert.Equal(t, older.ID, records[1].ID)
	assert.Empty(t, records[0].Transcripts)
}

func TestCallHistoryRepo_ListLimit(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, repo.Insert(ctx, testRecord(t, time.Duration(i)*time.Minute)))
	}

	records, err := repo.List(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}
