package store

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestStore(t *testing.T) (*Store, func()) {
	t.Helper()

	dbPath := "./test_store_" + strings.ReplaceAll(t.Name(), "/", "_") + ".db"

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	s, err := NewStoreWithDB(db)
	require.NoError(t, err)

	cleanup := func() {
		s.Close()
		os.Remove(dbPath)
	}
	return s, cleanup
}

func TestStore_Create_LiftsReservedFields(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	entity, err := s.Create("article", map[string]any{
		"title":       "First",
		"publishedAt": "2024-03-01T10:00:00Z",
		"createdBy":   uint(7),
		"updatedBy":   uint(7),
	})
	require.NoError(t, err)

	assert.NotZero(t, entity.ID)
	require.NotNil(t, entity.PublishedAt)
	assert.Equal(t, 2024, entity.PublishedAt.Year())
	assert.Equal(t, uint(7), entity.CreatedByID)
	assert.Equal(t, uint(7), entity.UpdatedByID)

	// Reserved fields never live inside the document.
	var row EntryRow
	require.NoError(t, s.DB.First(&row, entity.ID).Error)
	assert.NotContains(t, row.Document, "publishedAt")
	assert.NotContains(t, row.Document, "createdBy")
}

func TestStore_Create_IgnoresIncomingID(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	entity, err := s.Create("article", map[string]any{
		"id":    float64(999),
		"title": "First",
	})
	require.NoError(t, err)

	assert.NotEqual(t, uint(999), entity.ID)
	assert.Equal(t, entity.ID, entity.Data["id"])
}

func TestStore_FindOne_ByDocumentField(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	_, err := s.Create("article", map[string]any{"slug": "hello", "title": "Hello"})
	require.NoError(t, err)
	_, err = s.Create("article", map[string]any{"slug": "world", "title": "World"})
	require.NoError(t, err)

	entity, err := s.FindOne("article", map[string]any{"slug": "world"})
	require.NoError(t, err)
	require.NotNil(t, entity)
	assert.Equal(t, "World", entity.Data["title"])
}

func TestStore_FindOne_LooseNumberEquality(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	// Stored documents decode numbers as float64; the filter may carry
	// the source's original string form.
	_, err := s.Create("article", map[string]any{"code": float64(42)})
	require.NoError(t, err)

	entity, err := s.FindOne("article", map[string]any{"code": "42"})
	require.NoError(t, err)
	require.NotNil(t, entity)
}

func TestStore_FindOne_NoMatch(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	entity, err := s.FindOne("article", map[string]any{"slug": "missing"})
	require.NoError(t, err)
	assert.Nil(t, entity)
}

func TestStore_FindOne_ScopedToModel(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	_, err := s.Create("article", map[string]any{"slug": "shared"})
	require.NoError(t, err)

	entity, err := s.FindOne("page", map[string]any{"slug": "shared"})
	require.NoError(t, err)
	assert.Nil(t, entity)
}

func TestStore_FindOne_ByUniversalID(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	created, err := s.Create("article", map[string]any{"title": "Target"})
	require.NoError(t, err)

	entity, err := s.FindOne("article", map[string]any{"id": float64(created.ID)})
	require.NoError(t, err)
	require.NotNil(t, entity)
	assert.Equal(t, "Target", entity.Data["title"])
}

func TestStore_Update_PreservesIdentityAndCreator(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	created, err := s.Create("article", map[string]any{
		"title":     "Before",
		"createdBy": uint(3),
	})
	require.NoError(t, err)

	updated, err := s.Update("article", created.ID, map[string]any{
		"title":     "After",
		"updatedBy": uint(5),
	})
	require.NoError(t, err)

	assert.Equal(t, created.ID, updated.ID)
	assert.Equal(t, "After", updated.Data["title"])
	assert.Equal(t, uint(3), updated.CreatedByID, "creator survives updates that do not set one")
	assert.Equal(t, uint(5), updated.UpdatedByID)

	entities, err := s.FindMany("article", nil)
	require.NoError(t, err)
	assert.Len(t, entities, 1)
}

func TestStore_Update_UnknownID(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	_, err := s.Update("article", 12345, map[string]any{"title": "x"})
	assert.True(t, IsNotFound(err))
}

func TestStore_FindMany_Filtered(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	for _, category := range []string{"news", "news", "opinion"} {
		_, err := s.Create("article", map[string]any{"category": category})
		require.NoError(t, err)
	}

	entities, err := s.FindMany("article", map[string]any{"category": "news"})
	require.NoError(t, err)
	assert.Len(t, entities, 2)
}

func TestStore_Users(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	user, err := s.CreateUser("editor", "editor@example.com", "secret-token")
	require.NoError(t, err)
	assert.NotZero(t, user.ID)

	byToken, err := s.GetUserByToken("secret-token")
	require.NoError(t, err)
	assert.Equal(t, user.ID, byToken.ID)

	_, err = s.GetUserByToken("wrong")
	assert.True(t, IsNotFound(err))

	byID, err := s.GetUserByID(user.ID)
	require.NoError(t, err)
	assert.Equal(t, "editor", byID.Username)
}

func TestStore_ImportSessions(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	session := &ImportSession{Model: "article", Format: "csv", TotalRecords: 10}
	require.NoError(t, s.CreateImportSession(session))
	assert.NotZero(t, session.ID)
	assert.Equal(t, ImportStatusRunning, session.Status)
	assert.False(t, session.StartedAt.IsZero())

	now := time.Now()
	session.Status = ImportStatusCompleted
	session.FinishedAt = &now
	session.FailedRecords = 2
	require.NoError(t, s.UpdateImportSession(session))

	loaded, err := s.GetImportSession(session.ID)
	require.NoError(t, err)
	assert.Equal(t, ImportStatusCompleted, loaded.Status)
	assert.Equal(t, 2, loaded.FailedRecords)
}

func TestStore_DeleteOldSessions(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	old := &ImportSession{
		Model:     "article",
		Status:    ImportStatusCompleted,
		StartedAt: time.Now().Add(-72 * time.Hour),
	}
	require.NoError(t, s.DB.Create(old).Error)

	recent := &ImportSession{Model: "article", Status: ImportStatusCompleted}
	require.NoError(t, s.CreateImportSession(recent))

	// Running sessions are never reaped, no matter how old.
	stuck := &ImportSession{
		Model:     "article",
		Status:    ImportStatusRunning,
		StartedAt: time.Now().Add(-72 * time.Hour),
	}
	require.NoError(t, s.DB.Create(stuck).Error)

	deleted, err := s.DeleteOldSessions(24 * time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	_, err = s.GetImportSession(old.ID)
	assert.True(t, IsNotFound(err))

	_, err = s.GetImportSession(stuck.ID)
	assert.NoError(t, err)
}

func TestParsePublishedAt(t *testing.T) {
	assert.Nil(t, parsePublishedAt(nil))
	assert.Nil(t, parsePublishedAt(""))
	assert.Nil(t, parsePublishedAt("not a date"))

	parsed := parsePublishedAt("2024-03-01T10:00:00Z")
	require.NotNil(t, parsed)
	assert.Equal(t, time.March, parsed.Month())

	parsed = parsePublishedAt("2024-03-01")
	require.NotNil(t, parsed)
	assert.Equal(t, 1, parsed.Day())
}
