package importer

import (
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/rglservice/mediation-strapi-import-export/internal/media"
	"github.com/rglservice/mediation-strapi-import-export/internal/parsers"
	"github.com/rglservice/mediation-strapi-import-export/internal/schema"
	"github.com/rglservice/mediation-strapi-import-export/internal/store"
)

func importTestRegistry() *schema.Registry {
	return schema.NewRegistry(
		schema.Model{
			ID:   "article",
			Kind: schema.KindCollection,
			Attributes: []schema.Attribute{
				{Name: "title", Type: schema.TypeScalar},
				{Name: "slug", Type: schema.TypeScalar},
				{Name: "author", Type: schema.TypeRelation, Target: "author"},
				{Name: "tags", Type: schema.TypeRelation, Target: "tag", Multiple: true},
				{Name: "meta", Type: schema.TypeComponent, Target: "seo"},
				{Name: "blocks", Type: schema.TypeDynamicZone},
				{Name: "cover", Type: schema.TypeMedia, AllowedTypes: []string{"images"}},
				{Name: "createdBy", Type: schema.TypeRelation, Target: "user"},
				{Name: "updatedBy", Type: schema.TypeRelation, Target: "user"},
				{Name: "publishedAt", Type: schema.TypeDateTime},
			},
			DraftAndPublish: true,
			IdentifierField: "slug",
		},
		schema.Model{
			ID:   "author",
			Kind: schema.KindCollection,
			Attributes: []schema.Attribute{
				{Name: "name", Type: schema.TypeScalar},
			},
			IdentifierField: "name",
		},
		schema.Model{
			ID:   "tag",
			Kind: schema.KindCollection,
			Attributes: []schema.Attribute{
				{Name: "name", Type: schema.TypeScalar},
			},
			IdentifierField: "name",
		},
		schema.Model{
			ID:   "seo",
			Kind: schema.KindCollection,
			Attributes: []schema.Attribute{
				{Name: "description", Type: schema.TypeScalar},
			},
		},
		schema.Model{
			ID:   "quote",
			Kind: schema.KindCollection,
			Attributes: []schema.Attribute{
				{Name: "text", Type: schema.TypeScalar},
			},
		},
		schema.Model{
			ID:   "note",
			Kind: schema.KindCollection,
			Attributes: []schema.Attribute{
				{Name: "text", Type: schema.TypeScalar},
			},
		},
		schema.Model{
			ID:   "page",
			Kind: schema.KindCollection,
			Attributes: []schema.Attribute{
				{Name: "slug", Type: schema.TypeScalar},
				{Name: "parent", Type: schema.TypeRelation, Target: "page"},
			},
			IdentifierField: "slug",
		},
		schema.Model{
			ID:   "homepage",
			Kind: schema.KindSingular,
			Attributes: []schema.Attribute{
				{Name: "headline", Type: schema.TypeScalar},
			},
		},
	)
}

func setupTestImporter(t *testing.T) (*Importer, *store.Store, func()) {
	t.Helper()

	dbPath := "./test_importer_" + strings.ReplaceAll(t.Name(), "/", "_") + ".db"

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	s, err := store.NewStoreWithDB(db)
	require.NoError(t, err)

	imp := New(importTestRegistry(), s, media.NewLibrary(s), nil)

	cleanup := func() {
		s.Close()
		os.Remove(dbPath)
	}
	return imp, s, cleanup
}

func TestImportData_CreateThenUpdateByIdentifier(t *testing.T) {
	imp, s, cleanup := setupTestImporter(t)
	defer cleanup()

	opts := Options{Model: "article", Format: parsers.FormatObject}

	result, err := imp.ImportData([]any{
		map[string]any{"slug": "go-release", "title": "Before"},
	}, opts)
	require.NoError(t, err)
	assert.Empty(t, result.Failures)

	result, err = imp.ImportData([]any{
		map[string]any{"slug": "go-release", "title": "After"},
	}, opts)
	require.NoError(t, err)
	assert.Empty(t, result.Failures)

	entities, err := s.FindMany("article", nil)
	require.NoError(t, err)
	require.Len(t, entities, 1)
	assert.Equal(t, "After", entities[0].Data["title"])
}

func TestImportData_RecordsWithoutIdentifierAlwaysCreate(t *testing.T) {
	imp, s, cleanup := setupTestImporter(t)
	defer cleanup()

	opts := Options{Model: "article", Format: parsers.FormatObject}

	for range [2]struct{}{} {
		result, err := imp.ImportData([]any{
			map[string]any{"title": "untitled"},
		}, opts)
		require.NoError(t, err)
		assert.Empty(t, result.Failures)
	}

	entities, err := s.FindMany("article", nil)
	require.NoError(t, err)
	assert.Len(t, entities, 2)
}

func TestImportData_SingularModelConverges(t *testing.T) {
	imp, s, cleanup := setupTestImporter(t)
	defer cleanup()

	opts := Options{Model: "homepage", Format: parsers.FormatObject}

	_, err := imp.ImportData(map[string]any{"headline": "v1"}, opts)
	require.NoError(t, err)
	_, err = imp.ImportData(map[string]any{"headline": "v2"}, opts)
	require.NoError(t, err)

	entities, err := s.FindMany("homepage", nil)
	require.NoError(t, err)
	require.Len(t, entities, 1)
	assert.Equal(t, "v2", entities[0].Data["headline"])
}

func TestImportData_DraftModeStripsPublishState(t *testing.T) {
	imp, s, cleanup := setupTestImporter(t)
	defer cleanup()

	result, err := imp.ImportData([]any{
		map[string]any{"slug": "draft-one", "publishedAt": "2024-03-01T10:00:00Z"},
	}, Options{Model: "article", Format: parsers.FormatObject, ImportAsDrafts: true})
	require.NoError(t, err)
	assert.Empty(t, result.Failures)

	entity, err := s.FindOne("article", map[string]any{"slug": "draft-one"})
	require.NoError(t, err)
	require.NotNil(t, entity)
	assert.Nil(t, entity.PublishedAt)
}

func TestImportData_PublishStateNeverReachesUnsupportedModel(t *testing.T) {
	imp, s, cleanup := setupTestImporter(t)
	defer cleanup()

	// The tag model has no draft/publish support; a publish state in
	// the source must vanish, and draft mode must be a no-op.
	result, err := imp.ImportData([]any{
		map[string]any{"name": "golang", "publishedAt": "2024-03-01T10:00:00Z"},
	}, Options{Model: "tag", Format: parsers.FormatObject, ImportAsDrafts: true})
	require.NoError(t, err)
	assert.Empty(t, result.Failures)

	entity, err := s.FindOne("tag", map[string]any{"name": "golang"})
	require.NoError(t, err)
	require.NotNil(t, entity)
	assert.Nil(t, entity.PublishedAt)
	_, present := entity.Data["publishedAt"]
	assert.False(t, present)
}

func TestImportData_ResolvesNestedRelation(t *testing.T) {
	imp, s, cleanup := setupTestImporter(t)
	defer cleanup()

	result, err := imp.ImportData([]any{
		map[string]any{
			"slug":   "with-author",
			"author": map[string]any{"name": "ann"},
		},
	}, Options{Model: "article", Format: parsers.FormatObject})
	require.NoError(t, err)
	assert.Empty(t, result.Failures)

	author, err := s.FindOne("author", map[string]any{"name": "ann"})
	require.NoError(t, err)
	require.NotNil(t, author)

	article, err := s.FindOne("article", map[string]any{"slug": "with-author"})
	require.NoError(t, err)
	require.NotNil(t, article)
	assert.EqualValues(t, author.ID, article.Data["author"])
}

func TestImportData_NestedRelationReusesExisting(t *testing.T) {
	imp, s, cleanup := setupTestImporter(t)
	defer cleanup()

	opts := Options{Model: "article", Format: parsers.FormatObject}

	for _, slug := range []string{"first", "second"} {
		result, err := imp.ImportData([]any{
			map[string]any{"slug": slug, "author": map[string]any{"name": "ann"}},
		}, opts)
		require.NoError(t, err)
		assert.Empty(t, result.Failures)
	}

	authors, err := s.FindMany("author", nil)
	require.NoError(t, err)
	assert.Len(t, authors, 1, "the same author must not be duplicated")
}

func TestImportData_BareReferenceNumbersPassThrough(t *testing.T) {
	imp, s, cleanup := setupTestImporter(t)
	defer cleanup()

	result, err := imp.ImportData([]any{
		map[string]any{"slug": "ref-only", "author": float64(17)},
	}, Options{Model: "article", Format: parsers.FormatObject})
	require.NoError(t, err)
	assert.Empty(t, result.Failures)

	article, err := s.FindOne("article", map[string]any{"slug": "ref-only"})
	require.NoError(t, err)
	assert.EqualValues(t, 17, article.Data["author"])
}

func TestImportData_RelationKeepsInputCardinality(t *testing.T) {
	imp, s, cleanup := setupTestImporter(t)
	defer cleanup()

	result, err := imp.ImportData([]any{
		map[string]any{
			"slug": "multi-tag",
			"tags": []any{
				map[string]any{"name": "go"},
				float64(3),
			},
		},
	}, Options{Model: "article", Format: parsers.FormatObject})
	require.NoError(t, err)
	assert.Empty(t, result.Failures)

	article, err := s.FindOne("article", map[string]any{"slug": "multi-tag"})
	require.NoError(t, err)

	tags, ok := article.Data["tags"].([]any)
	require.True(t, ok, "an array input stays an array")
	require.Len(t, tags, 2)
	assert.EqualValues(t, 3, tags[1])
}

func TestImportData_ComponentTruncatesToCardinality(t *testing.T) {
	imp, s, cleanup := setupTestImporter(t)
	defer cleanup()

	// meta is a non-repeatable component; extra entries are dropped.
	result, err := imp.ImportData([]any{
		map[string]any{
			"slug": "seo-page",
			"meta": []any{
				map[string]any{"description": "kept"},
				map[string]any{"description": "dropped"},
			},
		},
	}, Options{Model: "article", Format: parsers.FormatObject})
	require.NoError(t, err)
	assert.Empty(t, result.Failures)

	metas, err := s.FindMany("seo", nil)
	require.NoError(t, err)
	require.Len(t, metas, 1)
	assert.Equal(t, "kept", metas[0].Data["description"])

	article, err := s.FindOne("article", map[string]any{"slug": "seo-page"})
	require.NoError(t, err)
	assert.EqualValues(t, metas[0].ID, article.Data["meta"])
}

func TestImportData_DynamicZone(t *testing.T) {
	imp, s, cleanup := setupTestImporter(t)
	defer cleanup()

	result, err := imp.ImportData([]any{
		map[string]any{
			"slug": "zoned",
			"blocks": []any{
				map[string]any{"__component": "quote", "text": "stay hungry"},
			},
		},
	}, Options{Model: "article", Format: parsers.FormatObject})
	require.NoError(t, err)
	assert.Empty(t, result.Failures)

	quotes, err := s.FindMany("quote", nil)
	require.NoError(t, err)
	require.Len(t, quotes, 1)

	article, err := s.FindOne("article", map[string]any{"slug": "zoned"})
	require.NoError(t, err)

	blocks, ok := article.Data["blocks"].([]any)
	require.True(t, ok)
	require.Len(t, blocks, 1)

	entry, ok := blocks[0].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "quote", entry["__component"])
	assert.Equal(t, "stay hungry", entry["text"])
}

func TestImportData_MediaAttribute(t *testing.T) {
	imp, s, cleanup := setupTestImporter(t)
	defer cleanup()

	result, err := imp.ImportData([]any{
		map[string]any{
			"slug": "illustrated",
			"cover": map[string]any{
				"url":  "https://cdn.example.com/cover.png",
				"mime": "image/png",
			},
		},
	}, Options{Model: "article", Format: parsers.FormatObject})
	require.NoError(t, err)
	assert.Empty(t, result.Failures)

	var file store.File
	require.NoError(t, s.DB.Where("url = ?", "https://cdn.example.com/cover.png").First(&file).Error)

	article, err := s.FindOne("article", map[string]any{"slug": "illustrated"})
	require.NoError(t, err)
	assert.EqualValues(t, file.ID, article.Data["cover"])
}

func TestImportData_AuditActorsNeverTrustClient(t *testing.T) {
	imp, s, cleanup := setupTestImporter(t)
	defer cleanup()

	user, err := s.CreateUser("importer", "imp@example.com", "tok")
	require.NoError(t, err)

	result, err := imp.ImportData([]any{
		map[string]any{
			"slug":      "audited",
			"createdBy": float64(999),
			"updatedBy": float64(999),
		},
	}, Options{Model: "article", Format: parsers.FormatObject, User: user})
	require.NoError(t, err)
	assert.Empty(t, result.Failures)

	article, err := s.FindOne("article", map[string]any{"slug": "audited"})
	require.NoError(t, err)
	assert.Equal(t, user.ID, article.CreatedByID)
	assert.Equal(t, user.ID, article.UpdatedByID)
}

func TestImportData_RepeatedSiblingReferenceIsNotACycle(t *testing.T) {
	imp, s, cleanup := setupTestImporter(t)
	defer cleanup()

	result, err := imp.ImportData([]any{
		map[string]any{
			"slug": "twice-tagged",
			"tags": []any{
				map[string]any{"name": "go"},
				map[string]any{"name": "go"},
			},
			"author": map[string]any{"name": "ann"},
		},
	}, Options{Model: "article", Format: parsers.FormatObject})
	require.NoError(t, err)
	assert.Empty(t, result.Failures)

	article, err := s.FindOne("article", map[string]any{"slug": "twice-tagged"})
	require.NoError(t, err)
	require.NotNil(t, article)

	tags, err := s.FindMany("tag", nil)
	require.NoError(t, err)
	assert.Len(t, tags, 1, "the repeated reference resolves to one entity")
}

func TestImportData_CyclicReferenceFails(t *testing.T) {
	imp, s, cleanup := setupTestImporter(t)
	defer cleanup()

	result, err := imp.ImportData([]any{
		map[string]any{
			"slug": "self",
			"parent": map[string]any{
				"slug": "self",
			},
		},
	}, Options{Model: "page", Format: parsers.FormatObject})
	require.NoError(t, err)

	require.Len(t, result.Failures, 1)
	assert.Contains(t, result.Failures[0].Error, "cyclic reference")

	entities, err := s.FindMany("page", nil)
	require.NoError(t, err)
	assert.Empty(t, entities)
}

func TestImportData_PerRecordFailureIsolation(t *testing.T) {
	imp, s, cleanup := setupTestImporter(t)
	defer cleanup()

	result, err := imp.ImportData([]any{
		map[string]any{"slug": "ok-one"},
		map[string]any{
			"slug":   "broken",
			"blocks": []any{map[string]any{"text": "no discriminator"}},
		},
		map[string]any{"slug": "ok-two"},
	}, Options{Model: "article", Format: parsers.FormatObject})
	require.NoError(t, err)

	require.Len(t, result.Failures, 1)
	assert.Equal(t, "broken", result.Failures[0].Data["slug"])

	entities, err := s.FindMany("article", nil)
	require.NoError(t, err)
	assert.Len(t, entities, 2, "the good records around a bad one survive")
}

func TestImportData_UnknownModel(t *testing.T) {
	imp, _, cleanup := setupTestImporter(t)
	defer cleanup()

	_, err := imp.ImportData([]any{}, Options{Model: "ghost", Format: parsers.FormatObject})
	assert.ErrorIs(t, err, schema.ErrUnknownModel)
}

func TestImportData_UnsupportedFormat(t *testing.T) {
	imp, _, cleanup := setupTestImporter(t)
	defer cleanup()

	_, err := imp.ImportData("x", Options{Model: "article", Format: "yaml"})
	assert.ErrorIs(t, err, parsers.ErrUnsupportedFormat)
}

func TestImportData_MediaPseudoModel(t *testing.T) {
	imp, s, cleanup := setupTestImporter(t)
	defer cleanup()

	result, err := imp.ImportData([]any{
		map[string]any{"url": "https://cdn.example.com/a.jpg", "mime": "image/jpeg"},
		map[string]any{"url": "https://cdn.example.com/b.jpg", "mime": "image/jpeg"},
	}, Options{Model: schema.ModelMedia, Format: parsers.FormatObject})
	require.NoError(t, err)
	assert.Empty(t, result.Failures)

	var count int64
	require.NoError(t, s.DB.Model(&store.File{}).Count(&count).Error)
	assert.Equal(t, int64(2), count)
}

func TestImportData_RecordsSessions(t *testing.T) {
	imp, s, cleanup := setupTestImporter(t)
	defer cleanup()
	imp.WithSessions(s)

	result, err := imp.ImportData([]any{
		map[string]any{"slug": "tracked"},
		map[string]any{
			"slug":   "tracked-broken",
			"blocks": []any{map[string]any{"text": "no tag"}},
		},
	}, Options{Model: "article", Format: parsers.FormatObject})
	require.NoError(t, err)
	require.Len(t, result.Failures, 1)

	var sessions []store.ImportSession
	require.NoError(t, s.DB.Find(&sessions).Error)
	require.Len(t, sessions, 1)

	session := sessions[0]
	assert.Equal(t, "article", session.Model)
	assert.Equal(t, store.ImportStatusCompleted, session.Status)
	assert.Equal(t, 2, session.TotalRecords)
	assert.Equal(t, 1, session.FailedRecords)
	assert.NotNil(t, session.FinishedAt)
}

func TestParseInputData_SingularUnwraps(t *testing.T) {
	imp, _, cleanup := setupTestImporter(t)
	defer cleanup()

	parsed, rowErrors, err := imp.ParseInputData(parsers.FormatJSON,
		`{"headline": "hello"}`,
		Options{Model: "homepage"})
	require.NoError(t, err)
	assert.Empty(t, rowErrors)

	record, ok := parsed.(parsers.Record)
	require.True(t, ok, "singular models parse to a single record")
	assert.Equal(t, "hello", record["headline"])
}

func TestParseInputData_CollectionKeepsSequence(t *testing.T) {
	imp, _, cleanup := setupTestImporter(t)
	defer cleanup()

	parsed, _, err := imp.ParseInputData(parsers.FormatJSON,
		`[{"slug": "a"}, {"slug": "b"}]`,
		Options{Model: "article"})
	require.NoError(t, err)

	records, ok := parsed.([]parsers.Record)
	require.True(t, ok)
	assert.Len(t, records, 2)
}

func TestEngine_UpsertByUniversalID(t *testing.T) {
	_, s, cleanup := setupTestImporter(t)
	defer cleanup()

	engine := NewEngine(importTestRegistry(), s, nil)

	created, err := engine.Upsert(NewContext(nil, nil, false), "note",
		map[string]any{"text": "first"}, "")
	require.NoError(t, err)

	updated, err := engine.Upsert(NewContext(nil, nil, false), "note",
		map[string]any{"id": float64(created.ID), "text": "second"}, "")
	require.NoError(t, err)
	assert.Equal(t, created.ID, updated.ID)

	notes, err := s.FindMany("note", nil)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, "second", notes[0].Data["text"])
}

func TestImportData_CSVCreateAndUpdateByID(t *testing.T) {
	imp, s, cleanup := setupTestImporter(t)
	defer cleanup()

	engine := NewEngine(importTestRegistry(), s, nil)
	existing, err := engine.Upsert(NewContext(nil, nil, false), "note",
		map[string]any{"text": "original"}, "")
	require.NoError(t, err)

	input := "id,text\n" +
		",brand new\n" +
		fmt.Sprintf("%d,replaced\n", existing.ID)

	result, err := imp.ImportData(input, Options{Model: "note", Format: parsers.FormatCSV})
	require.NoError(t, err)
	assert.Empty(t, result.Failures)

	notes, err := s.FindMany("note", nil)
	require.NoError(t, err)
	require.Len(t, notes, 2)

	updated, err := s.FindOne("note", map[string]any{"id": existing.ID})
	require.NoError(t, err)
	require.NotNil(t, updated)
	assert.Equal(t, "replaced", updated.Data["text"])
}

func TestImportDataV2(t *testing.T) {
	imp, s, cleanup := setupTestImporter(t)
	defer cleanup()

	envelope := `{
		"version": 2,
		"data": {
			"article": {
				"1": {"slug": "from-v2", "title": "Enveloped"}
			},
			"tag": {
				"1": {"name": "exported", "publishedAt": "2024-03-01T10:00:00Z"}
			}
		}
	}`

	result, err := imp.ImportDataV2([]byte(envelope), Options{})
	require.NoError(t, err)
	assert.Empty(t, result.Failures)

	article, err := s.FindOne("article", map[string]any{"slug": "from-v2"})
	require.NoError(t, err)
	require.NotNil(t, article)

	tag, err := s.FindOne("tag", map[string]any{"name": "exported"})
	require.NoError(t, err)
	require.NotNil(t, tag)
	_, present := tag.Data["publishedAt"]
	assert.False(t, present)
}

func TestImportDataV2_WrongVersion(t *testing.T) {
	imp, _, cleanup := setupTestImporter(t)
	defer cleanup()

	_, err := imp.ImportDataV2(`{"version": 1, "data": {}}`, Options{})
	assert.Error(t, err)
}

func TestImportDataV2_UnknownModelIsolated(t *testing.T) {
	imp, s, cleanup := setupTestImporter(t)
	defer cleanup()

	envelope := `{
		"version": 2,
		"data": {
			"article": {"1": {"slug": "survives"}},
			"ghost": {"1": {"x": 1}}
		}
	}`

	result, err := imp.ImportDataV2([]byte(envelope), Options{})
	require.NoError(t, err)
	require.Len(t, result.Failures, 1)

	article, err := s.FindOne("article", map[string]any{"slug": "survives"})
	require.NoError(t, err)
	assert.NotNil(t, article)
}

func TestContext_VisitDetectsAncestorRepeats(t *testing.T) {
	ctx := NewContext(nil, nil, false)

	_, err := ctx.visit("page", "a")
	require.NoError(t, err)
	_, err = ctx.visit("page", "b")
	require.NoError(t, err)
	_, err = ctx.visit("article", "a")
	require.NoError(t, err)

	_, err = ctx.visit("page", "a")
	assert.ErrorIs(t, err, ErrCyclicReference)

	// Records without an identifying value never register.
	for _, value := range []any{nil, nil, "", ""} {
		_, err = ctx.visit("page", value)
		require.NoError(t, err)
	}
}

func TestContext_VisitIsPathScoped(t *testing.T) {
	ctx := NewContext(nil, nil, false)

	unvisit, err := ctx.visit("tag", "go")
	require.NoError(t, err)
	unvisit()

	// Once the nested upsert has returned, the same entity may be
	// referenced again by a sibling.
	_, err = ctx.visit("tag", "go")
	assert.NoError(t, err)
}
