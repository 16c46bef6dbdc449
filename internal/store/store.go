package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/rglservice/mediation-strapi-import-export/internal/schema"
)

// Entity is the decoded form of a stored entry.
type Entity struct {
	ID          uint
	Model       string
	Data        map[string]any
	PublishedAt *time.Time
	CreatedByID uint
	UpdatedByID uint
}

// Store persists schema-governed entities. Entity documents are opaque
// to the store; filtering decodes and matches in memory, which is fine
// at the scale one import call operates on.
type Store struct {
	DB *gorm.DB
}

func NewStore(dbPath string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s := &Store{DB: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}

	log.Printf("Store initialized at %s", dbPath)
	return s, nil
}

// NewStoreWithDB wraps an already-open connection. Used by tests.
func NewStoreWithDB(db *gorm.DB) (*Store, error) {
	s := &Store{DB: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	err := s.DB.AutoMigrate(
		&User{},
		&EntryRow{},
		&File{},
		&ImportSession{},
	)
	if err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Create persists a new entity for the model. The publishedAt field and
// the audit-actor fields are lifted out of the document into columns.
func (s *Store) Create(model string, data map[string]any) (*Entity, error) {
	row, err := rowFromData(model, data)
	if err != nil {
		return nil, err
	}
	if err := s.DB.Create(row).Error; err != nil {
		return nil, err
	}
	return entityFromRow(*row)
}

// Update overwrites the document of an existing entity by its store
// identity and returns the updated entity.
func (s *Store) Update(model string, id uint, data map[string]any) (*Entity, error) {
	var existing EntryRow
	if err := s.DB.Where("model = ?", model).First(&existing, id).Error; err != nil {
		return nil, err
	}

	row, err := rowFromData(model, data)
	if err != nil {
		return nil, err
	}
	row.ID = existing.ID
	row.CreatedAt = existing.CreatedAt
	if row.CreatedByID == 0 {
		row.CreatedByID = existing.CreatedByID
	}
	if err := s.DB.Save(row).Error; err != nil {
		return nil, err
	}
	return entityFromRow(*row)
}

// FindOne returns the first entity of the model matching the filter, or
// nil when none matches. An empty filter matches any entity of the
// model, which is how singular models are located.
func (s *Store) FindOne(model string, filter map[string]any) (*Entity, error) {
	entities, err := s.findEntities(model, filter, 1)
	if err != nil {
		return nil, err
	}
	if len(entities) == 0 {
		return nil, nil
	}
	return &entities[0], nil
}

// FindMany returns every entity of the model matching the filter.
func (s *Store) FindMany(model string, filter map[string]any) ([]Entity, error) {
	return s.findEntities(model, filter, 0)
}

func (s *Store) findEntities(model string, filter map[string]any, limit int) ([]Entity, error) {
	query := s.DB.Where("model = ?", model).Order("id ASC")

	// The universal id filters on the primary key directly.
	if id, ok := filter[schema.FieldID]; ok {
		query = query.Where("id = ?", toUint(id))
	}

	var rows []EntryRow
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}

	var entities []Entity
	for _, row := range rows {
		entity, err := entityFromRow(row)
		if err != nil {
			return nil, err
		}
		if !matchesFilter(*entity, filter) {
			continue
		}
		entities = append(entities, *entity)
		if limit > 0 && len(entities) >= limit {
			break
		}
	}
	return entities, nil
}

func matchesFilter(entity Entity, filter map[string]any) bool {
	for field, want := range filter {
		if field == schema.FieldID {
			continue // already applied at the query level
		}
		got, ok := entity.Data[field]
		if !ok || scalarKey(got) != scalarKey(want) {
			return false
		}
	}
	return true
}

// scalarKey normalizes a scalar for loose equality: JSON decoding turns
// every number into float64 while source rows may carry strings or ints.
func scalarKey(v any) string {
	switch value := v.(type) {
	case nil:
		return ""
	case float64:
		return strconv.FormatFloat(value, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(value), 'f', -1, 32)
	case string:
		return value
	default:
		return fmt.Sprint(value)
	}
}

func rowFromData(model string, data map[string]any) (*EntryRow, error) {
	doc := make(map[string]any, len(data))
	row := &EntryRow{Model: model}

	for field, value := range data {
		switch field {
		case schema.FieldPublishedAt:
			row.PublishedAt = parsePublishedAt(value)
		case schema.FieldCreatedBy:
			row.CreatedByID = toUint(value)
		case schema.FieldUpdatedBy:
			row.UpdatedByID = toUint(value)
		case schema.FieldID:
			// The store assigns identity itself.
		default:
			doc[field] = value
		}
	}

	encoded, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode document: %w", err)
	}
	row.Document = string(encoded)
	return row, nil
}

func entityFromRow(row EntryRow) (*Entity, error) {
	data := make(map[string]any)
	if row.Document != "" {
		if err := json.Unmarshal([]byte(row.Document), &data); err != nil {
			return nil, fmt.Errorf("corrupt document for %s/%d: %w", row.Model, row.ID, err)
		}
	}
	data[schema.FieldID] = row.ID
	return &Entity{
		ID:          row.ID,
		Model:       row.Model,
		Data:        data,
		PublishedAt: row.PublishedAt,
		CreatedByID: row.CreatedByID,
		UpdatedByID: row.UpdatedByID,
	}, nil
}

func parsePublishedAt(value any) *time.Time {
	switch v := value.(type) {
	case nil:
		return nil
	case time.Time:
		return &v
	case *time.Time:
		return v
	case string:
		if v == "" {
			return nil
		}
		for _, format := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
			if t, err := time.Parse(format, v); err == nil {
				return &t
			}
		}
		return nil
	default:
		return nil
	}
}

func toUint(value any) uint {
	switch v := value.(type) {
	case uint:
		return v
	case int:
		if v < 0 {
			return 0
		}
		return uint(v)
	case int64:
		if v < 0 {
			return 0
		}
		return uint(v)
	case float64:
		if v < 0 {
			return 0
		}
		return uint(v)
	case string:
		parsed, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return 0
		}
		return uint(parsed)
	default:
		return 0
	}
}

func (s *Store) CreateUser(username, email, token string) (*User, error) {
	user := &User{Username: username, Email: email, Token: token}
	if err := s.DB.Create(user).Error; err != nil {
		return nil, err
	}
	return user, nil
}

func (s *Store) GetUserByToken(token string) (*User, error) {
	var user User
	if err := s.DB.Where("token = ?", token).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *Store) GetUserByID(id uint) (*User, error) {
	var user User
	if err := s.DB.First(&user, id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *Store) CreateImportSession(session *ImportSession) error {
	if session.StartedAt.IsZero() {
		session.StartedAt = time.Now()
	}
	if session.Status == "" {
		session.Status = ImportStatusRunning
	}
	return s.DB.Create(session).Error
}

func (s *Store) UpdateImportSession(session *ImportSession) error {
	return s.DB.Save(session).Error
}

func (s *Store) GetImportSession(id uint) (*ImportSession, error) {
	var session ImportSession
	if err := s.DB.First(&session, id).Error; err != nil {
		return nil, err
	}
	return &session, nil
}

// DeleteOldSessions removes finished import sessions older than the
// retention window and reports how many were deleted.
func (s *Store) DeleteOldSessions(retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention)
	result := s.DB.Where("started_at < ? AND status <> ?", cutoff, ImportStatusRunning).
		Delete(&ImportSession{})
	return result.RowsAffected, result.Error
}

// IsNotFound reports whether an error from the store means the record
// does not exist, as opposed to a real failure.
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
