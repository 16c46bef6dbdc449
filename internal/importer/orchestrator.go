package importer

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/rglservice/mediation-strapi-import-export/internal/parsers"
	"github.com/rglservice/mediation-strapi-import-export/internal/schema"
	"github.com/rglservice/mediation-strapi-import-export/internal/store"
)

// Options configures one import call. Immutable during the run.
type Options struct {
	Model           string      `json:"model"`
	Format          string      `json:"format"`
	IdentifierField string      `json:"identifierField,omitempty"`
	ImportAsDrafts  bool        `json:"importAsDrafts"`
	User            *store.User `json:"-"`
}

// Failure records one record whose create/update step raised an error.
type Failure struct {
	Error string         `json:"error"`
	Data  map[string]any `json:"data,omitempty"`
}

// Result is the outcome of an import call. Successes are implicit:
// every record not listed in Failures was persisted.
type Result struct {
	Failures []Failure `json:"failures"`
}

// SessionRecorder persists import-session bookkeeping. Optional.
type SessionRecorder interface {
	CreateImportSession(session *store.ImportSession) error
	UpdateImportSession(session *store.ImportSession) error
}

// Importer is the top-level driver: parser dispatch, publish-state
// handling, the per-record loop with failure isolation, and the
// media-only pseudo-model path.
type Importer struct {
	registry *schema.Registry
	engine   *Engine
	media    MediaResolver
	sessions SessionRecorder
	logger   *zap.Logger
}

func New(registry *schema.Registry, entityStore EntityStore, media MediaResolver, logger *zap.Logger) *Importer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Importer{
		registry: registry,
		engine:   NewEngine(registry, entityStore, media),
		media:    media,
		logger:   logger,
	}
}

// WithSessions enables import-session recording.
func (i *Importer) WithSessions(recorder SessionRecorder) *Importer {
	i.sessions = recorder
	return i
}

// Registry exposes the schema introspector to the transport layer.
func (i *Importer) Registry() *schema.Registry {
	return i.registry
}

// ParseInputData runs just the parsing phase. Singular models yield a
// single record; collections yield a sequence. Row-level problems come
// back as strings without failing the parse.
func (i *Importer) ParseInputData(format string, raw any, opts Options) (any, []string, error) {
	model, err := i.targetModel(opts.Model)
	if err != nil {
		return nil, nil, err
	}
	if !model.DraftAndPublish {
		opts.ImportAsDrafts = false
	}

	parser, err := parsers.ForFormat(format)
	if err != nil {
		return nil, nil, err
	}
	records, rowErrors, err := parser.Parse(raw, parsers.Options{Model: model, ImportAsDrafts: opts.ImportAsDrafts})
	if err != nil {
		return nil, nil, err
	}

	if model.IsSingular() && len(records) > 0 {
		return records[0], rowErrors, nil
	}
	return records, rowErrors, nil
}

// ImportData runs the whole pipeline for one payload. Each record is
// attempted independently; one record's failure never prevents the
// next from being attempted. The returned result lists only failures.
func (i *Importer) ImportData(raw any, opts Options) (*Result, error) {
	model, err := i.targetModel(opts.Model)
	if err != nil {
		return nil, err
	}
	// Draft mode is meaningless for models without draft/publish
	// support; force it off before parsing regardless of caller intent.
	if !model.DraftAndPublish {
		opts.ImportAsDrafts = false
	}

	parser, err := parsers.ForFormat(opts.Format)
	if err != nil {
		return nil, err
	}
	records, rowErrors, err := parser.Parse(raw, parsers.Options{Model: model, ImportAsDrafts: opts.ImportAsDrafts})
	if err != nil {
		return nil, err
	}

	session := i.beginSession(opts, len(records))

	result := &Result{}
	for _, rowError := range rowErrors {
		result.Failures = append(result.Failures, Failure{Error: rowError})
	}

	if opts.Model == schema.ModelMedia {
		i.importMedia(records, opts, result)
	} else {
		i.importRecords(model, records, opts, result)
	}

	i.finishSession(session, result)
	return result, nil
}

// importRecords is the standard per-record loop.
func (i *Importer) importRecords(model schema.Model, records []parsers.Record, opts Options, result *Result) {
	for idx, record := range records {
		// Defensive re-application of the publish policy: the field
		// must never reach the store for models without support.
		if !model.DraftAndPublish {
			delete(record, schema.FieldPublishedAt)
		}

		snapshot := copyRecord(record)
		ctx := NewContext(opts.User, i.logger, opts.ImportAsDrafts)

		if _, err := i.engine.Upsert(ctx, model.ID, record, opts.IdentifierField); err != nil {
			i.logger.Warn("record import failed",
				zap.String("model", model.ID),
				zap.Int("record", idx),
				zap.Error(err))
			result.Failures = append(result.Failures, Failure{Error: err.Error(), Data: snapshot})
		}
	}
}

// importMedia treats every record as a file descriptor for the media
// library, independent of the upsert engine.
func (i *Importer) importMedia(records []parsers.Record, opts Options, result *Result) {
	if i.media == nil {
		result.Failures = append(result.Failures, Failure{Error: "media resolution is not configured"})
		return
	}
	userID := uint(0)
	if opts.User != nil {
		userID = opts.User.ID
	}
	for idx, record := range records {
		if _, err := i.media.FindOrImport(record, userID, nil); err != nil {
			i.logger.Warn("media import failed", zap.Int("record", idx), zap.Error(err))
			result.Failures = append(result.Failures, Failure{Error: err.Error(), Data: record})
		}
	}
}

// EnvelopeV2 is the second generation of the structured export: it
// carries its own per-model data map keyed by record, and therefore
// bypasses format detection entirely.
type EnvelopeV2 struct {
	Version int                                  `json:"version"`
	Data    map[string]map[string]map[string]any `json:"data"`
}

// ImportDataV2 imports a versioned envelope. Models and records are
// processed in deterministic key order; failure isolation matches the
// standard loop.
func (i *Importer) ImportDataV2(raw any, opts Options) (*Result, error) {
	envelope, err := decodeEnvelope(raw)
	if err != nil {
		return nil, err
	}
	if envelope.Version != 2 {
		return nil, fmt.Errorf("unsupported envelope version %d", envelope.Version)
	}

	result := &Result{}
	for _, modelID := range sortedKeys(envelope.Data) {
		model, err := i.registry.Model(modelID)
		if err != nil {
			result.Failures = append(result.Failures, Failure{Error: err.Error()})
			continue
		}

		asDrafts := opts.ImportAsDrafts && model.DraftAndPublish
		entries := envelope.Data[modelID]

		records := make([]parsers.Record, 0, len(entries))
		for _, key := range sortedKeys(entries) {
			record := entries[key]
			parsers.NormalizePublishState(record, model, asDrafts)
			records = append(records, record)
		}

		modelOpts := opts
		modelOpts.Model = modelID
		modelOpts.ImportAsDrafts = asDrafts
		i.importRecords(model, records, modelOpts, result)
	}
	return result, nil
}

// targetModel resolves a model id, synthesizing a descriptor for the
// reserved media pseudo-model which has no schema entry of its own.
func (i *Importer) targetModel(id string) (schema.Model, error) {
	if id == schema.ModelMedia {
		return schema.Model{ID: schema.ModelMedia, Kind: schema.KindCollection}, nil
	}
	return i.registry.Model(id)
}

func (i *Importer) beginSession(opts Options, total int) *store.ImportSession {
	if i.sessions == nil {
		return nil
	}
	session := &store.ImportSession{
		Model:        opts.Model,
		Format:       opts.Format,
		Status:       store.ImportStatusRunning,
		TotalRecords: total,
		StartedAt:    time.Now(),
	}
	if opts.User != nil {
		session.UserID = opts.User.ID
	}
	if err := i.sessions.CreateImportSession(session); err != nil {
		i.logger.Warn("failed to record import session", zap.Error(err))
		return nil
	}
	return session
}

func (i *Importer) finishSession(session *store.ImportSession, result *Result) {
	if session == nil {
		return
	}
	now := time.Now()
	session.FinishedAt = &now
	session.FailedRecords = len(result.Failures)
	session.Status = store.ImportStatusCompleted
	if session.FailedRecords > 0 && session.FailedRecords >= session.TotalRecords {
		session.Status = store.ImportStatusFailed
	}
	if err := i.sessions.UpdateImportSession(session); err != nil {
		i.logger.Warn("failed to update import session", zap.Error(err))
	}
}

func decodeEnvelope(raw any) (*EnvelopeV2, error) {
	switch v := raw.(type) {
	case *EnvelopeV2:
		return v, nil
	case EnvelopeV2:
		return &v, nil
	case []byte:
		var envelope EnvelopeV2
		if err := json.Unmarshal(v, &envelope); err != nil {
			return nil, fmt.Errorf("failed to decode envelope: %w", err)
		}
		return &envelope, nil
	case string:
		var envelope EnvelopeV2
		if err := json.Unmarshal([]byte(v), &envelope); err != nil {
			return nil, fmt.Errorf("failed to decode envelope: %w", err)
		}
		return &envelope, nil
	default:
		return nil, fmt.Errorf("envelope payload must be JSON text, got %T", raw)
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func copyRecord(record map[string]any) map[string]any {
	snapshot := make(map[string]any, len(record))
	for k, v := range record {
		snapshot[k] = v
	}
	return snapshot
}
