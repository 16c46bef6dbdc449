package importer

import (
	"github.com/rglservice/mediation-strapi-import-export/internal/parsers"
	"github.com/rglservice/mediation-strapi-import-export/internal/schema"
	"github.com/rglservice/mediation-strapi-import-export/internal/store"
)

// EntityStore is the opaque persistence collaborator. Implemented by
// store.Store; the engine never reaches past these four operations.
type EntityStore interface {
	FindOne(model string, filter map[string]any) (*store.Entity, error)
	FindMany(model string, filter map[string]any) ([]store.Entity, error)
	Create(model string, data map[string]any) (*store.Entity, error)
	Update(model string, id uint, data map[string]any) (*store.Entity, error)
}

// Engine decides existing-versus-new per record and issues the store
// write, after resolving every relational attribute through the
// Resolver so only references are persisted.
type Engine struct {
	registry *schema.Registry
	store    EntityStore
	resolver *Resolver
}

// NewEngine wires the upsert engine and its resolver together; the two
// recurse into each other for nested entity creation.
func NewEngine(registry *schema.Registry, entityStore EntityStore, media MediaResolver) *Engine {
	engine := &Engine{
		registry: registry,
		store:    entityStore,
	}
	engine.resolver = newResolver(engine, media)
	return engine
}

// Upsert persists one record against a model. The identifier argument
// overrides the model's identifying field; empty means the model's
// own. Store errors surface as-is so the orchestrator can isolate them
// per record.
func (e *Engine) Upsert(ctx *Context, modelID string, record map[string]any, identifier string) (*store.Entity, error) {
	model, err := e.registry.Model(modelID)
	if err != nil {
		return nil, err
	}
	if identifier == "" {
		identifier = model.Identifier()
	}

	unvisit, err := ctx.visit(modelID, record[identifier])
	if err != nil {
		return nil, err
	}
	defer unvisit()

	// Resolve relational attributes in schema order before the write.
	for _, attr := range model.Attributes {
		if !attr.IsRelational() {
			continue
		}
		raw, present := record[attr.Name]
		if !present {
			continue
		}
		resolved, err := e.resolver.Resolve(ctx, attr, raw)
		if err != nil {
			return nil, err
		}
		record[attr.Name] = resolved
	}

	// Safety net: the parser already normalized the publish state, but
	// records can reach the engine without passing a parser (nested
	// sub-records, the pre-decoded path). Both applications agree.
	parsers.NormalizePublishState(record, model, ctx.AsDrafts)

	if model.IsSingular() {
		return e.upsertSingular(model, record)
	}
	return e.upsertCollection(model, record, identifier)
}

// upsertSingular updates the at-most-one entity of a singular model,
// creating it on first import. Incoming identifiers are meaningless
// for singular models and are discarded.
func (e *Engine) upsertSingular(model schema.Model, record map[string]any) (*store.Entity, error) {
	delete(record, schema.FieldID)

	existing, err := e.store.FindOne(model.ID, nil)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return e.store.Update(model.ID, existing.ID, record)
	}
	return e.store.Create(model.ID, record)
}

func (e *Engine) upsertCollection(model schema.Model, record map[string]any, identifier string) (*store.Entity, error) {
	filterValue, present := record[identifier]

	// A custom identifying field must not collide with the store's own
	// identity assignment.
	if identifier != schema.FieldID {
		delete(record, schema.FieldID)
	}

	if !present || isEmptyValue(filterValue) {
		return e.store.Create(model.ID, record)
	}

	existing, err := e.store.FindOne(model.ID, map[string]any{identifier: filterValue})
	if err != nil {
		return nil, err
	}
	if existing != nil {
		// Update by the true store identity, not by the identifying
		// field: identifying values need not be uniquely indexed.
		return e.store.Update(model.ID, existing.ID, record)
	}
	return e.store.Create(model.ID, record)
}

func isEmptyValue(value any) bool {
	if value == nil {
		return true
	}
	if s, ok := value.(string); ok {
		return s == ""
	}
	return false
}
