package importer

import (
	"fmt"

	"github.com/rglservice/mediation-strapi-import-export/internal/schema"
	"github.com/rglservice/mediation-strapi-import-export/internal/store"
)

// DiscriminatorField tags dynamic zone entries with their concrete
// component model.
const DiscriminatorField = "__component"

// MediaResolver is the external find-or-import collaborator for media
// attributes. Implemented by media.Library.
type MediaResolver interface {
	FindOrImport(descriptor any, userID uint, allowedTypes []string) (*store.File, error)
}

// attributeResolver resolves the raw value of one attribute category
// into the reference form the store accepts. Each variant owns its own
// cardinality and truncation rule.
type attributeResolver interface {
	Resolve(ctx *Context, attr schema.Attribute, value any) (any, error)
}

// Resolver dispatches attribute values to the variant registered for
// the attribute's type tag, recursing through the upsert engine for
// nested entity creation.
type Resolver struct {
	variants map[schema.AttributeType]attributeResolver
}

func newResolver(engine *Engine, media MediaResolver) *Resolver {
	return &Resolver{
		variants: map[schema.AttributeType]attributeResolver{
			schema.TypeRelation:    &relationResolver{engine: engine},
			schema.TypeComponent:   &componentResolver{engine: engine},
			schema.TypeDynamicZone: &dynamicZoneResolver{engine: engine},
			schema.TypeMedia:       &mediaResolver{media: media},
		},
	}
}

// Resolve turns a raw relational value into null, a scalar reference
// id, an array of ids, or a resolved component payload. Audit-actor
// attributes always resolve to the acting user; the import never
// trusts client-supplied actors.
func (r *Resolver) Resolve(ctx *Context, attr schema.Attribute, value any) (any, error) {
	if attr.Name == schema.FieldCreatedBy || attr.Name == schema.FieldUpdatedBy {
		return ctx.UserID(), nil
	}
	if value == nil {
		return nil, nil
	}
	variant, ok := r.variants[attr.Type]
	if !ok {
		return nil, fmt.Errorf("%w: %s (attribute %s)", ErrUnsupportedRelationType, attr.Type, attr.Name)
	}
	return variant.Resolve(ctx, attr, value)
}

// relationResolver keeps bare reference numbers and recursively
// upserts structured entries against the relation's target model.
//
// The output shape follows the input's cardinality, not the schema's:
// an array stays an array even for a single-cardinality attribute.
// This leniency is part of the contract.
type relationResolver struct {
	engine *Engine
}

func (r *relationResolver) Resolve(ctx *Context, attr schema.Attribute, value any) (any, error) {
	if seq, isSeq := value.([]any); isSeq {
		resolved := make([]any, 0, len(seq))
		for _, entry := range seq {
			id, err := r.resolveEntry(ctx, attr, entry)
			if err != nil {
				return nil, err
			}
			resolved = append(resolved, id)
		}
		return resolved, nil
	}
	return r.resolveEntry(ctx, attr, value)
}

func (r *relationResolver) resolveEntry(ctx *Context, attr schema.Attribute, entry any) (any, error) {
	if nested, isObject := entry.(map[string]any); isObject {
		entity, err := r.engine.Upsert(ctx, attr.Target, nested, "")
		if err != nil {
			return nil, err
		}
		return entity.ID, nil
	}
	// Bare reference numbers are kept as-is.
	return entry, nil
}

// componentResolver upserts embedded sub-objects against the component
// model and collects their identifiers. Non-repeatable components
// truncate to at most one entry.
type componentResolver struct {
	engine *Engine
}

func (r *componentResolver) Resolve(ctx *Context, attr schema.Attribute, value any) (any, error) {
	entries := asSequence(value)
	if !attr.Multiple && len(entries) > 1 {
		entries = entries[:1]
	}

	ids := make([]any, 0, len(entries))
	for _, entry := range entries {
		switch e := entry.(type) {
		case map[string]any:
			entity, err := r.engine.Upsert(ctx, attr.Target, e, "")
			if err != nil {
				return nil, err
			}
			ids = append(ids, entity.ID)
		default:
			// Already a reference number.
			ids = append(ids, e)
		}
	}

	if attr.Multiple {
		return ids, nil
	}
	if len(ids) == 0 {
		return nil, nil
	}
	return ids[0], nil
}

// mediaResolver hands each entry to the find-or-import collaborator,
// constrained by the attribute's allowed-type filter.
type mediaResolver struct {
	media MediaResolver
}

func (r *mediaResolver) Resolve(ctx *Context, attr schema.Attribute, value any) (any, error) {
	if r.media == nil {
		return nil, fmt.Errorf("media resolution is not configured")
	}

	entries := asSequence(value)
	if !attr.Multiple && len(entries) > 1 {
		entries = entries[:1]
	}

	ids := make([]any, 0, len(entries))
	for _, entry := range entries {
		file, err := r.media.FindOrImport(entry, ctx.UserID(), attr.AllowedTypes)
		if err != nil {
			return nil, err
		}
		ids = append(ids, file.ID)
	}

	if attr.Multiple {
		return ids, nil
	}
	if len(ids) == 0 {
		return nil, nil
	}
	return ids[0], nil
}

// dynamicZoneResolver upserts each tagged entry against the model its
// discriminator names and re-tags the resolved value, preserving the
// sequence order.
type dynamicZoneResolver struct {
	engine *Engine
}

func (r *dynamicZoneResolver) Resolve(ctx *Context, attr schema.Attribute, value any) (any, error) {
	entries := asSequence(value)
	resolved := make([]any, 0, len(entries))

	for i, entry := range entries {
		obj, isObject := entry.(map[string]any)
		if !isObject {
			return nil, fmt.Errorf("dynamic zone %s: entry %d is %T, expected an object", attr.Name, i, entry)
		}
		tag, _ := obj[DiscriminatorField].(string)
		if tag == "" {
			return nil, fmt.Errorf("dynamic zone %s: entry %d has no %s tag", attr.Name, i, DiscriminatorField)
		}

		payload := make(map[string]any, len(obj))
		for k, v := range obj {
			if k != DiscriminatorField {
				payload[k] = v
			}
		}

		entity, err := r.engine.Upsert(ctx, tag, payload, "")
		if err != nil {
			return nil, err
		}

		tagged := make(map[string]any, len(entity.Data)+1)
		for k, v := range entity.Data {
			tagged[k] = v
		}
		tagged[DiscriminatorField] = tag
		resolved = append(resolved, tagged)
	}

	return resolved, nil
}

func asSequence(value any) []any {
	switch v := value.(type) {
	case nil:
		return nil
	case []any:
		return v
	default:
		return []any{v}
	}
}
