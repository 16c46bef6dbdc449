package schema

import (
	"encoding/json"
	"fmt"
	"os"
)

// ErrUnknownModel is returned when a model id has no descriptor.
var ErrUnknownModel = fmt.Errorf("unknown model")

// Registry holds the model descriptors of the store and answers
// introspection queries. It never mutates the descriptors it serves.
type Registry struct {
	models map[string]Model
	order  []string
}

// NewRegistry builds a registry from in-memory descriptors.
func NewRegistry(models ...Model) *Registry {
	r := &Registry{models: make(map[string]Model, len(models))}
	for _, m := range models {
		if _, exists := r.models[m.ID]; !exists {
			r.order = append(r.order, m.ID)
		}
		r.models[m.ID] = m
	}
	return r
}

// LoadFile reads model descriptors from a JSON schema file.
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema file: %w", err)
	}
	var models []Model
	if err := json.Unmarshal(data, &models); err != nil {
		return nil, fmt.Errorf("failed to parse schema file %s: %w", path, err)
	}
	for _, m := range models {
		if m.ID == "" {
			return nil, fmt.Errorf("schema file %s: model without an id", path)
		}
	}
	return NewRegistry(models...), nil
}

// Model returns the descriptor for a model id.
func (r *Registry) Model(id string) (Model, error) {
	m, ok := r.models[id]
	if !ok {
		return Model{}, fmt.Errorf("%w: %s", ErrUnknownModel, id)
	}
	return m, nil
}

// Attributes lists the attributes of a model in declaration order,
// skipping any of the excluded types.
func (r *Registry) Attributes(id string, exclude ...AttributeType) ([]Attribute, error) {
	m, err := r.Model(id)
	if err != nil {
		return nil, err
	}
	if len(exclude) == 0 {
		return m.Attributes, nil
	}
	excluded := make(map[AttributeType]bool, len(exclude))
	for _, t := range exclude {
		excluded[t] = true
	}
	attrs := make([]Attribute, 0, len(m.Attributes))
	for _, attr := range m.Attributes {
		if !excluded[attr.Type] {
			attrs = append(attrs, attr)
		}
	}
	return attrs, nil
}

// ModelIDs returns every known model id in registration order.
func (r *Registry) ModelIDs() []string {
	ids := make([]string, len(r.order))
	copy(ids, r.order)
	return ids
}

// ExpandModelID expands the reserved whole-database identifier to every
// known model. Any other id expands to itself. Used by the permission
// layer to check access before an import touches multiple models.
func (r *Registry) ExpandModelID(id string) []string {
	if id == ModelAll {
		return r.ModelIDs()
	}
	return []string{id}
}
