package schema

// AttributeType classifies an attribute of a model. Every attribute
// belongs to exactly one category.
type AttributeType string

const (
	TypeScalar      AttributeType = "scalar"
	TypeDateTime    AttributeType = "datetime"
	TypeDate        AttributeType = "date"
	TypeTime        AttributeType = "time"
	TypeBoolean     AttributeType = "boolean"
	TypeNumber      AttributeType = "number"
	TypeRelation    AttributeType = "relation"
	TypeComponent   AttributeType = "component"
	TypeDynamicZone AttributeType = "dynamiczone"
	TypeMedia       AttributeType = "media"
)

// ModelKind distinguishes single-entity models from collections.
type ModelKind string

const (
	KindSingular   ModelKind = "singular"
	KindCollection ModelKind = "collection"
)

// Reserved model identifiers understood by the import pipeline.
const (
	// ModelAll denotes the whole database. It is never imported into
	// directly; it expands to every known model for permission checks.
	ModelAll = "all"
	// ModelMedia routes records to the media-only import path.
	ModelMedia = "media"
)

// Well-known attribute names shared by every model.
const (
	FieldID          = "id"
	FieldPublishedAt = "publishedAt"
	FieldCreatedBy   = "createdBy"
	FieldUpdatedBy   = "updatedBy"
)

// Attribute describes one field of a model.
type Attribute struct {
	Name string        `json:"name"`
	Type AttributeType `json:"type"`

	// Target is the model the attribute points at. Set for relation and
	// component attributes; dynamic zone entries carry their own target
	// in the payload discriminator.
	Target string `json:"target,omitempty"`

	// Multiple marks multi-valued relations, repeatable components and
	// multi-file media attributes.
	Multiple bool `json:"multiple,omitempty"`

	// AllowedTypes restricts media attributes to file kinds
	// (e.g. "images", "videos", "files"). Empty means unrestricted.
	AllowedTypes []string `json:"allowedTypes,omitempty"`
}

// IsRelational reports whether the attribute's value must pass through
// relation resolution before being persisted.
func (a Attribute) IsRelational() bool {
	switch a.Type {
	case TypeRelation, TypeComponent, TypeDynamicZone, TypeMedia:
		return true
	}
	return false
}

// IsTemporal reports whether the attribute holds a date/time value.
func (a Attribute) IsTemporal() bool {
	switch a.Type {
	case TypeDateTime, TypeDate, TypeTime:
		return true
	}
	return false
}

// Model describes an entity type governed by the store schema.
type Model struct {
	ID         string      `json:"id"`
	Kind       ModelKind   `json:"kind"`
	Attributes []Attribute `json:"attributes"`

	// DraftAndPublish controls whether entities of this model carry a
	// publish state. Models without it reject the publishedAt field.
	DraftAndPublish bool `json:"draftAndPublish"`

	// IdentifierField overrides the attribute used to match incoming
	// records to existing entities. Empty means the universal id.
	IdentifierField string `json:"identifierField,omitempty"`

	// ForeignFields maps field names of the foreign relational dump to
	// attribute names of this model. Rows of the dump carry only the
	// fields listed here.
	ForeignFields map[string]string `json:"foreignFields,omitempty"`

	// ForeignPublishField names the dump column whose timestamp decides
	// the publish state of imported rows.
	ForeignPublishField string `json:"foreignPublishField,omitempty"`
}

// Attribute returns the named attribute, if the model declares it.
func (m Model) Attribute(name string) (Attribute, bool) {
	for _, attr := range m.Attributes {
		if attr.Name == name {
			return attr, true
		}
	}
	return Attribute{}, false
}

// Identifier returns the identifying field, defaulting to the universal
// id attribute when the model does not override it.
func (m Model) Identifier() string {
	if m.IdentifierField == "" {
		return FieldID
	}
	return m.IdentifierField
}

// IsSingular reports whether the model holds at most one entity.
func (m Model) IsSingular() bool {
	return m.Kind == KindSingular
}
