// Package parsers turns raw import payloads into normalized records.
//
// One parser exists per supported source format. Each produces plain
// records keyed by attribute name; relational values are left for the
// import engine to resolve. Parsers recover from bad field values by
// collapsing them to null and reporting row-level problems as strings,
// never by failing the whole parse.
package parsers

import (
	"errors"
	"fmt"
	"time"

	"github.com/rglservice/mediation-strapi-import-export/internal/schema"
)

// Record is one normalized record as produced by a parser.
type Record = map[string]any

// Recognized source formats.
const (
	FormatCSV    = "csv"    // delimited text export
	FormatJSON   = "json"   // legacy structured JSON export
	FormatObject = "object" // already-decoded object or sequence
	FormatDBDump = "dbdump" // foreign relational-database JSON dump
)

var (
	// ErrUnsupportedFormat means no parser exists for the requested format.
	ErrUnsupportedFormat = errors.New("unsupported import format")
	// ErrInvalidShape means a pre-decoded payload is neither an object
	// nor a sequence.
	ErrInvalidShape = errors.New("input is neither an object nor a sequence")
)

// Options selects the target model and the requested draft mode.
type Options struct {
	Model          schema.Model
	ImportAsDrafts bool
}

// Parser converts a raw payload into records. The second return value
// lists recoverable row-level problems; the error is fatal for the
// whole parse.
type Parser interface {
	Parse(raw any, opts Options) ([]Record, []string, error)
}

// ForFormat returns the parser registered for a format name.
func ForFormat(format string) (Parser, error) {
	switch format {
	case FormatCSV:
		return &CSVParser{}, nil
	case FormatJSON:
		return &LegacyJSONParser{}, nil
	case FormatObject:
		return &ObjectParser{}, nil
	case FormatDBDump:
		return &DumpParser{}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}

// NormalizePublishState applies the draft/publish policy to a record in
// place:
//   - models without draft/publish support must not carry the field at
//     all, the store rejects it for them;
//   - draft-mode imports force the field to null no matter the source;
//   - otherwise a parseable source value is canonicalized to RFC3339
//     and anything else passes through unchanged.
//
// The same policy runs once during parsing and once defensively in the
// upsert engine; both applications must agree.
func NormalizePublishState(record Record, model schema.Model, importAsDrafts bool) {
	if !model.DraftAndPublish {
		delete(record, schema.FieldPublishedAt)
		return
	}
	if importAsDrafts {
		record[schema.FieldPublishedAt] = nil
		return
	}
	raw, ok := record[schema.FieldPublishedAt]
	if !ok {
		return
	}
	if s, isString := raw.(string); isString {
		if t, parsed := ParseTimestamp(s); parsed {
			record[schema.FieldPublishedAt] = t.UTC().Format(time.RFC3339)
		}
	}
}

// ParseTimestamp attempts the date layouts seen across export formats.
func ParseTimestamp(value string) (time.Time, bool) {
	if value == "" {
		return time.Time{}, false
	}
	formats := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05-07:00",
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
		"2006-01-02",
		"02/01/2006 15:04:05",
		"02/01/2006",
	}
	for _, format := range formats {
		if t, err := time.Parse(format, value); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
