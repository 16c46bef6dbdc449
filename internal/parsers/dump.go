package parsers

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/rglservice/mediation-strapi-import-export/internal/schema"
)

// DumpParser ingests a JSON-encoded dump of rows from a foreign
// relational database. Rows carry the source system's column names, so
// each target model declares a field crosswalk (ForeignFields) mapping
// source columns onto its own attributes. Structured source values are
// re-serialized to text, and the publish state derives from a
// source-specific timestamp column.
//
// Rows that cannot be transformed are skipped and reported as row
// errors; a bad row never aborts the rest of the dump.
type DumpParser struct{}

func (p *DumpParser) Parse(raw any, opts Options) ([]Record, []string, error) {
	if len(opts.Model.ForeignFields) == 0 {
		return nil, nil, fmt.Errorf("model %s has no foreign field mapping", opts.Model.ID)
	}

	decoded, err := decodeJSONPayload(raw)
	if err != nil {
		return nil, nil, err
	}
	rows, ok := decoded.([]any)
	if !ok {
		return nil, nil, fmt.Errorf("%w: dump payload must be a sequence, got %T", ErrInvalidShape, decoded)
	}

	var records []Record
	var rowErrors []string
	for i, entry := range rows {
		record, err := p.transformRow(entry, opts.Model)
		if err != nil {
			rowErrors = append(rowErrors, fmt.Sprintf("row %d: %v", i, err))
			continue
		}
		NormalizePublishState(record, opts.Model, opts.ImportAsDrafts)
		records = append(records, record)
	}
	return records, rowErrors, nil
}

func (p *DumpParser) transformRow(entry any, model schema.Model) (Record, error) {
	row, ok := entry.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expected an object, got %T", entry)
	}

	record := make(Record, len(model.ForeignFields)+1)
	for sourceField, targetField := range model.ForeignFields {
		value, present := row[sourceField]
		if !present || value == nil {
			continue
		}
		switch value.(type) {
		case map[string]any, []any:
			// Structured source columns travel as text in the target.
			encoded, err := json.Marshal(value)
			if err != nil {
				return nil, fmt.Errorf("field %s: %w", sourceField, err)
			}
			record[targetField] = string(encoded)
		default:
			record[targetField] = value
		}
	}

	record[schema.FieldPublishedAt] = dumpPublishState(row, model.ForeignPublishField)
	return record, nil
}

// dumpPublishState derives the publish state from the source timestamp
// column: a parseable timestamp means published at that instant, and
// anything else means the row arrives as a draft.
func dumpPublishState(row map[string]any, field string) any {
	if field == "" {
		return nil
	}
	value, ok := row[field].(string)
	if !ok {
		return nil
	}
	if t, parsed := ParseTimestamp(value); parsed {
		return t.UTC().Format(time.RFC3339)
	}
	return nil
}
