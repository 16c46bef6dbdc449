package parsers

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/rglservice/mediation-strapi-import-export/internal/schema"
)

// CSVParser decodes the delimited-text export. Cells travel as text,
// so every value is coerced according to the attribute type declared by
// the target model; relational cells carry JSON-encoded payloads.
type CSVParser struct{}

func (p *CSVParser) Parse(raw any, opts Options) ([]Record, []string, error) {
	reader, err := textReader(raw)
	if err != nil {
		return nil, nil, err
	}

	csvReader := csv.NewReader(reader)
	csvReader.FieldsPerRecord = -1 // allow variable number of fields

	header, err := csvReader.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read header: %w", err)
	}
	for i, h := range header {
		header[i] = strings.TrimSpace(h)
	}

	var records []Record
	var rowErrors []string
	lineNum := 1 // the header was line 1

	for {
		lineNum++
		row, err := csvReader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			rowErrors = append(rowErrors, fmt.Sprintf("line %d: %v", lineNum, err))
			continue
		}

		record := make(Record, len(header))
		for i, field := range header {
			if field == "" || i >= len(row) {
				continue
			}
			value, problem := coerceCell(field, strings.TrimSpace(row[i]), opts.Model)
			if problem != "" {
				rowErrors = append(rowErrors, fmt.Sprintf("line %d: %s", lineNum, problem))
			}
			record[field] = value
		}

		NormalizePublishState(record, opts.Model, opts.ImportAsDrafts)
		records = append(records, record)
	}

	return records, rowErrors, nil
}

// coerceCell converts one cell according to the attribute type. Values
// the cell cannot express collapse to nil rather than failing the row;
// the problem string reports decode failures without raising them.
func coerceCell(field, cell string, model schema.Model) (any, string) {
	attr, known := model.Attribute(field)
	if !known {
		return cell, ""
	}

	switch {
	case attr.IsRelational():
		return decodeRelationalCell(field, cell)
	case attr.IsTemporal():
		if t, ok := ParseTimestamp(cell); ok {
			return t.UTC().Format(time.RFC3339), ""
		}
		return cell, "" // left untouched when unparsable
	case attr.Type == schema.TypeBoolean:
		return coerceBoolean(cell), ""
	case attr.Type == schema.TypeNumber:
		if cell == "" {
			return nil, ""
		}
		if n, err := strconv.ParseFloat(cell, 64); err == nil {
			return n, ""
		}
		return nil, ""
	default:
		return cell, ""
	}
}

func decodeRelationalCell(field, cell string) (any, string) {
	if cell == "" || cell == "null" {
		return nil, ""
	}
	var decoded any
	if err := json.Unmarshal([]byte(cell), &decoded); err != nil {
		return nil, fmt.Sprintf("field %s: invalid JSON, value dropped", field)
	}
	return decoded, ""
}

// coerceBoolean accepts the fixed cell vocabulary; anything outside it
// is left as-is for the store to validate.
func coerceBoolean(cell string) any {
	switch cell {
	case "true", "1":
		return true
	case "false", "0":
		return false
	case "null", "":
		return nil
	default:
		return cell
	}
}

func textReader(raw any) (io.Reader, error) {
	switch v := raw.(type) {
	case io.Reader:
		return v, nil
	case []byte:
		return strings.NewReader(string(v)), nil
	case string:
		return strings.NewReader(v), nil
	default:
		return nil, fmt.Errorf("csv input must be text, got %T", raw)
	}
}
