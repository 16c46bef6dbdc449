package parsers

import (
	"encoding/json"
	"fmt"
)

// LegacyJSONParser handles the first generation of the structured JSON
// export. The payload is already typed, so no field coercion happens;
// only the publish-state policy is applied uniformly to every record.
type LegacyJSONParser struct{}

func (p *LegacyJSONParser) Parse(raw any, opts Options) ([]Record, []string, error) {
	decoded, err := decodeJSONPayload(raw)
	if err != nil {
		return nil, nil, err
	}

	records, err := recordSequence(decoded)
	if err != nil {
		return nil, nil, err
	}

	for _, record := range records {
		NormalizePublishState(record, opts.Model, opts.ImportAsDrafts)
	}
	return records, nil, nil
}

func decodeJSONPayload(raw any) (any, error) {
	switch v := raw.(type) {
	case []byte:
		var decoded any
		if err := json.Unmarshal(v, &decoded); err != nil {
			return nil, fmt.Errorf("failed to decode JSON payload: %w", err)
		}
		return decoded, nil
	case string:
		var decoded any
		if err := json.Unmarshal([]byte(v), &decoded); err != nil {
			return nil, fmt.Errorf("failed to decode JSON payload: %w", err)
		}
		return decoded, nil
	default:
		return raw, nil
	}
}

// recordSequence coerces a decoded payload into a record slice. A lone
// object becomes a one-record sequence (singular models export one).
func recordSequence(decoded any) ([]Record, error) {
	switch v := decoded.(type) {
	case map[string]any:
		return []Record{v}, nil
	case []any:
		records := make([]Record, 0, len(v))
		for i, entry := range v {
			record, ok := entry.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%w: entry %d is %T", ErrInvalidShape, i, entry)
			}
			records = append(records, record)
		}
		return records, nil
	case []Record:
		return v, nil
	default:
		return nil, fmt.Errorf("%w: got %T", ErrInvalidShape, decoded)
	}
}
