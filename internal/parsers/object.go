package parsers

// ObjectParser accepts an already-in-memory object or sequence as-is.
// Anything that is neither fails with ErrInvalidShape. No coercion and
// no publish-state handling happens here; the import engine applies
// the publish policy before writing.
type ObjectParser struct{}

func (p *ObjectParser) Parse(raw any, opts Options) ([]Record, []string, error) {
	records, err := recordSequence(raw)
	if err != nil {
		return nil, nil, err
	}
	return records, nil, nil
}
