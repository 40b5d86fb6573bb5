package parsers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/wdfday/personalfinance-fe-sub001/pkg/errors"
)

// envelopeKeys are the object keys under which list endpoints nest their items
var envelopeKeys = []string{"data", "items", "results"}

// decodeJSONItems splits a payload into its list items. It accepts a bare
// array or an envelope object, following nested envelopes such as
// {"data": {"items": [...]}}.
func decodeJSONItems(data []byte) ([]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty JSON document")
	}

	switch trimmed[0] {
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, err
		}
		return items, nil

	case '{':
		var envelope map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &envelope); err != nil {
			return nil, err
		}
		for _, key := range envelopeKeys {
			if raw, ok := envelope[key]; ok {
				if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
					return nil, nil
				}
				return decodeJSONItems(raw)
			}
		}
		return nil, fmt.Errorf("object has none of the keys %v", envelopeKeys)

	default:
		return nil, fmt.Errorf("expected a JSON array or object, got %q", trimmed[0])
	}
}

// eachJSONItem walks the items of a JSON payload, calling fn with the 1-based
// index of every item
func (bp *BaseParser) eachJSONItem(ctx context.Context, data []byte, name string, fn func(index int, item json.RawMessage) error) error {
	items, err := decodeJSONItems(data)
	if err != nil {
		bp.logger.WithError(err).WithField("file_path", name).Error("Failed to decode JSON payload")
		return errors.ParseError(errors.CodeInvalidFormat, name, 0, "", "", err).
			WithSuggestion("Provide a JSON array or an object with a data, items or results array")
	}

	bp.logger.WithField("item_count", len(items)).Debug("Decoded JSON payload")

	for i, item := range items {
		if err := ctx.Err(); err != nil {
			return errors.InternalError(errors.CodeCancelled, "json_parsing", err)
		}
		if err := fn(i+1, item); err != nil {
			return err
		}
	}
	return nil
}
