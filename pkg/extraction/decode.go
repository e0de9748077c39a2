package extraction

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/denysvitali/odi-invoices/pkg/models"
	"github.com/denysvitali/odi-invoices/pkg/ocrerrors"
)

const envelopeSchema = `{
  "$defs": {
    "response": {
      "type": "object",
      "required": ["output"],
      "properties": {
        "output": {
          "type": "object",
          "additionalProperties": {"type": ["string", "number", "boolean", "null"]}
        }
      }
    }
  },
  "oneOf": [
    {"type": "array", "items": {"$ref": "#/$defs/response"}},
    {"$ref": "#/$defs/response"}
  ]
}`

var envelope = jsonschema.MustCompileString("ocr-envelope.json", envelopeSchema)

// DecodeResponses parses an extraction service payload. Both a JSON array of
// {"output": {...}} objects and a single such object are accepted. Anything
// else is reported as a malformed response with the payload retained.
func DecodeResponses(raw []byte) ([]models.OcrResponse, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, ocrerrors.Malformed(raw, fmt.Errorf("empty body"))
	}

	var v any
	if err := json.Unmarshal(trimmed, &v); err != nil {
		return nil, ocrerrors.Malformed(raw, fmt.Errorf("invalid JSON: %w", err))
	}
	if err := envelope.Validate(v); err != nil {
		return nil, ocrerrors.Malformed(raw, err)
	}

	if trimmed[0] == '{' {
		var single models.OcrResponse
		if err := json.Unmarshal(trimmed, &single); err != nil {
			return nil, ocrerrors.Malformed(raw, err)
		}
		return []models.OcrResponse{single}, nil
	}

	responses := []models.OcrResponse{}
	if err := json.Unmarshal(trimmed, &responses); err != nil {
		return nil, ocrerrors.Malformed(raw, err)
	}
	return responses, nil
}
