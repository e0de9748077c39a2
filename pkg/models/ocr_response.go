package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// OcrOutput is the loosely typed field set returned by the extraction
// service, keyed by the label the service used ("Montant TVA", ...).
type OcrOutput map[string]string

// UnmarshalJSON accepts string, number, boolean and null values. Numbers keep
// their literal text and null becomes an empty string.
func (o *OcrOutput) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return err
	}
	if m == nil {
		*o = nil
		return nil
	}
	out := make(OcrOutput, len(m))
	for k, v := range m {
		switch t := v.(type) {
		case nil:
			out[k] = ""
		case string:
			out[k] = t
		case json.Number:
			out[k] = t.String()
		case bool:
			out[k] = fmt.Sprintf("%t", t)
		default:
			return fmt.Errorf("label %q: unsupported value type %T", k, v)
		}
	}
	*o = out
	return nil
}

type OcrResponse struct {
	Output OcrOutput `json:"output"`
}
