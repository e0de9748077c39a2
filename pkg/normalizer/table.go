package normalizer

import (
	_ "embed"
	"fmt"
	"io"
	"strings"
	"unicode"

	"github.com/pelletier/go-toml/v2"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

//go:embed labels.toml
var defaultLabels string

// Canonical field names, as they appear in ProcessedOcrResult's JSON.
const (
	FieldSupplier      = "supplier"
	FieldInvoiceNumber = "invoiceNumber"
	FieldInvoiceDate   = "invoiceDate"
	FieldAmount        = "amount"
	FieldVatAmount     = "vatAmount"
	FieldAmountWithTax = "amountWithTax"
	FieldDetails       = "details"
	FieldCompanyName   = "companyName"
	FieldAddress       = "address"
)

var canonicalFields = map[string]struct{}{
	FieldSupplier:      {},
	FieldInvoiceNumber: {},
	FieldInvoiceDate:   {},
	FieldAmount:        {},
	FieldVatAmount:     {},
	FieldAmountWithTax: {},
	FieldDetails:       {},
	FieldCompanyName:   {},
	FieldAddress:       {},
}

type tableFile struct {
	Version int                 `toml:"version"`
	Fields  map[string][]string `toml:"fields"`
}

// Table maps folded label variants to canonical fields.
type Table struct {
	Version int
	labels  map[string]string
}

func DefaultTable() *Table {
	t, err := LoadTable(strings.NewReader(defaultLabels))
	if err != nil {
		panic(fmt.Sprintf("embedded label table: %v", err))
	}
	return t
}

func LoadTable(r io.Reader) (*Table, error) {
	var f tableFile
	dec := toml.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("decode label table: %w", err)
	}
	if f.Version <= 0 {
		return nil, fmt.Errorf("label table version must be positive, got %d", f.Version)
	}

	t := &Table{Version: f.Version, labels: map[string]string{}}
	for field, variants := range f.Fields {
		if _, ok := canonicalFields[field]; !ok {
			return nil, fmt.Errorf("unknown canonical field %q", field)
		}
		for _, v := range append([]string{field}, variants...) {
			key := FoldLabel(v)
			if key == "" {
				return nil, fmt.Errorf("field %q: empty label variant", field)
			}
			if prev, ok := t.labels[key]; ok && prev != field {
				return nil, fmt.Errorf("label %q maps to both %q and %q", v, prev, field)
			}
			t.labels[key] = field
		}
	}
	return t, nil
}

// Lookup returns the canonical field for a raw label.
func (t *Table) Lookup(label string) (string, bool) {
	f, ok := t.labels[FoldLabel(label)]
	return f, ok
}

var apostrophes = strings.NewReplacer("’", "'", "‘", "'", "`", "'", "´", "'")

// FoldLabel reduces a label to the form used for table lookups:
// accents removed, lower case, single spaces, no trailing colon.
func FoldLabel(label string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	s, _, err := transform.String(t, label)
	if err != nil {
		s = label
	}
	s = strings.ToLower(apostrophes.Replace(s))
	s = strings.Join(strings.Fields(s), " ")
	s = strings.TrimSpace(strings.TrimRight(s, ":"))
	return s
}
