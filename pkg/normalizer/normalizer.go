// Package normalizer maps the loosely labelled extraction output onto
// ProcessedOcrResult.
//
// Merge policy: responses are visited in the order the extraction service
// returned them and, within one output, labels in sorted order. Each
// canonical field takes the first value that is non-empty after
// normalization. Labels that are not in the table are left untouched in
// RawResponse.
package normalizer

import (
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/denysvitali/odi-invoices/pkg/models"
)

var log = logrus.StandardLogger().WithField("package", "normalizer")

type Normalizer struct {
	table *Table
}

// New returns a Normalizer using table, or the embedded table when nil.
func New(table *Table) *Normalizer {
	if table == nil {
		table = DefaultTable()
	}
	return &Normalizer{table: table}
}

func (n *Normalizer) Table() *Table {
	return n.table
}

func (n *Normalizer) Normalize(info models.FileInfo, responses []models.OcrResponse) *models.ProcessedOcrResult {
	res := &models.ProcessedOcrResult{
		FileName:    info.Name,
		FileType:    info.Type,
		FileSize:    info.Size,
		PageCount:   info.Pages,
		RawResponse: cloneResponses(responses),
	}

	var unknown int
	for _, r := range responses {
		keys := make([]string, 0, len(r.Output))
		for k := range r.Output {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		for _, k := range keys {
			field, ok := n.table.Lookup(k)
			if !ok {
				unknown++
				continue
			}
			dst := fieldRef(res, field)
			if *dst != "" {
				continue
			}
			*dst = normalizeValue(field, r.Output[k])
		}
	}
	if unknown > 0 {
		log.Debugf("%s: %d unmapped label(s) kept in raw response", info.Name, unknown)
	}

	res.DocumentType = classify(res)
	return res
}

// Renormalize rebuilds a result from its retained raw responses.
func (n *Normalizer) Renormalize(p *models.ProcessedOcrResult) *models.ProcessedOcrResult {
	return n.Normalize(p.FileInfo(), p.RawResponse)
}

func normalizeValue(field, v string) string {
	switch field {
	case FieldAmount, FieldVatAmount, FieldAmountWithTax:
		return normalizeAmount(v)
	case FieldInvoiceDate:
		return normalizeDate(v)
	default:
		return normalizeText(v)
	}
}

func classify(res *models.ProcessedOcrResult) models.DocumentType {
	if res.Supplier == "" || res.InvoiceNumber == "" {
		return models.DocumentTypeUnclassified
	}
	total := res.AmountWithTax
	if total == "" {
		total = res.Amount
	}
	if isNegativeAmount(total) {
		return models.DocumentTypeCreditNote
	}
	return models.DocumentTypeInvoice
}

func fieldRef(res *models.ProcessedOcrResult, field string) *string {
	switch field {
	case FieldSupplier:
		return &res.Supplier
	case FieldInvoiceNumber:
		return &res.InvoiceNumber
	case FieldInvoiceDate:
		return &res.InvoiceDate
	case FieldAmount:
		return &res.Amount
	case FieldVatAmount:
		return &res.VatAmount
	case FieldAmountWithTax:
		return &res.AmountWithTax
	case FieldDetails:
		return &res.Details
	case FieldCompanyName:
		return &res.CompanyName
	case FieldAddress:
		return &res.Address
	}
	panic("unknown canonical field " + field)
}

func cloneResponses(responses []models.OcrResponse) []models.OcrResponse {
	out := make([]models.OcrResponse, len(responses))
	for i, r := range responses {
		if r.Output == nil {
			continue
		}
		o := make(models.OcrOutput, len(r.Output))
		for k, v := range r.Output {
			o[k] = v
		}
		out[i].Output = o
	}
	return out
}
