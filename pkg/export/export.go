// Package export renders saved results as spreadsheets.
package export

import (
	"fmt"
	"strconv"

	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"

	"github.com/denysvitali/odi-invoices/pkg/models"
)

const Sheet = "Invoices"

var log = logrus.StandardLogger().WithField("package", "export")

var Headers = []string{
	"Saved At",
	"Document Type",
	"Supplier",
	"Invoice Number",
	"Invoice Date",
	"Amount",
	"VAT Amount",
	"Amount With Tax",
	"Company Name",
	"Address",
	"Details",
	"File Name",
	"Id",
}

// ResultsXLSX returns a workbook with one row per saved result. Amounts that
// parse as numbers are written as numbers.
func ResultsXLSX(results []models.SavedResult) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", Sheet); err != nil {
		return nil, err
	}

	for i, h := range Headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(Sheet, cell, h); err != nil {
			return nil, err
		}
	}

	for i, s := range results {
		r := s.Result
		row := []any{
			s.SavedAt.Format("2006-01-02 15:04"),
			string(r.DocumentType),
			r.Supplier,
			r.InvoiceNumber,
			r.InvoiceDate,
			amountCell(r.Amount),
			amountCell(r.VatAmount),
			amountCell(r.AmountWithTax),
			r.CompanyName,
			r.Address,
			truncate(r.Details, 250),
			r.FileName,
			s.Id,
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(Sheet, cell, &row); err != nil {
			return nil, fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	_ = f.SetColWidth(Sheet, "A", "B", 16)
	_ = f.SetColWidth(Sheet, "C", "D", 24)
	_ = f.SetColWidth(Sheet, "E", "H", 14)
	_ = f.SetColWidth(Sheet, "I", "J", 32)
	_ = f.SetColWidth(Sheet, "K", "K", 48)
	_ = f.SetColWidth(Sheet, "L", "M", 36)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	log.Debugf("exported %d result(s)", len(results))
	return buf.Bytes(), nil
}

func amountCell(v string) any {
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return f
	}
	return v
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
