package models

import "time"

type DocumentType string

const (
	DocumentTypeInvoice      DocumentType = "invoice"
	DocumentTypeCreditNote   DocumentType = "credit_note"
	DocumentTypeUnclassified DocumentType = "unclassified"
)

// ProcessedOcrResult is the stable representation handed to the UI. It can
// always be rebuilt from RawResponse and the file metadata.
type ProcessedOcrResult struct {
	Supplier      string `json:"supplier"`
	InvoiceNumber string `json:"invoiceNumber"`
	InvoiceDate   string `json:"invoiceDate"`
	Amount        string `json:"amount"`
	VatAmount     string `json:"vatAmount"`
	AmountWithTax string `json:"amountWithTax"`
	Details       string `json:"details"`
	CompanyName   string `json:"companyName"`
	Address       string `json:"address"`

	FileName  string `json:"fileName"`
	FileType  string `json:"fileType"`
	FileSize  int64  `json:"fileSize"`
	PageCount int    `json:"pageCount"`

	DocumentType DocumentType  `json:"documentType"`
	RawResponse  []OcrResponse `json:"rawResponse"`
}

func (p ProcessedOcrResult) FileInfo() FileInfo {
	return FileInfo{
		Name:  p.FileName,
		Type:  p.FileType,
		Size:  p.FileSize,
		Pages: p.PageCount,
	}
}

// SavedResult is a result handed to a persistence collaborator.
type SavedResult struct {
	Id      string             `json:"id"`
	SavedAt time.Time          `json:"savedAt"`
	Result  ProcessedOcrResult `json:"result"`
}
