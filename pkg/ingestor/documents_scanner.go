package ingestor

import "io"

// DocumentsScanner yields scanned pages one at a time. An airscan scan job
// satisfies it.
type DocumentsScanner interface {
	ScanPage() bool
	CurrentPage() io.Reader
	Err() error
}
