package models

import (
	"fmt"
	"time"
)

// ScannedPage is one page received from a document scanner.
type ScannedPage struct {
	Data       []byte
	ScanId     string
	SequenceId int
	ScanTime   time.Time
}

func (s ScannedPage) Id() string {
	return fmt.Sprintf("%s_%d", s.ScanId, s.SequenceId)
}

func (s ScannedPage) FileName() string {
	return fmt.Sprintf("%s_%03d.jpg", s.ScanId, s.SequenceId)
}
