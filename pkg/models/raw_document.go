package models

import "fmt"

// RawDocument is an uploaded file after intake validation. It is owned by the
// request that created it and is never persisted.
type RawDocument struct {
	Data      []byte
	MediaType string
	FileName  string
	Size      int64
	Pages     int
}

func (r RawDocument) String() string {
	return fmt.Sprintf("%s (%s, %d bytes)", r.FileName, r.MediaType, r.Size)
}

// FileInfo returns the metadata that survives into the processed result.
func (r RawDocument) FileInfo() FileInfo {
	return FileInfo{
		Name:  r.FileName,
		Type:  r.MediaType,
		Size:  r.Size,
		Pages: r.Pages,
	}
}

type FileInfo struct {
	Name  string `json:"name"`
	Type  string `json:"type"`
	Size  int64  `json:"size"`
	Pages int    `json:"pages"`
}
