package models

import "time"

// Watermark is the persisted read cursor for one append-only source file
type Watermark struct {
	Path       string    `json:"path"`
	ByteOffset int64     `json:"byteOffset"`
	MtimeMs    int64     `json:"mtimeMs"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// SourceKind tells the orchestrator which extractor a file is routed through
type SourceKind string

const (
	SourceSession    SourceKind = "session"
	SourceCLILog     SourceKind = "cli_log"
	SourceDesktopLog SourceKind = "desktop_log"
)

// StrPtr returns nil for empty strings so optional columns stay NULL
func StrPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Int64Ptr returns a pointer to v
func Int64Ptr(v int64) *int64 {
	return &v
}

// IntPtr returns a pointer to v
func IntPtr(v int) *int {
	return &v
}
