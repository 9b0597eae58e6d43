package ingest

import "context"

// SourceFile is one document found at a source location.
type SourceFile struct {
	Name    string // path relative to the location root, used for provenance
	Path    string // absolute path
	Ext     string
	Size    int64
	HashHex string
}

// DirStats summarizes a listing.
type DirStats struct {
	Scanned      uint32
	Matched      uint32
	Deduplicated uint32
	Failed       uint32
	Skipped      []string // files with unsupported extensions
}

// Source enumerates the documents behind an opaque source location.
type Source interface {
	List(ctx context.Context, location string) ([]SourceFile, DirStats, error)
}
