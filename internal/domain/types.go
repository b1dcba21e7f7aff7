package domain

import "time"

// Fingerprint is the content hash of a document, used as the cache key.
// Identical bytes always produce the same fingerprint; any byte-level edit
// produces a different one.
type Fingerprint string

// Short returns a truncated fingerprint suitable for log lines and labels.
func (f Fingerprint) Short() string {
	if len(f) <= 8 {
		return string(f)
	}
	return string(f[:8])
}

// Document is a single source document loaded into the system: the raw bytes
// for fingerprinting plus the extracted text. Immutable once read.
type Document struct {
	Name string
	Path string
	Data []byte
	Text string
}

// Segment is one overlapping text chunk of a document. Index is the position
// in the original chunking order; it is the segment's identity within a
// cache entry and the tie-breaker for equal-score search results.
type Segment struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
}

// SearchResult is a segment matched by a similarity query.
type SearchResult struct {
	Segment Segment
	Score   float64
}

// CacheEntry is the persisted bundle for one document: its segments, their
// embedding vectors in the same order, and the serialized vector index built
// from them. Entries are written once and never mutated; a content change
// yields a new fingerprint and hence a new entry.
type CacheEntry struct {
	Fingerprint Fingerprint
	Source      string
	Segments    []Segment
	Vectors     [][]float32
	IndexState  []byte
	CreatedAt   time.Time
}

// DocumentInfo describes the outcome of preparing a document for querying.
type DocumentInfo struct {
	FileName    string
	Fingerprint Fingerprint
	Segments    int
	FromCache   bool
	Elapsed     time.Duration
}
