package domain

import "context"

// Chunker splits document text into overlapping segments suitable for
// retrieval indexing.
type Chunker interface {
	Chunk(text string) ([]Segment, error)
}

// Embedder converts text into fixed-dimension numeric vectors via a remote
// embedding API. EmbedBatch is order-preserving and 1:1 with its input, and
// is safe to call again with the same input (embedding is a pure function of
// the text).
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
}

// VectorIndex supports nearest-neighbour search over embedded segments.
// Results are ranked by similarity descending; equal scores are ordered by
// original segment index.
type VectorIndex interface {
	Add(segments []Segment, vectors [][]float32) error
	Search(vector []float32, topK int) ([]SearchResult, error)
	Dimension() int
	Len() int
}

// CacheStore persists cache entries on durable storage, keyed by fingerprint.
// Lookup treats a partial or corrupted entry as absent: ok is false and err
// carries the reason (ErrCacheRead) for logging. Invalidate is idempotent.
type CacheStore interface {
	Lookup(fp Fingerprint) (entry *CacheEntry, ok bool, err error)
	Save(entry *CacheEntry) error
	Invalidate(fp Fingerprint) error
}

// CompletionService generates text from a prompt via a remote chat model.
type CompletionService interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Loader reads a document from a source path. Text extraction (e.g. from
// PDF) happens behind this port; the pipeline only sees bytes and text.
type Loader interface {
	Load(path string) (*Document, error)
}
