// Package pipeline composes the fingerprinter, chunker, embedding client,
// cache store and vector index into the build-or-load flow, and answers
// questions over the built index.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"paperqa/internal/domain"
	"paperqa/internal/fingerprint"
	"paperqa/internal/vectorstore"
)

// Pipeline turns documents into ready-to-query vector indexes, preferring
// cache hits over embedding API calls.
type Pipeline struct {
	chunker    domain.Chunker
	embedder   domain.Embedder
	cache      domain.CacheStore
	completion domain.CompletionService
	topK       int
	logger     *slog.Logger

	// builds collapses concurrent BuildOrLoad calls for one fingerprint to
	// a single embedding run.
	builds singleflight.Group
}

// Options carries the optional pipeline collaborators and tuning knobs.
type Options struct {
	Completion domain.CompletionService
	TopK       int
	Logger     *slog.Logger
}

// New wires a pipeline from its components. Completion may be nil, in which
// case Ask and Summarize report that no completion service is configured.
func New(chunker domain.Chunker, embedder domain.Embedder, cache domain.CacheStore, opts Options) (*Pipeline, error) {
	if chunker == nil || embedder == nil || cache == nil {
		return nil, fmt.Errorf("%w: pipeline needs a chunker, an embedder and a cache store", domain.ErrInvalidConfig)
	}
	topK := opts.TopK
	if topK <= 0 {
		topK = 5
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		chunker:    chunker,
		embedder:   embedder,
		cache:      cache,
		completion: opts.Completion,
		topK:       topK,
		logger:     logger,
	}, nil
}

// buildResult is what a single (possibly shared) build run produces.
type buildResult struct {
	index *vectorstore.FlatIndex
	info  domain.DocumentInfo
}

// BuildOrLoad returns a ready vector index for the document, loading it from
// cache when the content fingerprint matches a stored entry and building it
// otherwise. Concurrent calls for the same fingerprint share one build.
func (p *Pipeline) BuildOrLoad(ctx context.Context, doc *domain.Document) (domain.VectorIndex, domain.DocumentInfo, error) {
	if doc == nil || (len(doc.Data) == 0 && doc.Text == "") {
		return nil, domain.DocumentInfo{}, fmt.Errorf("%w: empty document", domain.ErrInvalidInput)
	}

	fp := fingerprint.Compute(doc.Data)
	v, err, _ := p.builds.Do(string(fp), func() (any, error) {
		return p.buildOrLoad(ctx, doc, fp)
	})
	if err != nil {
		return nil, domain.DocumentInfo{}, err
	}
	res := v.(*buildResult)
	return res.index, res.info, nil
}

func (p *Pipeline) buildOrLoad(ctx context.Context, doc *domain.Document, fp domain.Fingerprint) (*buildResult, error) {
	start := time.Now()
	info := domain.DocumentInfo{FileName: doc.Name, Fingerprint: fp}

	if index, ok := p.loadCached(fp); ok {
		info.FromCache = true
		info.Segments = index.Len()
		info.Elapsed = time.Since(start)
		p.logger.Info("loaded index from cache", "doc", doc.Name, "fingerprint", fp.Short(), "segments", info.Segments)
		return &buildResult{index: index, info: info}, nil
	}

	segments, err := p.chunker.Chunk(doc.Text)
	if err != nil {
		return nil, fmt.Errorf("chunk document %s: %w", doc.Name, err)
	}
	if len(segments) == 0 {
		return nil, fmt.Errorf("%w: document %s has no extractable text", domain.ErrInvalidInput, doc.Name)
	}
	p.logger.Info("chunked document", "doc", doc.Name, "fingerprint", fp.Short(), "segments", len(segments))

	texts := make([]string, len(segments))
	for i, seg := range segments {
		texts[i] = seg.Text
	}
	vectors, err := p.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed document %s (fingerprint %s): %w", doc.Name, fp.Short(), err)
	}

	index, err := vectorstore.NewFlatIndex(p.embedder.Dimensions())
	if err != nil {
		return nil, err
	}
	if err := index.Add(segments, vectors); err != nil {
		return nil, fmt.Errorf("build index for %s: %w", doc.Name, err)
	}

	// A cancelled build must not publish a cache entry.
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.persist(doc, fp, segments, vectors, index)

	info.Segments = index.Len()
	info.Elapsed = time.Since(start)
	return &buildResult{index: index, info: info}, nil
}

// loadCached returns the rebuilt index for a fingerprint if a valid entry
// exists. Any read fault demotes to a miss.
func (p *Pipeline) loadCached(fp domain.Fingerprint) (*vectorstore.FlatIndex, bool) {
	entry, ok, err := p.cache.Lookup(fp)
	if err != nil {
		p.logger.Warn("cache lookup failed, rebuilding", "fingerprint", fp.Short(), "err", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	index, err := vectorstore.UnmarshalState(entry.IndexState)
	if err == nil && index.Dimension() != p.embedder.Dimensions() {
		err = fmt.Errorf("cached dimension %d does not match configured %d", index.Dimension(), p.embedder.Dimensions())
	}
	if err != nil {
		p.logger.Warn("cached index unusable, rebuilding", "fingerprint", fp.Short(), "err", err)
		return nil, false
	}
	return index, true
}

// persist saves the entry best-effort: a failed save is logged and the
// in-memory index stays usable.
func (p *Pipeline) persist(doc *domain.Document, fp domain.Fingerprint, segments []domain.Segment, vectors [][]float32, index *vectorstore.FlatIndex) {
	state, err := index.MarshalState()
	if err != nil {
		p.logger.Warn("could not serialize index, skipping cache save", "fingerprint", fp.Short(), "err", err)
		return
	}
	entry := &domain.CacheEntry{
		Fingerprint: fp,
		Source:      doc.Name,
		Segments:    segments,
		Vectors:     vectors,
		IndexState:  state,
		CreatedAt:   time.Now(),
	}
	if err := p.cache.Save(entry); err != nil {
		p.logger.Warn("cache save failed, continuing with in-memory index", "fingerprint", fp.Short(), "err", err)
		return
	}
	p.logger.Info("cached embeddings", "doc", doc.Name, "fingerprint", fp.Short(), "segments", len(segments))
}

// Query embeds the question and returns the topK most similar segments.
func (p *Pipeline) Query(ctx context.Context, index domain.VectorIndex, question string, topK int) ([]domain.SearchResult, error) {
	if question == "" {
		return nil, fmt.Errorf("%w: empty question", domain.ErrInvalidInput)
	}
	if topK <= 0 {
		topK = p.topK
	}
	vectors, err := p.embedder.EmbedBatch(ctx, []string{question})
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}
	return index.Search(vectors[0], topK)
}

// Invalidate removes any cache entry for the fingerprint.
func (p *Pipeline) Invalidate(fp domain.Fingerprint) error {
	return p.cache.Invalidate(fp)
}
