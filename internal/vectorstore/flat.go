// Package vectorstore provides an in-process flat vector index with
// brute-force cosine similarity search.
package vectorstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"paperqa/internal/domain"
)

// FlatIndex stores (segment, vector) pairs and searches them by cosine
// similarity. Its full state serializes to bytes so a cache entry can
// publish the built index alongside the raw vectors.
type FlatIndex struct {
	mu        sync.RWMutex
	dimension int
	segments  []domain.Segment
	vectors   [][]float32
}

// indexState is the serialized form of a FlatIndex.
type indexState struct {
	Dimension int              `json:"dimension"`
	Segments  []domain.Segment `json:"segments"`
	Vectors   [][]float32      `json:"vectors"`
}

// NewFlatIndex creates an empty index for vectors of the given dimension.
func NewFlatIndex(dimension int) (*FlatIndex, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("%w: vector dimension must be positive, got %d", domain.ErrInvalidConfig, dimension)
	}
	return &FlatIndex{dimension: dimension}, nil
}

// Add appends segments and their vectors to the index. Lengths must match
// pairwise and every vector must have the index dimension.
func (ix *FlatIndex) Add(segments []domain.Segment, vectors [][]float32) error {
	if len(segments) != len(vectors) {
		return fmt.Errorf("segments and vectors length mismatch: %d vs %d", len(segments), len(vectors))
	}
	ix.mu.Lock()
	defer ix.mu.Unlock()
	for i, v := range vectors {
		if len(v) != ix.dimension {
			return fmt.Errorf("vector %d has dimension %d, index expects %d", i, len(v), ix.dimension)
		}
	}
	ix.segments = append(ix.segments, segments...)
	ix.vectors = append(ix.vectors, vectors...)
	return nil
}

// Search returns the topK most similar segments, ranked by cosine similarity
// descending. Equal scores are ordered by original segment index so results
// are deterministic.
func (ix *FlatIndex) Search(vector []float32, topK int) ([]domain.SearchResult, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if len(vector) != ix.dimension {
		return nil, fmt.Errorf("query vector has dimension %d, index expects %d", len(vector), ix.dimension)
	}
	if topK <= 0 {
		topK = 5
	}

	scores := make([]float64, len(ix.vectors))
	for i := range ix.vectors {
		scores[i] = cosine(ix.vectors[i], vector)
	}
	order := make([]int, len(scores))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool {
		ia, ib := order[a], order[b]
		if scores[ia] != scores[ib] {
			return scores[ia] > scores[ib]
		}
		return ix.segments[ia].Index < ix.segments[ib].Index
	})

	if topK > len(order) {
		topK = len(order)
	}
	results := make([]domain.SearchResult, 0, topK)
	for _, i := range order[:topK] {
		results = append(results, domain.SearchResult{Segment: ix.segments[i], Score: scores[i]})
	}
	return results, nil
}

// Dimension returns the vector dimension the index was built for.
func (ix *FlatIndex) Dimension() int { return ix.dimension }

// Len returns the number of indexed segments.
func (ix *FlatIndex) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.segments)
}

// MarshalState serializes the full index state for persistence.
func (ix *FlatIndex) MarshalState() ([]byte, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return json.Marshal(indexState{
		Dimension: ix.dimension,
		Segments:  ix.segments,
		Vectors:   ix.vectors,
	})
}

// UnmarshalState rebuilds an index from serialized state produced by
// MarshalState.
func UnmarshalState(data []byte) (*FlatIndex, error) {
	var st indexState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("decode index state: %w", err)
	}
	if st.Dimension <= 0 {
		return nil, errors.New("index state has no dimension")
	}
	if len(st.Segments) != len(st.Vectors) {
		return nil, fmt.Errorf("index state segment/vector mismatch: %d vs %d", len(st.Segments), len(st.Vectors))
	}
	for i, v := range st.Vectors {
		if len(v) != st.Dimension {
			return nil, fmt.Errorf("index state vector %d has dimension %d, want %d", i, len(v), st.Dimension)
		}
	}
	return &FlatIndex{
		dimension: st.Dimension,
		segments:  st.Segments,
		vectors:   st.Vectors,
	}, nil
}

// cosine computes cosine similarity without assuming normalized inputs;
// remote embedding APIs do not guarantee unit vectors.
func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
