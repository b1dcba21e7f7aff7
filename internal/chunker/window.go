package chunker

import (
	"fmt"

	"paperqa/internal/domain"
)

// WindowChunker splits text into fixed-size segments with a fixed overlap
// between neighbours. The window counts runes, not bytes, so multi-byte
// text never gets split mid-character.
type WindowChunker struct {
	size    int
	overlap int
}

// NewWindowChunker validates the window parameters. The overlap must be
// strictly smaller than the size or the window would never advance.
func NewWindowChunker(size, overlap int) (*WindowChunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", domain.ErrInvalidConfig, size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("%w: chunk overlap must be in [0, %d), got %d", domain.ErrInvalidConfig, size, overlap)
	}
	return &WindowChunker{size: size, overlap: overlap}, nil
}

// Chunk slides a window of c.size runes over the text, advancing by
// size-overlap each step. The last segment may be shorter than the window;
// there is no padding. Same input always yields the same boundaries.
func (c *WindowChunker) Chunk(text string) ([]domain.Segment, error) {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil, nil
	}

	step := c.size - c.overlap
	var segments []domain.Segment
	for start := 0; start < len(runes); start += step {
		end := start + c.size
		if end > len(runes) {
			end = len(runes)
		}
		segments = append(segments, domain.Segment{
			Index: len(segments),
			Text:  string(runes[start:end]),
		})
		if end == len(runes) {
			break
		}
	}
	return segments, nil
}
