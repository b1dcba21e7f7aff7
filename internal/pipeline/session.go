package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"paperqa/internal/domain"
)

// summaryQuestion mirrors the canned summary request of the upstream system.
const summaryQuestion = "Summarize the main content, key points and conclusions of this document."

const answerPrompt = `Answer the question using only the context below.
If the context does not contain the answer, say that the document does not cover it.

Context:
%s

Question: %s`

// Session binds a built vector index to the pipeline for the lifetime of a
// query conversation over one document.
type Session struct {
	p     *Pipeline
	index domain.VectorIndex
	info  domain.DocumentInfo
}

// Answer is a generated answer together with the segments it was grounded on.
type Answer struct {
	Text    string
	Sources []domain.SearchResult
	Elapsed time.Duration
}

// Open prepares a document for querying: build or load its index and wrap it
// in a session.
func (p *Pipeline) Open(ctx context.Context, doc *domain.Document) (*Session, error) {
	index, info, err := p.BuildOrLoad(ctx, doc)
	if err != nil {
		return nil, err
	}
	return &Session{p: p, index: index, info: info}, nil
}

// Info describes the document behind this session.
func (s *Session) Info() domain.DocumentInfo { return s.info }

// Query returns the most similar segments for a question without calling the
// completion service.
func (s *Session) Query(ctx context.Context, question string, topK int) ([]domain.SearchResult, error) {
	return s.p.Query(ctx, s.index, question, topK)
}

// Ask retrieves the top-ranked segments, stuffs them into a single prompt in
// rank order, and returns the completion's answer.
func (s *Session) Ask(ctx context.Context, question string) (*Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("%w: empty question", domain.ErrInvalidInput)
	}
	if s.p.completion == nil {
		return nil, fmt.Errorf("%w: no completion service configured", domain.ErrInvalidConfig)
	}

	start := time.Now()
	results, err := s.p.Query(ctx, s.index, question, s.p.topK)
	if err != nil {
		return nil, err
	}

	contexts := make([]string, len(results))
	for i, r := range results {
		contexts[i] = r.Segment.Text
	}
	prompt := fmt.Sprintf(answerPrompt, strings.Join(contexts, "\n\n"), question)

	text, err := s.p.completion.Complete(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("answer question: %w", err)
	}
	return &Answer{Text: text, Sources: results, Elapsed: time.Since(start)}, nil
}

// Summarize asks the completion service for a document summary through the
// same retrieval path as any other question.
func (s *Session) Summarize(ctx context.Context) (*Answer, error) {
	return s.Ask(ctx, summaryQuestion)
}
