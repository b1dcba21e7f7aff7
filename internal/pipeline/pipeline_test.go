package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"paperqa/internal/cache"
	"paperqa/internal/chunker"
	"paperqa/internal/domain"
	"paperqa/internal/fingerprint"
)

const testDims = 3

// countingEmbedder derives vectors from letter counts so similarity is
// predictable, and counts remote calls.
type countingEmbedder struct {
	calls int64
	delay time.Duration
}

func (e *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	atomic.AddInt64(&e.calls, 1)
	if e.delay > 0 {
		time.Sleep(e.delay)
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v := make([]float32, testDims)
		for _, r := range text {
			switch r {
			case 'a':
				v[0]++
			case 'b':
				v[1]++
			case 'c':
				v[2]++
			}
		}
		out[i] = v
	}
	return out, nil
}

func (e *countingEmbedder) Dimensions() int { return testDims }

func (e *countingEmbedder) callCount() int64 { return atomic.LoadInt64(&e.calls) }

type recordingCompletion struct {
	prompts []string
	reply   string
}

func (c *recordingCompletion) Complete(_ context.Context, prompt string) (string, error) {
	c.prompts = append(c.prompts, prompt)
	return c.reply, nil
}

// failingSaveStore wraps a store and refuses all saves.
type failingSaveStore struct {
	domain.CacheStore
}

func (s *failingSaveStore) Save(*domain.CacheEntry) error {
	return fmt.Errorf("%w: disk full", domain.ErrCacheWrite)
}

func testDoc(text string) *domain.Document {
	return &domain.Document{Name: "paper.txt", Path: "paper.txt", Data: []byte(text), Text: text}
}

func newTestPipeline(t *testing.T, dir string, embedder domain.Embedder, completion domain.CompletionService) *Pipeline {
	t.Helper()
	ch, err := chunker.NewWindowChunker(4, 0)
	require.NoError(t, err)
	store, err := cache.NewFSStore(dir)
	require.NoError(t, err)
	p, err := New(ch, embedder, store, Options{
		Completion: completion,
		TopK:       2,
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	return p
}

func TestBuildOrLoad_SecondCallUsesCacheOnly(t *testing.T) {
	dir := t.TempDir()
	embedder := &countingEmbedder{}
	p := newTestPipeline(t, dir, embedder, nil)

	doc := testDoc("aaaabbbbcccc")
	index, info, err := p.BuildOrLoad(context.Background(), doc)
	require.NoError(t, err)
	assert.False(t, info.FromCache)
	assert.Equal(t, 3, info.Segments)
	assert.Equal(t, "paper.txt", info.FileName)
	require.Equal(t, int64(1), embedder.callCount())

	// unchanged document: everything comes from cache, zero API calls
	index2, info2, err := p.BuildOrLoad(context.Background(), doc)
	require.NoError(t, err)
	assert.True(t, info2.FromCache)
	assert.Equal(t, info.Fingerprint, info2.Fingerprint)
	assert.Equal(t, int64(1), embedder.callCount())

	query := []float32{1, 0, 0}
	first, err := index.Search(query, 3)
	require.NoError(t, err)
	second, err := index2.Search(query, 3)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestBuildOrLoad_ContentChangeRebuilds(t *testing.T) {
	dir := t.TempDir()
	embedder := &countingEmbedder{}
	p := newTestPipeline(t, dir, embedder, nil)

	_, info1, err := p.BuildOrLoad(context.Background(), testDoc("aaaabbbb"))
	require.NoError(t, err)
	_, info2, err := p.BuildOrLoad(context.Background(), testDoc("aaaabbbc"))
	require.NoError(t, err)

	assert.NotEqual(t, info1.Fingerprint, info2.Fingerprint)
	assert.False(t, info2.FromCache)
	assert.Equal(t, int64(2), embedder.callCount())
}

func TestBuildOrLoad_CacheSaveFailureTolerated(t *testing.T) {
	dir := t.TempDir()
	embedder := &countingEmbedder{}
	ch, err := chunker.NewWindowChunker(4, 0)
	require.NoError(t, err)
	store, err := cache.NewFSStore(dir)
	require.NoError(t, err)
	p, err := New(ch, embedder, &failingSaveStore{store}, Options{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)

	doc := testDoc("aaaabbbb")
	index, info, err := p.BuildOrLoad(context.Background(), doc)
	require.NoError(t, err)
	assert.False(t, info.FromCache)
	assert.Equal(t, 2, index.Len())

	// nothing was published
	_, ok, err := store.Lookup(info.Fingerprint)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBuildOrLoad_CorruptEntryRebuilds(t *testing.T) {
	dir := t.TempDir()
	embedder := &countingEmbedder{}
	p := newTestPipeline(t, dir, embedder, nil)

	doc := testDoc("aaaabbbb")
	_, info, err := p.BuildOrLoad(context.Background(), doc)
	require.NoError(t, err)
	require.Equal(t, int64(1), embedder.callCount())

	entryDir := filepath.Join(dir, string(info.Fingerprint))
	require.NoError(t, os.WriteFile(filepath.Join(entryDir, "index.json"), []byte("garbage"), 0o644))

	_, info2, err := p.BuildOrLoad(context.Background(), doc)
	require.NoError(t, err)
	assert.False(t, info2.FromCache)
	assert.Equal(t, int64(2), embedder.callCount())
}

func TestBuildOrLoad_ConcurrentSameFingerprintSharesBuild(t *testing.T) {
	dir := t.TempDir()
	embedder := &countingEmbedder{delay: 50 * time.Millisecond}
	p := newTestPipeline(t, dir, embedder, nil)

	doc := testDoc("aaaabbbbcccc")
	var g errgroup.Group
	for i := 0; i < 4; i++ {
		g.Go(func() error {
			_, _, err := p.BuildOrLoad(context.Background(), doc)
			return err
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, int64(1), embedder.callCount())
}

func TestBuildOrLoad_CancelledBuildPersistsNothing(t *testing.T) {
	dir := t.TempDir()
	embedder := &countingEmbedder{}
	p := newTestPipeline(t, dir, embedder, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	doc := testDoc("aaaabbbb")
	_, _, err := p.BuildOrLoad(ctx, doc)
	require.ErrorIs(t, err, context.Canceled)

	fp := fingerprint.Compute(doc.Data)
	_, statErr := os.Stat(filepath.Join(dir, string(fp)))
	assert.True(t, os.IsNotExist(statErr))
}

func TestBuildOrLoad_EmptyDocument(t *testing.T) {
	p := newTestPipeline(t, t.TempDir(), &countingEmbedder{}, nil)

	_, _, err := p.BuildOrLoad(context.Background(), testDoc(""))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, _, err = p.BuildOrLoad(context.Background(), nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestQuery_EmptyQuestion(t *testing.T) {
	p := newTestPipeline(t, t.TempDir(), &countingEmbedder{}, nil)
	index, _, err := p.BuildOrLoad(context.Background(), testDoc("aaaabbbb"))
	require.NoError(t, err)

	_, err = p.Query(context.Background(), index, "", 2)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestSession_AskStuffsContextInRankOrder(t *testing.T) {
	completion := &recordingCompletion{reply: "generated answer"}
	p := newTestPipeline(t, t.TempDir(), &countingEmbedder{}, completion)

	// segments of size 4: "aaaa", "bbbb", "cccc"
	session, err := p.Open(context.Background(), testDoc("aaaabbbbcccc"))
	require.NoError(t, err)

	answer, err := session.Ask(context.Background(), "bbb")
	require.NoError(t, err)
	assert.Equal(t, "generated answer", answer.Text)
	require.Len(t, answer.Sources, 2)
	assert.Equal(t, 1, answer.Sources[0].Segment.Index)

	require.Len(t, completion.prompts, 1)
	prompt := completion.prompts[0]
	assert.Contains(t, prompt, "bbbb")
	assert.Contains(t, prompt, "Question: bbb")
	// best match appears before the weaker one
	assert.Less(t, strings.Index(prompt, "bbbb"), strings.Index(prompt, "aaaa"))
}

func TestSession_AskValidation(t *testing.T) {
	completion := &recordingCompletion{reply: "x"}
	p := newTestPipeline(t, t.TempDir(), &countingEmbedder{}, completion)
	session, err := p.Open(context.Background(), testDoc("aaaabbbb"))
	require.NoError(t, err)

	_, err = session.Ask(context.Background(), "   ")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestSession_AskWithoutCompletionService(t *testing.T) {
	p := newTestPipeline(t, t.TempDir(), &countingEmbedder{}, nil)
	session, err := p.Open(context.Background(), testDoc("aaaabbbb"))
	require.NoError(t, err)

	_, err = session.Ask(context.Background(), "anything")
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)
}

func TestSession_Summarize(t *testing.T) {
	completion := &recordingCompletion{reply: "summary text"}
	p := newTestPipeline(t, t.TempDir(), &countingEmbedder{}, completion)
	session, err := p.Open(context.Background(), testDoc("aaaabbbbcccc"))
	require.NoError(t, err)

	answer, err := session.Summarize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "summary text", answer.Text)
	require.Len(t, completion.prompts, 1)
	assert.Contains(t, completion.prompts[0], "Summarize the main content")
}

func TestInvalidate_ForcesRebuild(t *testing.T) {
	dir := t.TempDir()
	embedder := &countingEmbedder{}
	p := newTestPipeline(t, dir, embedder, nil)

	doc := testDoc("aaaabbbb")
	_, info, err := p.BuildOrLoad(context.Background(), doc)
	require.NoError(t, err)
	require.NoError(t, p.Invalidate(info.Fingerprint))

	_, info2, err := p.BuildOrLoad(context.Background(), doc)
	require.NoError(t, err)
	assert.False(t, info2.FromCache)
	assert.Equal(t, int64(2), embedder.callCount())
}
