package domain

import "errors"

// Errors are split by how the caller must react: configuration errors need a
// config fix, embedding errors abort the current build, cache errors are
// recovered locally and never abort a build.
var (
	// ErrInvalidConfig indicates bad chunking or client parameters.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrInvalidInput indicates malformed caller input (empty question, empty document).
	ErrInvalidInput = errors.New("invalid input")

	// ErrEmbeddingAuth indicates the embedding API rejected the credentials.
	// Not retryable; requires a credentials fix.
	ErrEmbeddingAuth = errors.New("embedding API authentication failed")

	// ErrEmbeddingRequest indicates the embedding API rejected the request
	// itself (bad model name, oversized payload). Not retryable.
	ErrEmbeddingRequest = errors.New("embedding API rejected request")

	// ErrEmbeddingUnavailable indicates transient failures persisted through
	// the whole retry budget. It wraps the last underlying error.
	ErrEmbeddingUnavailable = errors.New("embedding API unavailable")

	// ErrEmbeddingShape indicates the API returned the wrong vector count or
	// dimension. Not retryable: it signals a contract change upstream, not a
	// transient fault.
	ErrEmbeddingShape = errors.New("embedding response shape mismatch")

	// ErrCacheWrite indicates a cache entry could not be persisted. The
	// pipeline logs it and proceeds with an in-memory index.
	ErrCacheWrite = errors.New("cache write failed")

	// ErrCacheRead indicates a stored entry was unreadable or failed
	// validation. Treated as a cache miss.
	ErrCacheRead = errors.New("cache entry unreadable")

	// ErrCompletionUnavailable indicates the chat-completion API stayed
	// unreachable through the retry budget.
	ErrCompletionUnavailable = errors.New("completion API unavailable")
)
