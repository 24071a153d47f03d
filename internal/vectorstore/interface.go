// Package vectorstore builds, persists and queries the similarity index over
// catalog segments.
package vectorstore

import (
	"context"
	"errors"

	"github.com/fyrsmithlabs/assessd/internal/chunker"
)

// Sentinel errors for vector store operations.
var (
	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmptyDocuments indicates Build was called with no segments.
	ErrEmptyDocuments = errors.New("empty or nil documents")

	// ErrEmbeddingFailed indicates embedding generation failure.
	ErrEmbeddingFailed = errors.New("failed to generate embeddings")

	// ErrConnectionFailed indicates the backing service is unreachable.
	ErrConnectionFailed = errors.New("failed to connect to vector database")

	// ErrInvalidCollectionName indicates collection name validation failure.
	ErrInvalidCollectionName = errors.New("invalid collection name")

	// ErrBuildFailed wraps any failure while writing a new index.
	ErrBuildFailed = errors.New("index build failed")

	// ErrEmptyQuery indicates Query was called with blank text.
	ErrEmptyQuery = errors.New("query text is empty")
)

// DefaultTopK is used when Query is called with k <= 0.
const DefaultTopK = 5

// Embedder generates vector embeddings from text. Build and Query must use
// the same Embedder or similarity scores are meaningless.
type Embedder interface {
	// EmbedDocuments returns one embedding per input text.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery embeds a single query text.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Store owns the single index location configured at construction.
type Store interface {
	// Build embeds every segment and replaces whatever index exists at the
	// store's location. It fails with ErrEmptyDocuments when segments is
	// empty. A failed build leaves no index behind.
	Build(ctx context.Context, segments []chunker.Segment) (Index, error)

	// Load opens a complete index previously written by Build. It returns
	// ok=false, not an error, when none exists or the existing one is
	// incomplete or was built with a different embedding model.
	Load(ctx context.Context) (idx Index, ok bool, err error)

	// Drop removes the index and its manifest.
	Drop(ctx context.Context) error

	// Close releases file handles and connections.
	Close() error
}

// Index answers nearest-neighbour queries over a built index. Safe for
// concurrent use.
type Index interface {
	// Query returns at most k entries ordered by descending similarity.
	Query(ctx context.Context, text string, k int) ([]Result, error)

	// Count returns the number of stored entries.
	Count() int
}
