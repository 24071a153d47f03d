package vectorstore

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fyrsmithlabs/assessd/internal/chunker"
	chromem "github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

const providerChromem = "chromem"

// timeNow is a variable for testing purposes.
var timeNow = time.Now

// ChromemConfig holds configuration for the embedded chromem-go index.
type ChromemConfig struct {
	// Path is the directory holding the collection files and the manifest.
	Path string

	// Collection is the collection name inside Path.
	Collection string

	// Compress enables gzip compression for stored documents.
	Compress bool

	// EmbeddingModel is recorded at build time. Load ignores an index built
	// with a different model.
	EmbeddingModel string

	// BatchSize is the number of texts embedded per request.
	BatchSize int
}

// ApplyDefaults sets default values for unset fields.
func (c *ChromemConfig) ApplyDefaults() {
	if c.Path == "" {
		c.Path = "./vectorstore/db_chromem"
	}
	if c.Collection == "" {
		c.Collection = "assessments"
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
}

// Validate validates the configuration.
func (c *ChromemConfig) Validate() error {
	if err := ValidateCollectionName(c.Collection); err != nil {
		return err
	}
	if c.EmbeddingModel == "" {
		return fmt.Errorf("%w: embedding model is required", ErrInvalidConfig)
	}
	return nil
}

// ChromemStore keeps the index in an embedded chromem-go database persisted
// as gob files under a single directory. No external service is needed.
type ChromemStore struct {
	db       *chromem.DB
	manifest *Manifest
	embedder Embedder
	config   ChromemConfig
	metrics  *Metrics
	logger   *zap.Logger
}

// NewChromemStore opens (or creates) the database directory.
func NewChromemStore(config ChromemConfig, embedder Embedder, logger *zap.Logger) (*ChromemStore, error) {
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	path, err := expandPath(config.Path)
	if err != nil {
		return nil, fmt.Errorf("expanding path: %w", err)
	}
	config.Path = path

	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("creating directory %s: %w", path, err)
	}

	// chromem only loads subdirectories, so the manifest file can share the root.
	db, err := chromem.NewPersistentDB(path, config.Compress)
	if err != nil {
		return nil, fmt.Errorf("creating chromem DB: %w", err)
	}
	manifest, err := OpenManifest(path)
	if err != nil {
		return nil, err
	}

	logger.Info("chromem store opened",
		zap.String("path", path),
		zap.Bool("compress", config.Compress),
		zap.String("collection", config.Collection),
	)

	return &ChromemStore{
		db:       db,
		manifest: manifest,
		embedder: embedder,
		config:   config,
		metrics:  NewMetrics(logger),
		logger:   logger,
	}, nil
}

// embeddingFunc must be passed whenever a collection is fetched; chromem
// falls back to its OpenAI default when given nil.
func (s *ChromemStore) embeddingFunc() chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		return s.embedder.EmbedQuery(ctx, text)
	}
}

// Build replaces the collection with the given segments.
func (s *ChromemStore) Build(ctx context.Context, segments []chunker.Segment) (_ Index, err error) {
	ctx, span := tracer().Start(ctx, "ChromemStore.Build")
	defer span.End()
	span.SetAttributes(
		attribute.String("collection", s.config.Collection),
		attribute.Int("segment_count", len(segments)),
	)

	if len(segments) == 0 {
		return nil, ErrEmptyDocuments
	}

	start := timeNow()
	defer func() {
		s.metrics.recordBuild(ctx, providerChromem, timeNow().Sub(start), len(segments), err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	// The manifest entry goes first so an interrupted build is never loaded.
	if err := s.manifest.Delete(s.config.Collection); err != nil {
		return nil, fmt.Errorf("%w: clearing manifest: %w", ErrBuildFailed, err)
	}
	if err := s.db.DeleteCollection(s.config.Collection); err != nil {
		return nil, fmt.Errorf("%w: removing previous collection: %w", ErrBuildFailed, err)
	}

	docs := documentsFromSegments(segments)
	vectors, err := embedAll(ctx, s.embedder, docs, s.config.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBuildFailed, err)
	}

	collection, err := s.writeCollection(ctx, docs, vectors)
	if err != nil {
		s.discard()
		return nil, fmt.Errorf("%w: %w", ErrBuildFailed, err)
	}

	info := BuildInfo{
		Collection:     s.config.Collection,
		Provider:       providerChromem,
		EmbeddingModel: s.config.EmbeddingModel,
		Dimension:      len(vectors[0]),
		Entries:        collection.Count(),
		Records:        countRecords(segments),
		BuiltAt:        timeNow().UTC(),
	}
	if err := s.manifest.Put(info); err != nil {
		s.discard()
		return nil, fmt.Errorf("%w: writing manifest: %w", ErrBuildFailed, err)
	}

	span.SetStatus(codes.Ok, "success")
	s.logger.Info("index built",
		zap.String("collection", info.Collection),
		zap.Int("entries", info.Entries),
		zap.Int("records", info.Records),
		zap.Int("dimension", info.Dimension),
		zap.Duration("took", timeNow().Sub(start)),
	)

	return &chromemIndex{collection: collection, metrics: s.metrics, logger: s.logger}, nil
}

func (s *ChromemStore) writeCollection(ctx context.Context, docs []Document, vectors [][]float32) (*chromem.Collection, error) {
	collection, err := s.db.CreateCollection(s.config.Collection, nil, s.embeddingFunc())
	if err != nil {
		return nil, fmt.Errorf("creating collection %s: %w", s.config.Collection, err)
	}

	chromemDocs := make([]chromem.Document, len(docs))
	for i, doc := range docs {
		chromemDocs[i] = chromem.Document{
			ID:        doc.ID,
			Content:   doc.Content,
			Metadata:  doc.Metadata,
			Embedding: vectors[i],
		}
	}

	// Embeddings are precomputed, so concurrency only covers file writes.
	if err := collection.AddDocuments(ctx, chromemDocs, 4); err != nil {
		return nil, fmt.Errorf("adding documents: %w", err)
	}
	return collection, nil
}

// discard removes a partially written collection.
func (s *ChromemStore) discard() {
	if err := s.db.DeleteCollection(s.config.Collection); err != nil {
		s.logger.Error("failed to remove partial collection",
			zap.String("collection", s.config.Collection),
			zap.Error(err),
		)
	}
}

// Load opens the collection if the manifest says it is complete.
func (s *ChromemStore) Load(ctx context.Context) (Index, bool, error) {
	_, span := tracer().Start(ctx, "ChromemStore.Load")
	defer span.End()
	span.SetAttributes(attribute.String("collection", s.config.Collection))

	info, ok, err := s.manifest.Get(s.config.Collection)
	if err != nil {
		span.RecordError(err)
		return nil, false, err
	}
	if !ok {
		s.logger.Info("no persisted index found", zap.String("collection", s.config.Collection))
		return nil, false, nil
	}
	if reason := staleReason(info, providerChromem, s.config.EmbeddingModel); reason != "" {
		s.logger.Warn("ignoring persisted index", zap.String("collection", s.config.Collection), zap.String("reason", reason))
		return nil, false, nil
	}

	collection := s.db.GetCollection(s.config.Collection, s.embeddingFunc())
	if collection == nil {
		s.logger.Warn("ignoring persisted index", zap.String("collection", s.config.Collection), zap.String("reason", "collection missing"))
		return nil, false, nil
	}
	if n := collection.Count(); n != info.Entries {
		s.logger.Warn("ignoring persisted index",
			zap.String("collection", s.config.Collection),
			zap.String("reason", "entry count mismatch"),
			zap.Int("want", info.Entries),
			zap.Int("got", n),
		)
		return nil, false, nil
	}

	s.metrics.recordEntries(ctx, providerChromem, info.Entries)
	span.SetAttributes(attribute.Int("entries", info.Entries))
	s.logger.Info("index loaded",
		zap.String("collection", info.Collection),
		zap.Int("entries", info.Entries),
		zap.Time("built_at", info.BuiltAt),
	)
	return &chromemIndex{collection: collection, metrics: s.metrics, logger: s.logger}, true, nil
}

// Drop removes the collection and its manifest entry.
func (s *ChromemStore) Drop(ctx context.Context) error {
	_, span := tracer().Start(ctx, "ChromemStore.Drop")
	defer span.End()

	if err := s.manifest.Delete(s.config.Collection); err != nil {
		return err
	}
	if err := s.db.DeleteCollection(s.config.Collection); err != nil {
		span.RecordError(err)
		return fmt.Errorf("deleting collection %s: %w", s.config.Collection, err)
	}
	s.logger.Info("index dropped", zap.String("collection", s.config.Collection))
	return nil
}

// Close closes the manifest. chromem persists on every write.
func (s *ChromemStore) Close() error {
	return s.manifest.Close()
}

type chromemIndex struct {
	collection *chromem.Collection
	metrics    *Metrics
	logger     *zap.Logger
}

func (x *chromemIndex) Count() int {
	return x.collection.Count()
}

func (x *chromemIndex) Query(ctx context.Context, text string, k int) (_ []Result, err error) {
	ctx, span := tracer().Start(ctx, "ChromemStore.Query")
	defer span.End()

	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyQuery
	}

	// chromem rejects nResults above the document count.
	count := x.collection.Count()
	k = clampK(k, count)
	span.SetAttributes(attribute.Int("k", k))
	if k == 0 {
		return []Result{}, nil
	}

	start := timeNow()
	defer func() { x.metrics.recordQuery(ctx, providerChromem, timeNow().Sub(start), err) }()

	// chromem orders tied scores differently between runs, so every entry
	// is scored and rankResults cuts the top k.
	matches, err := x.collection.Query(ctx, text, count, nil, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("querying collection: %w", err)
	}

	results := make([]Result, len(matches))
	for i, m := range matches {
		results[i] = Result{
			ID:       m.ID,
			Content:  m.Content,
			Score:    m.Similarity,
			Metadata: m.Metadata,
		}
	}

	results = rankResults(results, k)
	span.SetAttributes(attribute.Int("results_count", len(results)))
	x.logger.Debug("queried index", zap.Int("k", k), zap.Int("results", len(results)))
	return results, nil
}

func staleReason(info BuildInfo, provider, model string) string {
	switch {
	case info.Provider != provider:
		return fmt.Sprintf("built by %s provider", info.Provider)
	case info.EmbeddingModel != model:
		return fmt.Sprintf("built with embedding model %s", info.EmbeddingModel)
	case info.Entries == 0:
		return "no entries"
	}
	return ""
}

func countRecords(segments []chunker.Segment) int {
	seen := make(map[string]struct{})
	for _, s := range segments {
		seen[s.RecordID] = struct{}{}
	}
	return len(seen)
}

var (
	_ Store = (*ChromemStore)(nil)
	_ Index = (*chromemIndex)(nil)
)
