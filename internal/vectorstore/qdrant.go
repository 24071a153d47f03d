package vectorstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fyrsmithlabs/assessd/internal/chunker"
	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	providerQdrant = "qdrant"

	payloadContent = "content"
	payloadID      = "id"
)

// pointNamespace derives stable point UUIDs from document IDs.
var pointNamespace = uuid.MustParse("8f6b1c52-3d7e-4b8a-9c1f-2a5e6d7b8c90")

// QdrantConfig holds configuration for the Qdrant gRPC client.
type QdrantConfig struct {
	// Host is the Qdrant server hostname or IP address.
	Host string

	// Port is the Qdrant gRPC port, not the 6333 REST port.
	Port int

	// APIKey is sent with every request when set.
	APIKey string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool

	// Collection is the collection name.
	Collection string

	// VectorSize must match the embedder output dimension.
	VectorSize uint64

	// ManifestDir is the local directory holding the build manifest.
	ManifestDir string

	// EmbeddingModel is recorded at build time.
	EmbeddingModel string

	// BatchSize is the number of texts embedded and upserted per request.
	BatchSize int

	// MaxMessageSize is the maximum gRPC message size in bytes.
	MaxMessageSize int
}

// ApplyDefaults sets default values for unset fields.
func (c *QdrantConfig) ApplyDefaults() {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 6334
	}
	if c.Collection == "" {
		c.Collection = "assessments"
	}
	if c.ManifestDir == "" {
		c.ManifestDir = "./vectorstore/qdrant"
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = 50 * 1024 * 1024
	}
}

// Validate validates the configuration.
func (c QdrantConfig) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: invalid port: %d", ErrInvalidConfig, c.Port)
	}
	if c.VectorSize == 0 {
		return fmt.Errorf("%w: vector size required", ErrInvalidConfig)
	}
	if c.EmbeddingModel == "" {
		return fmt.Errorf("%w: embedding model is required", ErrInvalidConfig)
	}
	return ValidateCollectionName(c.Collection)
}

// IsTransientError reports whether a gRPC error means the server was
// unreachable, overloaded or too slow rather than rejecting the request.
func IsTransientError(err error) bool {
	if err == nil {
		return false
	}
	st, ok := status.FromError(err)
	if !ok {
		return false
	}
	switch st.Code() {
	case grpccodes.Unavailable, grpccodes.DeadlineExceeded, grpccodes.Aborted, grpccodes.ResourceExhausted:
		return true
	default:
		return false
	}
}

// QdrantStore keeps the index in a Qdrant collection over gRPC. The build
// manifest stays on local disk.
type QdrantStore struct {
	client   *qdrant.Client
	manifest *Manifest
	embedder Embedder
	config   QdrantConfig
	metrics  *Metrics
	logger   *zap.Logger
}

// NewQdrantStore connects to Qdrant and checks it is healthy.
func NewQdrantStore(config QdrantConfig, embedder Embedder, logger *zap.Logger) (*QdrantStore, error) {
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
	if !config.UseTLS {
		logger.Warn("qdrant gRPC using plaintext", zap.String("host", config.Host))
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   config.Host,
		Port:   config.Port,
		APIKey: config.APIKey,
		UseTLS: config.UseTLS,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(config.MaxMessageSize),
				grpc.MaxCallSendMsgSize(config.MaxMessageSize),
			),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.HealthCheck(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: health check: %v", ErrConnectionFailed, err)
	}

	dir, err := expandPath(config.ManifestDir)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("expanding path: %w", err)
	}
	manifest, err := OpenManifest(dir)
	if err != nil {
		_ = client.Close()
		return nil, err
	}

	logger.Info("qdrant store connected",
		zap.String("host", config.Host),
		zap.Int("port", config.Port),
		zap.String("collection", config.Collection),
	)

	return &QdrantStore{
		client:   client,
		manifest: manifest,
		embedder: embedder,
		config:   config,
		metrics:  NewMetrics(logger),
		logger:   logger,
	}, nil
}

// checkCall labels a failed gRPC call. Calls are made once; transient
// failures wrap ErrConnectionFailed.
func checkCall(name string, err error) error {
	if err == nil {
		return nil
	}
	if IsTransientError(err) {
		return fmt.Errorf("%w: %s: %w", ErrConnectionFailed, name, err)
	}
	return fmt.Errorf("%s: %w", name, err)
}

// Build replaces the collection with the given segments.
func (s *QdrantStore) Build(ctx context.Context, segments []chunker.Segment) (_ Index, err error) {
	ctx, span := tracer().Start(ctx, "QdrantStore.Build")
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
		s.metrics.recordBuild(ctx, providerQdrant, timeNow().Sub(start), len(segments), err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	if err := s.manifest.Delete(s.config.Collection); err != nil {
		return nil, fmt.Errorf("%w: clearing manifest: %w", ErrBuildFailed, err)
	}
	if err := s.dropCollection(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBuildFailed, err)
	}

	docs := documentsFromSegments(segments)
	vectors, err := embedAll(ctx, s.embedder, docs, s.config.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBuildFailed, err)
	}
	if got := uint64(len(vectors[0])); got != s.config.VectorSize {
		return nil, fmt.Errorf("%w: embedder dimension %d does not match vector size %d", ErrBuildFailed, got, s.config.VectorSize)
	}

	if err := s.writeCollection(ctx, docs, vectors); err != nil {
		s.discard()
		return nil, fmt.Errorf("%w: %w", ErrBuildFailed, err)
	}

	info := BuildInfo{
		Collection:     s.config.Collection,
		Provider:       providerQdrant,
		EmbeddingModel: s.config.EmbeddingModel,
		Dimension:      len(vectors[0]),
		Entries:        len(docs),
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
		zap.Duration("took", timeNow().Sub(start)),
	)
	return s.index(info.Entries), nil
}

func (s *QdrantStore) writeCollection(ctx context.Context, docs []Document, vectors [][]float32) error {
	err := s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.config.Collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     s.config.VectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err := checkCall("create_collection", err); err != nil {
		return err
	}

	for start := 0; start < len(docs); start += s.config.BatchSize {
		end := min(start+s.config.BatchSize, len(docs))
		points := make([]*qdrant.PointStruct, 0, end-start)
		for i := start; i < end; i++ {
			points = append(points, toPoint(docs[i], vectors[i]))
		}
		_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: s.config.Collection,
			Wait:           qdrant.PtrOf(true),
			Points:         points,
		})
		if err := checkCall("upsert", err); err != nil {
			return err
		}
	}
	return nil
}

func toPoint(doc Document, vector []float32) *qdrant.PointStruct {
	payload := make(map[string]any, len(doc.Metadata)+2)
	for k, v := range doc.Metadata {
		payload[k] = v
	}
	payload[payloadContent] = doc.Content
	payload[payloadID] = doc.ID

	return &qdrant.PointStruct{
		Id:      qdrant.NewIDUUID(uuid.NewSHA1(pointNamespace, []byte(doc.ID)).String()),
		Vectors: qdrant.NewVectors(vector...),
		Payload: qdrant.NewValueMap(payload),
	}
}

func (s *QdrantStore) dropCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.config.Collection)
	if err := checkCall("collection_exists", err); err != nil || !exists {
		return err
	}
	return checkCall("delete_collection", s.client.DeleteCollection(ctx, s.config.Collection))
}

func (s *QdrantStore) discard() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.dropCollection(ctx); err != nil {
		s.logger.Error("failed to remove partial collection",
			zap.String("collection", s.config.Collection),
			zap.Error(err),
		)
	}
}

// Load opens the collection if the manifest says it is complete and the
// server holds the expected number of points.
func (s *QdrantStore) Load(ctx context.Context) (Index, bool, error) {
	ctx, span := tracer().Start(ctx, "QdrantStore.Load")
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
	if reason := staleReason(info, providerQdrant, s.config.EmbeddingModel); reason != "" {
		s.logger.Warn("ignoring persisted index", zap.String("collection", s.config.Collection), zap.String("reason", reason))
		return nil, false, nil
	}

	count, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.config.Collection,
		Exact:          qdrant.PtrOf(true),
	})
	if status.Code(err) == grpccodes.NotFound || (err != nil && strings.Contains(err.Error(), "doesn't exist")) {
		s.logger.Warn("ignoring persisted index", zap.String("collection", s.config.Collection), zap.String("reason", "collection missing"))
		return nil, false, nil
	}
	if err != nil {
		span.RecordError(err)
		return nil, false, fmt.Errorf("%w: count: %w", ErrConnectionFailed, err)
	}
	if int(count) != info.Entries {
		s.logger.Warn("ignoring persisted index",
			zap.String("collection", s.config.Collection),
			zap.String("reason", "entry count mismatch"),
			zap.Int("want", info.Entries),
			zap.Uint64("got", count),
		)
		return nil, false, nil
	}

	s.metrics.recordEntries(ctx, providerQdrant, info.Entries)
	s.logger.Info("index loaded",
		zap.String("collection", info.Collection),
		zap.Int("entries", info.Entries),
		zap.Time("built_at", info.BuiltAt),
	)
	return s.index(info.Entries), true, nil
}

// Drop removes the collection and its manifest entry.
func (s *QdrantStore) Drop(ctx context.Context) error {
	ctx, span := tracer().Start(ctx, "QdrantStore.Drop")
	defer span.End()

	if err := s.manifest.Delete(s.config.Collection); err != nil {
		return err
	}
	if err := s.dropCollection(ctx); err != nil {
		span.RecordError(err)
		return err
	}
	s.logger.Info("index dropped", zap.String("collection", s.config.Collection))
	return nil
}

// Close closes the manifest and the gRPC connection.
func (s *QdrantStore) Close() error {
	merr := s.manifest.Close()
	if err := s.client.Close(); err != nil {
		return err
	}
	return merr
}

func (s *QdrantStore) index(entries int) *qdrantIndex {
	return &qdrantIndex{store: s, entries: entries}
}

type qdrantIndex struct {
	store   *QdrantStore
	entries int
}

func (x *qdrantIndex) Count() int {
	return x.entries
}

func (x *qdrantIndex) Query(ctx context.Context, text string, k int) (_ []Result, err error) {
	ctx, span := tracer().Start(ctx, "QdrantStore.Query")
	defer span.End()
	s := x.store

	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyQuery
	}
	k = clampK(k, x.entries)
	span.SetAttributes(attribute.Int("k", k))
	if k == 0 {
		return []Result{}, nil
	}

	start := timeNow()
	defer func() { s.metrics.recordQuery(ctx, providerQdrant, timeNow().Sub(start), err) }()

	vector, err := s.embedder.EmbedQuery(ctx, text)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}

	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.config.Collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(k)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err = checkCall("query", err); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("querying collection %s: %w", s.config.Collection, err)
	}

	results := make([]Result, len(points))
	for i, p := range points {
		results[i] = fromPoint(p)
	}
	results = rankResults(results, k)
	span.SetAttributes(attribute.Int("results_count", len(results)))
	return results, nil
}

func fromPoint(p *qdrant.ScoredPoint) Result {
	r := Result{Score: p.GetScore(), Metadata: make(map[string]string, len(p.GetPayload()))}
	for k, v := range p.GetPayload() {
		switch k {
		case payloadContent:
			r.Content = v.GetStringValue()
		case payloadID:
			r.ID = v.GetStringValue()
		default:
			r.Metadata[k] = v.GetStringValue()
		}
	}
	return r
}

var (
	_ Store = (*QdrantStore)(nil)
	_ Index = (*qdrantIndex)(nil)
)
