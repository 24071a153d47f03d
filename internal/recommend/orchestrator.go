// Package recommend answers assessment queries by retrieval-augmented
// generation over the catalog index.
//
// The Orchestrator owns the pipeline loader -> chunker -> vector store ->
// prompt -> LLM. The index is opened or built lazily on first use and
// cached for the lifetime of the Orchestrator.
package recommend

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/fyrsmithlabs/assessd/internal/chunker"
	"github.com/fyrsmithlabs/assessd/internal/config"
	"github.com/fyrsmithlabs/assessd/internal/loader"
	"github.com/fyrsmithlabs/assessd/internal/logging"
	"github.com/fyrsmithlabs/assessd/internal/secrets"
	"github.com/fyrsmithlabs/assessd/internal/vectorstore"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/fyrsmithlabs/assessd/internal/recommend"

// RecordLoader reads catalog records from a directory.
type RecordLoader interface {
	Load(ctx context.Context, dir string) ([]loader.Record, error)
}

// Generator turns a prompt into text.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Config holds pipeline settings.
type Config struct {
	DataDir      string
	ChunkSize    int
	ChunkOverlap int
	TopK         int
}

// FromSettings maps the data, chunking and retrieval sections.
func FromSettings(c *config.Config) Config {
	return Config{
		DataDir:      c.Data.Path,
		ChunkSize:    c.Chunking.Size,
		ChunkOverlap: c.Chunking.Overlap,
		TopK:         c.Retrieval.TopK,
	}
}

// ApplyDefaults fills unset values. A zero overlap is kept.
func (c *Config) ApplyDefaults() {
	if c.DataDir == "" {
		c.DataDir = "./data"
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = chunker.DefaultSize
	}
	if c.TopK <= 0 {
		c.TopK = vectorstore.DefaultTopK
	}
}

// Options wires the Orchestrator's collaborators.
type Options struct {
	Loader    RecordLoader
	Store     vectorstore.Store
	Generator Generator
	// Scrubber redacts the query before it is logged or sent out. Optional.
	Scrubber *secrets.Scrubber
	Config   Config
	Logger   *logging.Logger
}

// Response is the outcome of Recommend. Recommendations is empty when the
// answer did not contain parseable "name - url" lines.
type Response struct {
	Answer          string           `json:"answer"`
	Recommendations []Recommendation `json:"recommendations,omitempty"`
}

// Orchestrator serves queries. Safe for concurrent use.
type Orchestrator struct {
	loader    RecordLoader
	store     vectorstore.Store
	generator Generator
	scrubber  *secrets.Scrubber
	cfg       Config
	logger    *logging.Logger

	// mu serializes initialization and rebuilds; index is nil until Ready.
	mu    sync.Mutex
	index vectorstore.Index

	requests metric.Int64Counter
	duration metric.Float64Histogram
}

// New validates opts and returns an Uninitialized Orchestrator.
func New(opts Options) (*Orchestrator, error) {
	switch {
	case opts.Loader == nil:
		return nil, &Error{Kind: KindConfiguration, Op: "new", Err: errors.New("loader is required")}
	case opts.Store == nil:
		return nil, &Error{Kind: KindConfiguration, Op: "new", Err: errors.New("vector store is required")}
	case opts.Generator == nil:
		return nil, &Error{Kind: KindConfiguration, Op: "new", Err: errors.New("generator is required")}
	}
	cfg := opts.Config
	cfg.ApplyDefaults()
	if _, err := chunker.New(cfg.ChunkSize, cfg.ChunkOverlap); err != nil {
		return nil, classify("new", err, KindConfiguration)
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.Wrap(zap.NewNop())
	}

	o := &Orchestrator{
		loader:    opts.Loader,
		store:     opts.Store,
		generator: opts.Generator,
		scrubber:  opts.Scrubber,
		cfg:       cfg,
		logger:    logger.Named("recommend"),
	}

	meter := otel.Meter(instrumentationName)
	var err error
	o.requests, err = meter.Int64Counter(
		"assessd.recommend.requests_total",
		metric.WithDescription("Answered queries by outcome"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		o.logger.Warn(context.Background(), "failed to create requests counter", zap.Error(err))
	}
	o.duration, err = meter.Float64Histogram(
		"assessd.recommend.answer_duration_seconds",
		metric.WithDescription("End-to-end answer latency"),
		metric.WithUnit("s"),
	)
	if err != nil {
		o.logger.Warn(context.Background(), "failed to create duration histogram", zap.Error(err))
	}
	return o, nil
}

// Ready reports whether the index is open.
func (o *Orchestrator) Ready() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.index != nil
}

// Init opens or builds the index now instead of on the first query.
func (o *Orchestrator) Init(ctx context.Context) error {
	_, err := o.ensureIndex(ctx)
	return err
}

// Rebuild drops any existing index and builds a fresh one from the source
// directory. On failure the Orchestrator is left Uninitialized.
func (o *Orchestrator) Rebuild(ctx context.Context) error {
	ctx, span := otel.Tracer(instrumentationName).Start(ctx, "Orchestrator.Rebuild")
	defer span.End()

	o.mu.Lock()
	defer o.mu.Unlock()

	o.index = nil
	if err := o.store.Drop(ctx); err != nil {
		e := classify("drop", err, KindIndexUnavailable)
		o.fail(ctx, span, e)
		return e
	}
	idx, err := o.build(ctx)
	if err != nil {
		o.fail(ctx, span, err)
		return err
	}
	o.index = idx
	return nil
}

// Answer returns the model's free-text recommendation for query.
func (o *Orchestrator) Answer(ctx context.Context, query string) (answer string, err error) {
	ctx, span := otel.Tracer(instrumentationName).Start(ctx, "Orchestrator.Answer")
	defer span.End()

	start := time.Now()
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = string(KindOf(err))
			o.fail(ctx, span, err)
		}
		attrs := metric.WithAttributes(attribute.String("outcome", outcome))
		if o.requests != nil {
			o.requests.Add(ctx, 1, attrs)
		}
		if o.duration != nil {
			o.duration.Record(ctx, time.Since(start).Seconds(), attrs)
		}
	}()

	query = strings.TrimSpace(query)
	if query == "" {
		return "", &Error{Kind: KindInvalidQuery, Op: "validate", Err: errors.New("query is empty")}
	}
	if o.scrubber.Enabled() {
		res := o.scrubber.Scrub(query)
		if res.HasFindings() {
			o.logger.Warn(ctx, "redacted sensitive content from query", zap.Strings("rules", res.RuleIDs()))
			query = res.Scrubbed
		}
	}
	span.SetAttributes(attribute.Int("query.chars", len(query)))

	idx, err := o.ensureIndex(ctx)
	if err != nil {
		return "", err
	}

	results, err := idx.Query(ctx, query, o.cfg.TopK)
	if err != nil {
		return "", classify("query", err, KindIndexUnavailable)
	}
	span.SetAttributes(attribute.Int("retrieval.results", len(results)))
	o.logger.Debug(ctx, "retrieved context",
		zap.String("query", query),
		zap.Int("results", len(results)),
	)

	answer, err = o.generator.Generate(ctx, BuildPrompt(results, query))
	if err != nil {
		return "", classify("generate", err, KindGeneration)
	}
	return answer, nil
}

// Recommend answers query and extracts structured recommendations from the
// answer when it contains any.
func (o *Orchestrator) Recommend(ctx context.Context, query string) (*Response, error) {
	answer, err := o.Answer(ctx, query)
	if err != nil {
		return nil, err
	}
	answer = strings.TrimSpace(answer)
	return &Response{Answer: answer, Recommendations: ParseRecommendations(answer)}, nil
}

// Close releases the vector store.
func (o *Orchestrator) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.index = nil
	return o.store.Close()
}

// ensureIndex returns the cached index, loading or building it under the
// lock when absent. A failure leaves the cache empty so the next call
// retries.
func (o *Orchestrator) ensureIndex(ctx context.Context) (vectorstore.Index, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.index != nil {
		return o.index, nil
	}

	idx, ok, err := o.store.Load(ctx)
	switch {
	case err != nil:
		o.logger.Warn(ctx, "failed to open persisted index, rebuilding", zap.Error(err))
	case ok:
		o.logger.Info(ctx, "opened persisted index", zap.Int("entries", idx.Count()))
		o.index = idx
		return idx, nil
	default:
		o.logger.Info(ctx, "no persisted index, building from source", zap.String("dir", o.cfg.DataDir))
	}

	idx, err = o.build(ctx)
	if err != nil {
		return nil, err
	}
	o.index = idx
	return idx, nil
}

// build runs loader, chunker and store. Callers hold o.mu.
func (o *Orchestrator) build(ctx context.Context) (vectorstore.Index, error) {
	records, err := o.loader.Load(ctx, o.cfg.DataDir)
	if err != nil {
		return nil, classify("load", err, KindIndexUnavailable)
	}
	if len(records) == 0 {
		return nil, &Error{Kind: KindEmptyInput, Op: "load", Err: errors.New("no catalog rows found in " + o.cfg.DataDir)}
	}

	segments, err := chunker.Split(records, o.cfg.ChunkSize, o.cfg.ChunkOverlap)
	if err != nil {
		return nil, classify("chunk", err, KindConfiguration)
	}
	if len(segments) == 0 {
		return nil, &Error{Kind: KindEmptyInput, Op: "chunk", Err: errors.New("chunking produced no segments")}
	}

	start := time.Now()
	idx, err := o.store.Build(ctx, segments)
	if err != nil {
		return nil, classify("build", err, KindIndexUnavailable)
	}
	o.logger.Info(ctx, "index built",
		zap.Int("records", len(records)),
		zap.Int("segments", len(segments)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return idx, nil
}

func (o *Orchestrator) fail(ctx context.Context, span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	if KindOf(err) == KindInvalidQuery {
		return
	}
	o.logger.Error(ctx, "request failed", zap.String("kind", string(KindOf(err))), zap.Error(err))
}
