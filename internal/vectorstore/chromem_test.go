package vectorstore_test

import (
	"context"
	"errors"
	"hash/fnv"
	"math"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/fyrsmithlabs/assessd/internal/chunker"
	"github.com/fyrsmithlabs/assessd/internal/telemetry"
	"github.com/fyrsmithlabs/assessd/internal/vectorstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// wordEmbedder hashes lowercase words into a fixed number of buckets. A
// constant bias component keeps every vector non-zero.
type wordEmbedder struct {
	dim   int
	calls atomic.Int32
	fail  bool
}

func (e *wordEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	e.calls.Add(1)
	if e.fail {
		return nil, errors.New("embedding backend unavailable")
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.embed(t)
	}
	return out, nil
}

func (e *wordEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	return e.embed(text), nil
}

func (e *wordEmbedder) embed(text string) []float32 {
	v := make([]float32, e.dim)
	v[0] = 0.1
	for _, w := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(strings.Trim(w, "|,.")))
		v[1+int(h.Sum32())%(e.dim-1)]++
	}
	var sum float64
	for _, x := range v {
		sum += float64(x * x)
	}
	norm := float32(math.Sqrt(sum))
	for i := range v {
		v[i] /= norm
	}
	return v
}

func catalogSegments() []chunker.Segment {
	texts := []string{
		"Verify Numerical Reasoning | numerical data interpretation | 17 minutes",
		"OPQ Personality Questionnaire | personality behaviour at work | 25 minutes",
		"Java Programming Test | java coding knowledge | 30 minutes",
		"Sales Representative Solution | sales skills customer service | 40 minutes",
		"Verbal Reasoning | verbal comprehension reading | 19 minutes",
		"Python Programming Test | python coding knowledge | 30 minutes",
	}
	segs := make([]chunker.Segment, len(texts))
	for i, t := range texts {
		segs[i] = chunker.Segment{
			RecordID: "catalog.xlsx:Catalog:" + strconv.Itoa(i+1),
			Source:   "catalog.xlsx",
			Sheet:    "Catalog",
			Row:      i + 1,
			Text:     t,
		}
	}
	return segs
}

func newChromem(t *testing.T, dir, model string, emb vectorstore.Embedder, logger *zap.Logger) *vectorstore.ChromemStore {
	t.Helper()
	store, err := vectorstore.NewChromemStore(vectorstore.ChromemConfig{
		Path:           dir,
		Collection:     "test_assessments",
		EmbeddingModel: model,
		BatchSize:      4,
	}, emb, logger)
	require.NoError(t, err)
	return store
}

func TestNewChromemStore_Validation(t *testing.T) {
	dir := t.TempDir()

	_, err := vectorstore.NewChromemStore(vectorstore.ChromemConfig{Path: dir, EmbeddingModel: "m"}, nil, nil)
	assert.ErrorIs(t, err, vectorstore.ErrInvalidConfig)

	_, err = vectorstore.NewChromemStore(vectorstore.ChromemConfig{Path: dir, Collection: "Bad-Name", EmbeddingModel: "m"}, &wordEmbedder{dim: 32}, nil)
	assert.ErrorIs(t, err, vectorstore.ErrInvalidCollectionName)

	_, err = vectorstore.NewChromemStore(vectorstore.ChromemConfig{Path: dir}, &wordEmbedder{dim: 32}, nil)
	assert.ErrorIs(t, err, vectorstore.ErrInvalidConfig)
}

func TestChromemStore_BuildThenReloadAnswersIdentically(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	emb := &wordEmbedder{dim: 64}

	store := newChromem(t, dir, "test:words", emb, zap.NewNop())
	idx, err := store.Build(ctx, catalogSegments())
	require.NoError(t, err)
	assert.Equal(t, 6, idx.Count())
	assert.Equal(t, int32(2), emb.calls.Load(), "six segments in batches of four")

	before, err := idx.Query(ctx, "numerical reasoning", 3)
	require.NoError(t, err)
	require.Len(t, before, 3)
	assert.Equal(t, "catalog.xlsx:Catalog:1", before[0].RecordID())
	require.NoError(t, store.Close())

	reopened := newChromem(t, dir, "test:words", emb, zap.NewNop())
	defer reopened.Close()
	loaded, ok, err := reopened.Load(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 6, loaded.Count())
	assert.Equal(t, int32(2), emb.calls.Load(), "loading must not re-embed the corpus")

	after, err := loaded.Query(ctx, "numerical reasoning", 3)
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		again, err := loaded.Query(ctx, "numerical reasoning", 3)
		require.NoError(t, err)
		assert.Equal(t, after, again)
	}
	require.Len(t, after, len(before))
	for i := range before {
		assert.Equal(t, before[i].ID, after[i].ID)
		assert.Equal(t, before[i].Content, after[i].Content)
		assert.InDelta(t, before[i].Score, after[i].Score, 1e-6)
		assert.Equal(t, before[i].Metadata, after[i].Metadata)
	}
}

func TestChromemStore_TiedScoresRankByID(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	emb := &wordEmbedder{dim: 64}

	segs := make([]chunker.Segment, 5)
	for i := range segs {
		// Same text everywhere so every score ties.
		segs[i] = chunker.Segment{
			RecordID: "dup.csv:dup:" + strconv.Itoa(5-i),
			Source:   "dup.csv",
			Row:      5 - i,
			Text:     "General Ability Test | cognitive | 20 minutes",
		}
	}

	store := newChromem(t, dir, "test:words", emb, nil)
	idx, err := store.Build(ctx, segs)
	require.NoError(t, err)

	want := []string{"dup.csv:dup:1#0", "dup.csv:dup:2#0"}
	for i := 0; i < 50; i++ {
		results, err := idx.Query(ctx, "cognitive ability", 2)
		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.Equal(t, want, []string{results[0].ID, results[1].ID})
	}
	require.NoError(t, store.Close())

	reopened := newChromem(t, dir, "test:words", emb, nil)
	defer reopened.Close()
	loaded, ok, err := reopened.Load(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	results, err := loaded.Query(ctx, "cognitive ability", 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, want, []string{results[0].ID, results[1].ID})
}

func TestChromemStore_QueryCapsKAndOrdersByScore(t *testing.T) {
	ctx := context.Background()
	store := newChromem(t, t.TempDir(), "test:words", &wordEmbedder{dim: 64}, nil)
	defer store.Close()

	idx, err := store.Build(ctx, catalogSegments()[:3])
	require.NoError(t, err)

	results, err := idx.Query(ctx, "java coding", 5)
	require.NoError(t, err)
	require.Len(t, results, 3)
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Score, results[i].Score)
	}
	assert.Contains(t, results[0].Content, "Java")
	assert.Equal(t, "catalog.xlsx", results[0].Metadata[vectorstore.MetaSource])
	assert.Equal(t, "0", results[0].Metadata[vectorstore.MetaChunkIndex])

	results, err = idx.Query(ctx, "java coding", 0)
	require.NoError(t, err)
	assert.Len(t, results, 3)

	_, err = idx.Query(ctx, "   ", 5)
	assert.ErrorIs(t, err, vectorstore.ErrEmptyQuery)
}

func TestChromemStore_DefaultTopK(t *testing.T) {
	ctx := context.Background()
	store := newChromem(t, t.TempDir(), "test:words", &wordEmbedder{dim: 64}, nil)
	defer store.Close()

	idx, err := store.Build(ctx, catalogSegments())
	require.NoError(t, err)

	results, err := idx.Query(ctx, "programming test", -1)
	require.NoError(t, err)
	assert.Len(t, results, vectorstore.DefaultTopK)
}

func TestChromemStore_BuildEmpty(t *testing.T) {
	store := newChromem(t, t.TempDir(), "test:words", &wordEmbedder{dim: 64}, nil)
	defer store.Close()

	_, err := store.Build(context.Background(), nil)
	assert.ErrorIs(t, err, vectorstore.ErrEmptyDocuments)
}

func TestChromemStore_FailedBuildLeavesNoIndex(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	emb := &wordEmbedder{dim: 64}

	store := newChromem(t, dir, "test:words", emb, nil)
	defer store.Close()
	_, err := store.Build(ctx, catalogSegments())
	require.NoError(t, err)

	emb.fail = true
	_, err = store.Build(ctx, catalogSegments())
	require.Error(t, err)
	assert.ErrorIs(t, err, vectorstore.ErrBuildFailed)
	assert.ErrorIs(t, err, vectorstore.ErrEmbeddingFailed)

	_, ok, err := store.Load(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestChromemStore_LoadAbsent(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	store := newChromem(t, t.TempDir(), "test:words", &wordEmbedder{dim: 64}, zap.New(core))
	defer store.Close()

	idx, ok, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, idx)
	assert.Equal(t, 1, logs.FilterMessage("no persisted index found").Len())
}

func TestChromemStore_LoadIgnoresOtherEmbeddingModel(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	store := newChromem(t, dir, "test:words", &wordEmbedder{dim: 64}, nil)
	_, err := store.Build(ctx, catalogSegments())
	require.NoError(t, err)
	require.NoError(t, store.Close())

	core, logs := observer.New(zapcore.InfoLevel)
	other := newChromem(t, dir, "test:other", &wordEmbedder{dim: 64}, zap.New(core))
	defer other.Close()

	_, ok, err := other.Load(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
	warned := logs.FilterMessage("ignoring persisted index").All()
	require.Len(t, warned, 1)
	assert.Contains(t, warned[0].ContextMap()["reason"], "test:words")
}

func TestChromemStore_Drop(t *testing.T) {
	ctx := context.Background()
	store := newChromem(t, t.TempDir(), "test:words", &wordEmbedder{dim: 64}, nil)
	defer store.Close()

	_, err := store.Build(ctx, catalogSegments())
	require.NoError(t, err)
	require.NoError(t, store.Drop(ctx))

	_, ok, err := store.Load(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	// Dropping twice is harmless.
	assert.NoError(t, store.Drop(ctx))
}

func TestChromemStore_ConcurrentQueries(t *testing.T) {
	ctx := context.Background()
	store := newChromem(t, t.TempDir(), "test:words", &wordEmbedder{dim: 64}, nil)
	defer store.Close()

	idx, err := store.Build(ctx, catalogSegments())
	require.NoError(t, err)

	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		go func() {
			_, err := idx.Query(ctx, "personality questionnaire", 2)
			errs <- err
		}()
	}
	for i := 0; i < 16; i++ {
		assert.NoError(t, <-errs)
	}
}

func TestChromemStore_EmitsSpansAndMetrics(t *testing.T) {
	tel := telemetry.NewTestTelemetry(t)
	ctx := context.Background()
	store := newChromem(t, t.TempDir(), "test:words", &wordEmbedder{dim: 64}, nil)
	defer store.Close()

	idx, err := store.Build(ctx, catalogSegments())
	require.NoError(t, err)
	_, err = idx.Query(ctx, "sales", 2)
	require.NoError(t, err)

	tel.AssertSpanExists(t, "ChromemStore.Build")
	tel.AssertSpanExists(t, "ChromemStore.Query")
	names := tel.MetricNames(t)
	assert.Contains(t, names, "assessd.vectorstore.build_duration_seconds")
	assert.Contains(t, names, "assessd.vectorstore.query_duration_seconds")
	assert.Contains(t, names, "assessd.vectorstore.entries")
}
