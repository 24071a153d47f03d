package recommend_test

import (
	"context"
	"errors"
	"hash/fnv"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/fyrsmithlabs/assessd/internal/loader"
	"github.com/fyrsmithlabs/assessd/internal/recommend"
	"github.com/fyrsmithlabs/assessd/internal/vectorstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type hashEmbedder struct{}

func (hashEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = hashVector(t)
	}
	return out, nil
}

func (hashEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	return hashVector(text), nil
}

func hashVector(text string) []float32 {
	const dim = 64
	v := make([]float32, dim)
	v[0] = 0.1
	for _, w := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(strings.Trim(w, "|,.:/")))
		v[1+int(h.Sum32()%(dim-1))]++
	}
	var sum float64
	for _, x := range v {
		sum += float64(x * x)
	}
	n := float32(math.Sqrt(sum))
	for i := range v {
		v[i] /= n
	}
	return v
}

type recordingGenerator struct {
	mu      sync.Mutex
	prompts []string
}

func (g *recordingGenerator) Generate(_ context.Context, prompt string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prompts = append(g.prompts, prompt)
	return "Verify Numerical - http://x/1\nSales Solution - http://x/2", nil
}

type refusingLoader struct{}

func (refusingLoader) Load(context.Context, string) ([]loader.Record, error) {
	return nil, errors.New("loader must not run when a persisted index exists")
}

const catalogCSV = "Query,Assessment,URL\n" +
	"Sales exec test,Verify Numerical,http://x/1\n" +
	"Graduate sales role,Sales Solution,http://x/2\n" +
	"Java backend developer,Java 8 Programming,http://x/3\n" +
	",,\n" +
	"Personality for managers,OPQ32r,http://x/4\n"

func newStore(t *testing.T, dir string) vectorstore.Store {
	t.Helper()
	s, err := vectorstore.NewChromemStore(vectorstore.ChromemConfig{
		Path:           dir,
		Collection:     "assessments",
		EmbeddingModel: "test:hash",
	}, hashEmbedder{}, nil)
	require.NoError(t, err)
	return s
}

func TestPipeline_BuildPersistReload(t *testing.T) {
	dataDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "catalog.csv"), []byte(catalogCSV), 0o600))
	indexDir := filepath.Join(t.TempDir(), "db_chromem")
	ctx := context.Background()
	cfg := recommend.Config{DataDir: dataDir, ChunkSize: 500, ChunkOverlap: 50, TopK: 2}

	gen := &recordingGenerator{}
	first, err := recommend.New(recommend.Options{
		Loader:    loader.New(nil),
		Store:     newStore(t, indexDir),
		Generator: gen,
		Config:    cfg,
	})
	require.NoError(t, err)

	resp, err := first.Recommend(ctx, "sales exec numerical test")
	require.NoError(t, err)
	assert.Equal(t, []recommend.Recommendation{
		{Name: "Verify Numerical", URL: "http://x/1"},
		{Name: "Sales Solution", URL: "http://x/2"},
	}, resp.Recommendations)

	firstPrompt := gen.prompts[0]
	assert.Contains(t, firstPrompt, "Sales exec test | Verify Numerical | http://x/1")
	assert.Contains(t, firstPrompt, "Query:\nsales exec numerical test\n")
	require.NoError(t, first.Close())

	// A second process finds the persisted index and never reads the source.
	gen2 := &recordingGenerator{}
	second, err := recommend.New(recommend.Options{
		Loader:    refusingLoader{},
		Store:     newStore(t, indexDir),
		Generator: gen2,
		Config:    cfg,
	})
	require.NoError(t, err)
	defer second.Close()

	_, err = second.Answer(ctx, "sales exec numerical test")
	require.NoError(t, err)
	assert.Equal(t, firstPrompt, gen2.prompts[0], "reloaded index must retrieve the same context")
}
