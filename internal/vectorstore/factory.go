package vectorstore

import (
	"fmt"

	"github.com/fyrsmithlabs/assessd/internal/config"
	"go.uber.org/zap"
)

// EmbeddingModelKey identifies the embedding configuration an index was
// built with. Changing either provider or model invalidates the index.
func EmbeddingModelKey(cfg config.EmbeddingsConfig) string {
	return cfg.Provider + ":" + cfg.Model
}

// NewStore creates the Store selected by cfg.VectorStore.Provider:
//   - "chromem" (default): embedded, persisted under vectorstore.path
//   - "qdrant": remote Qdrant over gRPC, manifest under vectorstore.path
func NewStore(cfg *config.Config, embedder Embedder, logger *zap.Logger) (Store, error) {
	model := EmbeddingModelKey(cfg.Embeddings)

	switch cfg.VectorStore.Provider {
	case "chromem", "":
		return NewChromemStore(ChromemConfig{
			Path:           cfg.VectorStore.Path,
			Collection:     cfg.VectorStore.Collection,
			Compress:       cfg.VectorStore.Compress,
			EmbeddingModel: model,
		}, embedder, logger)

	case "qdrant":
		return NewQdrantStore(QdrantConfig{
			Host:           cfg.Qdrant.Host,
			Port:           cfg.Qdrant.Port,
			APIKey:         cfg.Qdrant.APIKey.Value(),
			UseTLS:         cfg.Qdrant.UseTLS,
			Collection:     cfg.VectorStore.Collection,
			VectorSize:     cfg.Qdrant.VectorSize,
			ManifestDir:    cfg.VectorStore.Path,
			EmbeddingModel: model,
		}, embedder, logger)

	default:
		return nil, fmt.Errorf("%w: unsupported vectorstore provider: %s (supported: chromem, qdrant)", ErrInvalidConfig, cfg.VectorStore.Provider)
	}
}
