package main

import (
	"context"
	"fmt"
	"log/slog"

	embedollama "github.com/cloudwego/eino-ext/components/embedding/ollama"

	"github.com/joseph-ayodele/bills-assistant/internal/common"
	"github.com/joseph-ayodele/bills-assistant/internal/llm"
	"github.com/joseph-ayodele/bills-assistant/internal/llm/einochat"
	"github.com/joseph-ayodele/bills-assistant/internal/llm/openai"
	"github.com/joseph-ayodele/bills-assistant/internal/vector"
	"github.com/joseph-ayodele/bills-assistant/internal/vector/elastic"
	"github.com/joseph-ayodele/bills-assistant/internal/vector/milvus"
)

// newCompleter picks the chat provider named by LLM_PROVIDER.
func newCompleter(ctx context.Context, cfg *common.Config, logger *slog.Logger) (llm.Completer, error) {
	switch cfg.LLM.Provider {
	case "openai":
		return openai.NewClient(openai.ConfigFrom(cfg.LLM), logger), nil
	case "ollama":
		return einochat.NewOllama(ctx, cfg.LLM, cfg.Vector.OllamaURL, logger)
	default:
		return nil, fmt.Errorf("unsupported LLM_PROVIDER %q", cfg.LLM.Provider)
	}
}

// newVectorStore picks the retrieval backend named by VECTOR_BACKEND.
func newVectorStore(ctx context.Context, cfg common.VectorConfig, logger *slog.Logger) (vector.Store, error) {
	switch cfg.Backend {
	case "memory":
		return vector.NewMemoryStore(logger), nil
	case "milvus":
		embedder, err := embedollama.NewEmbedder(ctx, &embedollama.EmbeddingConfig{
			BaseURL: cfg.OllamaURL,
			Model:   cfg.EmbedModel,
		})
		if err != nil {
			return nil, fmt.Errorf("ollama embedder: %w", err)
		}
		return milvus.New(ctx, cfg, embedder, logger)
	case "elastic":
		return elastic.New(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported VECTOR_BACKEND %q", cfg.Backend)
	}
}
