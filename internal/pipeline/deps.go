package pipeline

import (
	"log/slog"

	"stepweave/internal/acquire"
	"stepweave/internal/config"
	"stepweave/internal/generation"
	"stepweave/internal/services/embedding"
	"stepweave/internal/services/llm"
)

// NewLLMClient builds the chat completion client from configuration.
func NewLLMClient(cfg *config.Config) *llm.Client {
	settings := cfg.GetLLM()
	return llm.NewClient(llm.Config{
		APIKey:           settings.APIKey,
		BaseURL:          settings.BaseURL,
		Model:            settings.Model,
		Referer:          settings.Referer,
		Title:            settings.Title,
		TimeoutSeconds:   settings.TimeoutSeconds,
		MaxAttempts:      settings.MaxAttempts,
		MalformedRetries: settings.MalformedRetries,
	})
}

// NewEmbedders returns the text embedder and the cross-modal encoder the
// configured backend provides. The http backend has no cross-modal encoder
// unless an image endpoint is configured.
func NewEmbedders(cfg *config.Config) (embedding.Embedder, embedding.CrossModal) {
	if cfg.Embedding.Backend == config.EmbeddingFingerprint {
		fp := embedding.NewFingerprint(cfg.Embedding.Dimensions)
		return fp, fp
	}
	client := NewEmbeddingClient(cfg)
	if cfg.Embedding.ImageBaseURL == "" {
		return client, nil
	}
	return client, client.CrossModal()
}

// NewEmbeddingClient builds the HTTP embedding client from configuration.
func NewEmbeddingClient(cfg *config.Config) *embedding.Client {
	return embedding.NewClient(embedding.Config{
		BaseURL:        cfg.Embedding.BaseURL,
		Model:          cfg.Embedding.Model,
		ImageBaseURL:   cfg.Embedding.ImageBaseURL,
		ImageModel:     cfg.Embedding.ImageModel,
		TimeoutSeconds: cfg.Embedding.TimeoutSeconds,
	})
}

// NewDeps wires the production collaborators. A generation key is required.
func NewDeps(cfg *config.Config, logger *slog.Logger) (Deps, error) {
	if err := cfg.RequireLLM(); err != nil {
		return Deps{}, err
	}
	gen := generation.NewLLM(NewLLMClient(cfg),
		generation.WithImages(cfg.LLM.SendImages),
		generation.WithLogger(logger),
	)
	text, images := NewEmbedders(cfg)
	return Deps{
		Generator: gen,
		Embedder:  text,
		Images:    images,
		Acquirer:  acquire.FromConfig(cfg, logger),
	}, nil
}
