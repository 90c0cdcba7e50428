package provider

import (
	"context"

	"github.com/charmbracelet/log"
	"github.com/ollama/ollama/api"

	errs "github.com/theapemachine/lucid/pkg/errors"
)

/*
OllamaEmbedder embeds text with a locally running Ollama instance, for
setups that keep everything off the hosted APIs.
*/
type OllamaEmbedder struct {
	api   *api.Client
	Model string
	retry *errs.RetryConfig
}

type OllamaEmbedderOption func(*OllamaEmbedder)

func NewOllamaEmbedder(options ...OllamaEmbedderOption) *OllamaEmbedder {
	embedder := &OllamaEmbedder{
		Model: "nomic-embed-text",
		retry: errs.DefaultRetryConfig(),
	}

	for _, option := range options {
		option(embedder)
	}

	return embedder
}

func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})

	if err != nil {
		return nil, err
	}

	return vectors[0], nil
}

func (e *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	var resp *api.EmbedResponse

	err := errs.RetryWithBackoff(ctx, e.retry, func() error {
		var callErr error
		resp, callErr = e.api.Embed(ctx, &api.EmbedRequest{
			Model: e.Model,
			Input: texts,
		})
		return callErr
	})

	if err != nil {
		return nil, errs.NewProvider("ollama", "embed", err)
	}

	if len(resp.Embeddings) != len(texts) {
		return nil, errs.NewProvider("ollama", "embed", errs.New(
			"embedding count does not match input count",
		))
	}

	return resp.Embeddings, nil
}

func WithOllamaEmbedderClient() OllamaEmbedderOption {
	return func(e *OllamaEmbedder) {
		client, err := api.ClientFromEnvironment()

		if err != nil {
			log.Error("failed to create Ollama client", "error", err)
			return
		}

		e.api = client
	}
}

func WithOllamaEmbedderModel(model string) OllamaEmbedderOption {
	return func(e *OllamaEmbedder) {
		if model != "" {
			e.Model = model
		}
	}
}

func WithOllamaEmbedderRetry(config *errs.RetryConfig) OllamaEmbedderOption {
	return func(e *OllamaEmbedder) {
		if config != nil {
			e.retry = config
		}
	}
}
