package provider

import (
	"context"
	"os"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	errs "github.com/theapemachine/lucid/pkg/errors"
	"github.com/theapemachine/lucid/pkg/utils"
)

/*
OpenAIEmbedder embeds text through the OpenAI embeddings endpoint.
Transient API failures are retried with exponential backoff.
*/
type OpenAIEmbedder struct {
	api   openai.Client
	Model string
	retry *errs.RetryConfig
}

type OpenAIEmbedderOption func(*OpenAIEmbedder)

func NewOpenAIEmbedder(options ...OpenAIEmbedderOption) *OpenAIEmbedder {
	embedder := &OpenAIEmbedder{
		Model: "text-embedding-3-small",
		retry: errs.DefaultRetryConfig(),
	}

	for _, option := range options {
		option(embedder)
	}

	return embedder
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})

	if err != nil {
		return nil, err
	}

	return vectors[0], nil
}

func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	var resp *openai.CreateEmbeddingResponse

	err := errs.RetryWithBackoff(ctx, e.retry, func() error {
		var callErr error
		resp, callErr = e.api.Embeddings.New(ctx, openai.EmbeddingNewParams{
			Model: openai.EmbeddingModel(e.Model),
			Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		})
		return callErr
	})

	if err != nil {
		return nil, errs.NewProvider("openai", "embed", err)
	}

	if len(resp.Data) != len(texts) {
		return nil, errs.NewProvider("openai", "embed", errs.New(
			"embedding count does not match input count",
		))
	}

	out := make([][]float32, len(resp.Data))

	for i, d := range resp.Data {
		out[i] = utils.ConvertToFloat32(d.Embedding)
	}

	return out, nil
}

func WithOpenAIEmbedderClient() OpenAIEmbedderOption {
	return func(e *OpenAIEmbedder) {
		e.api = openai.NewClient(
			option.WithAPIKey(os.Getenv("OPENAI_API_KEY")),
		)
	}
}

func WithOpenAIEmbedderModel(model string) OpenAIEmbedderOption {
	return func(e *OpenAIEmbedder) {
		if model != "" {
			e.Model = model
		}
	}
}

func WithOpenAIEmbedderRetry(config *errs.RetryConfig) OpenAIEmbedderOption {
	return func(e *OpenAIEmbedder) {
		if config != nil {
			e.retry = config
		}
	}
}
