package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	errs "github.com/theapemachine/lucid/pkg/errors"
)

const extractSystemPrompt = `You extract durable, memory-worthy claims from
conversation transcripts. A claim is a single self-contained statement about
the user: a preference, a fact, something learned, a decision, a procedure,
or a struggle. Skip small talk and anything ephemeral.

Respond with a JSON array only. Each element:
{
  "content": "the claim, rewritten as a standalone sentence",
  "suggested_type": "one of: preference, fact, learning, decision, how_to, struggle",
  "suggested_importance": 1-10,
  "entities": [{"name": "...", "type": "person|place|event|recipe|concept|tech|project|organization", "confidence": 0.0-1.0}],
  "domain": "short domain label",
  "category": "short category label",
  "confidence": 0.0-1.0
}

Return [] if the transcript contains nothing memory-worthy.`

const verdictSystemPrompt = `You compare two statements about the same user and
decide whether the second contradicts the first.

Respond with JSON only:
{"kind": "compatible|contradictory|inconclusive", "reason": "one sentence"}

Use "contradictory" only when the statements cannot both be true for the same
person at the same time. Use "inconclusive" when they might be about different
things or the relationship is unclear.`

/*
AnthropicExtractor runs claim extraction and conflict adjudication
through the Anthropic messages API.
*/
type AnthropicExtractor struct {
	client    *anthropic.Client
	Model     string
	MaxTokens int64
	retry     *errs.RetryConfig
}

type AnthropicExtractorOption func(*AnthropicExtractor)

func NewAnthropicExtractor(options ...AnthropicExtractorOption) *AnthropicExtractor {
	extractor := &AnthropicExtractor{
		Model:     "claude-sonnet-4-0",
		MaxTokens: 4096,
		retry:     errs.DefaultRetryConfig(),
	}

	for _, option := range options {
		option(extractor)
	}

	return extractor
}

/*
ExtractClaims asks the model for the memory-worthy claims in a
transcript. A transcript with nothing worth keeping yields an empty
slice, not an error; a malformed model response is an extraction error.
*/
func (extractor *AnthropicExtractor) ExtractClaims(
	ctx context.Context, transcript string,
) ([]Claim, error) {
	raw, err := extractor.complete(ctx, extractSystemPrompt, transcript)

	if err != nil {
		return nil, errs.NewProvider("anthropic", "extract_claims", err)
	}

	var claims []Claim

	if err := json.Unmarshal([]byte(stripFences(raw)), &claims); err != nil {
		return nil, errs.NewExtraction("model returned malformed claim list", err)
	}

	out := claims[:0]

	for _, claim := range claims {
		if claim.Content == "" {
			continue
		}

		out = append(out, claim)
	}

	return out, nil
}

/*
Verdict decides whether an incoming statement contradicts a stored one.
An unparseable response degrades to inconclusive rather than failing the
caller, since the engine treats the two the same way.
*/
func (extractor *AnthropicExtractor) Verdict(
	ctx context.Context, existing, incoming string,
) (Verdict, error) {
	prompt := fmt.Sprintf(
		"Existing statement: %s\n\nNew statement: %s", existing, incoming,
	)

	raw, err := extractor.complete(ctx, verdictSystemPrompt, prompt)

	if err != nil {
		return Verdict{}, errs.NewProvider("anthropic", "verdict", err)
	}

	var verdict Verdict

	if err := json.Unmarshal([]byte(stripFences(raw)), &verdict); err != nil {
		return Verdict{Kind: VerdictInconclusive, Reason: "unparseable verdict"}, nil
	}

	switch verdict.Kind {
	case VerdictCompatible, VerdictContradictory, VerdictInconclusive:
	default:
		verdict.Kind = VerdictInconclusive
	}

	return verdict, nil
}

func (extractor *AnthropicExtractor) complete(
	ctx context.Context, system, prompt string,
) (string, error) {
	var message *anthropic.Message

	err := errs.RetryWithBackoff(ctx, extractor.retry, func() error {
		var callErr error
		message, callErr = extractor.client.Messages.New(ctx, anthropic.MessageNewParams{
			Model:     anthropic.Model(extractor.Model),
			MaxTokens: extractor.MaxTokens,
			System: []anthropic.TextBlockParam{{
				Text: system,
			}},
			Messages: []anthropic.MessageParam{
				anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
			},
		})
		return callErr
	})

	if err != nil {
		return "", err
	}

	var text string

	for _, block := range message.Content {
		if textBlock, ok := block.AsAny().(anthropic.TextBlock); ok {
			text += textBlock.Text
		}
	}

	return text, nil
}

func WithAnthropicClient() AnthropicExtractorOption {
	return func(extractor *AnthropicExtractor) {
		client := anthropic.NewClient(
			option.WithAPIKey(os.Getenv("ANTHROPIC_API_KEY")),
		)

		extractor.client = &client
	}
}

func WithAnthropicModel(model string) AnthropicExtractorOption {
	return func(extractor *AnthropicExtractor) {
		if model != "" {
			extractor.Model = model
		}
	}
}

func WithAnthropicRetry(config *errs.RetryConfig) AnthropicExtractorOption {
	return func(extractor *AnthropicExtractor) {
		if config != nil {
			extractor.retry = config
		}
	}
}

func WithAnthropicMaxTokens(maxTokens int64) AnthropicExtractorOption {
	return func(extractor *AnthropicExtractor) {
		if maxTokens > 0 {
			extractor.MaxTokens = maxTokens
		}
	}
}
