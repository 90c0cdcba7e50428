/*
Package provider wraps the model APIs behind two small interfaces: an
Embedder that turns text into vectors and an Extractor that lifts
memory-worthy claims out of raw conversation transcripts and judges
whether two statements conflict.
*/
package provider

import (
	"context"
	"strings"

	"github.com/theapemachine/lucid/pkg/entity"
)

// Embedder produces embedding vectors for text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

/*
Claim is a single memory-worthy statement extracted from a transcript,
together with the model's suggested classification.
*/
type Claim struct {
	Content             string           `json:"content"`
	SuggestedType       string           `json:"suggested_type"`
	SuggestedImportance int              `json:"suggested_importance"`
	Entities            []entity.Mention `json:"entities"`
	Domain              string           `json:"domain"`
	Category            string           `json:"category"`
	Confidence          float64          `json:"confidence"`
}

// VerdictKind is the outcome of comparing a new statement to a stored one.
type VerdictKind string

const (
	VerdictCompatible    VerdictKind = "compatible"
	VerdictContradictory VerdictKind = "contradictory"
	VerdictInconclusive  VerdictKind = "inconclusive"
)

// Verdict records whether a new statement contradicts an existing memory.
type Verdict struct {
	Kind   VerdictKind `json:"kind"`
	Reason string      `json:"reason"`
}

// Extractor pulls claims from transcripts and adjudicates conflicts.
type Extractor interface {
	ExtractClaims(ctx context.Context, transcript string) ([]Claim, error)
	Verdict(ctx context.Context, existing, incoming string) (Verdict, error)
}

/*
stripFences removes the markdown code fences models wrap JSON in even
when told not to, leaving the bare payload.
*/
func stripFences(raw string) string {
	out := strings.TrimSpace(raw)

	if strings.HasPrefix(out, "```") {
		if idx := strings.Index(out, "\n"); idx >= 0 {
			out = out[idx+1:]
		}

		out = strings.TrimSuffix(strings.TrimSpace(out), "```")
	}

	return strings.TrimSpace(out)
}
