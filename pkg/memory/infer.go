package memory

import "strings"

// defaultImportance is the base importance for each memory type.
var defaultImportance = map[Type]int{
	TypeEpisodic:   5,
	TypeSemantic:   6,
	TypePreference: 8,
	TypeProcedural: 7,
	TypeMeta:       7,
}

// DefaultImportance returns the base importance for a memory type.
func DefaultImportance(memType Type) int {
	if base, ok := defaultImportance[memType]; ok {
		return base
	}

	return 5
}

/*
CalculateImportance scores a memory when the extractor did not suggest an
importance. Longer content and more entity connections both raise the
score a little; the result is clamped to [1,10].
*/
func CalculateImportance(content string, memType Type, entityCount int) int {
	base := DefaultImportance(memType)

	if len(content) > 500 {
		base++
	} else if len(content) < 50 {
		base--
	}

	if entityCount >= 5 {
		base += 2
	} else if entityCount >= 3 {
		base++
	}

	return clamp(base, 1, 10)
}

// claimTypeMapping maps extractor claim types onto memory types.
var claimTypeMapping = map[string]Type{
	"preference": TypePreference,
	"fact":       TypeSemantic,
	"learning":   TypeEpisodic,
	"decision":   TypeEpisodic,
	"how_to":     TypeProcedural,
	"struggle":   TypeMeta,
}

var (
	preferenceKeywords = []string{
		"prefer", "like", "love", "hate", "dislike",
		"favorite", "rather", "always use", "never use",
		"better than", "instead of",
	}
	proceduralKeywords = []string{
		"how to", "step by step", "to do this",
		"first,", "then,", "finally,",
		"run", "execute", "install", "configure",
	}
	metaKeywords = []string{
		"struggling with", "confused about", "learning",
		"don't understand", "trying to figure out",
		"getting better at", "expertise in",
	}
	episodicKeywords = []string{
		"today", "yesterday", "last week",
		"during the session", "mentioned that",
		"said that", "told me",
	}
)

/*
InferType maps an extractor claim type to a memory type, falling back to
keyword heuristics over the content, and finally to semantic.
*/
func InferType(content, claimType string) Type {
	if memType, ok := claimTypeMapping[claimType]; ok {
		return memType
	}

	switch Type(claimType) {
	case TypeEpisodic, TypeSemantic, TypePreference, TypeProcedural, TypeMeta:
		return Type(claimType)
	}

	lower := strings.ToLower(content)

	for _, kw := range preferenceKeywords {
		if strings.Contains(lower, kw) {
			return TypePreference
		}
	}

	for _, kw := range proceduralKeywords {
		if strings.Contains(lower, kw) {
			return TypeProcedural
		}
	}

	for _, kw := range metaKeywords {
		if strings.Contains(lower, kw) {
			return TypeMeta
		}
	}

	for _, kw := range episodicKeywords {
		if strings.Contains(lower, kw) {
			return TypeEpisodic
		}
	}

	return TypeSemantic
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}

	if v > hi {
		return hi
	}

	return v
}
