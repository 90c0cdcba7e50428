/*
Package entity canonicalizes entity mentions into durable hub records, the
Zettelkasten-style index nodes that connect memories. A hub is created
lazily on first mention and strengthened on every subsequent reference.
*/
package entity

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// HubType classifies what kind of real-world thing a hub stands for.
type HubType string

const (
	HubPerson       HubType = "person"
	HubPlace        HubType = "place"
	HubEvent        HubType = "event"
	HubRecipe       HubType = "recipe"
	HubConcept      HubType = "concept"
	HubTech         HubType = "tech"
	HubProject      HubType = "project"
	HubOrganization HubType = "organization"
)

// Source records how a hub entered the dictionary.
type Source string

const (
	SourceLLM         Source = "llm"
	SourceUserDefined Source = "user_defined"
	SourceSystem      Source = "system"
	SourceImported    Source = "imported"
)

/*
Hub is a canonical entity node. Name is the normalized form, unique per
owner; DisplayName preserves the original casing. MemoryCount mirrors the
live number of links referencing this hub and only moves inside the link
transaction.
*/
type Hub struct {
	ID            uuid.UUID `json:"id"`
	Owner         uuid.UUID `json:"owner"`
	Name          string    `json:"entity_name"`
	DisplayName   string    `json:"display_name,omitempty"`
	CanonicalName string    `json:"canonical_name,omitempty"`
	Category      string    `json:"category,omitempty"`
	Type          HubType   `json:"hub_type"`
	Aliases       []string  `json:"aliases,omitempty"`
	UsageCount    int       `json:"usage_count"`
	MemoryCount   int       `json:"memory_count"`
	Embedding     []float32 `json:"-"`
	Source        Source    `json:"source"`
	Confidence    float64   `json:"confidence"`
	LastUsed      time.Time `json:"last_used"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Link ties one memory to one hub. Unique per (memory, entity) pair.
type Link struct {
	ID             uuid.UUID `json:"id"`
	MemoryID       uuid.UUID `json:"memory_id"`
	EntityID       uuid.UUID `json:"entity_id"`
	Owner          uuid.UUID `json:"owner"`
	Strength       float64   `json:"strength"`
	IsPrimary      bool      `json:"is_primary"`
	MentionCount   int       `json:"mention_count"`
	ContextSnippet string    `json:"context_snippet,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

/*
Mention is an entity reference as suggested by the claim extractor, before
it has been resolved against the owner's dictionary.
*/
type Mention struct {
	Name       string  `json:"name"`
	Type       HubType `json:"type"`
	Confidence float64 `json:"confidence"`
	Category   string  `json:"category,omitempty"`
}

/*
Normalize lowercases, trims and collapses inner whitespace so "  Project
X " and "project x" resolve to the same hub.
*/
func Normalize(raw string) string {
	return strings.Join(strings.Fields(strings.ToLower(strings.TrimSpace(raw))), " ")
}

// ParseHubType maps an extractor type string onto a HubType, defaulting
// to concept.
func ParseHubType(raw string) HubType {
	switch HubType(strings.ToLower(strings.TrimSpace(raw))) {
	case HubPerson, HubPlace, HubEvent, HubRecipe, HubConcept, HubTech, HubProject, HubOrganization:
		return HubType(strings.ToLower(strings.TrimSpace(raw)))
	default:
		return HubConcept
	}
}
