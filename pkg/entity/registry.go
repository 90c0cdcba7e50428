package entity

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/theapemachine/lucid/pkg/errors"
)

/*
Store is the slice of the persistence collaborator the registry needs.
InsertHub must fail with a wrapped errors.Constraint when the normalized
name already exists for the owner, and LinkMemory must apply the whole
batch plus the hubs' counter increments atomically.
*/
type Store interface {
	GetHub(ctx context.Context, owner, id uuid.UUID) (*Hub, error)
	GetHubByName(ctx context.Context, owner uuid.UUID, name string) (*Hub, error)
	ListHubs(ctx context.Context, owner uuid.UUID, limit int) ([]*Hub, error)
	TopHubs(ctx context.Context, owner uuid.UUID, hubType HubType, limit int) ([]*Hub, error)
	InsertHub(ctx context.Context, hub *Hub) error
	TouchHub(ctx context.Context, owner, id uuid.UUID) error
	LinkMemory(ctx context.Context, owner, memoryID uuid.UUID, links []*Link) error
	LinksForMemory(ctx context.Context, owner, memoryID uuid.UUID) ([]*Link, error)
	LinksForEntity(ctx context.Context, owner, hubID uuid.UUID) ([]*Link, error)
}

// dictionaryLimit caps how many hubs are loaded for fuzzy matching.
const dictionaryLimit = 500

/*
Registry resolves raw entity mentions to canonical hubs: normalize, try
an exact name match, fall back to fuzzy matching over names and aliases,
and finally create a new hub from the extractor's suggestion.
*/
type Registry struct {
	store          Store
	fuzzyThreshold float64
}

func NewRegistry(store Store, fuzzyThreshold float64) *Registry {
	if fuzzyThreshold <= 0 {
		fuzzyThreshold = 0.8
	}

	return &Registry{store: store, fuzzyThreshold: fuzzyThreshold}
}

/*
Resolve maps one mention to a hub, creating it when the owner has never
mentioned it before. Two concurrent first-mentions of the same name are
resolved by retrying the read once after a unique-constraint violation,
so exactly one hub row survives and both callers receive it.
*/
func (registry *Registry) Resolve(ctx context.Context, owner uuid.UUID, mention Mention) (*Hub, error) {
	name := Normalize(mention.Name)
	if name == "" {
		return nil, errors.NewValidation("entity_name", "entity name is empty")
	}

	hub, err := registry.store.GetHubByName(ctx, owner, name)

	if err == nil {
		if err := registry.store.TouchHub(ctx, owner, hub.ID); err != nil {
			log.Warn("failed to touch entity hub", "hub", hub.ID, "error", err)
		}

		return hub, nil
	}

	if err != errors.ErrNotFound {
		return nil, err
	}

	if hub := registry.fuzzyMatch(ctx, owner, name); hub != nil {
		if err := registry.store.TouchHub(ctx, owner, hub.ID); err != nil {
			log.Warn("failed to touch entity hub", "hub", hub.ID, "error", err)
		}

		return hub, nil
	}

	hub = registry.newHub(owner, name, mention)

	if err := registry.store.InsertHub(ctx, hub); err != nil {
		if !errors.IsConstraint(err) {
			return nil, err
		}

		// Lost the race against a concurrent first-mention; the winner's
		// row is authoritative.
		existing, readErr := registry.store.GetHubByName(ctx, owner, name)
		if readErr != nil {
			return nil, err
		}

		return existing, nil
	}

	log.Info("learned new entity", "name", name, "type", hub.Type, "owner", owner)

	return hub, nil
}

// ResolveAll resolves a batch of mentions, deduplicating by normalized name.
func (registry *Registry) ResolveAll(ctx context.Context, owner uuid.UUID, mentions []Mention) ([]*Hub, error) {
	seen := map[string]bool{}
	hubs := make([]*Hub, 0, len(mentions))

	for _, mention := range mentions {
		name := Normalize(mention.Name)
		if name == "" || seen[name] {
			continue
		}

		seen[name] = true

		hub, err := registry.Resolve(ctx, owner, mention)
		if err != nil {
			return nil, err
		}

		hubs = append(hubs, hub)
	}

	return hubs, nil
}

/*
Link ties a memory to its resolved hubs as one atomic unit. The first hub
is the primary entity; strengths carry the mention confidences. A
constraint race on the link table is retried once as read-then-link
before escalating.
*/
func (registry *Registry) Link(ctx context.Context, owner, memoryID uuid.UUID, hubs []*Hub, strengths []float64, snippet string) error {
	if len(hubs) == 0 {
		return nil
	}

	links := make([]*Link, 0, len(hubs))

	for i, hub := range hubs {
		strength := 1.0
		if i < len(strengths) && strengths[i] > 0 {
			strength = strengths[i]
		}

		links = append(links, &Link{
			ID:             uuid.New(),
			MemoryID:       memoryID,
			EntityID:       hub.ID,
			Owner:          owner,
			Strength:       strength,
			IsPrimary:      i == 0,
			MentionCount:   1,
			ContextSnippet: snippet,
			CreatedAt:      time.Now().UTC(),
		})
	}

	err := registry.store.LinkMemory(ctx, owner, memoryID, links)
	if err == nil {
		return nil
	}

	if !errors.IsConstraint(err) {
		return err
	}

	return registry.store.LinkMemory(ctx, owner, memoryID, links)
}

func (registry *Registry) fuzzyMatch(ctx context.Context, owner uuid.UUID, name string) *Hub {
	hubs, err := registry.store.ListHubs(ctx, owner, dictionaryLimit)
	if err != nil {
		log.Warn("failed to load entity dictionary", "owner", owner, "error", err)
		return nil
	}

	var (
		best      *Hub
		bestScore float64
	)

	for _, hub := range hubs {
		score := TrigramSimilarity(name, hub.Name)

		for _, alias := range hub.Aliases {
			if aliasScore := TrigramSimilarity(name, alias); aliasScore > score {
				score = aliasScore
			}
		}

		if score > bestScore {
			best, bestScore = hub, score
		}
	}

	if bestScore >= registry.fuzzyThreshold {
		return best
	}

	return nil
}

func (registry *Registry) newHub(owner uuid.UUID, name string, mention Mention) *Hub {
	now := time.Now().UTC()

	confidence := mention.Confidence
	if confidence <= 0 {
		confidence = 0.8
	}

	hubType := ParseHubType(string(mention.Type))

	return &Hub{
		ID:          uuid.New(),
		Owner:       owner,
		Name:        name,
		DisplayName: strings.TrimSpace(mention.Name),
		Category:    mention.Category,
		Type:        hubType,
		Source:      SourceLLM,
		Confidence:  confidence,
		UsageCount:  1,
		LastUsed:    now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}
