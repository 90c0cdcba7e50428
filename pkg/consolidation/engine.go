package consolidation

import (
	"context"
	"sort"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/theapemachine/lucid/pkg/entity"
	"github.com/theapemachine/lucid/pkg/graph"
	"github.com/theapemachine/lucid/pkg/memory"
	"github.com/theapemachine/lucid/pkg/provider"
	"github.com/theapemachine/lucid/pkg/utils"
)

// Action is what the engine decided to do with a claim.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionRefine Action = "refine"
)

// Decision is the merge plan for one claim, made before any write.
type Decision struct {
	Action    Action
	Target    *memory.Scored
	Verdict   *provider.Verdict
	Neighbors []memory.Scored
}

// Outcome reports what one merged claim did to the store.
type Outcome struct {
	Action           Action
	Memory           *memory.Memory
	Superseded       *memory.Memory
	EdgesCreated     int
	ConflictResolved bool
}

/*
Engine merges one claim at a time against the owner's existing memories.
The decision phase reads neighbors and, inside the conflict band, asks
the extractor for a verdict; the apply phase performs all writes for the
claim in a single transaction.
*/
type Engine struct {
	store     Store
	extractor provider.Extractor
	config    Config
}

// NewEngine returns an Engine over the given store and extractor.
func NewEngine(store Store, extractor provider.Extractor, config Config) *Engine {
	return &Engine{store: store, extractor: extractor, config: config}
}

/*
Decide ranks the claim's nearest active memories of the same type and
picks an action. At or above the dedup threshold the best neighbor
absorbs the claim. Inside the conflict band the extractor adjudicates:
a contradiction refines the old memory, anything else creates. Below
the band the claim is new.
*/
func (engine *Engine) Decide(
	ctx context.Context, cand *memory.Memory,
) (*Decision, error) {
	neighbors, err := engine.store.QuerySimilar(
		ctx, cand.Owner, cand.Embedding, memory.SimilarQuery{
			K:        engine.config.TopK,
			Type:     cand.Type,
			Statuses: []memory.Status{memory.StatusActive},
		},
	)

	if err != nil {
		return nil, err
	}

	sort.SliceStable(neighbors, func(i, j int) bool {
		if neighbors[i].Similarity != neighbors[j].Similarity {
			return neighbors[i].Similarity > neighbors[j].Similarity
		}

		if neighbors[i].Memory.Importance != neighbors[j].Memory.Importance {
			return neighbors[i].Memory.Importance > neighbors[j].Memory.Importance
		}

		return neighbors[i].Memory.CreatedAt.After(neighbors[j].Memory.CreatedAt)
	})

	decision := &Decision{Action: ActionCreate, Neighbors: neighbors}

	if len(neighbors) == 0 {
		return decision, nil
	}

	best := neighbors[0]

	if best.Similarity >= engine.config.DedupThreshold {
		decision.Action = ActionUpdate
		decision.Target = &best
		return decision, nil
	}

	if best.Similarity >= engine.config.ConflictLow &&
		best.Similarity < engine.config.ConflictHigh {
		verdict, err := engine.extractor.Verdict(
			ctx, best.Memory.Content, cand.Content,
		)

		if err != nil {
			log.Warn(
				"conflict check failed, treating claim as new",
				"memory", best.Memory.ID, "error", err,
			)

			verdict = provider.Verdict{
				Kind:   provider.VerdictInconclusive,
				Reason: "conflict check unavailable",
			}
		}

		decision.Verdict = &verdict

		if verdict.Kind == provider.VerdictContradictory {
			decision.Action = ActionRefine
			decision.Target = &best
		}
	}

	return decision, nil
}

/*
Apply executes a decision. All writes for the claim, the memory row,
its entity links, and any edges, commit or roll back together.
*/
func (engine *Engine) Apply(
	ctx context.Context,
	cand *memory.Memory,
	hubs []*entity.Hub,
	strengths []float64,
	decision *Decision,
) (*Outcome, error) {
	outcome := &Outcome{Action: decision.Action}

	err := engine.store.WithTx(ctx, func(bound Store) error {
		switch decision.Action {
		case ActionUpdate:
			return engine.applyUpdate(ctx, bound, cand, hubs, strengths, decision, outcome)
		case ActionRefine:
			return engine.applyRefine(ctx, bound, cand, hubs, strengths, decision, outcome)
		default:
			return engine.applyCreate(ctx, bound, cand, hubs, strengths, decision, outcome)
		}
	})

	if err != nil {
		return nil, err
	}

	return outcome, nil
}

/*
applyUpdate folds the claim into the existing memory: tags and entity
links become the union of both, importance keeps the higher value, and
confidence gets a small bump for having been restated, capped at 1.
*/
func (engine *Engine) applyUpdate(
	ctx context.Context,
	bound Store,
	cand *memory.Memory,
	hubs []*entity.Hub,
	strengths []float64,
	decision *Decision,
	outcome *Outcome,
) error {
	target := decision.Target.Memory

	target.Tags = unionTags(target.Tags, cand.Tags)

	if cand.Importance > target.Importance {
		target.Importance = cand.Importance
	}

	confidence := target.Confidence

	if cand.Confidence > confidence {
		confidence = cand.Confidence
	}

	target.Confidence = min(confidence+0.05, 1.0)
	target.AccessCount++

	if err := bound.UpdateMemory(ctx, target); err != nil {
		return err
	}

	if err := linkHubs(ctx, bound, target, hubs, strengths, cand.Content); err != nil {
		return err
	}

	outcome.Memory = target
	return nil
}

/*
applyRefine supersedes the contradicted memory with the claim. The old
record stays queryable through its superseded status, and an
evolves_into edge preserves the lineage.
*/
func (engine *Engine) applyRefine(
	ctx context.Context,
	bound Store,
	cand *memory.Memory,
	hubs []*entity.Hub,
	strengths []float64,
	decision *Decision,
	outcome *Outcome,
) error {
	old := decision.Target.Memory

	if err := bound.InsertMemory(ctx, cand); err != nil {
		return err
	}

	if err := bound.SetMemoryStatus(
		ctx, old.Owner, old.ID, memory.StatusSuperseded, &cand.ID,
	); err != nil {
		return err
	}

	reason := ""

	if decision.Verdict != nil {
		reason = decision.Verdict.Reason
	}

	builder := graph.NewBuilder(bound)

	if _, err := builder.AddEdge(ctx, &graph.Edge{
		Owner:      cand.Owner,
		From:       old.ID,
		To:         cand.ID,
		Type:       graph.EdgeEvolvesInto,
		Strength:   1.0,
		Confidence: cand.Confidence,
		Causality:  true,
		Reason:     reason,
	}); err != nil {
		return err
	}

	outcome.EdgesCreated++

	if err := linkHubs(ctx, bound, cand, hubs, strengths, cand.Content); err != nil {
		return err
	}

	outcome.Memory = cand
	outcome.Superseded = old
	outcome.ConflictResolved = true
	return nil
}

/*
applyCreate inserts the claim as a new memory and relates it to the
neighbors that were close enough to be worth an edge but not close
enough to merge.
*/
func (engine *Engine) applyCreate(
	ctx context.Context,
	bound Store,
	cand *memory.Memory,
	hubs []*entity.Hub,
	strengths []float64,
	decision *Decision,
	outcome *Outcome,
) error {
	if decision.Verdict != nil &&
		decision.Verdict.Kind == provider.VerdictInconclusive {
		cand.Confidence = max(cand.Confidence-0.2, 0.1)
	}

	if cand.Confidence < engine.config.DraftConfidence {
		cand.Status = memory.StatusDraft
	}

	if err := bound.InsertMemory(ctx, cand); err != nil {
		return err
	}

	builder := graph.NewBuilder(bound)

	for _, neighbor := range decision.Neighbors {
		if neighbor.Similarity < engine.config.RelateThreshold {
			break
		}

		if _, err := builder.AddEdge(ctx, &graph.Edge{
			Owner:         cand.Owner,
			From:          cand.ID,
			To:            neighbor.Memory.ID,
			Type:          graph.EdgeRelatedTo,
			Strength:      neighbor.Similarity,
			Confidence:    cand.Confidence,
			Bidirectional: true,
		}); err != nil {
			return err
		}

		outcome.EdgesCreated++
	}

	if err := linkHubs(ctx, bound, cand, hubs, strengths, cand.Content); err != nil {
		return err
	}

	outcome.Memory = cand
	return nil
}

// snippetLength caps the stored context snippet on entity links.
const snippetLength = 160

// linkHubs writes memory-entity links for the resolved hubs, first hub
// primary.
func linkHubs(
	ctx context.Context,
	bound Store,
	mem *memory.Memory,
	hubs []*entity.Hub,
	strengths []float64,
	snippet string,
) error {
	if len(hubs) == 0 {
		return nil
	}

	links := make([]*entity.Link, 0, len(hubs))

	for i, hub := range hubs {
		strength := 1.0

		if i < len(strengths) && strengths[i] > 0 {
			strength = strengths[i]
		}

		links = append(links, &entity.Link{
			ID:             uuid.New(),
			MemoryID:       mem.ID,
			EntityID:       hub.ID,
			Owner:          mem.Owner,
			Strength:       strength,
			IsPrimary:      i == 0,
			MentionCount:   1,
			ContextSnippet: utils.Truncate(snippet, snippetLength),
		})
	}

	return bound.LinkMemory(ctx, mem.Owner, mem.ID, links)
}

func unionTags(a, b []string) []string {
	seen := map[string]bool{}
	out := []string{}

	for _, tag := range append(append([]string{}, a...), b...) {
		if tag == "" || seen[tag] {
			continue
		}

		seen[tag] = true
		out = append(out, tag)
	}

	return out
}
