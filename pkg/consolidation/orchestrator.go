package consolidation

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/theapemachine/lucid/pkg/entity"
	"github.com/theapemachine/lucid/pkg/errors"
	"github.com/theapemachine/lucid/pkg/memory"
	"github.com/theapemachine/lucid/pkg/provider"
)

// costPerKiloChar approximates the blended extraction plus embedding
// spend per thousand transcript characters. Used for the run's cost
// counter only.
const costPerKiloChar = 0.004

/*
Orchestrator runs the full consolidation pipeline: extract claims from
a transcript, embed them, resolve their entities, and merge each claim
through the engine. The run record is written before the first store
mutation and updated with final counters whether the run succeeds or
fails.
*/
type Orchestrator struct {
	store     Store
	embedder  provider.Embedder
	extractor provider.Extractor
	registry  *entity.Registry
	engine    *Engine
	config    Config
}

// NewOrchestrator wires the pipeline together.
func NewOrchestrator(
	store Store,
	embedder provider.Embedder,
	extractor provider.Extractor,
	registry *entity.Registry,
	config Config,
) *Orchestrator {
	return &Orchestrator{
		store:     store,
		embedder:  embedder,
		extractor: extractor,
		registry:  registry,
		engine:    NewEngine(store, extractor, config),
		config:    config,
	}
}

type preparedClaim struct {
	claim     provider.Claim
	vec       []float32
	hubs      []*entity.Hub
	strengths []float64
	failed    bool
}

/*
Consolidate processes one transcript for one owner and returns the run
record. A transcript with no memory-worthy content completes with zero
counters. Extraction failure fails the run before any memory is
written. Individual claim failures are counted and tolerated up to the
configured failure fraction.
*/
func (orch *Orchestrator) Consolidate(
	ctx context.Context, owner uuid.UUID, transcript, conversationID string,
) (*Run, error) {
	run := NewRun(owner, conversationID, len(transcript))

	if err := orch.store.AppendRun(ctx, run); err != nil {
		return nil, err
	}

	run.Status = StatusInProgress

	claims, err := orch.extractor.ExtractClaims(ctx, transcript)

	if err != nil {
		failure := errors.NewRunFailure(run.ID, "claim extraction failed", err)
		run.Finish(StatusFailed, failure)
		orch.record(ctx, run)
		return run, failure
	}

	run.ClaimsExtracted = len(claims)
	run.EstimatedCost = float64(len(transcript)) / 1000 * costPerKiloChar

	if len(claims) == 0 {
		run.Finish(StatusCompleted, nil)
		orch.record(ctx, run)
		return run, nil
	}

	prepared := orch.prepare(ctx, owner, claims)

	for i := range prepared {
		if err := ctx.Err(); err != nil {
			failure := errors.NewRunFailure(run.ID, "run canceled", err)
			run.Finish(StatusFailed, failure)
			orch.record(ctx, run)
			return run, failure
		}

		claim := &prepared[i]

		if claim.failed {
			run.FailedClaims++
			continue
		}

		outcome, err := orch.merge(ctx, owner, run.ID, claim)

		if err != nil {
			log.Error(
				"failed to merge claim",
				"run", run.ID, "claim", i, "error", err,
			)

			run.FailedClaims++
			continue
		}

		run.MemoriesProcessed++
		run.EdgesCreated += outcome.EdgesCreated

		switch outcome.Action {
		case ActionUpdate:
			run.MemoriesMerged++
		case ActionRefine:
			run.NewMemoriesCreated++
			run.ConflictsResolved++
		default:
			run.NewMemoriesCreated++
		}
	}

	status := StatusCompleted
	var runErr error

	if float64(run.FailedClaims) > orch.config.FailureFraction*float64(len(claims)) {
		status = StatusFailed
		runErr = errors.NewRunFailure(
			run.ID,
			fmt.Sprintf("%d of %d claims failed", run.FailedClaims, len(claims)),
			nil,
		)
	}

	run.Finish(status, runErr)
	orch.record(ctx, run)

	return run, runErr
}

/*
prepare embeds all claims and resolves their entities with bounded
parallelism. Embedding is tried as one batch first; if the batch call
fails, each claim is embedded individually so one poisoned input cannot
sink the whole run. Claims that still fail are marked and skipped by
the merge loop.
*/
func (orch *Orchestrator) prepare(
	ctx context.Context, owner uuid.UUID, claims []provider.Claim,
) []preparedClaim {
	prepared := make([]preparedClaim, len(claims))
	texts := make([]string, len(claims))

	for i, claim := range claims {
		prepared[i].claim = claim
		texts[i] = claim.Content
	}

	vectors, err := orch.embedder.EmbedBatch(ctx, texts)

	if err == nil {
		for i := range prepared {
			prepared[i].vec = vectors[i]
		}
	} else {
		log.Warn("batch embedding failed, embedding claims individually", "error", err)

		group, groupCtx := errgroup.WithContext(ctx)
		group.SetLimit(orch.config.Concurrency)

		for i := range prepared {
			group.Go(func() error {
				vec, err := orch.embedder.Embed(groupCtx, prepared[i].claim.Content)

				if err != nil {
					log.Error("failed to embed claim", "claim", i, "error", err)
					prepared[i].failed = true
					return nil
				}

				prepared[i].vec = vec
				return nil
			})
		}

		group.Wait()
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(orch.config.Concurrency)

	for i := range prepared {
		if prepared[i].failed {
			continue
		}

		group.Go(func() error {
			hubs, err := orch.registry.ResolveAll(
				groupCtx, owner, prepared[i].claim.Entities,
			)

			if err != nil {
				log.Warn("entity resolution failed", "claim", i, "error", err)
				return nil
			}

			prepared[i].hubs = hubs
			prepared[i].strengths = mentionStrengths(hubs, prepared[i].claim.Entities)
			return nil
		})
	}

	group.Wait()

	return prepared
}

func (orch *Orchestrator) merge(
	ctx context.Context, owner uuid.UUID, runID string, claim *preparedClaim,
) (*Outcome, error) {
	cand := orch.buildMemory(owner, runID, claim)

	if err := cand.Validate(); err != nil {
		return nil, err
	}

	decision, err := orch.engine.Decide(ctx, cand)

	if err != nil {
		return nil, err
	}

	return orch.engine.Apply(ctx, cand, claim.hubs, claim.strengths, decision)
}

func (orch *Orchestrator) buildMemory(
	owner uuid.UUID, runID string, claim *preparedClaim,
) *memory.Memory {
	memType := memory.InferType(claim.claim.Content, claim.claim.SuggestedType)
	cand := memory.New(owner, claim.claim.Content, memType)

	cand.Embedding = claim.vec
	cand.Source = memory.SourceConsolidation
	cand.SourceID = runID
	cand.Domain = claim.claim.Domain
	cand.Category = claim.claim.Category

	if claim.claim.SuggestedImportance >= 1 && claim.claim.SuggestedImportance <= 10 {
		cand.Importance = claim.claim.SuggestedImportance
	} else {
		cand.Importance = memory.CalculateImportance(
			claim.claim.Content, memType, len(claim.hubs),
		)
	}

	if claim.claim.Confidence > 0 {
		cand.Confidence = claim.claim.Confidence
	}

	for _, hub := range claim.hubs {
		cand.Tags = append(cand.Tags, hub.Name)
	}

	return cand
}

// record persists the final run state even when the run's own context
// was canceled.
func (orch *Orchestrator) record(ctx context.Context, run *Run) {
	if err := orch.store.AppendRun(context.WithoutCancel(ctx), run); err != nil {
		log.Error("failed to record run", "run", run.ID, "error", err)
	}
}

// mentionStrengths aligns mention confidences with the resolved hubs by
// normalized name, defaulting to full strength.
func mentionStrengths(hubs []*entity.Hub, mentions []entity.Mention) []float64 {
	byName := map[string]float64{}

	for _, mention := range mentions {
		if mention.Confidence > 0 {
			byName[entity.Normalize(mention.Name)] = mention.Confidence
		}
	}

	strengths := make([]float64, len(hubs))

	for i, hub := range hubs {
		strengths[i] = 1.0

		if confidence, ok := byName[hub.Name]; ok {
			strengths[i] = confidence
		}
	}

	return strengths
}
