/*
Package service assembles the memory system from configuration and
exposes the operations the CLI and any embedding application call:
consolidation, recall, evolution analysis, draft review, and entity
inspection.
*/
package service

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/spf13/viper"

	"github.com/theapemachine/lucid/pkg/consolidation"
	"github.com/theapemachine/lucid/pkg/entity"
	"github.com/theapemachine/lucid/pkg/errors"
	"github.com/theapemachine/lucid/pkg/evolution"
	"github.com/theapemachine/lucid/pkg/graph"
	"github.com/theapemachine/lucid/pkg/memory"
	"github.com/theapemachine/lucid/pkg/provider"
	"github.com/theapemachine/lucid/pkg/recall"
	"github.com/theapemachine/lucid/pkg/stores/qdrant"
	"github.com/theapemachine/lucid/pkg/stores/s3"
	"github.com/theapemachine/lucid/pkg/stores/sqlite"
)

// Service is the assembled memory system.
type Service struct {
	store        *sqlite.Store
	orchestrator *consolidation.Orchestrator
	recall       *recall.Engine
	tracker      *evolution.Tracker
	registry     *entity.Registry
	builder      *graph.Builder
	embedder     provider.Embedder
	bucket       *s3.Conn
}

/*
New builds a Service from the viper configuration. The SQLite store is
mandatory; the Qdrant index and the S3 transcript source are attached
only when their endpoints are configured.
*/
func New() (*Service, error) {
	options := []sqlite.StoreOption{}

	if endpoint := viper.GetString("qdrant.endpoint"); endpoint != "" {
		client := qdrant.New(endpoint, viper.GetString("qdrant.collection"))

		if err := client.EnsureCollection(
			context.Background(), viper.GetInt("embedding.dimensions"),
		); err != nil {
			log.Warn("qdrant unavailable, continuing without index", "error", err)
		} else {
			options = append(options, sqlite.WithANNIndex(client))
		}
	}

	store, err := sqlite.Open(storePath(), options...)

	if err != nil {
		return nil, err
	}

	embedder := newEmbedder()
	extractor := provider.NewAnthropicExtractor(
		provider.WithAnthropicClient(),
		provider.WithAnthropicModel(viper.GetString("extractor.model")),
		provider.WithAnthropicMaxTokens(viper.GetInt64("extractor.max_tokens")),
		provider.WithAnthropicRetry(retryConfig()),
	)

	registry := entity.NewRegistry(store, viper.GetFloat64("entity.fuzzy_threshold"))

	service := &Service{
		store: store,
		orchestrator: consolidation.NewOrchestrator(
			store, embedder, extractor, registry, consolidationConfig(),
		),
		recall: recall.NewEngine(store, embedder, recall.Config{
			Limit:         viper.GetInt("recall.limit"),
			MinSimilarity: viper.GetFloat64("recall.min_similarity"),
		}),
		tracker:  evolution.NewTracker(store),
		registry: registry,
		builder:  graph.NewBuilder(store),
		embedder: embedder,
	}

	if endpoint := viper.GetString("s3.endpoint"); endpoint != "" {
		conn, err := s3.NewConn(s3.Config{
			Endpoint:  endpoint,
			AccessKey: viper.GetString("s3.access_key"),
			SecretKey: viper.GetString("s3.secret_key"),
			UseSSL:    viper.GetBool("s3.use_ssl"),
		})

		if err != nil {
			log.Warn("s3 unavailable, bucket ingestion disabled", "error", err)
		} else {
			service.bucket = conn
		}
	}

	return service, nil
}

// Close releases the underlying store.
func (service *Service) Close() error {
	return service.store.Close()
}

// Consolidate runs one consolidation pass over a transcript.
func (service *Service) Consolidate(
	ctx context.Context, owner uuid.UUID, transcript, conversationID string,
) (*consolidation.Run, error) {
	return service.orchestrator.Consolidate(ctx, owner, transcript, conversationID)
}

/*
ConsolidateFromBucket consolidates every object under a bucket prefix,
one run per transcript. A failing transcript does not stop the rest.
*/
func (service *Service) ConsolidateFromBucket(
	ctx context.Context, owner uuid.UUID, bucket, prefix string,
) ([]*consolidation.Run, error) {
	if service.bucket == nil {
		return nil, errors.New("no s3 endpoint configured")
	}

	keys, err := service.bucket.List(ctx, bucket, prefix)

	if err != nil {
		return nil, err
	}

	runs := make([]*consolidation.Run, 0, len(keys))

	for _, key := range keys {
		buf, err := service.bucket.Get(ctx, bucket, key)

		if err != nil {
			log.Error("failed to read transcript", "key", key, "error", err)
			continue
		}

		run, err := service.orchestrator.Consolidate(ctx, owner, buf.String(), key)

		if err != nil {
			log.Error("consolidation failed", "key", key, "error", err)
		}

		if run != nil {
			runs = append(runs, run)
		}
	}

	return runs, nil
}

// Recall answers a natural-language memory query.
func (service *Service) Recall(
	ctx context.Context,
	owner uuid.UUID,
	query string,
	filters recall.Filters,
	limit int,
) (*recall.Result, error) {
	return service.recall.Recall(ctx, owner, query, filters, limit)
}

// AnalyzeEvolution returns the timeline of one entity.
func (service *Service) AnalyzeEvolution(
	ctx context.Context, owner uuid.UUID, entityName string, window time.Duration,
) (*evolution.Timeline, error) {
	return service.tracker.Analyze(ctx, owner, entityName, window)
}

/*
Remember stores a memory directly, bypassing extraction: the content is
embedded, validated, inserted as active, and linked to any mentioned
entities.
*/
func (service *Service) Remember(
	ctx context.Context,
	owner uuid.UUID,
	content string,
	memType memory.Type,
	mentions []entity.Mention,
) (*memory.Memory, error) {
	vec, err := service.embedder.Embed(ctx, content)

	if err != nil {
		return nil, err
	}

	mem := memory.New(owner, content, memType)
	mem.Embedding = vec
	mem.Source = memory.SourceManual

	if err := mem.Validate(); err != nil {
		return nil, err
	}

	if err := service.store.InsertMemory(ctx, mem); err != nil {
		return nil, err
	}

	hubs, err := service.registry.ResolveAll(ctx, owner, mentions)

	if err != nil {
		log.Warn("entity resolution failed", "memory", mem.ID, "error", err)
		return mem, nil
	}

	strengths := make([]float64, len(hubs))

	for i := range strengths {
		strengths[i] = 1.0
	}

	if err := service.registry.Link(
		ctx, owner, mem.ID, hubs, strengths, content,
	); err != nil {
		log.Warn("entity linking failed", "memory", mem.ID, "error", err)
	}

	return mem, nil
}

// Drafts lists memories awaiting review.
func (service *Service) Drafts(
	ctx context.Context, owner uuid.UUID, limit int,
) ([]*memory.Memory, error) {
	return service.store.ListMemories(ctx, owner, memory.ListQuery{
		Statuses: []memory.Status{memory.StatusDraft},
		Limit:    limit,
	})
}

// Approve promotes a draft memory to active.
func (service *Service) Approve(
	ctx context.Context, owner, id uuid.UUID,
) error {
	return service.setDraftStatus(ctx, owner, id, memory.StatusActive)
}

// Reject marks a draft memory irrelevant.
func (service *Service) Reject(
	ctx context.Context, owner, id uuid.UUID,
) error {
	return service.setDraftStatus(ctx, owner, id, memory.StatusIrrelevant)
}

func (service *Service) setDraftStatus(
	ctx context.Context, owner, id uuid.UUID, status memory.Status,
) error {
	mem, err := service.store.GetMemory(ctx, owner, id)

	if err != nil {
		return err
	}

	if mem.Status != memory.StatusDraft {
		return errors.NewValidation("status", "memory is not a draft")
	}

	return service.store.SetMemoryStatus(ctx, owner, id, status, nil)
}

// TopEntities returns the owner's most referenced entity hubs.
func (service *Service) TopEntities(
	ctx context.Context, owner uuid.UUID, hubType entity.HubType, limit int,
) ([]*entity.Hub, error) {
	return service.store.TopHubs(ctx, owner, hubType, limit)
}

// Related walks the knowledge graph outward from a memory.
func (service *Service) Related(
	ctx context.Context, owner, memoryID uuid.UUID, depth int,
) ([]graph.Related, error) {
	if max := viper.GetInt("graph.max_depth"); max > 0 && depth > max {
		depth = max
	}

	return service.builder.GetRelated(ctx, owner, memoryID, depth)
}

// Stats summarizes the owner's memory store.
type Stats struct {
	ActiveMemories     int `json:"active_memories"`
	DraftMemories      int `json:"draft_memories"`
	SupersededMemories int `json:"superseded_memories"`
	EntityHubs         int `json:"entity_hubs"`
	Runs               int `json:"runs"`
}

// Stats counts the owner's memories by status along with hubs and runs.
func (service *Service) Stats(
	ctx context.Context, owner uuid.UUID,
) (*Stats, error) {
	stats := &Stats{}

	counts := []struct {
		status memory.Status
		into   *int
	}{
		{memory.StatusActive, &stats.ActiveMemories},
		{memory.StatusDraft, &stats.DraftMemories},
		{memory.StatusSuperseded, &stats.SupersededMemories},
	}

	for _, count := range counts {
		n, err := service.store.CountMemories(ctx, owner, count.status)

		if err != nil {
			return nil, err
		}

		*count.into = n
	}

	hubs, err := service.store.ListHubs(ctx, owner, 0)

	if err != nil {
		return nil, err
	}

	stats.EntityHubs = len(hubs)

	runs, err := service.store.ListRuns(ctx, owner, 0)

	if err != nil {
		return nil, err
	}

	stats.Runs = len(runs)

	return stats, nil
}

// History lists the owner's consolidation runs, newest first.
func (service *Service) History(
	ctx context.Context, owner uuid.UUID, limit int,
) ([]*consolidation.Run, error) {
	return service.store.ListRuns(ctx, owner, limit)
}

func newEmbedder() provider.Embedder {
	switch strings.ToLower(viper.GetString("embedding.provider")) {
	case "ollama":
		return provider.NewOllamaEmbedder(
			provider.WithOllamaEmbedderClient(),
			provider.WithOllamaEmbedderModel(viper.GetString("embedding.model")),
			provider.WithOllamaEmbedderRetry(retryConfig()),
		)
	default:
		return provider.NewOpenAIEmbedder(
			provider.WithOpenAIEmbedderClient(),
			provider.WithOpenAIEmbedderModel(viper.GetString("embedding.model")),
			provider.WithOpenAIEmbedderRetry(retryConfig()),
		)
	}
}

func retryConfig() *errors.RetryConfig {
	config := errors.DefaultRetryConfig()

	if v := viper.GetInt("retry.max_attempts"); v > 0 {
		config.MaxAttempts = v
	}

	if v := viper.GetDuration("retry.initial_delay"); v > 0 {
		config.InitialDelay = v
	}

	if v := viper.GetDuration("retry.max_delay"); v > 0 {
		config.MaxDelay = v
	}

	return config
}

func consolidationConfig() consolidation.Config {
	config := consolidation.DefaultConfig()

	if v := viper.GetFloat64("consolidation.dedup_threshold"); v > 0 {
		config.DedupThreshold = v
	}

	if v := viper.GetFloat64("consolidation.conflict_low"); v > 0 {
		config.ConflictLow = v
	}

	if v := viper.GetFloat64("consolidation.conflict_high"); v > 0 {
		config.ConflictHigh = v
	}

	if v := viper.GetFloat64("consolidation.relate_threshold"); v > 0 {
		config.RelateThreshold = v
	}

	if v := viper.GetInt("consolidation.top_k"); v > 0 {
		config.TopK = v
	}

	if v := viper.GetInt("consolidation.concurrency"); v > 0 {
		config.Concurrency = v
	}

	if v := viper.GetFloat64("consolidation.failure_fraction"); v > 0 {
		config.FailureFraction = v
	}

	if v := viper.GetFloat64("consolidation.draft_confidence"); v > 0 {
		config.DraftConfidence = v
	}

	return config
}

func storePath() string {
	path := viper.GetString("store.path")

	if path == "" {
		home, _ := os.UserHomeDir()
		path = filepath.Join(home, ".lucid", "lucid.db")
	}

	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		path = filepath.Join(home, path[2:])
	}

	if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
		log.Error("failed to create data directory", "path", path, "error", err)
	}

	return path
}
