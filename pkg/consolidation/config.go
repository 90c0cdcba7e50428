package consolidation

/*
Config carries the merge thresholds and pipeline limits. The conflict
band is half-open: a similarity equal to ConflictHigh is already in
duplicate territory once it reaches DedupThreshold, and below
ConflictLow the claim is simply new information.
*/
type Config struct {
	// DedupThreshold is the similarity at or above which a claim is
	// treated as a restatement of an existing memory.
	DedupThreshold float64
	// ConflictLow and ConflictHigh bound the band [low, high) in which
	// a claim is similar enough to warrant a contradiction check.
	ConflictLow  float64
	ConflictHigh float64
	// RelateThreshold is the similarity at or above which a newly
	// created memory gets a related_to edge to a neighbor.
	RelateThreshold float64
	// TopK is how many neighbors are considered per claim.
	TopK int
	// Concurrency bounds the parallel embedding and entity resolution
	// work per run.
	Concurrency int
	// FailureFraction is the share of failed claims at which a run is
	// marked failed instead of completed.
	FailureFraction float64
	// DraftConfidence is the extraction confidence below which a new
	// memory lands as a draft awaiting review instead of active.
	DraftConfidence float64
}

// DefaultConfig returns the thresholds the pipeline ships with.
func DefaultConfig() Config {
	return Config{
		DedupThreshold:  0.95,
		ConflictLow:     0.50,
		ConflictHigh:    0.85,
		RelateThreshold: 0.70,
		TopK:            10,
		Concurrency:     5,
		FailureFraction: 0.5,
		DraftConfidence: 0.6,
	}
}
