package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/theapemachine/lucid/pkg/consolidation"
)

func printRun(run *consolidation.Run) {
	fmt.Printf(
		"run %s: %s (claims %d, created %d, merged %d, conflicts %d, edges %d, failed %d, %dms)\n",
		run.ID, run.Status, run.ClaimsExtracted, run.NewMemoriesCreated,
		run.MemoriesMerged, run.ConflictsResolved, run.EdgesCreated,
		run.FailedClaims, run.ElapsedMS,
	)
}

func printJSON(v any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
