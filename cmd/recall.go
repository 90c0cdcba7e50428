package cmd

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/theapemachine/lucid/pkg/memory"
	"github.com/theapemachine/lucid/pkg/recall"
	"github.com/theapemachine/lucid/pkg/service"
)

var (
	recallTypeFlag       string
	recallEntityFlag     string
	recallImportanceFlag int
	recallLimitFlag      int

	recallCmd = &cobra.Command{
		Use:   "recall <query>",
		Short: "Recall memories matching a natural-language query",
		Long:  longRecall,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, err := parseOwner()

			if err != nil {
				return err
			}

			svc, err := service.New()

			if err != nil {
				return err
			}

			defer svc.Close()

			result, err := svc.Recall(
				cmd.Context(), owner, strings.Join(args, " "), recall.Filters{
					Type:          memory.Type(recallTypeFlag),
					Entity:        recallEntityFlag,
					MinImportance: recallImportanceFlag,
				}, recallLimitFlag,
			)

			if err != nil {
				return err
			}

			return printJSON(result)
		},
	}
)

func init() {
	rootCmd.AddCommand(recallCmd)

	recallCmd.Flags().StringVarP(
		&recallTypeFlag, "type", "t", "",
		"Restrict to one memory type (episodic, semantic, preference, procedural, meta)",
	)
	recallCmd.Flags().StringVarP(
		&recallEntityFlag, "entity", "e", "",
		"Restrict to memories linked to this entity",
	)
	recallCmd.Flags().IntVar(
		&recallImportanceFlag, "min-importance", 0,
		"Minimum importance (1-10)",
	)
	recallCmd.Flags().IntVarP(
		&recallLimitFlag, "limit", "l", 0, "Maximum results",
	)
}

var longRecall = `
Recall searches memories by meaning. Results are ranked by similarity
and importance, obsolete memories are replaced by their newer versions,
and memories sharing entities with the best hits fill the remainder.

Examples:
  lucid recall -o <owner-uuid> "what databases do I prefer"
  lucid recall -o <owner-uuid> -t preference -e postgres "database"
`
