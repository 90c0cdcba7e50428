package cmd

import (
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/theapemachine/lucid/pkg/service"
)

var (
	windowFlag time.Duration

	evolutionCmd = &cobra.Command{
		Use:   "evolution <entity>",
		Short: "Show how knowledge about an entity changed over time",
		Long:  longEvolution,
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

			timeline, err := svc.AnalyzeEvolution(
				cmd.Context(), owner, strings.Join(args, " "), windowFlag,
			)

			if err != nil {
				return err
			}

			return printJSON(timeline)
		},
	}
)

func init() {
	rootCmd.AddCommand(evolutionCmd)

	evolutionCmd.Flags().DurationVarP(
		&windowFlag, "window", "w", 0,
		"Only include memories from this far back (0 means all time)",
	)
}

var longEvolution = `
Evolution reconstructs the timeline of one entity: when it was first
mentioned, when beliefs about it were superseded, and when they were
strengthened or weakened by repetition.

Examples:
  lucid evolution -o <owner-uuid> "project x"
  lucid evolution -o <owner-uuid> -w 720h rust
`
