package cmd

import (
	"github.com/spf13/cobra"

	"github.com/theapemachine/lucid/pkg/service"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize the owner's memory store",
	Long:  longStats,
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

		stats, err := svc.Stats(cmd.Context(), owner)

		if err != nil {
			return err
		}

		return printJSON(stats)
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

var longStats = `
Stats counts the owner's memories by status alongside entity hub and
consolidation run totals.

Examples:
  lucid stats -o <owner-uuid>
`
