package cmd

import (
	"github.com/spf13/cobra"

	"github.com/theapemachine/lucid/pkg/service"
)

var (
	historyLimitFlag int

	historyCmd = &cobra.Command{
		Use:   "history",
		Short: "List consolidation runs, newest first",
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

			runs, err := svc.History(cmd.Context(), owner, historyLimitFlag)

			if err != nil {
				return err
			}

			for _, run := range runs {
				printRun(run)
			}

			return nil
		},
	}
)

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().IntVarP(
		&historyLimitFlag, "limit", "l", 20, "Maximum runs to list",
	)
}
