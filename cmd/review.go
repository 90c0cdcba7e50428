package cmd

import (
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/theapemachine/lucid/pkg/service"
)

var (
	draftsLimitFlag int

	reviewCmd = &cobra.Command{
		Use:   "review",
		Short: "Review draft memories awaiting approval",
		Long:  longReview,
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

			drafts, err := svc.Drafts(cmd.Context(), owner, draftsLimitFlag)

			if err != nil {
				return err
			}

			return printJSON(drafts)
		},
	}

	approveCmd = &cobra.Command{
		Use:   "approve <memory-id>",
		Short: "Promote a draft memory to active",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return reviewDecision(cmd, args[0], true)
		},
	}

	rejectCmd = &cobra.Command{
		Use:   "reject <memory-id>",
		Short: "Mark a draft memory irrelevant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return reviewDecision(cmd, args[0], false)
		},
	}
)

func reviewDecision(cmd *cobra.Command, rawID string, approve bool) error {
	owner, err := parseOwner()

	if err != nil {
		return err
	}

	id, err := uuid.Parse(rawID)

	if err != nil {
		return err
	}

	svc, err := service.New()

	if err != nil {
		return err
	}

	defer svc.Close()

	if approve {
		return svc.Approve(cmd.Context(), owner, id)
	}

	return svc.Reject(cmd.Context(), owner, id)
}

func init() {
	rootCmd.AddCommand(reviewCmd)
	reviewCmd.AddCommand(approveCmd)
	reviewCmd.AddCommand(rejectCmd)

	reviewCmd.Flags().IntVarP(
		&draftsLimitFlag, "limit", "l", 50, "Maximum drafts to list",
	)
}

var longReview = `
Review lists memories that consolidation stored as drafts because their
extraction confidence was low. Approve promotes a draft to active;
reject retires it as irrelevant.

Examples:
  lucid review -o <owner-uuid>
  lucid review approve -o <owner-uuid> <memory-id>
  lucid review reject -o <owner-uuid> <memory-id>
`
