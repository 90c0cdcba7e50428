package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/theapemachine/lucid/pkg/service"
)

var (
	bucketFlag       string
	prefixFlag       string
	conversationFlag string

	consolidateCmd = &cobra.Command{
		Use:   "consolidate [file]",
		Short: "Consolidate a conversation transcript into memories",
		Long:  longConsolidate,
		Args:  cobra.MaximumNArgs(1),
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

			if bucketFlag != "" {
				runs, err := svc.ConsolidateFromBucket(
					cmd.Context(), owner, bucketFlag, prefixFlag,
				)

				if err != nil {
					return err
				}

				for _, run := range runs {
					printRun(run)
				}

				return nil
			}

			transcript, err := readTranscript(args)

			if err != nil {
				return err
			}

			run, err := svc.Consolidate(
				cmd.Context(), owner, transcript, conversationFlag,
			)

			if run != nil {
				printRun(run)
			}

			return err
		},
	}
)

func init() {
	rootCmd.AddCommand(consolidateCmd)

	consolidateCmd.Flags().StringVar(
		&bucketFlag, "bucket", "", "Consolidate every transcript in this S3 bucket",
	)
	consolidateCmd.Flags().StringVar(
		&prefixFlag, "prefix", "", "Object key prefix when reading from a bucket",
	)
	consolidateCmd.Flags().StringVar(
		&conversationFlag, "conversation", "",
		"Conversation or session id recorded on the run",
	)
}

func readTranscript(args []string) (string, error) {
	if len(args) == 1 {
		data, err := os.ReadFile(args[0])

		if err != nil {
			return "", err
		}

		return string(data), nil
	}

	data, err := io.ReadAll(os.Stdin)

	if err != nil {
		return "", err
	}

	return string(data), nil
}

func parseOwner() (uuid.UUID, error) {
	owner, err := uuid.Parse(ownerFlag)

	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid owner id %q: %w", ownerFlag, err)
	}

	return owner, nil
}

var longConsolidate = `
Consolidate extracts memory-worthy claims from a transcript and merges
them into the owner's memory store. Reads from a file argument, from
stdin, or from an S3 bucket with --bucket.

Examples:
  lucid consolidate -o <owner-uuid> transcript.txt
  cat transcript.txt | lucid consolidate -o <owner-uuid>
  lucid consolidate -o <owner-uuid> --bucket conversations --prefix 2026/
`
