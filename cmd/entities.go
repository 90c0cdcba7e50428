package cmd

import (
	"github.com/spf13/cobra"

	"github.com/theapemachine/lucid/pkg/entity"
	"github.com/theapemachine/lucid/pkg/service"
)

var (
	entityTypeFlag  string
	entityLimitFlag int

	entitiesCmd = &cobra.Command{
		Use:   "entities",
		Short: "List the most referenced entity hubs",
		Long:  longEntities,
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

			hubs, err := svc.TopEntities(
				cmd.Context(), owner,
				entity.HubType(entityTypeFlag), entityLimitFlag,
			)

			if err != nil {
				return err
			}

			return printJSON(hubs)
		},
	}
)

func init() {
	rootCmd.AddCommand(entitiesCmd)

	entitiesCmd.Flags().StringVarP(
		&entityTypeFlag, "type", "t", "",
		"Restrict to one hub type (person, place, event, recipe, concept, tech, project, organization)",
	)
	entitiesCmd.Flags().IntVarP(
		&entityLimitFlag, "limit", "l", 20, "Maximum hubs to list",
	)
}

var longEntities = `
Entities lists the owner's entity hubs ordered by how many memories
reference them.

Examples:
  lucid entities -o <owner-uuid>
  lucid entities -o <owner-uuid> -t tech -l 10
`
