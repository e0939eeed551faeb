package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/zjrosen/turbo/internal/jobs"
	"github.com/zjrosen/turbo/internal/presentation"
)

var definitionsCmd = &cobra.Command{
	Use:   "definitions",
	Short: "Inspect job definitions",
}

var definitionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List job definitions",
	Long: `List the job definitions loaded from the definitions file.

Examples:
  turbo definitions list --definitions ./definitions.yaml
  turbo definitions list -o json | jq '.[].id'`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		formatter, err := presentation.NewFormatter(cmd.OutOrStdout(), outputFormat)
		if err != nil {
			return err
		}

		ctx := context.Background()
		rt, err := newRuntime(ctx, cfg)
		if err != nil {
			return err
		}
		defer func() { _ = rt.Close(ctx) }()

		res, err := rt.execute(ctx, jobs.NewListDefinitions())
		if err != nil {
			return err
		}
		defs, _ := res.([]*jobs.Definition)
		return formatter.FormatDefinitions(presentation.FromDefinitions(defs))
	},
}

func init() {
	definitionsCmd.AddCommand(definitionsListCmd)
	rootCmd.AddCommand(definitionsCmd)
}
