package cmd

import (
	"context"
	"fmt"
	"regexp"

	"github.com/spf13/cobra"

	"github.com/zjrosen/turbo/internal/pathmap"
	"github.com/zjrosen/turbo/internal/presentation"
)

var (
	objPrefix string
	objSuffix string
	objMatch  string
)

var objectsCmd = &cobra.Command{
	Use:   "objects",
	Short: "Inspect the path-indexed registry",
}

var objectsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registry entries",
	Long: `List every entry stored in the registry, optionally filtered.

--prefix limits the listing to a subtree. --suffix keeps paths whose
"/"-joined form ends with the given text. --match keeps paths whose whole
"/"-joined form matches the regular expression.

Examples:
  turbo objects list
  turbo objects list --prefix jobs/definitions
  turbo objects list --suffix nightly
  turbo objects list --match 'groups/team/.*' -o json`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		q := pathmap.Query{
			Prefix: pathmap.ParsePath(objPrefix, pathmap.Separator),
			Suffix: objSuffix,
		}
		if objMatch != "" {
			re, err := regexp.Compile(objMatch)
			if err != nil {
				return fmt.Errorf("invalid --match expression: %w", err)
			}
			q.Matches = re
		}

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

		return formatter.FormatObjects(presentation.FromResources(rt.central.ListObjects(ctx, q)))
	},
}

func init() {
	objectsListCmd.Flags().StringVar(&objPrefix, "prefix", "", "Only list entries below this path (e.g., jobs/instances)")
	objectsListCmd.Flags().StringVar(&objSuffix, "suffix", "", "Only list paths ending with this text")
	objectsListCmd.Flags().StringVar(&objMatch, "match", "", "Only list paths fully matching this regular expression")
	objectsCmd.AddCommand(objectsListCmd)
	rootCmd.AddCommand(objectsCmd)
}
