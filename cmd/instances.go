package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zjrosen/turbo/internal/jobs"
	"github.com/zjrosen/turbo/internal/presentation"
)

var (
	requestFile  string
	failIfExists bool
	listGroup    string
)

var instancesCmd = &cobra.Command{
	Use:   "instances",
	Short: "Create and inspect job instances",
}

var instancesCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create job instances from a request file",
	Long: `Create job instances from a YAML request file.

The request names a job definition and describes the instance. With
replication_mode follow_queue one instance is created per extra queue.

Example request:
  job_definition_id: etl
  name: nightly
  group_path: pipelines/nightly
  replication_mode: follow_queue
  extra_queues: [q1, q2]
  output_queues: [warehouse]
  parameters:
    source: s3://bucket

Examples:
  turbo instances create -f request.yaml
  turbo instances create -f request.yaml --fail-if-exists -o json`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		req, err := jobs.LoadRequest(requestFile)
		if err != nil {
			return err
		}
		if failIfExists {
			req.FailIfExists = true
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

		req.InstanceData, err = rt.jobs.CoerceRequest(ctx, req.InstanceData)
		if err != nil {
			return err
		}
		res, err := rt.execute(ctx, req.Command())
		if err != nil {
			return err
		}
		instances, _ := res.([]*jobs.Instance)
		if len(instances) == 0 && outputFormat != presentation.FormatJSON {
			_, _ = fmt.Fprintln(cmd.ErrOrStderr(), "Instance already exists, nothing created")
		}
		return formatter.FormatInstances(presentation.FromInstances(instances))
	},
}

var instancesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List job instances",
	Long: `List stored job instances, optionally only those in a group.

Groups are nested: --group team lists instances in team and team/nightly.

Examples:
  turbo instances list
  turbo instances list --group pipelines`,
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

		res, err := rt.execute(ctx, jobs.NewListInstances(listGroup))
		if err != nil {
			return err
		}
		instances, _ := res.([]*jobs.Instance)
		return formatter.FormatInstances(presentation.FromInstances(instances))
	},
}

var instancesDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a job instance",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		rt, err := newRuntime(ctx, cfg)
		if err != nil {
			return err
		}
		defer func() { _ = rt.Close(ctx) }()

		res, err := rt.execute(ctx, jobs.NewDeleteInstance(args[0]))
		if err != nil {
			return err
		}
		if deleted, _ := res.(bool); !deleted {
			return fmt.Errorf("%w: %s", jobs.ErrInstanceNotFound, args[0])
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
		return nil
	},
}

func init() {
	instancesCreateCmd.Flags().StringVarP(&requestFile, "file", "f", "", "YAML request file (required)")
	instancesCreateCmd.Flags().BoolVar(&failIfExists, "fail-if-exists", false, "Fail instead of doing nothing when the instance exists")
	_ = instancesCreateCmd.MarkFlagRequired("file")

	instancesListCmd.Flags().StringVarP(&listGroup, "group", "g", "", "Only list instances in this group (e.g., team/nightly)")

	instancesCmd.AddCommand(instancesCreateCmd, instancesListCmd, instancesDeleteCmd)
	rootCmd.AddCommand(instancesCmd)
}
