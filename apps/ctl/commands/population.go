package commands

import (
	"context"
	"fmt"

	populationdomain "github.com/smallbiznis/formmetrics/internal/population/domain"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newPopulateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "populate <submission-id>",
		Short: "Populate metric values for a submission",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := populationdomain.ParseID(args[0])
			if err != nil {
				return fmt.Errorf("%w: %s", populationdomain.ErrInvalidID, args[0])
			}
			return withApp(cmd, func(ctx context.Context, d deps) error {
				ctx = populationdomain.WithTrigger(ctx, populationdomain.TriggerCLI)
				summary, err := d.Population.PopulateFromSubmission(ctx, id)
				if err != nil {
					return err
				}
				d.Log.Info("population finished",
					zap.String("submission_id", summary.SubmissionID),
					zap.String("status", summary.Status),
					zap.Int("succeeded", summary.Succeeded),
					zap.Int("failed", summary.Failed),
					zap.Int("skipped", summary.Skipped),
				)
				return printJSON(cmd.OutOrStdout(), summary)
			})
		},
	}
}

func newRecalculateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "recalculate <submission-id>",
		Short: "Discard a submission's audit records and populate again",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := populationdomain.ParseID(args[0])
			if err != nil {
				return fmt.Errorf("%w: %s", populationdomain.ErrInvalidID, args[0])
			}
			return withApp(cmd, func(ctx context.Context, d deps) error {
				summary, err := d.Population.Recalculate(ctx, id)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), summary)
			})
		},
	}
}

func newLogsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logs <submission-id>",
		Short: "List population audit records for a submission",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, d deps) error {
				logs, err := d.Population.ListLogs(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), logs)
			})
		},
	}
}

func newRunsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "runs <submission-id>",
		Short: "List population runs for a submission",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, d deps) error {
				runs, err := d.Population.ListRuns(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), runs)
			})
		},
	}
}
