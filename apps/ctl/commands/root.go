package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/formmetrics/internal/clock"
	"github.com/smallbiznis/formmetrics/internal/config"
	"github.com/smallbiznis/formmetrics/internal/observability"
	"github.com/smallbiznis/formmetrics/internal/population"
	populationdomain "github.com/smallbiznis/formmetrics/internal/population/domain"
	"github.com/smallbiznis/formmetrics/pkg/db"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// Version is set at build time via ldflags.
	Version = "dev"

	timeout time.Duration
)

var rootCmd = &cobra.Command{
	Use:           "formmetrics-ctl",
	Short:         "Operate the form metrics population engine",
	SilenceUsage:  true,
	SilenceErrors: false,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 2*time.Minute, "overall command timeout")

	rootCmd.AddCommand(
		newPopulateCmd(),
		newRecalculateCmd(),
		newLogsCmd(),
		newRunsCmd(),
		newMigrateCmd(),
		newSeedCmd(),
		newVersionCmd(),
	)
}

// deps is the slice of the service graph the commands use.
type deps struct {
	DB         *gorm.DB
	Log        *zap.Logger
	Node       *snowflake.Node
	Population populationdomain.Service
}

// withApp starts the service graph without HTTP or worker, runs fn and stops.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, d deps) error) error {
	var d deps
	app := fx.New(
		fx.NopLogger,
		config.Module,
		observability.Module,
		fx.Provide(registerSnowflake),
		db.Module,
		clock.Module,
		population.Stack,
		fx.Populate(&d.DB, &d.Log, &d.Node, &d.Population),
	)

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	if err := app.Start(ctx); err != nil {
		return fmt.Errorf("start: %w", err)
	}
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer stopCancel()
		_ = app.Stop(stopCtx)
	}()

	return fn(ctx, d)
}

func registerSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the CLI version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), Version)
		},
	}
}
