package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/smallbiznis/formmetrics/internal/migration"
	"github.com/smallbiznis/formmetrics/internal/seed"
	taxonomyrepo "github.com/smallbiznis/formmetrics/internal/taxonomy/repository"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, d deps) error {
				if err := migration.Apply(d.DB.WithContext(ctx)); err != nil {
					return err
				}
				d.Log.Info("migrations applied")
				return nil
			})
		},
	}
}

func newSeedCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Insert the metric taxonomy where missing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			taxonomy, err := loadTaxonomy(file)
			if err != nil {
				return err
			}
			return withApp(cmd, func(ctx context.Context, d deps) error {
				result, err := seed.EnsureTaxonomy(ctx, d.DB, taxonomyrepo.Provide(), d.Node, taxonomy)
				if err != nil {
					return err
				}
				d.Log.Info("taxonomy seeded",
					zap.Int("units", result.Units),
					zap.Int("categories", result.Categories),
					zap.Int("sub_categories", result.SubCategories),
					zap.Int("metrics", result.Metrics),
				)
				return printJSON(cmd.OutOrStdout(), result)
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "taxonomy YAML file (defaults to the built-in taxonomy)")
	return cmd
}

func loadTaxonomy(file string) (*seed.Taxonomy, error) {
	if file == "" {
		return seed.DefaultTaxonomy()
	}
	raw, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("read taxonomy: %w", err)
	}
	return seed.ParseTaxonomy(raw)
}
