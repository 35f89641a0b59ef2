package migration

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/formmetrics/internal/config"
	"github.com/smallbiznis/formmetrics/internal/seed"
	taxonomyrepo "github.com/smallbiznis/formmetrics/internal/taxonomy/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, node *snowflake.Node, log *zap.Logger) error {
		if cfg.DBAutoMigrate {
			if err := Apply(conn); err != nil {
				return err
			}
		}
		if cfg.SeedTaxonomy {
			return seed.EnsureDefaultTaxonomy(context.Background(), conn, taxonomyrepo.Provide(), node, log.Named("seed"))
		}
		return nil
	}),
)
