package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/formmetrics/internal/clock"
	"github.com/smallbiznis/formmetrics/internal/config"
	"github.com/smallbiznis/formmetrics/internal/migration"
	"github.com/smallbiznis/formmetrics/internal/observability"
	"github.com/smallbiznis/formmetrics/internal/population"
	"github.com/smallbiznis/formmetrics/internal/population/worker"
	"github.com/smallbiznis/formmetrics/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		// Domain services required by the worker
		population.Stack,

		// No server module!
		worker.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) *snowflake.Node {
	node, err := snowflake.NewNode(cfg.NodeID)
	if err != nil {
		panic(err)
	}
	return node
}
