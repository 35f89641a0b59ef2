package population

import (
	"github.com/smallbiznis/formmetrics/internal/keylock"
	"github.com/smallbiznis/formmetrics/internal/mapping"
	"github.com/smallbiznis/formmetrics/internal/population/repository"
	"github.com/smallbiznis/formmetrics/internal/population/service"
	"github.com/smallbiznis/formmetrics/internal/submission"
	"github.com/smallbiznis/formmetrics/internal/taxonomy"
	"go.uber.org/fx"
)

var Module = fx.Module("population.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)

// Stack is the engine together with every module it reads from.
var Stack = fx.Options(
	keylock.Module,
	submission.Module,
	taxonomy.Module,
	mapping.Module,
	Module,
)
