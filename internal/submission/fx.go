package submission

import (
	"github.com/smallbiznis/formmetrics/internal/submission/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("submission.repository",
	fx.Provide(repository.Provide),
)
