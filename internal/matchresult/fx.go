package matchresult

import (
	"github.com/smallbiznis/cashapp/internal/matchresult/repository"
	"github.com/smallbiznis/cashapp/internal/matchresult/service"
	"go.uber.org/fx"
)

var Module = fx.Module("matchresult",
	fx.Provide(
		repository.Provide,
		service.NewService,
	),
)
