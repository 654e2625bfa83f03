package communication

import (
	"github.com/smallbiznis/cashapp/internal/communication/repository"
	"github.com/smallbiznis/cashapp/internal/communication/service"
	"go.uber.org/fx"
)

var Module = fx.Module("communication",
	fx.Provide(
		repository.Provide,
		service.NewService,
	),
)
