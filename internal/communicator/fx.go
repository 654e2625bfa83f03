package communicator

import (
	"github.com/smallbiznis/cashapp/internal/communicator/domain"
	"go.uber.org/fx"
)

var Module = fx.Module("communicator",
	fx.Provide(
		NewService,
		asService,
	),
)

func asService(s *Service) domain.Service { return s }
