package extractor

import (
	"github.com/smallbiznis/cashapp/internal/extractor/domain"
	"go.uber.org/fx"
)

var Module = fx.Module("extractor",
	fx.Provide(
		NewService,
		func(s *Service) domain.Service { return s },
	),
)
