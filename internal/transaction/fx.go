package transaction

import (
	"github.com/smallbiznis/cashapp/internal/transaction/repository"
	"github.com/smallbiznis/cashapp/internal/transaction/service"
	"go.uber.org/fx"
)

// Module wires the PaymentTransaction repository and service.
var Module = fx.Module("transaction",
	fx.Provide(
		repository.Provide,
		service.NewService,
	),
)
