package erp

import (
	"github.com/smallbiznis/cashapp/internal/erp/adapters/generic"
	"github.com/smallbiznis/cashapp/internal/erp/adapters/netsuite"
	"github.com/smallbiznis/cashapp/internal/erp/adapters/quickbooks"
	"github.com/smallbiznis/cashapp/internal/erp/adapters/sap"
	"github.com/smallbiznis/cashapp/internal/erp/domain"
	"go.uber.org/fx"
)

// Module wires the ERP adapter registry (one factory per variant) and the
// Facade that fronts them.
var Module = fx.Module("erp",
	fx.Provide(
		newRegistry,
		NewFacade,
		asFacadeService,
	),
)

func asFacadeService(f *Facade) FacadeService { return f }

func newRegistry() *Registry {
	return NewRegistry(
		domain.Factory(netsuite.NewFactory()),
		domain.Factory(sap.NewFactory()),
		domain.Factory(quickbooks.NewFactory()),
		domain.Factory(generic.NewFactory()),
	)
}
