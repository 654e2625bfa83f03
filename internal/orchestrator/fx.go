package orchestrator

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/cashapp/internal/orchestrator/domain"
	"github.com/smallbiznis/cashapp/internal/orchestrator/repository"
	"go.uber.org/fx"
)

// newSnowflakeNode mirrors the reviewed repo's app-level node provider
// (cmd/valora/main.go), node id 1 since the cash-application agent runs
// as a single instance per deployment.
func newSnowflakeNode() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}

func asService(o *Orchestrator) domain.Service { return o }

var Module = fx.Module("orchestrator",
	fx.Provide(
		newSnowflakeNode,
		repository.Provide,
		NewOrchestrator,
		asService,
	),
)
