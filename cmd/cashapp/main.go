package main

import (
	"context"
	"time"

	"github.com/smallbiznis/cashapp/internal/config"
	"github.com/smallbiznis/cashapp/internal/observability"
	"github.com/smallbiznis/cashapp/internal/orchestrator"
	"github.com/smallbiznis/cashapp/internal/server"
	"github.com/smallbiznis/cashapp/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func main() {
	app := fx.New(
		observability.Module,
		db.Module,
		server.Module,
		fx.Invoke(runReconciliationSweep),
	)
	app.Run()
}

// runReconciliationSweep mirrors the reviewed repo's scheduler.RunForever
// lifecycle hook: a background ticker drives the Orchestrator's crash
// recovery sweep (spec.md §4.4/§9 "on restart, the Orchestrator reconciles
// any in-flight workflows").
func runReconciliationSweep(lc fx.Lifecycle, cfg config.Config, orch *orchestrator.Orchestrator, log *zap.Logger) {
	interval := cfg.Workflow.RecoverySweepInterval
	if interval <= 0 {
		interval = time.Minute
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ctx, cancel := context.WithCancel(context.Background())
			go sweepForever(ctx, interval, orch, log)

			lc.Append(fx.Hook{
				OnStop: func(context.Context) error {
					cancel()
					return nil
				},
			})
			return nil
		},
	})
}

func sweepForever(ctx context.Context, interval time.Duration, orch *orchestrator.Orchestrator, log *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := orch.ReconcileStuckWorkflows(ctx); err != nil {
				log.Error("reconciliation sweep failed", zap.Error(err))
			}
		}
	}
}
