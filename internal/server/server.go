// Package server exposes the cash-application agent's HTTP control plane
// (spec.md §6): submitting transactions, polling workflow status, and the
// direct EX/EF/CM operational surfaces, on top of a gin.Engine instrumented
// the way the reviewed repo's internal/server wires logging/tracing/metrics
// middleware.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/smallbiznis/cashapp/internal/audit"
	auditdomain "github.com/smallbiznis/cashapp/internal/audit/domain"
	"github.com/smallbiznis/cashapp/internal/clock"
	"github.com/smallbiznis/cashapp/internal/communication"
	"github.com/smallbiznis/cashapp/internal/communicator"
	communicatordomain "github.com/smallbiznis/cashapp/internal/communicator/domain"
	"github.com/smallbiznis/cashapp/internal/config"
	"github.com/smallbiznis/cashapp/internal/erp"
	"github.com/smallbiznis/cashapp/internal/extractor"
	extractordomain "github.com/smallbiznis/cashapp/internal/extractor/domain"
	"github.com/smallbiznis/cashapp/internal/matchresult"
	"github.com/smallbiznis/cashapp/internal/observability"
	obsmiddleware "github.com/smallbiznis/cashapp/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/cashapp/internal/observability/metrics"
	obstracing "github.com/smallbiznis/cashapp/internal/observability/tracing"
	"github.com/smallbiznis/cashapp/internal/orchestrator"
	orchdomain "github.com/smallbiznis/cashapp/internal/orchestrator/domain"
	"github.com/smallbiznis/cashapp/internal/providers"
	"github.com/smallbiznis/cashapp/internal/ratelimit"
	"github.com/smallbiznis/cashapp/internal/transaction"
	transactiondomain "github.com/smallbiznis/cashapp/internal/transaction/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

// Module composes every domain module the HTTP surface depends on and
// registers the gin engine + lifecycle hook, the same shape as the
// reviewed repo's http.server module.
var Module = fx.Module("http.server",
	config.Module,
	clock.Module,
	transaction.Module,
	erp.Module,
	extractor.Module,
	matchresult.Module,
	communication.Module,
	communicator.Module,
	orchestrator.Module,
	providers.Module,
	ratelimit.Module,
	audit.Module,
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

// NewEngine builds the gin engine with the standard middleware stack:
// recovery, request logging, tracing, HTTP metrics, and centralized error
// handling, plus the always-on /metrics route (/health is added by
// registerHealthRoutes).
func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	return payload.Type, http.StatusText(status)
}

func run(lc fx.Lifecycle, r *gin.Engine) {
	srv := &http.Server{
		Addr:    ":8080",
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

// Server holds the services every route handler dispatches to.
type Server struct {
	engine *gin.Engine
	db     *gorm.DB

	transactionSvc transactiondomain.Service
	orchestrator   orchdomain.Service
	erpFacade      erp.FacadeService
	extractorSvc   extractordomain.Service
	communicator   communicatordomain.Service
	auditSvc       auditdomain.Service
}

type ServerParams struct {
	fx.In

	Gin            *gin.Engine
	DB             *gorm.DB
	TransactionSvc transactiondomain.Service
	Orchestrator   orchdomain.Service
	ERPFacade      erp.FacadeService
	ExtractorSvc   extractordomain.Service
	Communicator   communicatordomain.Service
	AuditSvc       auditdomain.Service
}

func NewServer(p ServerParams) *Server {
	s := &Server{
		engine:         p.Gin,
		db:             p.DB,
		transactionSvc: p.TransactionSvc,
		orchestrator:   p.Orchestrator,
		erpFacade:      p.ERPFacade,
		extractorSvc:   p.ExtractorSvc,
		communicator:   p.Communicator,
		auditSvc:       p.AuditSvc,
	}

	s.registerHealthRoutes()
	s.registerWorkflowRoutes()
	s.registerExtractRoutes()
	s.registerInvoiceRoutes()
	s.registerApplicationRoutes()
	s.registerERPHealthRoutes()
	s.registerNotificationRoutes()
	s.registerAuditRoutes()

	return s
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}
