package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	billingconfigdomain "github.com/smallbiznis/tirta/internal/billingconfig/domain"
	execdomain "github.com/smallbiznis/tirta/internal/billingexecution/domain"
	"github.com/smallbiznis/tirta/internal/config"
	"github.com/smallbiznis/tirta/internal/executor"
	invoicedomain "github.com/smallbiznis/tirta/internal/invoice/domain"
	"github.com/smallbiznis/tirta/internal/observability"
	obsmiddleware "github.com/smallbiznis/tirta/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/tirta/internal/observability/metrics"
	obstracing "github.com/smallbiznis/tirta/internal/observability/tracing"
	"github.com/smallbiznis/tirta/internal/ratelimit"
	"github.com/smallbiznis/tirta/internal/scheduler"
	tariffdomain "github.com/smallbiznis/tirta/internal/tariff/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(run),
)

// Executor runs one billing configuration.
type Executor interface {
	Execute(ctx context.Context, configID snowflake.ID, trigger execdomain.Trigger) (*executor.Result, error)
}

// Reloader re-derives scheduler timers after a config changes.
type Reloader interface {
	Reload(ctx context.Context, configID *snowflake.ID) error
}

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(httpMetrics.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, _ *Server, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine         *gin.Engine
	cfg            config.Config
	log            *zap.Logger
	configSvc      billingconfigdomain.Service
	executionSvc   execdomain.Service
	invoiceSvc     invoicedomain.Service
	tariffSvc      tariffdomain.Service
	executor       Executor
	reloader       Reloader
	triggerLimiter *ratelimit.TriggerLimiter
	obsMetrics     *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin          *gin.Engine
	Cfg          config.Config
	Log          *zap.Logger
	ConfigSvc    billingconfigdomain.Service
	ExecutionSvc execdomain.Service
	InvoiceSvc   invoicedomain.Service
	TariffSvc    tariffdomain.Service
	Executor     *executor.Service

	Scheduler      *scheduler.Scheduler     `optional:"true"`
	TriggerLimiter *ratelimit.TriggerLimiter `optional:"true"`
	ObsMetrics     *obsmetrics.Metrics       `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:         p.Gin,
		cfg:            p.Cfg,
		log:            p.Log.Named("http"),
		configSvc:      p.ConfigSvc,
		executionSvc:   p.ExecutionSvc,
		invoiceSvc:     p.InvoiceSvc,
		tariffSvc:      p.TariffSvc,
		executor:       p.Executor,
		triggerLimiter: p.TriggerLimiter,
		obsMetrics:     p.ObsMetrics,
	}
	// Replicas running with the scheduler disabled never arm timers.
	if p.Scheduler != nil && p.Cfg.Scheduler.Enabled {
		svc.reloader = p.Scheduler
	}

	svc.registerAPIRoutes()
	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	// -------- Billing Configs --------
	api.GET("/billing-configs", s.ListBillingConfigs)
	api.POST("/billing-configs", s.CreateBillingConfig)
	api.GET("/billing-configs/:id", s.GetBillingConfigByID)
	api.PATCH("/billing-configs/:id", s.UpdateBillingConfig)
	api.DELETE("/billing-configs/:id", s.DeleteBillingConfig)

	// -------- Executions --------
	api.POST("/billing-configs/:id/execute", s.ConfigContext(), s.TriggerRateLimit(), s.ExecuteBillingConfig)
	api.GET("/billing-configs/:id/executions", s.ListExecutions)
	api.GET("/executions/:id", s.GetExecutionByID)

	// -------- Tariffs --------
	api.GET("/tariff-categories/:id/tariffs", s.ListTariffs)
	api.POST("/tariffs", s.CreateTariff)
	api.POST("/tariffs/:id/activate", s.ActivateTariff)
}
