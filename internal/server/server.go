package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/tracechain/internal/actor"
	"github.com/smallbiznis/tracechain/internal/analytics"
	analyticsdomain "github.com/smallbiznis/tracechain/internal/analytics/domain"
	"github.com/smallbiznis/tracechain/internal/audit"
	auditdomain "github.com/smallbiznis/tracechain/internal/audit/domain"
	"github.com/smallbiznis/tracechain/internal/batch"
	batchdomain "github.com/smallbiznis/tracechain/internal/batch/domain"
	"github.com/smallbiznis/tracechain/internal/config"
	"github.com/smallbiznis/tracechain/internal/events"
	"github.com/smallbiznis/tracechain/internal/ledger"
	"github.com/smallbiznis/tracechain/internal/lock"
	"github.com/smallbiznis/tracechain/internal/observability"
	obslogger "github.com/smallbiznis/tracechain/internal/observability/logger"
	obstracing "github.com/smallbiznis/tracechain/internal/observability/tracing"
	"github.com/smallbiznis/tracechain/internal/permission"
	"github.com/smallbiznis/tracechain/internal/product"
	productdomain "github.com/smallbiznis/tracechain/internal/product/domain"
	"github.com/smallbiznis/tracechain/internal/ratelimit"
	"github.com/smallbiznis/tracechain/internal/sequencer"
	"github.com/smallbiznis/tracechain/internal/stage"
	"github.com/smallbiznis/tracechain/internal/step"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	stage.Module,
	actor.Module,
	audit.Module,
	step.Module,
	product.Module,
	batch.Module,
	permission.Module,
	ledger.Module,
	lock.Module,
	ratelimit.Module,
	events.Module,
	sequencer.Module,
	analytics.Module,
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(obslogger.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func run(lc fx.Lifecycle, shutdowner fx.Shutdowner, cfg config.Config, log *zap.Logger, s *Server) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           s.Engine(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("http server stopped", zap.Error(err))
					_ = shutdowner.Shutdown(fx.ExitCode(1))
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

type Server struct {
	engine       *gin.Engine
	cfg          config.Config
	log          *zap.Logger
	auth         *actor.Authenticator
	catalog      *stage.Catalog
	permissions  *permission.Engine
	sequencer    *sequencer.Sequencer
	productSvc   productdomain.Service
	batchSvc     batchdomain.Service
	analyticsSvc analyticsdomain.Service
	auditSvc     auditdomain.Service
	stepLimiter  *ratelimit.StepWriteLimiter
}

type ServerParams struct {
	fx.In

	Gin          *gin.Engine
	Cfg          config.Config
	Log          *zap.Logger
	Auth         *actor.Authenticator
	Catalog      *stage.Catalog
	Permissions  *permission.Engine
	Sequencer    *sequencer.Sequencer
	ProductSvc   productdomain.Service
	BatchSvc     batchdomain.Service
	AnalyticsSvc analyticsdomain.Service
	AuditSvc     auditdomain.Service
	StepLimiter  *ratelimit.StepWriteLimiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:       p.Gin,
		cfg:          p.Cfg,
		log:          p.Log.Named("http.server"),
		auth:         p.Auth,
		catalog:      p.Catalog,
		permissions:  p.Permissions,
		sequencer:    p.Sequencer,
		productSvc:   p.ProductSvc,
		batchSvc:     p.BatchSvc,
		analyticsSvc: p.AnalyticsSvc,
		auditSvc:     p.AuditSvc,
		stepLimiter:  p.StepLimiter,
	}

	svc.registerAPIRoutes()
	svc.registerPublicRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	api.GET("/stages", s.ListStages)

	authed := api.Group("", s.ActorRequired())
	{
		authed.GET("/me/stages", s.ListMyStages)
		authed.GET("/me/products", s.ListMyProducts)

		authed.POST("/products", s.CreateProduct)
		authed.GET("/products", s.ListProducts)
		authed.GET("/products/:id", s.GetProduct)
		authed.DELETE("/products/:id", s.DeleteProduct)
		authed.POST("/products/:id/authorized-users", s.AddAuthorizedUser)
		authed.POST("/products/:id/steps", s.StepWriteRateLimit(), s.RecordStep)

		authed.POST("/batches", s.CreateBatch)
		authed.GET("/batches", s.ListBatches)
		authed.GET("/batches/assignable-products", s.ListAssignableProducts)
		authed.GET("/batches/:id", s.GetBatch)
		authed.PUT("/batches/:id/products", s.UpdateBatchProducts)
		authed.POST("/batches/:id/steps", s.StepWriteRateLimit(), s.RecordBatchStep)

		authed.GET("/analytics", s.GetAnalytics)
		authed.GET("/audit-logs", s.RequireRole(permission.RoleManager), s.ListAuditLogs)
	}
}

func (s *Server) registerPublicRoutes() {
	public := s.engine.Group("/public")

	public.GET("/products/:id", s.PublicTrace)
	public.GET("/products/:id/verify", s.PublicVerify)
	public.GET("/batches/:id", s.PublicBatch)
}
