package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/pulseform/pulseform/internal/analytics"
	"github.com/pulseform/pulseform/internal/assistant"
	"github.com/pulseform/pulseform/internal/config"
	"github.com/pulseform/pulseform/internal/credits"
	creditsdomain "github.com/pulseform/pulseform/internal/credits/domain"
	"github.com/pulseform/pulseform/internal/jobs"
	"github.com/pulseform/pulseform/internal/notify"
	"github.com/pulseform/pulseform/internal/observability"
	obsmiddleware "github.com/pulseform/pulseform/internal/observability/logger"
	obsmetrics "github.com/pulseform/pulseform/internal/observability/metrics"
	obstracing "github.com/pulseform/pulseform/internal/observability/tracing"
	"github.com/pulseform/pulseform/internal/orchestrator"
	orchdomain "github.com/pulseform/pulseform/internal/orchestrator/domain"
	"github.com/pulseform/pulseform/internal/survey"
	"github.com/pulseform/pulseform/internal/thread"
	"github.com/pulseform/pulseform/internal/tier"
	tierdomain "github.com/pulseform/pulseform/internal/tier/domain"
	"github.com/pulseform/pulseform/internal/usagelog"
	usagelogdomain "github.com/pulseform/pulseform/internal/usagelog/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	analytics.Module,
	assistant.Module,
	credits.Module,
	jobs.Module,
	notify.Module,
	orchestrator.Module,
	survey.Module,
	thread.Module,
	tier.Module,
	usagelog.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

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

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config) {
	srv := &http.Server{
		Addr:    cfg.ServerAddr,
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

type Server struct {
	engine     *gin.Engine
	cfg        config.Config
	db         *gorm.DB
	orchSvc    orchdomain.Service
	creditsSvc creditsdomain.Service
	usageSvc   usagelogdomain.Service
	tierSvc    tierdomain.Service
	hub        *notify.Hub
}

type Params struct {
	fx.In

	Engine     *gin.Engine
	Cfg        config.Config
	DB         *gorm.DB
	OrchSvc    orchdomain.Service
	CreditsSvc creditsdomain.Service
	UsageSvc   usagelogdomain.Service
	TierSvc    tierdomain.Service
	Hub        *notify.Hub
}

func NewServer(p Params) *Server {
	s := &Server{
		engine:     p.Engine,
		cfg:        p.Cfg,
		db:         p.DB,
		orchSvc:    p.OrchSvc,
		creditsSvc: p.CreditsSvc,
		usageSvc:   p.UsageSvc,
		tierSvc:    p.TierSvc,
		hub:        p.Hub,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.engine.GET("/healthz", s.Healthz)

	v1 := s.engine.Group("/v1", s.requireIdentity())

	ai := v1.Group("/ai")
	ai.POST("/surveys/quick", s.QuickGenerate)
	ai.POST("/surveys/guided", s.GuidedGenerate)
	ai.POST("/questions/edit", s.EditQuestion)
	ai.POST("/conversation", s.ContinueConversation)
	ai.POST("/conversation/reset", s.ResetConversation)
	ai.POST("/surveys/:id/edit", s.EditSurvey)
	ai.POST("/surveys/:id/regenerate", s.RegenerateSurvey)
	ai.POST("/surveys/:id/insights", s.GenerateInsights)
	ai.POST("/surveys/:id/synthetic-responses", s.GenerateSynthetic)
	ai.GET("/tasks/:id", s.TaskStatus)
	ai.POST("/tasks/:id/cancel", s.CancelTask)
	ai.GET("/events", s.StreamTaskEvents)

	v1.GET("/credits", s.GetCredits)
	v1.GET("/credits/ledger", s.ListLedger)
	v1.POST("/tenants/:id/credits", s.GrantCredits)
	v1.GET("/usage/daily", s.DailyUsage)
	v1.GET("/usage/distribution", s.TypeDistribution)
	v1.GET("/usage/top", s.TopOperations)
	v1.GET("/tiers", s.ListTiers)
}

// Healthz reports readiness, including database reachability.
func (s *Server) Healthz(c *gin.Context) {
	if s.db != nil {
		sqlDB, err := s.db.DB()
		if err == nil {
			err = sqlDB.PingContext(c.Request.Context())
		}
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
