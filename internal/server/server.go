package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/corridorlabs/roamsight/internal/alert"
	alertdomain "github.com/corridorlabs/roamsight/internal/alert/domain"
	"github.com/corridorlabs/roamsight/internal/anomaly"
	"github.com/corridorlabs/roamsight/internal/config"
	"github.com/corridorlabs/roamsight/internal/etl"
	etldomain "github.com/corridorlabs/roamsight/internal/etl/domain"
	"github.com/corridorlabs/roamsight/internal/insights"
	"github.com/corridorlabs/roamsight/internal/notify"
	"github.com/corridorlabs/roamsight/internal/observability"
	obsmiddleware "github.com/corridorlabs/roamsight/internal/observability/logger"
	obsmetrics "github.com/corridorlabs/roamsight/internal/observability/metrics"
	obstracing "github.com/corridorlabs/roamsight/internal/observability/tracing"
	"github.com/corridorlabs/roamsight/internal/projectscope"
	"github.com/corridorlabs/roamsight/internal/quality"
	"github.com/corridorlabs/roamsight/internal/ratelimit"
	"github.com/corridorlabs/roamsight/internal/rowstore"
	scorecardservice "github.com/corridorlabs/roamsight/internal/scorecard/service"
	"go.uber.org/fx"
)

var Module = fx.Module("http.server",
	config.Module,
	fx.Provide(registerGin),
	notify.Module,
	rowstore.Module,
	quality.Module,
	projectscope.Module,
	ratelimit.Module,
	etl.Module,
	alert.Module,
	anomaly.Module,
	insights.Module,
	scorecardservice.Module,
	fx.Provide(NewServer),
	fx.Invoke(registerRoutes),
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
	r.Use(httpMetrics.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
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
	engine           *gin.Engine
	cfg              config.Config
	etlSvc           etldomain.Service
	alertSvc         alertdomain.Service
	insightsSvc      *insights.Service
	scorecardSvc     *scorecardservice.Service
	rows             rowstore.Store
	scope            projectscope.Scope
	reprocessLimiter *ratelimit.ReprocessLimiter
	obsMetrics       *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin          *gin.Engine
	Cfg          config.Config
	EtlSvc       etldomain.Service
	AlertSvc     alertdomain.Service
	InsightsSvc  *insights.Service
	ScorecardSvc *scorecardservice.Service
	Rows         rowstore.Store
	Scope        projectscope.Scope

	ReprocessLimiter *ratelimit.ReprocessLimiter `optional:"true"`
	ObsMetrics       *obsmetrics.Metrics         `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	return &Server{
		engine:           p.Gin,
		cfg:              p.Cfg,
		etlSvc:           p.EtlSvc,
		alertSvc:         p.AlertSvc,
		insightsSvc:      p.InsightsSvc,
		scorecardSvc:     p.ScorecardSvc,
		rows:             p.Rows,
		scope:            p.Scope,
		reprocessLimiter: p.ReprocessLimiter,
		obsMetrics:       p.ObsMetrics,
	}
}

func registerRoutes(s *Server) {
	s.RegisterAPIRoutes()
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) RegisterAPIRoutes() {
	v1 := s.engine.Group("/v1")

	// -------- Insights --------
	v1.GET("/insights/daily", s.GetInsightsDaily)
	v1.GET("/insights/forecast", s.GetInsightsForecast)
	v1.GET("/insights/anomalies", s.GetInsightsAnomalies)
	v1.GET("/insights/leakage", s.GetInsightsLeakage)

	// -------- Alerts --------
	v1.GET("/alerts", s.ListAlerts)
	v1.GET("/alerts/:id", s.GetAlertByID)
	v1.POST("/alerts/:id/resolve", s.ResolveAlert)
	v1.POST("/alerts/:id/reopen", s.ReopenAlert)

	// -------- Scorecard --------
	v1.GET("/scorecard", s.GetScorecard)

	// -------- Files --------
	v1.POST("/files/:id/reprocess", s.ReprocessFile)
}
