package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/formmetrics/internal/config"
	mappingdomain "github.com/smallbiznis/formmetrics/internal/mapping/domain"
	"github.com/smallbiznis/formmetrics/internal/observability"
	obsmiddleware "github.com/smallbiznis/formmetrics/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/formmetrics/internal/observability/metrics"
	obstracing "github.com/smallbiznis/formmetrics/internal/observability/tracing"
	"github.com/smallbiznis/formmetrics/internal/population"
	populationdomain "github.com/smallbiznis/formmetrics/internal/population/domain"
	taxonomydomain "github.com/smallbiznis/formmetrics/internal/taxonomy/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	population.Stack,
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(func(s *Server) {
		s.RegisterAPIRoutes()
	}),
	fx.Invoke(RunHTTP),
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
	r.GET("/metrics/prometheus", gin.WrapH(promhttp.Handler()))

	return r
}

func RunHTTP(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server failed", zap.Error(err))
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
	engine        *gin.Engine
	cfg           config.Config
	log           *zap.Logger
	populationSvc populationdomain.Service
	mappingSvc    mappingdomain.Service
	taxonomySvc   taxonomydomain.Service
}

type ServerParams struct {
	fx.In

	Gin           *gin.Engine
	Cfg           config.Config
	Log           *zap.Logger
	PopulationSvc populationdomain.Service
	MappingSvc    mappingdomain.Service
	TaxonomySvc   taxonomydomain.Service
}

func NewServer(p ServerParams) *Server {
	return &Server{
		engine:        p.Gin,
		cfg:           p.Cfg,
		log:           p.Log.Named("http.server"),
		populationSvc: p.PopulationSvc,
		mappingSvc:    p.MappingSvc,
		taxonomySvc:   p.TaxonomySvc,
	}
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) RegisterAPIRoutes() {
	api := s.engine.Group("/api")

	submissions := api.Group("/submissions/:id/metrics")
	{
		submissions.POST("/populate", s.PopulateSubmission)
		submissions.POST("/recalculate", s.RecalculateSubmission)
		submissions.GET("/logs", s.ListPopulationLogs)
		submissions.GET("/runs", s.ListPopulationRuns)
	}

	api.GET("/metric-values", s.ListMetricValues)
	api.GET("/metric-values/:org_unit_id/:metric_id/:period", s.GetMetricValue)

	mappings := api.Group("/mappings")
	{
		mappings.POST("", s.CreateMapping)
		mappings.GET("/:id", s.GetMapping)
		mappings.PATCH("/:id", s.UpdateMapping)
		mappings.DELETE("/:id", s.DeactivateMapping)
		mappings.POST("/:id/test", s.TestMapping)
	}

	api.GET("/templates/:id/mappings", s.ListTemplateMappings)
	api.GET("/templates/:id/unmapped-fields", s.ListUnmappedFields)

	compat := api.Group("/compatibility")
	{
		compat.GET("/field-types", s.ListFieldTypes)
		compat.GET("/field-types/:type", s.GetFieldTypeProfile)
		compat.GET("/aggregations", s.ListAggregations)
		compat.GET("/thresholds", s.SuggestThresholds)
	}

	metrics := api.Group("/metrics")
	{
		metrics.GET("", s.ListMetrics)
		metrics.POST("", s.CreateMetric)
		metrics.GET("/:id", s.GetMetric)
		metrics.PATCH("/:id", s.UpdateMetric)
		metrics.PATCH("/:id/thresholds", s.UpdateMetricThresholds)
		metrics.DELETE("/:id", s.DeactivateMetric)
	}

	api.GET("/units", s.ListUnits)
	api.GET("/categories", s.ListCategories)
	api.GET("/categories/:id/sub-categories", s.ListSubCategories)
}
