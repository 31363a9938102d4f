package routes

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/dmflow/auth-service/internal/infra/config"
	"github.com/dmflow/auth-service/internal/transport/http/handlers"
	"github.com/dmflow/auth-service/internal/transport/http/middleware"
	"github.com/dmflow/auth-service/internal/usecase"
)

// Pinger exposes readiness behaviour for a backing dependency.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Dependencies encapsulates the objects required to register routes.
type Dependencies struct {
	Config *config.AppConfig
	Logger *zap.Logger
	Auth   *usecase.AuthService
	// Readiness maps a dependency name to its probe.
	Readiness map[string]Pinger
	// Registry receives HTTP metrics and backs /metrics. Defaults to the global registry.
	Registry *prometheus.Registry
}

// Register configures the Gin engine with routes and middleware.
func Register(deps Dependencies) (*gin.Engine, error) {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Config != nil && deps.Config.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	var (
		registerer prometheus.Registerer = prometheus.DefaultRegisterer
		gatherer   prometheus.Gatherer   = prometheus.DefaultGatherer
	)
	if deps.Registry != nil {
		registerer, gatherer = deps.Registry, deps.Registry
	}

	httpMetrics, err := middleware.NewHTTPMetrics(middleware.HTTPMetricsOptions{Registerer: registerer})
	if err != nil {
		return nil, err
	}

	serviceName := "auth-service"
	var origins []string
	if deps.Config != nil {
		if deps.Config.Telemetry.ServiceName != "" {
			serviceName = deps.Config.Telemetry.ServiceName
		}
		origins = deps.Config.CORS.AllowedOrigins
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware(serviceName))
	r.Use(middleware.EnrichContext())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(deps.Logger))
	r.Use(httpMetrics.Handler())
	r.Use(middleware.CORS(origins))

	healthOptions := make([]handlers.HealthOption, 0, len(deps.Readiness))
	for name, pinger := range deps.Readiness {
		if pinger == nil {
			continue
		}
		healthOptions = append(healthOptions, handlers.WithReadinessCheck(name, pinger.Ping))
	}
	healthHandler := handlers.NewHealthHandler(healthOptions...)

	r.GET("/", healthHandler.Welcome)
	r.GET("/healthz", healthHandler.Status)
	r.GET("/readyz", healthHandler.Readiness)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	if deps.Auth != nil {
		handlers.NewAuthHandler(deps.Auth).RegisterRoutes(r.Group("/api/users"))
	}

	return r, nil
}
