package router

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/jwalitptl/scheduler-api/internal/handler/health"
	"github.com/jwalitptl/scheduler-api/internal/middleware"
	"github.com/jwalitptl/scheduler-api/pkg/httputil"
	"github.com/jwalitptl/scheduler-api/pkg/metrics"
)

// Handler registers public and authenticated routes under /api/v1.
type Handler interface {
	RegisterRoutes(public, private *gin.RouterGroup)
}

type Config struct {
	Mode           string
	RequestTimeout time.Duration
	MaxBodyBytes   int64
	HSTS           bool
	CORS           middleware.CORSConfig
	RateLimit      middleware.RateLimiterConfig
}

type Router struct {
	engine *gin.Engine
}

func New(
	cfg Config,
	auth *middleware.AuthMiddleware,
	healthH *health.Handler,
	m *metrics.Metrics,
	gatherer prometheus.Gatherer,
	logger zerolog.Logger,
	handlers ...Handler,
) *Router {
	if cfg.Mode != "" {
		gin.SetMode(cfg.Mode)
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}

	engine := gin.New()
	engine.HandleMethodNotAllowed = true
	engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, httputil.NewErrorResponse("route not found"))
	})

	engine.Use(
		middleware.RequestID(),
		middleware.Recovery(logger),
		middleware.Logger(logger),
		middleware.Metrics(m),
		middleware.SecurityHeaders(cfg.HSTS),
		middleware.CORS(cfg.CORS),
		middleware.Timeout(cfg.RequestTimeout),
		middleware.SizeLimit(cfg.MaxBodyBytes),
	)

	healthH.RegisterRoutes(engine)
	if gatherer != nil {
		engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	api := engine.Group("/api/v1")
	public := api.Group("")
	public.Use(middleware.NewRateLimiter(cfg.RateLimit).RateLimit())
	private := api.Group("")
	private.Use(auth.Authenticate())

	for _, h := range handlers {
		h.RegisterRoutes(public, private)
	}

	return &Router{engine: engine}
}

func (r *Router) Handler() http.Handler {
	return r.engine
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}
