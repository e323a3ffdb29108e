package http

import (
	"log/slog"
	"net/http"

	"github.com/geocoder89/accounthub/api"
	"github.com/geocoder89/accounthub/internal/config"
	"github.com/geocoder89/accounthub/internal/http/handlers"
	"github.com/geocoder89/accounthub/internal/http/middlewares"
	"github.com/geocoder89/accounthub/internal/observability"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

type Deps struct {
	Accounts handlers.AccountService
	Tokens   middlewares.TokenVerifier
	Prom     *observability.Prom
	Gatherer prometheus.Gatherer
	Checks   map[string]handlers.Pinger
}

func NewRouter(log *slog.Logger, cfg config.Config, deps Deps) *gin.Engine {
	if cfg.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	// middleware

	r.Use(otelgin.Middleware(cfg.ServiceName))
	r.Use(middlewares.RequestID())
	r.Use(middlewares.Recovery(log))
	r.Use(middlewares.RequestLogger(log))
	if deps.Prom != nil {
		r.Use(deps.Prom.GinHandleMiddleware())
	}
	r.Use(middlewares.SecurityHeaders())
	r.Use(middlewares.CORSMiddleware(cfg.CORSAllowedOrigins))
	r.Use(middlewares.MaxBodyBytes(cfg.MaxBodyBytes))

	// ops
	h := handlers.NewHealthHandler(deps.Checks)
	r.GET("/healthz", h.Healthz)
	r.GET("/readyz", h.Readyz)

	if deps.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	r.GET("/docs", handlers.SwaggerUI)
	r.GET("/docs/openapi.yaml", handlers.OpenAPISpec(api.OpenAPI))

	// account
	accounts := handlers.NewAccountHandler(deps.Accounts, log)
	authMW := middlewares.NewAuthMiddleware(deps.Tokens)

	acc := r.Group("/account")
	acc.POST("/register", middlewares.RequireJSON(), accounts.Register)
	acc.POST("/login", middlewares.RequireJSON(), accounts.Login)
	acc.DELETE("/delete", middlewares.RequireJSON(), accounts.Delete)
	acc.GET("/byId/:id", authMW.RequireAuth(), accounts.GetByID)

	r.NoRoute(func(ctx *gin.Context) {
		handlers.RespondError(ctx, http.StatusNotFound, "not_found", "Route not found", nil)
	})

	return r
}
