package router

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/psds-microservice/helpdesk-service/api"
	"github.com/psds-microservice/helpdesk-service/internal/auth"
	"github.com/psds-microservice/helpdesk-service/internal/handler"
	"github.com/psds-microservice/helpdesk-service/internal/metrics"
	"github.com/psds-microservice/helpdesk-service/internal/middleware"
	"github.com/psds-microservice/helpy/paths"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

type Deps struct {
	Log      *slog.Logger
	Tickets  *handler.TicketHandler
	Tokens   *auth.Tokens
	Users    middleware.UserLookup
	DB       handler.Pinger
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer
}

func New(d Deps) http.Handler {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestID(), middleware.AccessLog(d.Log), d.Metrics.Middleware())

	r.GET(paths.PathHealth, handler.Health)
	r.GET(paths.PathReady, handler.Ready(d.DB))
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	r.GET(paths.PathSwagger, func(c *gin.Context) { c.Redirect(http.StatusFound, paths.PathSwagger+"/") })
	r.GET(paths.PathSwagger+"/*any", func(c *gin.Context) {
		if strings.TrimPrefix(c.Param("any"), "/") == "openapi.json" {
			c.Data(http.StatusOK, "application/json", api.OpenAPISpec)
			return
		}
		if strings.TrimPrefix(c.Param("any"), "/") == "" {
			c.Request.URL.Path = paths.PathSwagger + "/index.html"
			c.Request.RequestURI = paths.PathSwagger + "/index.html"
		}
		ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL(paths.PathSwagger+"/openapi.json"))(c)
	})

	v1 := r.Group("/api/v1", middleware.Authenticate(d.Log, d.Tokens, d.Users))
	{
		v1.GET("/me", d.Tickets.Me)

		v1.GET("/tickets", d.Tickets.List)
		v1.GET("/tickets/filters", d.Tickets.Filters)
		v1.POST("/tickets", d.Tickets.Create)
		v1.GET("/tickets/:id", d.Tickets.Get)
		v1.GET("/tickets/:id/edit", d.Tickets.Edit)
		v1.PUT("/tickets/:id", d.Tickets.Update)
		v1.POST("/tickets/:id/close", d.Tickets.Close)
		v1.POST("/tickets/:id/claim", d.Tickets.Claim)
		v1.DELETE("/tickets/:id", d.Tickets.Delete)
	}

	return r
}
