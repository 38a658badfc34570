package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/oggyb/blinddate/internal/app"
	"github.com/oggyb/blinddate/internal/auth"
	"github.com/oggyb/blinddate/internal/server/httpx"
	"github.com/oggyb/blinddate/internal/service/account"
	"github.com/oggyb/blinddate/internal/service/admin"
	"github.com/oggyb/blinddate/internal/service/conversation"
	"github.com/oggyb/blinddate/internal/service/explore"
)

// NewRouter wires every HTTP endpoint.
//
// Layout:
//   - /healthz and /auth/* are public.
//   - The member API needs an auth-token session.
//   - /admin/auth/* is public, the rest of /admin needs an admin-token
//     session and a staff role.
func NewRouter(appCtx *app.AppContext) *gin.Engine {
	if appCtx.Config.App.ENV != "development" {
		gin.SetMode(gin.ReleaseMode)
	}
	httpx.UseJSONFieldNames()

	router := gin.New()
	router.Use(
		httpx.RequestContext(appCtx.Logger),
		httpx.Recovery(),
		httpx.AccessLog(),
	)
	// no origins means same-origin only
	if origins := appCtx.Config.HTTP.AllowOrigins; len(origins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:     origins,
			AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
			AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With", "X-Request-ID"},
			ExposeHeaders:    []string{"X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}
	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, httpx.Response{Success: false, Error: "route not found"})
	})

	// ===============
	// || Public    ||
	// ===============
	router.GET("/healthz", healthz(appCtx))

	accounts := account.NewRegistrar(appCtx)
	accounts.RegisterPublicRoutes(router.Group(""))

	// ===============
	// || Members   ||
	// ===============
	members := router.Group("", httpx.RequireSession(appCtx, auth.AudienceApp, httpx.CookieApp))
	for _, r := range []RouteRegistrar{
		accounts,
		explore.NewRegistrar(appCtx),
		conversation.NewRegistrar(appCtx),
	} {
		r.RegisterRoutes(members)
	}

	// ===============
	// || Staff     ||
	// ===============
	admins := admin.NewRegistrar(appCtx)
	adminGroup := router.Group("/admin")
	admins.RegisterPublicRoutes(adminGroup)
	admins.RegisterRoutes(adminGroup.Group("", httpx.RequireSession(appCtx, auth.AudienceAdmin, httpx.CookieAdmin)))

	return router
}

func healthz(appCtx *app.AppContext) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		checks := gin.H{"db": "ok", "redis": "ok"}
		healthy := true
		if sqlDB, err := appCtx.DB.DB(); err != nil || sqlDB.PingContext(ctx) != nil {
			checks["db"] = "down"
			healthy = false
		}
		if err := appCtx.RedisCache.Ping(ctx); err != nil {
			checks["redis"] = "down"
			healthy = false
		}

		if !healthy {
			c.JSON(http.StatusServiceUnavailable, httpx.Response{Success: false, Data: checks, Error: "unhealthy"})
			return
		}
		httpx.OK(c, checks)
	}
}

// NewHTTPServer wraps the router with the configured address and timeouts.
func NewHTTPServer(appCtx *app.AppContext, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              appCtx.Config.HTTP.Host + ":" + appCtx.Config.HTTP.Port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
