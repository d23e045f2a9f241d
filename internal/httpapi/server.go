package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/releves-ma/si-releves/internal/auth"
	"github.com/releves-ma/si-releves/internal/config"
	"github.com/releves-ma/si-releves/internal/model"
	"github.com/releves-ma/si-releves/internal/session"
)

// NewEngine builds the gin engine with the full middleware chain and all
// routes mounted.
func NewEngine(cfg *config.Config, h *Handler, j *auth.JWTer, sess *session.Session, logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(ginzap.Ginzap(logger, time.RFC3339, true))
	r.Use(ginzap.RecoveryWithZap(logger, true))
	r.Use(RequestID())
	r.Use(RateLimit(rate.Limit(cfg.API.RateLimitPerSec), cfg.API.RateLimitBurst))
	r.Use(ConcurrencyLimit(cfg.API.MaxConcurrent))

	r.GET("/health", h.health)

	v1 := r.Group("/api/v1")
	v1.POST("/auth/login", h.login)

	authed := v1.Group("")
	authed.Use(AuthJWT(j, sess, ""))
	{
		authed.POST("/auth/logout", h.logout)
		authed.GET("/auth/me", h.me)
		authed.POST("/auth/password", h.changePassword)

		authed.GET("/agents", h.listAgents)
		authed.GET("/agents/:id", h.getAgent)
		authed.PUT("/agents/:id/district", h.updateAgentDistrict)
		authed.GET("/agents/:id/performance", h.agentPerformance)

		authed.GET("/meters", h.listMeters)
		authed.GET("/meters/eligible-addresses", h.eligibleAddresses)
		authed.GET("/meters/:id", h.getMeter)
		authed.POST("/meters", h.createMeter)
		authed.GET("/meters/:id/history", h.meterHistory)

		authed.GET("/readings", h.listReadings)
		authed.GET("/readings/:id", h.getReading)
		authed.POST("/readings", h.createReading)

		authed.GET("/districts", h.listDistricts)
		authed.GET("/clients", h.listClients)
		authed.GET("/clients/:id", h.getClient)
		authed.GET("/addresses", h.listAddresses)
		authed.GET("/addresses/:id", h.getAddress)

		authed.GET("/dashboard/stats", h.dashboardStats)
		authed.GET("/dashboard/agents", h.dashboardAgents)
		authed.GET("/dashboard/trends", h.dashboardTrends)

		authed.GET("/preferences/sidebar", h.getSidebar)
		authed.PUT("/preferences/sidebar", h.setSidebar)
	}

	// User administration is restricted to superadmins.
	admin := v1.Group("")
	admin.Use(AuthJWT(j, sess, string(model.RoleSuperAdmin)))
	{
		admin.GET("/users", h.listUsers)
		admin.GET("/users/:id", h.getUser)
		admin.POST("/users", h.createUser)
		admin.PUT("/users/:id", h.updateUser)
		admin.POST("/users/:id/reset-password", h.resetPassword)
	}

	return r
}

// NewServer wraps the engine in an http.Server bound to the Fx lifecycle.
func NewServer(lc fx.Lifecycle, cfg *config.Config, engine *gin.Engine, logger *zap.Logger) *http.Server {
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTPHost, cfg.HTTPPort),
		Handler:      engine,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			logger.Info("http server starting", zap.String("addr", srv.Addr))
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("http server failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("http server shutting down")
			return srv.Shutdown(ctx)
		},
	})

	return srv
}
