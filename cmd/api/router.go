package main

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"familytree-backend/internal/shared/middleware"
	"familytree-backend/pkg/container"
)

func SetupRouter(c *container.Container) *gin.Engine {
	router := gin.New()

	// Global middlewares
	router.Use(
		middleware.Recovery(),
		middleware.RequestID(),
		middleware.ClientIP(),
		middleware.Logger(),
	)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.GET("/health", healthCheckHandler(c))

		authed := v1.Group("", middleware.AuthMiddleware(c.JWTManager))
		c.FamilyHandler.RegisterRoutes(authed, middleware.AdminMiddleware())
	}

	return router
}

// ========================================
// HEALTH CHECK
// ========================================
func healthCheckHandler(c *container.Container) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		checks := c.HealthCheck(ctx.Request.Context())

		status := http.StatusOK
		for _, v := range checks {
			if v != "ok" && v != "disabled" {
				status = http.StatusServiceUnavailable
			}
		}

		ctx.JSON(status, gin.H{
			"status":  http.StatusText(status),
			"service": c.Config.App.Name,
			"version": c.Config.App.Version,
			"checks":  checks,
		})
	}
}
