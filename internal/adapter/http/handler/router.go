package handler

import (
	"arcade-core/internal/adapter/http/middleware"
	"arcade-core/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	Controller     StateController
	Ledger         ports.Ledger
	HealthCheckers []ports.HealthChecker
	Logger         zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.MaxBodySize(1 << 20)) // 1 MB request body limit

	r.GET("/health", HealthCheck(deps.HealthCheckers...))

	adminHandler := NewAdminHandler(deps.Controller, deps.Ledger)
	api := r.Group("/api")
	{
		api.POST("/mode", adminHandler.SetMode)
		api.POST("/night/step", adminHandler.AnnounceStep)
		api.GET("/payouts", adminHandler.ListPayouts)
	}

	return r
}
