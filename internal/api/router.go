package api

import (
	"net/http"

	httpSwagger "github.com/swaggo/http-swagger"

	_ "go-plan-pipeline/docs"
	"go-plan-pipeline/internal/api/handler"
	"go-plan-pipeline/internal/metrics"
	"go-plan-pipeline/pkg/router"
)

func RegisterRoutes(r *router.Router, h *handler.Handler) {
	r.POST("/api/v1/plans", h.CreatePlan)
	r.POST("/api/v1/plans/execute", h.ExecutePlan)
	r.POST("/api/v1/discover", h.Discover)
	r.GET("/api/v1/generations", h.ListGenerations)
	// More specific routes first
	r.GET("/api/v1/generations/*/errors", h.GetGenerationErrors)
	r.GET("/api/v1/generations/*/export", h.ExportGeneration)
	r.GET("/api/v1/generations/*", h.GetGeneration)

	r.Handle(http.MethodGet, "/metrics", metrics.Handler())
	r.Handle(http.MethodGet, "/swagger/*", httpSwagger.WrapHandler)
}
