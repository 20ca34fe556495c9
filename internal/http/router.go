// README: HTTP router registration.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"fleetfare/internal/http/handlers"
	"fleetfare/internal/http/middleware"
	"fleetfare/internal/infra"
	"fleetfare/internal/modules/pricing"
	"fleetfare/internal/modules/quote"
)

const (
	RolePricingAdmin = "pricing_admin"
	RoleTripService  = "trip_service"
)

type RouterDeps struct {
	Pricing   *pricing.Service
	Snapshots *pricing.SnapshotHolder
	Loader    pricing.Loader
	Quotes    *quote.Service
	Verifier  infra.TokenVerifier
	Logger    *zap.Logger
}

func NewRouter(deps RouterDeps) *gin.Engine {
	r := gin.New()
	r.Use(middleware.Recovery(deps.Logger), middleware.Metrics(), middleware.Logging(deps.Logger))

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	fares := handlers.NewFareHandler(deps.Pricing, deps.Quotes)
	public := r.Group("/api/fares")
	public.POST("/estimate", fares.Estimate)
	public.GET("/quotes/:id", fares.GetQuote)

	trips := r.Group("/api/fares", middleware.Auth(deps.Verifier), middleware.RequireRole(RoleTripService, RolePricingAdmin))
	trips.POST("/final", fares.Final)
	trips.POST("/cancellation", fares.Cancellation)

	pricingHandler := handlers.NewPricingHandler(deps.Pricing, deps.Snapshots, deps.Loader)
	admin := r.Group("/api/pricing", middleware.Auth(deps.Verifier), middleware.RequireRole(RolePricingAdmin))
	admin.GET("/locations/:id/rate-cards", pricingHandler.ListRateCards)
	admin.GET("/locations/:id/rate-cards/:vehicle", pricingHandler.GetRateCard)
	admin.POST("/refresh", pricingHandler.Refresh)

	return r
}
