package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"rental-availability-backend/config"
	"rental-availability-backend/internal/mw"
)

// NewRouter creates and configures a new Gin router. listingCache backs
// the catalog listing routes; pass nil to create a private one.
func NewRouter(handler *Handler, cfg config.ServerConfig, listingCache *cache.Cache) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), mw.Logger(handler.logger))

	limit := rate.Limit(cfg.RateLimitPerSec)
	if cfg.RateLimitPerSec <= 0 {
		limit = rate.Limit(10)
	}
	rateLimiter := mw.RateLimiter(limit, 5, cfg.RequestIPHeader)

	ttl := time.Duration(cfg.CacheTTLSeconds) * time.Second
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if listingCache == nil {
		listingCache = cache.New(ttl, 2*ttl)
	}
	// Availability answers are never cached; only catalog listings are.
	caching := mw.Cache(listingCache, ttl)

	r.GET("/healthz", func(c *gin.Context) { c.JSON(200, gin.H{"status": "ok"}) })

	api := r.Group("/api")
	api.Use(rateLimiter)
	{
		api.GET("/resources/:id/availability", handler.GetAvailability)
		api.GET("/resources/:id/conflicts", handler.GetConflicts)
		api.GET("/resources/:id/alternatives", handler.GetAlternatives)

		api.POST("/reservations", handler.PostReservation)
		api.POST("/reservations/:booking_id/confirm", handler.ConfirmReservation)
		api.PUT("/reservations/:booking_id", handler.PutReservation)
		api.DELETE("/reservations/:booking_id", handler.DeleteReservation)

		api.GET("/categories/:id/resources", caching, handler.GetCategoryResources)

		api.GET("/subscriptions", handler.GetSubscription)
		api.PUT("/subscriptions", handler.PutSubscription)
		api.DELETE("/subscriptions", handler.DeleteSubscription)
		api.GET("/vapid_public_key", handler.GetVAPIDPublicKey)
	}

	return r
}
