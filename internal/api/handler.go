package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"rental-availability-backend/internal/domain"
	"rental-availability-backend/internal/reservation"
)

// Handler holds shared dependencies for API handlers.
type Handler struct {
	engine  *reservation.Engine
	db      *gorm.DB
	webpush *webpush.Options
	loc     *time.Location
	logger  *slog.Logger
}

// NewHandler creates a new API handler. Timestamps without a zone are read
// in UTC.
func NewHandler(engine *reservation.Engine, db *gorm.DB, webpushOptions *webpush.Options, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		engine:  engine,
		db:      db,
		webpush: webpushOptions,
		loc:     time.UTC,
		logger:  logger,
	}
}

// writeError maps engine errors onto HTTP statuses.
func (h *Handler) writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrResourceNotFound),
		errors.Is(err, domain.ErrHoldNotFound),
		errors.Is(err, domain.ErrBookingNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidRequest):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrCapacityConflict):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrCatalogUnavailable):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", "path", c.FullPath(), "error", err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
