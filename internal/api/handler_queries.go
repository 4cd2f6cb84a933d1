package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"rental-availability-backend/internal/domain"
	"rental-availability-backend/internal/parse"
)

// queryRequest builds a request from the :id path parameter and the
// start, end, quantity and exclude query parameters.
func (h *Handler) queryRequest(c *gin.Context) (domain.ReservationRequest, error) {
	iv, err := parse.Interval(c.Query("start"), c.Query("end"), h.loc)
	if err != nil {
		return domain.ReservationRequest{}, err
	}
	qty, err := parse.Quantity(c.Query("quantity"))
	if err != nil {
		return domain.ReservationRequest{}, err
	}
	return domain.ReservationRequest{
		ResourceID:       c.Param("id"),
		Quantity:         qty,
		Interval:         iv,
		ExcludeBookingID: c.Query("exclude"),
	}, nil
}

// GetAvailability handles GET /api/resources/:id/availability.
func (h *Handler) GetAvailability(c *gin.Context) {
	req, err := h.queryRequest(c)
	if err != nil {
		h.writeError(c, err)
		return
	}
	result, err := h.engine.CheckAvailability(c.Request.Context(), req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// GetConflicts handles GET /api/resources/:id/conflicts.
func (h *Handler) GetConflicts(c *gin.Context) {
	req, err := h.queryRequest(c)
	if err != nil {
		h.writeError(c, err)
		return
	}
	report, err := h.engine.DetectConflicts(c.Request.Context(), req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// GetAlternatives handles GET /api/resources/:id/alternatives.
func (h *Handler) GetAlternatives(c *gin.Context) {
	req, err := h.queryRequest(c)
	if err != nil {
		h.writeError(c, err)
		return
	}
	suggestions, err := h.engine.SuggestAlternatives(c.Request.Context(), req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if suggestions == nil {
		suggestions = []domain.AlternativeSuggestion{}
	}
	c.JSON(http.StatusOK, gin.H{"alternatives": suggestions})
}

// GetCategoryResources handles GET /api/categories/:id/resources.
func (h *Handler) GetCategoryResources(c *gin.Context) {
	resources, err := h.engine.Resources(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	if resources == nil {
		resources = []domain.EquipmentResource{}
	}
	c.JSON(http.StatusOK, gin.H{"resources": resources})
}
