package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"rental-availability-backend/internal/domain"
	"rental-availability-backend/internal/parse"
	"rental-availability-backend/internal/reservation"
)

type reservationItem struct {
	ResourceID string `json:"resource_id"`
	CategoryID string `json:"category_id"`
	Start      string `json:"start"`
	End        string `json:"end"`
	// Quantity defaults to 1 when absent; an explicit 0 is rejected.
	Quantity *int `json:"quantity"`
}

type postReservationRequest struct {
	reservationItem
	BookingID string `json:"booking_id"`
	HoldOnly  bool   `json:"hold_only"`
	// Items books several resources under one booking, all or nothing.
	Items []reservationItem `json:"items"`
}

func (h *Handler) toRequest(item reservationItem) (domain.ReservationRequest, error) {
	iv, err := parse.Interval(item.Start, item.End, h.loc)
	if err != nil {
		return domain.ReservationRequest{}, err
	}
	qty := 1
	if item.Quantity != nil {
		qty = *item.Quantity
	}
	if qty <= 0 {
		return domain.ReservationRequest{}, fmt.Errorf("%w: got %d", domain.ErrInvalidQuantity, qty)
	}
	return domain.ReservationRequest{
		ResourceID: item.ResourceID,
		CategoryID: item.CategoryID,
		Quantity:   qty,
		Interval:   iv,
	}, nil
}

// writeResult renders a commit decision. Rejections carry the conflict
// report in the body.
func (h *Handler) writeResult(c *gin.Context, result reservation.CommitResult, okStatus int) {
	switch result.State {
	case reservation.StateRejected:
		c.JSON(http.StatusConflict, result)
	case reservation.StateHolding:
		c.JSON(http.StatusAccepted, result)
	default:
		c.JSON(okStatus, result)
	}
}

// PostReservation handles POST /api/reservations.
func (h *Handler) PostReservation(c *gin.Context) {
	var body postReservationRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ctx := c.Request.Context()

	if len(body.Items) > 0 {
		if body.HoldOnly {
			h.writeError(c, fmt.Errorf("%w: hold_only is not supported for multi-item bookings", domain.ErrInvalidRequest))
			return
		}
		reqs := make([]domain.ReservationRequest, 0, len(body.Items))
		for i, item := range body.Items {
			req, err := h.toRequest(item)
			if err != nil {
				h.writeError(c, fmt.Errorf("item %d: %w", i, err))
				return
			}
			reqs = append(reqs, req)
		}
		result, err := h.engine.ReserveAll(ctx, reqs, body.BookingID)
		if err != nil {
			h.writeError(c, err)
			return
		}
		h.writeResult(c, result, http.StatusCreated)
		return
	}

	req, err := h.toRequest(body.reservationItem)
	if err != nil {
		h.writeError(c, err)
		return
	}
	var result reservation.CommitResult
	if body.HoldOnly {
		result, err = h.engine.Hold(ctx, req, body.BookingID)
	} else {
		result, err = h.engine.Reserve(ctx, req, body.BookingID)
	}
	if err != nil {
		h.writeError(c, err)
		return
	}
	h.writeResult(c, result, http.StatusCreated)
}

// ConfirmReservation handles POST /api/reservations/:booking_id/confirm.
func (h *Handler) ConfirmReservation(c *gin.Context) {
	result, err := h.engine.Confirm(c.Request.Context(), c.Param("booking_id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	h.writeResult(c, result, http.StatusOK)
}

// PutReservation handles PUT /api/reservations/:booking_id.
func (h *Handler) PutReservation(c *gin.Context) {
	var item reservationItem
	if err := c.ShouldBindJSON(&item); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	req, err := h.toRequest(item)
	if err != nil {
		h.writeError(c, err)
		return
	}
	result, err := h.engine.Modify(c.Request.Context(), c.Param("booking_id"), req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	h.writeResult(c, result, http.StatusOK)
}

// DeleteReservation handles DELETE /api/reservations/:booking_id. Releasing
// an unknown booking is not an error.
func (h *Handler) DeleteReservation(c *gin.Context) {
	if err := h.engine.Release(c.Request.Context(), c.Param("booking_id")); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
