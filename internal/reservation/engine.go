package reservation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"rental-availability-backend/internal/availability"
	"rental-availability-backend/internal/catalog"
	"rental-availability-backend/internal/conflict"
	"rental-availability-backend/internal/domain"
	"rental-availability-backend/internal/index"
	"rental-availability-backend/internal/recommend"
)

const unknownResourceNote = "resource is not in the catalog"

// Engine is the outbound query API: read-only checks plus the Manager's
// commit operations.
type Engine struct {
	*Manager

	catalog     catalog.Reader
	calc        *availability.Calculator
	detector    *conflict.Detector
	recommender *recommend.Recommender
	strict      bool
}

// NewEngine wires every component over one index.
func NewEngine(idx *index.Index, cat catalog.Reader, clock domain.Clock, cfg Config, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if clock == nil {
		clock = domain.SystemClock{}
	}
	cfg = cfg.withDefaults()
	calc := availability.New(idx.Reader())
	return &Engine{
		Manager:     NewManager(idx, cat, clock, cfg, logger),
		catalog:     cat,
		calc:        calc,
		detector:    conflict.New(idx.Reader(), cfg.MinimumTurnaround),
		recommender: recommend.New(cat, calc, clock, cfg.Alternatives, logger),
		strict:      cfg.StrictResources,
	}
}

// resolve loads the request's resource. known is false when a non-strict
// engine was asked about an id the catalog does not have.
func (e *Engine) resolve(ctx context.Context, req domain.ReservationRequest) (res domain.EquipmentResource, known bool, err error) {
	if err := req.Validate(); err != nil {
		return res, false, err
	}
	if err := availability.Validate(req.Interval, req.Quantity); err != nil {
		return res, false, err
	}
	if req.ResourceID == "" {
		return res, false, fmt.Errorf("%w: queries need a resource id", domain.ErrMissingResource)
	}
	res, err = e.catalog.GetResource(ctx, req.ResourceID)
	if errors.Is(err, domain.ErrResourceNotFound) && !e.strict {
		return res, false, nil
	}
	if err != nil {
		return res, false, err
	}
	return res, true, nil
}

// CheckAvailability answers whether the request fits. An unknown resource on
// a non-strict engine is reported fully available.
func (e *Engine) CheckAvailability(ctx context.Context, req domain.ReservationRequest) (domain.AvailabilityResult, error) {
	res, known, err := e.resolve(ctx, req)
	if err != nil {
		return domain.AvailabilityResult{}, err
	}
	if !known {
		return domain.AvailabilityResult{
			ResourceID:     req.ResourceID,
			Interval:       req.Interval,
			Quantity:       req.Quantity,
			FullyAvailable: true,
			Segments: []domain.Segment{{
				Interval:     req.Interval,
				Available:    true,
				FreeQuantity: req.Quantity,
			}},
		}, nil
	}
	return e.calc.Check(res, req.Interval, req.Quantity, req.ExcludeBookingID)
}

// DetectConflicts explains what stands in the way of the request.
func (e *Engine) DetectConflicts(ctx context.Context, req domain.ReservationRequest) (domain.ConflictReport, error) {
	res, known, err := e.resolve(ctx, req)
	if err != nil {
		return domain.ConflictReport{}, err
	}
	if !known {
		return domain.ConflictReport{
			ResourceID: req.ResourceID,
			Interval:   req.Interval,
			Quantity:   req.Quantity,
			Note:       unknownResourceNote,
		}, nil
	}
	return e.detector.Detect(res, req.Interval, req.Quantity, req.ExcludeBookingID)
}

// SuggestAlternatives ranks other equipment and nearby intervals.
func (e *Engine) SuggestAlternatives(ctx context.Context, req domain.ReservationRequest) ([]domain.AlternativeSuggestion, error) {
	return e.recommender.Suggest(ctx, req)
}

// Resources lists a category's equipment.
func (e *Engine) Resources(ctx context.Context, categoryID string) ([]domain.EquipmentResource, error) {
	return e.catalog.ListSiblings(ctx, categoryID)
}
