package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidRequest is never retried automatically.
	ErrInvalidRequest = errors.New("invalid request")

	ErrInvalidInterval  = fmt.Errorf("%w: invalid interval", ErrInvalidRequest)
	ErrInvalidQuantity  = fmt.Errorf("%w: quantity must be positive", ErrInvalidRequest)
	ErrMissingResource  = fmt.Errorf("%w: resource id or category id is required", ErrInvalidRequest)
	ErrIntervalInPast   = fmt.Errorf("%w: interval starts in the past", ErrInvalidRequest)
	ErrResourceNotFound = fmt.Errorf("%w: resource not found", ErrInvalidRequest)
	ErrBookingExists    = fmt.Errorf("%w: booking id already in use", ErrInvalidRequest)

	// ErrCapacityConflict marks a blocking conflict report.
	ErrCapacityConflict = errors.New("capacity conflict")
	// ErrRaceLost means the CONFIRMING re-check failed after a successful CHECKING.
	ErrRaceLost = fmt.Errorf("%w: window changed before confirmation", ErrCapacityConflict)

	// ErrCatalogUnavailable means the resource feed could not be reached;
	// it is neither "available" nor "busy".
	ErrCatalogUnavailable = errors.New("catalog unavailable")

	ErrHoldNotFound    = errors.New("hold not found")
	ErrBookingNotFound = errors.New("booking not found")
)
