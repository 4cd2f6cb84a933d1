// Package feed carries booking records out of the engine: to durable
// storage and to downstream subscribers.
package feed

import (
	"context"

	"rental-availability-backend/internal/domain"
)

// Sink receives a record when an occupancy is CONFIRMED and a retraction
// when it is CANCELLED. Calls arrive while the engine holds the occupancy's
// resource lock, so implementations must not call back into the engine.
type Sink interface {
	Record(ctx context.Context, rec domain.BookingRecord) error
	Retract(ctx context.Context, rec domain.BookingRecord) error
}

// Discard drops every record.
type Discard struct{}

func (Discard) Record(context.Context, domain.BookingRecord) error  { return nil }
func (Discard) Retract(context.Context, domain.BookingRecord) error { return nil }
