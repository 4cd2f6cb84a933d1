package domain

import "time"

// OccupancyState tracks a claim through the hold/confirm lifecycle.
type OccupancyState string

const (
	StatePending   OccupancyState = "PENDING"
	StateConfirmed OccupancyState = "CONFIRMED"
	StateCancelled OccupancyState = "CANCELLED"
)

// Occupancy is a claim on Quantity units of one resource for an interval.
type Occupancy struct {
	ID         string         `json:"id"`
	ResourceID string         `json:"resource_id"`
	BookingID  string         `json:"booking_id"`
	Quantity   int            `json:"quantity"`
	Interval   Interval       `json:"interval"`
	State      OccupancyState `json:"state"`
	CreatedAt  time.Time      `json:"created_at"`
	// ExpiresAt is only meaningful while the occupancy is PENDING.
	ExpiresAt time.Time `json:"expires_at,omitzero"`
}

// Active reports whether the occupancy counts against capacity.
func (o Occupancy) Active() bool {
	return o.State == StatePending || o.State == StateConfirmed
}

// ReservationRequest is the ephemeral input to every engine query.
// An empty ResourceID with a CategoryID asks for any equivalent item.
type ReservationRequest struct {
	ResourceID       string   `json:"resource_id,omitempty"`
	CategoryID       string   `json:"category_id,omitempty"`
	Quantity         int      `json:"quantity"`
	Interval         Interval `json:"interval"`
	ExcludeBookingID string   `json:"exclude_booking_id,omitempty"`
}

// Validate checks the request shape without touching any resource.
func (r ReservationRequest) Validate() error {
	if r.ResourceID == "" && r.CategoryID == "" {
		return ErrMissingResource
	}
	if r.Quantity <= 0 {
		return ErrInvalidQuantity
	}
	return r.Interval.Validate()
}

// BookingRecord is what the engine emits to the persistence layer on
// CONFIRMED, and retracts on CANCELLED.
type BookingRecord struct {
	OccupancyID string    `json:"occupancy_id"`
	BookingID   string    `json:"booking_id"`
	ResourceID  string    `json:"resource_id"`
	Quantity    int       `json:"quantity"`
	Interval    Interval  `json:"interval"`
	At          time.Time `json:"at"`
}

// RecordOf projects an occupancy into a feed record stamped at the given time.
func RecordOf(o Occupancy, at time.Time) BookingRecord {
	return BookingRecord{
		OccupancyID: o.ID,
		BookingID:   o.BookingID,
		ResourceID:  o.ResourceID,
		Quantity:    o.Quantity,
		Interval:    o.Interval,
		At:          at,
	}
}
