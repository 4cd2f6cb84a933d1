// Package availability answers whether a quantity of one resource can be
// allocated for an interval, and which parts of the interval are free.
package availability

import (
	"fmt"
	"sort"
	"time"

	"rental-availability-backend/internal/domain"
	"rental-availability-backend/internal/index"
)

// Calculator is read-only and safe for concurrent use.
type Calculator struct {
	src index.Source
}

// New creates a calculator over an occupancy source.
func New(src index.Source) *Calculator {
	return &Calculator{src: src}
}

// WithSource returns a calculator reading from a different source, e.g. the
// raw index while the caller already holds the resource lock.
func (c *Calculator) WithSource(src index.Source) *Calculator {
	return &Calculator{src: src}
}

// Validate performs the synchronous request checks shared by every query.
func Validate(iv domain.Interval, quantity int) error {
	if err := iv.Validate(); err != nil {
		return err
	}
	if quantity <= 0 {
		return fmt.Errorf("%w: got %d", domain.ErrInvalidQuantity, quantity)
	}
	return nil
}

// Check computes the availability of res over iv for quantity units,
// ignoring occupancies owned by excludeBookingID.
func (c *Calculator) Check(res domain.EquipmentResource, iv domain.Interval, quantity int, excludeBookingID string) (domain.AvailabilityResult, error) {
	if err := Validate(iv, quantity); err != nil {
		return domain.AvailabilityResult{}, err
	}
	if blocked, ok := Precheck(res, iv, quantity); ok {
		return blocked, nil
	}
	occs := Exclude(c.src.Query(res.ID, iv), excludeBookingID)
	return Evaluate(res, iv, quantity, occs), nil
}

// Precheck answers without consulting the index when the resource status
// or its total capacity already decides the request.
func Precheck(res domain.EquipmentResource, iv domain.Interval, quantity int) (domain.AvailabilityResult, bool) {
	var reason domain.UnavailableReason
	switch {
	case res.Status == domain.StatusMaintenance:
		reason = domain.ReasonMaintenance
	case res.Status == domain.StatusRetired:
		reason = domain.ReasonRetired
	case res.Status != domain.StatusAvailable:
		reason = domain.ReasonMaintenance
	case quantity > res.Capacity:
		reason = domain.ReasonInsufficientCapacity
	default:
		return domain.AvailabilityResult{}, false
	}
	return domain.AvailabilityResult{
		ResourceID: res.ID,
		Interval:   iv,
		Quantity:   quantity,
		Reason:     reason,
		Segments: []domain.Segment{{
			Interval:     iv,
			Available:    false,
			FreeQuantity: 0,
		}},
	}, true
}

// Exclude drops occupancies owned by bookingID.
func Exclude(occs []domain.Occupancy, bookingID string) []domain.Occupancy {
	if bookingID == "" {
		return occs
	}
	out := occs[:0:0]
	for _, o := range occs {
		if o.BookingID != bookingID {
			out = append(out, o)
		}
	}
	return out
}

type event struct {
	at    time.Time
	delta int
}

// Evaluate sweeps the given occupancies across iv: +quantity at each start,
// -quantity at each end, ends before starts at the same instant. Every piece
// of iv where used+quantity exceeds capacity is unavailable.
func Evaluate(res domain.EquipmentResource, iv domain.Interval, quantity int, occs []domain.Occupancy) domain.AvailabilityResult {
	events := make([]event, 0, 2*len(occs))
	for _, o := range occs {
		if !o.Active() {
			continue
		}
		clipped, ok := o.Interval.Intersect(iv)
		if !ok {
			continue
		}
		events = append(events,
			event{at: clipped.Start, delta: o.Quantity},
			event{at: clipped.End, delta: -o.Quantity},
		)
	}
	sort.Slice(events, func(i, j int) bool {
		if !events[i].at.Equal(events[j].at) {
			return events[i].at.Before(events[j].at)
		}
		return events[i].delta < events[j].delta
	})

	var raw []domain.Segment
	emit := func(from, to time.Time, used int) {
		raw = append(raw, domain.Segment{
			Interval:     domain.Interval{Start: from, End: to},
			Available:    used+quantity <= res.Capacity,
			UsedQuantity: used,
			FreeQuantity: max(res.Capacity-used, 0),
		})
	}

	prev, used := iv.Start, 0
	for i := 0; i < len(events); {
		t := events[i].at
		if t.After(prev) {
			emit(prev, t, used)
			prev = t
		}
		for ; i < len(events) && events[i].at.Equal(t); i++ {
			used += events[i].delta
		}
	}
	if iv.End.After(prev) {
		emit(prev, iv.End, used)
	}

	segments := merge(raw, res.Capacity)
	result := domain.AvailabilityResult{
		ResourceID:     res.ID,
		Interval:       iv,
		Quantity:       quantity,
		FullyAvailable: true,
		Segments:       segments,
	}
	for _, s := range segments {
		if !s.Available {
			result.FullyAvailable = false
			result.Reason = domain.ReasonOccupied
			break
		}
	}
	return result
}

// merge joins neighbours with the same answer, keeping the peak usage so the
// free quantity holds across the whole merged piece.
func merge(raw []domain.Segment, capacity int) []domain.Segment {
	var out []domain.Segment
	for _, s := range raw {
		n := len(out)
		if n > 0 && out[n-1].Available == s.Available && out[n-1].Interval.End.Equal(s.Interval.Start) {
			out[n-1].Interval.End = s.Interval.End
			if s.UsedQuantity > out[n-1].UsedQuantity {
				out[n-1].UsedQuantity = s.UsedQuantity
				out[n-1].FreeQuantity = max(capacity-s.UsedQuantity, 0)
			}
			continue
		}
		out = append(out, s)
	}
	return out
}
