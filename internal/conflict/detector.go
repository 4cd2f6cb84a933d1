// Package conflict explains why a request cannot be satisfied: which
// occupancies push a resource over capacity, and which ones sit too close
// to the request to leave a turnaround buffer.
package conflict

import (
	"fmt"
	"sort"
	"time"

	"rental-availability-backend/internal/availability"
	"rental-availability-backend/internal/domain"
	"rental-availability-backend/internal/index"
)

// Detector is a pure function of the index state it reads.
type Detector struct {
	src    index.Source
	buffer time.Duration
}

// New creates a detector. A positive buffer turns near-adjacent bookings of
// the same item into ADVISORY entries.
func New(src index.Source, minimumTurnaround time.Duration) *Detector {
	return &Detector{src: src, buffer: minimumTurnaround}
}

// WithSource returns a detector reading from a different source.
func (d *Detector) WithSource(src index.Source) *Detector {
	return &Detector{src: src, buffer: d.buffer}
}

// Buffer returns the configured minimum turnaround.
func (d *Detector) Buffer() time.Duration { return d.buffer }

// Detect builds the conflict report for quantity units of res over iv.
func (d *Detector) Detect(res domain.EquipmentResource, iv domain.Interval, quantity int, excludeBookingID string) (domain.ConflictReport, error) {
	if err := availability.Validate(iv, quantity); err != nil {
		return domain.ConflictReport{}, err
	}
	if blocked, ok := availability.Precheck(res, iv, quantity); ok {
		return fromPrecheck(blocked), nil
	}

	window := domain.Interval{Start: iv.Start.Add(-d.buffer), End: iv.End.Add(d.buffer)}
	nearby := availability.Exclude(d.src.Query(res.ID, window), excludeBookingID)
	return Explain(res, iv, quantity, nearby, d.buffer), nil
}

// ValidateFuture rejects intervals that start before now. now always comes
// from the caller's clock.
func ValidateFuture(iv domain.Interval, now time.Time) error {
	if iv.Start.Before(now) {
		return fmt.Errorf("%w: start %s is before %s", domain.ErrIntervalInPast,
			iv.Start.Format(time.RFC3339), now.Format(time.RFC3339))
	}
	return nil
}

func fromPrecheck(r domain.AvailabilityResult) domain.ConflictReport {
	kind := domain.KindMaintenance
	if r.Reason == domain.ReasonInsufficientCapacity {
		kind = domain.KindCapacity
	}
	return domain.ConflictReport{
		ResourceID: r.ResourceID,
		Interval:   r.Interval,
		Quantity:   r.Quantity,
		Reason:     r.Reason,
		Entries: []domain.ConflictEntry{{
			Overlap:  r.Interval,
			Severity: domain.SeverityBlocking,
			Kind:     kind,
		}},
	}
}

// Explain builds a report from occupancies already read under whatever lock
// the caller holds. nearby may include occupancies outside iv; those within
// buffer of either end become ADVISORY entries.
func Explain(res domain.EquipmentResource, iv domain.Interval, quantity int, nearby []domain.Occupancy, buffer time.Duration) domain.ConflictReport {
	report := domain.ConflictReport{
		ResourceID: res.ID,
		Interval:   iv,
		Quantity:   quantity,
	}
	if blocked, ok := availability.Precheck(res, iv, quantity); ok {
		return fromPrecheck(blocked)
	}

	var overlapping []domain.Occupancy
	for _, o := range nearby {
		if o.Active() && o.Interval.Overlaps(iv) {
			overlapping = append(overlapping, o)
		}
	}

	result := availability.Evaluate(res, iv, quantity, overlapping)
	report.Reason = result.Reason
	unavailable := result.UnavailableSegments()

	for _, o := range overlapping {
		span, ok := culpritSpan(o, unavailable)
		if !ok {
			continue
		}
		report.Entries = append(report.Entries, domain.ConflictEntry{
			OccupancyID: o.ID,
			BookingID:   o.BookingID,
			State:       o.State,
			Quantity:    o.Quantity,
			Overlap:     span,
			Severity:    domain.SeverityBlocking,
			Kind:        domain.KindOccupancy,
		})
	}

	if buffer > 0 {
		report.Entries = append(report.Entries, advisories(iv, nearby, buffer)...)
	}

	sort.SliceStable(report.Entries, func(i, j int) bool {
		a, b := report.Entries[i], report.Entries[j]
		if a.Severity != b.Severity {
			return a.Severity == domain.SeverityBlocking
		}
		if !a.Overlap.Start.Equal(b.Overlap.Start) {
			return a.Overlap.Start.Before(b.Overlap.Start)
		}
		return a.OccupancyID < b.OccupancyID
	})
	return report
}

// culpritSpan is the stretch of o that lies inside unavailable segments,
// from the first such segment it touches to the last.
func culpritSpan(o domain.Occupancy, unavailable []domain.Segment) (domain.Interval, bool) {
	var span domain.Interval
	found := false
	for _, s := range unavailable {
		part, ok := o.Interval.Intersect(s.Interval)
		if !ok {
			continue
		}
		if !found {
			span = part
			found = true
			continue
		}
		if part.End.After(span.End) {
			span.End = part.End
		}
	}
	return span, found
}

func advisories(iv domain.Interval, nearby []domain.Occupancy, buffer time.Duration) []domain.ConflictEntry {
	var out []domain.ConflictEntry
	for _, o := range nearby {
		if !o.Active() || o.Interval.Overlaps(iv) {
			continue
		}
		var gap domain.Interval
		switch {
		case !o.Interval.End.After(iv.Start) && iv.Start.Sub(o.Interval.End) < buffer:
			gap = domain.Interval{Start: o.Interval.End, End: iv.Start}
		case !o.Interval.Start.Before(iv.End) && o.Interval.Start.Sub(iv.End) < buffer:
			gap = domain.Interval{Start: iv.End, End: o.Interval.Start}
		default:
			continue
		}
		out = append(out, domain.ConflictEntry{
			OccupancyID: o.ID,
			BookingID:   o.BookingID,
			State:       o.State,
			Quantity:    o.Quantity,
			Overlap:     gap,
			Severity:    domain.SeverityAdvisory,
			Kind:        domain.KindTurnaround,
		})
	}
	return out
}
