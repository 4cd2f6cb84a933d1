package domain

// Severity separates capacity violations from policy warnings.
type Severity string

const (
	// SeverityBlocking means the capacity invariant would be violated.
	SeverityBlocking Severity = "BLOCKING"
	// SeverityAdvisory is surfaced for review but never blocks a commit.
	SeverityAdvisory Severity = "ADVISORY"
)

// ConflictKind names what the request collided with.
type ConflictKind string

const (
	KindOccupancy   ConflictKind = "OCCUPANCY"
	KindMaintenance ConflictKind = "MAINTENANCE"
	KindCapacity    ConflictKind = "CAPACITY"
	KindTurnaround  ConflictKind = "TURNAROUND"
)

// UnavailableReason explains a negative availability answer.
type UnavailableReason string

const (
	ReasonNone                 UnavailableReason = ""
	ReasonMaintenance          UnavailableReason = "MAINTENANCE"
	ReasonRetired              UnavailableReason = "RETIRED"
	ReasonInsufficientCapacity UnavailableReason = "INSUFFICIENT_CAPACITY"
	ReasonOccupied             UnavailableReason = "OCCUPIED"
)

// ConflictEntry names one colliding occupancy (or resource-level block)
// and the sub-interval where it collides.
type ConflictEntry struct {
	OccupancyID string         `json:"occupancy_id,omitempty"`
	BookingID   string         `json:"booking_id,omitempty"`
	State       OccupancyState `json:"state,omitempty"`
	Quantity    int            `json:"quantity,omitempty"`
	Overlap     Interval       `json:"overlap"`
	Severity    Severity       `json:"severity"`
	Kind        ConflictKind   `json:"kind"`
}

// ConflictReport is the structured explanation of a negative answer.
type ConflictReport struct {
	ResourceID string            `json:"resource_id"`
	Interval   Interval          `json:"interval"`
	Quantity   int               `json:"quantity"`
	Reason     UnavailableReason `json:"reason,omitempty"`
	Entries    []ConflictEntry   `json:"entries"`
	Note       string            `json:"note,omitempty"`
}

// HasBlocking reports whether any entry prevents a commit.
func (r ConflictReport) HasBlocking() bool {
	for _, e := range r.Entries {
		if e.Severity == SeverityBlocking {
			return true
		}
	}
	return false
}

// Blocking returns only the BLOCKING entries.
func (r ConflictReport) Blocking() []ConflictEntry {
	return r.filter(SeverityBlocking)
}

// Advisories returns only the ADVISORY entries.
func (r ConflictReport) Advisories() []ConflictEntry {
	return r.filter(SeverityAdvisory)
}

func (r ConflictReport) filter(s Severity) []ConflictEntry {
	var out []ConflictEntry
	for _, e := range r.Entries {
		if e.Severity == s {
			out = append(out, e)
		}
	}
	return out
}

// Segment is one piece of the requested interval with a uniform answer.
type Segment struct {
	Interval     Interval `json:"interval"`
	Available    bool     `json:"available"`
	UsedQuantity int      `json:"used_quantity"`
	FreeQuantity int      `json:"free_quantity"`
}

// AvailabilityResult covers the requested interval with ordered segments.
type AvailabilityResult struct {
	ResourceID     string            `json:"resource_id"`
	Interval       Interval          `json:"interval"`
	Quantity       int               `json:"quantity"`
	FullyAvailable bool              `json:"fully_available"`
	Reason         UnavailableReason `json:"reason,omitempty"`
	Segments       []Segment         `json:"segments"`
}

// Partial reports whether some but not all of the interval is free.
func (r AvailabilityResult) Partial() bool {
	if r.FullyAvailable {
		return false
	}
	for _, s := range r.Segments {
		if s.Available {
			return true
		}
	}
	return false
}

// UnavailableSegments returns the segments that cannot take the request.
func (r AvailabilityResult) UnavailableSegments() []Segment {
	var out []Segment
	for _, s := range r.Segments {
		if !s.Available {
			out = append(out, s)
		}
	}
	return out
}

// SuggestionAxis tells whether a suggestion swaps equipment or timing.
type SuggestionAxis string

const (
	AxisEquipment SuggestionAxis = "EQUIPMENT"
	AxisTiming    SuggestionAxis = "TIMING"
)

// AlternativeSuggestion is one ranked fix for an unsatisfiable request.
type AlternativeSuggestion struct {
	ResourceID string         `json:"resource_id"`
	Interval   Interval       `json:"interval"`
	Axis       SuggestionAxis `json:"axis"`
	Score      float64        `json:"score"`
	CostDelta  float64        `json:"cost_delta"`
	OffsetDays float64        `json:"offset_days,omitempty"`
}
