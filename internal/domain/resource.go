package domain

// ResourceStatus gates bookability independently of interval occupancy.
type ResourceStatus string

const (
	StatusAvailable   ResourceStatus = "AVAILABLE"
	StatusMaintenance ResourceStatus = "MAINTENANCE"
	StatusRetired     ResourceStatus = "RETIRED"
)

// EquipmentResource is the engine's read-only projection of a catalog item.
type EquipmentResource struct {
	ID         string         `json:"id"`
	CategoryID string         `json:"category_id"`
	Name       string         `json:"name,omitempty"`
	Capacity   int            `json:"capacity"`
	Status     ResourceStatus `json:"status"`
	DailyRate  float64        `json:"daily_rate"`
	// EquivalentIDs lists resources outside the category that can stand in for this one.
	EquivalentIDs []string `json:"equivalent_ids,omitempty"`
}

// Bookable reports whether the status allows any reservation at all.
func (r EquipmentResource) Bookable() bool {
	return r.Status == StatusAvailable
}
