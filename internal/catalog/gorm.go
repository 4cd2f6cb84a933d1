package catalog

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"rental-availability-backend/internal/domain"
	"rental-availability-backend/internal/model"
)

// GormReader reads the equipment projection table.
type GormReader struct {
	db *gorm.DB
}

// NewGormReader creates a catalog reader over the equipment table.
func NewGormReader(db *gorm.DB) *GormReader {
	return &GormReader{db: db}
}

func (r *GormReader) GetResource(ctx context.Context, id string) (domain.EquipmentResource, error) {
	var eq model.Equipment
	if err := r.db.WithContext(ctx).First(&eq, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.EquipmentResource{}, domain.ErrResourceNotFound
		}
		return domain.EquipmentResource{}, fmt.Errorf("failed to load equipment %s: %w", id, err)
	}
	return ToResource(eq), nil
}

func (r *GormReader) ListSiblings(ctx context.Context, categoryID string) ([]domain.EquipmentResource, error) {
	var rows []model.Equipment
	if err := r.db.WithContext(ctx).
		Where("category_id = ?", categoryID).
		Order("id").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list equipment in category %s: %w", categoryID, err)
	}
	out := make([]domain.EquipmentResource, 0, len(rows))
	for _, eq := range rows {
		out = append(out, ToResource(eq))
	}
	return out, nil
}

// ToResource converts a persisted row into the engine projection.
func ToResource(eq model.Equipment) domain.EquipmentResource {
	capacity := eq.Capacity
	if capacity < 1 {
		capacity = 1
	}
	status := domain.ResourceStatus(eq.Status)
	switch status {
	case domain.StatusAvailable, domain.StatusMaintenance, domain.StatusRetired:
	default:
		status = domain.StatusMaintenance
	}
	return domain.EquipmentResource{
		ID:            eq.ID,
		CategoryID:    eq.CategoryID,
		Name:          eq.DisplayName,
		Capacity:      capacity,
		Status:        status,
		DailyRate:     eq.DailyRate,
		EquivalentIDs: eq.EquivalentIDs(),
	}
}
