// Package catalog is the engine's read-only view of the equipment catalog.
package catalog

import (
	"context"
	"sort"

	"rental-availability-backend/internal/domain"
)

// Reader is the inbound catalog contract. GetResource returns
// domain.ErrResourceNotFound for unknown ids; any other error means the
// catalog could not be read.
type Reader interface {
	GetResource(ctx context.Context, id string) (domain.EquipmentResource, error)
	ListSiblings(ctx context.Context, categoryID string) ([]domain.EquipmentResource, error)
}

// Static is an in-memory catalog, used by tests and the offline CLI.
type Static struct {
	byID map[string]domain.EquipmentResource
}

// NewStatic builds a catalog from a fixed list of resources.
func NewStatic(resources ...domain.EquipmentResource) *Static {
	s := &Static{byID: make(map[string]domain.EquipmentResource, len(resources))}
	for _, r := range resources {
		s.byID[r.ID] = r
	}
	return s
}

func (s *Static) GetResource(_ context.Context, id string) (domain.EquipmentResource, error) {
	r, ok := s.byID[id]
	if !ok {
		return domain.EquipmentResource{}, domain.ErrResourceNotFound
	}
	return r, nil
}

func (s *Static) ListSiblings(_ context.Context, categoryID string) ([]domain.EquipmentResource, error) {
	var out []domain.EquipmentResource
	for _, r := range s.byID {
		if r.CategoryID == categoryID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
