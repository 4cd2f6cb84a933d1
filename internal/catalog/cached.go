package catalog

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"

	"rental-availability-backend/internal/domain"
)

// Cached keeps a short-lived projection of another Reader. Only successful
// reads are cached; Invalidate and Flush refresh it on demand.
type Cached struct {
	next  Reader
	store *cache.Cache
	ttl   time.Duration
}

// NewCached wraps next with a projection that expires after ttl.
func NewCached(next Reader, ttl time.Duration) *Cached {
	return &Cached{
		next:  next,
		store: cache.New(ttl, 2*ttl),
		ttl:   ttl,
	}
}

func resourceKey(id string) string { return "res:" + id }
func categoryKey(id string) string { return "cat:" + id }

func (c *Cached) GetResource(ctx context.Context, id string) (domain.EquipmentResource, error) {
	if v, found := c.store.Get(resourceKey(id)); found {
		return v.(domain.EquipmentResource), nil
	}
	r, err := c.next.GetResource(ctx, id)
	if err != nil {
		return domain.EquipmentResource{}, err
	}
	c.store.Set(resourceKey(id), r, c.ttl)
	return r, nil
}

func (c *Cached) ListSiblings(ctx context.Context, categoryID string) ([]domain.EquipmentResource, error) {
	if v, found := c.store.Get(categoryKey(categoryID)); found {
		return append([]domain.EquipmentResource(nil), v.([]domain.EquipmentResource)...), nil
	}
	list, err := c.next.ListSiblings(ctx, categoryID)
	if err != nil {
		return nil, err
	}
	c.store.Set(categoryKey(categoryID), list, c.ttl)
	for _, r := range list {
		c.store.Set(resourceKey(r.ID), r, c.ttl)
	}
	return append([]domain.EquipmentResource(nil), list...), nil
}

// Invalidate drops one resource from the projection.
func (c *Cached) Invalidate(id string) {
	c.store.Delete(resourceKey(id))
}

// Flush drops the whole projection.
func (c *Cached) Flush() {
	c.store.Flush()
}
