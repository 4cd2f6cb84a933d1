// Package index keeps, per equipment resource, the ordered set of
// occupancy intervals and the lock that guards it.
package index

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"rental-availability-backend/internal/domain"
)

var (
	ErrDuplicateOccupancy = errors.New("occupancy already indexed")
	ErrOccupancyNotFound  = errors.New("occupancy not found")
)

// Source answers overlap queries. Index satisfies it for callers that already
// hold the resource lock; ReadView satisfies it for lock-free callers.
type Source interface {
	Query(resourceID string, iv domain.Interval) []domain.Occupancy
}

// resourceSet holds one resource's active occupancies sorted by start, with
// maxEnd[i] the latest End among active[0..i].
type resourceSet struct {
	mu        sync.RWMutex
	active    []domain.Occupancy
	maxEnd    []time.Time
	cancelled []domain.Occupancy
}

type occMeta struct {
	resourceID string
	bookingID  string
}

// Index is the engine's only mutable shared state.
type Index struct {
	mu        sync.Mutex // guards the maps, not the per-resource slices
	resources map[string]*resourceSet
	meta      map[string]occMeta
	byBooking map[string]map[string]struct{}
}

// New creates an empty index.
func New() *Index {
	return &Index{
		resources: make(map[string]*resourceSet),
		meta:      make(map[string]occMeta),
		byBooking: make(map[string]map[string]struct{}),
	}
}

func (x *Index) set(resourceID string, create bool) *resourceSet {
	x.mu.Lock()
	defer x.mu.Unlock()
	rs, ok := x.resources[resourceID]
	if !ok && create {
		rs = &resourceSet{}
		x.resources[resourceID] = rs
	}
	return rs
}

// Lock takes the exclusive lock of every listed resource in ascending id
// order and returns the matching unlock function.
func (x *Index) Lock(resourceIDs ...string) func() {
	ids := sortedUnique(resourceIDs)
	sets := make([]*resourceSet, len(ids))
	for i, id := range ids {
		sets[i] = x.set(id, true)
	}
	for _, rs := range sets {
		rs.mu.Lock()
	}
	return func() {
		for i := len(sets) - 1; i >= 0; i-- {
			sets[i].mu.Unlock()
		}
	}
}

// RLock takes the shared lock of one resource.
func (x *Index) RLock(resourceID string) func() {
	rs := x.set(resourceID, true)
	rs.mu.RLock()
	return rs.mu.RUnlock
}

func sortedUnique(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Query returns every non-cancelled occupancy of the resource intersecting
// iv. The caller must hold the resource lock (shared or exclusive).
func (x *Index) Query(resourceID string, iv domain.Interval) []domain.Occupancy {
	rs := x.set(resourceID, false)
	if rs == nil {
		return nil
	}

	// First position whose start is not before iv.End; nothing from there on can overlap.
	hi := sort.Search(len(rs.active), func(i int) bool {
		return !rs.active[i].Interval.Start.Before(iv.End)
	})

	var out []domain.Occupancy
	for j := hi - 1; j >= 0; j-- {
		if !rs.maxEnd[j].After(iv.Start) {
			break
		}
		if rs.active[j].Interval.End.After(iv.Start) {
			out = append(out, rs.active[j])
		}
	}
	// Restore start order for callers that print or sweep.
	for l, r := 0, len(out)-1; l < r; l, r = l+1, r-1 {
		out[l], out[r] = out[r], out[l]
	}
	return out
}

// Insert adds an occupancy. The caller must hold the resource's exclusive lock.
func (x *Index) Insert(occ domain.Occupancy) error {
	if occ.ID == "" {
		return fmt.Errorf("insert occupancy: empty id")
	}
	if !occ.Active() {
		return fmt.Errorf("insert occupancy %s: state %s is not active", occ.ID, occ.State)
	}

	x.mu.Lock()
	if _, exists := x.meta[occ.ID]; exists {
		x.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDuplicateOccupancy, occ.ID)
	}
	x.meta[occ.ID] = occMeta{resourceID: occ.ResourceID, bookingID: occ.BookingID}
	if x.byBooking[occ.BookingID] == nil {
		x.byBooking[occ.BookingID] = make(map[string]struct{})
	}
	x.byBooking[occ.BookingID][occ.ID] = struct{}{}
	rs, ok := x.resources[occ.ResourceID]
	if !ok {
		rs = &resourceSet{}
		x.resources[occ.ResourceID] = rs
	}
	x.mu.Unlock()

	pos := sort.Search(len(rs.active), func(i int) bool {
		return less(occ, rs.active[i])
	})
	rs.active = append(rs.active, domain.Occupancy{})
	copy(rs.active[pos+1:], rs.active[pos:])
	rs.active[pos] = occ
	rs.rebuildFrom(pos)
	return nil
}

func less(a, b domain.Occupancy) bool {
	if !a.Interval.Start.Equal(b.Interval.Start) {
		return a.Interval.Start.Before(b.Interval.Start)
	}
	return a.ID < b.ID
}

func (rs *resourceSet) rebuildFrom(pos int) {
	if len(rs.maxEnd) != len(rs.active) {
		rs.maxEnd = make([]time.Time, len(rs.active))
		pos = 0
	}
	for i := pos; i < len(rs.active); i++ {
		end := rs.active[i].Interval.End
		if i > 0 && rs.maxEnd[i-1].After(end) {
			end = rs.maxEnd[i-1]
		}
		rs.maxEnd[i] = end
	}
}

func (rs *resourceSet) position(occupancyID string) int {
	for i := range rs.active {
		if rs.active[i].ID == occupancyID {
			return i
		}
	}
	return -1
}

func (x *Index) lookup(occupancyID string) (*resourceSet, occMeta, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	m, ok := x.meta[occupancyID]
	if !ok {
		return nil, occMeta{}, fmt.Errorf("%w: %s", ErrOccupancyNotFound, occupancyID)
	}
	return x.resources[m.resourceID], m, nil
}

func (x *Index) forget(occupancyID string, m occMeta) {
	x.mu.Lock()
	defer x.mu.Unlock()
	delete(x.meta, occupancyID)
	if ids := x.byBooking[m.bookingID]; ids != nil {
		delete(ids, occupancyID)
		if len(ids) == 0 {
			delete(x.byBooking, m.bookingID)
		}
	}
}

// Remove drops an active occupancy without keeping an audit copy; used for
// discarded holds. The caller must hold the resource's exclusive lock.
func (x *Index) Remove(occupancyID string) error {
	rs, m, err := x.lookup(occupancyID)
	if err != nil {
		return err
	}
	pos := rs.position(occupancyID)
	if pos < 0 {
		return fmt.Errorf("%w: %s", ErrOccupancyNotFound, occupancyID)
	}
	rs.active = append(rs.active[:pos], rs.active[pos+1:]...)
	rs.maxEnd = rs.maxEnd[:len(rs.active)]
	rs.rebuildFrom(pos)
	x.forget(occupancyID, m)
	return nil
}

// UpdateState moves an occupancy to a new state. CANCELLED occupancies leave
// the active set and are retained for audit only.
// The caller must hold the resource's exclusive lock.
func (x *Index) UpdateState(occupancyID string, state domain.OccupancyState) error {
	rs, m, err := x.lookup(occupancyID)
	if err != nil {
		return err
	}
	pos := rs.position(occupancyID)
	if pos < 0 {
		return fmt.Errorf("%w: %s", ErrOccupancyNotFound, occupancyID)
	}

	if state != domain.StateCancelled {
		rs.active[pos].State = state
		if state == domain.StateConfirmed {
			rs.active[pos].ExpiresAt = time.Time{}
		}
		return nil
	}

	occ := rs.active[pos]
	occ.State = domain.StateCancelled
	rs.cancelled = append(rs.cancelled, occ)
	rs.active = append(rs.active[:pos], rs.active[pos+1:]...)
	rs.maxEnd = rs.maxEnd[:len(rs.active)]
	rs.rebuildFrom(pos)
	x.forget(occupancyID, m)
	return nil
}

// Get returns an active occupancy by id. The caller must hold the resource lock.
func (x *Index) Get(occupancyID string) (domain.Occupancy, error) {
	rs, _, err := x.lookup(occupancyID)
	if err != nil {
		return domain.Occupancy{}, err
	}
	pos := rs.position(occupancyID)
	if pos < 0 {
		return domain.Occupancy{}, fmt.Errorf("%w: %s", ErrOccupancyNotFound, occupancyID)
	}
	return rs.active[pos], nil
}

// Ref identifies an active occupancy without reading its resource set.
type Ref struct {
	OccupancyID string
	ResourceID  string
}

// ByBooking lists the active occupancies owned by a booking, sorted by
// resource id so the result can feed Lock directly. No resource lock needed.
func (x *Index) ByBooking(bookingID string) []Ref {
	x.mu.Lock()
	defer x.mu.Unlock()
	refs := make([]Ref, 0, len(x.byBooking[bookingID]))
	for id := range x.byBooking[bookingID] {
		refs = append(refs, Ref{OccupancyID: id, ResourceID: x.meta[id].resourceID})
	}
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].ResourceID != refs[j].ResourceID {
			return refs[i].ResourceID < refs[j].ResourceID
		}
		return refs[i].OccupancyID < refs[j].OccupancyID
	})
	return refs
}

// ResourceIDs lists every resource id the index has seen.
func (x *Index) ResourceIDs() []string {
	x.mu.Lock()
	defer x.mu.Unlock()
	ids := make([]string, 0, len(x.resources))
	for id := range x.resources {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Expired returns PENDING occupancies whose hold expired at or before now.
// It takes each resource's shared lock itself.
func (x *Index) Expired(now time.Time) []domain.Occupancy {
	var out []domain.Occupancy
	for _, id := range x.ResourceIDs() {
		unlock := x.RLock(id)
		rs := x.set(id, false)
		for _, occ := range rs.active {
			if occ.State == domain.StatePending && !occ.ExpiresAt.IsZero() && !occ.ExpiresAt.After(now) {
				out = append(out, occ)
			}
		}
		unlock()
	}
	return out
}

// Snapshot copies one resource's active and cancelled occupancies under its
// shared lock.
func (x *Index) Snapshot(resourceID string) (active, cancelled []domain.Occupancy) {
	unlock := x.RLock(resourceID)
	defer unlock()
	rs := x.set(resourceID, false)
	active = append([]domain.Occupancy(nil), rs.active...)
	cancelled = append([]domain.Occupancy(nil), rs.cancelled...)
	return active, cancelled
}

// ReadView wraps the index so each Query takes the resource's shared lock.
type ReadView struct {
	idx *Index
}

// Reader returns a lock-taking view for read-only callers.
func (x *Index) Reader() ReadView {
	return ReadView{idx: x}
}

func (v ReadView) Query(resourceID string, iv domain.Interval) []domain.Occupancy {
	unlock := v.idx.RLock(resourceID)
	defer unlock()
	return v.idx.Query(resourceID, iv)
}
