// Package reservation commits bookings against the interval index: a
// request is checked, held as PENDING, then confirmed inside a single
// exclusive critical section so at most one competitor wins a window.
package reservation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"rental-availability-backend/internal/availability"
	"rental-availability-backend/internal/catalog"
	"rental-availability-backend/internal/conflict"
	"rental-availability-backend/internal/domain"
	"rental-availability-backend/internal/feed"
	"rental-availability-backend/internal/index"
)

// State is the outcome of a commit attempt.
type State string

const (
	StateHolding   State = "HOLDING"
	StateConfirmed State = "CONFIRMED"
	StateRejected  State = "REJECTED"
)

// CommitResult is returned for every decision. Rejections are values, not errors.
type CommitResult struct {
	BookingID   string                 `json:"booking_id"`
	State       State                  `json:"state"`
	Occupancies []domain.Occupancy     `json:"occupancies,omitempty"`
	Report      *domain.ConflictReport `json:"report,omitempty"`
	RaceLost    bool                   `json:"race_lost,omitempty"`
	Advisories  []domain.ConflictEntry `json:"advisories,omitempty"`
}

// Notifier is told when capacity of a resource frees up.
type Notifier interface {
	Dispatch(resourceID string)
}

// Manager owns every write to the index.
type Manager struct {
	idx      *index.Index
	catalog  catalog.Reader
	reader   *conflict.Detector
	locked   *conflict.Detector
	clock    domain.Clock
	cfg      Config
	sink     feed.Sink
	notifier Notifier
	logger   *slog.Logger
	newID    func() string
}

// NewManager creates a manager over idx. Records go nowhere until WithSink is called.
func NewManager(idx *index.Index, cat catalog.Reader, clock domain.Clock, cfg Config, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if clock == nil {
		clock = domain.SystemClock{}
	}
	cfg = cfg.withDefaults()
	reader := conflict.New(idx.Reader(), cfg.MinimumTurnaround)
	return &Manager{
		idx:     idx,
		catalog: cat,
		reader:  reader,
		locked:  reader.WithSource(idx),
		clock:   clock,
		cfg:     cfg,
		sink:    feed.Discard{},
		logger:  logger,
		newID:   uuid.NewString,
	}
}

// WithSink sets where CONFIRMED and CANCELLED records are emitted.
func (m *Manager) WithSink(s feed.Sink) *Manager {
	m.sink = s
	return m
}

// WithNotifier sets who hears about freed capacity.
func (m *Manager) WithNotifier(n Notifier) *Manager {
	m.notifier = n
	return m
}

func (m *Manager) validate(req domain.ReservationRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}
	if err := availability.Validate(req.Interval, req.Quantity); err != nil {
		return err
	}
	if m.cfg.RejectPastIntervals {
		return conflict.ValidateFuture(req.Interval, m.clock.Now())
	}
	return nil
}

func (m *Manager) bookingID(id string) string {
	if id == "" {
		return m.newID()
	}
	return id
}

func rejected(bookingID string, report domain.ConflictReport) CommitResult {
	return CommitResult{BookingID: bookingID, State: StateRejected, Report: &report}
}

// Reserve holds and confirms in one call.
func (m *Manager) Reserve(ctx context.Context, req domain.ReservationRequest, bookingID string) (CommitResult, error) {
	held, err := m.Hold(ctx, req, bookingID)
	if err != nil || held.State != StateHolding {
		return held, err
	}
	result, err := m.Confirm(ctx, held.BookingID)
	if err != nil {
		return CommitResult{}, err
	}
	if result.State == StateConfirmed {
		result.Advisories = held.Advisories
	}
	return result, nil
}

// Hold places a PENDING occupancy that expires after the hold timeout.
// A request without a resource id is tried against the category's items in
// ascending id order.
func (m *Manager) Hold(ctx context.Context, req domain.ReservationRequest, bookingID string) (CommitResult, error) {
	if err := m.validate(req); err != nil {
		return CommitResult{}, err
	}
	bookingID = m.bookingID(bookingID)
	if len(m.idx.ByBooking(bookingID)) > 0 {
		return CommitResult{}, fmt.Errorf("%w: %s", domain.ErrBookingExists, bookingID)
	}
	if req.ResourceID == "" {
		return m.holdAny(ctx, req, bookingID)
	}
	res, err := m.catalog.GetResource(ctx, req.ResourceID)
	if err != nil {
		return CommitResult{}, err
	}
	return m.hold(res, req, bookingID)
}

func (m *Manager) holdAny(ctx context.Context, req domain.ReservationRequest, bookingID string) (CommitResult, error) {
	siblings, err := m.catalog.ListSiblings(ctx, req.CategoryID)
	if err != nil {
		return CommitResult{}, err
	}
	sort.Slice(siblings, func(i, j int) bool { return siblings[i].ID < siblings[j].ID })

	var first *domain.ConflictReport
	for _, res := range siblings {
		attempt := req
		attempt.ResourceID = res.ID
		result, err := m.hold(res, attempt, bookingID)
		if err != nil {
			return CommitResult{}, err
		}
		if result.State == StateHolding {
			return result, nil
		}
		if first == nil {
			first = result.Report
		}
	}
	if first == nil {
		first = &domain.ConflictReport{
			Interval: req.Interval,
			Quantity: req.Quantity,
			Note:     fmt.Sprintf("category %s has no equipment", req.CategoryID),
		}
	}
	return rejected(bookingID, *first), nil
}

func (m *Manager) hold(res domain.EquipmentResource, req domain.ReservationRequest, bookingID string) (CommitResult, error) {
	// CHECKING runs under shared locks only; most rejections stop here.
	report, err := m.reader.Detect(res, req.Interval, req.Quantity, req.ExcludeBookingID)
	if err != nil {
		return CommitResult{}, err
	}
	if report.HasBlocking() {
		return rejected(bookingID, report), nil
	}

	unlock := m.idx.Lock(res.ID)
	defer unlock()

	report, err = m.locked.Detect(res, req.Interval, req.Quantity, req.ExcludeBookingID)
	if err != nil {
		return CommitResult{}, err
	}
	if report.HasBlocking() {
		return rejected(bookingID, report), nil
	}

	now := m.clock.Now()
	occ := domain.Occupancy{
		ID:         m.newID(),
		ResourceID: res.ID,
		BookingID:  bookingID,
		Quantity:   req.Quantity,
		Interval:   req.Interval,
		State:      domain.StatePending,
		CreatedAt:  now,
		ExpiresAt:  now.Add(m.cfg.HoldTimeout),
	}
	if err := m.idx.Insert(occ); err != nil {
		return CommitResult{}, fmt.Errorf("failed to hold %s: %w", res.ID, err)
	}
	m.logger.Debug("hold placed",
		"booking", bookingID,
		"resource", res.ID,
		"interval", req.Interval.String(),
		"expires_at", occ.ExpiresAt,
	)
	return CommitResult{
		BookingID:   bookingID,
		State:       StateHolding,
		Occupancies: []domain.Occupancy{occ},
		Advisories:  report.Advisories(),
	}, nil
}

// Confirm turns the booking's PENDING holds into CONFIRMED occupancies. The
// re-check counts CONFIRMED occupancies and holds created before this one;
// if it fails the hold is dropped and the result is REJECTED with RaceLost.
// Confirming an already confirmed booking returns it unchanged.
func (m *Manager) Confirm(ctx context.Context, bookingID string) (CommitResult, error) {
	refs := m.idx.ByBooking(bookingID)
	if len(refs) == 0 {
		return CommitResult{}, fmt.Errorf("%w: %s", domain.ErrHoldNotFound, bookingID)
	}

	// Catalog reads stay outside the critical section.
	resources := make(map[string]domain.EquipmentResource, len(refs))
	ids := make([]string, 0, len(refs))
	for _, ref := range refs {
		if _, ok := resources[ref.ResourceID]; ok {
			continue
		}
		res, err := m.catalog.GetResource(ctx, ref.ResourceID)
		if err != nil {
			return CommitResult{}, err
		}
		resources[ref.ResourceID] = res
		ids = append(ids, ref.ResourceID)
	}

	unlock := m.idx.Lock(ids...)
	result, dropped, err := m.confirmLocked(ctx, bookingID, refs, resources)
	unlock()

	m.freed(dropped)
	if err != nil {
		return CommitResult{}, err
	}
	return result, nil
}

// confirmLocked returns the result and the holds it dropped. Records are
// emitted before the locks are released so a concurrent Release can only
// retract after them.
func (m *Manager) confirmLocked(ctx context.Context, bookingID string, refs []index.Ref, resources map[string]domain.EquipmentResource) (result CommitResult, dropped []domain.Occupancy, err error) {
	now := m.clock.Now()
	var pending, confirmed []domain.Occupancy
	for _, ref := range refs {
		occ, err := m.idx.Get(ref.OccupancyID)
		if errors.Is(err, index.ErrOccupancyNotFound) {
			continue
		}
		if err != nil {
			return CommitResult{}, nil, err
		}
		switch occ.State {
		case domain.StatePending:
			pending = append(pending, occ)
		case domain.StateConfirmed:
			confirmed = append(confirmed, occ)
		}
	}

	if len(pending) == 0 {
		if len(confirmed) > 0 {
			return CommitResult{BookingID: bookingID, State: StateConfirmed, Occupancies: confirmed}, nil, nil
		}
		return CommitResult{}, nil, fmt.Errorf("%w: %s", domain.ErrHoldNotFound, bookingID)
	}

	for _, occ := range pending {
		if !occ.ExpiresAt.After(now) {
			m.drop(pending)
			m.logger.Info("hold expired before confirmation", "booking", bookingID, "resource", occ.ResourceID)
			return CommitResult{}, pending, fmt.Errorf("%w: hold for booking %s expired", domain.ErrHoldNotFound, bookingID)
		}
	}

	for _, occ := range pending {
		res := resources[occ.ResourceID]
		// Explain also covers a resource that left AVAILABLE or shrank since the hold.
		report := conflict.Explain(res, occ.Interval, occ.Quantity, m.competing(occ), 0)
		if !report.HasBlocking() {
			continue
		}
		m.drop(pending)
		report.Note = "window changed before confirmation"
		m.logger.Info("confirmation lost race",
			"booking", bookingID,
			"resource", occ.ResourceID,
			"interval", occ.Interval.String(),
		)
		return CommitResult{BookingID: bookingID, State: StateRejected, Report: &report, RaceLost: true}, pending, nil
	}

	out := make([]domain.Occupancy, 0, len(pending)+len(confirmed))
	out = append(out, confirmed...)
	for _, occ := range pending {
		if err := m.idx.UpdateState(occ.ID, domain.StateConfirmed); err != nil {
			return CommitResult{}, nil, fmt.Errorf("failed to confirm %s: %w", occ.ID, err)
		}
		occ.State = domain.StateConfirmed
		occ.ExpiresAt = time.Time{}
		out = append(out, occ)
		m.record(ctx, occ, now)
	}
	m.logger.Info("booking confirmed", "booking", bookingID, "occupancies", len(out))
	return CommitResult{BookingID: bookingID, State: StateConfirmed, Occupancies: out}, nil, nil
}

// competing returns what a hold must fit next to: CONFIRMED occupancies and
// holds created before it. Ties on CreatedAt go to the smaller id.
func (m *Manager) competing(occ domain.Occupancy) []domain.Occupancy {
	var out []domain.Occupancy
	for _, o := range m.idx.Query(occ.ResourceID, occ.Interval) {
		if o.ID == occ.ID {
			continue
		}
		switch o.State {
		case domain.StateConfirmed:
			out = append(out, o)
		case domain.StatePending:
			if o.CreatedAt.Before(occ.CreatedAt) || (o.CreatedAt.Equal(occ.CreatedAt) && o.ID < occ.ID) {
				out = append(out, o)
			}
		}
	}
	return out
}

// drop discards holds. The caller holds their resource locks.
func (m *Manager) drop(holds []domain.Occupancy) {
	for _, occ := range holds {
		if err := m.idx.Remove(occ.ID); err != nil && !errors.Is(err, index.ErrOccupancyNotFound) {
			m.logger.Error("failed to drop hold", "occupancy", occ.ID, "error", err)
		}
	}
}

// Modify moves a CONFIRMED single-resource booking to a new interval,
// quantity or resource. The booking's own occupancy is ignored while
// checking, and the swap happens under one lock.
func (m *Manager) Modify(ctx context.Context, bookingID string, req domain.ReservationRequest) (CommitResult, error) {
	refs := m.idx.ByBooking(bookingID)
	if len(refs) == 0 {
		return CommitResult{}, fmt.Errorf("%w: %s", domain.ErrBookingNotFound, bookingID)
	}
	if len(refs) > 1 {
		return CommitResult{}, fmt.Errorf("%w: booking %s spans %d occupancies", domain.ErrInvalidRequest, bookingID, len(refs))
	}
	ref := refs[0]
	if req.ResourceID == "" {
		req.ResourceID = ref.ResourceID
	}
	req.ExcludeBookingID = bookingID
	if err := m.validate(req); err != nil {
		return CommitResult{}, err
	}

	res, err := m.catalog.GetResource(ctx, req.ResourceID)
	if err != nil {
		return CommitResult{}, err
	}
	report, err := m.reader.Detect(res, req.Interval, req.Quantity, bookingID)
	if err != nil {
		return CommitResult{}, err
	}
	if report.HasBlocking() {
		return rejected(bookingID, report), nil
	}

	unlock := m.idx.Lock(ref.ResourceID, res.ID)
	old, occ, report, err := m.modifyLocked(bookingID, ref, res, req)
	if err == nil && !report.HasBlocking() {
		now := m.clock.Now()
		m.retract(ctx, old, now)
		m.record(ctx, occ, now)
	}
	unlock()
	if err != nil {
		return CommitResult{}, err
	}
	if report.HasBlocking() {
		return rejected(bookingID, report), nil
	}

	m.freed([]domain.Occupancy{old})
	m.logger.Info("booking modified",
		"booking", bookingID,
		"from", old.Interval.String(),
		"to", occ.Interval.String(),
		"resource", occ.ResourceID,
	)
	return CommitResult{
		BookingID:   bookingID,
		State:       StateConfirmed,
		Occupancies: []domain.Occupancy{occ},
		Advisories:  report.Advisories(),
	}, nil
}

func (m *Manager) modifyLocked(bookingID string, ref index.Ref, res domain.EquipmentResource, req domain.ReservationRequest) (old, occ domain.Occupancy, report domain.ConflictReport, err error) {
	old, err = m.idx.Get(ref.OccupancyID)
	if errors.Is(err, index.ErrOccupancyNotFound) {
		return old, occ, report, fmt.Errorf("%w: %s", domain.ErrBookingNotFound, bookingID)
	}
	if err != nil {
		return old, occ, report, err
	}
	if old.State != domain.StateConfirmed {
		return old, occ, report, fmt.Errorf("%w: booking %s is not confirmed", domain.ErrBookingNotFound, bookingID)
	}

	report, err = m.locked.Detect(res, req.Interval, req.Quantity, bookingID)
	if err != nil || report.HasBlocking() {
		return old, occ, report, err
	}

	occ = domain.Occupancy{
		ID:         m.newID(),
		ResourceID: res.ID,
		BookingID:  bookingID,
		Quantity:   req.Quantity,
		Interval:   req.Interval,
		State:      domain.StateConfirmed,
		CreatedAt:  m.clock.Now(),
	}
	if err = m.idx.Insert(occ); err != nil {
		return old, occ, report, fmt.Errorf("failed to insert modified occupancy: %w", err)
	}
	if err = m.idx.UpdateState(old.ID, domain.StateCancelled); err != nil {
		_ = m.idx.Remove(occ.ID)
		return old, occ, report, fmt.Errorf("failed to cancel occupancy %s: %w", old.ID, err)
	}
	old.State = domain.StateCancelled
	return old, occ, report, nil
}

// Release cancels a booking. CONFIRMED occupancies become CANCELLED and are
// retracted, PENDING holds are discarded. Unknown or already released
// bookings are a no-op.
func (m *Manager) Release(ctx context.Context, bookingID string) error {
	refs := m.idx.ByBooking(bookingID)
	if len(refs) == 0 {
		return nil
	}
	ids := make([]string, 0, len(refs))
	for _, ref := range refs {
		ids = append(ids, ref.ResourceID)
	}

	unlock := m.idx.Lock(ids...)
	var cancelled, freed []domain.Occupancy
	var err error
	for _, ref := range refs {
		occ, getErr := m.idx.Get(ref.OccupancyID)
		if getErr != nil {
			continue
		}
		switch occ.State {
		case domain.StatePending:
			err = m.idx.Remove(occ.ID)
		case domain.StateConfirmed:
			if err = m.idx.UpdateState(occ.ID, domain.StateCancelled); err == nil {
				occ.State = domain.StateCancelled
				cancelled = append(cancelled, occ)
			}
		}
		if err != nil {
			break
		}
		freed = append(freed, occ)
	}
	now := m.clock.Now()
	for _, occ := range cancelled {
		m.retract(ctx, occ, now)
	}
	unlock()

	m.freed(freed)
	if err != nil {
		return fmt.Errorf("failed to release booking %s: %w", bookingID, err)
	}
	if len(freed) > 0 {
		m.logger.Info("booking released", "booking", bookingID, "occupancies", len(freed))
	}
	return nil
}

// ReserveAll confirms every request under one booking, or none of them.
// Resources are locked together in ascending id order.
func (m *Manager) ReserveAll(ctx context.Context, reqs []domain.ReservationRequest, bookingID string) (CommitResult, error) {
	if len(reqs) == 0 {
		return CommitResult{}, fmt.Errorf("%w: no requests", domain.ErrInvalidRequest)
	}
	bookingID = m.bookingID(bookingID)
	if len(m.idx.ByBooking(bookingID)) > 0 {
		return CommitResult{}, fmt.Errorf("%w: %s", domain.ErrBookingExists, bookingID)
	}

	resources := make(map[string]domain.EquipmentResource, len(reqs))
	ids := make([]string, 0, len(reqs))
	for _, req := range reqs {
		if err := m.validate(req); err != nil {
			return CommitResult{}, err
		}
		if req.ResourceID == "" {
			return CommitResult{}, fmt.Errorf("%w: every item needs a resource id", domain.ErrMissingResource)
		}
		if _, ok := resources[req.ResourceID]; ok {
			continue
		}
		res, err := m.catalog.GetResource(ctx, req.ResourceID)
		if err != nil {
			return CommitResult{}, err
		}
		resources[req.ResourceID] = res
		ids = append(ids, req.ResourceID)
	}

	unlock := m.idx.Lock(ids...)
	result, err := m.reserveAllLocked(reqs, resources, bookingID)
	if err == nil && result.State == StateConfirmed {
		now := m.clock.Now()
		for _, occ := range result.Occupancies {
			m.record(ctx, occ, now)
		}
	}
	unlock()
	if err != nil || result.State != StateConfirmed {
		return result, err
	}

	m.logger.Info("booking confirmed", "booking", bookingID, "occupancies", len(result.Occupancies))
	return result, nil
}

func (m *Manager) reserveAllLocked(reqs []domain.ReservationRequest, resources map[string]domain.EquipmentResource, bookingID string) (CommitResult, error) {
	now := m.clock.Now()
	var (
		inserted   []domain.Occupancy
		advisories []domain.ConflictEntry
	)
	for _, req := range reqs {
		res := resources[req.ResourceID]
		// Earlier items of this booking are already in the index and count.
		report, err := m.locked.Detect(res, req.Interval, req.Quantity, "")
		if err == nil && report.HasBlocking() {
			m.drop(inserted)
			return rejected(bookingID, report), nil
		}
		if err != nil {
			m.drop(inserted)
			return CommitResult{}, err
		}
		occ := domain.Occupancy{
			ID:         m.newID(),
			ResourceID: res.ID,
			BookingID:  bookingID,
			Quantity:   req.Quantity,
			Interval:   req.Interval,
			State:      domain.StateConfirmed,
			CreatedAt:  now,
		}
		if err := m.idx.Insert(occ); err != nil {
			m.drop(inserted)
			return CommitResult{}, fmt.Errorf("failed to insert occupancy for %s: %w", res.ID, err)
		}
		inserted = append(inserted, occ)
		advisories = append(advisories, report.Advisories()...)
	}
	return CommitResult{
		BookingID:   bookingID,
		State:       StateConfirmed,
		Occupancies: inserted,
		Advisories:  advisories,
	}, nil
}

// ExpireHolds discards PENDING holds past their expiry and returns how many
// were released.
func (m *Manager) ExpireHolds(ctx context.Context) int {
	now := m.clock.Now()
	var released []domain.Occupancy
	for _, occ := range m.idx.Expired(now) {
		if ctx.Err() != nil {
			break
		}
		unlock := m.idx.Lock(occ.ResourceID)
		cur, err := m.idx.Get(occ.ID)
		ok := err == nil && cur.State == domain.StatePending && !cur.ExpiresAt.After(now)
		if ok {
			ok = m.idx.Remove(cur.ID) == nil
		}
		unlock()
		if ok {
			m.logger.Info("hold timed out",
				"booking", cur.BookingID,
				"resource", cur.ResourceID,
				"expired_at", cur.ExpiresAt,
			)
			released = append(released, cur)
		}
	}
	m.freed(released)
	return len(released)
}

// StartReaper runs ExpireHolds on every tick until ctx is cancelled.
func (m *Manager) StartReaper(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := m.ExpireHolds(ctx); n > 0 {
					m.logger.Debug("reaper pass", "released", n)
				}
			}
		}
	}()
}

// Restore loads persisted CONFIRMED occupancies into the index, e.g. at startup.
func (m *Manager) Restore(occs []domain.Occupancy) error {
	for _, occ := range occs {
		unlock := m.idx.Lock(occ.ResourceID)
		err := m.idx.Insert(occ)
		unlock()
		if err != nil && !errors.Is(err, index.ErrDuplicateOccupancy) {
			return fmt.Errorf("failed to restore occupancy %s: %w", occ.ID, err)
		}
	}
	return nil
}

// record and retract are called with the occupancy's resource lock held, so
// the sink sees one occupancy's events in commit order. A cancelled request
// must not drop them.
func (m *Manager) record(ctx context.Context, occ domain.Occupancy, at time.Time) {
	if err := m.sink.Record(context.WithoutCancel(ctx), domain.RecordOf(occ, at)); err != nil {
		m.logger.Error("failed to emit booking record", "occupancy", occ.ID, "error", err)
	}
}

func (m *Manager) retract(ctx context.Context, occ domain.Occupancy, at time.Time) {
	if err := m.sink.Retract(context.WithoutCancel(ctx), domain.RecordOf(occ, at)); err != nil {
		m.logger.Error("failed to emit booking retraction", "occupancy", occ.ID, "error", err)
	}
}

func (m *Manager) freed(occs []domain.Occupancy) {
	if m.notifier == nil {
		return
	}
	seen := make(map[string]struct{}, len(occs))
	for _, occ := range occs {
		if _, ok := seen[occ.ResourceID]; ok {
			continue
		}
		seen[occ.ResourceID] = struct{}{}
		m.notifier.Dispatch(occ.ResourceID)
	}
}
