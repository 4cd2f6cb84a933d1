package reservation

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rental-availability-backend/internal/domain"
	"rental-availability-backend/internal/index"
)

func jan(day, hour int) time.Time {
	return time.Date(2025, time.January, day, hour, 0, 0, 0, time.UTC)
}

func span(start, end time.Time) domain.Interval {
	return domain.Interval{Start: start, End: end}
}

// testClock is a settable clock.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// testCatalog lets tests change a resource between calls.
type testCatalog struct {
	mu   sync.Mutex
	byID map[string]domain.EquipmentResource
}

func newTestCatalog(resources ...domain.EquipmentResource) *testCatalog {
	c := &testCatalog{byID: make(map[string]domain.EquipmentResource)}
	for _, r := range resources {
		c.byID[r.ID] = r
	}
	return c
}

func (c *testCatalog) set(r domain.EquipmentResource) {
	c.mu.Lock()
	c.byID[r.ID] = r
	c.mu.Unlock()
}

func (c *testCatalog) GetResource(_ context.Context, id string) (domain.EquipmentResource, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.byID[id]
	if !ok {
		return domain.EquipmentResource{}, domain.ErrResourceNotFound
	}
	return r, nil
}

func (c *testCatalog) ListSiblings(_ context.Context, categoryID string) ([]domain.EquipmentResource, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []domain.EquipmentResource
	for _, r := range c.byID {
		if r.CategoryID == categoryID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type recordingSink struct {
	mu        sync.Mutex
	records   []domain.BookingRecord
	retracted []domain.BookingRecord
	events    []string

	// onRecord runs once, before the first record is stored.
	onRecord func()
	once     sync.Once
}

func (s *recordingSink) Record(_ context.Context, rec domain.BookingRecord) error {
	if s.onRecord != nil {
		s.once.Do(s.onRecord)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	s.events = append(s.events, "record:"+rec.OccupancyID)
	return nil
}

func (s *recordingSink) Retract(_ context.Context, rec domain.BookingRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.retracted = append(s.retracted, rec)
	s.events = append(s.events, "retract:"+rec.OccupancyID)
	return nil
}

func (s *recordingSink) snapshot() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.events...)
}

type recordingNotifier struct {
	mu  sync.Mutex
	ids []string
}

func (n *recordingNotifier) Dispatch(resourceID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.ids = append(n.ids, resourceID)
}

type fixture struct {
	idx      *index.Index
	catalog  *testCatalog
	clock    *testClock
	sink     *recordingSink
	notifier *recordingNotifier
	manager  *Manager
}

func newFixture(t *testing.T, cfg Config, resources ...domain.EquipmentResource) *fixture {
	t.Helper()
	f := &fixture{
		idx:      index.New(),
		catalog:  newTestCatalog(resources...),
		clock:    &testClock{now: jan(1, 0)},
		sink:     &recordingSink{},
		notifier: &recordingNotifier{},
	}
	f.manager = NewManager(f.idx, f.catalog, f.clock, cfg, nil).
		WithSink(f.sink).
		WithNotifier(f.notifier)
	return f
}

func camera(id string, capacity int) domain.EquipmentResource {
	return domain.EquipmentResource{ID: id, CategoryID: "cams", Capacity: capacity, Status: domain.StatusAvailable, DailyRate: 100}
}

func request(resourceID string, qty int, iv domain.Interval) domain.ReservationRequest {
	return domain.ReservationRequest{ResourceID: resourceID, Quantity: qty, Interval: iv}
}

func TestReserve_ConfirmsAndEmits(t *testing.T) {
	f := newFixture(t, DefaultConfig(), camera("cam-1", 1))

	result, err := f.manager.Reserve(context.Background(), request("cam-1", 1, span(jan(10, 9), jan(15, 18))), "B-1")
	require.NoError(t, err)
	assert.Equal(t, StateConfirmed, result.State)
	assert.Equal(t, "B-1", result.BookingID)
	require.Len(t, result.Occupancies, 1)
	assert.Equal(t, domain.StateConfirmed, result.Occupancies[0].State)
	assert.True(t, result.Occupancies[0].ExpiresAt.IsZero())

	require.Len(t, f.sink.records, 1)
	assert.Equal(t, "B-1", f.sink.records[0].BookingID)

	// Same window is now taken; the touching window is not.
	busy, err := f.manager.Reserve(context.Background(), request("cam-1", 1, span(jan(12, 0), jan(14, 0))), "B-2")
	require.NoError(t, err)
	assert.Equal(t, StateRejected, busy.State)
	require.NotNil(t, busy.Report)
	require.Len(t, busy.Report.Blocking(), 1)
	assert.Equal(t, "B-1", busy.Report.Blocking()[0].BookingID)

	next, err := f.manager.Reserve(context.Background(), request("cam-1", 1, span(jan(15, 18), jan(20, 0))), "B-3")
	require.NoError(t, err)
	assert.Equal(t, StateConfirmed, next.State)
}

func TestReserve_GeneratesBookingID(t *testing.T) {
	f := newFixture(t, DefaultConfig(), camera("cam-1", 1))

	result, err := f.manager.Reserve(context.Background(), request("cam-1", 1, span(jan(10, 0), jan(11, 0))), "")
	require.NoError(t, err)
	assert.NotEmpty(t, result.BookingID)
	assert.Equal(t, StateConfirmed, result.State)
}

func TestReserve_ConcurrentRequestsHaveOneWinner(t *testing.T) {
	f := newFixture(t, DefaultConfig(), camera("cam-1", 1))
	iv := span(jan(10, 9), jan(15, 18))

	const n = 32
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results []CommitResult
	)
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			res, err := f.manager.Reserve(context.Background(), request("cam-1", 1, iv), fmt.Sprintf("B-%02d", i))
			assert.NoError(t, err)
			mu.Lock()
			results = append(results, res)
			mu.Unlock()
		}(i)
	}
	close(start)
	wg.Wait()

	confirmed := 0
	for _, r := range results {
		switch r.State {
		case StateConfirmed:
			confirmed++
		case StateRejected:
			require.NotNil(t, r.Report)
			assert.True(t, r.Report.HasBlocking())
		default:
			t.Fatalf("unexpected state %s", r.State)
		}
	}
	assert.Equal(t, 1, confirmed)
	assert.Len(t, f.sink.records, 1)
}

func TestReserve_CapacityNeverExceeded(t *testing.T) {
	const capacity = 3
	f := newFixture(t, DefaultConfig(), camera("bulk", capacity))
	rng := rand.New(rand.NewSource(42))

	type job struct {
		iv  domain.Interval
		qty int
	}
	jobs := make([]job, 200)
	for i := range jobs {
		start := jan(1, 0).Add(time.Duration(rng.Intn(240)) * time.Hour)
		jobs[i] = job{
			iv:  span(start, start.Add(time.Duration(1+rng.Intn(72))*time.Hour)),
			qty: 1 + rng.Intn(2),
		}
	}

	var wg sync.WaitGroup
	for i, j := range jobs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.manager.Reserve(context.Background(), request("bulk", j.qty, j.iv), fmt.Sprintf("B-%03d", i))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	active, _ := f.idx.Snapshot("bulk")
	require.NotEmpty(t, active)
	for _, probe := range active {
		used := 0
		for _, o := range active {
			require.Equal(t, domain.StateConfirmed, o.State)
			if o.Interval.Contains(probe.Interval.Start) {
				used += o.Quantity
			}
		}
		assert.LessOrEqual(t, used, capacity, "over capacity at %s", probe.Interval.Start)
	}
}

func TestReserve_Validation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RejectPastIntervals = true
	f := newFixture(t, cfg, camera("cam-1", 2))
	ctx := context.Background()

	testCases := []struct {
		name string
		req  domain.ReservationRequest
		want error
	}{
		{name: "zero length", req: request("cam-1", 1, span(jan(10, 0), jan(10, 0))), want: domain.ErrInvalidInterval},
		{name: "inverted", req: request("cam-1", 1, span(jan(12, 0), jan(10, 0))), want: domain.ErrInvalidInterval},
		{name: "zero quantity", req: request("cam-1", 0, span(jan(10, 0), jan(11, 0))), want: domain.ErrInvalidQuantity},
		{name: "no resource", req: domain.ReservationRequest{Quantity: 1, Interval: span(jan(10, 0), jan(11, 0))}, want: domain.ErrMissingResource},
		{name: "in the past", req: request("cam-1", 1, span(time.Date(2024, 12, 30, 0, 0, 0, 0, time.UTC), jan(2, 0))), want: domain.ErrIntervalInPast},
		{name: "unknown resource", req: request("ghost", 1, span(jan(10, 0), jan(11, 0))), want: domain.ErrResourceNotFound},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.manager.Reserve(ctx, tc.req, "")
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.want)
			assert.ErrorIs(t, err, domain.ErrInvalidRequest)
		})
	}

	result, err := f.manager.Reserve(ctx, request("cam-1", 3, span(jan(10, 0), jan(11, 0))), "")
	require.NoError(t, err, "over-capacity is a decision, not an error")
	assert.Equal(t, StateRejected, result.State)
	assert.Equal(t, domain.ReasonInsufficientCapacity, result.Report.Reason)
}

func TestHold_DuplicateBookingID(t *testing.T) {
	f := newFixture(t, DefaultConfig(), camera("cam-1", 2))
	ctx := context.Background()

	_, err := f.manager.Hold(ctx, request("cam-1", 1, span(jan(10, 0), jan(11, 0))), "B-1")
	require.NoError(t, err)
	_, err = f.manager.Hold(ctx, request("cam-1", 1, span(jan(12, 0), jan(13, 0))), "B-1")
	assert.ErrorIs(t, err, domain.ErrBookingExists)
}

func TestHold_BlocksCompetitorsUntilExpiry(t *testing.T) {
	f := newFixture(t, DefaultConfig(), camera("cam-1", 1))
	ctx := context.Background()
	iv := span(jan(10, 0), jan(12, 0))

	held, err := f.manager.Hold(ctx, request("cam-1", 1, iv), "B-1")
	require.NoError(t, err)
	require.Equal(t, StateHolding, held.State)
	assert.Equal(t, jan(1, 0).Add(5*time.Minute), held.Occupancies[0].ExpiresAt)

	other, err := f.manager.Reserve(ctx, request("cam-1", 1, iv), "B-2")
	require.NoError(t, err)
	assert.Equal(t, StateRejected, other.State)
	assert.Equal(t, domain.StatePending, other.Report.Blocking()[0].State)

	f.clock.Advance(5 * time.Minute)
	assert.Equal(t, 1, f.manager.ExpireHolds(ctx))
	assert.Equal(t, 0, f.manager.ExpireHolds(ctx))
	assert.Equal(t, []string{"cam-1"}, f.notifier.ids)

	_, err = f.manager.Confirm(ctx, "B-1")
	assert.ErrorIs(t, err, domain.ErrHoldNotFound)

	retry, err := f.manager.Reserve(ctx, request("cam-1", 1, iv), "B-2")
	require.NoError(t, err)
	assert.Equal(t, StateConfirmed, retry.State)
}

func TestConfirm_ExpiredHoldIsDropped(t *testing.T) {
	f := newFixture(t, Config{HoldTimeout: time.Minute}, camera("cam-1", 1))
	ctx := context.Background()

	_, err := f.manager.Hold(ctx, request("cam-1", 1, span(jan(10, 0), jan(12, 0))), "B-1")
	require.NoError(t, err)
	f.clock.Advance(time.Minute)

	_, err = f.manager.Confirm(ctx, "B-1")
	assert.ErrorIs(t, err, domain.ErrHoldNotFound)
	active, _ := f.idx.Snapshot("cam-1")
	assert.Empty(t, active)
	assert.Empty(t, f.sink.records)
	assert.Equal(t, []string{"cam-1"}, f.notifier.ids)
}

func TestConfirm_RaceLostNamesTheWinner(t *testing.T) {
	f := newFixture(t, DefaultConfig(), camera("cam-1", 2))
	ctx := context.Background()
	iv := span(jan(10, 0), jan(12, 0))

	first, err := f.manager.Hold(ctx, request("cam-1", 1, iv), "B-1")
	require.NoError(t, err)
	f.clock.Advance(time.Second)
	_, err = f.manager.Hold(ctx, request("cam-1", 1, iv), "B-2")
	require.NoError(t, err)

	// One unit goes out of service between CHECKING and CONFIRMING.
	f.catalog.set(camera("cam-1", 1))

	lost, err := f.manager.Confirm(ctx, "B-2")
	require.NoError(t, err)
	assert.Equal(t, StateRejected, lost.State)
	assert.True(t, lost.RaceLost)
	require.NotNil(t, lost.Report)
	blocking := lost.Report.Blocking()
	require.Len(t, blocking, 1)
	assert.Equal(t, first.Occupancies[0].ID, blocking[0].OccupancyID)
	assert.Empty(t, f.idx.ByBooking("B-2"), "losing hold is discarded")

	won, err := f.manager.Confirm(ctx, "B-1")
	require.NoError(t, err)
	assert.Equal(t, StateConfirmed, won.State)
	assert.False(t, won.RaceLost)
}

func TestConfirm_Idempotent(t *testing.T) {
	f := newFixture(t, DefaultConfig(), camera("cam-1", 1))
	ctx := context.Background()

	_, err := f.manager.Reserve(ctx, request("cam-1", 1, span(jan(10, 0), jan(12, 0))), "B-1")
	require.NoError(t, err)
	again, err := f.manager.Confirm(ctx, "B-1")
	require.NoError(t, err)
	assert.Equal(t, StateConfirmed, again.State)
	assert.Len(t, f.sink.records, 1)

	_, err = f.manager.Confirm(ctx, "nope")
	assert.ErrorIs(t, err, domain.ErrHoldNotFound)
}

func TestModify_IgnoresOwnOccupancy(t *testing.T) {
	f := newFixture(t, DefaultConfig(), camera("cam-1", 1))
	ctx := context.Background()

	_, err := f.manager.Reserve(ctx, request("cam-1", 1, span(jan(10, 0), jan(15, 0))), "B-1")
	require.NoError(t, err)
	_, err = f.manager.Reserve(ctx, request("cam-1", 1, span(jan(17, 0), jan(20, 0))), "B-2")
	require.NoError(t, err)

	moved, err := f.manager.Modify(ctx, "B-1", domain.ReservationRequest{Quantity: 1, Interval: span(jan(12, 0), jan(17, 0))})
	require.NoError(t, err)
	assert.Equal(t, StateConfirmed, moved.State)
	require.Len(t, moved.Occupancies, 1)
	assert.True(t, moved.Occupancies[0].Interval.Equal(span(jan(12, 0), jan(17, 0))))

	refs := f.idx.ByBooking("B-1")
	require.Len(t, refs, 1)
	assert.Equal(t, moved.Occupancies[0].ID, refs[0].OccupancyID)
	_, cancelled := f.idx.Snapshot("cam-1")
	require.Len(t, cancelled, 1, "the replaced occupancy is kept for audit")

	require.Len(t, f.sink.retracted, 1)
	assert.Len(t, f.sink.records, 3)

	blocked, err := f.manager.Modify(ctx, "B-1", domain.ReservationRequest{Quantity: 1, Interval: span(jan(16, 0), jan(18, 0))})
	require.NoError(t, err)
	assert.Equal(t, StateRejected, blocked.State)
	assert.Equal(t, "B-2", blocked.Report.Blocking()[0].BookingID)

	_, err = f.manager.Modify(ctx, "nope", domain.ReservationRequest{Quantity: 1, Interval: span(jan(16, 0), jan(18, 0))})
	assert.ErrorIs(t, err, domain.ErrBookingNotFound)
}

func TestRelease_Idempotent(t *testing.T) {
	f := newFixture(t, DefaultConfig(), camera("cam-1", 1))
	ctx := context.Background()
	iv := span(jan(10, 0), jan(12, 0))

	_, err := f.manager.Reserve(ctx, request("cam-1", 1, iv), "B-1")
	require.NoError(t, err)

	require.NoError(t, f.manager.Release(ctx, "B-1"))
	require.NoError(t, f.manager.Release(ctx, "B-1"))
	require.NoError(t, f.manager.Release(ctx, "never-existed"))

	assert.Len(t, f.sink.retracted, 1)
	assert.Equal(t, []string{"cam-1"}, f.notifier.ids)

	again, err := f.manager.Reserve(ctx, request("cam-1", 1, iv), "B-2")
	require.NoError(t, err)
	assert.Equal(t, StateConfirmed, again.State)
}

func TestRelease_DiscardsHold(t *testing.T) {
	f := newFixture(t, DefaultConfig(), camera("cam-1", 1))
	ctx := context.Background()

	_, err := f.manager.Hold(ctx, request("cam-1", 1, span(jan(10, 0), jan(12, 0))), "B-1")
	require.NoError(t, err)
	require.NoError(t, f.manager.Release(ctx, "B-1"))

	active, cancelled := f.idx.Snapshot("cam-1")
	assert.Empty(t, active)
	assert.Empty(t, cancelled, "holds are not audited")
	assert.Empty(t, f.sink.retracted)
}

func TestReserve_AnyEquivalentItem(t *testing.T) {
	f := newFixture(t, DefaultConfig(), camera("cam-1", 1), camera("cam-2", 1), camera("cam-3", 1))
	ctx := context.Background()
	iv := span(jan(10, 0), jan(12, 0))

	_, err := f.manager.Reserve(ctx, request("cam-1", 1, iv), "B-1")
	require.NoError(t, err)

	anyCam := domain.ReservationRequest{CategoryID: "cams", Quantity: 1, Interval: iv}
	got, err := f.manager.Reserve(ctx, anyCam, "B-2")
	require.NoError(t, err)
	require.Equal(t, StateConfirmed, got.State)
	assert.Equal(t, "cam-2", got.Occupancies[0].ResourceID)

	_, err = f.manager.Reserve(ctx, anyCam, "B-3")
	require.NoError(t, err)
	none, err := f.manager.Reserve(ctx, anyCam, "B-4")
	require.NoError(t, err)
	assert.Equal(t, StateRejected, none.State)
	assert.Equal(t, "cam-1", none.Report.ResourceID)

	empty, err := f.manager.Reserve(ctx, domain.ReservationRequest{CategoryID: "lights", Quantity: 1, Interval: iv}, "")
	require.NoError(t, err)
	assert.Equal(t, StateRejected, empty.State)
	assert.NotEmpty(t, empty.Report.Note)
}

func TestReserveAll_AllOrNothing(t *testing.T) {
	f := newFixture(t, DefaultConfig(), camera("cam-1", 1), camera("cam-2", 1))
	ctx := context.Background()
	iv := span(jan(10, 0), jan(12, 0))

	_, err := f.manager.Reserve(ctx, request("cam-2", 1, iv), "B-1")
	require.NoError(t, err)

	result, err := f.manager.ReserveAll(ctx, []domain.ReservationRequest{
		request("cam-1", 1, iv),
		request("cam-2", 1, iv),
	}, "B-2")
	require.NoError(t, err)
	assert.Equal(t, StateRejected, result.State)
	active, _ := f.idx.Snapshot("cam-1")
	assert.Empty(t, active, "nothing is left behind on rejection")

	require.NoError(t, f.manager.Release(ctx, "B-1"))
	result, err = f.manager.ReserveAll(ctx, []domain.ReservationRequest{
		request("cam-2", 1, iv),
		request("cam-1", 1, iv),
	}, "B-2")
	require.NoError(t, err)
	assert.Equal(t, StateConfirmed, result.State)
	assert.Len(t, result.Occupancies, 2)

	// Two items of the same booking count against each other.
	f.catalog.set(camera("cam-3", 1))
	result, err = f.manager.ReserveAll(ctx, []domain.ReservationRequest{
		request("cam-3", 1, iv),
		request("cam-3", 1, iv),
	}, "B-3")
	require.NoError(t, err)
	assert.Equal(t, StateRejected, result.State)
}

func TestReserve_TurnaroundIsAdvisory(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinimumTurnaround = 2 * time.Hour
	f := newFixture(t, cfg, camera("cam-1", 1))
	ctx := context.Background()

	_, err := f.manager.Reserve(ctx, request("cam-1", 1, span(jan(10, 0), jan(10, 9))), "B-1")
	require.NoError(t, err)

	result, err := f.manager.Reserve(ctx, request("cam-1", 1, span(jan(10, 10), jan(11, 0))), "B-2")
	require.NoError(t, err)
	assert.Equal(t, StateConfirmed, result.State)
	require.Len(t, result.Advisories, 1)
	assert.Equal(t, domain.KindTurnaround, result.Advisories[0].Kind)
	assert.Equal(t, "B-1", result.Advisories[0].BookingID)
}

func TestReaper_ReleasesExpiredHolds(t *testing.T) {
	f := newFixture(t, Config{HoldTimeout: time.Millisecond}, camera("cam-1", 1))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := f.manager.Hold(ctx, request("cam-1", 1, span(jan(10, 0), jan(12, 0))), "B-1")
	require.NoError(t, err)
	f.clock.Advance(time.Second)

	f.manager.StartReaper(ctx, 5*time.Millisecond)
	assert.Eventually(t, func() bool {
		return len(f.idx.ByBooking("B-1")) == 0
	}, time.Second, 5*time.Millisecond)
}

func TestRestore(t *testing.T) {
	f := newFixture(t, DefaultConfig(), camera("cam-1", 1))
	occ := domain.Occupancy{
		ID: "o-1", ResourceID: "cam-1", BookingID: "B-1", Quantity: 1,
		Interval: span(jan(10, 0), jan(12, 0)), State: domain.StateConfirmed,
	}
	require.NoError(t, f.manager.Restore([]domain.Occupancy{occ, occ}))

	result, err := f.manager.Reserve(context.Background(), request("cam-1", 1, span(jan(11, 0), jan(13, 0))), "B-2")
	require.NoError(t, err)
	assert.Equal(t, StateRejected, result.State)
}

// releaseDuringFirstRecord starts a Release of bookingID from inside the
// first sink Record and gives it time to run before the record is stored.
func releaseDuringFirstRecord(f *fixture, bookingID string) <-chan error {
	done := make(chan error, 1)
	f.sink.onRecord = func() {
		go func() { done <- f.manager.Release(context.Background(), bookingID) }()
		time.Sleep(50 * time.Millisecond)
	}
	return done
}

// assertRecordBeforeRetract checks every occupancy's first event is its record.
func assertRecordBeforeRetract(t *testing.T, events []string) {
	t.Helper()
	seen := make(map[string]bool)
	for _, ev := range events {
		kind, id, ok := strings.Cut(ev, ":")
		require.True(t, ok, ev)
		if !seen[id] {
			assert.Equal(t, "record", kind, "first event for occupancy %s in %v", id, events)
			seen[id] = true
		}
	}
}

func TestFeedOrder_ReleaseDuringCommit(t *testing.T) {
	iv := span(jan(10, 0), jan(12, 0))

	t.Run("confirm", func(t *testing.T) {
		f := newFixture(t, DefaultConfig(), camera("cam-1", 1))
		ctx := context.Background()
		_, err := f.manager.Hold(ctx, request("cam-1", 1, iv), "B-1")
		require.NoError(t, err)

		done := releaseDuringFirstRecord(f, "B-1")
		result, err := f.manager.Confirm(ctx, "B-1")
		require.NoError(t, err)
		assert.Equal(t, StateConfirmed, result.State)
		require.NoError(t, <-done)

		events := f.sink.snapshot()
		require.Len(t, events, 2)
		assertRecordBeforeRetract(t, events)
		active, _ := f.idx.Snapshot("cam-1")
		assert.Empty(t, active)
	})

	t.Run("reserve all", func(t *testing.T) {
		f := newFixture(t, DefaultConfig(), camera("cam-1", 1), camera("cam-2", 1))
		ctx := context.Background()

		done := releaseDuringFirstRecord(f, "B-1")
		result, err := f.manager.ReserveAll(ctx, []domain.ReservationRequest{
			request("cam-1", 1, iv),
			request("cam-2", 1, iv),
		}, "B-1")
		require.NoError(t, err)
		assert.Equal(t, StateConfirmed, result.State)
		require.NoError(t, <-done)

		events := f.sink.snapshot()
		require.Len(t, events, 4)
		assertRecordBeforeRetract(t, events)
	})

	t.Run("modify", func(t *testing.T) {
		f := newFixture(t, DefaultConfig(), camera("cam-1", 1))
		ctx := context.Background()
		_, err := f.manager.Reserve(ctx, request("cam-1", 1, iv), "B-1")
		require.NoError(t, err)

		done := releaseDuringFirstRecord(f, "B-1")
		moved, err := f.manager.Modify(ctx, "B-1", domain.ReservationRequest{Quantity: 1, Interval: span(jan(11, 0), jan(13, 0))})
		require.NoError(t, err)
		assert.Equal(t, StateConfirmed, moved.State)
		require.NoError(t, <-done)

		events := f.sink.snapshot()
		// record old, retract old, record new, retract new
		require.Len(t, events, 4)
		assertRecordBeforeRetract(t, events)
		assert.Equal(t, "retract:"+moved.Occupancies[0].ID, events[3])
	})
}
