package reservation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rental-availability-backend/internal/domain"
	"rental-availability-backend/internal/index"
)

func newTestEngine(t *testing.T, cfg Config, resources ...domain.EquipmentResource) *Engine {
	t.Helper()
	return NewEngine(index.New(), newTestCatalog(resources...), &testClock{now: jan(1, 0)}, cfg, nil)
}

func TestEngine_QueriesSeeCommittedBookings(t *testing.T) {
	e := newTestEngine(t, DefaultConfig(), camera("cam-1", 1), camera("cam-2", 1))
	ctx := context.Background()
	booked := request("cam-1", 1, span(jan(10, 9), jan(15, 18)))

	_, err := e.Reserve(ctx, booked, "B-1")
	require.NoError(t, err)

	query := request("cam-1", 1, span(jan(12, 0), jan(14, 0)))
	avail, err := e.CheckAvailability(ctx, query)
	require.NoError(t, err)
	assert.False(t, avail.FullyAvailable)

	report, err := e.DetectConflicts(ctx, query)
	require.NoError(t, err)
	require.Len(t, report.Blocking(), 1)
	assert.Equal(t, "B-1", report.Blocking()[0].BookingID)

	query.ExcludeBookingID = "B-1"
	avail, err = e.CheckAvailability(ctx, query)
	require.NoError(t, err)
	assert.True(t, avail.FullyAvailable, "a booking never conflicts with itself")

	alternatives, err := e.SuggestAlternatives(ctx, request("cam-1", 1, span(jan(12, 0), jan(14, 0))))
	require.NoError(t, err)
	require.NotEmpty(t, alternatives)
	assert.Equal(t, "cam-2", alternatives[0].ResourceID)
	assert.Equal(t, domain.AxisEquipment, alternatives[0].Axis)

	require.NoError(t, e.Release(ctx, "B-1"))
	query.ExcludeBookingID = ""
	avail, err = e.CheckAvailability(ctx, query)
	require.NoError(t, err)
	assert.True(t, avail.FullyAvailable)

	listing, err := e.Resources(ctx, "cams")
	require.NoError(t, err)
	assert.Len(t, listing, 2)
}

func TestEngine_UnknownResources(t *testing.T) {
	ctx := context.Background()
	query := request("ghost", 1, span(jan(10, 0), jan(11, 0)))

	lenient := newTestEngine(t, DefaultConfig())
	avail, err := lenient.CheckAvailability(ctx, query)
	require.NoError(t, err)
	assert.True(t, avail.FullyAvailable)

	report, err := lenient.DetectConflicts(ctx, query)
	require.NoError(t, err)
	assert.Empty(t, report.Entries)
	assert.Equal(t, unknownResourceNote, report.Note)

	_, err = lenient.Reserve(ctx, query, "")
	assert.ErrorIs(t, err, domain.ErrResourceNotFound, "unknown resources can never be reserved")

	cfg := DefaultConfig()
	cfg.StrictResources = true
	strict := newTestEngine(t, cfg)
	_, err = strict.CheckAvailability(ctx, query)
	assert.ErrorIs(t, err, domain.ErrResourceNotFound)
	_, err = strict.DetectConflicts(ctx, query)
	assert.ErrorIs(t, err, domain.ErrResourceNotFound)
}

func TestEngine_QueriesNeedAResource(t *testing.T) {
	e := newTestEngine(t, DefaultConfig(), camera("cam-1", 1))
	_, err := e.CheckAvailability(context.Background(), domain.ReservationRequest{
		CategoryID: "cams", Quantity: 1, Interval: span(jan(10, 0), jan(11, 0)),
	})
	assert.ErrorIs(t, err, domain.ErrMissingResource)
}
