package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOccupancy_JSONOmitsExpiryOnceConfirmed(t *testing.T) {
	occ := Occupancy{
		ID:         "occ-1",
		ResourceID: "cam-1",
		BookingID:  "B-1",
		Quantity:   1,
		Interval:   Interval{Start: at(10, 0), End: at(12, 0)},
		State:      StateConfirmed,
		CreatedAt:  at(1, 0),
	}
	raw, err := json.Marshal(occ)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "expires_at")

	occ.State = StatePending
	occ.ExpiresAt = at(1, 1)
	raw, err = json.Marshal(occ)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"expires_at":"2025-01-01T01:00:00Z"`)
}
