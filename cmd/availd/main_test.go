package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rental-availability-backend/config"
	"rental-availability-backend/internal/db"
	"rental-availability-backend/internal/model"
)

func writeTestConfig(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	dsn := filepath.Join(dir, "avail.db")
	path := filepath.Join(dir, "config.yaml")
	body := "database:\n  driver: sqlite\n  dsn: " + dsn + "\n  log_level: silent\nlog:\n  level: error\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	t.Setenv("DATABASE_DSN", "")
	t.Setenv("DATABASE_DRIVER", "")
	return path, dsn
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestMigrateThenCheck(t *testing.T) {
	path, dsn := writeTestConfig(t)

	_, err := run(t, "migrate", "--config", path)
	require.NoError(t, err)

	gormDB, err := db.Open(&config.DatabaseConfig{Driver: "sqlite", DSN: dsn, LogLevel: "silent"})
	require.NoError(t, err)
	require.NoError(t, gormDB.Create(&model.Equipment{ID: "cam-1", CategoryID: "cams", DisplayName: "Camera A", Capacity: 1, Status: "AVAILABLE", DailyRate: 100}).Error)
	require.NoError(t, gormDB.Create(&model.ActiveOccupancy{
		ID: "occ-1", BookingID: "B-1", EquipmentID: "cam-1", Quantity: 1,
		PeriodStart: time.Date(2030, 1, 10, 0, 0, 0, 0, time.UTC),
		PeriodEnd:   time.Date(2030, 1, 15, 0, 0, 0, 0, time.UTC),
		ConfirmedAt: time.Date(2029, 12, 1, 0, 0, 0, 0, time.UTC),
	}).Error)
	sqlDB, _ := gormDB.DB()
	require.NoError(t, sqlDB.Close())

	out, err := run(t, "check", "--config", path, "--resource", "cam-1", "--start", "2030-01-12", "--end", "2030-01-13")
	require.NoError(t, err)

	var got checkOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got), out)
	assert.False(t, got.Availability.FullyAvailable)
	require.Len(t, got.Conflicts.Entries, 1)
	assert.Equal(t, "B-1", got.Conflicts.Entries[0].BookingID)

	out, err = run(t, "check", "--config", path, "--resource", "cam-1", "--start", "2030-01-15", "--end", "2030-01-16")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &got), out)
	assert.True(t, got.Availability.FullyAvailable, "intervals are half-open")
}

func TestCheck_RequiresFlags(t *testing.T) {
	path, _ := writeTestConfig(t)
	_, err := run(t, "check", "--config", path)
	assert.Error(t, err)
}

func TestEngineConfig(t *testing.T) {
	cfg := config.Default()
	ec := engineConfig(cfg.Engine)
	assert.Equal(t, 5*time.Minute, ec.HoldTimeout)
	assert.Equal(t, 30*24*time.Hour, ec.Alternatives.Horizon)
	assert.Equal(t, 5, ec.Alternatives.TopK)

	bc := breakerConfig(cfg.Catalog)
	assert.Equal(t, uint32(5), bc.FailureThreshold)
	assert.Equal(t, 30*time.Second, bc.Timeout)
}
