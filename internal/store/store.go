package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"rental-availability-backend/internal/domain"
	"rental-availability-backend/internal/model"
	"rental-availability-backend/internal/parse"
)

// Store defines the interface for all database operations.
type Store interface {
	// RecordOccupancy persists a CONFIRMED occupancy. Recording the same
	// occupancy twice overwrites it.
	RecordOccupancy(ctx context.Context, rec domain.BookingRecord) error
	// RetractOccupancy archives a CANCELLED occupancy to history and removes
	// it from the active table. Unknown occupancies are ignored.
	RetractOccupancy(ctx context.Context, rec domain.BookingRecord) error
	// LoadActive returns every persisted CONFIRMED occupancy.
	LoadActive(ctx context.Context) ([]domain.Occupancy, error)
	// UpsertCatalog writes the equipment projection and returns the ids of
	// equipment rows that were created or changed.
	UpsertCatalog(ctx context.Context, items []CatalogItem) ([]string, error)
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db     *gorm.DB
	logger *slog.Logger
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB, logger *slog.Logger) Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &gormStore{db: db, logger: logger}
}

func (s *gormStore) RecordOccupancy(ctx context.Context, rec domain.BookingRecord) error {
	row := model.ActiveOccupancy{
		ID:          rec.OccupancyID,
		BookingID:   rec.BookingID,
		EquipmentID: rec.ResourceID,
		Quantity:    rec.Quantity,
		PeriodStart: rec.Interval.Start,
		PeriodEnd:   rec.Interval.End,
		ConfirmedAt: rec.At,
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"booking_id", "equipment_id", "quantity", "period_start", "period_end", "confirmed_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("failed to record occupancy %s: %w", rec.OccupancyID, err)
	}
	return nil
}

func (s *gormStore) RetractOccupancy(ctx context.Context, rec domain.BookingRecord) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row model.ActiveOccupancy
		if err := tx.First(&row, "id = ?", rec.OccupancyID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return fmt.Errorf("failed to load occupancy %s: %w", rec.OccupancyID, err)
		}
		if err := archiveRecord(tx, row, rec.At); err != nil {
			return err
		}
		if err := tx.Delete(&model.ActiveOccupancy{}, "id = ?", row.ID).Error; err != nil {
			return fmt.Errorf("failed to delete active occupancy %s: %w", row.ID, err)
		}
		return nil
	})
}

// archiveRecord creates the audit copy of a cancelled occupancy.
func archiveRecord(tx *gorm.DB, row model.ActiveOccupancy, cancelledAt time.Time) error {
	history := model.OccupancyHistory{
		OccupancyID: row.ID,
		CancelledAt: cancelledAt,
		BookingID:   row.BookingID,
		EquipmentID: row.EquipmentID,
		Quantity:    row.Quantity,
		PeriodStart: row.PeriodStart,
		PeriodEnd:   row.PeriodEnd,
		ConfirmedAt: row.ConfirmedAt,
	}
	if err := tx.Create(&history).Error; err != nil {
		return fmt.Errorf("failed to archive occupancy %s: %w", row.ID, err)
	}
	return nil
}

func (s *gormStore) LoadActive(ctx context.Context) ([]domain.Occupancy, error) {
	var rows []model.ActiveOccupancy
	if err := s.db.WithContext(ctx).Order("equipment_id, period_start").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load active occupancies: %w", err)
	}
	out := make([]domain.Occupancy, 0, len(rows))
	for _, r := range rows {
		out = append(out, domain.Occupancy{
			ID:         r.ID,
			ResourceID: r.EquipmentID,
			BookingID:  r.BookingID,
			Quantity:   r.Quantity,
			Interval:   domain.Interval{Start: r.PeriodStart.UTC(), End: r.PeriodEnd.UTC()},
			State:      domain.StateConfirmed,
			CreatedAt:  r.ConfirmedAt.UTC(),
		})
	}
	return out, nil
}

func (s *gormStore) UpsertCatalog(ctx context.Context, items []CatalogItem) ([]string, error) {
	existing, err := s.fetchAllEquipment(ctx)
	if err != nil {
		s.logger.Warn("could not pre-fetch equipment", "error", err)
		existing = make(map[string]model.Equipment)
	}

	// Phase 1: categories
	if err := s.saveCategories(ctx, items); err != nil {
		return nil, fmt.Errorf("failed to process categories: %w", err)
	}

	// Phase 2: equipment rows that actually changed
	var toUpsert []model.Equipment
	for _, item := range items {
		eq, err := prepareEquipment(item)
		if err != nil {
			s.logger.Warn("skipping catalog item", "item", item.ID, "error", err)
			continue
		}
		if old, ok := existing[eq.ID]; ok && sameEquipment(old, eq) {
			continue
		}
		toUpsert = append(toUpsert, eq)
	}
	if len(toUpsert) == 0 {
		return nil, nil
	}

	s.logger.Info("batch upserting equipment", "count", len(toUpsert))
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return batchUpsertEquipment(tx, toUpsert)
	})
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(toUpsert))
	for _, eq := range toUpsert {
		ids = append(ids, eq.ID)
	}
	return ids, nil
}

func (s *gormStore) fetchAllEquipment(ctx context.Context) (map[string]model.Equipment, error) {
	var rows []model.Equipment
	if err := s.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[string]model.Equipment, len(rows))
	for _, r := range rows {
		out[r.ID] = r
	}
	return out, nil
}

func (s *gormStore) saveCategories(ctx context.Context, items []CatalogItem) error {
	byID := make(map[string]model.Category)
	for _, item := range items {
		if item.CategoryID == "" {
			continue
		}
		name := item.CategoryName
		if name == "" {
			name = item.CategoryID
		}
		byID[item.CategoryID] = model.Category{ID: item.CategoryID, Name: name}
	}
	if len(byID) == 0 {
		return nil
	}

	categories := make([]model.Category, 0, len(byID))
	for _, c := range byID {
		categories = append(categories, c)
	}
	sort.Slice(categories, func(i, j int) bool { return categories[i].ID < categories[j].ID })

	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "updated_at"}),
	}).Create(&categories).Error; err != nil {
		return fmt.Errorf("batch upsert categories failed: %w", err)
	}
	return nil
}

func prepareEquipment(item CatalogItem) (model.Equipment, error) {
	if strings.TrimSpace(item.ID) == "" {
		return model.Equipment{}, fmt.Errorf("missing id")
	}
	if item.CategoryID == "" {
		return model.Equipment{}, fmt.Errorf("missing category")
	}
	status, err := parse.Status(item.Status)
	if err != nil {
		return model.Equipment{}, err
	}
	capacity := item.Quantity
	if capacity < 1 {
		capacity = 1
	}
	name := item.Name
	if name == "" {
		name = item.ID
	}
	return model.Equipment{
		ID:          item.ID,
		CategoryID:  item.CategoryID,
		DisplayName: name,
		Capacity:    capacity,
		Status:      string(status),
		DailyRate:   item.DailyRate,
		Equivalents: strings.Join(parse.List(strings.Join(item.Equivalents, ",")), ","),
	}, nil
}

func sameEquipment(a, b model.Equipment) bool {
	return a.CategoryID == b.CategoryID &&
		a.DisplayName == b.DisplayName &&
		a.Capacity == b.Capacity &&
		a.Status == b.Status &&
		a.DailyRate == b.DailyRate &&
		a.Equivalents == b.Equivalents
}

func batchUpsertEquipment(tx *gorm.DB, rows []model.Equipment) error {
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"category_id", "display_name", "capacity", "status", "daily_rate", "equivalents", "updated_at"}),
	}).Create(&rows).Error
}
