package model

import (
	"time"
)

// ActiveOccupancy is a confirmed booking occupancy (hot table). Rows are
// removed when the booking is cancelled and archived to OccupancyHistory.
type ActiveOccupancy struct {
	ID          string    `gorm:"primaryKey;size:64"`
	BookingID   string    `gorm:"index;size:64;not null"`
	EquipmentID string    `gorm:"index;size:64;not null"`
	Quantity    int       `gorm:"not null"`
	PeriodStart time.Time `gorm:"not null"`
	PeriodEnd   time.Time `gorm:"not null"` // exclusive
	ConfirmedAt time.Time `gorm:"not null"`
}

// OccupancyHistory is the audit log of cancelled occupancies (cold table).
type OccupancyHistory struct {
	ID          int64     `gorm:"autoIncrement"`
	OccupancyID string    `gorm:"size:64;not null;primaryKey"`
	CancelledAt time.Time `gorm:"not null;index;primaryKey"`
	BookingID   string    `gorm:"index;size:64;not null"`
	EquipmentID string    `gorm:"index;size:64;not null"`
	Quantity    int       `gorm:"not null"`
	PeriodStart time.Time `gorm:"not null"`
	PeriodEnd   time.Time `gorm:"not null"`
	ConfirmedAt time.Time `gorm:"not null"`
}
