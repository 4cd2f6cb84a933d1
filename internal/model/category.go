package model

import "time"

// Category groups interchangeable equipment.
type Category struct {
	ID        string    `gorm:"primaryKey;size:64"`
	Name      string    `gorm:"size:128;not null"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`

	// Associations
	Equipment []Equipment `gorm:"foreignKey:CategoryID"`
}
