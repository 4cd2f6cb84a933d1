package model

import (
	"strings"
	"time"
)

// Equipment is the engine's projection of an upstream catalog item.
type Equipment struct {
	ID          string  `gorm:"primaryKey;size:64"` // Upstream ID
	CategoryID  string  `gorm:"index;size:64;not null"`
	DisplayName string  `gorm:"size:256;not null"`
	Capacity    int     `gorm:"not null;default:1"`
	Status      string  `gorm:"size:16;not null;default:AVAILABLE"`
	DailyRate   float64 `gorm:"not null;default:0"`
	// Equivalents is a comma-separated list of stand-in equipment ids.
	Equivalents string `gorm:"size:1024"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// EquivalentIDs splits the stored equivalence list.
func (e Equipment) EquivalentIDs() []string {
	if strings.TrimSpace(e.Equivalents) == "" {
		return nil
	}
	var ids []string
	for _, id := range strings.Split(e.Equivalents, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}
