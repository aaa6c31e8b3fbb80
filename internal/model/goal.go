package model

import "time"

// Goal is a long-term objective a user wants to reach, optionally by a deadline.
type Goal struct {
	ID               uint `gorm:"primaryKey"`
	UserID           uint `gorm:"index"`
	Title            string
	Deadline         *time.Time
	CurrentSituation string
	CreatedAt        time.Time
	UpdatedAt        time.Time
	Tasks            []Task `gorm:"foreignKey:GoalID;constraint:OnDelete:CASCADE"`
}
