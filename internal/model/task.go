package model

import "time"

// TaskType is the granularity tier of a task in the goal hierarchy.
type TaskType string

const (
	TaskMonthly TaskType = "monthly"
	TaskWeekly  TaskType = "weekly"
	TaskDaily   TaskType = "daily"
)

// Valid reports whether t is one of the three persisted tiers.
func (t TaskType) Valid() bool {
	switch t {
	case TaskMonthly, TaskWeekly, TaskDaily:
		return true
	}
	return false
}

// Task represents a single item in the monthly/weekly/daily hierarchy.
// Date is set only for daily tasks. Month is the calendar month a monthly
// task targets (or the month a weekly task falls in); WeekNumber is the ISO
// week for weekly and daily tasks. Note may encode an ordered sub-task list
// as "- item" lines.
type Task struct {
	ID          uint       `gorm:"primaryKey"`
	GoalID      *uint      `gorm:"index"`
	UserID      uint       `gorm:"index"`
	Type        TaskType   `gorm:"index"`
	Title       string
	Month       *int
	WeekNumber  *int
	Date        *time.Time `gorm:"index"`
	IsDone      bool       `gorm:"default:false"`
	CarriedOver bool       `gorm:"default:false"`
	Tags        string
	Note        string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
