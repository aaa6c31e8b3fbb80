package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/MurakamiHonami/streeeak/internal/model"
)

// GoalRepository handles CRUD for goals.
type GoalRepository struct {
	db *gorm.DB
}

func NewGoalRepository(db *gorm.DB) *GoalRepository {
	return &GoalRepository{db: db}
}

func (r *GoalRepository) Create(ctx context.Context, goal *model.Goal) error {
	if err := r.db.WithContext(ctx).Create(goal).Error; err != nil {
		return fmt.Errorf("create goal: %w", err)
	}
	return nil
}

func (r *GoalRepository) FindByID(ctx context.Context, goalID uint) (*model.Goal, error) {
	var goal model.Goal
	if err := r.db.WithContext(ctx).First(&goal, goalID).Error; err != nil {
		return nil, err
	}
	return &goal, nil
}

func (r *GoalRepository) ListByUser(ctx context.Context, userID uint) ([]model.Goal, error) {
	var goals []model.Goal
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&goals).Error; err != nil {
		return nil, err
	}
	return goals, nil
}

func (r *GoalRepository) Save(ctx context.Context, goal *model.Goal) error {
	if err := r.db.WithContext(ctx).Save(goal).Error; err != nil {
		return fmt.Errorf("save goal: %w", err)
	}
	return nil
}

// Delete removes a goal; its tasks go with it through the cascade constraint.
func (r *GoalRepository) Delete(ctx context.Context, userID, goalID uint) error {
	if err := r.db.WithContext(ctx).Where("user_id = ? AND id = ?", userID, goalID).
		Delete(&model.Goal{}).Error; err != nil {
		return fmt.Errorf("delete goal: %w", err)
	}
	return nil
}

// CountCreatedOn counts the user's goals created during the given calendar
// day. Used for the free-tier decomposition quota.
func (r *GoalRepository) CountCreatedOn(ctx context.Context, userID uint, day time.Time) (int64, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	end := start.AddDate(0, 0, 1)

	var count int64
	if err := r.db.WithContext(ctx).Model(&model.Goal{}).
		Where("user_id = ? AND created_at >= ? AND created_at < ?", userID, start, end).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count goals: %w", err)
	}
	return count, nil
}
