package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/MurakamiHonami/streeeak/internal/model"
)

// TaskFilter narrows ListByFilter to one tier and optionally to one
// month/week/date anchor within it.
type TaskFilter struct {
	UserID     uint
	Type       model.TaskType
	Month      *int
	WeekNumber *int
	Date       *time.Time
}

// TaskRepository handles CRUD for tasks.
type TaskRepository struct {
	db *gorm.DB
}

func NewTaskRepository(db *gorm.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

func (r *TaskRepository) Create(ctx context.Context, task *model.Task) error {
	if err := r.db.WithContext(ctx).Create(task).Error; err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	return nil
}

func (r *TaskRepository) FindByID(ctx context.Context, taskID uint) (*model.Task, error) {
	var task model.Task
	if err := r.db.WithContext(ctx).First(&task, taskID).Error; err != nil {
		return nil, err
	}
	return &task, nil
}

func (r *TaskRepository) ListByGoal(ctx context.Context, goalID uint) ([]model.Task, error) {
	var tasks []model.Task
	if err := r.db.WithContext(ctx).Where("goal_id = ?", goalID).
		Order("type, date, id").
		Find(&tasks).Error; err != nil {
		return nil, err
	}
	return tasks, nil
}

func (r *TaskRepository) ListByFilter(ctx context.Context, filter TaskFilter) ([]model.Task, error) {
	q := r.db.WithContext(ctx).Where("user_id = ? AND type = ?", filter.UserID, filter.Type)
	switch filter.Type {
	case model.TaskMonthly:
		if filter.Month != nil {
			q = q.Where("month = ?", *filter.Month)
		}
	case model.TaskWeekly:
		if filter.WeekNumber != nil {
			q = q.Where("week_number = ?", *filter.WeekNumber)
		}
	case model.TaskDaily:
		if filter.Date != nil {
			q = q.Where("date = ?", *filter.Date)
		}
	}

	var tasks []model.Task
	if err := q.Order("created_at DESC").Find(&tasks).Error; err != nil {
		return nil, err
	}
	return tasks, nil
}

// ListOverdueDaily returns the user's incomplete daily tasks dated strictly
// before ref, oldest first.
func (r *TaskRepository) ListOverdueDaily(ctx context.Context, userID uint, ref time.Time) ([]model.Task, error) {
	var tasks []model.Task
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND type = ? AND is_done = ? AND date < ?", userID, model.TaskDaily, false, ref).
		Order("date ASC, id ASC").
		Find(&tasks).Error; err != nil {
		return nil, err
	}
	return tasks, nil
}

// FindDailyDuplicate looks for another daily task with identical content
// (same user, goal, title, tags, note) dated exactly target.
func (r *TaskRepository) FindDailyDuplicate(ctx context.Context, task *model.Task, target time.Time) (*model.Task, error) {
	q := r.db.WithContext(ctx).
		Where("id <> ? AND user_id = ? AND type = ? AND title = ? AND tags = ? AND note = ? AND date = ?",
			task.ID, task.UserID, model.TaskDaily, task.Title, task.Tags, task.Note, target)
	if task.GoalID != nil {
		q = q.Where("goal_id = ?", *task.GoalID)
	} else {
		q = q.Where("goal_id IS NULL")
	}

	var dup model.Task
	err := q.First(&dup).Error
	switch {
	case err == nil:
		return &dup, nil
	case err == gorm.ErrRecordNotFound:
		return nil, nil
	default:
		return nil, fmt.Errorf("find duplicate: %w", err)
	}
}

// ReplaceForGoal deletes every task of the goal and inserts the new batch in
// one transaction. Regeneration is idempotent by replacement, not additive.
func (r *TaskRepository) ReplaceForGoal(ctx context.Context, goalID uint, tasks []model.Task) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("goal_id = ?", goalID).Delete(&model.Task{}).Error; err != nil {
			return fmt.Errorf("clear goal tasks: %w", err)
		}
		if len(tasks) == 0 {
			return nil
		}
		if err := tx.Create(&tasks).Error; err != nil {
			return fmt.Errorf("insert goal tasks: %w", err)
		}
		return nil
	})
}

func (r *TaskRepository) Save(ctx context.Context, task *model.Task) error {
	if err := r.db.WithContext(ctx).Save(task).Error; err != nil {
		return fmt.Errorf("save task: %w", err)
	}
	return nil
}

func (r *TaskRepository) Delete(ctx context.Context, taskID uint) error {
	if err := r.db.WithContext(ctx).Delete(&model.Task{}, taskID).Error; err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return nil
}
