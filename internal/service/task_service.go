package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MurakamiHonami/streeeak/internal/model"
	"github.com/MurakamiHonami/streeeak/internal/planner"
	"github.com/MurakamiHonami/streeeak/internal/repository"
)

// Business-rule conditions the caller must distinguish from system errors.
var (
	// ErrFreeLimitReached means a free-tier user already generated a
	// breakdown today. Not a provider failure; must not trigger fallback.
	ErrFreeLimitReached = errors.New("free plan breakdown limit reached")
	// ErrTaskCompleted rejects moving a completed daily task's date.
	ErrTaskCompleted = errors.New("completed task cannot be moved")
	// ErrNotDailyTask rejects carry-over of non-daily or undated tasks.
	ErrNotDailyTask = errors.New("carry-over is only for dated daily tasks")
)

// BreakdownRequest carries caller-supplied generation parameters. The
// explicit counts are honored only when the goal has no deadline; a deadline
// always re-derives the scope.
type BreakdownRequest struct {
	Months           int
	WeeksPerMonth    int
	DaysPerWeek      int
	YearlyMilestones int
	CurrentSituation string
	Persist          bool
}

// TaskInput represents data required to create a task directly.
type TaskInput struct {
	GoalID     *uint
	UserID     uint
	Type       model.TaskType
	Title      string
	Month      *int
	WeekNumber *int
	Date       *time.Time
	Tags       string
	Note       string
}

// TaskUpdate carries partial task mutations; nil fields are left untouched.
type TaskUpdate struct {
	Title      *string
	Month      *int
	WeekNumber *int
	Date       *time.Time
	Tags       *string
	Note       *string
	IsDone     *bool
}

// TaskService wraps the task lifecycle: decomposition, revision, carry-over
// and plain CRUD.
type TaskService struct {
	taskRepo *repository.TaskRepository
	goalRepo *repository.GoalRepository
	engine   *planner.Engine
	now      func() time.Time
}

func NewTaskService(taskRepo *repository.TaskRepository, goalRepo *repository.GoalRepository, engine *planner.Engine) *TaskService {
	return &TaskService{taskRepo: taskRepo, goalRepo: goalRepo, engine: engine, now: time.Now}
}

// Breakdown generates the task tree for a goal and optionally persists it,
// replacing any previous tasks of the goal wholesale.
func (s *TaskService) Breakdown(ctx context.Context, user *model.User, goal *model.Goal, req BreakdownRequest) (planner.BreakdownResult, error) {
	if !user.IsPremium {
		count, err := s.goalRepo.CountCreatedOn(ctx, user.ID, s.now())
		if err != nil {
			return planner.BreakdownResult{}, err
		}
		if count > 1 {
			return planner.BreakdownResult{}, ErrFreeLimitReached
		}
	}

	scope := planner.Scope{
		Months:           req.Months,
		WeeksPerMonth:    req.WeeksPerMonth,
		DaysPerWeek:      req.DaysPerWeek,
		YearlyMilestones: req.YearlyMilestones,
	}
	if goal.Deadline != nil {
		scope = planner.DeriveScope(s.now(), *goal.Deadline)
	}

	result := s.engine.Breakdown(ctx, goal, scope, req.CurrentSituation)

	if req.Persist {
		if err := s.persistBreakdown(ctx, goal, result); err != nil {
			return result, err
		}
	}
	return result, nil
}

func (s *TaskService) persistBreakdown(ctx context.Context, goal *model.Goal, result planner.BreakdownResult) error {
	var rows []model.Task
	drafts := make([]planner.BreakdownTask, 0, len(result.Monthly)+len(result.Weekly)+len(result.Daily))
	drafts = append(drafts, result.Monthly...)
	drafts = append(drafts, result.Weekly...)
	drafts = append(drafts, result.Daily...)

	goalID := goal.ID
	for _, draft := range drafts {
		// Daily drafts whose note decodes to sub-tasks become one row per
		// sub-task instead of one row per day.
		if draft.Type == model.TaskDaily {
			if subtasks := planner.ParseSubtasks(draft.Note); len(subtasks) > 0 {
				for _, subtask := range subtasks {
					rows = append(rows, model.Task{
						GoalID:     &goalID,
						UserID:     goal.UserID,
						Type:       draft.Type,
						Title:      subtask,
						Month:      draft.Month,
						WeekNumber: draft.WeekNumber,
						Date:       draft.Date,
					})
				}
				continue
			}
		}
		rows = append(rows, model.Task{
			GoalID:     &goalID,
			UserID:     goal.UserID,
			Type:       draft.Type,
			Title:      draft.Title,
			Month:      draft.Month,
			WeekNumber: draft.WeekNumber,
			Date:       draft.Date,
			Note:       draft.Note,
		})
	}

	return s.taskRepo.ReplaceForGoal(ctx, goal.ID, rows)
}

// RevisionChat asks the planner for edit proposals bounded by the supplied
// draft tasks.
func (s *TaskService) RevisionChat(ctx context.Context, goal *model.Goal, message string, drafts []planner.DraftTask, history []planner.ChatMessage) planner.RevisionResult {
	return s.engine.ProposeRevisions(ctx, goal.Title, message, drafts, history)
}

// ApplyRevisions mutates the tasks targeted by accepted proposals and
// returns only the tasks actually touched. Proposals aiming at tasks outside
// the goal are skipped, never fatal.
func (s *TaskService) ApplyRevisions(ctx context.Context, goalID uint, accepted []planner.RevisionProposal) ([]model.Task, error) {
	touched := make(map[uint]bool)
	var updated []model.Task

	for _, proposal := range accepted {
		if proposal.TargetTaskID <= 0 {
			continue
		}
		task, err := s.taskRepo.FindByID(ctx, uint(proposal.TargetTaskID))
		if err != nil || task.GoalID == nil || *task.GoalID != goalID {
			continue
		}

		if proposal.TargetType == planner.TargetSubtask {
			if proposal.SubtaskIndex == nil {
				continue
			}
			subtasks := planner.ParseSubtasks(task.Note)
			idx := *proposal.SubtaskIndex
			if idx < 0 || idx >= len(subtasks) {
				continue
			}
			subtasks[idx] = proposal.After
			task.Note = planner.ComposeSubtasks(subtasks)
		} else {
			task.Title = proposal.After
		}

		if err := s.taskRepo.Save(ctx, task); err != nil {
			return nil, err
		}
		if !touched[task.ID] {
			touched[task.ID] = true
			updated = append(updated, *task)
		} else {
			for i := range updated {
				if updated[i].ID == task.ID {
					updated[i] = *task
				}
			}
		}
	}
	return updated, nil
}

// CarryOver advances an incomplete daily task by exactly one day, merging
// into an existing identical task on the target date instead of duplicating.
func (s *TaskService) CarryOver(ctx context.Context, taskID uint) (*model.Task, error) {
	task, err := s.taskRepo.FindByID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.Type != model.TaskDaily || task.Date == nil {
		return nil, ErrNotDailyTask
	}
	return s.advance(ctx, task, task.Date.AddDate(0, 0, 1))
}

// advance moves task to target. When an identical-content daily task already
// sits on target, that duplicate absorbs the source: it is flagged as
// carried over, forced back to not-done if the source was not done, and the
// source row is deleted.
func (s *TaskService) advance(ctx context.Context, task *model.Task, target time.Time) (*model.Task, error) {
	if task.IsDone {
		return nil, ErrTaskCompleted
	}

	dup, err := s.taskRepo.FindDailyDuplicate(ctx, task, target)
	if err != nil {
		return nil, err
	}
	if dup != nil {
		dup.CarriedOver = true
		if !task.IsDone {
			dup.IsDone = false
		}
		if err := s.taskRepo.Save(ctx, dup); err != nil {
			return nil, err
		}
		if err := s.taskRepo.Delete(ctx, task.ID); err != nil {
			return nil, err
		}
		return dup, nil
	}

	task.Date = &target
	task.CarriedOver = true
	if err := s.taskRepo.Save(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}

// CatchUpOverdue sweeps every incomplete daily task dated before ref forward
// one day at a time until it reaches ref, never past it.
func (s *TaskService) CatchUpOverdue(ctx context.Context, userID uint, ref time.Time) error {
	ref = startOfDay(ref)
	overdue, err := s.taskRepo.ListOverdueDaily(ctx, userID, ref)
	if err != nil {
		return err
	}

	for i := range overdue {
		// Re-fetch: an earlier merge in this sweep may have deleted or
		// already moved this row.
		current, err := s.taskRepo.FindByID(ctx, overdue[i].ID)
		if err != nil {
			continue
		}
		for current.Date != nil && startOfDay(*current.Date).Before(ref) {
			next, err := s.advance(ctx, current, startOfDay(*current.Date).AddDate(0, 0, 1))
			if err != nil {
				return fmt.Errorf("catch up task %d: %w", current.ID, err)
			}
			current = next
		}
	}
	return nil
}

// ListDailyTasks returns the user's daily tasks for day, sweeping overdue
// tasks forward first so yesterday's leftovers show up today.
func (s *TaskService) ListDailyTasks(ctx context.Context, userID uint, day time.Time) ([]model.Task, error) {
	day = startOfDay(day)
	if err := s.CatchUpOverdue(ctx, userID, day); err != nil {
		return nil, err
	}
	return s.taskRepo.ListByFilter(ctx, repository.TaskFilter{
		UserID: userID,
		Type:   model.TaskDaily,
		Date:   &day,
	})
}

// ListGoalTasks returns every task of the goal, tier first, dated within tier.
func (s *TaskService) ListGoalTasks(ctx context.Context, goalID uint) ([]model.Task, error) {
	return s.taskRepo.ListByGoal(ctx, goalID)
}

// ListTasks returns tasks matching the filter, newest first.
func (s *TaskService) ListTasks(ctx context.Context, filter repository.TaskFilter) ([]model.Task, error) {
	return s.taskRepo.ListByFilter(ctx, filter)
}

// CreateTask inserts one task from direct caller input.
func (s *TaskService) CreateTask(ctx context.Context, input TaskInput) (*model.Task, error) {
	if input.Title == "" {
		return nil, fmt.Errorf("title is required")
	}
	if !input.Type.Valid() {
		return nil, fmt.Errorf("unknown task type %q", input.Type)
	}
	if input.Type != model.TaskDaily && input.Date != nil {
		return nil, fmt.Errorf("date is only for daily tasks")
	}

	task := model.Task{
		GoalID:     input.GoalID,
		UserID:     input.UserID,
		Type:       input.Type,
		Title:      input.Title,
		Month:      input.Month,
		WeekNumber: input.WeekNumber,
		Date:       input.Date,
		Tags:       input.Tags,
		Note:       input.Note,
	}
	if err := s.taskRepo.Create(ctx, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// UpdateTask applies the non-nil fields of update. Changing a completed
// daily task's date is a rule violation, rejected before any mutation.
func (s *TaskService) UpdateTask(ctx context.Context, taskID uint, update TaskUpdate) (*model.Task, error) {
	task, err := s.taskRepo.FindByID(ctx, taskID)
	if err != nil {
		return nil, err
	}

	if update.Date != nil && task.Type == model.TaskDaily && task.IsDone {
		return nil, ErrTaskCompleted
	}

	if update.Title != nil {
		task.Title = *update.Title
	}
	if update.Month != nil {
		task.Month = update.Month
	}
	if update.WeekNumber != nil {
		task.WeekNumber = update.WeekNumber
	}
	if update.Date != nil {
		task.Date = update.Date
	}
	if update.Tags != nil {
		task.Tags = *update.Tags
	}
	if update.Note != nil {
		task.Note = *update.Note
	}
	if update.IsDone != nil {
		task.IsDone = *update.IsDone
	}

	if err := s.taskRepo.Save(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}

// ToggleDone flips the completion flag.
func (s *TaskService) ToggleDone(ctx context.Context, taskID uint) (*model.Task, error) {
	task, err := s.taskRepo.FindByID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	task.IsDone = !task.IsDone
	if err := s.taskRepo.Save(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}

// DeleteTask removes a task completely.
func (s *TaskService) DeleteTask(ctx context.Context, taskID uint) error {
	return s.taskRepo.Delete(ctx, taskID)
}

// startOfDay pins t's calendar date to UTC midnight, the same convention the
// planner uses for generated task dates.
func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
