package service

import (
	"context"
	"fmt"
	"time"

	"github.com/MurakamiHonami/streeeak/internal/model"
	"github.com/MurakamiHonami/streeeak/internal/repository"
)

// GoalInput represents data required to create or update a goal.
type GoalInput struct {
	Title            string
	Deadline         *time.Time
	CurrentSituation string
}

// GoalService wraps goal-related business logic.
type GoalService struct {
	goalRepo *repository.GoalRepository
}

func NewGoalService(goalRepo *repository.GoalRepository) *GoalService {
	return &GoalService{goalRepo: goalRepo}
}

func (s *GoalService) CreateGoal(ctx context.Context, user *model.User, input GoalInput) (*model.Goal, error) {
	if input.Title == "" {
		return nil, fmt.Errorf("title is required")
	}

	goal := model.Goal{
		UserID:           user.ID,
		Title:            input.Title,
		Deadline:         input.Deadline,
		CurrentSituation: input.CurrentSituation,
	}
	if err := s.goalRepo.Create(ctx, &goal); err != nil {
		return nil, err
	}
	return &goal, nil
}

func (s *GoalService) ListGoals(ctx context.Context, user *model.User) ([]model.Goal, error) {
	return s.goalRepo.ListByUser(ctx, user.ID)
}

func (s *GoalService) GetGoal(ctx context.Context, goalID uint) (*model.Goal, error) {
	return s.goalRepo.FindByID(ctx, goalID)
}

// UpdateGoal overwrites title, deadline and situation from input. An empty
// title keeps the existing one.
func (s *GoalService) UpdateGoal(ctx context.Context, goalID uint, input GoalInput) (*model.Goal, error) {
	goal, err := s.goalRepo.FindByID(ctx, goalID)
	if err != nil {
		return nil, err
	}

	if input.Title != "" {
		goal.Title = input.Title
	}
	if input.Deadline != nil {
		goal.Deadline = input.Deadline
	}
	if input.CurrentSituation != "" {
		goal.CurrentSituation = input.CurrentSituation
	}

	if err := s.goalRepo.Save(ctx, goal); err != nil {
		return nil, err
	}
	return goal, nil
}

// RenameGoal sets just the title; used when a revision chat accepted a new
// goal title.
func (s *GoalService) RenameGoal(ctx context.Context, goalID uint, title string) (*model.Goal, error) {
	if title == "" {
		return nil, fmt.Errorf("title is required")
	}
	goal, err := s.goalRepo.FindByID(ctx, goalID)
	if err != nil {
		return nil, err
	}
	goal.Title = title
	if err := s.goalRepo.Save(ctx, goal); err != nil {
		return nil, err
	}
	return goal, nil
}

func (s *GoalService) DeleteGoal(ctx context.Context, userID, goalID uint) error {
	return s.goalRepo.Delete(ctx, userID, goalID)
}
