package service

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/MurakamiHonami/streeeak/internal/model"
	"github.com/MurakamiHonami/streeeak/internal/planner"
	"github.com/MurakamiHonami/streeeak/internal/repository"
)

type testEnv struct {
	taskSvc  *TaskService
	goalSvc  *GoalService
	taskRepo *repository.TaskRepository
	goalRepo *repository.GoalRepository
	userRepo *repository.UserRepository
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := repository.NewDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	taskRepo := repository.NewTaskRepository(db)
	goalRepo := repository.NewGoalRepository(db)
	userRepo := repository.NewUserRepository(db)
	return &testEnv{
		taskSvc:  NewTaskService(taskRepo, goalRepo, planner.NewEngine(nil)),
		goalSvc:  NewGoalService(goalRepo),
		taskRepo: taskRepo,
		goalRepo: goalRepo,
		userRepo: userRepo,
	}
}

func (env *testEnv) user(t *testing.T, premium bool) *model.User {
	t.Helper()
	user := &model.User{Email: "taro@example.com", Name: "Taro", IsPremium: premium}
	if err := env.userRepo.Create(context.Background(), user); err != nil {
		t.Fatalf("create user: %v", err)
	}
	return user
}

func (env *testEnv) dailyTask(t *testing.T, user *model.User, goalID *uint, title string, day time.Time, done bool) *model.Task {
	t.Helper()
	task := &model.Task{
		GoalID: goalID,
		UserID: user.ID,
		Type:   model.TaskDaily,
		Title:  title,
		Date:   &day,
		IsDone: done,
	}
	if err := env.taskRepo.Create(context.Background(), task); err != nil {
		t.Fatalf("create task: %v", err)
	}
	return task
}

func day(offset int) time.Time {
	// Local calendar date pinned to UTC midnight so values survive the
	// SQLite round trip unchanged.
	now := time.Now()
	base := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return base.AddDate(0, 0, offset)
}

func TestCarryOverRejectsCompletedTask(t *testing.T) {
	env := newTestEnv(t)
	user := env.user(t, false)
	task := env.dailyTask(t, user, nil, "done task", day(-1), true)

	if _, err := env.taskSvc.CarryOver(context.Background(), task.ID); !errors.Is(err, ErrTaskCompleted) {
		t.Fatalf("err = %v, want ErrTaskCompleted", err)
	}
}

func TestCarryOverRejectsNonDaily(t *testing.T) {
	env := newTestEnv(t)
	user := env.user(t, false)
	month := 3
	task := &model.Task{UserID: user.ID, Type: model.TaskMonthly, Title: "m", Month: &month}
	if err := env.taskRepo.Create(context.Background(), task); err != nil {
		t.Fatal(err)
	}

	if _, err := env.taskSvc.CarryOver(context.Background(), task.ID); !errors.Is(err, ErrNotDailyTask) {
		t.Fatalf("err = %v, want ErrNotDailyTask", err)
	}
}

func TestCarryOverMovesWithoutDuplicate(t *testing.T) {
	env := newTestEnv(t)
	user := env.user(t, false)
	task := env.dailyTask(t, user, nil, "leftover", day(-1), false)

	moved, err := env.taskSvc.CarryOver(context.Background(), task.ID)
	if err != nil {
		t.Fatalf("CarryOver: %v", err)
	}
	if moved.ID != task.ID {
		t.Fatalf("moved id = %d, want same row %d", moved.ID, task.ID)
	}
	if !moved.CarriedOver {
		t.Fatal("moved task must be flagged carried over")
	}
	want := day(0)
	if moved.Date == nil || !moved.Date.Equal(want) {
		t.Fatalf("moved date = %v, want %v", moved.Date, want)
	}
}

func TestCarryOverMergesIntoDuplicate(t *testing.T) {
	env := newTestEnv(t)
	user := env.user(t, false)
	source := env.dailyTask(t, user, nil, "same task", day(-1), false)
	dup := env.dailyTask(t, user, nil, "same task", day(0), true)

	result, err := env.taskSvc.CarryOver(context.Background(), source.ID)
	if err != nil {
		t.Fatalf("CarryOver: %v", err)
	}
	if result.ID != dup.ID {
		t.Fatalf("result id = %d, want duplicate %d", result.ID, dup.ID)
	}
	if !result.CarriedOver {
		t.Fatal("duplicate must be flagged carried over")
	}
	// An incomplete carry-over must not be masked by a completed duplicate.
	if result.IsDone {
		t.Fatal("duplicate must be forced back to not-done")
	}
	if _, err := env.taskRepo.FindByID(context.Background(), source.ID); err == nil {
		t.Fatal("source row must be deleted after merge")
	}
}

func TestCarryOverDifferentContentIsNotDuplicate(t *testing.T) {
	env := newTestEnv(t)
	user := env.user(t, false)
	source := env.dailyTask(t, user, nil, "same task", day(-1), false)
	other := env.dailyTask(t, user, nil, "same task", day(0), false)
	other.Tags = "health"
	if err := env.taskRepo.Save(context.Background(), other); err != nil {
		t.Fatal(err)
	}

	result, err := env.taskSvc.CarryOver(context.Background(), source.ID)
	if err != nil {
		t.Fatalf("CarryOver: %v", err)
	}
	if result.ID != source.ID {
		t.Fatal("differing tags must not merge")
	}
}

func TestCatchUpOverdueSweepsToReference(t *testing.T) {
	env := newTestEnv(t)
	user := env.user(t, false)
	old := env.dailyTask(t, user, nil, "three days late", day(-3), false)
	future := env.dailyTask(t, user, nil, "tomorrow", day(1), false)
	doneOld := env.dailyTask(t, user, nil, "already done", day(-2), true)

	if err := env.taskSvc.CatchUpOverdue(context.Background(), user.ID, day(0)); err != nil {
		t.Fatalf("CatchUpOverdue: %v", err)
	}

	swept, err := env.taskRepo.FindByID(context.Background(), old.ID)
	if err != nil {
		t.Fatal(err)
	}
	if swept.Date == nil || !swept.Date.Equal(day(0)) {
		t.Fatalf("swept date = %v, want today", swept.Date)
	}
	if !swept.CarriedOver {
		t.Fatal("swept task must be flagged carried over")
	}

	// Future and completed tasks are untouched.
	untouched, _ := env.taskRepo.FindByID(context.Background(), future.ID)
	if !untouched.Date.Equal(day(1)) || untouched.CarriedOver {
		t.Fatalf("future task was moved: %+v", untouched)
	}
	kept, _ := env.taskRepo.FindByID(context.Background(), doneOld.ID)
	if !kept.Date.Equal(day(-2)) {
		t.Fatal("completed overdue task must stay in the past")
	}
}

func TestCatchUpOverdueMergesAlongTheWay(t *testing.T) {
	env := newTestEnv(t)
	user := env.user(t, false)
	source := env.dailyTask(t, user, nil, "daily habit", day(-2), false)
	dup := env.dailyTask(t, user, nil, "daily habit", day(-1), false)

	if err := env.taskSvc.CatchUpOverdue(context.Background(), user.ID, day(0)); err != nil {
		t.Fatalf("CatchUpOverdue: %v", err)
	}

	if _, err := env.taskRepo.FindByID(context.Background(), source.ID); err == nil {
		t.Fatal("source must merge into the closer duplicate")
	}
	merged, err := env.taskRepo.FindByID(context.Background(), dup.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !merged.Date.Equal(day(0)) {
		t.Fatalf("merged task date = %v, want today", merged.Date)
	}
}

func TestListDailyTasksSweepsFirst(t *testing.T) {
	env := newTestEnv(t)
	user := env.user(t, false)
	env.dailyTask(t, user, nil, "yesterday leftover", day(-1), false)
	env.dailyTask(t, user, nil, "today task", day(0), false)

	tasks, err := env.taskSvc.ListDailyTasks(context.Background(), user.ID, day(0))
	if err != nil {
		t.Fatalf("ListDailyTasks: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("tasks = %d, want 2 after sweep", len(tasks))
	}
}

func TestBreakdownQuota(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	free := env.user(t, false)

	first, err := env.goalSvc.CreateGoal(ctx, free, GoalInput{Title: "goal 1"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.taskSvc.Breakdown(ctx, free, first, BreakdownRequest{Months: 1, WeeksPerMonth: 1, DaysPerWeek: 1}); err != nil {
		t.Fatalf("first breakdown should pass quota: %v", err)
	}

	if _, err := env.goalSvc.CreateGoal(ctx, free, GoalInput{Title: "goal 2"}); err != nil {
		t.Fatal(err)
	}
	if _, err := env.taskSvc.Breakdown(ctx, free, first, BreakdownRequest{Months: 1, WeeksPerMonth: 1, DaysPerWeek: 1}); !errors.Is(err, ErrFreeLimitReached) {
		t.Fatalf("err = %v, want ErrFreeLimitReached", err)
	}

	premium := &model.User{Email: "p@example.com", Name: "P", IsPremium: true}
	if err := env.userRepo.Create(ctx, premium); err != nil {
		t.Fatal(err)
	}
	pGoal, err := env.goalSvc.CreateGoal(ctx, premium, GoalInput{Title: "premium goal"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.taskSvc.Breakdown(ctx, premium, pGoal, BreakdownRequest{Months: 1, WeeksPerMonth: 1, DaysPerWeek: 1}); err != nil {
		t.Fatalf("premium user must not hit the quota: %v", err)
	}
}

func TestBreakdownPersistReplacesAndExpands(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.user(t, true)

	deadline := day(9)
	goal, err := env.goalSvc.CreateGoal(ctx, user, GoalInput{Title: "TOEIC 700点", Deadline: &deadline})
	if err != nil {
		t.Fatal(err)
	}

	result, err := env.taskSvc.Breakdown(ctx, user, goal, BreakdownRequest{Persist: true})
	if err != nil {
		t.Fatalf("Breakdown: %v", err)
	}
	if result.Source != planner.SourceFallback {
		t.Fatalf("source = %q, want fallback without provider", result.Source)
	}
	if len(result.Monthly) != 0 || len(result.Weekly) != 2 || len(result.Daily) != 10 {
		t.Fatalf("counts = %d/%d/%d, want 0/2/10", len(result.Monthly), len(result.Weekly), len(result.Daily))
	}

	tasks, err := env.taskSvc.ListGoalTasks(ctx, goal.ID)
	if err != nil {
		t.Fatal(err)
	}
	// Each fallback daily note decodes to 3 sub-tasks, so the 10 daily
	// drafts expand to 30 rows, plus 2 weekly rows.
	if len(tasks) != 32 {
		t.Fatalf("persisted rows = %d, want 32", len(tasks))
	}
	for _, task := range tasks {
		if task.Type == model.TaskDaily && task.Note != "" {
			t.Fatalf("expanded daily row kept its note: %+v", task)
		}
	}

	// Regeneration replaces wholesale, never accumulates.
	if _, err := env.taskSvc.Breakdown(ctx, user, goal, BreakdownRequest{Persist: true}); err != nil {
		t.Fatal(err)
	}
	tasks, err = env.taskSvc.ListGoalTasks(ctx, goal.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(tasks) != 32 {
		t.Fatalf("rows after regeneration = %d, want 32", len(tasks))
	}
}

func TestApplyRevisions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.user(t, false)
	goal, err := env.goalSvc.CreateGoal(ctx, user, GoalInput{Title: "goal"})
	if err != nil {
		t.Fatal(err)
	}
	otherGoal, err := env.goalSvc.CreateGoal(ctx, user, GoalInput{Title: "other"})
	if err != nil {
		t.Fatal(err)
	}

	titled := env.dailyTask(t, user, &goal.ID, "古いタイトル", day(0), false)
	noted := env.dailyTask(t, user, &goal.ID, "サブタスク持ち", day(0), false)
	noted.Note = "- 準備する\n- 実行する"
	if err := env.taskRepo.Save(ctx, noted); err != nil {
		t.Fatal(err)
	}
	foreign := env.dailyTask(t, user, &otherGoal.ID, "別の目標のタスク", day(0), false)

	idx := 1
	updated, err := env.taskSvc.ApplyRevisions(ctx, goal.ID, []planner.RevisionProposal{
		{TargetTaskID: int(titled.ID), TargetType: planner.TargetDaily, After: "新しいタイトル"},
		{TargetTaskID: int(noted.ID), TargetType: planner.TargetSubtask, SubtaskIndex: &idx, After: "丁寧に実行する"},
		{TargetTaskID: int(foreign.ID), TargetType: planner.TargetDaily, After: "無視される"},
		{TargetTaskID: 99999, TargetType: planner.TargetDaily, After: "存在しない"},
	})
	if err != nil {
		t.Fatalf("ApplyRevisions: %v", err)
	}
	if len(updated) != 2 {
		t.Fatalf("updated = %d tasks, want 2", len(updated))
	}

	got, _ := env.taskRepo.FindByID(ctx, titled.ID)
	if got.Title != "新しいタイトル" {
		t.Fatalf("title = %q", got.Title)
	}
	got, _ = env.taskRepo.FindByID(ctx, noted.ID)
	if got.Note != "- 準備する\n- 丁寧に実行する" {
		t.Fatalf("note = %q", got.Note)
	}
	got, _ = env.taskRepo.FindByID(ctx, foreign.ID)
	if got.Title != "別の目標のタスク" {
		t.Fatal("task of another goal must not be touched")
	}
}

func TestUpdateTaskRejectsDateChangeWhenDone(t *testing.T) {
	env := newTestEnv(t)
	user := env.user(t, false)
	task := env.dailyTask(t, user, nil, "done", day(0), true)

	newDate := day(1)
	if _, err := env.taskSvc.UpdateTask(context.Background(), task.ID, TaskUpdate{Date: &newDate}); !errors.Is(err, ErrTaskCompleted) {
		t.Fatalf("err = %v, want ErrTaskCompleted", err)
	}

	// Title edits on a completed task are still fine.
	title := "renamed"
	if _, err := env.taskSvc.UpdateTask(context.Background(), task.ID, TaskUpdate{Title: &title}); err != nil {
		t.Fatalf("title update: %v", err)
	}
}

func TestCreateTaskValidation(t *testing.T) {
	env := newTestEnv(t)
	user := env.user(t, false)
	ctx := context.Background()

	if _, err := env.taskSvc.CreateTask(ctx, TaskInput{UserID: user.ID, Type: model.TaskDaily}); err == nil {
		t.Fatal("empty title must be rejected")
	}
	if _, err := env.taskSvc.CreateTask(ctx, TaskInput{UserID: user.ID, Type: "yearly", Title: "x"}); err == nil {
		t.Fatal("unknown type must be rejected")
	}
	d := day(0)
	if _, err := env.taskSvc.CreateTask(ctx, TaskInput{UserID: user.ID, Type: model.TaskWeekly, Title: "x", Date: &d}); err == nil {
		t.Fatal("date on non-daily task must be rejected")
	}
}
