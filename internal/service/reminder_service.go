package service

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/MurakamiHonami/streeeak/internal/model"
)

// ReminderService builds human-readable summaries for daily notifications.
type ReminderService struct {
	taskSvc *TaskService
}

func NewReminderService(taskSvc *TaskService) *ReminderService {
	return &ReminderService{taskSvc: taskSvc}
}

// DailySummary renders today's daily tasks for the user as Telegram HTML.
// Overdue tasks are swept forward before rendering, so carried-over items
// appear in today's list already flagged.
func (s *ReminderService) DailySummary(ctx context.Context, user model.User, now time.Time) (string, error) {
	tasks, err := s.taskSvc.ListDailyTasks(ctx, user.ID, now)
	if err != nil {
		return "", err
	}

	var pending, done []model.Task
	for _, task := range tasks {
		if task.IsDone {
			done = append(done, task)
		} else {
			pending = append(pending, task)
		}
	}

	var builder strings.Builder
	builder.WriteString("📋 <b>今日のタスク</b>\n")
	builder.WriteString(fmt.Sprintf("🗓 %s\n\n", now.Format("2006-01-02")))

	if len(pending) == 0 {
		builder.WriteString("— 未完了のタスクはありません\n")
	} else {
		for _, task := range pending {
			builder.WriteString(formatDailyTask(task))
		}
	}

	if len(done) > 0 {
		builder.WriteString(fmt.Sprintf("\n✅ <b>完了済み</b> %d件\n", len(done)))
	}

	return strings.TrimSpace(builder.String()), nil
}

func formatDailyTask(task model.Task) string {
	var sb strings.Builder

	icon := "🟢"
	if task.CarriedOver {
		icon = "↪️"
	}
	title := html.EscapeString(strings.TrimSpace(task.Title))
	sb.WriteString(fmt.Sprintf("%s %s", icon, title))

	if task.CarriedOver {
		sb.WriteString(" <i>(持ち越し)</i>")
	}
	if tags := strings.TrimSpace(task.Tags); tags != "" {
		sb.WriteString(fmt.Sprintf(" <i>[%s]</i>", html.EscapeString(tags)))
	}

	sb.WriteByte('\n')
	return sb.String()
}
