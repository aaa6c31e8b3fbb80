package service

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestDailySummaryListsPendingAndDone(t *testing.T) {
	env := newTestEnv(t)
	user := env.user(t, false)
	env.dailyTask(t, user, nil, "単語30個", day(0), false)
	env.dailyTask(t, user, nil, "リスニング20分", day(0), true)
	env.dailyTask(t, user, nil, "昨日の残り", day(-1), false)

	reminderSvc := NewReminderService(env.taskSvc)
	summary, err := reminderSvc.DailySummary(context.Background(), *user, time.Now())
	if err != nil {
		t.Fatalf("DailySummary: %v", err)
	}

	if !strings.Contains(summary, "単語30個") {
		t.Fatal("pending task missing from summary")
	}
	// Yesterday's leftover is swept into today and flagged.
	if !strings.Contains(summary, "昨日の残り") || !strings.Contains(summary, "持ち越し") {
		t.Fatalf("carried-over task not rendered: %s", summary)
	}
	if !strings.Contains(summary, "完了済み") {
		t.Fatal("done section missing")
	}
}

func TestDailySummaryEmpty(t *testing.T) {
	env := newTestEnv(t)
	user := env.user(t, false)

	reminderSvc := NewReminderService(env.taskSvc)
	summary, err := reminderSvc.DailySummary(context.Background(), *user, time.Now())
	if err != nil {
		t.Fatalf("DailySummary: %v", err)
	}
	if !strings.Contains(summary, "未完了のタスクはありません") {
		t.Fatalf("empty summary = %s", summary)
	}
}
