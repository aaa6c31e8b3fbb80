package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MurakamiHonami/streeeak/internal/bot"
	"github.com/MurakamiHonami/streeeak/internal/config"
	"github.com/MurakamiHonami/streeeak/internal/gemini"
	"github.com/MurakamiHonami/streeeak/internal/planner"
	"github.com/MurakamiHonami/streeeak/internal/repository"
	"github.com/MurakamiHonami/streeeak/internal/service"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	db, err := repository.NewDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	sqlDB, err := db.DB()
	if err == nil {
		defer sqlDB.Close()
	}

	userRepo := repository.NewUserRepository(db)
	goalRepo := repository.NewGoalRepository(db)
	taskRepo := repository.NewTaskRepository(db)

	engine := planner.NewEngine(gemini.NewClient(cfg.GeminiAPIKey, cfg.GeminiModel))
	if cfg.GeminiAPIKey == "" {
		log.Println("[info] GEMINI_API_KEY not set, breakdowns use deterministic fallback")
	}

	taskSvc := service.NewTaskService(taskRepo, goalRepo, engine)
	reminderSvc := service.NewReminderService(taskSvc)

	scheduler := service.NewSchedulerService(time.Local)

	if _, err := scheduler.ScheduleDaily(cfg.SweepTime, func() {
		jobCtx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		if err := sweepAllUsers(jobCtx, userRepo, taskSvc); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("sweep: %v", err)
		}
	}); err != nil {
		log.Fatalf("schedule sweep: %v", err)
	}

	if cfg.TelegramToken != "" {
		notifier, err := bot.NewNotifier(cfg.TelegramToken, userRepo, reminderSvc)
		if err != nil {
			log.Fatalf("notifier: %v", err)
		}
		if _, err := scheduler.ScheduleInterval(cfg.ReportInterval, func() {
			jobCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := notifier.SendDailyReports(jobCtx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("report: %v", err)
			}
		}); err != nil {
			log.Fatalf("schedule reports: %v", err)
		}
	}

	scheduler.Start()
	defer scheduler.Stop()

	log.Println("Streeeak task engine started.")
	<-ctx.Done()
	log.Println("Shutdown complete.")
}

// sweepAllUsers advances every user's overdue daily tasks up to today.
func sweepAllUsers(ctx context.Context, userRepo *repository.UserRepository, taskSvc *service.TaskService) error {
	users, err := userRepo.ListAll(ctx)
	if err != nil {
		return err
	}
	for _, user := range users {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := taskSvc.CatchUpOverdue(ctx, user.ID, time.Now()); err != nil {
			log.Printf("[warn] catch up user %d: %v", user.ID, err)
		}
	}
	return nil
}
