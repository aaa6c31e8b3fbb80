package bot

import (
	"context"
	"fmt"
	"log"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/MurakamiHonami/streeeak/internal/repository"
	"github.com/MurakamiHonami/streeeak/internal/service"
)

// Notifier pushes daily task summaries to users who linked a Telegram chat.
// It has no conversational surface; the web API owns all task editing.
type Notifier struct {
	api         *tgbotapi.BotAPI
	userRepo    *repository.UserRepository
	reminderSvc *service.ReminderService
}

func NewNotifier(token string, userRepo *repository.UserRepository, reminderSvc *service.ReminderService) (*Notifier, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}

	log.Printf("[info] notifier authorized on account %s", api.Self.UserName)

	return &Notifier{
		api:         api,
		userRepo:    userRepo,
		reminderSvc: reminderSvc,
	}, nil
}

// SendDailyReports pushes each linked user's daily summary. Per-user
// failures are logged and skipped so one broken chat does not starve the
// rest.
func (n *Notifier) SendDailyReports(ctx context.Context) error {
	users, err := n.userRepo.ListWithTelegram(ctx)
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}

	now := time.Now()
	for _, user := range users {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		summary, err := n.reminderSvc.DailySummary(ctx, user, now)
		if err != nil {
			log.Printf("[warn] summary for user %d: %v", user.ID, err)
			continue
		}

		msg := tgbotapi.NewMessage(user.TelegramChatID, summary)
		msg.ParseMode = tgbotapi.ModeHTML
		if _, err := n.api.Send(msg); err != nil {
			log.Printf("[warn] send report to user %d: %v", user.ID, err)
		}
	}
	return nil
}
