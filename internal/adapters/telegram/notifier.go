package telegram

import (
	"fmt"
	"sort"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"tap-prometheus/internal/adapters/config"
	"tap-prometheus/pkg/logger"
)

// Notifier sends run summaries and failure alerts to a Telegram chat.
// Notification failures are logged but never fail the run.
type Notifier struct {
	api    *tgbotapi.BotAPI
	chatID int64
}

// NewNotifier creates a Telegram notifier.
func NewNotifier(cfg *config.TelegramConfig) (*Notifier, error) {
	if cfg.BotToken == "" {
		return nil, fmt.Errorf("telegram bot token is required")
	}
	if cfg.ChatID == 0 {
		return nil, fmt.Errorf("telegram chat_id is required")
	}

	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot API: %w", err)
	}
	bot.Debug = false

	logger.Info("telegram notifier initialized",
		zap.String("bot_username", bot.Self.UserName),
	)

	return &Notifier{api: bot, chatID: cfg.ChatID}, nil
}

// NotifyRunSummary reports the per-metric record counts after a run.
func (n *Notifier) NotifyRunSummary(counts map[string]int, elapsed time.Duration) {
	names := make([]string, 0, len(counts))
	total := 0
	for name, count := range counts {
		names = append(names, name)
		total += count
	}
	sort.Strings(names)

	var sb strings.Builder
	fmt.Fprintf(&sb, "✅ Metrics sync finished in %s\n", elapsed.Round(time.Second))
	for _, name := range names {
		fmt.Fprintf(&sb, "• %s: %d new records\n", name, counts[name])
	}
	fmt.Fprintf(&sb, "Total: %d records", total)

	n.send(sb.String())
}

// NotifyFailure reports a failed run.
func (n *Notifier) NotifyFailure(err error) {
	n.send(fmt.Sprintf("❌ Metrics sync failed: %v", err))
}

func (n *Notifier) send(text string) {
	msg := tgbotapi.NewMessage(n.chatID, text)
	if _, err := n.api.Send(msg); err != nil {
		logger.Warn("failed to send telegram notification", zap.Error(err))
	}
}
