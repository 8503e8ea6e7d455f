package alert

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// telegramSendInterval keeps a chat under Telegram's per-chat flood limit.
const telegramSendInterval = 2 * time.Second

// ErrQueueFull is returned by Notify when the send queue is saturated.
var ErrQueueFull = errors.New("notification queue full")

// TelegramNotifier delivers system notifications to one Telegram chat. Notify
// only enqueues; Run drains the queue at a safe pace.
type TelegramNotifier struct {
	bot     *tgbotapi.BotAPI
	chatID  int64
	queue   chan string
	spacing *TokenBucket
	logger  *slog.Logger
}

// NewTelegramNotifier connects to the Bot API and verifies the token.
func NewTelegramNotifier(token string, chatID int64, logger *slog.Logger) (*TelegramNotifier, error) {
	return newTelegramNotifier(token, tgbotapi.APIEndpoint, chatID, logger)
}

func newTelegramNotifier(token, endpoint string, chatID int64, logger *slog.Logger) (*TelegramNotifier, error) {
	bot, err := tgbotapi.NewBotAPIWithAPIEndpoint(token, endpoint)
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	bot.Debug = false
	return &TelegramNotifier{
		bot:     bot,
		chatID:  chatID,
		queue:   make(chan string, 100),
		spacing: NewTokenBucket(1, 1/telegramSendInterval.Seconds()),
		logger:  logger.With("component", "telegram", "chat_id", chatID),
	}, nil
}

// Notify queues a message without blocking.
func (n *TelegramNotifier) Notify(_ context.Context, title, body string) error {
	select {
	case n.queue <- title + "\n" + body:
		return nil
	default:
		return ErrQueueFull
	}
}

// Run sends queued messages until ctx is cancelled.
func (n *TelegramNotifier) Run(ctx context.Context) {
	n.logger.Info("telegram notifier started")
	for {
		select {
		case <-ctx.Done():
			return
		case text := <-n.queue:
			if err := n.spacing.Wait(ctx); err != nil {
				return
			}
			if _, err := n.bot.Send(tgbotapi.NewMessage(n.chatID, text)); err != nil {
				n.logger.Warn("telegram send failed", "error", err)
			}
		}
	}
}

// LogNotifier is the system-notification channel used when no external
// notifier is configured: the notification only goes to the log.
type LogNotifier struct {
	Logger *slog.Logger
}

func (l LogNotifier) Notify(_ context.Context, title, body string) error {
	l.Logger.Info("system notification", "title", title, "body", body)
	return nil
}
