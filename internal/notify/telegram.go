// Package notify доставляет напоминания ученикам и оповещения администраторам.
package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"go.uber.org/zap"
)

// Sender отправка сообщения в Telegram; реализуется *bot.Bot
type Sender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
}

// Telegram уведомления через Telegram-бота
type Telegram struct {
	sender   Sender
	adminIDs []int64
	logger   *zap.Logger
}

func NewTelegram(sender Sender, adminIDs []int64, logger *zap.Logger) *Telegram {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Telegram{
		sender:   sender,
		adminIDs: append([]int64(nil), adminIDs...),
		logger:   logger,
	}
}

// SendReminder отправляет напоминание ученику
func (t *Telegram) SendReminder(ctx context.Context, chatID int64, text string) error {
	_, err := t.sender.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: chatID,
		Text:   text,
	})
	if err != nil {
		return fmt.Errorf("send reminder to %d: %w", chatID, err)
	}
	return nil
}

// NotifyAdmins отправляет сообщение всем администраторам
func (t *Telegram) NotifyAdmins(ctx context.Context, text string) error {
	var errs []error
	for _, id := range t.adminIDs {
		_, err := t.sender.SendMessage(ctx, &bot.SendMessageParams{
			ChatID: id,
			Text:   text,
		})
		if err != nil {
			t.logger.Warn("Failed to notify admin", zap.Int64("admin_id", id), zap.Error(err))
			errs = append(errs, fmt.Errorf("notify admin %d: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

// LogNotifier пишет сообщения в лог; используется, когда токен бота не задан
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) SendReminder(_ context.Context, chatID int64, text string) error {
	n.logger.Info("Reminder", zap.Int64("chat_id", chatID), zap.String("text", text))
	return nil
}

func (n *LogNotifier) NotifyAdmins(_ context.Context, text string) error {
	n.logger.Warn("Admin notification", zap.String("text", text))
	return nil
}
