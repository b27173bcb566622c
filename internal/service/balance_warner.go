package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// MessageSender отправляет сообщение ученику
type MessageSender interface {
	SendReminder(ctx context.Context, chatID int64, text string) error
}

// BalanceWarner предупреждает учеников о заканчивающемся балансе
type BalanceWarner struct {
	students *StudentService
	sender   MessageSender
	logger   *zap.Logger
}

func NewBalanceWarner(students *StudentService, sender MessageSender, logger *zap.Logger) *BalanceWarner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BalanceWarner{
		students: students,
		sender:   sender,
		logger:   logger,
	}
}

// WarnLowBalances обходит всех учеников и отправляет положенные предупреждения.
// Ошибка отправки одному ученику не останавливает обход. Возвращает количество отправленных.
func (w *BalanceWarner) WarnLowBalances(ctx context.Context) (int, error) {
	students, err := w.students.store.ListStudents(ctx)
	if err != nil {
		return 0, fmt.Errorf("list students: %w", err)
	}

	sent := 0
	var errs []error
	for _, st := range students {
		ok, err := w.students.WarnLowBalance(ctx, st.ID, w.sender)
		if err != nil {
			w.logger.Warn("Failed to send low balance warning",
				zap.String("student_id", st.ID),
				zap.String("name", st.Name),
				zap.Error(err))
			errs = append(errs, err)
			continue
		}
		if ok {
			sent++
		}
	}

	if sent > 0 {
		w.logger.Info("Low balance warnings sent", zap.Int("sent", sent))
	}
	return sent, errors.Join(errs...)
}
