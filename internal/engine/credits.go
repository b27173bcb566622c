package engine

import (
	"fmt"
	"time"

	"github.com/Freeeeeet/class_track_bot/internal/model"
	"github.com/Freeeeeet/class_track_bot/internal/schedule"
	"go.uber.org/zap"
)

// AwardFreeCredit начисляет бесплатное занятие
func (e *Engine) AwardFreeCredit(st *model.Student, now time.Time) *Result {
	s := st.Clone()
	s.FreeClassCredit++

	e.logger.Info("Free class credit awarded",
		zap.String("student_id", s.ID),
		zap.Int("free_class_credit", s.FreeClassCredit))

	entry := model.NewLogEntry(s.ID, model.LogStatusFreeCreditAwarded, schedule.FormatTimestamp(now), now)
	entry.Quantity = 1
	return &Result{Student: s, Log: entry}
}

// AwardRescheduleCredit начисляет кредит на перенос
func (e *Engine) AwardRescheduleCredit(st *model.Student, now time.Time) *Result {
	s := st.Clone()
	s.RescheduleCredit++

	e.logger.Info("Reschedule credit awarded",
		zap.String("student_id", s.ID),
		zap.Int("reschedule_credit", s.RescheduleCredit))

	entry := model.NewLogEntry(s.ID, model.LogStatusRescheduleCreditAwarded, schedule.FormatTimestamp(now), now)
	entry.Quantity = 1
	return &Result{Student: s, Log: entry}
}

// lowBalanceThreshold баланс, начиная с которого ученика предупреждают
const lowBalanceThreshold = 2

// BalanceWarning возвращает текст предупреждения о заканчивающемся балансе.
// Предупреждение положено при балансе 2, 1 или 0, если о таком значении ещё не
// предупреждали. Приостановленным и не привязанным к платформе ученикам не пишем.
func (e *Engine) BalanceWarning(st *model.Student) (string, bool) {
	if st.Paused || !st.HasTelegram() {
		return "", false
	}
	remaining := st.ClassesRemaining
	if remaining < 0 || remaining > lowBalanceThreshold {
		return "", false
	}
	if st.LastBalanceWarning != nil && *st.LastBalanceWarning == remaining {
		return "", false
	}

	if remaining == 0 {
		return fmt.Sprintf("Hi %s, your plan has finished, please renew.", st.Name), true
	}
	noun := "classes"
	if remaining == 1 {
		noun = "class"
	}
	return fmt.Sprintf("Hi %s, you have %d %s remaining in your plan.", st.Name, remaining, noun), true
}

// MarkBalanceWarned запоминает баланс, о котором ученик предупреждён. Журнал не пишется.
func (e *Engine) MarkBalanceWarned(st *model.Student) *Result {
	s := st.Clone()
	remaining := s.ClassesRemaining
	s.LastBalanceWarning = &remaining

	e.logger.Info("Low balance warning recorded",
		zap.String("student_id", s.ID),
		zap.Int("classes_remaining", remaining))

	return &Result{Student: s}
}

// SetPaused включает или снимает паузу
func (e *Engine) SetPaused(st *model.Student, paused bool) *Result {
	s := st.Clone()
	s.Paused = paused

	e.logger.Info("Pause toggled",
		zap.String("student_id", s.ID),
		zap.Bool("paused", paused))

	return &Result{Student: s}
}

// SetReminderOffset задаёт за сколько минут напоминать о занятии; 0 отключает напоминания
func (e *Engine) SetReminderOffset(st *model.Student, minutes int) (*Result, error) {
	if minutes < 0 {
		return nil, fmt.Errorf("reminder offset %d: %w", minutes, model.ErrInvalidFormat)
	}

	s := st.Clone()
	s.ReminderOffsetMinutes = minutes

	e.logger.Info("Reminder offset updated",
		zap.String("student_id", s.ID),
		zap.Int("reminder_offset_minutes", minutes))

	return &Result{Student: s}, nil
}

// UpcomingClasses возвращает будущие неотменённые занятия в пределах renewal_date.
// Без premium список ограничен оставшимся балансом. limit <= 0 не ограничивает.
func (e *Engine) UpcomingClasses(s *model.Student, now time.Time, limit int) []time.Time {
	dates := e.parseDates(s.ID, "class_dates", s.ClassDates)
	cancelled := e.parseDates(s.ID, "cancelled_dates", s.CancelledDates)
	bound, bounded := e.renewalBound(s)

	result := make([]time.Time, 0, len(dates))
	for _, o := range sortedOccurrences(dates) {
		if !o.at.After(now) || findInstant(cancelled, o.at) >= 0 {
			continue
		}
		if bounded && o.at.After(bound) {
			continue
		}
		result = append(result, o.at)
	}

	if !s.Premium && len(result) > s.ClassesRemaining {
		result = result[:s.ClassesRemaining]
	}
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result
}
