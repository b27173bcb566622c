package engine

import (
	"fmt"
	"time"

	"github.com/Freeeeeet/class_track_bot/internal/model"
	"github.com/Freeeeeet/class_track_bot/internal/schedule"
	"go.uber.org/zap"
)

// Renew продлевает цикл: выводит шаблон из проведённых занятий ученика,
// генерирует count новых занятий после последнего известного занятия
// и добавляет их к балансу. Повреждённая запись не изменяется.
func (e *Engine) Renew(st *model.Student, history []*model.LogEntry, count int, now time.Time) (*Result, error) {
	if err := st.Validate(); err != nil {
		return nil, fmt.Errorf("renew %s: %w", st.ID, err)
	}
	if count <= 0 {
		return nil, fmt.Errorf("renew %s: %w: count must be positive, got %d", st.ID, model.ErrInvalidFormat, count)
	}

	completed := e.completedHistory(st.ID, history)
	pattern, ok := schedule.ExtractWeeklyPattern(completed, e.loc)
	if !ok {
		return nil, fmt.Errorf("renew %s from %d completed classes: %w", st.ID, len(completed), model.ErrNoPattern)
	}

	s := st.Clone()
	dates := e.parseDates(s.ID, "class_dates", s.ClassDates)

	anchor := now
	if last, found := latest(dates); found && last.After(anchor) {
		anchor = last
	}
	for _, t := range completed {
		if t.After(anchor) {
			anchor = t
		}
	}

	generated := schedule.Generate(anchor, pattern, count)
	s.ClassDates = sortedUnique(addUnique(dates, generated))
	s.ClassesRemaining += count
	s.LastBalanceWarning = nil

	if len(generated) > 0 {
		renewal := generated[len(generated)-1].In(e.loc)
		if bound, ok := e.renewalBound(s); !ok || renewal.After(bound) {
			s.RenewalDate = schedule.FormatDate(renewal)
		}
	}

	entry := model.NewLogEntry(s.ID, model.LogStatusRenewed, schedule.FormatTimestamp(now), now)
	entry.Quantity = count
	entry.Note = schedule.FormatPattern(pattern)

	e.logger.Info("Cycle renewed",
		zap.String("student_id", s.ID),
		zap.String("pattern", entry.Note),
		zap.Time("anchor", anchor),
		zap.Int("generated", len(generated)),
		zap.Int("classes_remaining", s.ClassesRemaining),
		zap.String("renewal_date", s.RenewalDate))

	return &Result{Student: s, Log: entry, DatesChanged: true}, nil
}

// RenewSame продлевает завершённый цикл на столько же занятий, сколько при
// последнем продлении. history должен содержать и проведённые занятия, и продления.
func (e *Engine) RenewSame(st *model.Student, history []*model.LogEntry, now time.Time) (*Result, error) {
	if !e.IsCycleFinished(st, now) {
		return nil, fmt.Errorf("renew %s: %w: %d classes remaining", st.ID, model.ErrCycleActive, st.ClassesRemaining)
	}
	count, ok := LastRenewalQuantity(st.ID, history)
	if !ok {
		return nil, fmt.Errorf("renew %s: %w", st.ID, model.ErrNoRenewal)
	}
	return e.Renew(st, history, count, now)
}

// IsCycleFinished сообщает, закончился ли цикл: баланс исчерпан и будущих занятий нет
func (e *Engine) IsCycleFinished(st *model.Student, now time.Time) bool {
	if st.ClassesRemaining != 0 {
		return false
	}
	for _, o := range e.parseDates(st.ID, "class_dates", st.ClassDates) {
		if o.at.After(now) {
			return false
		}
	}
	return true
}

// LastRenewalQuantity возвращает количество занятий последнего продления ученика.
// history упорядочен по времени записи.
func LastRenewalQuantity(studentID string, history []*model.LogEntry) (int, bool) {
	for i := len(history) - 1; i >= 0; i-- {
		entry := history[i]
		if entry == nil || entry.StudentID != studentID || entry.Status != model.LogStatusRenewed {
			continue
		}
		if entry.Quantity > 0 {
			return entry.Quantity, true
		}
	}
	return 0, false
}

// completedHistory выбирает моменты проведённых занятий ученика из журнала
func (e *Engine) completedHistory(studentID string, history []*model.LogEntry) []time.Time {
	var result []time.Time
	for _, entry := range history {
		if entry == nil || entry.StudentID != studentID || entry.Status != model.LogStatusCompleted {
			continue
		}
		at, err := schedule.ParseTimestamp(entry.Date, e.loc)
		if err != nil {
			e.logger.Warn("Skipping unparseable history entry",
				zap.String("student_id", studentID),
				zap.String("value", entry.Date),
				zap.Error(err))
			continue
		}
		result = append(result, at)
	}
	return result
}

// EnsureHorizon дополняет class_dates по schedule_pattern до горизонта
// (cycle_weeks вперёд, но не дальше renewal_date). Для приостановленного
// ученика и пустого шаблона ничего не делает. Журнал не пишется.
func (e *Engine) EnsureHorizon(st *model.Student, now time.Time) (*Result, error) {
	if err := st.Validate(); err != nil {
		return nil, fmt.Errorf("ensure horizon %s: %w", st.ID, err)
	}

	s := st.Clone()
	if s.Paused {
		return &Result{Student: s}, nil
	}
	slots, err := e.patternSlots(s)
	if err != nil {
		return nil, err
	}
	if len(slots) == 0 {
		return &Result{Student: s}, nil
	}

	limit := e.horizon(s, now)
	dates := e.parseDates(s.ID, "class_dates", s.ClassDates)

	anchor := now
	last, found := latest(dates)
	if found && !last.Before(limit) {
		return &Result{Student: s}, nil
	}
	if found && last.After(anchor) {
		anchor = last
	}

	generated := schedule.GenerateUntil(anchor, slots, limit)
	if len(generated) == 0 {
		return &Result{Student: s}, nil
	}
	s.ClassDates = sortedUnique(addUnique(dates, generated))

	e.logger.Info("Schedule extended to horizon",
		zap.String("student_id", s.ID),
		zap.Int("generated", len(generated)),
		zap.Time("horizon", limit))

	return &Result{Student: s, DatesChanged: true}, nil
}
