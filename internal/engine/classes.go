package engine

import (
	"fmt"
	"strings"
	"time"

	"github.com/Freeeeeet/class_track_bot/internal/model"
	"github.com/Freeeeeet/class_track_bot/internal/schedule"
	"go.uber.org/zap"
)

// CompleteClass отмечает занятие проведённым: убирает его из class_dates
// и списывает одно занятие с баланса (не ниже нуля). Отметка об отмене
// для этого занятия снимается: проведённое занятие отменённым не считается.
func (e *Engine) CompleteClass(st *model.Student, value string, now time.Time) (*Result, error) {
	return e.complete(st, value, now, false)
}

// CompleteWithFreeCredit отмечает занятие проведённым за счёт бесплатного кредита:
// списывается free_class_credit, баланс занятий не меняется.
func (e *Engine) CompleteWithFreeCredit(st *model.Student, value string, now time.Time) (*Result, error) {
	if st.FreeClassCredit <= 0 {
		return nil, fmt.Errorf("complete class %s with free credit: %w", value, model.ErrNoCredit)
	}
	return e.complete(st, value, now, true)
}

func (e *Engine) complete(st *model.Student, value string, now time.Time, free bool) (*Result, error) {
	at, err := e.parseOccurrence(value)
	if err != nil {
		return nil, err
	}

	s := st.Clone()
	dates := e.parseDates(s.ID, "class_dates", s.ClassDates)
	idx := findInstant(dates, at)
	if idx < 0 {
		return nil, fmt.Errorf("complete class %s: %w", value, model.ErrNotFound)
	}
	matched := dates[idx].raw

	s.ClassDates = sortedUnique(removeAt(dates, idx))

	entry := model.NewLogEntry(s.ID, model.LogStatusCompleted, matched, now)
	var notes []string
	if free {
		s.FreeClassCredit--
		notes = append(notes, "free class credit used")
	} else {
		s.ClassesRemaining = decrement(s.ClassesRemaining)
	}

	cancelled := e.parseDates(s.ID, "cancelled_dates", s.CancelledDates)
	if c := findInstant(cancelled, at); c >= 0 {
		s.CancelledDates = uniqueInOrder(removeAt(cancelled, c))
		notes = append(notes, "cancel mark cleared")
		e.logger.Info("Completed class was marked cancelled; clearing mark",
			zap.String("student_id", s.ID),
			zap.String("occurrence", matched))
	}

	entry.Note = strings.Join(notes, "; ")

	e.logger.Info("Class completed",
		zap.String("student_id", s.ID),
		zap.String("occurrence", matched),
		zap.Bool("free_credit", free),
		zap.Int("classes_remaining", s.ClassesRemaining),
		zap.Int("free_class_credit", s.FreeClassCredit))

	return &Result{
		Student:      s,
		Log:          entry,
		DatesChanged: true,
	}, nil
}

// CancelClass отменяет занятие по запросу ученика.
// Поздняя отмена (позже чем за cutoff_hours) списывает занятие с баланса,
// ранняя убирает занятие из расписания и пытается добавить замену по шаблону.
func (e *Engine) CancelClass(st *model.Student, value string, now time.Time) (*Result, error) {
	if st.Paused {
		return nil, fmt.Errorf("cancel class %s: %w", value, model.ErrPaused)
	}

	at, err := e.parseOccurrence(value)
	if err != nil {
		return nil, err
	}

	s := st.Clone()
	dates := e.parseDates(s.ID, "class_dates", s.ClassDates)
	idx := findInstant(dates, at)
	if idx < 0 {
		return nil, fmt.Errorf("cancel class %s: %w", value, model.ErrNotFound)
	}
	matched := dates[idx]

	cutoff := time.Duration(s.CutoffHours) * time.Hour
	isLate := now.After(matched.at.Add(-cutoff))
	if now.After(matched.at) {
		e.logger.Warn("Late cancellation after class start",
			zap.String("student_id", s.ID),
			zap.String("occurrence", matched.raw),
			zap.Time("now", now))
	}

	cancelled := e.parseDates(s.ID, "cancelled_dates", s.CancelledDates)
	alreadyCancelled := findInstant(cancelled, matched.at) >= 0
	if !alreadyCancelled {
		cancelled = append(cancelled, matched)
	}
	s.CancelledDates = uniqueInOrder(cancelled)

	status := model.LogStatusCancelledEarly
	entry := model.NewLogEntry(s.ID, status, matched.raw, now)
	changed := false

	if isLate {
		entry.Status = model.LogStatusCancelledLate
		if alreadyCancelled {
			entry.Note = "already cancelled, no credit deducted"
		} else {
			s.ClassesRemaining = decrement(s.ClassesRemaining)
		}
		s.ClassDates = sortedUnique(dates)
	} else {
		dates = removeAt(dates, idx)
		dates = e.makeGood(s, dates)
		s.ClassDates = sortedUnique(dates)
		changed = true
	}
	entry.IsLate = &isLate

	e.logger.Info("Class cancelled",
		zap.String("student_id", s.ID),
		zap.String("occurrence", matched.raw),
		zap.Bool("is_late", isLate),
		zap.Int("classes_remaining", s.ClassesRemaining))

	return &Result{Student: s, Log: entry, DatesChanged: changed}, nil
}

// makeGood добавляет одно замещающее занятие по шаблону, выведенному из текущих class_dates.
// Шаблон строится по оставшимся датам, поэтому при малом числе занятий слот может не найтись.
func (e *Engine) makeGood(s *model.Student, dates []occurrence) []occurrence {
	history := make([]time.Time, len(dates))
	for i, o := range dates {
		history[i] = o.at
	}

	pattern, ok := schedule.ExtractWeeklyPattern(history, e.loc)
	if !ok {
		e.logger.Debug("No pattern for make-good class", zap.String("student_id", s.ID))
		return dates
	}

	anchor, _ := latest(dates)
	generated := schedule.Generate(anchor, pattern, 1)
	if len(generated) == 1 && findInstant(dates, generated[0]) < 0 {
		e.logger.Info("Make-good class added",
			zap.String("student_id", s.ID),
			zap.Time("occurrence", generated[0]))
	}
	return addUnique(dates, generated)
}

// CancelByProvider отменяет занятие со стороны преподавателя: занятие убирается
// из расписания, ученик получает кредит на перенос, баланс не меняется.
func (e *Engine) CancelByProvider(st *model.Student, value string, now time.Time) (*Result, error) {
	at, err := e.parseOccurrence(value)
	if err != nil {
		return nil, err
	}

	s := st.Clone()
	dates := e.parseDates(s.ID, "class_dates", s.ClassDates)
	idx := findInstant(dates, at)
	if idx < 0 {
		return nil, fmt.Errorf("cancel class by provider %s: %w", value, model.ErrNotFound)
	}
	matched := dates[idx]

	cancelled := e.parseDates(s.ID, "cancelled_dates", s.CancelledDates)
	s.CancelledDates = uniqueInOrder(append(cancelled, matched))
	s.ClassDates = sortedUnique(removeAt(dates, idx))
	s.RescheduleCredit++

	e.logger.Info("Class cancelled by provider",
		zap.String("student_id", s.ID),
		zap.String("occurrence", matched.raw),
		zap.Int("reschedule_credit", s.RescheduleCredit))

	return &Result{
		Student:      s,
		Log:          model.NewLogEntry(s.ID, model.LogStatusCancelledByProvider, matched.raw, now),
		DatesChanged: true,
	}, nil
}

// RescheduleClass переносит занятие. newValue принимает полную ISO-метку или
// только время "HH:MM" (тогда дата остаётся прежней).
func (e *Engine) RescheduleClass(st *model.Student, oldValue, newValue string, now time.Time) (*Result, error) {
	if st.Paused {
		return nil, fmt.Errorf("reschedule class %s: %w", oldValue, model.ErrPaused)
	}

	oldAt, err := e.parseOccurrence(oldValue)
	if err != nil {
		return nil, err
	}
	newAt, err := e.resolveNewTime(oldAt, newValue)
	if err != nil {
		return nil, err
	}

	s := st.Clone()
	dates := e.parseDates(s.ID, "class_dates", s.ClassDates)
	idx := findInstant(dates, oldAt)
	if idx < 0 {
		return nil, fmt.Errorf("reschedule class %s: %w", oldValue, model.ErrNotFound)
	}
	from := dates[idx].raw

	dates = removeAt(dates, idx)
	to := schedule.FormatTimestamp(newAt)
	if existing := findInstant(dates, newAt); existing >= 0 {
		to = dates[existing].raw
	} else {
		dates = append(dates, occurrence{raw: to, at: newAt})
	}
	s.ClassDates = sortedUnique(dates)

	cancelled := e.parseDates(s.ID, "cancelled_dates", s.CancelledDates)
	if c := findInstant(cancelled, newAt); c >= 0 {
		cancelled = removeAt(cancelled, c)
		e.logger.Info("New time was marked cancelled; clearing mark",
			zap.String("student_id", s.ID),
			zap.String("occurrence", to))
	}
	s.CancelledDates = uniqueInOrder(cancelled)

	entry := model.NewLogEntry(s.ID, model.LogStatusRescheduled, to, now)
	entry.From = from
	entry.To = to

	e.logger.Info("Class rescheduled",
		zap.String("student_id", s.ID),
		zap.String("from", from),
		zap.String("to", to))

	return &Result{Student: s, Log: entry, DatesChanged: true}, nil
}

// BookMakeUpClass ставит дополнительное занятие на время value за счёт кредита
// на перенос. Баланс не меняется: кредит выдаётся за занятие, отменённое преподавателем.
func (e *Engine) BookMakeUpClass(st *model.Student, value string, now time.Time) (*Result, error) {
	if st.Paused {
		return nil, fmt.Errorf("book make-up class %s: %w", value, model.ErrPaused)
	}
	if st.RescheduleCredit <= 0 {
		return nil, fmt.Errorf("book make-up class %s: %w", value, model.ErrNoCredit)
	}

	at, err := e.parseOccurrence(value)
	if err != nil {
		return nil, err
	}
	if !at.After(now) {
		return nil, fmt.Errorf("book make-up class %s: %w: time is in the past", value, model.ErrInvalidFormat)
	}

	s := st.Clone()
	dates := e.parseDates(s.ID, "class_dates", s.ClassDates)
	if findInstant(dates, at) >= 0 {
		return nil, fmt.Errorf("book make-up class %s: %w: class already scheduled", value, model.ErrConflict)
	}

	to := schedule.FormatTimestamp(at)
	s.ClassDates = sortedUnique(append(dates, occurrence{raw: to, at: at}))

	cancelled := e.parseDates(s.ID, "cancelled_dates", s.CancelledDates)
	if c := findInstant(cancelled, at); c >= 0 {
		s.CancelledDates = uniqueInOrder(removeAt(cancelled, c))
	}
	s.RescheduleCredit--

	entry := model.NewLogEntry(s.ID, model.LogStatusRescheduleCreditUsed, to, now)
	entry.To = to
	entry.Quantity = 1

	e.logger.Info("Make-up class booked",
		zap.String("student_id", s.ID),
		zap.String("occurrence", to),
		zap.Int("reschedule_credit", s.RescheduleCredit))

	return &Result{Student: s, Log: entry, DatesChanged: true}, nil
}

func (e *Engine) resolveNewTime(oldAt time.Time, value string) (time.Time, error) {
	if hour, minute, err := schedule.ParseClock(value); err == nil {
		local := oldAt.In(e.loc)
		return time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, e.loc), nil
	}
	return e.parseOccurrence(value)
}
