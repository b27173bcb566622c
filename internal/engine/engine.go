// Package engine реализует переходы состояния расписания ученика: завершение,
// отмену и перенос занятий, правку недельных слотов, продление цикла и начисление
// кредитов. Операции не изменяют входную запись: они работают с копией и
// возвращают её вместе с записью журнала. Сохранение остаётся за вызывающим.
package engine

import (
	"sort"
	"time"

	"github.com/Freeeeeet/class_track_bot/internal/model"
	"github.com/Freeeeeet/class_track_bot/internal/schedule"
	"go.uber.org/zap"
)

// Engine движок изменений расписания
type Engine struct {
	loc      *time.Location
	defaults model.Defaults
	logger   *zap.Logger
}

// Result результат операции: обновлённая запись и не более одной записи журнала
type Result struct {
	Student      *model.Student
	Log          *model.LogEntry
	DatesChanged bool
}

// New создаёт движок для рабочей зоны loc
func New(loc *time.Location, defaults model.Defaults, logger *zap.Logger) *Engine {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		loc:      loc,
		defaults: defaults,
		logger:   logger,
	}
}

// Location возвращает рабочую зону движка
func (e *Engine) Location() *time.Location {
	return e.loc
}

// Defaults возвращает значения по умолчанию для новых записей
func (e *Engine) Defaults() model.Defaults {
	return e.defaults
}

// occurrence конкретное занятие: исходная строка и разобранный момент
type occurrence struct {
	raw string
	at  time.Time
}

// parseDates разбирает список дат; битые значения пропускаются с предупреждением
func (e *Engine) parseDates(studentID, field string, items []string) []occurrence {
	result := make([]occurrence, 0, len(items))
	for _, item := range items {
		at, err := schedule.ParseTimestamp(item, e.loc)
		if err != nil {
			e.logger.Warn("Skipping unparseable date",
				zap.String("student_id", studentID),
				zap.String("field", field),
				zap.String("value", item),
				zap.Error(err))
			continue
		}
		result = append(result, occurrence{raw: item, at: at})
	}
	return result
}

func newOccurrence(t time.Time) occurrence {
	return occurrence{raw: schedule.FormatTimestamp(t), at: t}
}

// findInstant ищет занятие по моменту времени, а не по строке
func findInstant(list []occurrence, at time.Time) int {
	for i, o := range list {
		if o.at.Equal(at) {
			return i
		}
	}
	return -1
}

func removeAt(list []occurrence, idx int) []occurrence {
	out := make([]occurrence, 0, len(list)-1)
	out = append(out, list[:idx]...)
	return append(out, list[idx+1:]...)
}

// addUnique добавляет моменты, которых ещё нет в списке
func addUnique(list []occurrence, times []time.Time) []occurrence {
	for _, t := range times {
		if findInstant(list, t) < 0 {
			list = append(list, newOccurrence(t))
		}
	}
	return list
}

// sortedUnique сортирует по моменту и убирает дубликаты, оставляя первую строку
func sortedUnique(list []occurrence) []string {
	sorted := sortedOccurrences(list)

	out := make([]string, 0, len(sorted))
	for i, o := range sorted {
		if i > 0 && o.at.Equal(sorted[i-1].at) {
			continue
		}
		out = append(out, o.raw)
	}
	return out
}

func sortedOccurrences(list []occurrence) []occurrence {
	sorted := make([]occurrence, len(list))
	copy(sorted, list)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].at.Before(sorted[j].at) })
	return sorted
}

// uniqueInOrder убирает дубликаты без сортировки (для отменённых дат)
func uniqueInOrder(list []occurrence) []string {
	out := make([]string, 0, len(list))
	var seen []occurrence
	for _, o := range list {
		if findInstant(seen, o.at) >= 0 {
			continue
		}
		seen = append(seen, o)
		out = append(out, o.raw)
	}
	return out
}

func latest(list []occurrence) (time.Time, bool) {
	var best time.Time
	found := false
	for _, o := range list {
		if !found || o.at.After(best) {
			best = o.at
			found = true
		}
	}
	return best, found
}

func decrement(n int) int {
	return max(0, n-1)
}

// parseOccurrence разбирает метку из параметров операции
func (e *Engine) parseOccurrence(value string) (time.Time, error) {
	return schedule.ParseTimestamp(value, e.loc)
}

// patternSlots разбирает schedule_pattern записи
func (e *Engine) patternSlots(s *model.Student) ([]schedule.Slot, error) {
	slots, err := schedule.ParsePattern(s.SchedulePattern, e.loc)
	if err != nil {
		return nil, wrapRecord(err)
	}
	return slots, nil
}

// horizon граница генерации: cycle_weeks от now, но не дальше renewal_date
func (e *Engine) horizon(s *model.Student, now time.Time) time.Time {
	weeks := s.CycleWeeks
	if weeks <= 0 {
		weeks = e.defaults.CycleWeeks
	}
	limit := now.AddDate(0, 0, 7*weeks)
	if bound, ok := e.renewalBound(s); ok && bound.Before(limit) {
		limit = bound
	}
	return limit
}

func (e *Engine) renewalBound(s *model.Student) (time.Time, bool) {
	if s.RenewalDate == "" {
		return time.Time{}, false
	}
	bound, err := schedule.EndOfDate(s.RenewalDate, e.loc)
	if err != nil {
		e.logger.Warn("Ignoring unparseable renewal date",
			zap.String("student_id", s.ID),
			zap.String("renewal_date", s.RenewalDate))
		return time.Time{}, false
	}
	return bound, true
}
