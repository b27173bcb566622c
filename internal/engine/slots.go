package engine

import (
	"fmt"
	"time"

	"github.com/Freeeeeet/class_track_bot/internal/model"
	"github.com/Freeeeeet/class_track_bot/internal/schedule"
	"go.uber.org/zap"
)

// Shift параметры массового сдвига слота: либо новый слот, либо смещение в минутах
type Shift struct {
	NewSlot       string
	OffsetMinutes int
}

func wrapRecord(err error) error {
	return fmt.Errorf("%w: schedule pattern: %v", model.ErrInvalidRecord, err)
}

// EditWeeklySlot заменяет слот с номером index. Прошлые занятия не трогаются,
// будущие занятия старого слота заменяются занятиями нового слота.
func (e *Engine) EditWeeklySlot(st *model.Student, index int, newSlotText string, now time.Time) (*Result, error) {
	slots, err := e.patternSlots(st)
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(slots) {
		return nil, fmt.Errorf("edit slot %d of %d: %w", index, len(slots), model.ErrInvalidIndex)
	}
	newSlot, err := schedule.ParseSlot(newSlotText, e.loc)
	if err != nil {
		return nil, err
	}
	if conflictsWith(slots, index, newSlot) {
		return nil, fmt.Errorf("edit slot %s: %w", newSlot, model.ErrConflict)
	}

	return e.replaceSlot(st, slots, index, newSlot, now), nil
}

func (e *Engine) replaceSlot(st *model.Student, slots []schedule.Slot, index int, newSlot schedule.Slot, now time.Time) *Result {
	s := st.Clone()
	old := slots[index]

	dates := e.parseDates(s.ID, "class_dates", s.ClassDates)
	dates, removed := dropFuture(dates, old, now)

	generated := schedule.GenerateUntil(now, []schedule.Slot{newSlot}, e.horizon(s, now))
	if len(generated) < len(removed) {
		generated = schedule.Generate(now, []schedule.Slot{newSlot}, len(removed))
	}
	dates = addUnique(dates, generated)
	s.ClassDates = sortedUnique(dates)

	slots[index] = newSlot
	s.SchedulePattern = schedule.FormatPattern(slots)
	e.moveDuration(s, old, &newSlot)

	entry := model.NewLogEntry(s.ID, model.LogStatusPatternUpdated, schedule.FormatTimestamp(now), now)
	entry.From = old.String()
	entry.To = newSlot.String()
	entry.Quantity = len(generated)

	e.logger.Info("Weekly slot edited",
		zap.String("student_id", s.ID),
		zap.String("from", old.String()),
		zap.String("to", newSlot.String()),
		zap.Int("removed", len(removed)),
		zap.Int("generated", len(generated)))

	return &Result{Student: s, Log: entry, DatesChanged: true}
}

// AddWeeklySlot добавляет слот в шаблон и генерирует его занятия до горизонта.
// Занятия других слотов не меняются.
func (e *Engine) AddWeeklySlot(st *model.Student, slotText string, now time.Time) (*Result, error) {
	slots, err := e.patternSlots(st)
	if err != nil {
		return nil, err
	}
	slot, err := schedule.ParseSlot(slotText, e.loc)
	if err != nil {
		return nil, err
	}
	if conflictsWith(slots, -1, slot) {
		return nil, fmt.Errorf("add slot %s: %w", slot, model.ErrConflict)
	}

	s := st.Clone()
	generated := schedule.GenerateUntil(now, []schedule.Slot{slot}, e.horizon(s, now))
	dates := e.parseDates(s.ID, "class_dates", s.ClassDates)
	s.ClassDates = sortedUnique(addUnique(dates, generated))
	s.SchedulePattern = schedule.FormatPattern(append(slots, slot))

	entry := model.NewLogEntry(s.ID, model.LogStatusPatternUpdated, schedule.FormatTimestamp(now), now)
	entry.To = slot.String()
	entry.Quantity = len(generated)

	e.logger.Info("Weekly slot added",
		zap.String("student_id", s.ID),
		zap.String("slot", slot.String()),
		zap.Int("generated", len(generated)))

	return &Result{Student: s, Log: entry, DatesChanged: true}, nil
}

// DeleteWeeklySlot убирает слот из шаблона вместе с его будущими занятиями.
// Прошлые занятия слота остаются как история.
func (e *Engine) DeleteWeeklySlot(st *model.Student, index int, now time.Time) (*Result, error) {
	slots, err := e.patternSlots(st)
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(slots) {
		return nil, fmt.Errorf("delete slot %d of %d: %w", index, len(slots), model.ErrInvalidIndex)
	}

	s := st.Clone()
	old := slots[index]

	dates := e.parseDates(s.ID, "class_dates", s.ClassDates)
	dates, removed := dropFuture(dates, old, now)
	s.ClassDates = sortedUnique(dates)

	rest := append(append([]schedule.Slot(nil), slots[:index]...), slots[index+1:]...)
	s.SchedulePattern = schedule.FormatPattern(rest)
	e.moveDuration(s, old, nil)

	entry := model.NewLogEntry(s.ID, model.LogStatusPatternUpdated, schedule.FormatTimestamp(now), now)
	entry.From = old.String()
	entry.Quantity = len(removed)

	e.logger.Info("Weekly slot deleted",
		zap.String("student_id", s.ID),
		zap.String("slot", old.String()),
		zap.Int("removed", len(removed)))

	return &Result{Student: s, Log: entry, DatesChanged: true}, nil
}

// BulkShiftSlot переносит все будущие занятия слота. С NewSlot работает как
// EditWeeklySlot, со смещением сдвигает каждое занятие на OffsetMinutes.
// Занятие, которое после сдвига совпало бы с существующим, отбрасывается.
func (e *Engine) BulkShiftSlot(st *model.Student, index int, shift Shift, now time.Time) (*Result, error) {
	if shift.NewSlot != "" {
		return e.EditWeeklySlot(st, index, shift.NewSlot, now)
	}
	if shift.OffsetMinutes == 0 {
		return nil, fmt.Errorf("bulk shift: %w: empty shift", model.ErrInvalidFormat)
	}

	slots, err := e.patternSlots(st)
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(slots) {
		return nil, fmt.Errorf("bulk shift slot %d of %d: %w", index, len(slots), model.ErrInvalidIndex)
	}
	old := slots[index]
	newSlot := old.Shift(shift.OffsetMinutes)
	if conflictsWith(slots, index, newSlot) {
		return nil, fmt.Errorf("bulk shift slot %s: %w", newSlot, model.ErrConflict)
	}

	s := st.Clone()
	dates := e.parseDates(s.ID, "class_dates", s.ClassDates)
	dates, removed := dropFuture(dates, old, now)

	shifted := 0
	for _, o := range removed {
		local := o.at.In(e.loc)
		moved := time.Date(local.Year(), local.Month(), local.Day(), local.Hour(),
			local.Minute()+shift.OffsetMinutes, local.Second(), 0, e.loc)
		if findInstant(dates, moved) >= 0 {
			e.logger.Warn("Dropping shifted class that collides with existing one",
				zap.String("student_id", s.ID),
				zap.String("occurrence", o.raw),
				zap.Time("shifted", moved))
			continue
		}
		dates = append(dates, newOccurrence(moved))
		shifted++
	}
	s.ClassDates = sortedUnique(dates)

	slots[index] = newSlot
	s.SchedulePattern = schedule.FormatPattern(slots)
	e.moveDuration(s, old, &newSlot)

	entry := model.NewLogEntry(s.ID, model.LogStatusPatternUpdated, schedule.FormatTimestamp(now), now)
	entry.From = old.String()
	entry.To = newSlot.String()
	entry.Quantity = shifted
	entry.Note = fmt.Sprintf("shifted by %+d min", shift.OffsetMinutes)

	e.logger.Info("Weekly slot shifted",
		zap.String("student_id", s.ID),
		zap.String("from", old.String()),
		zap.String("to", newSlot.String()),
		zap.Int("offset_minutes", shift.OffsetMinutes),
		zap.Int("shifted", shifted),
		zap.Int("dropped", len(removed)-shifted))

	return &Result{Student: s, Log: entry, DatesChanged: true}, nil
}

// dropFuture убирает будущие (> now) занятия слота и возвращает их отдельно
func dropFuture(dates []occurrence, slot schedule.Slot, now time.Time) ([]occurrence, []occurrence) {
	kept := make([]occurrence, 0, len(dates))
	var removed []occurrence
	for _, o := range dates {
		if o.at.After(now) && slot.Matches(o.at) {
			removed = append(removed, o)
			continue
		}
		kept = append(kept, o)
	}
	return kept, removed
}

func conflictsWith(slots []schedule.Slot, skip int, candidate schedule.Slot) bool {
	for i, s := range slots {
		if i != skip && s.Equal(candidate) {
			return true
		}
	}
	return false
}

// moveDuration переносит длительность слота old на слот to (или удаляет при to == nil).
// Ключи сравниваются как слоты, поэтому "monday 9:00" и "Monday 09:00" считаются одним ключом.
func (e *Engine) moveDuration(s *model.Student, old schedule.Slot, to *schedule.Slot) {
	var (
		matched []string
		hours   float64
	)
	for key, h := range s.SlotDurations {
		slot, err := schedule.ParseSlot(key, e.loc)
		if err == nil && slot.Equal(old) {
			matched = append(matched, key)
			hours = h
		}
	}
	if len(matched) == 0 {
		return
	}

	for _, key := range matched {
		delete(s.SlotDurations, key)
	}
	if to != nil {
		s.SlotDurations[to.String()] = hours
	}
}
