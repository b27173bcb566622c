// Package schedule содержит разбор недельных слотов, работу с временными метками,
// извлечение недельного шаблона из истории и генерацию конкретных занятий.
package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Freeeeeet/class_track_bot/internal/model"
)

// Slot недельный слот: день недели и время начала в заданной зоне
type Slot struct {
	Weekday  time.Weekday
	Hour     int
	Minute   int
	Location *time.Location
}

var weekdays = map[string]time.Weekday{
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
	"sunday":    time.Sunday,
}

// ParseSlot разбирает строку вида "Monday 17:00" (день без учёта регистра, 24-часовое время)
func ParseSlot(text string, loc *time.Location) (Slot, error) {
	fields := strings.Fields(text)
	if len(fields) != 2 {
		return Slot{}, fmt.Errorf("%w: slot %q", model.ErrInvalidFormat, text)
	}

	weekday, ok := weekdays[strings.ToLower(fields[0])]
	if !ok {
		return Slot{}, fmt.Errorf("%w: unknown weekday %q", model.ErrInvalidFormat, fields[0])
	}

	hour, minute, err := ParseClock(fields[1])
	if err != nil {
		return Slot{}, err
	}

	return Slot{Weekday: weekday, Hour: hour, Minute: minute, Location: loc}, nil
}

// ParseClock разбирает время "HH:MM" (час 0-23, минуты 0-59)
func ParseClock(text string) (int, int, error) {
	parts := strings.Split(strings.TrimSpace(text), ":")
	if len(parts) != 2 || len(parts[0]) == 0 || len(parts[0]) > 2 || len(parts[1]) != 2 {
		return 0, 0, fmt.Errorf("%w: time %q", model.ErrInvalidFormat, text)
	}

	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("%w: hour in %q", model.ErrInvalidFormat, text)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("%w: minute in %q", model.ErrInvalidFormat, text)
	}

	return hour, minute, nil
}

// String возвращает каноническое представление: "Tuesday 07:05"
func (s Slot) String() string {
	return fmt.Sprintf("%s %02d:%02d", s.Weekday, s.Hour, s.Minute)
}

// Equal сравнивает слоты без учёта зоны
func (s Slot) Equal(other Slot) bool {
	return s.Weekday == other.Weekday && s.Hour == other.Hour && s.Minute == other.Minute
}

// Matches проверяет, попадает ли момент t на этот слот
func (s Slot) Matches(t time.Time) bool {
	local := t.In(s.location())
	return local.Weekday() == s.Weekday && local.Hour() == s.Hour && local.Minute() == s.Minute
}

// Shift сдвигает слот на offset минут с переходом через полночь
func (s Slot) Shift(offsetMinutes int) Slot {
	total := s.Hour*60 + s.Minute + offsetMinutes
	days := floorDiv(total, 24*60)
	minuteOfDay := total - days*24*60
	weekday := (int(s.Weekday) + days%7 + 7) % 7

	return Slot{
		Weekday:  time.Weekday(weekday),
		Hour:     minuteOfDay / 60,
		Minute:   minuteOfDay % 60,
		Location: s.Location,
	}
}

func (s Slot) location() *time.Location {
	if s.Location == nil {
		return time.UTC
	}
	return s.Location
}

// sortKey упорядочивает слоты с понедельника
func (s Slot) sortKey() int {
	return ((int(s.Weekday)+6)%7)*24*60 + s.Hour*60 + s.Minute
}

// NextOccurrenceAfter возвращает ближайшее начало слота строго позже anchor
func NextOccurrenceAfter(anchor time.Time, slot Slot) time.Time {
	loc := slot.location()
	local := anchor.In(loc)
	daysAhead := (int(slot.Weekday) - int(local.Weekday()) + 7) % 7

	candidate := time.Date(local.Year(), local.Month(), local.Day()+daysAhead, slot.Hour, slot.Minute, 0, 0, loc)
	if !candidate.After(anchor) {
		candidate = time.Date(local.Year(), local.Month(), local.Day()+daysAhead+7, slot.Hour, slot.Minute, 0, 0, loc)
	}
	return candidate
}

// ParsePattern разбирает список слотов через запятую: "Monday 17:00, Thursday 17:00"
func ParsePattern(text string, loc *time.Location) ([]Slot, error) {
	var slots []Slot
	for _, item := range strings.Split(text, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		slot, err := ParseSlot(item, loc)
		if err != nil {
			return nil, err
		}
		slots = append(slots, slot)
	}
	return slots, nil
}

// FormatPattern собирает строку шаблона в исходном порядке слотов
func FormatPattern(slots []Slot) string {
	parts := make([]string, len(slots))
	for i, s := range slots {
		parts[i] = s.String()
	}
	return strings.Join(parts, ", ")
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
