package schedule

import (
	"fmt"
	"strings"
	"time"

	"github.com/Freeeeeet/class_track_bot/internal/model"
)

// Принимаемые форматы. Строки со смещением переводятся в рабочую зону,
// строки без смещения считаются временем рабочей зоны.
var (
	zonedLayouts = []string{
		time.RFC3339Nano,
		"2006-01-02T15:04Z07:00",
	}
	naiveLayouts = []string{
		"2006-01-02T15:04:05.999999999",
		"2006-01-02T15:04",
		"2006-01-02 15:04:05",
		"2006-01-02 15:04",
	}
)

// ParseTimestamp разбирает ISO-8601 метку и возвращает момент в зоне loc
func ParseTimestamp(value string, loc *time.Location) (time.Time, error) {
	value = strings.TrimSpace(value)

	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return EnsureZoned(t, loc), nil
		}
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("%w: timestamp %q", model.ErrInvalidFormat, value)
}

// HasOffset сообщает, содержит ли строка явное смещение зоны
func HasOffset(value string) bool {
	value = strings.TrimSpace(value)
	for _, layout := range zonedLayouts {
		if _, err := time.Parse(layout, value); err == nil {
			return true
		}
	}
	return false
}

// EnsureZoned переводит момент в зону loc без изменения самого момента
func EnsureZoned(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		return t
	}
	return t.In(loc)
}

// FormatTimestamp форматирует момент как ISO-8601 со смещением
func FormatTimestamp(t time.Time) string {
	return t.Format(time.RFC3339)
}

// FormatDate форматирует дату как YYYY-MM-DD
func FormatDate(t time.Time) string {
	return t.Format("2006-01-02")
}

// EndOfDate возвращает последний момент даты "YYYY-MM-DD" (или даты ISO-метки) в зоне loc
func EndOfDate(value string, loc *time.Location) (time.Time, error) {
	value = strings.TrimSpace(value)

	d, err := time.ParseInLocation("2006-01-02", value, loc)
	if err != nil {
		t, tsErr := ParseTimestamp(value, loc)
		if tsErr != nil {
			return time.Time{}, fmt.Errorf("%w: date %q", model.ErrInvalidFormat, value)
		}
		d = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
	}

	return time.Date(d.Year(), d.Month(), d.Day()+1, 0, 0, 0, 0, loc).Add(-time.Nanosecond), nil
}
