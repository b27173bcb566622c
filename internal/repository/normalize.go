package repository

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/Freeeeeet/class_track_bot/internal/model"
	"github.com/Freeeeeet/class_track_bot/internal/schedule"
	"go.uber.org/zap"
)

// Поля старых версий записи, которые больше не используются
var legacyFields = []string{"student_timezone", "pending_reschedule"}

// Decoder приводит сохранённые записи к текущему виду при загрузке:
// подставляет значения по умолчанию, переводит даты без смещения в рабочую зону
// и откладывает неизвестные поля в Extra.
type Decoder struct {
	defaults model.Defaults
	loc      *time.Location
	logger   *zap.Logger
}

func NewDecoder(defaults model.Defaults, loc *time.Location, logger *zap.Logger) *Decoder {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Decoder{defaults: defaults, loc: loc, logger: logger}
}

// NormalizeHandle приводит telegram-ник к нижнему регистру без ведущего @
func NormalizeHandle(handle string) string {
	return strings.ToLower(strings.TrimLeft(strings.TrimSpace(handle), "@"))
}

// Decode разбирает сохранённую запись ученика id.
// Список class_dates или cancelled_dates, не являющийся списком, сохраняется как есть
// в Malformed: такая запись читается, но не проходит Validate.
func (d *Decoder) Decode(id string, data []byte) (*model.Student, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil || raw == nil {
		return nil, fmt.Errorf("decode student %s: %w: not a JSON object", id, model.ErrInvalidRecord)
	}

	log := d.logger.With(zap.String("student_id", id))
	st := &model.Student{ID: id}
	present := make(map[string]bool, len(raw))

	for _, key := range legacyFields {
		if _, ok := raw[key]; ok {
			delete(raw, key)
			log.Debug("Dropping legacy field", zap.String("field", key))
		}
	}

	for key, value := range raw {
		if !model.IsStudentField(key) {
			if st.Extra == nil {
				st.Extra = make(map[string]json.RawMessage)
			}
			st.Extra[key] = value
			continue
		}
		if isNull(value) {
			continue
		}

		switch key {
		case "class_dates", "cancelled_dates":
			items, ok := d.decodeList(log, key, value)
			if !ok {
				if st.Malformed == nil {
					st.Malformed = make(map[string]json.RawMessage)
				}
				st.Malformed[key] = value
				log.Warn("Field is not a list", zap.String("field", key))
				continue
			}
			if key == "class_dates" {
				st.ClassDates = items
			} else {
				st.CancelledDates = items
			}
			present[key] = true
			continue
		case "reminder_offset_minutes":
			minutes, ok := parseMinutes(value)
			if !ok {
				log.Warn("Ignoring unparseable reminder offset", zap.ByteString("value", value))
				continue
			}
			st.ReminderOffsetMinutes = minutes
			present[key] = true
			continue
		}

		if err := decodeField(st, key, value); err != nil {
			log.Warn("Ignoring field with unexpected type",
				zap.String("field", key),
				zap.Error(err))
			continue
		}
		present[key] = true
	}

	st.ID = id
	d.applyDefaults(log, st, present)
	st.TelegramHandle = NormalizeHandle(st.TelegramHandle)

	if st.ClassDates == nil {
		st.ClassDates = []string{}
	}
	if st.CancelledDates == nil {
		st.CancelledDates = []string{}
	}
	st.ClassDates = d.migrateDates(log, "class_dates", st.ClassDates, true)
	st.CancelledDates = d.migrateDates(log, "cancelled_dates", st.CancelledDates, false)

	return st, nil
}

func (d *Decoder) applyDefaults(log *zap.Logger, st *model.Student, present map[string]bool) {
	var applied []string
	if !present["cutoff_hours"] {
		st.CutoffHours = d.defaults.CutoffHours
		applied = append(applied, "cutoff_hours")
	}
	if !present["cycle_weeks"] {
		st.CycleWeeks = d.defaults.CycleWeeks
		applied = append(applied, "cycle_weeks")
	}
	if !present["class_duration_hours"] {
		st.ClassDurationHours = d.defaults.DurationHours
		applied = append(applied, "class_duration_hours")
	}
	if !present["reminder_offset_minutes"] {
		st.ReminderOffsetMinutes = d.defaults.ReminderOffsetMinutes
		applied = append(applied, "reminder_offset_minutes")
	}
	if len(applied) > 0 {
		log.Debug("Applied default fields", zap.Strings("fields", applied))
	}
}

// decodeList разбирает список строк. Элементы, не являющиеся строками, пропускаются.
func (d *Decoder) decodeList(log *zap.Logger, field string, value json.RawMessage) ([]string, bool) {
	var items []json.RawMessage
	if err := json.Unmarshal(value, &items); err != nil {
		return nil, false
	}

	result := make([]string, 0, len(items))
	for _, item := range items {
		var s string
		if err := json.Unmarshal(item, &s); err != nil {
			log.Warn("Skipping non-string date", zap.String("field", field), zap.ByteString("value", item))
			continue
		}
		result = append(result, s)
	}
	return result, true
}

// migrateDates переводит даты без смещения в ISO-8601 рабочей зоны и убирает битые
// значения и дубликаты. class_dates дополнительно сортируются.
func (d *Decoder) migrateDates(log *zap.Logger, field string, items []string, sorted bool) []string {
	type dated struct {
		raw string
		at  time.Time
	}

	list := make([]dated, 0, len(items))
	migrated := 0
	for _, item := range items {
		at, err := schedule.ParseTimestamp(item, d.loc)
		if err != nil {
			log.Warn("Dropping unparseable date",
				zap.String("field", field),
				zap.String("value", item))
			continue
		}
		value := item
		if !schedule.HasOffset(item) {
			value = schedule.FormatTimestamp(at)
			migrated++
		}
		duplicate := false
		for _, existing := range list {
			if existing.at.Equal(at) {
				duplicate = true
				break
			}
		}
		if !duplicate {
			list = append(list, dated{raw: value, at: at})
		}
	}

	if migrated > 0 {
		log.Info("Migrated naive dates", zap.String("field", field), zap.Int("count", migrated))
	}
	if sorted {
		sort.SliceStable(list, func(i, j int) bool { return list[i].at.Before(list[j].at) })
	}

	result := make([]string, len(list))
	for i, item := range list {
		result[i] = item.raw
	}
	return result
}

func decodeField(st *model.Student, key string, value json.RawMessage) error {
	wrapped, err := json.Marshal(map[string]json.RawMessage{key: value})
	if err != nil {
		return err
	}
	return json.Unmarshal(wrapped, st)
}

// parseMinutes принимает число или строку с числом ("30")
func parseMinutes(value json.RawMessage) (int, bool) {
	var s string
	if err := json.Unmarshal(value, &s); err == nil {
		n, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil || n < 0 {
			return 0, false
		}
		return n, true
	}

	var f float64
	if err := json.Unmarshal(value, &f); err != nil || f < 0 {
		return 0, false
	}
	return int(f), true
}

func isNull(value json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(value), []byte("null"))
}

// Encode сериализует запись для хранения
func Encode(st *model.Student) ([]byte, error) {
	data, err := json.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("encode student %s: %w", st.ID, err)
	}
	return data, nil
}
