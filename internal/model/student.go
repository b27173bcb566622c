package model

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// Student запись ученика. Даты занятий хранятся как ISO-8601 строки со смещением.
type Student struct {
	ID                    string             `json:"id" validate:"required"`
	Name                  string             `json:"name"`
	TelegramID            int64              `json:"telegram_id,omitempty"`
	TelegramHandle        string             `json:"telegram_handle,omitempty"`
	ClassesRemaining      int                `json:"classes_remaining" validate:"gte=0"`
	ClassDates            []string           `json:"class_dates"`
	CancelledDates        []string           `json:"cancelled_dates"`
	SchedulePattern       string             `json:"schedule_pattern"`
	CycleWeeks            int                `json:"cycle_weeks" validate:"gte=1"`
	CutoffHours           int                `json:"cutoff_hours" validate:"gte=0"`
	ClassDurationHours    float64            `json:"class_duration_hours" validate:"gt=0"`
	SlotDurations         map[string]float64 `json:"slot_durations,omitempty"`
	RescheduleCredit      int                `json:"reschedule_credit" validate:"gte=0"`
	FreeClassCredit       int                `json:"free_class_credit" validate:"gte=0"`
	ReminderOffsetMinutes int                `json:"reminder_offset_minutes" validate:"gte=0"`
	Paused                bool               `json:"paused"`
	Premium               bool               `json:"premium"`
	RenewalDate           string             `json:"renewal_date,omitempty"`
	// LastBalanceWarning баланс, о котором ученика уже предупредили
	LastBalanceWarning *int `json:"last_balance_warning,omitempty"`

	// Extra поля, которые движок не использует (цена, заметки и т.п.), сохраняются как есть
	Extra map[string]json.RawMessage `json:"-"`
	// Malformed поля известных имён, не прошедшие структурную проверку при загрузке
	Malformed map[string]json.RawMessage `json:"-"`
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func studentValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
	})
	return validate
}

// HasTelegram проверяет, привязан ли ученик к платформе
func (s *Student) HasTelegram() bool {
	return s.TelegramID != 0
}

// DurationFor возвращает длительность занятия для слота в часах
func (s *Student) DurationFor(slotText string) float64 {
	if d, ok := s.SlotDurations[slotText]; ok && d > 0 {
		return d
	}
	return s.ClassDurationHours
}

// Validate проверяет структуру записи перед изменением
func (s *Student) Validate() error {
	if len(s.Malformed) > 0 {
		fields := make([]string, 0, len(s.Malformed))
		for k := range s.Malformed {
			fields = append(fields, k)
		}
		sort.Strings(fields)
		return fmt.Errorf("%w: %s must be a list", ErrInvalidRecord, strings.Join(fields, ", "))
	}

	if err := studentValidator().Struct(s); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}

	return nil
}

// Clone возвращает глубокую копию записи
func (s *Student) Clone() *Student {
	c := *s
	c.ClassDates = append([]string(nil), s.ClassDates...)
	c.CancelledDates = append([]string(nil), s.CancelledDates...)
	if s.SlotDurations != nil {
		c.SlotDurations = make(map[string]float64, len(s.SlotDurations))
		for k, v := range s.SlotDurations {
			c.SlotDurations[k] = v
		}
	}
	if s.LastBalanceWarning != nil {
		v := *s.LastBalanceWarning
		c.LastBalanceWarning = &v
	}
	c.Extra = cloneRaw(s.Extra)
	c.Malformed = cloneRaw(s.Malformed)
	return &c
}

func cloneRaw(in map[string]json.RawMessage) map[string]json.RawMessage {
	if in == nil {
		return nil
	}
	out := make(map[string]json.RawMessage, len(in))
	for k, v := range in {
		out[k] = append(json.RawMessage(nil), v...)
	}
	return out
}

type studentAlias Student

// MarshalJSON возвращает Extra и Malformed на их места, чтобы запись не теряла данные
func (s Student) MarshalJSON() ([]byte, error) {
	base, err := json.Marshal(studentAlias(s))
	if err != nil {
		return nil, err
	}
	if len(s.Extra) == 0 && len(s.Malformed) == 0 {
		return base, nil
	}

	var merged map[string]json.RawMessage
	if err := json.Unmarshal(base, &merged); err != nil {
		return nil, err
	}
	for k, v := range s.Extra {
		if _, ok := merged[k]; !ok {
			merged[k] = v
		}
	}
	for k, v := range s.Malformed {
		merged[k] = v
	}
	return json.Marshal(merged)
}

var (
	fieldsOnce  sync.Once
	knownFields map[string]struct{}
)

// IsStudentField сообщает, описано ли поле JSON в структуре Student
func IsStudentField(name string) bool {
	fieldsOnce.Do(func() {
		knownFields = make(map[string]struct{})
		t := reflect.TypeOf(Student{})
		for i := 0; i < t.NumField(); i++ {
			tag := strings.Split(t.Field(i).Tag.Get("json"), ",")[0]
			if tag == "" || tag == "-" {
				continue
			}
			knownFields[tag] = struct{}{}
		}
	})
	_, ok := knownFields[name]
	return ok
}
