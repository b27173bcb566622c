package model

import (
	"time"

	"github.com/google/uuid"
)

type LogStatus string

const (
	LogStatusCompleted               LogStatus = "completed"
	LogStatusCancelledEarly          LogStatus = "cancelled_early"
	LogStatusCancelledLate           LogStatus = "cancelled_late"
	LogStatusCancelledByProvider     LogStatus = "cancelled_by_provider"
	LogStatusRescheduled             LogStatus = "rescheduled"
	LogStatusRenewed                 LogStatus = "renewed"
	LogStatusPatternUpdated          LogStatus = "pattern_updated"
	LogStatusFreeCreditAwarded       LogStatus = "free_credit_awarded"
	LogStatusRescheduleCreditAwarded LogStatus = "reschedule_credit_awarded"
	LogStatusRescheduleCreditUsed    LogStatus = "reschedule_credit_used"
	LogStatusRemoved                 LogStatus = "removed"
)

// LogEntry запись журнала. Создаётся один раз на операцию и больше не меняется.
type LogEntry struct {
	ID        uuid.UUID `json:"id"`
	StudentID string    `json:"student"`
	Date      string    `json:"date"` // время занятия или дата события
	Status    LogStatus `json:"status"`
	IsLate    *bool     `json:"is_late,omitempty"`
	From      string    `json:"from,omitempty"`
	To        string    `json:"to,omitempty"`
	Quantity  int       `json:"qty,omitempty"`
	Note      string    `json:"note,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// NewLogEntry создаёт запись журнала с новым ID
func NewLogEntry(studentID string, status LogStatus, date string, now time.Time) *LogEntry {
	return &LogEntry{
		ID:        uuid.New(),
		StudentID: studentID,
		Date:      date,
		Status:    status,
		CreatedAt: now.UTC(),
	}
}

// LogFilter фильтр для выборки журнала. Пустые поля не ограничивают выборку.
type LogFilter struct {
	StudentID string
	Statuses  []LogStatus
}

// Match проверяет запись на соответствие фильтру
func (f LogFilter) Match(e *LogEntry) bool {
	if f.StudentID != "" && e.StudentID != f.StudentID {
		return false
	}
	if len(f.Statuses) == 0 {
		return true
	}
	for _, st := range f.Statuses {
		if e.Status == st {
			return true
		}
	}
	return false
}
