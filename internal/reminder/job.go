// Package reminder поддерживает очередь напоминаний в соответствии с расписанием
// учеников: сверяет целевой набор напоминаний с очередью и доставляет сработавшие.
package reminder

import (
	"context"
	"time"

	"github.com/Freeeeeet/class_track_bot/internal/schedule"
)

const keyPrefix = "reminder:"

// Job напоминание об одном занятии ученика
type Job struct {
	Key        string    `json:"key"`
	StudentID  string    `json:"student_id"`
	Occurrence string    `json:"occurrence"`
	FireAt     time.Time `json:"fire_at"`
}

// JobKey ключ напоминания: "reminder:<studentID>:<occurrence>"
func JobKey(studentID, occurrence string) string {
	return keyPrefix + studentID + ":" + occurrence
}

// NewJob создаёт напоминание о занятии at, срабатывающее за offset до начала
func NewJob(studentID string, at time.Time, offset time.Duration) Job {
	occurrence := schedule.FormatTimestamp(at)
	return Job{
		Key:        JobKey(studentID, occurrence),
		StudentID:  studentID,
		Occurrence: occurrence,
		FireAt:     at.Add(-offset),
	}
}

// Queue внешняя очередь отложенных задач. Отмена отсутствующей задачи не ошибка.
type Queue interface {
	List(ctx context.Context, studentID string) ([]Job, error)
	Schedule(ctx context.Context, job Job) error
	Cancel(ctx context.Context, job Job) error
}

// DueQueue очередь, из которой можно забрать сработавшие задачи.
// Каждая задача выдаётся не более одного раза.
type DueQueue interface {
	Queue
	PopDue(ctx context.Context, now time.Time, limit int) ([]Job, error)
}
