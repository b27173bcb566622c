package reminder

import (
	"context"
	"fmt"
	"time"

	"github.com/Freeeeeet/class_track_bot/internal/metrics"
	"github.com/Freeeeeet/class_track_bot/internal/model"
	"github.com/Freeeeeet/class_track_bot/internal/schedule"
	"go.uber.org/zap"
)

const defaultBatchSize = 100

// Notifier доставляет сообщения ученикам и администраторам
type Notifier interface {
	SendReminder(ctx context.Context, chatID int64, text string) error
	NotifyAdmins(ctx context.Context, text string) error
}

// StudentLoader загружает актуальную запись ученика
type StudentLoader interface {
	GetStudent(ctx context.Context, id string) (*model.Student, error)
}

// Dispatcher забирает сработавшие напоминания и доставляет их
type Dispatcher struct {
	queue    DueQueue
	students StudentLoader
	notifier Notifier
	loc      *time.Location
	logger   *zap.Logger
	metrics  *metrics.Metrics
	batch    int
}

func NewDispatcher(queue DueQueue, students StudentLoader, notifier Notifier, loc *time.Location, logger *zap.Logger, m *metrics.Metrics) *Dispatcher {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		queue:    queue,
		students: students,
		notifier: notifier,
		loc:      loc,
		logger:   logger,
		metrics:  m,
		batch:    defaultBatchSize,
	}
}

// DispatchDue доставляет все напоминания, срок которых наступил к now.
// Возвращает количество отправленных сообщений.
func (d *Dispatcher) DispatchDue(ctx context.Context, now time.Time) (int, error) {
	sent := 0
	for {
		jobs, err := d.queue.PopDue(ctx, now, d.batch)
		if err != nil {
			return sent, fmt.Errorf("pop due reminders: %w", err)
		}
		d.metrics.ObserveQueueOp("fire", len(jobs))

		for _, job := range jobs {
			if d.deliver(ctx, job) {
				sent++
			}
		}

		if len(jobs) < d.batch {
			return sent, nil
		}
	}
}

// deliver перепроверяет запись перед отправкой: занятие могло быть отменено
// или перенесено после постановки напоминания
func (d *Dispatcher) deliver(ctx context.Context, job Job) bool {
	log := d.logger.With(zap.String("student_id", job.StudentID), zap.String("occurrence", job.Occurrence))

	st, err := d.students.GetStudent(ctx, job.StudentID)
	if err != nil {
		log.Error("Failed to load student for reminder", zap.Error(err))
		d.metrics.ObserveDelivery("failed")
		return false
	}
	if st == nil || st.Paused || !st.HasTelegram() {
		log.Debug("Reminder skipped")
		d.metrics.ObserveDelivery("skipped")
		return false
	}

	at, err := schedule.ParseTimestamp(job.Occurrence, d.loc)
	if err != nil || !d.isActive(st, at) {
		log.Debug("Reminder for removed class skipped")
		d.metrics.ObserveDelivery("skipped")
		return false
	}

	text := fmt.Sprintf("Reminder: you have a class at %s", at.In(d.loc).Format("2006-01-02 15:04 MST"))
	if err := d.notifier.SendReminder(ctx, st.TelegramID, text); err != nil {
		log.Warn("Failed to send class reminder", zap.Error(err))
		d.metrics.ObserveDelivery("failed")

		alert := fmt.Sprintf("Failed to send class reminder to %s (%s)", st.Name, job.Occurrence)
		if err := d.notifier.NotifyAdmins(ctx, alert); err != nil {
			log.Error("Failed to notify admins", zap.Error(err))
		}
		return false
	}

	log.Info("Class reminder sent")
	d.metrics.ObserveDelivery("sent")
	return true
}

func (d *Dispatcher) isActive(st *model.Student, at time.Time) bool {
	found := false
	for _, item := range st.ClassDates {
		if t, err := schedule.ParseTimestamp(item, d.loc); err == nil && t.Equal(at) {
			found = true
			break
		}
	}
	if !found {
		return false
	}
	for _, item := range st.CancelledDates {
		if t, err := schedule.ParseTimestamp(item, d.loc); err == nil && t.Equal(at) {
			return false
		}
	}
	return true
}
