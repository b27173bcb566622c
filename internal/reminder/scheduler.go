package reminder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Freeeeeet/class_track_bot/internal/metrics"
	"github.com/Freeeeeet/class_track_bot/internal/model"
	"github.com/Freeeeeet/class_track_bot/internal/schedule"
	"go.uber.org/zap"
)

// Stats итог сверки
type Stats struct {
	Scheduled int
	Cancelled int
	Kept      int
}

// Scheduler приводит очередь напоминаний к целевому состоянию для ученика
type Scheduler struct {
	queue   Queue
	loc     *time.Location
	logger  *zap.Logger
	metrics *metrics.Metrics
}

func NewScheduler(queue Queue, loc *time.Location, logger *zap.Logger, m *metrics.Metrics) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		queue:   queue,
		loc:     loc,
		logger:  logger,
		metrics: m,
	}
}

// Targets возвращает целевой набор напоминаний в хронологическом порядке:
// по одному на каждое будущее неотменённое занятие, в том числе когда момент
// отправки уже наступил, а занятие ещё нет.
// Пусто, если ученик на паузе, напоминания выключены или нет привязки к платформе.
func (s *Scheduler) Targets(st *model.Student, now time.Time) []Job {
	if st == nil || st.Paused || st.ReminderOffsetMinutes <= 0 || !st.HasTelegram() {
		return nil
	}
	offset := time.Duration(st.ReminderOffsetMinutes) * time.Minute

	var cancelled []time.Time
	for _, item := range st.CancelledDates {
		if at, err := schedule.ParseTimestamp(item, s.loc); err == nil {
			cancelled = append(cancelled, at)
		}
	}

	seen := make(map[string]struct{})
	var jobs []Job
	for _, item := range st.ClassDates {
		at, err := schedule.ParseTimestamp(item, s.loc)
		if err != nil {
			s.logger.Warn("Skipping unparseable class date for reminder",
				zap.String("student_id", st.ID),
				zap.String("value", item))
			continue
		}
		if !at.After(now) || containsInstant(cancelled, at) {
			continue
		}
		job := NewJob(st.ID, at, offset)
		if _, ok := seen[job.Key]; ok {
			continue
		}
		seen[job.Key] = struct{}{}
		jobs = append(jobs, job)
	}
	sortJobs(jobs)
	return jobs
}

// Reconcile отменяет лишние напоминания и добавляет недостающие.
// Совпадающие задачи не трогаются, поэтому повторный вызов без изменений
// не выполняет ни одной операции с очередью. Задача с наступившим моментом
// отправки остаётся в очереди до доставки, но заново не ставится: иначе
// уже доставленное напоминание ушло бы повторно.
func (s *Scheduler) Reconcile(ctx context.Context, st *model.Student, now time.Time) (Stats, error) {
	s.metrics.ObserveReconcile()

	existing, err := s.queue.List(ctx, st.ID)
	if err != nil {
		return Stats{}, fmt.Errorf("list reminders for %s: %w", st.ID, err)
	}

	targets := s.Targets(st, now)
	pending := make(map[string]Job, len(targets))
	for _, job := range targets {
		pending[job.Key] = job
	}

	var (
		stats Stats
		errs  []error
	)
	for _, job := range existing {
		if target, ok := pending[job.Key]; ok && target.FireAt.Equal(job.FireAt) {
			delete(pending, job.Key)
			stats.Kept++
			continue
		}
		if err := s.queue.Cancel(ctx, job); err != nil {
			errs = append(errs, fmt.Errorf("cancel reminder %s: %w", job.Key, err))
			continue
		}
		stats.Cancelled++
	}

	for _, job := range targets {
		if _, ok := pending[job.Key]; !ok {
			continue
		}
		if !job.FireAt.After(now) {
			s.logger.Debug("Skipping reminder past its fire time",
				zap.String("student_id", st.ID),
				zap.String("key", job.Key))
			continue
		}
		if err := s.queue.Schedule(ctx, job); err != nil {
			errs = append(errs, fmt.Errorf("schedule reminder %s: %w", job.Key, err))
			continue
		}
		stats.Scheduled++
	}

	s.metrics.ObserveQueueOp("schedule", stats.Scheduled)
	s.metrics.ObserveQueueOp("cancel", stats.Cancelled)

	if stats.Scheduled > 0 || stats.Cancelled > 0 {
		s.logger.Info("Reminders reconciled",
			zap.String("student_id", st.ID),
			zap.Int("scheduled", stats.Scheduled),
			zap.Int("cancelled", stats.Cancelled),
			zap.Int("kept", stats.Kept))
	}

	return stats, errors.Join(errs...)
}

// Clear отменяет все напоминания ученика
func (s *Scheduler) Clear(ctx context.Context, studentID string) (int, error) {
	existing, err := s.queue.List(ctx, studentID)
	if err != nil {
		return 0, fmt.Errorf("list reminders for %s: %w", studentID, err)
	}

	cancelled := 0
	var errs []error
	for _, job := range existing {
		if err := s.queue.Cancel(ctx, job); err != nil {
			errs = append(errs, fmt.Errorf("cancel reminder %s: %w", job.Key, err))
			continue
		}
		cancelled++
	}
	s.metrics.ObserveQueueOp("cancel", cancelled)

	if cancelled > 0 {
		s.logger.Info("Reminders cleared",
			zap.String("student_id", studentID),
			zap.Int("cancelled", cancelled))
	}
	return cancelled, errors.Join(errs...)
}

func containsInstant(list []time.Time, at time.Time) bool {
	for _, t := range list {
		if t.Equal(at) {
			return true
		}
	}
	return false
}
