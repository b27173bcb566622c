package app

import (
	"context"
	"sync"
	"time"

	"github.com/Freeeeeet/class_track_bot/internal/clock"
	"go.uber.org/zap"
)

// HorizonExtender дополняет расписания всех учеников
type HorizonExtender interface {
	EnsureHorizonAll(ctx context.Context) (int, error)
}

// ReminderDispatcher доставляет сработавшие напоминания
type ReminderDispatcher interface {
	DispatchDue(ctx context.Context, now time.Time) (int, error)
}

// BalanceWarner предупреждает учеников о заканчивающемся балансе
type BalanceWarner interface {
	WarnLowBalances(ctx context.Context) (int, error)
}

// Intervals периоды фоновых задач
type Intervals struct {
	Poll    time.Duration
	Horizon time.Duration
	Balance time.Duration
}

// Scheduler управляет фоновыми задачами
type Scheduler struct {
	horizon    HorizonExtender
	dispatcher ReminderDispatcher
	warner     BalanceWarner
	clock      clock.Clock
	intervals  Intervals
	logger     *zap.Logger
	stopChan   chan struct{}
	stopOnce   sync.Once
	wg         sync.WaitGroup
}

// NewScheduler создаёт новый планировщик
func NewScheduler(
	horizon HorizonExtender,
	dispatcher ReminderDispatcher,
	warner BalanceWarner,
	clk clock.Clock,
	intervals Intervals,
	logger *zap.Logger,
) *Scheduler {
	return &Scheduler{
		horizon:    horizon,
		dispatcher: dispatcher,
		warner:     warner,
		clock:      clk,
		intervals:  intervals,
		logger:     logger,
		stopChan:   make(chan struct{}),
	}
}

// Start запускает фоновые задачи
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("Starting background scheduler",
		zap.Duration("poll_interval", s.intervals.Poll),
		zap.Duration("horizon_interval", s.intervals.Horizon),
		zap.Duration("balance_interval", s.intervals.Balance))

	s.wg.Add(3)
	go s.runTask(ctx, "horizon", s.intervals.Horizon, s.extendSchedules)
	go s.runTask(ctx, "reminders", s.intervals.Poll, s.dispatchReminders)
	go s.runTask(ctx, "balance", s.intervals.Balance, s.warnBalances)
}

// Stop останавливает фоновые задачи и ждёт их завершения
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		s.logger.Info("Stopping background scheduler")
		close(s.stopChan)
	})
	s.wg.Wait()
}

// runTask выполняет задачу сразу при старте и затем по тикеру
func (s *Scheduler) runTask(ctx context.Context, name string, interval time.Duration, task func(context.Context)) {
	defer s.wg.Done()

	task(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			task(ctx)
		case <-s.stopChan:
			s.logger.Info("Background task stopped", zap.String("task", name))
			return
		case <-ctx.Done():
			s.logger.Info("Background task cancelled", zap.String("task", name))
			return
		}
	}
}

// extendSchedules дополняет расписания до горизонта и сверяет напоминания
func (s *Scheduler) extendSchedules(ctx context.Context) {
	changed, err := s.horizon.EnsureHorizonAll(ctx)
	if err != nil {
		s.logger.Error("Failed to extend some schedules", zap.Error(err))
	}
	s.logger.Debug("Schedule extension finished", zap.Int("changed", changed))
}

func (s *Scheduler) dispatchReminders(ctx context.Context) {
	sent, err := s.dispatcher.DispatchDue(ctx, s.clock.Now())
	if err != nil {
		s.logger.Error("Failed to dispatch reminders", zap.Error(err))
		return
	}
	if sent > 0 {
		s.logger.Info("Reminders dispatched", zap.Int("sent", sent))
	}
}

func (s *Scheduler) warnBalances(ctx context.Context) {
	sent, err := s.warner.WarnLowBalances(ctx)
	if err != nil {
		s.logger.Error("Failed to send some balance warnings", zap.Error(err))
	}
	s.logger.Debug("Balance warnings finished", zap.Int("sent", sent))
}
