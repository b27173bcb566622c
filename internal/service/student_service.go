package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/Freeeeeet/class_track_bot/internal/clock"
	"github.com/Freeeeeet/class_track_bot/internal/engine"
	"github.com/Freeeeeet/class_track_bot/internal/metrics"
	"github.com/Freeeeeet/class_track_bot/internal/model"
	"github.com/Freeeeeet/class_track_bot/internal/reminder"
	"github.com/Freeeeeet/class_track_bot/internal/repository"
	"go.uber.org/zap"
)

// errNoChange операция ничего не изменила, сохранять нечего
var errNoChange = errors.New("no change")

// Reconciler приводит напоминания ученика в соответствие с записью
type Reconciler interface {
	Reconcile(ctx context.Context, st *model.Student, now time.Time) (reminder.Stats, error)
	Clear(ctx context.Context, studentID string) (int, error)
}

type StudentService struct {
	store     repository.Store
	engine    *engine.Engine
	reminders Reconciler
	clock     clock.Clock
	locks     *keyedMutex
	logger    *zap.Logger
	metrics   *metrics.Metrics
}

func NewStudentService(
	store repository.Store,
	eng *engine.Engine,
	reminders Reconciler,
	clk clock.Clock,
	logger *zap.Logger,
	m *metrics.Metrics,
) *StudentService {
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StudentService{
		store:     store,
		engine:    eng,
		reminders: reminders,
		clock:     clk,
		locks:     newKeyedMutex(),
		logger:    logger,
		metrics:   m,
	}
}

type mutation func(st *model.Student, now time.Time) (*engine.Result, error)

// mutate выполняет цикл загрузка -> изменение -> сохранение -> сверка напоминаний
// под блокировкой ученика. При ошибке хранилище не изменяется.
func (s *StudentService) mutate(ctx context.Context, id string, op Op, fn mutation) (res *engine.Result, err error) {
	started := time.Now()
	defer func() {
		if errors.Is(err, errNoChange) {
			err = nil
		}
		s.metrics.ObserveMutation(op.String(), time.Since(started), err)
	}()

	unlock := s.locks.Lock(id)
	defer unlock()

	st, err := s.store.GetStudent(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%s: get student: %w", op, err)
	}
	if st == nil {
		return nil, fmt.Errorf("%s %s: %w", op, id, model.ErrStudentMissing)
	}
	// Повреждённую запись не меняет ни одна операция
	if err := st.Validate(); err != nil {
		s.logger.Warn("Refusing to mutate invalid record",
			zap.Stringer("op", op),
			zap.String("student_id", id),
			zap.Error(err))
		return nil, fmt.Errorf("%s %s: %w", op, id, err)
	}

	now := s.clock.Now()
	res, err = fn(st, now)
	if errors.Is(err, errNoChange) {
		s.reconcile(ctx, st, now)
		return &engine.Result{Student: st}, err
	}
	if err != nil {
		s.logger.Debug("Mutation rejected",
			zap.Stringer("op", op),
			zap.String("student_id", id),
			zap.Error(err))
		return nil, err
	}

	if err := s.store.Commit(ctx, res.Student, res.Log); err != nil {
		return nil, fmt.Errorf("%s: commit student: %w", op, err)
	}

	s.reconcile(ctx, res.Student, now)
	return res, nil
}

// reconcile ошибки очереди не отменяют сохранённое изменение, они только логируются
func (s *StudentService) reconcile(ctx context.Context, st *model.Student, now time.Time) {
	if s.reminders == nil {
		return
	}
	if _, err := s.reminders.Reconcile(ctx, st, now); err != nil {
		s.logger.Error("Failed to reconcile reminders",
			zap.String("student_id", st.ID),
			zap.Error(err))
	}
}

// CompleteClass отмечает занятие проведённым
func (s *StudentService) CompleteClass(ctx context.Context, id, occurrence string) (*engine.Result, error) {
	return s.mutate(ctx, id, OpComplete, func(st *model.Student, now time.Time) (*engine.Result, error) {
		return s.engine.CompleteClass(st, occurrence, now)
	})
}

// CompleteWithFreeCredit отмечает занятие проведённым за счёт бесплатного кредита
func (s *StudentService) CompleteWithFreeCredit(ctx context.Context, id, occurrence string) (*engine.Result, error) {
	return s.mutate(ctx, id, OpCompleteFree, func(st *model.Student, now time.Time) (*engine.Result, error) {
		return s.engine.CompleteWithFreeCredit(st, occurrence, now)
	})
}

// CancelClass отменяет занятие по запросу ученика
func (s *StudentService) CancelClass(ctx context.Context, id, occurrence string) (*engine.Result, error) {
	return s.mutate(ctx, id, OpCancel, func(st *model.Student, now time.Time) (*engine.Result, error) {
		return s.engine.CancelClass(st, occurrence, now)
	})
}

// CancelByProvider отменяет занятие со стороны преподавателя
func (s *StudentService) CancelByProvider(ctx context.Context, id, occurrence string) (*engine.Result, error) {
	return s.mutate(ctx, id, OpCancelByProvider, func(st *model.Student, now time.Time) (*engine.Result, error) {
		return s.engine.CancelByProvider(st, occurrence, now)
	})
}

// RescheduleClass переносит занятие на новое время
func (s *StudentService) RescheduleClass(ctx context.Context, id, oldOccurrence, newValue string) (*engine.Result, error) {
	return s.mutate(ctx, id, OpReschedule, func(st *model.Student, now time.Time) (*engine.Result, error) {
		return s.engine.RescheduleClass(st, oldOccurrence, newValue, now)
	})
}

// BookMakeUpClass ставит занятие на новое время за счёт кредита на перенос
func (s *StudentService) BookMakeUpClass(ctx context.Context, id, occurrence string) (*engine.Result, error) {
	return s.mutate(ctx, id, OpBookMakeUp, func(st *model.Student, now time.Time) (*engine.Result, error) {
		return s.engine.BookMakeUpClass(st, occurrence, now)
	})
}

func (s *StudentService) EditWeeklySlot(ctx context.Context, id string, index int, slotText string) (*engine.Result, error) {
	return s.mutate(ctx, id, OpEditSlot, func(st *model.Student, now time.Time) (*engine.Result, error) {
		return s.engine.EditWeeklySlot(st, index, slotText, now)
	})
}

func (s *StudentService) AddWeeklySlot(ctx context.Context, id, slotText string) (*engine.Result, error) {
	return s.mutate(ctx, id, OpAddSlot, func(st *model.Student, now time.Time) (*engine.Result, error) {
		return s.engine.AddWeeklySlot(st, slotText, now)
	})
}

func (s *StudentService) DeleteWeeklySlot(ctx context.Context, id string, index int) (*engine.Result, error) {
	return s.mutate(ctx, id, OpDeleteSlot, func(st *model.Student, now time.Time) (*engine.Result, error) {
		return s.engine.DeleteWeeklySlot(st, index, now)
	})
}

func (s *StudentService) BulkShiftSlot(ctx context.Context, id string, index int, shift engine.Shift) (*engine.Result, error) {
	return s.mutate(ctx, id, OpBulkShift, func(st *model.Student, now time.Time) (*engine.Result, error) {
		return s.engine.BulkShiftSlot(st, index, shift, now)
	})
}

// Renew продлевает цикл на count занятий по шаблону из журнала проведённых занятий
func (s *StudentService) Renew(ctx context.Context, id string, count int) (*engine.Result, error) {
	return s.mutate(ctx, id, OpRenew, func(st *model.Student, now time.Time) (*engine.Result, error) {
		history, err := s.store.QueryLogs(ctx, model.LogFilter{
			StudentID: st.ID,
			Statuses:  []model.LogStatus{model.LogStatusCompleted},
		})
		if err != nil {
			return nil, fmt.Errorf("renew: query logs: %w", err)
		}
		return s.engine.Renew(st, history, count, now)
	})
}

// RenewSame продлевает завершённый цикл на количество занятий последнего продления
func (s *StudentService) RenewSame(ctx context.Context, id string) (*engine.Result, error) {
	return s.mutate(ctx, id, OpRenewSame, func(st *model.Student, now time.Time) (*engine.Result, error) {
		history, err := s.store.QueryLogs(ctx, model.LogFilter{
			StudentID: st.ID,
			Statuses:  []model.LogStatus{model.LogStatusCompleted, model.LogStatusRenewed},
		})
		if err != nil {
			return nil, fmt.Errorf("renew same: query logs: %w", err)
		}
		return s.engine.RenewSame(st, history, now)
	})
}

func (s *StudentService) AwardFreeCredit(ctx context.Context, id string) (*engine.Result, error) {
	return s.mutate(ctx, id, OpAwardFree, func(st *model.Student, now time.Time) (*engine.Result, error) {
		return s.engine.AwardFreeCredit(st, now), nil
	})
}

func (s *StudentService) AwardRescheduleCredit(ctx context.Context, id string) (*engine.Result, error) {
	return s.mutate(ctx, id, OpAwardReschedule, func(st *model.Student, now time.Time) (*engine.Result, error) {
		return s.engine.AwardRescheduleCredit(st, now), nil
	})
}

// SetPaused ставит ученика на паузу или снимает с неё; напоминания сверяются сразу
func (s *StudentService) SetPaused(ctx context.Context, id string, paused bool) (*engine.Result, error) {
	return s.mutate(ctx, id, OpSetPaused, func(st *model.Student, now time.Time) (*engine.Result, error) {
		if st.Paused == paused {
			return nil, errNoChange
		}
		return s.engine.SetPaused(st, paused), nil
	})
}

func (s *StudentService) SetReminderOffset(ctx context.Context, id string, minutes int) (*engine.Result, error) {
	return s.mutate(ctx, id, OpSetReminderOffset, func(st *model.Student, now time.Time) (*engine.Result, error) {
		return s.engine.SetReminderOffset(st, minutes)
	})
}

// WarnLowBalance отправляет ученику предупреждение о заканчивающемся балансе, если оно
// положено. Отметка о предупреждении сохраняется только после успешной отправки.
func (s *StudentService) WarnLowBalance(ctx context.Context, id string, sender MessageSender) (bool, error) {
	sent := false
	_, err := s.mutate(ctx, id, OpBalanceWarning, func(st *model.Student, now time.Time) (*engine.Result, error) {
		text, ok := s.engine.BalanceWarning(st)
		if !ok {
			return nil, errNoChange
		}
		if err := sender.SendReminder(ctx, st.TelegramID, text); err != nil {
			return nil, fmt.Errorf("send balance warning to %s: %w", st.ID, err)
		}
		sent = true
		return s.engine.MarkBalanceWarned(st), nil
	})
	return sent, err
}

// EnsureHorizon дополняет расписание ученика до горизонта
func (s *StudentService) EnsureHorizon(ctx context.Context, id string) (*engine.Result, error) {
	return s.mutate(ctx, id, OpEnsureHorizon, func(st *model.Student, now time.Time) (*engine.Result, error) {
		res, err := s.engine.EnsureHorizon(st, now)
		if err != nil {
			return nil, err
		}
		if !res.DatesChanged {
			return nil, errNoChange
		}
		return res, nil
	})
}

// EnsureHorizonAll дополняет расписание всех учеников и сверяет их напоминания.
// Возвращает количество изменённых записей.
func (s *StudentService) EnsureHorizonAll(ctx context.Context) (int, error) {
	students, err := s.store.ListStudents(ctx)
	if err != nil {
		return 0, fmt.Errorf("list students: %w", err)
	}

	changed := 0
	var errs []error
	for _, st := range students {
		res, err := s.EnsureHorizon(ctx, st.ID)
		if err != nil {
			s.logger.Warn("Failed to extend schedule",
				zap.String("student_id", st.ID),
				zap.Error(err))
			errs = append(errs, err)
			continue
		}
		if res.DatesChanged {
			changed++
		}
	}

	s.logger.Info("Schedules extended",
		zap.Int("students", len(students)),
		zap.Int("changed", changed))

	return changed, errors.Join(errs...)
}

// RegisterStudent сохраняет нового ученика и генерирует его первые занятия по шаблону
func (s *StudentService) RegisterStudent(ctx context.Context, st *model.Student) (*engine.Result, error) {
	st = st.Clone()
	st.TelegramHandle = repository.NormalizeHandle(st.TelegramHandle)
	if st.ID == "" {
		st.ID = studentKey(st)
	}

	defaults := s.engine.Defaults()
	if st.CycleWeeks <= 0 {
		st.CycleWeeks = defaults.CycleWeeks
	}
	if st.ClassDurationHours <= 0 {
		st.ClassDurationHours = defaults.DurationHours
	}
	if st.ClassDates == nil {
		st.ClassDates = []string{}
	}
	if st.CancelledDates == nil {
		st.CancelledDates = []string{}
	}

	unlock := s.locks.Lock(st.ID)
	defer unlock()

	// Проверяем что ключ свободен
	existing, err := s.store.GetStudent(ctx, st.ID)
	if err != nil {
		return nil, fmt.Errorf("register: get student: %w", err)
	}
	if existing != nil {
		return nil, fmt.Errorf("register student %s: %w", st.ID, model.ErrConflict)
	}

	now := s.clock.Now()
	res, err := s.engine.EnsureHorizon(st, now)
	if err != nil {
		return nil, err
	}

	if err := s.store.Commit(ctx, res.Student, nil); err != nil {
		return nil, fmt.Errorf("register: commit student: %w", err)
	}

	s.logger.Info("Student registered",
		zap.String("student_id", res.Student.ID),
		zap.String("schedule_pattern", res.Student.SchedulePattern),
		zap.Int("class_dates", len(res.Student.ClassDates)))

	s.reconcile(ctx, res.Student, now)
	return res, nil
}

// RemoveStudent удаляет ученика и его напоминания. Без purge журнал сохраняется
// и дополняется записью об удалении.
func (s *StudentService) RemoveStudent(ctx context.Context, id string, purge bool) error {
	unlock := s.locks.Lock(id)
	defer unlock()

	if err := s.store.DeleteStudent(ctx, id, purge); err != nil {
		return fmt.Errorf("remove student: %w", err)
	}

	if s.reminders != nil {
		if _, err := s.reminders.Clear(ctx, id); err != nil {
			s.logger.Error("Failed to clear reminders",
				zap.String("student_id", id),
				zap.Error(err))
		}
	}

	if !purge {
		now := s.clock.Now()
		entry := model.NewLogEntry(id, model.LogStatusRemoved, now.In(s.engine.Location()).Format("2006-01-02"), now)
		if err := s.store.AppendLog(ctx, entry); err != nil {
			return fmt.Errorf("remove student: append log: %w", err)
		}
	}

	s.logger.Info("Student removed",
		zap.String("student_id", id),
		zap.Bool("purge", purge))

	return nil
}

// Resolve находит ученика по числовому ID, ключу или telegram-нику
func (s *StudentService) Resolve(ctx context.Context, key string) (*model.Student, error) {
	normalized := repository.NormalizeHandle(key)
	if normalized == "" {
		return nil, fmt.Errorf("resolve %q: %w", key, model.ErrStudentMissing)
	}

	// Числовой ID приводим к каноническому виду ("007" -> "7")
	if n, err := strconv.ParseInt(normalized, 10, 64); err == nil {
		st, err := s.store.GetStudent(ctx, strconv.FormatInt(n, 10))
		if err != nil {
			return nil, fmt.Errorf("resolve: get student: %w", err)
		}
		if st != nil {
			return st, nil
		}
	}

	st, err := s.store.GetStudent(ctx, normalized)
	if err != nil {
		return nil, fmt.Errorf("resolve: get student: %w", err)
	}
	if st != nil {
		return st, nil
	}

	students, err := s.store.ListStudents(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve: list students: %w", err)
	}
	for _, candidate := range students {
		if candidate.TelegramHandle != "" && candidate.TelegramHandle == normalized {
			return candidate, nil
		}
	}

	return nil, fmt.Errorf("resolve %q: %w", key, model.ErrStudentMissing)
}

// Upcoming возвращает ближайшие занятия, видимые ученику
func (s *StudentService) Upcoming(ctx context.Context, id string, limit int) ([]time.Time, error) {
	st, err := s.store.GetStudent(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("upcoming: get student: %w", err)
	}
	if st == nil {
		return nil, fmt.Errorf("upcoming %s: %w", id, model.ErrStudentMissing)
	}
	return s.engine.UpcomingClasses(st, s.clock.Now(), limit), nil
}

// GetStudent возвращает запись ученика или nil
func (s *StudentService) GetStudent(ctx context.Context, id string) (*model.Student, error) {
	return s.store.GetStudent(ctx, id)
}

// studentKey ключ записи: telegram ID после привязки, иначе ник
func studentKey(st *model.Student) string {
	if st.HasTelegram() {
		return strconv.FormatInt(st.TelegramID, 10)
	}
	return st.TelegramHandle
}
