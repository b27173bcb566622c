package engine

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/Freeeeeet/class_track_bot/internal/model"
	"github.com/Freeeeeet/class_track_bot/internal/schedule"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func april(day, hour int) time.Time {
	return time.Date(2024, time.April, day, hour, 0, 0, 0, ict)
}

func completedHistory(studentID string, times ...time.Time) []*model.LogEntry {
	var out []*model.LogEntry
	for _, ts := range times {
		out = append(out, model.NewLogEntry(studentID, model.LogStatusCompleted, iso(ts), ts))
	}
	return out
}

func TestRenew(t *testing.T) {
	e := newEngine()
	st := newStudent()
	now := may(1, 9, 0)

	history := completedHistory("42", april(1, 10), april(4, 10), april(8, 10), april(11, 10), april(15, 10), april(22, 10))
	history = append(history,
		model.NewLogEntry("7", model.LogStatusCompleted, iso(april(2, 18)), now),
		model.NewLogEntry("42", model.LogStatusCancelledEarly, iso(april(3, 18)), now),
	)

	res, err := e.Renew(st, history, 4, now)
	require.NoError(t, err)

	assert.Equal(t, isoList(may(2, 10, 0), may(6, 10, 0), may(9, 10, 0), may(13, 10, 0)), res.Student.ClassDates)
	assert.Equal(t, 9, res.Student.ClassesRemaining)
	assert.Equal(t, "2024-05-13", res.Student.RenewalDate)
	assert.Empty(t, res.Student.CancelledDates)

	require.NotNil(t, res.Log)
	assert.Equal(t, model.LogStatusRenewed, res.Log.Status)
	assert.Equal(t, 4, res.Log.Quantity)
	assert.Equal(t, "Monday 10:00, Thursday 10:00", res.Log.Note)
}

func TestRenew_AnchorsAtLatestClass(t *testing.T) {
	e := newEngine()
	st := newStudent(may(20, 10, 0))
	st.CancelledDates = isoList(may(6, 10, 0))
	now := may(1, 9, 0)

	history := completedHistory("42", april(1, 10), april(8, 10), april(15, 10), april(22, 10))
	res, err := e.Renew(st, history, 2, now)
	require.NoError(t, err)

	assert.Equal(t, isoList(may(20, 10, 0), may(27, 10, 0), time.Date(2024, time.June, 3, 10, 0, 0, 0, ict)), res.Student.ClassDates)
	assert.Equal(t, isoList(may(6, 10, 0)), res.Student.CancelledDates)
}

func TestRenew_KeepsLaterRenewalDate(t *testing.T) {
	e := newEngine()
	st := newStudent()
	st.RenewalDate = "2024-12-31"

	history := completedHistory("42", april(1, 10), april(8, 10), april(15, 10), april(22, 10))
	res, err := e.Renew(st, history, 1, may(1, 9, 0))
	require.NoError(t, err)
	assert.Equal(t, "2024-12-31", res.Student.RenewalDate)
}

func TestRenew_NoPattern(t *testing.T) {
	e := newEngine()
	st := newStudent()

	history := completedHistory("42", april(1, 10), april(8, 10))
	_, err := e.Renew(st, history, 4, may(1, 9, 0))
	assert.ErrorIs(t, err, model.ErrNoPattern)
}

func TestRenew_InvalidRecord(t *testing.T) {
	e := newEngine()
	st := newStudent(may(6, 10, 0))
	st.CancelledDates = nil
	st.Malformed = map[string]json.RawMessage{"cancelled_dates": json.RawMessage(`"oops"`)}

	history := completedHistory("42", april(1, 10), april(8, 10), april(15, 10), april(22, 10))
	_, err := e.Renew(st, history, 4, may(1, 9, 0))
	assert.ErrorIs(t, err, model.ErrInvalidRecord)
	assert.Equal(t, isoList(may(6, 10, 0)), st.ClassDates)
	assert.Equal(t, 5, st.ClassesRemaining)
}

func TestRenew_InvalidCount(t *testing.T) {
	e := newEngine()
	history := completedHistory("42", april(1, 10), april(8, 10), april(15, 10), april(22, 10))
	_, err := e.Renew(newStudent(), history, 0, may(1, 9, 0))
	assert.ErrorIs(t, err, model.ErrInvalidFormat)
}

func TestEnsureHorizon_InitialGenerationBoundedByRenewal(t *testing.T) {
	e := newEngine()
	st := newStudent()
	st.SchedulePattern = "Monday 10:00"
	now := may(1, 9, 0)
	st.RenewalDate = schedule.FormatDate(now.AddDate(0, 0, 14))

	res, err := e.EnsureHorizon(st, now)
	require.NoError(t, err)
	require.True(t, res.DatesChanged)
	require.NotEmpty(t, res.Student.ClassDates)

	bound, err := schedule.EndOfDate(st.RenewalDate, ict)
	require.NoError(t, err)
	for _, item := range res.Student.ClassDates {
		ts, err := schedule.ParseTimestamp(item, ict)
		require.NoError(t, err)
		assert.Equal(t, time.Monday, ts.Weekday())
		assert.False(t, ts.After(bound), item)
	}
	assert.Equal(t, isoList(may(6, 10, 0), may(13, 10, 0)), res.Student.ClassDates)
}

func TestEnsureHorizon_ExtendsFromLatest(t *testing.T) {
	e := newEngine()
	st := newStudent(may(6, 10, 0))
	st.SchedulePattern = "Monday 10:00"
	now := may(1, 9, 0)

	res, err := e.EnsureHorizon(st, now)
	require.NoError(t, err)
	assert.Equal(t, isoList(may(6, 10, 0), may(13, 10, 0), may(20, 10, 0), may(27, 10, 0)), res.Student.ClassDates)

	again, err := e.EnsureHorizon(res.Student, now)
	require.NoError(t, err)
	assert.False(t, again.DatesChanged)
	assert.Equal(t, res.Student.ClassDates, again.Student.ClassDates)
}

func TestEnsureHorizon_NoOp(t *testing.T) {
	e := newEngine()
	now := may(1, 9, 0)

	paused := newStudent()
	paused.Paused = true
	res, err := e.EnsureHorizon(paused, now)
	require.NoError(t, err)
	assert.False(t, res.DatesChanged)
	assert.Empty(t, res.Student.ClassDates)

	empty := newStudent()
	empty.SchedulePattern = ""
	res, err = e.EnsureHorizon(empty, now)
	require.NoError(t, err)
	assert.False(t, res.DatesChanged)
	assert.Nil(t, res.Log)
}

func renewedEntry(studentID string, qty int, at time.Time) *model.LogEntry {
	entry := model.NewLogEntry(studentID, model.LogStatusRenewed, iso(at), at)
	entry.Quantity = qty
	return entry
}

func TestRenewSame(t *testing.T) {
	e := newEngine()
	now := may(1, 9, 0)

	history := completedHistory("42", april(1, 10), april(8, 10), april(15, 10), april(22, 10))
	history = append(history,
		renewedEntry("42", 3, april(2, 9)),
		renewedEntry("7", 8, april(3, 9)),
		renewedEntry("42", 0, april(4, 9)),
	)

	st := newStudent(april(22, 10))
	st.ClassesRemaining = 0
	warned := 0
	st.LastBalanceWarning = &warned

	res, err := e.RenewSame(st, history, now)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Student.ClassesRemaining)
	assert.Equal(t, 3, res.Log.Quantity)
	assert.Equal(t, isoList(april(22, 10), may(6, 10, 0), may(13, 10, 0), may(20, 10, 0)), res.Student.ClassDates)
	assert.Nil(t, res.Student.LastBalanceWarning)
}

func TestRenewSame_Errors(t *testing.T) {
	e := newEngine()
	now := may(1, 9, 0)
	history := completedHistory("42", april(1, 10), april(8, 10), april(15, 10), april(22, 10))

	// баланс не исчерпан
	active := newStudent()
	_, err := e.RenewSame(active, append(history, renewedEntry("42", 4, april(2, 9))), now)
	assert.ErrorIs(t, err, model.ErrCycleActive)

	// впереди ещё есть занятие
	ahead := newStudent(may(6, 10, 0))
	ahead.ClassesRemaining = 0
	_, err = e.RenewSame(ahead, append(history, renewedEntry("42", 4, april(2, 9))), now)
	assert.ErrorIs(t, err, model.ErrCycleActive)

	// продлений ещё не было
	finished := newStudent()
	finished.ClassesRemaining = 0
	_, err = e.RenewSame(finished, history, now)
	assert.ErrorIs(t, err, model.ErrNoRenewal)
}

func TestIsCycleFinished(t *testing.T) {
	e := newEngine()
	now := may(6, 12, 0)

	st := newStudent(may(2, 10, 0), may(6, 10, 0))
	st.ClassesRemaining = 0
	assert.True(t, e.IsCycleFinished(st, now))

	st.ClassDates = append(st.ClassDates, "not a date")
	assert.True(t, e.IsCycleFinished(st, now))

	st.ClassesRemaining = 1
	assert.False(t, e.IsCycleFinished(st, now))

	st.ClassesRemaining = 0
	assert.False(t, e.IsCycleFinished(st, may(6, 9, 0)))
}

func TestLastRenewalQuantity(t *testing.T) {
	_, ok := LastRenewalQuantity("42", nil)
	assert.False(t, ok)

	history := []*model.LogEntry{
		renewedEntry("42", 8, april(1, 9)),
		model.NewLogEntry("42", model.LogStatusCompleted, iso(april(2, 10)), april(2, 11)),
		renewedEntry("42", 4, april(3, 9)),
		renewedEntry("7", 12, april(4, 9)),
		nil,
	}
	qty, ok := LastRenewalQuantity("42", history)
	require.True(t, ok)
	assert.Equal(t, 4, qty)
}
