package engine

import (
	"testing"
	"time"

	"github.com/Freeeeeet/class_track_bot/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mondayWednesday ученик с занятиями по понедельникам и средам с конца апреля по конец мая
func mondayWednesday() *model.Student {
	st := newStudent(
		time.Date(2024, time.April, 29, 10, 0, 0, 0, ict),
		may(1, 10, 0), may(6, 10, 0), may(8, 10, 0), may(13, 10, 0), may(15, 10, 0),
		may(20, 10, 0), may(22, 10, 0), may(27, 10, 0), may(29, 10, 0),
	)
	st.SchedulePattern = "Monday 10:00, Wednesday 10:00"
	return st
}

func weekdayCount(t *testing.T, dates []string, weekday time.Weekday, after time.Time) int {
	t.Helper()
	n := 0
	for _, item := range dates {
		ts, err := time.Parse(time.RFC3339, item)
		require.NoError(t, err)
		ts = ts.In(ict)
		if ts.Weekday() == weekday && ts.After(after) {
			n++
		}
	}
	return n
}

func TestEditWeeklySlot_ReplacesFutureOnly(t *testing.T) {
	e := newEngine()
	st := mondayWednesday()
	st.SlotDurations = map[string]float64{"monday 10:00": 1.5}
	now := may(14, 12, 0)

	res, err := e.EditWeeklySlot(st, 0, "Tuesday 10:00", now)
	require.NoError(t, err)

	dates := res.Student.ClassDates
	for _, past := range []time.Time{time.Date(2024, time.April, 29, 10, 0, 0, 0, ict), may(6, 10, 0), may(13, 10, 0)} {
		assert.Contains(t, dates, iso(past))
	}
	assert.NotContains(t, dates, iso(may(20, 10, 0)))
	assert.NotContains(t, dates, iso(may(27, 10, 0)))
	assert.Zero(t, weekdayCount(t, dates, time.Monday, now))
	assert.GreaterOrEqual(t, weekdayCount(t, dates, time.Tuesday, now), 2)
	assert.Contains(t, dates, iso(may(21, 10, 0)))

	assert.Equal(t, "Tuesday 10:00, Wednesday 10:00", res.Student.SchedulePattern)
	assert.Equal(t, map[string]float64{"Tuesday 10:00": 1.5}, res.Student.SlotDurations)
	assert.Equal(t, model.LogStatusPatternUpdated, res.Log.Status)
	assert.Equal(t, "Monday 10:00", res.Log.From)
	assert.Equal(t, "Tuesday 10:00", res.Log.To)

	// Wednesdays untouched
	assert.Equal(t, weekdayCount(t, st.ClassDates, time.Wednesday, now), weekdayCount(t, dates, time.Wednesday, now))
}

func TestEditWeeklySlot_Errors(t *testing.T) {
	e := newEngine()
	st := mondayWednesday()
	now := may(14, 12, 0)

	_, err := e.EditWeeklySlot(st, 2, "Tuesday 10:00", now)
	assert.ErrorIs(t, err, model.ErrInvalidIndex)

	_, err = e.EditWeeklySlot(st, -1, "Tuesday 10:00", now)
	assert.ErrorIs(t, err, model.ErrInvalidIndex)

	_, err = e.EditWeeklySlot(st, 0, "Tuesday 25:00", now)
	assert.ErrorIs(t, err, model.ErrInvalidFormat)

	_, err = e.EditWeeklySlot(st, 0, "wednesday 10:00", now)
	assert.ErrorIs(t, err, model.ErrConflict)

	st.SchedulePattern = "Monday 10:00, Whenever"
	_, err = e.EditWeeklySlot(st, 0, "Tuesday 10:00", now)
	assert.ErrorIs(t, err, model.ErrInvalidRecord)
}

func TestAddWeeklySlot_BoundedByRenewalDate(t *testing.T) {
	e := newEngine()
	st := mondayWednesday()
	st.RenewalDate = "2024-05-24"
	now := may(14, 12, 0)

	res, err := e.AddWeeklySlot(st, "friday 15:00", now)
	require.NoError(t, err)

	assert.Contains(t, res.Student.ClassDates, iso(may(17, 15, 0)))
	assert.Contains(t, res.Student.ClassDates, iso(may(24, 15, 0)))
	assert.NotContains(t, res.Student.ClassDates, iso(may(31, 15, 0)))
	assert.Len(t, res.Student.ClassDates, len(st.ClassDates)+2)
	assert.Equal(t, "Monday 10:00, Wednesday 10:00, Friday 15:00", res.Student.SchedulePattern)
	assert.Equal(t, 2, res.Log.Quantity)

	_, err = e.AddWeeklySlot(st, "Monday 10:00", now)
	assert.ErrorIs(t, err, model.ErrConflict)
}

func TestDeleteWeeklySlot(t *testing.T) {
	e := newEngine()
	st := mondayWednesday()
	st.SlotDurations = map[string]float64{"Wednesday 10:00": 2, "Monday 10:00": 1}
	now := may(14, 12, 0)

	res, err := e.DeleteWeeklySlot(st, 1, now)
	require.NoError(t, err)

	dates := res.Student.ClassDates
	assert.Contains(t, dates, iso(may(1, 10, 0)))
	assert.Contains(t, dates, iso(may(8, 10, 0)))
	assert.Zero(t, weekdayCount(t, dates, time.Wednesday, now))
	assert.Equal(t, weekdayCount(t, st.ClassDates, time.Monday, time.Time{}), weekdayCount(t, dates, time.Monday, time.Time{}))
	assert.Equal(t, "Monday 10:00", res.Student.SchedulePattern)
	assert.Equal(t, map[string]float64{"Monday 10:00": 1}, res.Student.SlotDurations)
	assert.Equal(t, 3, res.Log.Quantity)

	_, err = e.DeleteWeeklySlot(st, 5, now)
	assert.ErrorIs(t, err, model.ErrInvalidIndex)
}

func TestBulkShiftSlot_Offset(t *testing.T) {
	e := newEngine()
	st := mondayWednesday()
	now := may(14, 12, 0)

	res, err := e.BulkShiftSlot(st, 0, Shift{OffsetMinutes: 30}, now)
	require.NoError(t, err)

	dates := res.Student.ClassDates
	assert.Contains(t, dates, iso(may(13, 10, 0)), "past occurrence untouched")
	assert.Contains(t, dates, iso(may(20, 10, 30)))
	assert.Contains(t, dates, iso(may(27, 10, 30)))
	assert.NotContains(t, dates, iso(may(20, 10, 0)))
	assert.Len(t, dates, len(st.ClassDates))
	assert.Equal(t, "Monday 10:30, Wednesday 10:00", res.Student.SchedulePattern)
	assert.Equal(t, 2, res.Log.Quantity)
}

func TestBulkShiftSlot_DropsCollisions(t *testing.T) {
	e := newEngine()
	st := mondayWednesday()
	st.ClassDates = append(st.ClassDates, iso(may(20, 10, 30)))
	now := may(14, 12, 0)

	res, err := e.BulkShiftSlot(st, 0, Shift{OffsetMinutes: 30}, now)
	require.NoError(t, err)

	seen := make(map[string]bool)
	for _, d := range res.Student.ClassDates {
		assert.False(t, seen[d], "duplicate %s", d)
		seen[d] = true
	}
	assert.Contains(t, res.Student.ClassDates, iso(may(20, 10, 30)))
	assert.Contains(t, res.Student.ClassDates, iso(may(27, 10, 30)))
	assert.Len(t, res.Student.ClassDates, len(st.ClassDates)-1)
	assert.Equal(t, 1, res.Log.Quantity)
}

func TestBulkShiftSlot_NewSlotAndErrors(t *testing.T) {
	e := newEngine()
	st := mondayWednesday()
	now := may(14, 12, 0)

	res, err := e.BulkShiftSlot(st, 0, Shift{NewSlot: "Tuesday 10:00"}, now)
	require.NoError(t, err)
	assert.Equal(t, "Tuesday 10:00, Wednesday 10:00", res.Student.SchedulePattern)

	_, err = e.BulkShiftSlot(st, 0, Shift{}, now)
	assert.ErrorIs(t, err, model.ErrInvalidFormat)

	_, err = e.BulkShiftSlot(st, 0, Shift{OffsetMinutes: 2 * 24 * 60}, now)
	assert.ErrorIs(t, err, model.ErrConflict)

	_, err = e.BulkShiftSlot(st, 3, Shift{OffsetMinutes: 15}, now)
	assert.ErrorIs(t, err, model.ErrInvalidIndex)
}
