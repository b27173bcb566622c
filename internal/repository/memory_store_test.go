package repository

import (
	"context"
	"testing"
	"time"

	"github.com/Freeeeeet/class_track_bot/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testStudent(id string) *model.Student {
	return &model.Student{
		ID:                 id,
		Name:               "Anna",
		ClassesRemaining:   4,
		ClassDates:         []string{"2024-05-06T10:00:00+07:00"},
		CancelledDates:     []string{},
		SchedulePattern:    "Monday 10:00",
		CycleWeeks:         4,
		CutoffHours:        24,
		ClassDurationHours: 1,
	}
}

// runStoreSuite общие проверки для реализаций Store
func runStoreSuite(t *testing.T, store Store) {
	ctx := context.Background()
	now := time.Date(2024, time.May, 1, 9, 0, 0, 0, ict)

	missing, err := store.GetStudent(ctx, "42")
	require.NoError(t, err)
	assert.Nil(t, missing)

	st := testStudent("42")
	require.NoError(t, store.Commit(ctx, st, nil))
	require.NoError(t, store.Commit(ctx, testStudent("7"), nil))

	loaded, err := store.GetStudent(ctx, "42")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, st.ClassDates, loaded.ClassDates)
	assert.Equal(t, 4, loaded.ClassesRemaining)

	loaded.ClassesRemaining = 3
	loaded.ClassDates = []string{}
	entry := model.NewLogEntry("42", model.LogStatusCompleted, "2024-05-06T10:00:00+07:00", now)
	require.NoError(t, store.Commit(ctx, loaded, entry))
	require.NoError(t, store.AppendLog(ctx, model.NewLogEntry("7", model.LogStatusRenewed, "2024-05-01", now.Add(time.Minute))))

	updated, err := store.GetStudent(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, 3, updated.ClassesRemaining)
	assert.Empty(t, updated.ClassDates)

	all, err := store.ListStudents(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "42", all[0].ID)
	assert.Equal(t, "7", all[1].ID)

	logs, err := store.QueryLogs(ctx, model.LogFilter{StudentID: "42", Statuses: []model.LogStatus{model.LogStatusCompleted}})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, entry.ID, logs[0].ID)
	assert.Equal(t, "2024-05-06T10:00:00+07:00", logs[0].Date)

	logs, err = store.QueryLogs(ctx, model.LogFilter{})
	require.NoError(t, err)
	assert.Len(t, logs, 2)

	require.NoError(t, store.DeleteStudent(ctx, "42", false))
	assert.ErrorIs(t, store.DeleteStudent(ctx, "42", false), model.ErrNotFound)

	logs, err = store.QueryLogs(ctx, model.LogFilter{StudentID: "42"})
	require.NoError(t, err)
	assert.Len(t, logs, 1)

	require.NoError(t, store.DeleteStudent(ctx, "7", true))
	logs, err = store.QueryLogs(ctx, model.LogFilter{StudentID: "7"})
	require.NoError(t, err)
	assert.Empty(t, logs)
}

func TestMemoryStore(t *testing.T) {
	runStoreSuite(t, NewMemoryStore(newDecoder(), zap.NewNop()))
}

func TestMemoryStore_NormalizesOnRead(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(newDecoder(), zap.NewNop())
	store.PutRaw("42", []byte(`{"name": "Anna", "class_dates": ["2024-05-06 10:00"], "price": 500}`))

	st, err := store.GetStudent(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-05-06T10:00:00+07:00"}, st.ClassDates)

	// чтение не переписывает сохранённые байты
	raw, ok := store.Raw("42")
	require.True(t, ok)
	assert.JSONEq(t, `{"name": "Anna", "class_dates": ["2024-05-06 10:00"], "price": 500}`, string(raw))

	require.NoError(t, store.Commit(ctx, st, nil))
	raw, _ = store.Raw("42")
	assert.Contains(t, string(raw), `"price":500`)
	assert.Contains(t, string(raw), `"2024-05-06T10:00:00+07:00"`)
}

func TestMemoryStore_LogEntriesAreCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(newDecoder(), zap.NewNop())
	entry := model.NewLogEntry("42", model.LogStatusCompleted, "2024-05-06T10:00:00+07:00", time.Now())
	require.NoError(t, store.AppendLog(ctx, entry))

	entry.Note = "changed"
	logs, err := store.QueryLogs(ctx, model.LogFilter{})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Empty(t, logs[0].Note)
}
