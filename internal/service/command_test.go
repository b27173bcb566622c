package service

import (
	"context"
	"testing"

	"github.com/Freeeeeet/class_track_bot/internal/engine"
	"github.com/Freeeeeet/class_track_bot/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpString(t *testing.T) {
	assert.Equal(t, "reschedule", OpReschedule.String())
	assert.Equal(t, "op(200)", Op(200).String())
	for op := OpComplete; op <= OpBalanceWarning; op++ {
		assert.Contains(t, opNames, op)
	}
}

func TestExecute(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t, may(6, 10, 0), may(9, 10, 0))

	res, err := f.svc.Execute(ctx, Command{Op: OpComplete, StudentID: "42", Occurrence: iso(may(6, 10, 0))})
	require.NoError(t, err)
	assert.Equal(t, model.LogStatusCompleted, res.Log.Status)

	res, err = f.svc.Execute(ctx, Command{Op: OpBulkShift, StudentID: "42", Index: 1, Shift: engine.Shift{OffsetMinutes: 60}})
	require.NoError(t, err)
	assert.Equal(t, "Thursday 11:00", res.Log.To)

	res, err = f.svc.Execute(ctx, Command{Op: OpAwardFree, StudentID: "42"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Student.FreeClassCredit)

	_, err = f.svc.Execute(ctx, Command{Op: OpBookMakeUp, StudentID: "42", Occurrence: iso(may(10, 18, 0))})
	assert.ErrorIs(t, err, model.ErrNoCredit)

	_, err = f.svc.Execute(ctx, Command{Op: OpRenewSame, StudentID: "42"})
	assert.ErrorIs(t, err, model.ErrCycleActive)

	_, err = f.svc.Execute(ctx, Command{StudentID: "42"})
	assert.ErrorIs(t, err, model.ErrInvalidFormat)
}
