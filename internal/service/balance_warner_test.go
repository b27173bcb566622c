package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingSender struct {
	mu       sync.Mutex
	fail     bool
	messages map[int64][]string
}

func (s *recordingSender) SendReminder(_ context.Context, chatID int64, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("bot was blocked by the user")
	}
	if s.messages == nil {
		s.messages = make(map[int64][]string)
	}
	s.messages[chatID] = append(s.messages[chatID], text)
	return nil
}

func TestWarnLowBalances(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t, may(6, 10, 0), may(9, 10, 0))
	sender := &recordingSender{}
	warner := NewBalanceWarner(f.svc, sender, zap.NewNop())

	sent, err := warner.WarnLowBalances(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	assert.Equal(t, []string{"Hi Anna, you have 2 classes remaining in your plan."}, sender.messages[42])

	st, err := f.svc.GetStudent(ctx, "42")
	require.NoError(t, err)
	require.NotNil(t, st.LastBalanceWarning)
	assert.Equal(t, 2, *st.LastBalanceWarning)

	// тот же баланс второй раз не сообщается
	sent, err = warner.WarnLowBalances(ctx)
	require.NoError(t, err)
	assert.Zero(t, sent)

	f.clock.Set(may(6, 11, 0))
	_, err = f.svc.CompleteClass(ctx, "42", iso(may(6, 10, 0)))
	require.NoError(t, err)

	sent, err = warner.WarnLowBalances(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	assert.Equal(t, "Hi Anna, you have 1 class remaining in your plan.", sender.messages[42][1])

	// предупреждение не пишется в журнал
	assert.Len(t, f.logs(t, "42"), 1)
}

func TestWarnLowBalances_FailedSendNotMarked(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t, may(6, 10, 0))
	sender := &recordingSender{fail: true}
	warner := NewBalanceWarner(f.svc, sender, zap.NewNop())

	sent, err := warner.WarnLowBalances(ctx)
	assert.Error(t, err)
	assert.Zero(t, sent)

	st, err := f.svc.GetStudent(ctx, "42")
	require.NoError(t, err)
	assert.Nil(t, st.LastBalanceWarning)

	sender.fail = false
	sent, err = warner.WarnLowBalances(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
}

func TestWarnLowBalances_ResetByRenewal(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t)
	sender := &recordingSender{}
	warner := NewBalanceWarner(f.svc, sender, zap.NewNop())

	sent, err := warner.WarnLowBalances(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	assert.Equal(t, []string{"Hi Anna, your plan has finished, please renew."}, sender.messages[42])

	// продление сбрасывает отметку; новое предупреждение придёт, когда баланс снова упадёт
	f.appendCompleted(t, may(2, 10, 0), may(6, 10, 0), may(9, 10, 0), may(13, 10, 0))
	res, err := f.svc.Renew(ctx, "42", 2)
	require.NoError(t, err)
	assert.Nil(t, res.Student.LastBalanceWarning)

	sent, err = warner.WarnLowBalances(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	assert.Equal(t, "Hi Anna, you have 2 classes remaining in your plan.", sender.messages[42][1])
}
