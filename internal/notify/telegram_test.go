package notify

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeSender struct {
	mu     sync.Mutex
	failTo map[int64]bool
	sent   []*bot.SendMessageParams
}

func (s *fakeSender) SendMessage(_ context.Context, params *bot.SendMessageParams) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failTo[params.ChatID.(int64)] {
		return nil, errors.New("Forbidden: bot was blocked by the user")
	}
	s.sent = append(s.sent, params)
	return &models.Message{ID: len(s.sent)}, nil
}

func TestSendReminder(t *testing.T) {
	sender := &fakeSender{}
	tg := NewTelegram(sender, nil, zap.NewNop())

	require.NoError(t, tg.SendReminder(context.Background(), 42, "Reminder"))
	require.Len(t, sender.sent, 1)
	assert.Equal(t, int64(42), sender.sent[0].ChatID)
	assert.Equal(t, "Reminder", sender.sent[0].Text)

	sender.failTo = map[int64]bool{42: true}
	assert.Error(t, tg.SendReminder(context.Background(), 42, "Reminder"))
}

func TestNotifyAdmins(t *testing.T) {
	sender := &fakeSender{failTo: map[int64]bool{2: true}}
	tg := NewTelegram(sender, []int64{1, 2, 3}, zap.NewNop())

	err := tg.NotifyAdmins(context.Background(), "delivery failed")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "notify admin 2")
	assert.Len(t, sender.sent, 2)
}

func TestLogNotifier(t *testing.T) {
	n := NewLogNotifier(nil)
	assert.NoError(t, n.SendReminder(context.Background(), 42, "Reminder"))
	assert.NoError(t, n.NotifyAdmins(context.Background(), "alert"))
}
