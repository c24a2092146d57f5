package telegram

import (
	"context"
	"errors"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-openclaw-autoapply/internal/models"
)

type fakeSender struct {
	sent []tgbotapi.MessageConfig
	err  error
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if f.err != nil {
		return tgbotapi.Message{}, f.err
	}
	f.sent = append(f.sent, c.(tgbotapi.MessageConfig))
	return tgbotapi.Message{}, nil
}

type chatMap map[string]int64

func (c chatMap) TelegramChatID(_ context.Context, userID string) (int64, error) {
	id, ok := c[userID]
	if !ok {
		return 0, errors.New("not found")
	}
	return id, nil
}

var sampleJob = models.JobCandidate{
	JobID:    "j1",
	Title:    "Go Dev (Remote)",
	Company:  "Acme.io",
	Source:   "linkedin",
	ApplyURL: "https://www.linkedin.com/jobs/view/1",
	FitScore: 87.4,
}

func TestEscapeMarkdown(t *testing.T) {
	b := newBot(&fakeSender{}, 1, nil)
	assert.Equal(t, "Acme\\.io \\(Remote\\) \\- C\\#", b.escapeMarkdown("Acme.io (Remote) - C#"))
}

func TestNotifyAppliedUsesUserChat(t *testing.T) {
	api := &fakeSender{}
	b := newBot(api, 999, chatMap{"u1": 42})

	require.NoError(t, b.NotifyApplied(context.Background(), "u1", sampleJob, false))
	require.Len(t, api.sent, 1)

	msg := api.sent[0]
	assert.Equal(t, int64(42), msg.ChatID)
	assert.Equal(t, "MarkdownV2", msg.ParseMode)
	assert.Contains(t, msg.Text, "Application submitted")
	assert.Contains(t, msg.Text, "Acme\\.io")
	assert.Contains(t, msg.Text, "87/100")
	assert.NotNil(t, msg.ReplyMarkup)
}

func TestNotifyAppliedFallsBackToOperatorChat(t *testing.T) {
	api := &fakeSender{}
	b := newBot(api, 999, chatMap{})

	require.NoError(t, b.NotifyApplied(context.Background(), "u2", sampleJob, true))
	require.Len(t, api.sent, 1)
	assert.Equal(t, int64(999), api.sent[0].ChatID)
	assert.Contains(t, api.sent[0].Text, "queued for review")
}

func TestNotifyAppliedWithoutAnyChat(t *testing.T) {
	b := newBot(&fakeSender{}, 0, nil)
	err := b.NotifyApplied(context.Background(), "u1", sampleJob, false)
	assert.ErrorIs(t, err, ErrNoChat)
}

func TestNotifyAppliedSendError(t *testing.T) {
	b := newBot(&fakeSender{err: errors.New("429 too many requests")}, 7, nil)
	err := b.NotifyApplied(context.Background(), "u1", sampleJob, false)
	assert.Error(t, err)
}

func TestNotifyRespectsCancelledContext(t *testing.T) {
	api := &fakeSender{}
	b := newBot(api, 7, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// drain the burst so Wait has to block
	for i := 0; i < 3; i++ {
		b.limiter.Allow()
	}
	err := b.SendStatus(ctx, "hello")
	assert.Error(t, err)
	assert.Empty(t, api.sent)
}
