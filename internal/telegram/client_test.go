package telegram

import (
	"context"
	"errors"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAPI struct {
	failures int
	sent     []tgbotapi.MessageConfig
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	msg, _ := c.(tgbotapi.MessageConfig)
	f.sent = append(f.sent, msg)
	if f.failures > 0 {
		f.failures--
		return tgbotapi.Message{}, errors.New("telegram unavailable")
	}
	return tgbotapi.Message{MessageID: len(f.sent)}, nil
}

func TestEscapeMarkdownV2(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Hello World", "Hello World"},
		{"Non-Farm Payrolls", "Non\\-Farm Payrolls"},
		{"Data released: CPI m/m.", "Data released: CPI m/m\\."},
		{"(approx)", "\\(approx\\)"},
		{"end!", "end\\!"},
		{"a\\b", "a\\\\b"},
		{"🟢 Volatility window closed.", "🟢 Volatility window closed\\."},
		{"", ""},
		{"_*[]()~`>#+-=|{}.!", "\\_\\*\\[\\]\\(\\)\\~\\`\\>\\#\\+\\-\\=\\|\\{\\}\\.\\!"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, escapeMarkdownV2(tt.input))
		})
	}
}

func TestNewClient_InvalidChatID(t *testing.T) {
	_, err := NewClient("", "not-a-number", 3, time.Second)
	assert.Error(t, err)
}

func TestSend(t *testing.T) {
	api := &fakeAPI{}
	c := newClient(api, 42, 3, time.Millisecond)

	require.NoError(t, c.Send(context.Background(), "Data released: NFP."))

	require.Len(t, api.sent, 1)
	assert.Equal(t, int64(42), api.sent[0].ChatID)
	assert.Equal(t, "Data released: NFP\\.", api.sent[0].Text)
	assert.Equal(t, tgbotapi.ModeMarkdownV2, api.sent[0].ParseMode)
}

func TestSend_RetriesThenSucceeds(t *testing.T) {
	api := &fakeAPI{failures: 2}
	c := newClient(api, 42, 3, time.Millisecond)

	require.NoError(t, c.Send(context.Background(), "hello"))
	assert.Len(t, api.sent, 3)
}

func TestSend_GivesUp(t *testing.T) {
	api := &fakeAPI{failures: 10}
	c := newClient(api, 42, 2, time.Millisecond)

	err := c.Send(context.Background(), "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed after 2 retries")
	assert.Len(t, api.sent, 2)
}

func TestSend_StopsOnCancel(t *testing.T) {
	api := &fakeAPI{failures: 10}
	c := newClient(api, 42, 5, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := c.Send(ctx, "hello")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, api.sent, 1)
}
