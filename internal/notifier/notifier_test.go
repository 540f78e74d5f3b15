package notifier

import (
	"context"
	"errors"
	"testing"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/stretchr/testify/require"

	"github.com/BatmanBruc/bizwatch-bot/internal/messages"
	"github.com/BatmanBruc/bizwatch-bot/types"
)

type fakeSender struct {
	sent []*bot.SendMessageParams
	err  error
}

func (f *fakeSender) SendMessage(_ context.Context, params *bot.SendMessageParams) (*models.Message, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.sent = append(f.sent, params)
	return &models.Message{ID: 300 + len(f.sent)}, nil
}

func TestNotifyEdit(t *testing.T) {
	s := &fakeSender{}
	id, err := New(s).NotifyEdit(context.Background(), types.EditNotification{OwnerID: 9, PreviousText: "a", NewText: "b"})
	require.NoError(t, err)
	require.Equal(t, 301, id)
	require.Len(t, s.sent, 1)
	require.Equal(t, int64(9), s.sent[0].ChatID)
	require.Equal(t, messages.ParseModeHTML, string(s.sent[0].ParseMode))
	require.Nil(t, s.sent[0].ReplyMarkup)
}

func TestNotifyDeleteMediaButton(t *testing.T) {
	s := &fakeSender{}
	_, err := New(s).NotifyDelete(context.Background(), types.DeleteNotification{
		OwnerID: 9, MessageID: 44, Kind: types.KindPhoto, MediaFileID: "file",
	})
	require.NoError(t, err)
	markup, ok := s.sent[0].ReplyMarkup.(*models.InlineKeyboardMarkup)
	require.True(t, ok)
	require.Equal(t, "media_44", markup.InlineKeyboard[0][0].CallbackData)

	_, err = New(s).NotifyDelete(context.Background(), types.DeleteNotification{OwnerID: 9, MessageID: 45, Kind: types.KindText})
	require.NoError(t, err)
	require.Nil(t, s.sent[1].ReplyMarkup)
}

func TestNotifyPropagatesErrors(t *testing.T) {
	s := &fakeSender{err: errors.New("forbidden")}
	_, err := New(s).NotifyReferralBonus(context.Background(), types.BonusGranted{UserID: 1, Days: 7})
	require.Error(t, err)
}
