package notifier

import (
	"context"
	"fmt"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/BatmanBruc/bizwatch-bot/internal/messages"
	"github.com/BatmanBruc/bizwatch-bot/types"
)

// MediaCallbackPrefix starts the callback data of "show media" buttons.
const MediaCallbackPrefix = "media_"

type MessageSender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
}

// Telegram delivers owner notifications as HTML chat messages.
type Telegram struct {
	sender MessageSender
}

func New(sender MessageSender) *Telegram {
	return &Telegram{sender: sender}
}

func (t *Telegram) NotifyEdit(ctx context.Context, n types.EditNotification) (int, error) {
	return t.send(ctx, n.OwnerID, messages.EditNotification(n), nil)
}

func (t *Telegram) NotifyDelete(ctx context.Context, n types.DeleteNotification) (int, error) {
	var markup models.ReplyMarkup
	if n.Kind.HasMedia() && n.MediaFileID != "" {
		markup = &models.InlineKeyboardMarkup{InlineKeyboard: [][]models.InlineKeyboardButton{{
			{Text: messages.ShowMediaButton(n.Kind), CallbackData: fmt.Sprintf("%s%d", MediaCallbackPrefix, n.MessageID)},
		}}}
	}
	return t.send(ctx, n.OwnerID, messages.DeleteNotification(n), markup)
}

func (t *Telegram) NotifyReferralBonus(ctx context.Context, g types.BonusGranted) (int, error) {
	return t.send(ctx, g.UserID, messages.ReferralBonus(&g), nil)
}

func (t *Telegram) send(ctx context.Context, chatID int64, text string, markup models.ReplyMarkup) (int, error) {
	msg, err := t.sender.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:      chatID,
		Text:        text,
		ParseMode:   messages.ParseModeHTML,
		ReplyMarkup: markup,
	})
	if err != nil {
		return 0, err
	}
	if msg == nil {
		return 0, nil
	}
	return msg.ID, nil
}
