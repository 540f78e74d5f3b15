package handlers

import (
	"context"
	"strconv"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/BatmanBruc/bizwatch-bot/internal/messages"
	"github.com/BatmanBruc/bizwatch-bot/internal/notifier"
	"github.com/BatmanBruc/bizwatch-bot/types"
)

func (bh *Handlers) HandleCallback(ctx context.Context, api API, q *models.CallbackQuery) {
	data := strings.TrimSpace(q.Data)
	if !strings.HasPrefix(data, notifier.MediaCallbackPrefix) {
		bh.answerCallback(ctx, api, q.ID, "")
		return
	}
	messageID, err := strconv.ParseInt(strings.TrimPrefix(data, notifier.MediaCallbackPrefix), 10, 64)
	if err != nil {
		bh.answerCallback(ctx, api, q.ID, "")
		return
	}

	ownerID := q.From.ID
	msg, err := bh.messages.GetMessage(ctx, ownerID, messageID)
	if err != nil || msg.MediaFileID == "" {
		bh.answerCallback(ctx, api, q.ID, messages.MediaUnavailable())
		return
	}
	if err := bh.sendMedia(ctx, api, ownerID, msg); err != nil {
		bh.log.Warn().Err(err).Int64("owner_id", ownerID).Int64("message_id", messageID).Msg("resend media failed")
		bh.answerCallback(ctx, api, q.ID, messages.MediaUnavailable())
		return
	}
	bh.answerCallback(ctx, api, q.ID, "")
}

func (bh *Handlers) sendMedia(ctx context.Context, api API, chatID int64, msg *types.ShadowMessage) error {
	file := &models.InputFileString{Data: msg.MediaFileID}
	caption := messages.Escape(msg.Text)
	var err error
	switch msg.Kind {
	case types.KindPhoto:
		_, err = api.SendPhoto(ctx, &bot.SendPhotoParams{ChatID: chatID, Photo: file, Caption: caption, ParseMode: messages.ParseModeHTML})
	case types.KindVoice:
		_, err = api.SendVoice(ctx, &bot.SendVoiceParams{ChatID: chatID, Voice: file, Caption: caption, ParseMode: messages.ParseModeHTML})
	case types.KindVideo:
		_, err = api.SendVideo(ctx, &bot.SendVideoParams{ChatID: chatID, Video: file, Caption: caption, ParseMode: messages.ParseModeHTML})
	case types.KindVideoNote:
		_, err = api.SendVideoNote(ctx, &bot.SendVideoNoteParams{ChatID: chatID, VideoNote: file})
	default:
		_, err = api.SendMessage(ctx, &bot.SendMessageParams{ChatID: chatID, Text: caption, ParseMode: messages.ParseModeHTML})
	}
	return err
}

func (bh *Handlers) answerCallback(ctx context.Context, api API, callbackID, text string) {
	_, _ = api.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
		CallbackQueryID: callbackID,
		Text:            text,
	})
}
