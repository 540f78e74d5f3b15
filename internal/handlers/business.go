package handlers

import (
	"context"

	"github.com/go-telegram/bot/models"

	"github.com/BatmanBruc/bizwatch-bot/internal/contextkeys"
	"github.com/BatmanBruc/bizwatch-bot/internal/messages"
	"github.com/BatmanBruc/bizwatch-bot/internal/middleware"
	"github.com/BatmanBruc/bizwatch-bot/types"
)

func (bh *Handlers) HandleBusinessConnection(ctx context.Context, api API, conn *models.BusinessConnection) {
	profile := types.Profile{
		UserID:    conn.UserChatID,
		FirstName: conn.User.FirstName,
		LastName:  conn.User.LastName,
		Username:  conn.User.Username,
	}
	if _, err := bh.engine.Register(ctx, profile); err != nil {
		bh.log.Error().Err(err).Int64("user_id", conn.UserChatID).Msg("register business owner failed")
	}
	if err := bh.resolver.Remember(ctx, conn); err != nil {
		bh.log.Warn().Err(err).Str("connection_id", conn.ID).Msg("cache business connection failed")
	}
	bh.log.Info().Str("connection_id", conn.ID).Int64("owner_id", conn.UserChatID).
		Bool("enabled", conn.IsEnabled).Msg("business connection updated")

	if conn.IsEnabled {
		bh.send(ctx, api, conn.UserChatID, messages.BusinessConnected())
		return
	}
	bh.send(ctx, api, conn.UserChatID, messages.BusinessDisconnected())
}

func (bh *Handlers) HandleBusinessMessage(ctx context.Context, msg *models.Message) {
	owner, ok := contextkeys.GetOwnerID(ctx)
	if !ok {
		return
	}
	ev, ok := middleware.NewMessageEvent(owner, msg)
	if !ok {
		return
	}
	if _, err := bh.detector.OnNewMessage(ctx, ev); err != nil {
		bh.log.Error().Err(err).Int64("owner_id", owner).Int("message_id", msg.ID).Msg("store business message failed")
		return
	}
	if err := bh.engine.Touch(ctx, owner); err != nil {
		bh.log.Warn().Err(err).Int64("owner_id", owner).Msg("touch owner failed")
	}
}

func (bh *Handlers) HandleEditedBusinessMessage(ctx context.Context, msg *models.Message) {
	owner, ok := contextkeys.GetOwnerID(ctx)
	if !ok {
		return
	}
	_, err := bh.detector.OnEdit(ctx, types.MessageEdited{
		OwnerID:   owner,
		MessageID: int64(msg.ID),
		NewText:   middleware.EditedText(msg),
	})
	if err != nil {
		bh.log.Error().Err(err).Int64("owner_id", owner).Int("message_id", msg.ID).Msg("handle edit failed")
	}
}

func (bh *Handlers) HandleDeletedBusinessMessages(ctx context.Context, deleted *models.BusinessMessagesDeleted) {
	owner, ok := contextkeys.GetOwnerID(ctx)
	if !ok {
		return
	}
	ids := make([]int64, 0, len(deleted.MessageIDs))
	for _, id := range deleted.MessageIDs {
		ids = append(ids, int64(id))
	}
	if _, err := bh.detector.OnDelete(ctx, types.MessagesDeleted{OwnerID: owner, MessageIDs: ids}); err != nil {
		bh.log.Error().Err(err).Int64("owner_id", owner).Int("count", len(ids)).Msg("handle delete failed")
	}
}
