package handlers

import (
	"context"
	"errors"

	"github.com/BatmanBruc/bizwatch-bot/internal/messages"
	"github.com/BatmanBruc/bizwatch-bot/types"
)

// HandleAdminCommand serves admin-only commands. Non-admins see the same
// reply as for an unknown command.
func (bh *Handlers) HandleAdminCommand(ctx context.Context, api API, chatID, userID int64, cmd string, args []string) {
	admin, err := bh.engine.IsAdmin(ctx, userID)
	if err != nil {
		bh.log.Error().Err(err).Int64("user_id", userID).Msg("admin check failed")
	}
	if !admin {
		bh.send(ctx, api, chatID, messages.ErrorUnknownCommand())
		return
	}

	switch cmd {
	case "/admin":
		bh.send(ctx, api, chatID, messages.AdminUsage())
	case "/grant":
		target, days, ok := parseGrantArgs(args)
		if !ok {
			bh.send(ctx, api, chatID, messages.AdminUsage())
			return
		}
		ent, err := bh.engine.Activate(ctx, target, days, types.TierAdmin)
		if err != nil {
			bh.replyAdminError(ctx, api, chatID, err)
			return
		}
		bh.log.Info().Int64("admin_id", userID).Int64("user_id", target).Int("days", days).Msg("subscription granted by admin")
		bh.send(ctx, api, chatID, messages.AdminGranted(target, ent))
	case "/revoke":
		target, ok := firstUserID(args)
		if !ok {
			bh.send(ctx, api, chatID, messages.AdminUsage())
			return
		}
		if err := bh.engine.Revoke(ctx, target); err != nil {
			bh.replyAdminError(ctx, api, chatID, err)
			return
		}
		bh.send(ctx, api, chatID, messages.AdminRevoked(target))
	case "/makeadmin", "/removeadmin":
		target, ok := firstUserID(args)
		if !ok {
			bh.send(ctx, api, chatID, messages.AdminUsage())
			return
		}
		makeAdmin := cmd == "/makeadmin"
		if makeAdmin {
			err = bh.engine.MakeAdmin(ctx, target)
		} else {
			err = bh.engine.RemoveAdmin(ctx, target)
		}
		if err != nil {
			bh.replyAdminError(ctx, api, chatID, err)
			return
		}
		if makeAdmin {
			if _, err := bh.engine.EnsureAdminForever(ctx, target); err != nil {
				bh.log.Warn().Err(err).Int64("user_id", target).Msg("ensure admin subscription failed")
			}
		}
		bh.send(ctx, api, chatID, messages.AdminRoleChanged(target, makeAdmin))
	case "/user":
		target, ok := firstUserID(args)
		if !ok {
			bh.send(ctx, api, chatID, messages.AdminUsage())
			return
		}
		ent, err := bh.engine.Get(ctx, target)
		if err != nil {
			bh.replyAdminError(ctx, api, chatID, err)
			return
		}
		bh.send(ctx, api, chatID, messages.UserInfo(ent, bh.engine.IsMainAdmin(target)))
	case "/admins":
		admins, err := bh.engine.ListAdmins(ctx)
		if err != nil {
			bh.replyAdminError(ctx, api, chatID, err)
			return
		}
		bh.send(ctx, api, chatID, messages.AdminList(admins, bh.engine.MainAdminID()))
	}
}

func (bh *Handlers) replyAdminError(ctx context.Context, api API, chatID int64, err error) {
	switch {
	case errors.Is(err, types.ErrNotFound):
		bh.send(ctx, api, chatID, messages.UserNotFound())
	case errors.Is(err, types.ErrMainAdminProtected):
		bh.send(ctx, api, chatID, messages.AdminMainProtected())
	case errors.Is(err, types.ErrInvalidDuration):
		bh.send(ctx, api, chatID, messages.AdminUsage())
	default:
		bh.log.Error().Err(err).Msg("admin command failed")
		bh.send(ctx, api, chatID, messages.ErrorDefault())
	}
}
