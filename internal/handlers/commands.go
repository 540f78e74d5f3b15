package handlers

import (
	"context"
	"errors"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/BatmanBruc/bizwatch-bot/internal/messages"
	"github.com/BatmanBruc/bizwatch-bot/internal/referral"
	"github.com/BatmanBruc/bizwatch-bot/types"
)

func (bh *Handlers) HandleCommand(ctx context.Context, api API, msg *models.Message) {
	if msg.From == nil {
		return
	}
	cmd, args := parseCommand(msg.Text)
	userID := msg.From.ID
	chatID := msg.Chat.ID

	if _, err := bh.engine.Register(ctx, profileOf(msg.From)); err != nil {
		bh.log.Error().Err(err).Int64("user_id", userID).Msg("register user failed")
		bh.send(ctx, api, chatID, messages.ErrorDefault())
		return
	}

	switch cmd {
	case "/start":
		payload := ""
		if len(args) > 0 {
			payload = args[0]
		}
		bh.handleStart(ctx, api, chatID, userID, payload)
	case "/status":
		bh.handleStatus(ctx, api, chatID, userID)
	case "/trial":
		bh.handleTrial(ctx, api, chatID, userID)
	case "/bonus":
		bh.handleChannelBonus(ctx, api, chatID, userID)
	case "/referral":
		bh.handleReferral(ctx, api, chatID, userID)
	case "/subscribe":
		bh.sendInvoice(ctx, api, chatID)
	case "/admin", "/grant", "/revoke", "/makeadmin", "/removeadmin", "/user", "/admins":
		bh.HandleAdminCommand(ctx, api, chatID, userID, cmd, args)
	default:
		bh.send(ctx, api, chatID, messages.ErrorUnknownCommand())
	}
}

func (bh *Handlers) handleStart(ctx context.Context, api API, chatID, userID int64, payload string) {
	if granted, err := bh.engine.EnsureAdminForever(ctx, userID); err != nil {
		bh.log.Warn().Err(err).Int64("user_id", userID).Msg("ensure admin subscription failed")
	} else if granted {
		bh.log.Info().Int64("user_id", userID).Msg("admin subscription granted")
	}
	if payload != "" {
		bh.attributeReferral(ctx, userID, payload)
	}
	bh.send(ctx, api, chatID, messages.StartWelcome(bh.engine.CheckAccess(ctx, userID)))
}

func (bh *Handlers) attributeReferral(ctx context.Context, userID int64, payload string) {
	referrerID, err := bh.ledger.Referrer(ctx, payload)
	if err != nil {
		bh.log.Debug().Err(err).Str("payload", payload).Msg("unknown referral payload")
		return
	}
	out, err := bh.ledger.Attribute(ctx, types.ReferralStart{NewUserID: userID, ReferrerID: referrerID})
	switch {
	case errors.Is(err, types.ErrAlreadyReferred), errors.Is(err, types.ErrSelfReferral):
		return
	case err != nil:
		bh.log.Error().Err(err).Int64("user_id", userID).Int64("referrer_id", referrerID).Msg("referral attribution failed")
		return
	}
	if out.Bonus == nil || bh.notifier == nil {
		return
	}
	if _, err := bh.notifier.NotifyReferralBonus(ctx, *out.Bonus); err != nil {
		bh.log.Warn().Err(err).Int64("referrer_id", referrerID).Msg("referral bonus notification failed")
	}
}

func (bh *Handlers) handleStatus(ctx context.Context, api API, chatID, userID int64) {
	hasAccess := bh.engine.CheckAccess(ctx, userID)
	ent, err := bh.engine.Get(ctx, userID)
	if err != nil && !errors.Is(err, types.ErrNotFound) {
		bh.log.Error().Err(err).Int64("user_id", userID).Msg("load status failed")
		bh.send(ctx, api, chatID, messages.ErrorDefault())
		return
	}
	bh.send(ctx, api, chatID, messages.Status(ent, hasAccess))
}

func (bh *Handlers) handleTrial(ctx context.Context, api API, chatID, userID int64) {
	g, err := bh.engine.Claim(ctx, userID, types.BonusTrial)
	switch {
	case errors.Is(err, types.ErrBonusClaimed):
		bh.send(ctx, api, chatID, messages.TrialAlreadyUsed())
	case err != nil:
		bh.log.Error().Err(err).Int64("user_id", userID).Msg("trial claim failed")
		bh.send(ctx, api, chatID, messages.ErrorDefault())
	default:
		bh.send(ctx, api, chatID, messages.BonusGranted(g))
	}
}

func (bh *Handlers) handleChannelBonus(ctx context.Context, api API, chatID, userID int64) {
	channel := bh.cfg.BonusChannel
	if channel == "" {
		bh.send(ctx, api, chatID, messages.ChannelBonusUnavailable())
		return
	}
	if claimed, err := bh.engine.HasClaimed(ctx, userID, types.BonusChannel); err == nil && claimed {
		bh.send(ctx, api, chatID, messages.ChannelBonusAlreadyClaimed())
		return
	}
	member, err := api.GetChatMember(ctx, &bot.GetChatMemberParams{ChatID: channel, UserID: userID})
	if err != nil {
		bh.log.Warn().Err(err).Str("channel", channel).Int64("user_id", userID).Msg("channel membership check failed")
		bh.send(ctx, api, chatID, messages.ChannelBonusUnavailable())
		return
	}

	g, err := bh.engine.ClaimChannelBonus(ctx, types.ChannelBonusCheck{UserID: userID, Subscribed: isChannelMember(member)})
	switch {
	case errors.Is(err, types.ErrNotSubscribed):
		bh.send(ctx, api, chatID, messages.ChannelBonusNotSubscribed(channel))
	case errors.Is(err, types.ErrBonusClaimed):
		bh.send(ctx, api, chatID, messages.ChannelBonusAlreadyClaimed())
	case err != nil:
		bh.log.Error().Err(err).Int64("user_id", userID).Msg("channel bonus claim failed")
		bh.send(ctx, api, chatID, messages.ErrorDefault())
	default:
		bh.send(ctx, api, chatID, messages.BonusGranted(g))
	}
}

func (bh *Handlers) handleReferral(ctx context.Context, api API, chatID, userID int64) {
	code, err := bh.ledger.Link(ctx, userID)
	if err != nil {
		bh.log.Error().Err(err).Int64("user_id", userID).Msg("referral link failed")
		bh.send(ctx, api, chatID, messages.ErrorDefault())
		return
	}
	ent, err := bh.engine.Get(ctx, userID)
	if err != nil {
		bh.send(ctx, api, chatID, messages.ErrorDefault())
		return
	}
	next, days, ok := referral.Progress(ent.ReferralCount)
	link := referral.DeepLink(bh.botUsername, code)
	bh.send(ctx, api, chatID, messages.ReferralInfo(link, ent.ReferralCount, next, days, ok))
}
