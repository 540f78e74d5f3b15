package handlers

import (
	"context"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/BatmanBruc/bizwatch-bot/internal/messages"
	"github.com/BatmanBruc/bizwatch-bot/types"
)

const currencyStars = "XTR"

func (bh *Handlers) sendInvoice(ctx context.Context, api API, chatID int64) {
	_, err := api.SendInvoice(ctx, &bot.SendInvoiceParams{
		ChatID:      chatID,
		Title:       messages.InvoiceTitle(),
		Description: messages.InvoiceDescription(),
		Payload:     bh.cfg.InvoicePayload,
		Currency:    currencyStars,
		Prices:      []models.LabeledPrice{{Label: messages.InvoiceLabel(), Amount: bh.cfg.PriceStars}},
	})
	if err != nil {
		bh.log.Error().Err(err).Int64("chat_id", chatID).Msg("send invoice failed")
		bh.send(ctx, api, chatID, messages.ErrorDefault())
	}
}

func (bh *Handlers) HandlePreCheckout(ctx context.Context, api API, q *models.PreCheckoutQuery) {
	ok := strings.TrimSpace(q.InvoicePayload) == bh.cfg.InvoicePayload
	params := &bot.AnswerPreCheckoutQueryParams{
		PreCheckoutQueryID: q.ID,
		OK:                 ok,
	}
	if !ok {
		params.ErrorMessage = messages.InvalidPayment()
	}
	if _, err := api.AnswerPreCheckoutQuery(ctx, params); err != nil {
		bh.log.Warn().Err(err).Str("query_id", q.ID).Msg("answer pre-checkout failed")
	}
}

func (bh *Handlers) HandleSuccessfulPayment(ctx context.Context, api API, msg *models.Message) {
	p := msg.SuccessfulPayment
	if msg.From == nil || strings.TrimSpace(p.InvoicePayload) != bh.cfg.InvoicePayload {
		return
	}
	userID := msg.From.ID
	chatID := msg.Chat.ID
	if chatID == 0 {
		chatID = userID
	}
	if _, err := bh.engine.Register(ctx, profileOf(msg.From)); err != nil {
		bh.log.Error().Err(err).Int64("user_id", userID).Msg("register payer failed")
	}

	ent, applied, err := bh.engine.CompletePayment(ctx, types.PaymentCompleted{
		UserID: userID,
		Payment: types.Payment{
			Provider:              "stars",
			Currency:              strings.TrimSpace(p.Currency),
			TotalAmount:           int64(p.TotalAmount),
			InvoicePayload:        p.InvoicePayload,
			TelegramPaymentCharge: strings.TrimSpace(p.TelegramPaymentChargeID),
			ProviderPaymentCharge: strings.TrimSpace(p.ProviderPaymentChargeID),
			CreatedAt:             bh.engine.Now(),
		},
	})
	switch {
	case err != nil:
		bh.log.Error().Err(err).Int64("user_id", userID).Str("charge", p.TelegramPaymentChargeID).Msg("payment activation failed")
		bh.send(ctx, api, chatID, messages.PaymentActivationFailed())
	case !applied:
		bh.send(ctx, api, chatID, messages.PaymentAlreadyProcessed())
	default:
		until := bh.engine.Now()
		if ent != nil && ent.SubscriptionExpires != nil {
			until = *ent.SubscriptionExpires
		}
		bh.send(ctx, api, chatID, messages.PaymentSucceeded(until))
	}
}
