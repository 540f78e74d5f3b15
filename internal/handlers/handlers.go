package handlers

import (
	"context"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/rs/zerolog"

	"github.com/BatmanBruc/bizwatch-bot/internal/config"
	"github.com/BatmanBruc/bizwatch-bot/internal/detector"
	"github.com/BatmanBruc/bizwatch-bot/internal/messages"
	"github.com/BatmanBruc/bizwatch-bot/internal/middleware"
	"github.com/BatmanBruc/bizwatch-bot/internal/referral"
	"github.com/BatmanBruc/bizwatch-bot/internal/subscription"
	"github.com/BatmanBruc/bizwatch-bot/types"
)

// API is the part of the Bot API the handlers call. *bot.Bot implements it.
type API interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
	SendInvoice(ctx context.Context, params *bot.SendInvoiceParams) (*models.Message, error)
	AnswerPreCheckoutQuery(ctx context.Context, params *bot.AnswerPreCheckoutQueryParams) (bool, error)
	AnswerCallbackQuery(ctx context.Context, params *bot.AnswerCallbackQueryParams) (bool, error)
	GetChatMember(ctx context.Context, params *bot.GetChatMemberParams) (*models.ChatMember, error)
	SendPhoto(ctx context.Context, params *bot.SendPhotoParams) (*models.Message, error)
	SendVoice(ctx context.Context, params *bot.SendVoiceParams) (*models.Message, error)
	SendVideo(ctx context.Context, params *bot.SendVideoParams) (*models.Message, error)
	SendVideoNote(ctx context.Context, params *bot.SendVideoNoteParams) (*models.Message, error)
}

type BonusNotifier interface {
	NotifyReferralBonus(ctx context.Context, g types.BonusGranted) (int, error)
}

type Deps struct {
	Engine      *subscription.Engine
	Ledger      *referral.Ledger
	Detector    *detector.Detector
	Messages    types.MessageStore
	Resolver    *middleware.Resolver
	Notifier    BonusNotifier
	Config      config.SubscriptionConfig
	BotUsername string
}

type Handlers struct {
	engine      *subscription.Engine
	ledger      *referral.Ledger
	detector    *detector.Detector
	messages    types.MessageStore
	resolver    *middleware.Resolver
	notifier    BonusNotifier
	cfg         config.SubscriptionConfig
	botUsername string
	log         zerolog.Logger
}

func NewHandlers(deps Deps, log zerolog.Logger) *Handlers {
	return &Handlers{
		engine:      deps.Engine,
		ledger:      deps.Ledger,
		detector:    deps.Detector,
		messages:    deps.Messages,
		resolver:    deps.Resolver,
		notifier:    deps.Notifier,
		cfg:         deps.Config,
		botUsername: deps.BotUsername,
		log:         log.With().Str("component", "handlers").Logger(),
	}
}

func (bh *Handlers) MainHandler(ctx context.Context, b *bot.Bot, update *models.Update) {
	bh.Dispatch(ctx, b, update)
}

// Dispatch routes one update to its handler.
func (bh *Handlers) Dispatch(ctx context.Context, api API, update *models.Update) {
	switch {
	case update.BusinessConnection != nil:
		bh.HandleBusinessConnection(ctx, api, update.BusinessConnection)
	case update.BusinessMessage != nil:
		bh.HandleBusinessMessage(ctx, update.BusinessMessage)
	case update.EditedBusinessMessage != nil:
		bh.HandleEditedBusinessMessage(ctx, update.EditedBusinessMessage)
	case update.DeletedBusinessMessages != nil:
		bh.HandleDeletedBusinessMessages(ctx, update.DeletedBusinessMessages)
	case update.PreCheckoutQuery != nil:
		bh.HandlePreCheckout(ctx, api, update.PreCheckoutQuery)
	case update.CallbackQuery != nil:
		bh.HandleCallback(ctx, api, update.CallbackQuery)
	case update.Message != nil && update.Message.SuccessfulPayment != nil:
		bh.HandleSuccessfulPayment(ctx, api, update.Message)
	case update.Message != nil && strings.HasPrefix(strings.TrimSpace(update.Message.Text), "/"):
		bh.HandleCommand(ctx, api, update.Message)
	}
}

func (bh *Handlers) send(ctx context.Context, api API, chatID int64, text string) {
	if _, err := api.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    chatID,
		Text:      text,
		ParseMode: messages.ParseModeHTML,
	}); err != nil {
		bh.log.Warn().Err(err).Int64("chat_id", chatID).Msg("send message failed")
	}
}

func profileOf(u *models.User) types.Profile {
	return types.Profile{
		UserID:    u.ID,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Username:  u.Username,
	}
}
