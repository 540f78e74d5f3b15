package middleware

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/rs/zerolog"

	"github.com/BatmanBruc/bizwatch-bot/internal/contextkeys"
	"github.com/BatmanBruc/bizwatch-bot/types"
)

type ConnectionLookup interface {
	GetBusinessConnection(ctx context.Context, params *bot.GetBusinessConnectionParams) (*models.BusinessConnection, error)
}

// Resolver maps business connection ids to owners, cache first.
type Resolver struct {
	cache types.ConnectionCache
	log   zerolog.Logger
}

func NewResolver(cache types.ConnectionCache, log zerolog.Logger) *Resolver {
	return &Resolver{cache: cache, log: log}
}

func (r *Resolver) Resolve(ctx context.Context, lookup ConnectionLookup, connectionID string) (int64, error) {
	owner, ok, err := r.cache.GetOwner(ctx, connectionID)
	if err != nil {
		r.log.Warn().Err(err).Str("connection_id", connectionID).Msg("connection cache read failed")
	}
	if ok {
		return owner, nil
	}
	conn, err := lookup.GetBusinessConnection(ctx, &bot.GetBusinessConnectionParams{BusinessConnectionID: connectionID})
	if err != nil {
		return 0, fmt.Errorf("get business connection %s: %w", connectionID, err)
	}
	if conn == nil || conn.UserChatID == 0 {
		return 0, fmt.Errorf("business connection %s has no owner", connectionID)
	}
	if err := r.cache.SetOwner(ctx, connectionID, conn.UserChatID); err != nil {
		r.log.Warn().Err(err).Str("connection_id", connectionID).Msg("connection cache write failed")
	}
	return conn.UserChatID, nil
}

func (r *Resolver) Remember(ctx context.Context, conn *models.BusinessConnection) error {
	if !conn.IsEnabled {
		return r.cache.Forget(ctx, conn.ID)
	}
	return r.cache.SetOwner(ctx, conn.ID, conn.UserChatID)
}

type Middlewares struct {
	resolver *Resolver
	log      zerolog.Logger
}

func New(resolver *Resolver, log zerolog.Logger) *Middlewares {
	return &Middlewares{
		resolver: resolver,
		log:      log.With().Str("component", "middleware").Logger(),
	}
}

// Recover keeps one bad update from taking the process down.
func (m *Middlewares) Recover(next bot.HandlerFunc) bot.HandlerFunc {
	return func(ctx context.Context, b *bot.Bot, update *models.Update) {
		defer func() {
			if r := recover(); r != nil {
				m.log.Error().Interface("panic", r).Int64("update_id", update.ID).
					Str("stack", string(debug.Stack())).Msg("handler panicked")
			}
		}()
		next(ctx, b, update)
	}
}

// BusinessOwner puts the owner of the update's business connection into ctx.
// Business updates whose owner cannot be resolved are dropped.
func (m *Middlewares) BusinessOwner(next bot.HandlerFunc) bot.HandlerFunc {
	return func(ctx context.Context, b *bot.Bot, update *models.Update) {
		connID := ConnectionID(update)
		if connID == "" {
			next(ctx, b, update)
			return
		}
		owner, err := m.resolver.Resolve(ctx, b, connID)
		if err != nil {
			m.log.Error().Err(err).Str("connection_id", connID).Msg("cannot resolve business owner")
			return
		}
		ctx = contextkeys.WithConnectionID(ctx, connID)
		ctx = contextkeys.WithOwnerID(ctx, owner)
		next(ctx, b, update)
	}
}

func ConnectionID(update *models.Update) string {
	switch {
	case update.BusinessMessage != nil:
		return update.BusinessMessage.BusinessConnectionID
	case update.EditedBusinessMessage != nil:
		return update.EditedBusinessMessage.BusinessConnectionID
	case update.DeletedBusinessMessages != nil:
		return update.DeletedBusinessMessages.BusinessConnectionID
	}
	return ""
}

func IsBusinessUpdate(update *models.Update) bool {
	return update.BusinessConnection != nil || ConnectionID(update) != ""
}

func SenderFrom(u *models.User) types.Sender {
	if u == nil {
		return types.Sender{}
	}
	return types.Sender{
		ID:       u.ID,
		Name:     strings.TrimSpace(u.FirstName + " " + u.LastName),
		Username: u.Username,
	}
}

// Classify reports the payload kind of a business message with its text and
// media reference. Unsupported payloads return ok=false.
func Classify(msg *models.Message) (kind types.PayloadKind, text string, fileID string, ok bool) {
	switch {
	case len(msg.Photo) > 0:
		best := msg.Photo[0]
		for i := 1; i < len(msg.Photo); i++ {
			if msg.Photo[i].FileSize > best.FileSize {
				best = msg.Photo[i]
			}
		}
		return types.KindPhoto, msg.Caption, best.FileID, true
	case msg.Voice != nil:
		text := msg.Caption
		if strings.TrimSpace(text) == "" {
			text = VoiceDescription(msg.Voice.Duration)
		}
		return types.KindVoice, text, msg.Voice.FileID, true
	case msg.VideoNote != nil:
		return types.KindVideoNote, "", msg.VideoNote.FileID, true
	case msg.Video != nil:
		return types.KindVideo, msg.Caption, msg.Video.FileID, true
	case msg.Text != "":
		return types.KindText, msg.Text, "", true
	}
	return "", "", "", false
}

// NewMessageEvent builds the inbound event for a business message.
func NewMessageEvent(ownerID int64, msg *models.Message) (types.NewMessage, bool) {
	kind, text, fileID, ok := Classify(msg)
	if !ok {
		return types.NewMessage{}, false
	}
	return types.NewMessage{
		OwnerID:     ownerID,
		MessageID:   int64(msg.ID),
		Sender:      SenderFrom(msg.From),
		Kind:        kind,
		Text:        text,
		MediaFileID: fileID,
	}, true
}

// VoiceDescription stands in for the text of a voice message without a caption.
func VoiceDescription(seconds int) string {
	return fmt.Sprintf("🎤 Голосовое сообщение (%d сек)", seconds)
}

// EditedText is the text an edited message carries now, derived the same way
// as for a new message.
func EditedText(msg *models.Message) string {
	if _, text, _, ok := Classify(msg); ok {
		return text
	}
	return msg.Caption
}
