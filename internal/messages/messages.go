package messages

import (
	"fmt"
	"strings"
	"time"

	"github.com/BatmanBruc/bizwatch-bot/types"
)

const ParseModeHTML = "HTML"

const dateLayout = "02.01.2006 15:04"

func Escape(s string) string {
	replacer := strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		"\"", "&quot;",
		"'", "&#39;",
	)
	return replacer.Replace(strings.TrimSpace(s))
}

func FormatDate(t time.Time) string {
	if t.IsZero() {
		return "—"
	}
	return t.UTC().Format(dateLayout)
}

func SenderLine(s types.Sender) string {
	name := strings.TrimSpace(s.Name)
	if name == "" {
		name = "Без имени"
	}
	line := Escape(name)
	if u := strings.TrimPrefix(strings.TrimSpace(s.Username), "@"); u != "" {
		line = fmt.Sprintf("<a href=\"https://t.me/%s\">%s</a>", Escape(u), line)
	}
	return fmt.Sprintf("👤 <b>Пользователь:</b> %s\n🆔 <b>ID:</b> <code>%d</code>", line, s.ID)
}

func quote(text, empty string) string {
	if strings.TrimSpace(text) == "" {
		return "<blockquote>" + empty + "</blockquote>"
	}
	return "<blockquote>" + Escape(text) + "</blockquote>"
}

func kindTitle(k types.PayloadKind) string {
	switch k {
	case types.KindPhoto:
		return "📸 <b>Тип:</b> Фотография"
	case types.KindVoice:
		return "🎤 <b>Тип:</b> Голосовое сообщение"
	case types.KindVideoNote:
		return "⭕ <b>Тип:</b> Видеосообщение"
	case types.KindVideo:
		return "🎬 <b>Тип:</b> Видео"
	}
	return ""
}

func EditNotification(n types.EditNotification) string {
	var sb strings.Builder
	sb.WriteString("✏️ <b>Сообщение отредактировано</b>\n\n")
	sb.WriteString(SenderLine(n.Sender))
	sb.WriteString("\n📅 <b>Отправлено:</b> " + FormatDate(n.SentAt))
	sb.WriteString("\n✏️ <b>Отредактировано:</b> " + FormatDate(n.EditedAt))
	if n.Kind.HasMedia() {
		sb.WriteString("\n\n" + kindTitle(n.Kind))
		sb.WriteString("\n\n📝 <b>Подпись была:</b>\n" + quote(n.PreviousText, "Без подписи"))
		sb.WriteString("\n\n📝 <b>Подпись стала:</b>\n" + quote(n.NewText, "Без подписи"))
		return sb.String()
	}
	sb.WriteString("\n\n📝 <b>Было:</b>\n" + quote(n.PreviousText, "Без текста"))
	sb.WriteString("\n\n📝 <b>Стало:</b>\n" + quote(n.NewText, "Без текста"))
	return sb.String()
}

func DeleteNotification(n types.DeleteNotification) string {
	var sb strings.Builder
	if n.Kind.HasMedia() {
		sb.WriteString("🗑️ <b>Удалено сообщение с медиа</b>\n\n")
	} else {
		sb.WriteString("🗑️ <b>Удалено сообщение</b>\n\n")
	}
	sb.WriteString(SenderLine(n.Sender))
	sb.WriteString("\n📅 <b>Отправлено:</b> " + FormatDate(n.SentAt))
	sb.WriteString("\n🗑️ <b>Удалено:</b> " + FormatDate(n.DeletedAt))
	if n.Kind.HasMedia() {
		sb.WriteString("\n\n" + kindTitle(n.Kind))
		if strings.TrimSpace(n.Text) != "" {
			sb.WriteString("\n📝 <b>Подпись:</b> " + Escape(n.Text))
		}
		return sb.String()
	}
	sb.WriteString("\n\n📝 <b>Текст сообщения:</b>\n" + quote(n.Text, "Без текста"))
	return sb.String()
}

func ShowMediaButton(k types.PayloadKind) string {
	switch k {
	case types.KindVoice:
		return "🎤 Прослушать голосовое"
	case types.KindVideoNote, types.KindVideo:
		return "🎬 Посмотреть видео"
	}
	return "🖼️ Посмотреть фото"
}

func MediaUnavailable() string {
	return "🚫 <b>Медиа недоступно</b>"
}

func ErrorDefault() string {
	return "🚫 <b>Ошибка</b>\nПопробуйте ещё раз."
}

func ErrorUnknownCommand() string {
	return "❓ <b>Команда не найдена</b>"
}

func StartWelcome(hasAccess bool) string {
	msg := "👋 <b>Привет!</b>\nЯ слежу за вашими бизнес-чатами и сообщаю, когда собеседник " +
		"редактирует или удаляет сообщения.\n\n" +
		"⚙️ Подключите бота: Настройки → Telegram для бизнеса → Чат-боты."
	if !hasAccess {
		msg += "\n\n" + Paywall()
	}
	return msg
}

func Paywall() string {
	return "🔒 <b>Нет активной подписки</b>\n" +
		"/trial — пробный период на 3 дня\n" +
		"/bonus — 7 дней за подписку на канал\n" +
		"/subscribe — оформить подписку\n" +
		"/referral — пригласить друзей"
}

func Status(e *types.Entitlement, hasAccess bool) string {
	if e == nil {
		return Paywall()
	}
	if !hasAccess {
		return "📊 <b>Статус</b>\n\n" + Paywall()
	}
	expires := "—"
	if e.SubscriptionExpires != nil {
		expires = FormatDate(*e.SubscriptionExpires)
	}
	if e.SubscriptionTier == types.TierAdminForever {
		expires = "навсегда"
	}
	return fmt.Sprintf("📊 <b>Статус</b>\n\n✅ <b>Подписка активна</b>\n🏷️ <b>Тариф:</b> %s\n⏳ <b>До:</b> %s",
		Escape(e.SubscriptionTier.Title()), expires)
}

func BonusGranted(g *types.BonusGranted) string {
	if g == nil {
		return ErrorDefault()
	}
	if g.Eternal() {
		return fmt.Sprintf("🎉 <b>Бонус получен!</b>\n🏷️ %s\n⏳ Подписка теперь бессрочная.", Escape(g.Tier.Title()))
	}
	return fmt.Sprintf("🎉 <b>Бонус получен!</b>\n🏷️ %s: +%d дн.\n⏳ <b>До:</b> %s",
		Escape(g.Tier.Title()), g.Days, FormatDate(g.NewExpiry))
}

func ReferralBonus(g *types.BonusGranted) string {
	return fmt.Sprintf("👥 <b>Вы пригласили %d друзей!</b>\n\n", g.ReferralCount) + BonusGranted(g)
}

func TrialAlreadyUsed() string {
	return "⚠️ <b>Пробный период уже использован</b>\n/subscribe — оформить подписку"
}

func ChannelBonusAlreadyClaimed() string {
	return "⚠️ <b>Бонус за подписку уже получен</b>"
}

func ChannelBonusNotSubscribed(channel string) string {
	return fmt.Sprintf("📢 <b>Подпишитесь на канал</b> %s\nи снова отправьте /bonus.", Escape(channel))
}

func ChannelBonusUnavailable() string {
	return "🚫 <b>Бонус временно недоступен</b>"
}

func ReferralInfo(link string, count int, next int, nextDays int, hasNext bool) string {
	var sb strings.Builder
	sb.WriteString("👥 <b>Реферальная программа</b>\n\n")
	sb.WriteString("🔗 <b>Ваша ссылка:</b>\n<code>" + Escape(link) + "</code>\n\n")
	sb.WriteString(fmt.Sprintf("📈 <b>Приглашено:</b> %d\n\n", count))
	sb.WriteString("🎁 3 друга — 7 дней\n🎁 5 друзей — 30 дней\n🎁 10 друзей — 180 дней\n🎁 30 друзей — навсегда")
	if hasNext {
		if nextDays < 0 {
			sb.WriteString(fmt.Sprintf("\n\n➡️ До бессрочной подписки: %d", next-count))
		} else {
			sb.WriteString(fmt.Sprintf("\n\n➡️ До следующего бонуса (%d дн.): %d", nextDays, next-count))
		}
	}
	return sb.String()
}

func InvoiceTitle() string {
	return "Подписка на месяц"
}

func InvoiceDescription() string {
	return "Уведомления об изменённых и удалённых сообщениях в бизнес-чатах на 30 дней"
}

func InvoiceLabel() string {
	return "Подписка (30 дней)"
}

func InvalidPayment() string {
	return "Некорректный платеж"
}

func PaymentSucceeded(until time.Time) string {
	return "✅ <b>Оплата прошла</b>\n⏳ <b>Подписка до:</b> " + FormatDate(until)
}

func PaymentAlreadyProcessed() string {
	return "ℹ️ <b>Платёж уже обработан</b>"
}

func PaymentActivationFailed() string {
	return "⚠️ <b>Оплата получена, но подписку не удалось активировать</b>\n" +
		"Поддержка активирует её вручную в ближайшее время."
}

func BusinessConnected() string {
	return "🤝 <b>Бот подключен</b>\nТеперь я сообщаю об изменённых и удалённых сообщениях."
}

func BusinessDisconnected() string {
	return "👋 <b>Бот отключен</b>"
}

func AdminUsage() string {
	return "🛠️ <b>Команды администратора</b>\n" +
		"/grant &lt;id&gt; &lt;дни|-1&gt;\n" +
		"/revoke &lt;id&gt;\n" +
		"/makeadmin &lt;id&gt;\n" +
		"/removeadmin &lt;id&gt;\n" +
		"/user &lt;id&gt;\n" +
		"/admins"
}

func AdminGranted(userID int64, e *types.Entitlement) string {
	until := "—"
	if e != nil && e.SubscriptionExpires != nil {
		until = FormatDate(*e.SubscriptionExpires)
	}
	return fmt.Sprintf("✅ <b>Подписка выдана</b>\n🆔 <code>%d</code>\n⏳ <b>До:</b> %s", userID, until)
}

func AdminRevoked(userID int64) string {
	return fmt.Sprintf("✅ <b>Подписка отключена</b>\n🆔 <code>%d</code>", userID)
}

func AdminRoleChanged(userID int64, admin bool) string {
	if admin {
		return fmt.Sprintf("✅ <b>Пользователь</b> <code>%d</code> <b>назначен администратором</b>", userID)
	}
	return fmt.Sprintf("✅ <b>Пользователь</b> <code>%d</code> <b>больше не администратор</b>", userID)
}

func AdminMainProtected() string {
	return "❌ Нельзя изменить статус главного администратора."
}

func UserNotFound() string {
	return "❓ <b>Пользователь не найден</b>"
}

func UserInfo(e *types.Entitlement, mainAdmin bool) string {
	role := "Пользователь"
	if e.IsAdmin {
		role = "Администратор"
	}
	if mainAdmin {
		role += " (ГЛАВНЫЙ)"
	}
	expires := "—"
	if e.SubscriptionExpires != nil {
		expires = FormatDate(*e.SubscriptionExpires)
	}
	active := "❌"
	if e.SubscriptionActive {
		active = "✅"
	}
	name := strings.TrimSpace(e.FirstName + " " + e.LastName)
	if e.Username != "" {
		name += " @" + e.Username
	}
	return fmt.Sprintf("👤 <b>%s</b>\n🆔 <code>%d</code>\n👥 <b>Роль:</b> %s\n%s <b>Подписка:</b> %s до %s\n"+
		"🎁 <b>Пробный:</b> %t, <b>канал:</b> %t\n📈 <b>Рефералов:</b> %d\n📅 <b>С нами с:</b> %s",
		Escape(name), e.UserID, role, active, Escape(e.SubscriptionTier.Title()), expires,
		e.TrialUsed, e.ChannelBonusUsed, e.ReferralCount, FormatDate(e.CreatedAt))
}

func AdminList(admins []types.Entitlement, mainAdminID int64) string {
	if len(admins) == 0 {
		return "👥 <b>Администраторов нет</b>"
	}
	var sb strings.Builder
	sb.WriteString("👥 <b>Администраторы</b>\n")
	for i, a := range admins {
		mark := ""
		if a.UserID == mainAdminID {
			mark = " [ГЛАВНЫЙ]"
		}
		sb.WriteString(fmt.Sprintf("\n%d. %s (<code>%d</code>)%s", i+1, Escape(a.FirstName), a.UserID, mark))
	}
	return sb.String()
}
