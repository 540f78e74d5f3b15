package types

import "strings"

type Tier string

const (
	TierFree          Tier = "free"
	TierMonthly       Tier = "monthly"
	TierAdmin         Tier = "admin"
	TierAdminForever  Tier = "admin_forever"
	TierTrial         Tier = "trial"
	TierReferral      Tier = "referral"
	TierGiftBoomBonus Tier = "giftboom_bonus"
)

var tierTitles = map[Tier]string{
	TierFree:          "Бесплатный",
	TierMonthly:       "Месячная подписка",
	TierAdmin:         "Выдана администратором",
	TierAdminForever:  "Администратор (навсегда)",
	TierTrial:         "Пробный период",
	TierReferral:      "Реферальный бонус",
	TierGiftBoomBonus: "Бонус за подписку на канал",
}

// ParseTier maps a stored label to a Tier. Unknown labels fall back to TierFree.
func ParseTier(s string) (Tier, bool) {
	t := Tier(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := tierTitles[t]; ok {
		return t, true
	}
	return TierFree, false
}

func (t Tier) Valid() bool {
	_, ok := tierTitles[t]
	return ok
}

func (t Tier) Title() string {
	if title, ok := tierTitles[t]; ok {
		return title
	}
	return tierTitles[TierFree]
}

type PayloadKind string

const (
	KindText      PayloadKind = "text"
	KindPhoto     PayloadKind = "photo"
	KindVoice     PayloadKind = "voice"
	KindVideoNote PayloadKind = "video_note"
	KindVideo     PayloadKind = "video"
)

func (k PayloadKind) HasMedia() bool {
	return k != KindText && k != ""
}

// Bonus identifies a one-shot reward path guarded by a persistent flag.
type Bonus string

const (
	BonusTrial   Bonus = "trial"
	BonusChannel Bonus = "channel"
)
