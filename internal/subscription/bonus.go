package subscription

import (
	"context"
	"fmt"

	"github.com/BatmanBruc/bizwatch-bot/types"
)

type bonusGrant struct {
	days int
	tier types.Tier
}

var oneShot = map[types.Bonus]bonusGrant{
	types.BonusTrial:   {days: TrialDays, tier: types.TierTrial},
	types.BonusChannel: {days: ChannelBonusDays, tier: types.TierGiftBoomBonus},
}

func (e *Engine) HasClaimed(ctx context.Context, userID int64, bonus types.Bonus) (bool, error) {
	ent, err := e.users.Get(ctx, userID)
	if err != nil {
		return false, err
	}
	return ent.BonusUsed(bonus), nil
}

// Claim sets the one-shot flag and grants the bonus in a single update.
// A second claim fails with types.ErrBonusClaimed.
func (e *Engine) Claim(ctx context.Context, userID int64, bonus types.Bonus) (*types.BonusGranted, error) {
	g, ok := oneShot[bonus]
	if !ok {
		return nil, fmt.Errorf("unknown bonus %q", bonus)
	}
	ent, err := e.users.Update(ctx, userID, func(cur *types.Entitlement) error {
		if cur.BonusUsed(bonus) {
			return types.ErrBonusClaimed
		}
		cur.MarkBonusUsed(bonus)
		e.ApplyGrant(cur, g.days, g.tier)
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.metrics.Granted(string(g.tier))
	e.log.Info().Int64("user_id", userID).Str("bonus", string(bonus)).Msg("bonus claimed")
	return &types.BonusGranted{
		UserID:    userID,
		Days:      g.days,
		Tier:      g.tier,
		NewExpiry: *ent.SubscriptionExpires,
	}, nil
}

// ClaimChannelBonus grants the channel bonus once the membership check passed.
func (e *Engine) ClaimChannelBonus(ctx context.Context, check types.ChannelBonusCheck) (*types.BonusGranted, error) {
	if !check.Subscribed {
		return nil, types.ErrNotSubscribed
	}
	return e.Claim(ctx, check.UserID, types.BonusChannel)
}

// CompletePayment records a confirmed payment and extends the subscription
// by a month. A charge that was already recorded changes nothing.
func (e *Engine) CompletePayment(ctx context.Context, ev types.PaymentCompleted) (*types.Entitlement, bool, error) {
	p := ev.Payment
	p.UserID = ev.UserID
	inserted, err := e.payments.RecordPayment(ctx, p)
	if err != nil {
		return nil, false, fmt.Errorf("record payment: %w", err)
	}
	if !inserted {
		e.log.Warn().Int64("user_id", ev.UserID).Str("charge", p.TelegramPaymentCharge).Msg("duplicate payment ignored")
		ent, err := e.users.Get(ctx, ev.UserID)
		return ent, false, err
	}
	e.metrics.Payment()
	ent, err := e.Activate(ctx, ev.UserID, MonthlyDays, types.TierMonthly)
	if err != nil {
		return nil, false, err
	}
	return ent, true, nil
}
