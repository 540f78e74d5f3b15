package referral

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/BatmanBruc/bizwatch-bot/internal/metrics"
	"github.com/BatmanBruc/bizwatch-bot/internal/subscription"
	"github.com/BatmanBruc/bizwatch-bot/types"
	"github.com/rs/zerolog"
)

const codePrefix = "ref_"

var errUnchanged = errors.New("referral unchanged")

type threshold struct {
	count int
	days  int
}

var thresholds = []threshold{
	{count: 3, days: 7},
	{count: 5, days: 30},
	{count: 10, days: 180},
	{count: 30, days: subscription.Eternal},
}

// BonusFor returns the days granted when the referral count reaches exactly n.
func BonusFor(n int) (int, bool) {
	for _, t := range thresholds {
		if t.count == n {
			return t.days, true
		}
	}
	return 0, false
}

type Outcome struct {
	ReferrerID int64
	Count      int
	Bonus      *types.BonusGranted
}

type Ledger struct {
	users   types.EntitlementStore
	engine  *subscription.Engine
	log     zerolog.Logger
	metrics *metrics.Metrics
}

func NewLedger(users types.EntitlementStore, engine *subscription.Engine, log zerolog.Logger, m *metrics.Metrics) *Ledger {
	return &Ledger{
		users:   users,
		engine:  engine,
		log:     log.With().Str("component", "referral").Logger(),
		metrics: m,
	}
}

// Attribute links newUserID to referrerID. The referrer's count and any
// threshold bonus are written together.
func (l *Ledger) Attribute(ctx context.Context, ev types.ReferralStart) (*Outcome, error) {
	if ev.NewUserID == ev.ReferrerID {
		return nil, types.ErrSelfReferral
	}
	if _, err := l.users.Get(ctx, ev.ReferrerID); err != nil {
		return nil, err
	}

	referrer := ev.ReferrerID
	_, err := l.users.Update(ctx, ev.NewUserID, func(cur *types.Entitlement) error {
		if cur.ReferredBy != nil {
			return types.ErrAlreadyReferred
		}
		cur.ReferredBy = &referrer
		return nil
	})
	if err != nil {
		return nil, err
	}

	var bonus *types.BonusGranted
	ent, err := l.updateUntilCommitted(ctx, ev.ReferrerID, func(cur *types.Entitlement) error {
		bonus = nil
		cur.ReferralCount++
		days, ok := BonusFor(cur.ReferralCount)
		if !ok {
			return nil
		}
		l.engine.ApplyGrant(cur, days, types.TierReferral)
		bonus = &types.BonusGranted{
			UserID:        cur.UserID,
			Days:          days,
			Tier:          types.TierReferral,
			NewExpiry:     *cur.SubscriptionExpires,
			ReferralCount: cur.ReferralCount,
		}
		return nil
	})
	if err != nil {
		l.detach(ctx, ev.NewUserID, ev.ReferrerID)
		return nil, fmt.Errorf("increment referral count: %w", err)
	}

	l.metrics.Referral()
	out := &Outcome{ReferrerID: ev.ReferrerID, Count: ent.ReferralCount, Bonus: bonus}
	entry := l.log.Info().Int64("referrer_id", ev.ReferrerID).Int64("user_id", ev.NewUserID).Int("count", ent.ReferralCount)
	if bonus != nil {
		l.metrics.Granted(string(types.TierReferral))
		entry = entry.Int("bonus_days", bonus.Days)
	}
	entry.Msg("referral attributed")
	return out, nil
}

// detach clears the invitee's attribution after the referrer's increment
// failed, so a later /start can attribute again. If this write fails too the
// invitee stays attributed without a counted referral and an error is logged.
func (l *Ledger) detach(ctx context.Context, userID, referrerID int64) {
	ctx = context.WithoutCancel(ctx)
	_, err := l.updateUntilCommitted(ctx, userID, func(cur *types.Entitlement) error {
		if cur.ReferredBy == nil || *cur.ReferredBy != referrerID {
			return errUnchanged
		}
		cur.ReferredBy = nil
		return nil
	})
	if errors.Is(err, errUnchanged) {
		return
	}
	if err != nil {
		l.log.Error().Err(err).Int64("referrer_id", referrerID).Int64("user_id", userID).
			Msg("referral attributed but count not updated")
		return
	}
	l.log.Warn().Int64("referrer_id", referrerID).Int64("user_id", userID).Msg("referral rolled back")
}

// updateUntilCommitted keeps retrying on conflicts until ctx is done.
func (l *Ledger) updateUntilCommitted(ctx context.Context, userID int64, mutate func(*types.Entitlement) error) (*types.Entitlement, error) {
	for {
		ent, err := l.users.Update(ctx, userID, mutate)
		if !errors.Is(err, types.ErrConflict) {
			return ent, err
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
}

func Code(userID int64) string {
	return codePrefix + strconv.FormatInt(userID, 10)
}

// Link returns the user's referral code, saving it on first use.
func (l *Ledger) Link(ctx context.Context, userID int64) (string, error) {
	ent, err := l.users.Get(ctx, userID)
	if err != nil {
		return "", err
	}
	if ent.ReferralLink != "" {
		return ent.ReferralLink, nil
	}
	code := Code(userID)
	if err := l.users.Patch(ctx, userID, types.EntitlementPatch{ReferralLink: &code}); err != nil {
		return "", err
	}
	return code, nil
}

// Referrer resolves a /start payload to the referring user.
func (l *Ledger) Referrer(ctx context.Context, payload string) (int64, error) {
	id, ok := ParseStartPayload(payload)
	if !ok {
		return 0, types.ErrNotFound
	}
	ent, err := l.users.FindByReferralLink(ctx, strings.TrimSpace(payload))
	if err == nil {
		return ent.UserID, nil
	}
	if !errors.Is(err, types.ErrNotFound) {
		return 0, err
	}
	if _, err := l.users.Get(ctx, id); err != nil {
		return 0, err
	}
	return id, nil
}

// ParseStartPayload extracts the referrer id from "ref_<digits>".
func ParseStartPayload(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, codePrefix) {
		return 0, false
	}
	digits := s[len(codePrefix):]
	if digits == "" {
		return 0, false
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	id, err := strconv.ParseInt(digits, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func DeepLink(botUsername, code string) string {
	return fmt.Sprintf("https://t.me/%s?start=%s", strings.TrimPrefix(botUsername, "@"), code)
}

// Progress returns the next threshold above count, or false when none is left.
func Progress(count int) (next int, days int, ok bool) {
	for _, t := range thresholds {
		if t.count > count {
			return t.count, t.days, true
		}
	}
	return 0, 0, false
}
