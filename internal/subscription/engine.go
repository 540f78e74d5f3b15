package subscription

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/BatmanBruc/bizwatch-bot/internal/metrics"
	"github.com/BatmanBruc/bizwatch-bot/types"
	"github.com/rs/zerolog"
)

// Eternal is the days value for a grant that never runs out.
const Eternal = -1

const (
	eternalDays = 36500
	day         = 24 * time.Hour

	MonthlyDays      = 30
	TrialDays        = 3
	ChannelBonusDays = 7
)

// errUnchanged aborts an Update whose precondition no longer holds.
var errUnchanged = errors.New("unchanged")

type Engine struct {
	users       types.EntitlementStore
	payments    types.PaymentStore
	mainAdminID int64
	now         func() time.Time
	log         zerolog.Logger
	metrics     *metrics.Metrics
}

type Option func(*Engine)

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func NewEngine(users types.EntitlementStore, payments types.PaymentStore, mainAdminID int64, log zerolog.Logger, opts ...Option) *Engine {
	e := &Engine{
		users:       users,
		payments:    payments,
		mainAdminID: mainAdminID,
		now:         func() time.Time { return time.Now().UTC() },
		log:         log.With().Str("component", "subscription").Logger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Now() time.Time {
	return e.now()
}

func (e *Engine) MainAdminID() int64 {
	return e.mainAdminID
}

// Register creates the user on first contact and refreshes the profile afterwards.
// The main admin always ends up with the admin flag.
func (e *Engine) Register(ctx context.Context, profile types.Profile) (bool, error) {
	created, err := e.users.Create(ctx, profile)
	if err != nil {
		return false, err
	}
	if !created {
		if err := e.users.UpdateProfile(ctx, profile); err != nil {
			return false, err
		}
	}
	if profile.UserID == e.mainAdminID {
		admin := true
		if err := e.users.Patch(ctx, profile.UserID, types.EntitlementPatch{IsAdmin: &admin}); err != nil {
			return created, err
		}
	}
	return created, nil
}

// Touch records activity time for the user. Unknown users are ignored.
func (e *Engine) Touch(ctx context.Context, userID int64) error {
	now := e.now()
	err := e.users.Patch(ctx, userID, types.EntitlementPatch{LastMessageAt: &now})
	if errors.Is(err, types.ErrNotFound) {
		return nil
	}
	return err
}

// CheckAccess reports whether the user may use the bot. Errors deny access.
func (e *Engine) CheckAccess(ctx context.Context, userID int64) bool {
	ok, err := e.Access(ctx, userID)
	if err != nil {
		if !errors.Is(err, types.ErrNotFound) {
			e.log.Warn().Err(err).Int64("user_id", userID).Msg("access check failed")
		}
		return false
	}
	return ok
}

// Access is CheckAccess with the error surfaced. A lapsed subscription is
// switched off as part of the check.
func (e *Engine) Access(ctx context.Context, userID int64) (bool, error) {
	if userID == e.mainAdminID {
		return true, nil
	}
	ent, err := e.users.Get(ctx, userID)
	if err != nil {
		return false, err
	}
	if ent.IsAdmin {
		return true, nil
	}
	if !ent.SubscriptionActive {
		return false, nil
	}
	if !e.lapsed(ent) {
		return true, nil
	}

	var latest types.Entitlement
	_, err = e.users.Update(ctx, userID, func(cur *types.Entitlement) error {
		latest = cur.Clone()
		if cur.IsAdmin || !cur.SubscriptionActive || !e.lapsed(cur) {
			return errUnchanged
		}
		expire(cur)
		return nil
	})
	switch {
	case err == nil:
		e.log.Info().Int64("user_id", userID).Msg("subscription expired")
		return false, nil
	case errors.Is(err, errUnchanged):
		return latest.IsAdmin || (latest.SubscriptionActive && !e.lapsed(&latest)), nil
	default:
		return false, err
	}
}

func (e *Engine) lapsed(ent *types.Entitlement) bool {
	return ent.SubscriptionExpires != nil && ent.SubscriptionExpires.Before(e.now())
}

func expire(ent *types.Entitlement) {
	ent.SubscriptionActive = false
	ent.SubscriptionTier = types.TierFree
}

// Activate grants days of access with the given tier. Remaining time on an
// active subscription is kept and the grant is added on top.
func (e *Engine) Activate(ctx context.Context, userID int64, days int, tier types.Tier) (*types.Entitlement, error) {
	if days != Eternal && days <= 0 {
		return nil, types.ErrInvalidDuration
	}
	if !tier.Valid() {
		return nil, fmt.Errorf("unknown tier %q", tier)
	}
	ent, err := e.users.Update(ctx, userID, func(cur *types.Entitlement) error {
		e.ApplyGrant(cur, days, tier)
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.metrics.Granted(string(tier))
	e.log.Info().Int64("user_id", userID).Int("days", days).Str("tier", string(tier)).
		Time("expires", *ent.SubscriptionExpires).Msg("subscription activated")
	return ent, nil
}

// ApplyGrant computes the new expiry on ent in place. It does not persist.
func (e *Engine) ApplyGrant(ent *types.Entitlement, days int, tier types.Tier) {
	now := e.now()
	var expires time.Time
	switch {
	case days == Eternal:
		expires = now.Add(eternalDays * day)
	case ent.SubscriptionActive && ent.SubscriptionExpires != nil && ent.SubscriptionExpires.After(now):
		expires = ent.SubscriptionExpires.Add(time.Duration(days) * day)
	default:
		expires = now.Add(time.Duration(days) * day)
	}
	ent.SubscriptionActive = true
	ent.SubscriptionExpires = &expires
	ent.SubscriptionTier = tier
}

// Revoke switches the subscription off and resets the tier.
func (e *Engine) Revoke(ctx context.Context, userID int64) error {
	_, err := e.users.Update(ctx, userID, func(cur *types.Entitlement) error {
		expire(cur)
		return nil
	})
	if err != nil {
		return err
	}
	e.log.Info().Int64("user_id", userID).Msg("subscription revoked")
	return nil
}

// ExpireLapsed switches off every subscription whose expiry has passed.
func (e *Engine) ExpireLapsed(ctx context.Context) (int, error) {
	all, err := e.users.List(ctx)
	if err != nil {
		return 0, err
	}
	expired := 0
	for i := range all {
		ent := &all[i]
		if ent.IsAdmin || !ent.SubscriptionActive || !e.lapsed(ent) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return expired, err
		}
		ok, err := e.Access(ctx, ent.UserID)
		if err != nil {
			e.log.Warn().Err(err).Int64("user_id", ent.UserID).Msg("expire failed")
			continue
		}
		if !ok {
			expired++
		}
	}
	e.metrics.Expired(expired)
	return expired, nil
}
