package subscription

import (
	"context"
	"errors"

	"github.com/BatmanBruc/bizwatch-bot/types"
)

func (e *Engine) IsAdmin(ctx context.Context, userID int64) (bool, error) {
	if userID == e.mainAdminID {
		return true, nil
	}
	ent, err := e.users.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return ent.IsAdmin, nil
}

func (e *Engine) IsMainAdmin(userID int64) bool {
	return userID == e.mainAdminID
}

func (e *Engine) MakeAdmin(ctx context.Context, userID int64) error {
	return e.setAdmin(ctx, userID, true)
}

func (e *Engine) RemoveAdmin(ctx context.Context, userID int64) error {
	return e.setAdmin(ctx, userID, false)
}

func (e *Engine) setAdmin(ctx context.Context, userID int64, admin bool) error {
	if userID == e.mainAdminID {
		return types.ErrMainAdminProtected
	}
	if err := e.users.Patch(ctx, userID, types.EntitlementPatch{IsAdmin: &admin}); err != nil {
		return err
	}
	e.log.Info().Int64("user_id", userID).Bool("admin", admin).Msg("admin role changed")
	return nil
}

// EnsureAdminForever gives an admin the eternal admin_forever subscription
// unless they already hold it.
func (e *Engine) EnsureAdminForever(ctx context.Context, userID int64) (bool, error) {
	admin, err := e.IsAdmin(ctx, userID)
	if err != nil || !admin {
		return false, err
	}
	ent, err := e.users.Get(ctx, userID)
	if err != nil {
		return false, err
	}
	if ent.SubscriptionActive && ent.SubscriptionTier == types.TierAdminForever {
		return false, nil
	}
	if _, err := e.Activate(ctx, userID, Eternal, types.TierAdminForever); err != nil {
		return false, err
	}
	return true, nil
}

func (e *Engine) Get(ctx context.Context, userID int64) (*types.Entitlement, error) {
	return e.users.Get(ctx, userID)
}

func (e *Engine) ListAdmins(ctx context.Context) ([]types.Entitlement, error) {
	return e.users.ListAdmins(ctx)
}
