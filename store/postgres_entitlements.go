package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BatmanBruc/bizwatch-bot/types"
	"github.com/jackc/pgx/v5"
)

const userColumns = `user_id, first_name, last_name, username, is_admin, subscription_active, subscription_expires,
  subscription_tier, trial_used, channel_bonus_used, referred_by, referral_count, referral_link,
  last_message_at, created_at, updated_at, version`

func scanEntitlement(row pgx.Row) (*types.Entitlement, error) {
	var (
		e    types.Entitlement
		tier string
		link *string
	)
	err := row.Scan(&e.UserID, &e.FirstName, &e.LastName, &e.Username, &e.IsAdmin, &e.SubscriptionActive,
		&e.SubscriptionExpires, &tier, &e.TrialUsed, &e.ChannelBonusUsed, &e.ReferredBy, &e.ReferralCount,
		&link, &e.LastMessageAt, &e.CreatedAt, &e.UpdatedAt, &e.Version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.ErrNotFound
		}
		return nil, err
	}
	e.SubscriptionTier, _ = types.ParseTier(tier)
	if link != nil {
		e.ReferralLink = *link
	}
	return &e, nil
}

func (s *PostgresStore) Get(ctx context.Context, userID int64) (*types.Entitlement, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	e, err := scanEntitlement(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE user_id = $1`, userID))
	if err != nil && !errors.Is(err, types.ErrNotFound) {
		return nil, fmt.Errorf("get user %d: %w", userID, err)
	}
	return e, err
}

func (s *PostgresStore) Create(ctx context.Context, profile types.Profile) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	tag, err := s.pool.Exec(ctx, `
INSERT INTO users (user_id, first_name, last_name, username)
VALUES ($1, $2, $3, $4)
ON CONFLICT (user_id) DO NOTHING
`, profile.UserID, strings.TrimSpace(profile.FirstName), strings.TrimSpace(profile.LastName), strings.TrimSpace(profile.Username))
	if err != nil {
		return false, fmt.Errorf("create user %d: %w", profile.UserID, err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) UpdateProfile(ctx context.Context, profile types.Profile) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	tag, err := s.pool.Exec(ctx, `
UPDATE users SET
  first_name = $2,
  last_name = $3,
  username = $4,
  version = version + 1,
  updated_at = NOW()
WHERE user_id = $1
`, profile.UserID, strings.TrimSpace(profile.FirstName), strings.TrimSpace(profile.LastName), strings.TrimSpace(profile.Username))
	if err != nil {
		return fmt.Errorf("update profile %d: %w", profile.UserID, err)
	}
	if tag.RowsAffected() == 0 {
		return types.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Patch(ctx context.Context, userID int64, patch types.EntitlementPatch) error {
	if patch.Empty() {
		_, err := s.Get(ctx, userID)
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	var tier *string
	if patch.SubscriptionTier != nil {
		v := string(*patch.SubscriptionTier)
		tier = &v
	}
	tag, err := s.pool.Exec(ctx, `
UPDATE users SET
  is_admin = COALESCE($2, is_admin),
  subscription_active = COALESCE($3, subscription_active),
  subscription_expires = COALESCE($4, subscription_expires),
  subscription_tier = COALESCE($5, subscription_tier),
  referral_link = COALESCE($6, referral_link),
  last_message_at = COALESCE($7, last_message_at),
  version = version + 1,
  updated_at = NOW()
WHERE user_id = $1
`, userID, patch.IsAdmin, patch.SubscriptionActive, patch.SubscriptionExpires, tier, patch.ReferralLink, patch.LastMessageAt)
	if err != nil {
		return fmt.Errorf("patch user %d: %w", userID, err)
	}
	if tag.RowsAffected() == 0 {
		return types.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, userID int64, mutate func(*types.Entitlement) error) (*types.Entitlement, error) {
	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		current, err := s.Get(ctx, userID)
		if err != nil {
			return nil, err
		}
		next := current.Clone()
		if err := mutate(&next); err != nil {
			return nil, err
		}
		ok, err := s.compareAndSwap(ctx, current.Version, next)
		if err != nil {
			return nil, err
		}
		if ok {
			next.UserID = userID
			next.Version = current.Version + 1
			next.UpdatedAt = time.Now().UTC()
			return &next, nil
		}
	}
	return nil, types.ErrConflict
}

func (s *PostgresStore) compareAndSwap(ctx context.Context, version int64, e types.Entitlement) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	var link *string
	if e.ReferralLink != "" {
		link = &e.ReferralLink
	}
	tag, err := s.pool.Exec(ctx, `
UPDATE users SET
  is_admin = $3,
  subscription_active = $4,
  subscription_expires = $5,
  subscription_tier = $6,
  trial_used = $7,
  channel_bonus_used = $8,
  referred_by = $9,
  referral_count = $10,
  referral_link = $11,
  last_message_at = $12,
  version = version + 1,
  updated_at = NOW()
WHERE user_id = $1 AND version = $2
`, e.UserID, version, e.IsAdmin, e.SubscriptionActive, e.SubscriptionExpires, string(e.SubscriptionTier),
		e.TrialUsed, e.ChannelBonusUsed, e.ReferredBy, e.ReferralCount, link, e.LastMessageAt)
	if err != nil {
		return false, fmt.Errorf("update user %d: %w", e.UserID, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) List(ctx context.Context) ([]types.Entitlement, error) {
	return s.queryUsers(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at DESC`)
}

func (s *PostgresStore) ListAdmins(ctx context.Context) ([]types.Entitlement, error) {
	return s.queryUsers(ctx, `SELECT `+userColumns+` FROM users WHERE is_admin ORDER BY created_at DESC`)
}

func (s *PostgresStore) FindByReferralLink(ctx context.Context, link string) (*types.Entitlement, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	e, err := scanEntitlement(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE referral_link = $1`, link))
	if err != nil && !errors.Is(err, types.ErrNotFound) {
		return nil, fmt.Errorf("find by referral link: %w", err)
	}
	return e, err
}

func (s *PostgresStore) queryUsers(ctx context.Context, query string, args ...any) ([]types.Entitlement, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	res := make([]types.Entitlement, 0)
	for rows.Next() {
		e, err := scanEntitlement(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		res = append(res, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return res, nil
}
