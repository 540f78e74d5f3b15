package types

import (
	"context"
	"time"
)

// Profile is what the platform tells us about a user on first contact.
type Profile struct {
	UserID    int64
	FirstName string
	LastName  string
	Username  string
}

type Entitlement struct {
	UserID              int64
	FirstName           string
	LastName            string
	Username            string
	IsAdmin             bool
	SubscriptionActive  bool
	SubscriptionExpires *time.Time
	SubscriptionTier    Tier
	TrialUsed           bool
	ChannelBonusUsed    bool
	ReferredBy          *int64
	ReferralCount       int
	ReferralLink        string
	LastMessageAt       *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
	Version             int64
}

// Clone returns a deep copy so callers can mutate without touching shared state.
func (e Entitlement) Clone() Entitlement {
	out := e
	if e.SubscriptionExpires != nil {
		v := *e.SubscriptionExpires
		out.SubscriptionExpires = &v
	}
	if e.ReferredBy != nil {
		v := *e.ReferredBy
		out.ReferredBy = &v
	}
	if e.LastMessageAt != nil {
		v := *e.LastMessageAt
		out.LastMessageAt = &v
	}
	return out
}

func (e Entitlement) BonusUsed(b Bonus) bool {
	switch b {
	case BonusTrial:
		return e.TrialUsed
	case BonusChannel:
		return e.ChannelBonusUsed
	}
	return false
}

func (e *Entitlement) MarkBonusUsed(b Bonus) {
	switch b {
	case BonusTrial:
		e.TrialUsed = true
	case BonusChannel:
		e.ChannelBonusUsed = true
	}
}

// EntitlementPatch is a typed partial update. Nil fields are left untouched.
type EntitlementPatch struct {
	IsAdmin             *bool
	SubscriptionActive  *bool
	SubscriptionExpires *time.Time
	SubscriptionTier    *Tier
	ReferralLink        *string
	LastMessageAt       *time.Time
}

func (p EntitlementPatch) Empty() bool {
	return p.IsAdmin == nil && p.SubscriptionActive == nil && p.SubscriptionExpires == nil &&
		p.SubscriptionTier == nil && p.ReferralLink == nil && p.LastMessageAt == nil
}

func (p EntitlementPatch) Apply(e *Entitlement) {
	if p.IsAdmin != nil {
		e.IsAdmin = *p.IsAdmin
	}
	if p.SubscriptionActive != nil {
		e.SubscriptionActive = *p.SubscriptionActive
	}
	if p.SubscriptionExpires != nil {
		v := *p.SubscriptionExpires
		e.SubscriptionExpires = &v
	}
	if p.SubscriptionTier != nil {
		e.SubscriptionTier = *p.SubscriptionTier
	}
	if p.ReferralLink != nil {
		e.ReferralLink = *p.ReferralLink
	}
	if p.LastMessageAt != nil {
		v := *p.LastMessageAt
		e.LastMessageAt = &v
	}
}

type EntitlementStore interface {
	Get(ctx context.Context, userID int64) (*Entitlement, error)
	Create(ctx context.Context, profile Profile) (created bool, err error)
	UpdateProfile(ctx context.Context, profile Profile) error
	Patch(ctx context.Context, userID int64, patch EntitlementPatch) error
	// Update applies mutate to the latest version of the record and stores the
	// result only if nobody else wrote in between. Conflicts are retried.
	Update(ctx context.Context, userID int64, mutate func(*Entitlement) error) (*Entitlement, error)
	List(ctx context.Context) ([]Entitlement, error)
	ListAdmins(ctx context.Context) ([]Entitlement, error)
	FindByReferralLink(ctx context.Context, link string) (*Entitlement, error)
}
