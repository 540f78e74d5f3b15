package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/BatmanBruc/bizwatch-bot/types"
)

// maxUpdateAttempts bounds optimistic retries in Update.
const maxUpdateAttempts = 8

type messageKey struct {
	owner int64
	id    int64
}

// MemoryStore keeps entitlements, shadow messages and payments in-process.
// It is used by tests and by STORAGE=memory runs.
type MemoryStore struct {
	mu       sync.RWMutex
	users    map[int64]types.Entitlement
	messages map[messageKey]types.ShadowMessage
	charges  map[string]types.Payment
	now      func() time.Time

	// beforeCommit lets tests interleave a write between read and commit.
	beforeCommit func(userID int64)
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:    make(map[int64]types.Entitlement),
		messages: make(map[messageKey]types.ShadowMessage),
		charges:  make(map[string]types.Payment),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) Get(ctx context.Context, userID int64) (*types.Entitlement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.users[userID]
	if !ok {
		return nil, types.ErrNotFound
	}
	out := e.Clone()
	return &out, nil
}

func (s *MemoryStore) Create(ctx context.Context, profile types.Profile) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[profile.UserID]; ok {
		return false, nil
	}
	now := s.now()
	s.users[profile.UserID] = types.Entitlement{
		UserID:           profile.UserID,
		FirstName:        profile.FirstName,
		LastName:         profile.LastName,
		Username:         profile.Username,
		SubscriptionTier: types.TierFree,
		CreatedAt:        now,
		UpdatedAt:        now,
		Version:          1,
	}
	return true, nil
}

func (s *MemoryStore) UpdateProfile(ctx context.Context, profile types.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.users[profile.UserID]
	if !ok {
		return types.ErrNotFound
	}
	e.FirstName = profile.FirstName
	e.LastName = profile.LastName
	e.Username = profile.Username
	e.UpdatedAt = s.now()
	e.Version++
	s.users[profile.UserID] = e
	return nil
}

func (s *MemoryStore) Patch(ctx context.Context, userID int64, patch types.EntitlementPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.users[userID]
	if !ok {
		return types.ErrNotFound
	}
	if patch.Empty() {
		return nil
	}
	patch.Apply(&e)
	e.UpdatedAt = s.now()
	e.Version++
	s.users[userID] = e
	return nil
}

func (s *MemoryStore) Update(ctx context.Context, userID int64, mutate func(*types.Entitlement) error) (*types.Entitlement, error) {
	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		current, err := s.Get(ctx, userID)
		if err != nil {
			return nil, err
		}
		next := current.Clone()
		if err := mutate(&next); err != nil {
			return nil, err
		}
		if s.beforeCommit != nil {
			s.beforeCommit(userID)
		}

		s.mu.Lock()
		stored, ok := s.users[userID]
		if !ok {
			s.mu.Unlock()
			return nil, types.ErrNotFound
		}
		if stored.Version != current.Version {
			s.mu.Unlock()
			continue
		}
		next.UserID = userID
		next.Version = current.Version + 1
		next.UpdatedAt = s.now()
		s.users[userID] = next
		s.mu.Unlock()

		out := next.Clone()
		return &out, nil
	}
	return nil, types.ErrConflict
}

func (s *MemoryStore) List(ctx context.Context) ([]types.Entitlement, error) {
	return s.filter(func(types.Entitlement) bool { return true }), nil
}

func (s *MemoryStore) ListAdmins(ctx context.Context) ([]types.Entitlement, error) {
	return s.filter(func(e types.Entitlement) bool { return e.IsAdmin }), nil
}

func (s *MemoryStore) FindByReferralLink(ctx context.Context, link string) (*types.Entitlement, error) {
	found := s.filter(func(e types.Entitlement) bool { return link != "" && e.ReferralLink == link })
	if len(found) == 0 {
		return nil, types.ErrNotFound
	}
	return &found[0], nil
}

// filter returns matching users newest first, like ORDER BY created_at DESC.
func (s *MemoryStore) filter(keep func(types.Entitlement) bool) []types.Entitlement {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res := make([]types.Entitlement, 0, len(s.users))
	for _, e := range s.users {
		if keep(e) {
			res = append(res, e.Clone())
		}
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].CreatedAt.Equal(res[j].CreatedAt) {
			return res[i].UserID < res[j].UserID
		}
		return res[i].CreatedAt.After(res[j].CreatedAt)
	})
	return res
}

func (s *MemoryStore) Record(ctx context.Context, msg types.ShadowMessage) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := messageKey{owner: msg.OwnerID, id: msg.MessageID}
	if _, ok := s.messages[key]; ok {
		return false, nil
	}
	stored := msg.Clone()
	if stored.SentAt.IsZero() {
		stored.SentAt = s.now()
	}
	if stored.EditHistory == nil {
		stored.EditHistory = []types.EditRecord{}
	}
	s.messages[key] = stored
	return true, nil
}

func (s *MemoryStore) GetMessage(ctx context.Context, ownerID, messageID int64) (*types.ShadowMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.messages[messageKey{owner: ownerID, id: messageID}]
	if !ok {
		return nil, types.ErrNotFound
	}
	out := m.Clone()
	return &out, nil
}

func (s *MemoryStore) MarkEdited(ctx context.Context, ownerID, messageID int64, newText string, at time.Time) (*types.ShadowMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := messageKey{owner: ownerID, id: messageID}
	m, ok := s.messages[key]
	if !ok {
		return nil, types.ErrNotFound
	}
	m = m.Clone()
	m.EditHistory = append(m.EditHistory, types.EditRecord{OldText: m.Text, EditedAt: at})
	m.Text = newText
	m.IsEdited = true
	m.EditedAt = &at
	s.messages[key] = m
	out := m.Clone()
	return &out, nil
}

func (s *MemoryStore) MarkDeleted(ctx context.Context, ownerID, messageID int64, at time.Time) (*types.ShadowMessage, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := messageKey{owner: ownerID, id: messageID}
	m, ok := s.messages[key]
	if !ok {
		return nil, false, types.ErrNotFound
	}
	if m.IsDeleted {
		out := m.Clone()
		return &out, false, nil
	}
	m = m.Clone()
	m.IsDeleted = true
	m.DeletedAt = &at
	s.messages[key] = m
	out := m.Clone()
	return &out, true, nil
}

func (s *MemoryStore) SetNotificationMessageID(ctx context.Context, ownerID, messageID int64, notificationID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := messageKey{owner: ownerID, id: messageID}
	m, ok := s.messages[key]
	if !ok {
		return types.ErrNotFound
	}
	m.NotificationMessageID = &notificationID
	s.messages[key] = m
	return nil
}

func (s *MemoryStore) ListByOwner(ctx context.Context, ownerID int64, limit int) ([]types.ShadowMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res := make([]types.ShadowMessage, 0)
	for key, m := range s.messages {
		if key.owner == ownerID {
			res = append(res, m.Clone())
		}
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].SentAt.Equal(res[j].SentAt) {
			return res[i].MessageID > res[j].MessageID
		}
		return res[i].SentAt.After(res[j].SentAt)
	})
	if limit > 0 && len(res) > limit {
		res = res[:limit]
	}
	return res, nil
}

func (s *MemoryStore) RecordPayment(ctx context.Context, p types.Payment) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.charges[p.TelegramPaymentCharge]; ok {
		return false, nil
	}
	s.charges[p.TelegramPaymentCharge] = p
	return true, nil
}

// MemoryConnectionCache is the in-process ConnectionCache used with STORAGE=memory.
type MemoryConnectionCache struct {
	mu     sync.RWMutex
	owners map[string]int64
}

func NewMemoryConnectionCache() *MemoryConnectionCache {
	return &MemoryConnectionCache{owners: make(map[string]int64)}
}

func (c *MemoryConnectionCache) GetOwner(ctx context.Context, connectionID string) (int64, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	owner, ok := c.owners[connectionID]
	return owner, ok, nil
}

func (c *MemoryConnectionCache) SetOwner(ctx context.Context, connectionID string, ownerID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.owners[connectionID] = ownerID
	return nil
}

func (c *MemoryConnectionCache) Forget(ctx context.Context, connectionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.owners, connectionID)
	return nil
}
