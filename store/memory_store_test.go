package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/BatmanBruc/bizwatch-bot/types"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreCreateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	created, err := s.Create(ctx, types.Profile{UserID: 1, FirstName: "Ann"})
	require.NoError(t, err)
	require.True(t, created)

	created, err = s.Create(ctx, types.Profile{UserID: 1, FirstName: "Other"})
	require.NoError(t, err)
	require.False(t, created)

	e, err := s.Get(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, "Ann", e.FirstName)
	require.Equal(t, types.TierFree, e.SubscriptionTier)
	require.False(t, e.SubscriptionActive)
}

func TestMemoryStoreGetMissing(t *testing.T) {
	_, err := NewMemoryStore().Get(context.Background(), 42)
	require.ErrorIs(t, err, types.ErrNotFound)
}

func TestMemoryStorePatchOnlyTouchesSetFields(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	_, err := s.Create(ctx, types.Profile{UserID: 1})
	require.NoError(t, err)

	active := true
	tier := types.TierMonthly
	require.NoError(t, s.Patch(ctx, 1, types.EntitlementPatch{SubscriptionActive: &active, SubscriptionTier: &tier}))

	e, err := s.Get(ctx, 1)
	require.NoError(t, err)
	require.True(t, e.SubscriptionActive)
	require.Equal(t, types.TierMonthly, e.SubscriptionTier)
	require.False(t, e.IsAdmin)
	require.Nil(t, e.SubscriptionExpires)

	require.ErrorIs(t, s.Patch(ctx, 2, types.EntitlementPatch{SubscriptionActive: &active}), types.ErrNotFound)
}

func TestMemoryStoreUpdateRetriesOnConcurrentWrite(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	_, err := s.Create(ctx, types.Profile{UserID: 1})
	require.NoError(t, err)

	interfered := false
	s.beforeCommit = func(userID int64) {
		if interfered {
			return
		}
		interfered = true
		admin := true
		require.NoError(t, s.Patch(ctx, userID, types.EntitlementPatch{IsAdmin: &admin}))
	}

	calls := 0
	e, err := s.Update(ctx, 1, func(e *types.Entitlement) error {
		calls++
		e.ReferralCount++
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 2, calls)
	require.Equal(t, 1, e.ReferralCount)
	require.True(t, e.IsAdmin, "concurrent write must survive the retry")
}

func TestMemoryStoreUpdateGivesUpWithConflict(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	_, err := s.Create(ctx, types.Profile{UserID: 1})
	require.NoError(t, err)

	s.beforeCommit = func(userID int64) {
		require.NoError(t, s.UpdateProfile(ctx, types.Profile{UserID: userID, FirstName: "x"}))
	}
	_, err = s.Update(ctx, 1, func(e *types.Entitlement) error { return nil })
	require.ErrorIs(t, err, types.ErrConflict)
}

func TestMemoryStoreConcurrentUpdatesDoNotLoseIncrements(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	_, err := s.Create(ctx, types.Profile{UserID: 1})
	require.NoError(t, err)

	const workers = 20
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				_, err := s.Update(ctx, 1, func(e *types.Entitlement) error {
					e.ReferralCount++
					return nil
				})
				if err == types.ErrConflict {
					continue
				}
				errs <- err
				return
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	e, err := s.Get(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, workers, e.ReferralCount)
}

func TestMemoryStoreListAdminsAndReferralLink(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	for _, id := range []int64{1, 2, 3} {
		_, err := s.Create(ctx, types.Profile{UserID: id})
		require.NoError(t, err)
	}
	admin := true
	link := "ref_2"
	require.NoError(t, s.Patch(ctx, 2, types.EntitlementPatch{IsAdmin: &admin, ReferralLink: &link}))

	admins, err := s.ListAdmins(ctx)
	require.NoError(t, err)
	require.Len(t, admins, 1)
	require.Equal(t, int64(2), admins[0].UserID)

	all, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)

	found, err := s.FindByReferralLink(ctx, "ref_2")
	require.NoError(t, err)
	require.Equal(t, int64(2), found.UserID)

	_, err = s.FindByReferralLink(ctx, "ref_9")
	require.ErrorIs(t, err, types.ErrNotFound)
}

func TestMemoryStoreMessageLifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	sent := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)

	msg := types.ShadowMessage{
		OwnerID:   100,
		MessageID: 5,
		Sender:    types.Sender{ID: 200, Name: "Bob"},
		Kind:      types.KindText,
		Text:      "hello",
		SentAt:    sent,
	}
	inserted, err := s.Record(ctx, msg)
	require.NoError(t, err)
	require.True(t, inserted)

	msg.Text = "dup"
	inserted, err = s.Record(ctx, msg)
	require.NoError(t, err)
	require.False(t, inserted)

	// same id under another owner is a different message
	other := msg
	other.OwnerID = 101
	inserted, err = s.Record(ctx, other)
	require.NoError(t, err)
	require.True(t, inserted)

	edited, err := s.MarkEdited(ctx, 100, 5, "hello world", sent.Add(time.Minute))
	require.NoError(t, err)
	require.True(t, edited.IsEdited)
	require.Equal(t, "hello world", edited.Text)
	require.Len(t, edited.EditHistory, 1)
	require.Equal(t, "hello", edited.EditHistory[0].OldText)
	require.Equal(t, "hello", edited.PreviousText())

	deleted, changed, err := s.MarkDeleted(ctx, 100, 5, sent.Add(2*time.Minute))
	require.NoError(t, err)
	require.True(t, changed)
	require.True(t, deleted.IsDeleted)

	_, changed, err = s.MarkDeleted(ctx, 100, 5, sent.Add(3*time.Minute))
	require.NoError(t, err)
	require.False(t, changed)

	require.NoError(t, s.SetNotificationMessageID(ctx, 100, 5, 77))
	got, err := s.GetMessage(ctx, 100, 5)
	require.NoError(t, err)
	require.NotNil(t, got.NotificationMessageID)
	require.Equal(t, 77, *got.NotificationMessageID)

	_, err = s.MarkEdited(ctx, 100, 999, "x", sent)
	require.ErrorIs(t, err, types.ErrNotFound)
	_, _, err = s.MarkDeleted(ctx, 100, 999, sent)
	require.ErrorIs(t, err, types.ErrNotFound)
}

func TestMemoryStoreListByOwnerNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := int64(1); i <= 3; i++ {
		_, err := s.Record(ctx, types.ShadowMessage{OwnerID: 1, MessageID: i, SentAt: base.Add(time.Duration(i) * time.Minute)})
		require.NoError(t, err)
	}
	_, err := s.Record(ctx, types.ShadowMessage{OwnerID: 2, MessageID: 9, SentAt: base})
	require.NoError(t, err)

	list, err := s.ListByOwner(ctx, 1, 2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, int64(3), list[0].MessageID)
	require.Equal(t, int64(2), list[1].MessageID)
}

func TestMemoryStoreRecordPaymentDedupesCharge(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	p := types.Payment{UserID: 1, Currency: "XTR", TotalAmount: 49, TelegramPaymentCharge: "ch-1"}

	inserted, err := s.RecordPayment(ctx, p)
	require.NoError(t, err)
	require.True(t, inserted)

	inserted, err = s.RecordPayment(ctx, p)
	require.NoError(t, err)
	require.False(t, inserted)
}
