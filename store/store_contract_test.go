package store

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/BatmanBruc/bizwatch-bot/types"
)

// fullStore is what both backends implement.
type fullStore interface {
	types.EntitlementStore
	types.MessageStore
	types.PaymentStore
}

func TestMemoryStoreContract(t *testing.T) {
	runStoreContract(t, func(t *testing.T) fullStore {
		return NewMemoryStore()
	})
}

// TestPostgresStoreContract runs against a real database when
// TEST_POSTGRES_DSN is set. Tables are truncated before every case.
func TestPostgresStoreContract(t *testing.T) {
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	pg, err := NewPostgresStore(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pg.Close)

	runStoreContract(t, func(t *testing.T) fullStore {
		_, err := pg.pool.Exec(ctx, `TRUNCATE users, messages, payments`)
		require.NoError(t, err)
		return pg
	})
}

func runStoreContract(t *testing.T, open func(t *testing.T) fullStore) {
	at := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	t.Run("create is idempotent", func(t *testing.T) {
		ctx := context.Background()
		s := open(t)
		created, err := s.Create(ctx, types.Profile{UserID: 1, FirstName: "Ann"})
		require.NoError(t, err)
		require.True(t, created)
		created, err = s.Create(ctx, types.Profile{UserID: 1, FirstName: "Other"})
		require.NoError(t, err)
		require.False(t, created)

		ent, err := s.Get(ctx, 1)
		require.NoError(t, err)
		require.Equal(t, "Ann", ent.FirstName)
		require.Equal(t, types.TierFree, ent.SubscriptionTier)

		_, err = s.Get(ctx, 2)
		require.ErrorIs(t, err, types.ErrNotFound)
	})

	t.Run("update retries after a competing write", func(t *testing.T) {
		ctx := context.Background()
		s := open(t)
		_, err := s.Create(ctx, types.Profile{UserID: 1})
		require.NoError(t, err)

		calls := 0
		ent, err := s.Update(ctx, 1, func(cur *types.Entitlement) error {
			calls++
			if calls == 1 {
				admin := true
				require.NoError(t, s.Patch(ctx, 1, types.EntitlementPatch{IsAdmin: &admin}))
			}
			cur.TrialUsed = true
			return nil
		})
		require.NoError(t, err)
		require.Equal(t, 2, calls)
		require.True(t, ent.TrialUsed)
		require.True(t, ent.IsAdmin, "retry sees the competing write")

		stored, err := s.Get(ctx, 1)
		require.NoError(t, err)
		require.True(t, stored.TrialUsed)
		require.True(t, stored.IsAdmin)
	})

	t.Run("update gives up with conflict", func(t *testing.T) {
		ctx := context.Background()
		s := open(t)
		_, err := s.Create(ctx, types.Profile{UserID: 1})
		require.NoError(t, err)

		_, err = s.Update(ctx, 1, func(cur *types.Entitlement) error {
			now := time.Now()
			require.NoError(t, s.Patch(ctx, 1, types.EntitlementPatch{LastMessageAt: &now}))
			cur.ReferralCount++
			return nil
		})
		require.ErrorIs(t, err, types.ErrConflict)
		stored, err := s.Get(ctx, 1)
		require.NoError(t, err)
		require.Zero(t, stored.ReferralCount)
	})

	t.Run("mutate error writes nothing", func(t *testing.T) {
		ctx := context.Background()
		s := open(t)
		_, err := s.Create(ctx, types.Profile{UserID: 1})
		require.NoError(t, err)
		before, err := s.Get(ctx, 1)
		require.NoError(t, err)

		_, err = s.Update(ctx, 1, func(cur *types.Entitlement) error {
			cur.TrialUsed = true
			return types.ErrBonusClaimed
		})
		require.ErrorIs(t, err, types.ErrBonusClaimed)
		after, err := s.Get(ctx, 1)
		require.NoError(t, err)
		require.False(t, after.TrialUsed)
		require.Equal(t, before.Version, after.Version)
	})

	t.Run("one-shot flag is claimed once under concurrency", func(t *testing.T) {
		ctx := context.Background()
		s := open(t)
		_, err := s.Create(ctx, types.Profile{UserID: 1})
		require.NoError(t, err)

		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			claimed int
		)
		for i := 0; i < 12; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := s.Update(ctx, 1, func(cur *types.Entitlement) error {
					if cur.TrialUsed {
						return types.ErrBonusClaimed
					}
					cur.TrialUsed = true
					return nil
				})
				if err == nil {
					mu.Lock()
					claimed++
					mu.Unlock()
					return
				}
				if !errors.Is(err, types.ErrBonusClaimed) && !errors.Is(err, types.ErrConflict) {
					t.Errorf("unexpected error: %v", err)
				}
			}()
		}
		wg.Wait()
		require.Equal(t, 1, claimed)
	})

	t.Run("message record is idempotent", func(t *testing.T) {
		ctx := context.Background()
		s := open(t)
		msg := types.ShadowMessage{OwnerID: 10, MessageID: 1, Sender: types.Sender{ID: 20, Name: "Bob"}, Kind: types.KindText, Text: "first", SentAt: at}
		inserted, err := s.Record(ctx, msg)
		require.NoError(t, err)
		require.True(t, inserted)

		msg.Text = "second"
		inserted, err = s.Record(ctx, msg)
		require.NoError(t, err)
		require.False(t, inserted)

		got, err := s.GetMessage(ctx, 10, 1)
		require.NoError(t, err)
		require.Equal(t, "first", got.Text)
		require.Empty(t, got.EditHistory)

		// same message id under another owner is a different message
		inserted, err = s.Record(ctx, types.ShadowMessage{OwnerID: 11, MessageID: 1, Sender: types.Sender{ID: 20}, Text: "x", SentAt: at})
		require.NoError(t, err)
		require.True(t, inserted)
	})

	t.Run("edit history keeps order", func(t *testing.T) {
		ctx := context.Background()
		s := open(t)
		_, err := s.Record(ctx, types.ShadowMessage{OwnerID: 10, MessageID: 1, Sender: types.Sender{ID: 20}, Kind: types.KindText, Text: "v1", SentAt: at})
		require.NoError(t, err)

		_, err = s.MarkEdited(ctx, 10, 1, "v2", at.Add(time.Minute))
		require.NoError(t, err)
		got, err := s.MarkEdited(ctx, 10, 1, "v3", at.Add(2*time.Minute))
		require.NoError(t, err)

		require.Equal(t, "v3", got.Text)
		require.True(t, got.IsEdited)
		require.Len(t, got.EditHistory, 2)
		require.Equal(t, "v1", got.EditHistory[0].OldText)
		require.Equal(t, "v2", got.EditHistory[1].OldText)
		require.True(t, got.EditHistory[1].EditedAt.Equal(at.Add(time.Minute)))
		require.Equal(t, "v2", got.PreviousText())

		stored, err := s.GetMessage(ctx, 10, 1)
		require.NoError(t, err)
		require.Equal(t, got.EditHistory, stored.EditHistory)

		_, err = s.MarkEdited(ctx, 10, 99, "x", at)
		require.ErrorIs(t, err, types.ErrNotFound)
	})

	t.Run("delete reports the first transition only", func(t *testing.T) {
		ctx := context.Background()
		s := open(t)
		_, err := s.Record(ctx, types.ShadowMessage{OwnerID: 10, MessageID: 1, Sender: types.Sender{ID: 20}, Kind: types.KindPhoto, Text: "cap", MediaFileID: "f", SentAt: at})
		require.NoError(t, err)

		msg, changed, err := s.MarkDeleted(ctx, 10, 1, at.Add(time.Hour))
		require.NoError(t, err)
		require.True(t, changed)
		require.True(t, msg.IsDeleted)
		require.Equal(t, "cap", msg.Text)

		msg, changed, err = s.MarkDeleted(ctx, 10, 1, at.Add(2*time.Hour))
		require.NoError(t, err)
		require.False(t, changed)
		require.True(t, msg.IsDeleted)
		require.True(t, msg.DeletedAt.Equal(at.Add(time.Hour)), "first deletion time is kept")

		require.NoError(t, s.SetNotificationMessageID(ctx, 10, 1, 555))
		stored, err := s.GetMessage(ctx, 10, 1)
		require.NoError(t, err)
		require.Equal(t, 555, *stored.NotificationMessageID)

		_, _, err = s.MarkDeleted(ctx, 10, 99, at)
		require.ErrorIs(t, err, types.ErrNotFound)
	})

	t.Run("list by owner newest first", func(t *testing.T) {
		ctx := context.Background()
		s := open(t)
		for i := int64(1); i <= 3; i++ {
			_, err := s.Record(ctx, types.ShadowMessage{OwnerID: 10, MessageID: i, Sender: types.Sender{ID: 20}, Text: "m", SentAt: at.Add(time.Duration(i) * time.Minute)})
			require.NoError(t, err)
		}
		list, err := s.ListByOwner(ctx, 10, 2)
		require.NoError(t, err)
		require.Len(t, list, 2)
		require.Equal(t, int64(3), list[0].MessageID)
		require.Equal(t, int64(2), list[1].MessageID)
	})

	t.Run("payment charge is recorded once", func(t *testing.T) {
		ctx := context.Background()
		s := open(t)
		p := types.Payment{UserID: 1, Provider: "stars", Currency: "XTR", TotalAmount: 49, TelegramPaymentCharge: "ch-1", CreatedAt: at}
		inserted, err := s.RecordPayment(ctx, p)
		require.NoError(t, err)
		require.True(t, inserted)
		inserted, err = s.RecordPayment(ctx, p)
		require.NoError(t, err)
		require.False(t, inserted)
	})
}
