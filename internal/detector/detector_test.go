package detector

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/BatmanBruc/bizwatch-bot/store"
	"github.com/BatmanBruc/bizwatch-bot/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const (
	owner       int64 = 100
	counterpart int64 = 200
)

type fakeAccess map[int64]bool

func (f fakeAccess) CheckAccess(_ context.Context, userID int64) bool {
	return f[userID]
}

type fakeNotifier struct {
	mu      sync.Mutex
	edits   []types.EditNotification
	deletes []types.DeleteNotification
	nextID  int
	fail    error
	// failDeletes makes that many delete sends fail before succeeding
	failDeletes int
}

func (f *fakeNotifier) NotifyEdit(_ context.Context, n types.EditNotification) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return 0, f.fail
	}
	f.edits = append(f.edits, n)
	f.nextID++
	return f.nextID, nil
}

func (f *fakeNotifier) NotifyDelete(_ context.Context, n types.DeleteNotification) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return 0, f.fail
	}
	if f.failDeletes > 0 {
		f.failDeletes--
		return 0, errors.New("too many requests")
	}
	f.deletes = append(f.deletes, n)
	f.nextID++
	return f.nextID, nil
}

type harness struct {
	det      *Detector
	store    *store.MemoryStore
	notifier *fakeNotifier
	sleeps   []time.Duration
	clock    time.Time
}

func newHarness(t *testing.T, access fakeAccess) *harness {
	t.Helper()
	h := &harness{
		store:    store.NewMemoryStore(),
		notifier: &fakeNotifier{nextID: 900},
		clock:    time.Date(2026, 2, 14, 8, 0, 0, 0, time.UTC),
	}
	h.det = New(h.store, access, h.notifier, zerolog.Nop(),
		WithClock(func() time.Time { return h.clock }))
	h.det.sleep = func(_ context.Context, d time.Duration) error {
		h.sleeps = append(h.sleeps, d)
		return nil
	}
	return h
}

func (h *harness) send(t *testing.T, id int64, from int64, text string) {
	t.Helper()
	inserted, err := h.det.OnNewMessage(context.Background(), types.NewMessage{
		OwnerID:   owner,
		MessageID: id,
		Sender:    types.Sender{ID: from, Name: fmt.Sprintf("user%d", from)},
		Kind:      types.KindText,
		Text:      text,
	})
	require.NoError(t, err)
	require.True(t, inserted)
}

func TestEditHelloWorldEndToEnd(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, fakeAccess{owner: true})
	sentAt := h.clock
	h.send(t, 1, counterpart, "hello")

	h.clock = h.clock.Add(time.Minute)
	n, err := h.det.OnEdit(ctx, types.MessageEdited{OwnerID: owner, MessageID: 1, NewText: "hello world"})
	require.NoError(t, err)
	require.NotNil(t, n)

	msg, err := h.store.GetMessage(ctx, owner, 1)
	require.NoError(t, err)
	require.Equal(t, "hello world", msg.Text)
	require.True(t, msg.IsEdited)
	require.Equal(t, []types.EditRecord{{OldText: "hello", EditedAt: h.clock}}, msg.EditHistory)

	require.Len(t, h.notifier.edits, 1)
	got := h.notifier.edits[0]
	require.Equal(t, "hello", got.PreviousText)
	require.Equal(t, "hello world", got.NewText)
	require.Equal(t, counterpart, got.Sender.ID)
	require.Equal(t, sentAt, got.SentAt)
}

func TestEditHistoryChain(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, fakeAccess{owner: true})
	h.send(t, 1, counterpart, "v0")

	for i := 1; i <= 4; i++ {
		_, err := h.det.OnEdit(ctx, types.MessageEdited{OwnerID: owner, MessageID: 1, NewText: fmt.Sprintf("v%d", i)})
		require.NoError(t, err)
	}

	msg, err := h.store.GetMessage(ctx, owner, 1)
	require.NoError(t, err)
	require.Len(t, msg.EditHistory, 4)
	for i, rec := range msg.EditHistory {
		require.Equal(t, fmt.Sprintf("v%d", i), rec.OldText)
	}
	require.Equal(t, "v4", msg.Text)
	require.Len(t, h.notifier.edits, 4)
	require.Equal(t, "v3", h.notifier.edits[3].PreviousText)
}

func TestSelfAuthoredChangesAreStoredSilently(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, fakeAccess{owner: true})
	h.send(t, 1, owner, "mine")
	h.send(t, 2, owner, "also mine")

	n, err := h.det.OnEdit(ctx, types.MessageEdited{OwnerID: owner, MessageID: 1, NewText: "mine, edited"})
	require.NoError(t, err)
	require.Nil(t, n)

	sent, err := h.det.OnDelete(ctx, types.MessagesDeleted{OwnerID: owner, MessageIDs: []int64{2}})
	require.NoError(t, err)
	require.Empty(t, sent)

	edited, err := h.store.GetMessage(ctx, owner, 1)
	require.NoError(t, err)
	require.True(t, edited.IsEdited)
	deleted, err := h.store.GetMessage(ctx, owner, 2)
	require.NoError(t, err)
	require.True(t, deleted.IsDeleted)

	require.Empty(t, h.notifier.edits)
	require.Empty(t, h.notifier.deletes)
}

func TestUnknownMessagesAreIgnored(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, fakeAccess{owner: true})

	n, err := h.det.OnEdit(ctx, types.MessageEdited{OwnerID: owner, MessageID: 42, NewText: "x"})
	require.NoError(t, err)
	require.Nil(t, n)
	sent, err := h.det.OnDelete(ctx, types.MessagesDeleted{OwnerID: owner, MessageIDs: []int64{42, 43}})
	require.NoError(t, err)
	require.Empty(t, sent)

	list, err := h.store.ListByOwner(ctx, owner, 0)
	require.NoError(t, err)
	require.Empty(t, list)
	require.Empty(t, h.notifier.edits)
	require.Empty(t, h.notifier.deletes)
}

func TestSameTextEditIsIgnored(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, fakeAccess{owner: true})
	h.send(t, 1, counterpart, "photo caption")

	n, err := h.det.OnEdit(ctx, types.MessageEdited{OwnerID: owner, MessageID: 1, NewText: "photo caption"})
	require.NoError(t, err)
	require.Nil(t, n)
	msg, err := h.store.GetMessage(ctx, owner, 1)
	require.NoError(t, err)
	require.False(t, msg.IsEdited)
	require.Empty(t, h.notifier.edits)
}

func TestNoAccessDropsWholeBatch(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, fakeAccess{owner: true})
	h.send(t, 1, counterpart, "hi")

	denied := New(h.store, fakeAccess{}, h.notifier, zerolog.Nop())

	_, err := denied.OnNewMessage(ctx, types.NewMessage{OwnerID: owner, MessageID: 2, Sender: types.Sender{ID: counterpart}})
	require.ErrorIs(t, err, types.ErrAccessDenied)
	_, err = denied.OnEdit(ctx, types.MessageEdited{OwnerID: owner, MessageID: 1, NewText: "changed"})
	require.ErrorIs(t, err, types.ErrAccessDenied)
	_, err = denied.OnDelete(ctx, types.MessagesDeleted{OwnerID: owner, MessageIDs: []int64{1}})
	require.ErrorIs(t, err, types.ErrAccessDenied)

	msg, err := h.store.GetMessage(ctx, owner, 1)
	require.NoError(t, err)
	require.Equal(t, "hi", msg.Text)
	require.False(t, msg.IsEdited)
	require.False(t, msg.IsDeleted)
	_, err = h.store.GetMessage(ctx, owner, 2)
	require.ErrorIs(t, err, types.ErrNotFound)
}

func TestDeleteBatchIsPacedAndNotifiesOnce(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, fakeAccess{owner: true})
	h.send(t, 1, counterpart, "one")
	h.send(t, 2, owner, "two")
	h.send(t, 3, counterpart, "three")
	h.send(t, 4, counterpart, "four")

	batch := types.MessagesDeleted{OwnerID: owner, MessageIDs: []int64{1, 2, 3, 99, 4}}
	sent, err := h.det.OnDelete(ctx, batch)
	require.NoError(t, err)
	require.Len(t, sent, 3)
	require.Equal(t, []time.Duration{DefaultDeleteDelay, DefaultDeleteDelay}, h.sleeps)
	require.Equal(t, "three", h.notifier.deletes[1].Text)

	msg, err := h.store.GetMessage(ctx, owner, 1)
	require.NoError(t, err)
	require.True(t, msg.IsDeleted)
	require.Equal(t, "one", msg.Text, "deleted text is kept")
	require.NotNil(t, msg.NotificationMessageID)
	require.Equal(t, 901, *msg.NotificationMessageID)

	// redelivery of the same update
	sent, err = h.det.OnDelete(ctx, batch)
	require.NoError(t, err)
	require.Empty(t, sent)
	require.Len(t, h.notifier.deletes, 3)
}

func TestDeletePacingHonoursCancellation(t *testing.T) {
	h := newHarness(t, fakeAccess{owner: true})
	h.det.sleep = sleepCtx
	h.det.delay = time.Hour
	h.send(t, 1, counterpart, "a")
	h.send(t, 2, counterpart, "b")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	sent, err := h.det.OnDelete(ctx, types.MessagesDeleted{OwnerID: owner, MessageIDs: []int64{1, 2}})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Len(t, sent, 1)
}

func TestNotifierFailureIsReported(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, fakeAccess{owner: true})
	h.send(t, 1, counterpart, "a")
	h.send(t, 2, counterpart, "b")
	h.notifier.fail = errors.New("bot blocked")

	_, err := h.det.OnEdit(ctx, types.MessageEdited{OwnerID: owner, MessageID: 1, NewText: "a2"})
	require.Error(t, err)

	sent, err := h.det.OnDelete(ctx, types.MessagesDeleted{OwnerID: owner, MessageIDs: []int64{2}})
	require.NoError(t, err)
	require.Empty(t, sent)
	msg, err := h.store.GetMessage(ctx, owner, 2)
	require.NoError(t, err)
	require.True(t, msg.IsDeleted)
}

func TestDeletePacingCountsFailedSends(t *testing.T) {
	h := newHarness(t, fakeAccess{owner: true})
	h.send(t, 1, counterpart, "a")
	h.send(t, 2, counterpart, "b")
	h.send(t, 3, counterpart, "c")
	h.notifier.failDeletes = 1

	sent, err := h.det.OnDelete(context.Background(), types.MessagesDeleted{OwnerID: owner, MessageIDs: []int64{1, 2, 3}})
	require.NoError(t, err)
	require.Len(t, sent, 2)
	require.Equal(t, []time.Duration{DefaultDeleteDelay, DefaultDeleteDelay}, h.sleeps)
}

func TestDuplicateNewMessageKeepsFirstPayload(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, fakeAccess{owner: true})
	h.send(t, 1, counterpart, "first")

	inserted, err := h.det.OnNewMessage(ctx, types.NewMessage{OwnerID: owner, MessageID: 1, Sender: types.Sender{ID: counterpart}, Text: "second"})
	require.NoError(t, err)
	require.False(t, inserted)
	msg, err := h.store.GetMessage(ctx, owner, 1)
	require.NoError(t, err)
	require.Equal(t, "first", msg.Text)
}

func TestEditOfMediaCaptionCarriesKind(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, fakeAccess{owner: true})
	_, err := h.det.OnNewMessage(ctx, types.NewMessage{
		OwnerID:     owner,
		MessageID:   5,
		Sender:      types.Sender{ID: counterpart},
		Kind:        types.KindPhoto,
		Text:        "sunset",
		MediaFileID: "photo-1",
	})
	require.NoError(t, err)

	n, err := h.det.OnEdit(ctx, types.MessageEdited{OwnerID: owner, MessageID: 5, NewText: "sunrise"})
	require.NoError(t, err)
	require.NotNil(t, n)
	require.Equal(t, types.KindPhoto, n.Kind)
	require.Equal(t, "sunset", n.PreviousText)
}
