// Package detector turns business chat events into shadow store updates and
// owner notifications.
package detector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/BatmanBruc/bizwatch-bot/internal/metrics"
	"github.com/BatmanBruc/bizwatch-bot/types"
	"github.com/rs/zerolog"
)

const DefaultDeleteDelay = 500 * time.Millisecond

type Notifier interface {
	NotifyEdit(ctx context.Context, n types.EditNotification) (int, error)
	NotifyDelete(ctx context.Context, n types.DeleteNotification) (int, error)
}

type AccessChecker interface {
	CheckAccess(ctx context.Context, userID int64) bool
}

type Detector struct {
	messages types.MessageStore
	access   AccessChecker
	notifier Notifier
	delay    time.Duration
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
	log      zerolog.Logger
	metrics  *metrics.Metrics
}

type Option func(*Detector)

func WithDeleteDelay(d time.Duration) Option {
	return func(det *Detector) { det.delay = d }
}

func WithClock(now func() time.Time) Option {
	return func(det *Detector) { det.now = now }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(det *Detector) { det.metrics = m }
}

func New(messages types.MessageStore, access AccessChecker, notifier Notifier, log zerolog.Logger, opts ...Option) *Detector {
	d := &Detector{
		messages: messages,
		access:   access,
		notifier: notifier,
		delay:    DefaultDeleteDelay,
		now:      func() time.Time { return time.Now().UTC() },
		sleep:    sleepCtx,
		log:      log.With().Str("component", "detector").Logger(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Detector) allowed(ctx context.Context, ownerID int64) bool {
	if d.access.CheckAccess(ctx, ownerID) {
		return true
	}
	d.metrics.Denied()
	d.log.Debug().Int64("owner_id", ownerID).Msg("owner has no access, event dropped")
	return false
}

// OnNewMessage stores the message. Messages written by the owner are stored too.
func (d *Detector) OnNewMessage(ctx context.Context, ev types.NewMessage) (bool, error) {
	if !d.allowed(ctx, ev.OwnerID) {
		return false, types.ErrAccessDenied
	}
	inserted, err := d.messages.Record(ctx, types.ShadowMessage{
		MessageID:   ev.MessageID,
		OwnerID:     ev.OwnerID,
		Sender:      ev.Sender,
		Kind:        ev.Kind,
		Text:        ev.Text,
		MediaFileID: ev.MediaFileID,
		SentAt:      d.now(),
	})
	if err != nil {
		return false, err
	}
	if inserted {
		d.metrics.MessageStored()
	}
	return inserted, nil
}

// OnEdit records the edit and notifies the owner when the counterpart edited.
// It returns the notification that was sent, or nil.
func (d *Detector) OnEdit(ctx context.Context, ev types.MessageEdited) (*types.EditNotification, error) {
	if !d.allowed(ctx, ev.OwnerID) {
		return nil, types.ErrAccessDenied
	}
	current, err := d.messages.GetMessage(ctx, ev.OwnerID, ev.MessageID)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	// re-sent edits for reactions and media changes carry the same text
	if current.Text == ev.NewText {
		return nil, nil
	}

	at := d.now()
	updated, err := d.messages.MarkEdited(ctx, ev.OwnerID, ev.MessageID, ev.NewText, at)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if updated.SelfAuthored() {
		return nil, nil
	}

	n := types.EditNotification{
		OwnerID:      ev.OwnerID,
		MessageID:    ev.MessageID,
		Sender:       updated.Sender,
		Kind:         updated.Kind,
		PreviousText: updated.PreviousText(),
		NewText:      updated.Text,
		SentAt:       updated.SentAt,
		EditedAt:     at,
	}
	if _, err := d.notifier.NotifyEdit(ctx, n); err != nil {
		d.metrics.NotificationFailed("edit")
		return nil, fmt.Errorf("notify edit %d/%d: %w", ev.OwnerID, ev.MessageID, err)
	}
	d.metrics.NotificationSent("edit")
	return &n, nil
}

// OnDelete marks every known message deleted and notifies the owner once per
// counterpart message. Notifications are spaced by the delete delay.
func (d *Detector) OnDelete(ctx context.Context, ev types.MessagesDeleted) ([]types.DeleteNotification, error) {
	if !d.allowed(ctx, ev.OwnerID) {
		return nil, types.ErrAccessDenied
	}
	sent := make([]types.DeleteNotification, 0, len(ev.MessageIDs))
	attempts := 0
	for _, id := range ev.MessageIDs {
		at := d.now()
		msg, changed, err := d.messages.MarkDeleted(ctx, ev.OwnerID, id, at)
		if err != nil {
			if !errors.Is(err, types.ErrNotFound) {
				d.log.Error().Err(err).Int64("owner_id", ev.OwnerID).Int64("message_id", id).Msg("mark deleted failed")
			}
			continue
		}
		if !changed || msg.SelfAuthored() {
			continue
		}

		if attempts > 0 {
			if err := d.sleep(ctx, d.delay); err != nil {
				return sent, err
			}
		}
		attempts++

		n := types.DeleteNotification{
			OwnerID:     ev.OwnerID,
			MessageID:   id,
			Sender:      msg.Sender,
			Kind:        msg.Kind,
			Text:        msg.Text,
			MediaFileID: msg.MediaFileID,
			SentAt:      msg.SentAt,
			DeletedAt:   at,
		}
		notificationID, err := d.notifier.NotifyDelete(ctx, n)
		if err != nil {
			d.metrics.NotificationFailed("delete")
			d.log.Error().Err(err).Int64("owner_id", ev.OwnerID).Int64("message_id", id).Msg("delete notification failed")
			continue
		}
		d.metrics.NotificationSent("delete")
		sent = append(sent, n)

		if err := d.messages.SetNotificationMessageID(ctx, ev.OwnerID, id, notificationID); err != nil {
			d.log.Warn().Err(err).Int64("message_id", id).Msg("store notification id")
		}
	}
	return sent, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
