package types

import (
	"context"
	"time"
)

type EditRecord struct {
	OldText  string    `json:"oldMessageText"`
	EditedAt time.Time `json:"editedAt"`
}

type Sender struct {
	ID       int64
	Name     string
	Username string
}

// ShadowMessage is the locally stored copy of a business chat message.
type ShadowMessage struct {
	MessageID             int64
	OwnerID               int64
	Sender                Sender
	Kind                  PayloadKind
	Text                  string
	MediaFileID           string
	IsEdited              bool
	IsDeleted             bool
	EditHistory           []EditRecord
	SentAt                time.Time
	EditedAt              *time.Time
	DeletedAt             *time.Time
	NotificationMessageID *int
}

func (m ShadowMessage) SelfAuthored() bool {
	return m.Sender.ID == m.OwnerID
}

// PreviousText is the text the message had right before its latest edit.
func (m ShadowMessage) PreviousText() string {
	if n := len(m.EditHistory); n > 0 {
		return m.EditHistory[n-1].OldText
	}
	return m.Text
}

func (m ShadowMessage) Clone() ShadowMessage {
	out := m
	out.EditHistory = append([]EditRecord(nil), m.EditHistory...)
	if m.EditedAt != nil {
		v := *m.EditedAt
		out.EditedAt = &v
	}
	if m.DeletedAt != nil {
		v := *m.DeletedAt
		out.DeletedAt = &v
	}
	if m.NotificationMessageID != nil {
		v := *m.NotificationMessageID
		out.NotificationMessageID = &v
	}
	return out
}

type MessageStore interface {
	// Record stores msg unless a copy with the same owner and id exists.
	Record(ctx context.Context, msg ShadowMessage) (inserted bool, err error)
	GetMessage(ctx context.Context, ownerID, messageID int64) (*ShadowMessage, error)
	MarkEdited(ctx context.Context, ownerID, messageID int64, newText string, at time.Time) (*ShadowMessage, error)
	MarkDeleted(ctx context.Context, ownerID, messageID int64, at time.Time) (msg *ShadowMessage, changed bool, err error)
	SetNotificationMessageID(ctx context.Context, ownerID, messageID int64, notificationID int) error
	ListByOwner(ctx context.Context, ownerID int64, limit int) ([]ShadowMessage, error)
}

// ConnectionCache maps business connection ids to the owning user.
type ConnectionCache interface {
	GetOwner(ctx context.Context, connectionID string) (ownerID int64, ok bool, err error)
	SetOwner(ctx context.Context, connectionID string, ownerID int64) error
	Forget(ctx context.Context, connectionID string) error
}
