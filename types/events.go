package types

import "time"

// Inbound events produced by the transport layer.

type NewMessage struct {
	OwnerID     int64
	MessageID   int64
	Sender      Sender
	Kind        PayloadKind
	Text        string
	MediaFileID string
}

type MessageEdited struct {
	OwnerID   int64
	MessageID int64
	NewText   string
}

type MessagesDeleted struct {
	OwnerID    int64
	MessageIDs []int64
}

type PaymentCompleted struct {
	UserID  int64
	Payment Payment
}

type ReferralStart struct {
	NewUserID  int64
	ReferrerID int64
}

type ChannelBonusCheck struct {
	UserID     int64
	Subscribed bool
}

// Outbound instructions consumed by the notification layer.

type EditNotification struct {
	OwnerID      int64
	MessageID    int64
	Sender       Sender
	Kind         PayloadKind
	PreviousText string
	NewText      string
	SentAt       time.Time
	EditedAt     time.Time
}

type DeleteNotification struct {
	OwnerID     int64
	MessageID   int64
	Sender      Sender
	Kind        PayloadKind
	Text        string
	MediaFileID string
	SentAt      time.Time
	DeletedAt   time.Time
}

type BonusGranted struct {
	UserID    int64
	Days      int
	Tier      Tier
	NewExpiry time.Time
	// ReferralCount is set for referral threshold bonuses.
	ReferralCount int
}

func (b BonusGranted) Eternal() bool {
	return b.Days < 0
}
