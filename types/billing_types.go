package types

import (
	"context"
	"time"
)

type Payment struct {
	ID                    string
	UserID                int64
	Provider              string
	Currency              string
	TotalAmount           int64
	InvoicePayload        string
	TelegramPaymentCharge string
	ProviderPaymentCharge string
	CreatedAt             time.Time
}

type PaymentStore interface {
	// RecordPayment returns false when the charge id was already recorded.
	RecordPayment(ctx context.Context, p Payment) (inserted bool, err error)
}
