package events

import (
	"context"
	"time"
)

// Transfer event types.
const (
	TypePurchaseCompleted = "purchase.completed"
	TypeGiftSent          = "gift.sent"
)

// Event describes a committed balance transfer.
type Event struct {
	Type           string    `json:"type"`
	RecordID       string    `json:"recordId"`
	VideoID        string    `json:"videoId"`
	ActorID        string    `json:"actorId"`
	CounterpartyID string    `json:"counterpartyId"`
	Amount         int64     `json:"amount"`
	OccurredAt     time.Time `json:"occurredAt"`
}

// Publisher delivers events to an external system.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// NopPublisher discards every event.
type NopPublisher struct{}

// Publish implements Publisher.
func (NopPublisher) Publish(context.Context, Event) error { return nil }
