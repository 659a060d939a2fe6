package model

import (
	"time"

	"github.com/google/uuid"
)

// NotificationKind описывает тип уведомления по итогам присуждения.
type NotificationKind string

const (
	NotificationAwarded     NotificationKind = "award"
	NotificationNotSelected NotificationKind = "not_selected"
)

// OutboxStatus описывает статус доставки уведомления из outbox.
type OutboxStatus string

const (
	OutboxStatusPending   OutboxStatus = "pending"
	OutboxStatusDelivered OutboxStatus = "delivered"
	OutboxStatusFailed    OutboxStatus = "failed"
)

// Notification описывает уведомление пользователю, сохраняемое в outbox в той же транзакции,
// что и изменение состояния, которое его породило.
type Notification struct {
	ID        uuid.UUID        `json:"id"`
	UserID    int64            `json:"user_id"`
	Kind      NotificationKind `json:"kind"`
	Title     string           `json:"title"`
	Body      string           `json:"body"`
	TenderID  int64            `json:"tender_id"`
	BidID     int64            `json:"bid_id"`
	CreatedAt time.Time        `json:"created_at"`

	Attempts int `json:"-"`
}

// AuditEntry описывает запись журнала действий.
type AuditEntry struct {
	ActorID   int64
	Action    string
	TenderID  int64
	BidID     int64
	VendorID  int64
	Amount    float64
	Details   string
	CreatedAt time.Time
}

// AuditActionTenderAwarded обозначает действие присуждения тендера в журнале.
const AuditActionTenderAwarded = "tender.awarded"

// AuditActionTenderClosed обозначает действие ручного закрытия тендера в журнале.
const AuditActionTenderClosed = "tender.closed"
