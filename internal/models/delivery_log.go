// internal/models/delivery_log.go
package models

import (
	"time"

	"github.com/google/uuid"
)

// DeliveryLog is the append-only record of one delivery attempt.
type DeliveryLog struct {
	ID          uuid.UUID   `json:"id"`
	Time        time.Time   `json:"time"`
	UserID      uuid.UUID   `json:"userId"`
	ChannelID   uuid.UUID   `json:"channelId"`
	ChannelKind ChannelKind `json:"channelType"`
	MessageID   uuid.UUID   `json:"messageId"`
	Detail      string      `json:"detail"`
}

// DeliveryLogFilter narrows a delivery log listing. Zero values match everything.
type DeliveryLogFilter struct {
	MessageID   uuid.UUID
	UserID      uuid.UUID
	ChannelKind ChannelKind
	Limit       uint64
}
