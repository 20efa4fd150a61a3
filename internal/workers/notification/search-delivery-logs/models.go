package searchdeliverylogs

import "notification-dispatch/internal/models"

type Input struct {
	MessageID   string `json:"messageId,omitempty"`
	UserID      string `json:"userId,omitempty"`
	ChannelType string `json:"channelType,omitempty"`
	Query       string `json:"query,omitempty"`
	From        int    `json:"from,omitempty"`
	Limit       int    `json:"limit,omitempty"`
}

type Output struct {
	Logs  []models.DeliveryLog `json:"logs"`
	Total int64                `json:"total"`
	Took  int64                `json:"took"` // milliseconds
}
