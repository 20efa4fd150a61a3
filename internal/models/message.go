// internal/models/message.go
package models

import (
	"time"

	"github.com/google/uuid"
)

// Message is a published piece of text owned by exactly one Category.
type Message struct {
	ID        uuid.UUID `json:"id"`
	Body      string    `json:"message"`
	Category  Category  `json:"category"`
	CreatedAt time.Time `json:"createdAt"`
}
