// internal/models/category.go
package models

import "github.com/google/uuid"

const (
	CategoryNameMaxLength        = 30
	CategoryDescriptionMaxLength = 50
)

// Category groups messages and is the unit users subscribe to.
type Category struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
}
