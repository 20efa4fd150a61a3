// internal/models/user.go
package models

import (
	"sort"

	"github.com/google/uuid"
)

const (
	UserNameMaxLength  = 35
	UserEmailMaxLength = 35
)

// User is a notification recipient. Categories and Channels are sets; the
// same Channel may be shared by several users.
type User struct {
	ID          uuid.UUID   `json:"id"`
	Name        string      `json:"name"`
	Email       string      `json:"email"`
	PhoneNumber string      `json:"phoneNumber"`
	Categories  []uuid.UUID `json:"subscribed"`
	Channels    []Channel   `json:"channels"`
}

// IsSubscribedTo reports whether the user's subscription set contains categoryID.
func (u User) IsSubscribedTo(categoryID uuid.UUID) bool {
	for _, id := range u.Categories {
		if id == categoryID {
			return true
		}
	}
	return false
}

// DistinctChannels returns the user's channels ordered by id with duplicates removed.
func (u User) DistinctChannels() []Channel {
	seen := make(map[uuid.UUID]struct{}, len(u.Channels))
	out := make([]Channel, 0, len(u.Channels))
	for _, ch := range u.Channels {
		if _, dup := seen[ch.ID]; dup {
			continue
		}
		seen[ch.ID] = struct{}{}
		out = append(out, ch)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}
