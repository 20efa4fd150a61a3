// internal/store/seed.go
package store

import (
	"context"
	"fmt"

	"notification-dispatch/internal/models"

	"github.com/google/uuid"
)

// Fixed ids of the default categories.
var (
	SportCategoryID   = uuid.MustParse("b0b691d0-4e2f-4b47-8e61-579c72e4c4f2")
	FinanceCategoryID = uuid.MustParse("6f7e6f3b-e9b2-4e44-9f3b-1ec25d19aa8e")
	MoviesCategoryID  = uuid.MustParse("58d3bea3-d5e0-4b47-9ac4-27836e73e6eb")
)

const defaultCategoryDescription = "Default Description"

var seedNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("notification-dispatch/seed"))

// SeedID derives a stable id for seeded rows so reseeding never duplicates them.
func SeedID(name string) uuid.UUID {
	return uuid.NewSHA1(seedNamespace, []byte(name))
}

// DefaultCategories returns sport, Finance and Movies.
func DefaultCategories() []models.Category {
	return []models.Category{
		{ID: SportCategoryID, Name: "sport", Description: defaultCategoryDescription},
		{ID: FinanceCategoryID, Name: "Finance", Description: defaultCategoryDescription},
		{ID: MoviesCategoryID, Name: "Movies", Description: defaultCategoryDescription},
	}
}

// DemoUsers returns the demo subscribers: Josh (every category, one SMS
// channel), Harrison (sport and Movies, e-mail and SMS) and Dan (nothing).
func DemoUsers() []models.User {
	const phone = "454545"
	return []models.User{
		{
			ID:          SeedID("user/josh"),
			Name:        "Josh",
			Email:       "josh@mal.com",
			PhoneNumber: phone,
			Categories:  []uuid.UUID{SportCategoryID, FinanceCategoryID, MoviesCategoryID},
			Channels: []models.Channel{
				models.NewSMSChannel(SeedID("channel/josh/sms"), "description", phone),
			},
		},
		{
			ID:          SeedID("user/harrison"),
			Name:        "Harrison",
			Email:       "harrison@mal.com",
			PhoneNumber: phone,
			Categories:  []uuid.UUID{SportCategoryID, MoviesCategoryID},
			Channels: []models.Channel{
				models.NewEmailChannel(SeedID("channel/harrison/email"), "description", "harrison@mal.com"),
				models.NewSMSChannel(SeedID("channel/harrison/sms"), "description", phone),
			},
		},
		{
			ID:          SeedID("user/dan"),
			Name:        "Dan",
			Email:       "dan@mal.com",
			PhoneNumber: phone,
		},
	}
}

// SeedResult counts the rows a Seed call actually inserted.
type SeedResult struct {
	Categories int64 `json:"categories"`
	Users      int64 `json:"users"`
	Channels   int64 `json:"channels"`
}

// Seed inserts the default categories and demo users in one transaction.
// Existing rows are left untouched, so running it again inserts nothing.
func (s *Store) Seed(ctx context.Context) (SeedResult, error) {
	var result SeedResult

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return result, fmt.Errorf("failed to begin seed transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	exec := func(query string, args []interface{}, buildErr error) (int64, error) {
		if buildErr != nil {
			return 0, buildErr
		}
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return 0, err
		}
		return res.RowsAffected()
	}

	for _, c := range DefaultCategories() {
		query, args, err := psql.
			Insert("categories").
			Columns(categoryColumns...).
			Values(c.ID, c.Name, c.Description).
			Suffix("ON CONFLICT DO NOTHING").
			ToSql()
		n, err := exec(query, args, err)
		if err != nil {
			return result, fmt.Errorf("failed to seed category %s: %w", c.Name, err)
		}
		result.Categories += n
	}

	for _, u := range DemoUsers() {
		query, args, err := psql.
			Insert("users").
			Columns("id", "name", "email", "phone_number").
			Values(u.ID, u.Name, u.Email, u.PhoneNumber).
			Suffix("ON CONFLICT DO NOTHING").
			ToSql()
		n, err := exec(query, args, err)
		if err != nil {
			return result, fmt.Errorf("failed to seed user %s: %w", u.Name, err)
		}
		result.Users += n

		for _, categoryID := range u.Categories {
			query, args, err := psql.
				Insert("user_categories").
				Columns("user_id", "category_id").
				Values(u.ID, categoryID).
				Suffix("ON CONFLICT DO NOTHING").
				ToSql()
			if _, err := exec(query, args, err); err != nil {
				return result, fmt.Errorf("failed to seed subscription of %s: %w", u.Name, err)
			}
		}

		for _, ch := range u.Channels {
			phone, email, token := addressColumns(ch)
			query, args, err := psql.
				Insert("channels").
				Columns("id", "type", "description", "phone_number", "email_address", "device_token").
				Values(ch.ID, string(ch.Kind), ch.Description, phone, email, token).
				Suffix("ON CONFLICT DO NOTHING").
				ToSql()
			n, err := exec(query, args, err)
			if err != nil {
				return result, fmt.Errorf("failed to seed channel of %s: %w", u.Name, err)
			}
			result.Channels += n

			query, args, err = psql.
				Insert("user_channels").
				Columns("user_id", "channel_id").
				Values(u.ID, ch.ID).
				Suffix("ON CONFLICT DO NOTHING").
				ToSql()
			if _, err := exec(query, args, err); err != nil {
				return result, fmt.Errorf("failed to seed channel link of %s: %w", u.Name, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return result, fmt.Errorf("failed to commit seed: %w", err)
	}

	s.logger.Info("seed applied", map[string]interface{}{
		"categories": result.Categories,
		"users":      result.Users,
		"channels":   result.Channels,
	})
	return result, nil
}
