// internal/store/users.go
package store

import (
	"context"
	"fmt"

	"notification-dispatch/internal/common/errors"
	"notification-dispatch/internal/common/validation"
	"notification-dispatch/internal/models"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

// CreateUser inserts the user row only; subscriptions and channels are
// attached with Subscribe and AttachChannel.
func (s *Store) CreateUser(ctx context.Context, u models.User) (models.User, error) {
	if vr := validation.ValidateUser(u); !vr.Valid {
		return models.User{}, errors.NewInvalidInputError(vr.Error())
	}
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}

	query, args, err := psql.
		Insert("users").
		Columns("id", "name", "email", "phone_number").
		Values(u.ID, u.Name, u.Email, u.PhoneNumber).
		ToSql()
	if err != nil {
		return models.User{}, fmt.Errorf("failed to build user insert: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return models.User{}, fmt.Errorf("failed to insert user: %w", err)
	}
	u.Categories = nil
	u.Channels = nil
	return u, nil
}

// Subscribe adds categoryID to the user's subscription set. Repeating it is a no-op.
func (s *Store) Subscribe(ctx context.Context, userID, categoryID uuid.UUID) error {
	query, args, err := psql.
		Insert("user_categories").
		Columns("user_id", "category_id").
		Values(userID, categoryID).
		Suffix("ON CONFLICT DO NOTHING").
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build subscription insert: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to subscribe user %s to %s: %w", userID, categoryID, err)
	}
	return nil
}

// UserCategories returns the ids of the categories userID is subscribed to.
func (s *Store) UserCategories(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	query, args, err := psql.
		Select("category_id").
		From("user_categories").
		Where(sq.Eq{"user_id": userID.String()}).
		OrderBy("category_id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build subscription query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query subscriptions: %w", err)
	}
	defer rows.Close()

	var out []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan subscription: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// FindUsersSubscribedTo returns the subscribers of categoryID ordered by id,
// each with its subscription set and channels (ordered by id) materialized.
func (s *Store) FindUsersSubscribedTo(ctx context.Context, categoryID uuid.UUID) ([]models.User, error) {
	query, args, err := psql.
		Select(
			"u.id", "u.name", "u.email", "u.phone_number",
			"ARRAY(SELECT x.category_id::text FROM user_categories x WHERE x.user_id = u.id ORDER BY x.category_id) AS categories",
		).
		From("users u").
		Join("user_categories uc ON uc.user_id = u.id").
		Where(sq.Eq{"uc.category_id": categoryID.String()}).
		OrderBy("u.id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build subscriber query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query subscribers: %w", err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var (
			u          models.User
			categories []string
		)
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &u.PhoneNumber, pq.Array(&categories)); err != nil {
			return nil, fmt.Errorf("failed to scan subscriber: %w", err)
		}
		for _, raw := range categories {
			id, err := uuid.Parse(raw)
			if err != nil {
				return nil, fmt.Errorf("invalid category id %q: %w", raw, err)
			}
			u.Categories = append(u.Categories, id)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate subscribers: %w", err)
	}
	if len(users) == 0 {
		return nil, nil
	}

	ids := make([]string, len(users))
	for i, u := range users {
		ids[i] = u.ID.String()
	}
	channels, err := s.channelsByUser(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range users {
		users[i].Channels = channels[users[i].ID]
	}
	return users, nil
}
