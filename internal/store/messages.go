// internal/store/messages.go
package store

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"

	"notification-dispatch/internal/common/errors"
	"notification-dispatch/internal/models"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
)

// CreateMessage stores a message under an existing category. A missing
// category yields NOT_FOUND.
func (s *Store) CreateMessage(ctx context.Context, categoryID uuid.UUID, body string) (models.Message, error) {
	if body == "" {
		return models.Message{}, errors.NewInvalidInputError("message body is empty")
	}

	category, err := s.FindCategory(ctx, categoryID)
	if err != nil {
		return models.Message{}, err
	}

	msg := models.Message{
		ID:        uuid.New(),
		Body:      body,
		Category:  category,
		CreatedAt: s.now(),
	}

	query, args, err := psql.
		Insert("messages").
		Columns("id", "body", "category_id", "created_at").
		Values(msg.ID, msg.Body, category.ID, msg.CreatedAt).
		ToSql()
	if err != nil {
		return models.Message{}, fmt.Errorf("failed to build message insert: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return models.Message{}, fmt.Errorf("failed to insert message: %w", err)
	}
	return msg, nil
}

// GetMessage loads a message together with its category.
func (s *Store) GetMessage(ctx context.Context, id uuid.UUID) (models.Message, error) {
	query, args, err := psql.
		Select("m.id", "m.body", "m.created_at", "c.id", "c.name", "c.description").
		From("messages m").
		Join("categories c ON c.id = m.category_id").
		Where(sq.Eq{"m.id": id.String()}).
		ToSql()
	if err != nil {
		return models.Message{}, fmt.Errorf("failed to build message query: %w", err)
	}

	var m models.Message
	err = s.db.QueryRowContext(ctx, query, args...).Scan(
		&m.ID, &m.Body, &m.CreatedAt,
		&m.Category.ID, &m.Category.Name, &m.Category.Description,
	)
	if stderrors.Is(err, sql.ErrNoRows) {
		return models.Message{}, errors.NewNotFoundError("message", id.String())
	}
	if err != nil {
		return models.Message{}, fmt.Errorf("failed to query message: %w", err)
	}
	return m, nil
}
