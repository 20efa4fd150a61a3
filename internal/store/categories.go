// internal/store/categories.go
package store

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"

	"notification-dispatch/internal/common/errors"
	"notification-dispatch/internal/common/validation"
	"notification-dispatch/internal/models"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
)

var categoryColumns = []string{"id", "name", "description"}

// CreateCategory inserts c, assigning an id when c.ID is zero.
func (s *Store) CreateCategory(ctx context.Context, c models.Category) (models.Category, error) {
	if vr := validation.ValidateCategory(c); !vr.Valid {
		return models.Category{}, errors.NewInvalidInputError(vr.Error())
	}
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}

	query, args, err := psql.
		Insert("categories").
		Columns(categoryColumns...).
		Values(c.ID, c.Name, c.Description).
		ToSql()
	if err != nil {
		return models.Category{}, fmt.Errorf("failed to build category insert: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return models.Category{}, fmt.Errorf("failed to insert category: %w", err)
	}
	return c, nil
}

// FindCategory returns the category or a NOT_FOUND error.
func (s *Store) FindCategory(ctx context.Context, id uuid.UUID) (models.Category, error) {
	query, args, err := psql.
		Select(categoryColumns...).
		From("categories").
		Where(sq.Eq{"id": id.String()}).
		ToSql()
	if err != nil {
		return models.Category{}, fmt.Errorf("failed to build category query: %w", err)
	}

	var c models.Category
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&c.ID, &c.Name, &c.Description)
	if stderrors.Is(err, sql.ErrNoRows) {
		return models.Category{}, errors.NewNotFoundError("category", id.String())
	}
	if err != nil {
		return models.Category{}, fmt.Errorf("failed to query category: %w", err)
	}
	return c, nil
}

// ListCategories returns every category ordered by name.
func (s *Store) ListCategories(ctx context.Context) ([]models.Category, error) {
	query, args, err := psql.
		Select(categoryColumns...).
		From("categories").
		OrderBy("name", "id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build category listing: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	defer rows.Close()

	var out []models.Category
	for rows.Next() {
		var c models.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Description); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// DeleteCategory removes the category; its messages and subscriptions go with it.
func (s *Store) DeleteCategory(ctx context.Context, id uuid.UUID) error {
	query, args, err := psql.
		Delete("categories").
		Where(sq.Eq{"id": id.String()}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build category delete: %w", err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to delete category: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.NewNotFoundError("category", id.String())
	}
	return nil
}
