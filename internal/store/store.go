// Package store is the PostgreSQL repository for categories, messages, users,
// channels and delivery logs.
package store

import (
	"database/sql"
	"time"

	"notification-dispatch/internal/common/logger"

	sq "github.com/Masterminds/squirrel"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// Store reads the subscription graph and appends delivery logs. It holds no
// mutable state besides the pool and is safe for concurrent use.
type Store struct {
	db     *sql.DB
	logger logger.Logger
	now    func() time.Time
}

func New(db *sql.DB, log logger.Logger) *Store {
	return &Store{
		db:     db,
		logger: log.WithFields(map[string]interface{}{"component": "store"}),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// DB exposes the pool for health checks and migrations.
func (s *Store) DB() *sql.DB {
	return s.db
}

func nullString(v string) interface{} {
	if v == "" {
		return nil
	}
	return v
}
