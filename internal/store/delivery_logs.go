// internal/store/delivery_logs.go
package store

import (
	"context"
	"fmt"

	"notification-dispatch/internal/common/errors"
	"notification-dispatch/internal/common/metrics"
	"notification-dispatch/internal/models"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
)

var deliveryLogColumns = []string{"id", "time", "user_id", "channel_id", "channel_type", "message_id", "detail"}

// deliveryLogChunkRows keeps each INSERT well below the 65535 bind parameter
// limit of the PostgreSQL protocol.
const deliveryLogChunkRows = 1000

// AppendDeliveryLogs writes the whole batch in one transaction, as multi-row
// INSERTs of at most deliveryLogChunkRows rows. Either every row is committed
// or none is; failures are returned as STORAGE_ERROR. An empty batch opens no
// transaction.
func (s *Store) AppendDeliveryLogs(ctx context.Context, batch []models.DeliveryLog) (err error) {
	if len(batch) == 0 {
		return nil
	}

	for i := range batch {
		entry := &batch[i]
		if entry.ID == uuid.Nil {
			entry.ID = uuid.New()
		}
		if entry.Time.IsZero() {
			entry.Time = s.now()
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.NewStorageError(fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer func() {
		if err == nil {
			return
		}
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Warn("rollback failed", map[string]interface{}{"error": rbErr.Error()})
		}
	}()

	for start := 0; start < len(batch); start += deliveryLogChunkRows {
		end := start + deliveryLogChunkRows
		if end > len(batch) {
			end = len(batch)
		}

		query, args, buildErr := deliveryLogInsert(batch[start:end]).ToSql()
		if buildErr != nil {
			return errors.NewStorageError(fmt.Errorf("failed to build delivery log insert: %w", buildErr))
		}
		if _, err = tx.ExecContext(ctx, query, args...); err != nil {
			return errors.NewStorageError(fmt.Errorf("failed to insert delivery logs %d-%d: %w", start, end, err))
		}
	}

	if err = tx.Commit(); err != nil {
		return errors.NewStorageError(fmt.Errorf("failed to commit delivery logs: %w", err))
	}

	metrics.DeliveryLogsPersisted.Add(float64(len(batch)))
	s.logger.Debug("delivery logs persisted", map[string]interface{}{
		"rows":      len(batch),
		"messageId": batch[0].MessageID.String(),
	})
	return nil
}

func deliveryLogInsert(rows []models.DeliveryLog) sq.InsertBuilder {
	insert := psql.Insert("delivery_logs").Columns(deliveryLogColumns...)
	for _, entry := range rows {
		insert = insert.Values(
			entry.ID, entry.Time, entry.UserID, entry.ChannelID,
			string(entry.ChannelKind), entry.MessageID, entry.Detail,
		)
	}
	return insert
}

// ListDeliveryLogs returns logs matching filter ordered by time then id.
func (s *Store) ListDeliveryLogs(ctx context.Context, filter models.DeliveryLogFilter) ([]models.DeliveryLog, error) {
	q := psql.
		Select(deliveryLogColumns...).
		From("delivery_logs").
		OrderBy("time", "id")

	if filter.MessageID != uuid.Nil {
		q = q.Where(sq.Eq{"message_id": filter.MessageID.String()})
	}
	if filter.UserID != uuid.Nil {
		q = q.Where(sq.Eq{"user_id": filter.UserID.String()})
	}
	if filter.ChannelKind != "" {
		q = q.Where(sq.Eq{"channel_type": string(filter.ChannelKind)})
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build delivery log query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query delivery logs: %w", err)
	}
	defer rows.Close()

	var out []models.DeliveryLog
	for rows.Next() {
		var (
			l    models.DeliveryLog
			kind string
		)
		if err := rows.Scan(&l.ID, &l.Time, &l.UserID, &l.ChannelID, &kind, &l.MessageID, &l.Detail); err != nil {
			return nil, fmt.Errorf("failed to scan delivery log: %w", err)
		}
		l.ChannelKind = models.ChannelKind(kind)
		out = append(out, l)
	}
	return out, rows.Err()
}
