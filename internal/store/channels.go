// internal/store/channels.go
package store

import (
	"context"
	"database/sql"
	"fmt"

	"notification-dispatch/internal/common/errors"
	"notification-dispatch/internal/common/validation"
	"notification-dispatch/internal/models"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
)

// CreateChannel inserts a channel. The kind-specific address lands in its own
// column; the others stay NULL.
func (s *Store) CreateChannel(ctx context.Context, ch models.Channel) (models.Channel, error) {
	if vr := validation.ValidateChannel(ch); !vr.Valid {
		return models.Channel{}, errors.NewInvalidInputError(vr.Error())
	}
	if ch.ID == uuid.Nil {
		ch.ID = uuid.New()
	}

	phone, email, token := addressColumns(ch)
	query, args, err := psql.
		Insert("channels").
		Columns("id", "type", "description", "phone_number", "email_address", "device_token").
		Values(ch.ID, string(ch.Kind), ch.Description, phone, email, token).
		ToSql()
	if err != nil {
		return models.Channel{}, fmt.Errorf("failed to build channel insert: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return models.Channel{}, fmt.Errorf("failed to insert channel: %w", err)
	}
	return ch, nil
}

// AttachChannel adds channelID to the user's channel set. Repeating it is a no-op.
func (s *Store) AttachChannel(ctx context.Context, userID, channelID uuid.UUID) error {
	query, args, err := psql.
		Insert("user_channels").
		Columns("user_id", "channel_id").
		Values(userID, channelID).
		Suffix("ON CONFLICT DO NOTHING").
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build channel attach: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to attach channel %s to user %s: %w", channelID, userID, err)
	}
	return nil
}

func (s *Store) channelsByUser(ctx context.Context, userIDs []string) (map[uuid.UUID][]models.Channel, error) {
	query, args, err := psql.
		Select("uc.user_id", "c.id", "c.type", "c.description", "c.phone_number", "c.email_address", "c.device_token").
		From("user_channels uc").
		Join("channels c ON c.id = uc.channel_id").
		Where(sq.Eq{"uc.user_id": userIDs}).
		OrderBy("uc.user_id", "c.id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build channel query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query channels: %w", err)
	}
	defer rows.Close()

	out := make(map[uuid.UUID][]models.Channel, len(userIDs))
	for rows.Next() {
		var (
			userID, channelID    uuid.UUID
			kind, description    string
			phone, email, device sql.NullString
		)
		if err := rows.Scan(&userID, &channelID, &kind, &description, &phone, &email, &device); err != nil {
			return nil, fmt.Errorf("failed to scan channel: %w", err)
		}
		out[userID] = append(out[userID], channelFromRow(channelID, models.ChannelKind(kind), description, phone, email, device))
	}
	return out, rows.Err()
}

func channelFromRow(id uuid.UUID, kind models.ChannelKind, description string, phone, email, device sql.NullString) models.Channel {
	var address string
	switch kind {
	case models.ChannelKindSMS:
		address = phone.String
	case models.ChannelKindEmail:
		address = email.String
	case models.ChannelKindPush:
		address = device.String
	}
	return models.NewChannel(id, kind, description, address)
}

func addressColumns(ch models.Channel) (phone, email, token interface{}) {
	switch a := ch.Address.(type) {
	case models.PhoneNumber:
		phone = nullString(string(a))
	case models.EmailAddress:
		email = nullString(string(a))
	case models.DeviceToken:
		token = nullString(string(a))
	}
	return phone, email, token
}
