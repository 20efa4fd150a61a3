package dispatch

import (
	"context"
	stderrors "errors"
	"sort"

	"notification-dispatch/internal/common/errors"
	"notification-dispatch/internal/common/logger"
	"notification-dispatch/internal/models"

	"github.com/google/uuid"
)

// SubscriberFinder is the read side of the subscription graph.
type SubscriberFinder interface {
	FindCategory(ctx context.Context, id uuid.UUID) (models.Category, error)
	FindUsersSubscribedTo(ctx context.Context, categoryID uuid.UUID) ([]models.User, error)
}

// Target is one (user, channel) pair a message must be delivered to.
type Target struct {
	User    models.User
	Channel models.Channel
}

// Resolver expands a message into delivery targets.
type Resolver struct {
	finder SubscriberFinder
	logger logger.Logger
}

func NewResolver(finder SubscriberFinder, log logger.Logger) *Resolver {
	return &Resolver{
		finder: finder,
		logger: log.WithFields(map[string]interface{}{"component": "resolver"}),
	}
}

// Resolve returns one target per distinct channel of every subscriber of the
// message's category. Users are ordered by id and so are each user's
// channels, so the result is stable for a fixed database state. A missing
// category is NOT_FOUND; a category without subscribers yields no targets.
func (r *Resolver) Resolve(ctx context.Context, msg models.Message) ([]Target, error) {
	categoryID := msg.Category.ID

	if _, err := r.finder.FindCategory(ctx, categoryID); err != nil {
		return nil, lookupError(err)
	}

	users, err := r.finder.FindUsersSubscribedTo(ctx, categoryID)
	if err != nil {
		return nil, lookupError(err)
	}

	users = distinctUsers(users)

	var targets []Target
	for _, u := range users {
		for _, ch := range u.DistinctChannels() {
			targets = append(targets, Target{User: u, Channel: ch})
		}
	}

	r.logger.Debug("targets resolved", map[string]interface{}{
		"messageId":   msg.ID.String(),
		"categoryId":  categoryID.String(),
		"subscribers": len(users),
		"targets":     len(targets),
	})
	return targets, nil
}

func lookupError(err error) error {
	if stderrors.Is(err, ErrNotFound) {
		return err
	}
	return errors.NewSubscriberLookupFailedError(err)
}

func distinctUsers(users []models.User) []models.User {
	seen := make(map[uuid.UUID]struct{}, len(users))
	out := make([]models.User, 0, len(users))
	for _, u := range users {
		if _, dup := seen[u.ID]; dup {
			continue
		}
		seen[u.ID] = struct{}{}
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}
