// internal/search/store_searcher.go
package search

import (
	"context"
	"strings"
	"time"

	"notification-dispatch/internal/common/errors"
	"notification-dispatch/internal/models"

	"github.com/google/uuid"
)

// LogLister is the relational read side of delivery logs.
type LogLister interface {
	ListDeliveryLogs(ctx context.Context, filter models.DeliveryLogFilter) ([]models.DeliveryLog, error)
}

// StoreSearcher answers queries from the database when no search index is
// configured. Text matching is a case-insensitive substring match on detail.
type StoreSearcher struct {
	lister LogLister
}

func NewStoreSearcher(lister LogLister) *StoreSearcher {
	return &StoreSearcher{lister: lister}
}

func (s *StoreSearcher) Search(ctx context.Context, q Query) (*Result, error) {
	filter := models.DeliveryLogFilter{ChannelKind: q.ChannelKind}
	if q.MessageID != "" {
		id, err := uuid.Parse(q.MessageID)
		if err != nil {
			return nil, errors.NewInvalidInputError("messageId is not a valid uuid")
		}
		filter.MessageID = id
	}
	if q.UserID != "" {
		id, err := uuid.Parse(q.UserID)
		if err != nil {
			return nil, errors.NewInvalidInputError("userId is not a valid uuid")
		}
		filter.UserID = id
	}

	start := time.Now()
	logs, err := s.lister.ListDeliveryLogs(ctx, filter)
	if err != nil {
		return nil, errors.NewSearchQueryFailedError(err)
	}

	if q.Text != "" {
		needle := strings.ToLower(q.Text)
		matched := logs[:0]
		for _, l := range logs {
			if strings.Contains(strings.ToLower(l.Detail), needle) {
				matched = append(matched, l)
			}
		}
		logs = matched
	}

	// newest first, as the index returns them
	for i, j := 0, len(logs)-1; i < j; i, j = i+1, j-1 {
		logs[i], logs[j] = logs[j], logs[i]
	}

	total := int64(len(logs))
	from, size := pagination(q)
	if from > len(logs) {
		from = len(logs)
	}
	end := from + size
	if end > len(logs) {
		end = len(logs)
	}

	return &Result{
		Logs:      logs[from:end],
		TotalHits: total,
		Took:      time.Since(start).Milliseconds(),
	}, nil
}
