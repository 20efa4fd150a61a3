// internal/search/query.go
package search

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"notification-dispatch/internal/common/errors"
	"notification-dispatch/internal/models"

	"github.com/elastic/go-elasticsearch/v8/esapi"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Query selects delivery logs. Empty fields do not filter.
type Query struct {
	MessageID   string
	UserID      string
	ChannelKind models.ChannelKind
	Text        string
	From        int
	Size        int
}

// Searcher is implemented by Indexer and StoreSearcher.
type Searcher interface {
	Search(ctx context.Context, q Query) (*Result, error)
}

type Result struct {
	Logs      []models.DeliveryLog
	TotalHits int64
	Took      int64 // milliseconds
}

// Search runs q against the index, newest logs first.
func (i *Indexer) Search(ctx context.Context, q Query) (*Result, error) {
	from, size := pagination(q)
	body, err := json.Marshal(buildQuery(q))
	if err != nil {
		return nil, errors.NewSearchQueryFailedError(err)
	}

	req := esapi.SearchRequest{
		Index: []string{i.index},
		Body:  strings.NewReader(string(body)),
		From:  &from,
		Size:  &size,
	}

	start := time.Now()
	res, err := req.Do(ctx, i.client)
	if err != nil {
		if stderrors.Is(err, context.DeadlineExceeded) || stderrors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, errors.NewSearchTimeoutError(i.index)
		}
		return nil, errors.NewSearchQueryFailedError(err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return nil, errors.NewIndexNotFoundError(i.index)
	}
	if res.IsError() {
		return nil, errors.NewSearchQueryFailedError(fmt.Errorf("search failed: %s", res.String()))
	}

	var parsed struct {
		Hits struct {
			Total struct {
				Value int64 `json:"value"`
			} `json:"total"`
			Hits []struct {
				Source models.DeliveryLog `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, errors.NewSearchQueryFailedError(err)
	}

	result := &Result{
		Logs:      make([]models.DeliveryLog, 0, len(parsed.Hits.Hits)),
		TotalHits: parsed.Hits.Total.Value,
		Took:      time.Since(start).Milliseconds(),
	}
	for _, hit := range parsed.Hits.Hits {
		result.Logs = append(result.Logs, hit.Source)
	}
	return result, nil
}

func pagination(q Query) (int, int) {
	from := q.From
	if from < 0 {
		from = 0
	}
	size := q.Size
	if size < 1 {
		size = defaultPageSize
	}
	if size > maxPageSize {
		size = maxPageSize
	}
	return from, size
}

func buildQuery(q Query) map[string]interface{} {
	filterClauses := []interface{}{}
	mustClauses := []interface{}{}

	if q.MessageID != "" {
		filterClauses = append(filterClauses, term("messageId", q.MessageID))
	}
	if q.UserID != "" {
		filterClauses = append(filterClauses, term("userId", q.UserID))
	}
	if q.ChannelKind != "" {
		filterClauses = append(filterClauses, term("channelType", string(q.ChannelKind)))
	}
	if q.Text != "" {
		mustClauses = append(mustClauses, map[string]interface{}{
			"match": map[string]interface{}{"detail": q.Text},
		})
	}

	boolQuery := map[string]interface{}{}
	if len(mustClauses) > 0 {
		boolQuery["must"] = mustClauses
	}
	if len(filterClauses) > 0 {
		boolQuery["filter"] = filterClauses
	}

	query := map[string]interface{}{"match_all": map[string]interface{}{}}
	if len(boolQuery) > 0 {
		query = map[string]interface{}{"bool": boolQuery}
	}

	return map[string]interface{}{
		"query": query,
		"sort": []interface{}{
			map[string]interface{}{"time": map[string]interface{}{"order": "desc"}},
		},
	}
}

func term(field, value string) map[string]interface{} {
	return map[string]interface{}{
		"term": map[string]interface{}{field: value},
	}
}
