// internal/search/indexer.go
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"notification-dispatch/internal/common/logger"
	"notification-dispatch/internal/models"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

const indexMapping = `{
	"mappings": {
		"properties": {
			"id":          {"type": "keyword"},
			"time":        {"type": "date"},
			"userId":      {"type": "keyword"},
			"channelId":   {"type": "keyword"},
			"channelType": {"type": "keyword"},
			"messageId":   {"type": "keyword"},
			"detail":      {"type": "text"}
		}
	}
}`

// Indexer mirrors committed delivery logs into an Elasticsearch index.
type Indexer struct {
	client *elasticsearch.Client
	index  string
	logger logger.Logger
}

func NewIndexer(client *elasticsearch.Client, index string, log logger.Logger) *Indexer {
	return &Indexer{
		client: client,
		index:  index,
		logger: log.WithFields(map[string]interface{}{"component": "search-indexer", "index": index}),
	}
}

func (i *Indexer) Name() string { return "elasticsearch" }

// EnsureIndex creates the index with its mapping when it does not exist yet.
func (i *Indexer) EnsureIndex(ctx context.Context) error {
	res, err := i.client.Indices.Exists([]string{i.index}, i.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("check index %s: %w", i.index, err)
	}
	res.Body.Close()
	if res.StatusCode == 200 {
		return nil
	}

	res, err = i.client.Indices.Create(
		i.index,
		i.client.Indices.Create.WithBody(strings.NewReader(indexMapping)),
		i.client.Indices.Create.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("create index %s: %w", i.index, err)
	}
	defer res.Body.Close()

	if res.IsError() && !strings.Contains(res.String(), "resource_already_exists_exception") {
		return fmt.Errorf("create index %s: %s", i.index, res.String())
	}
	i.logger.Info("search index created", nil)
	return nil
}

// Consume bulk-indexes batch using the log id as document id, so replays
// overwrite instead of duplicating.
func (i *Indexer) Consume(ctx context.Context, batch []models.DeliveryLog) error {
	if len(batch) == 0 {
		return nil
	}

	var body bytes.Buffer
	enc := json.NewEncoder(&body)
	for _, entry := range batch {
		meta := map[string]interface{}{
			"index": map[string]interface{}{"_index": i.index, "_id": entry.ID.String()},
		}
		if err := enc.Encode(meta); err != nil {
			return err
		}
		if err := enc.Encode(entry); err != nil {
			return err
		}
	}

	req := esapi.BulkRequest{
		Body:    &body,
		Refresh: "false",
	}
	res, err := req.Do(ctx, i.client)
	if err != nil {
		return fmt.Errorf("bulk index: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("bulk index: %s", res.String())
	}

	var parsed struct {
		Errors bool `json:"errors"`
		Items  []map[string]struct {
			Status int `json:"status"`
			Error  struct {
				Type   string `json:"type"`
				Reason string `json:"reason"`
			} `json:"error"`
		} `json:"items"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return fmt.Errorf("decode bulk response: %w", err)
	}
	if parsed.Errors {
		failed := 0
		var first string
		for _, item := range parsed.Items {
			for _, result := range item {
				if result.Status >= 300 {
					failed++
					if first == "" {
						first = result.Error.Type + ": " + result.Error.Reason
					}
				}
			}
		}
		return fmt.Errorf("bulk index: %d of %d documents failed, first: %s", failed, len(batch), first)
	}

	i.logger.Debug("delivery logs indexed", map[string]interface{}{"rows": len(batch)})
	return nil
}
