package search

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"notification-dispatch/internal/common/errors"
	"notification-dispatch/internal/common/logger"
	"notification-dispatch/internal/models"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helper Functions
// ==========================

type fakeES struct {
	t        *testing.T
	handlers map[string]http.HandlerFunc
	bodies   map[string]string
}

func newFakeES(t *testing.T) (*fakeES, *Indexer) {
	t.Helper()
	f := &fakeES{t: t, handlers: map[string]http.HandlerFunc{}, bodies: map[string]string{}}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		key := r.Method + " " + r.URL.Path
		body, _ := io.ReadAll(r.Body)
		f.bodies[key] = string(body)
		if h, ok := f.handlers[key]; ok {
			h(w, r)
			return
		}
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"type":"unexpected"}}`))
	}))
	t.Cleanup(srv.Close)

	client, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{srv.URL}})
	require.NoError(t, err)

	return f, NewIndexer(client, "delivery-logs", logger.NewTestLogger(t))
}

func respond(status int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}
}

func sampleLogs() []models.DeliveryLog {
	return []models.DeliveryLog{
		{
			ID: uuid.New(), Time: time.Now().UTC(), UserID: uuid.New(), ChannelID: uuid.New(),
			ChannelKind: models.ChannelKindSMS, MessageID: uuid.New(),
			Detail: "Notified to josh@example.com by SMS, message: hi",
		},
		{
			ID: uuid.New(), Time: time.Now().UTC(), UserID: uuid.New(), ChannelID: uuid.New(),
			ChannelKind: models.ChannelKindEmail, MessageID: uuid.New(),
			Detail: "Notified to harrison@example.com by E-Mail, message: hi",
		},
	}
}

// ==========================
// Indexer Tests
// ==========================

func TestConsume_WritesBulkBody(t *testing.T) {
	f, idx := newFakeES(t)
	f.handlers["POST /_bulk"] = respond(200, `{"errors":false,"items":[]}`)
	logs := sampleLogs()

	require.NoError(t, idx.Consume(context.Background(), logs))

	scanner := bufio.NewScanner(strings.NewReader(f.bodies["POST /_bulk"]))
	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	require.Len(t, lines, 4)

	var meta map[string]map[string]string
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &meta))
	assert.Equal(t, "delivery-logs", meta["index"]["_index"])
	assert.Equal(t, logs[0].ID.String(), meta["index"]["_id"])

	var doc models.DeliveryLog
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &doc))
	assert.Equal(t, logs[0].Detail, doc.Detail)
	assert.Equal(t, models.ChannelKindSMS, doc.ChannelKind)
}

func TestConsume_ReportsItemFailures(t *testing.T) {
	f, idx := newFakeES(t)
	f.handlers["POST /_bulk"] = respond(200, `{"errors":true,"items":[
		{"index":{"status":201}},
		{"index":{"status":400,"error":{"type":"mapper_parsing_exception","reason":"bad time"}}}
	]}`)

	err := idx.Consume(context.Background(), sampleLogs())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2 documents failed")
	assert.Contains(t, err.Error(), "mapper_parsing_exception")
}

func TestConsume_EmptyBatch(t *testing.T) {
	f, idx := newFakeES(t)

	require.NoError(t, idx.Consume(context.Background(), nil))
	assert.Empty(t, f.bodies)
}

func TestEnsureIndex(t *testing.T) {
	t.Run("exists", func(t *testing.T) {
		f, idx := newFakeES(t)
		f.handlers["HEAD /delivery-logs"] = respond(200, "")

		require.NoError(t, idx.EnsureIndex(context.Background()))
		_, created := f.bodies["PUT /delivery-logs"]
		assert.False(t, created)
	})

	t.Run("missing", func(t *testing.T) {
		f, idx := newFakeES(t)
		f.handlers["PUT /delivery-logs"] = respond(200, `{"acknowledged":true}`)

		require.NoError(t, idx.EnsureIndex(context.Background()))
		assert.Contains(t, f.bodies["PUT /delivery-logs"], `"channelType"`)
	})
}

// ==========================
// Search Tests
// ==========================

func TestSearch_ParsesHits(t *testing.T) {
	f, idx := newFakeES(t)
	logs := sampleLogs()
	src, _ := json.Marshal(logs[1])
	f.handlers["POST /delivery-logs/_search"] = respond(200,
		`{"took":3,"hits":{"total":{"value":1},"hits":[{"_source":`+string(src)+`}]}}`)

	res, err := idx.Search(context.Background(), Query{
		ChannelKind: models.ChannelKindEmail,
		Text:        "harrison",
		Size:        500,
	})
	require.NoError(t, err)

	assert.Equal(t, int64(1), res.TotalHits)
	require.Len(t, res.Logs, 1)
	assert.Equal(t, logs[1].ID, res.Logs[0].ID)

	body := f.bodies["POST /delivery-logs/_search"]
	assert.Contains(t, body, `"channelType":"E-Mail"`)
	assert.Contains(t, body, `"detail":"harrison"`)
}

func TestSearch_IndexNotFound(t *testing.T) {
	f, idx := newFakeES(t)
	f.handlers["POST /delivery-logs/_search"] = respond(404, `{"error":{"type":"index_not_found_exception"}}`)

	_, err := idx.Search(context.Background(), Query{})
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeIndexNotFound, errors.CodeOf(err))
}

func TestSearch_QueryFailure(t *testing.T) {
	f, idx := newFakeES(t)
	f.handlers["POST /delivery-logs/_search"] = respond(400, `{"error":{"type":"parsing_exception"}}`)

	_, err := idx.Search(context.Background(), Query{})
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeSearchQueryFailed, errors.CodeOf(err))
}

func TestBuildQuery(t *testing.T) {
	q := buildQuery(Query{})
	assert.Contains(t, q["query"], "match_all")

	q = buildQuery(Query{MessageID: "m1", UserID: "u1"})
	boolQuery := q["query"].(map[string]interface{})["bool"].(map[string]interface{})
	assert.Len(t, boolQuery["filter"], 2)
	assert.NotContains(t, boolQuery, "must")
}

func TestPagination(t *testing.T) {
	tests := []struct {
		name       string
		q          Query
		from, size int
	}{
		{"defaults", Query{}, 0, defaultPageSize},
		{"clamped", Query{From: -3, Size: 1000}, 0, maxPageSize},
		{"explicit", Query{From: 40, Size: 10}, 40, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			from, size := pagination(tt.q)
			assert.Equal(t, tt.from, from)
			assert.Equal(t, tt.size, size)
		})
	}
}

// ==========================
// Store Searcher Tests
// ==========================

type fakeLister struct {
	logs   []models.DeliveryLog
	filter models.DeliveryLogFilter
}

func (f *fakeLister) ListDeliveryLogs(_ context.Context, filter models.DeliveryLogFilter) ([]models.DeliveryLog, error) {
	f.filter = filter
	return append([]models.DeliveryLog(nil), f.logs...), nil
}

func TestStoreSearcher(t *testing.T) {
	logs := sampleLogs()
	lister := &fakeLister{logs: logs}
	s := NewStoreSearcher(lister)

	res, err := s.Search(context.Background(), Query{
		MessageID:   logs[0].MessageID.String(),
		ChannelKind: models.ChannelKindSMS,
		Text:        "JOSH",
	})
	require.NoError(t, err)

	assert.Equal(t, logs[0].MessageID, lister.filter.MessageID)
	assert.Equal(t, models.ChannelKindSMS, lister.filter.ChannelKind)
	assert.Equal(t, int64(1), res.TotalHits)
	require.Len(t, res.Logs, 1)
	assert.Equal(t, logs[0].ID, res.Logs[0].ID)
}

func TestStoreSearcher_NewestFirstAndPaged(t *testing.T) {
	logs := sampleLogs()
	s := NewStoreSearcher(&fakeLister{logs: logs})

	res, err := s.Search(context.Background(), Query{Size: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.TotalHits)
	require.Len(t, res.Logs, 1)
	assert.Equal(t, logs[1].ID, res.Logs[0].ID)

	res, err = s.Search(context.Background(), Query{From: 5})
	require.NoError(t, err)
	assert.Empty(t, res.Logs)
}

func TestStoreSearcher_InvalidID(t *testing.T) {
	_, err := NewStoreSearcher(&fakeLister{}).Search(context.Background(), Query{UserID: "nope"})
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeInvalidInput, errors.CodeOf(err))
}
