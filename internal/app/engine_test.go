package app

import (
	"testing"

	"notification-dispatch/internal/common/config"
	"notification-dispatch/internal/common/logger"
	"notification-dispatch/internal/search"
	"notification-dispatch/internal/store"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Dispatch.ChannelTimeout = 1000
	cfg.Dispatch.MaxParallel = 4
	cfg.Database.Elasticsearch.LogIndex = "delivery-logs"
	return cfg
}

func TestNewEngine_DatabaseOnly(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	e := NewEngine(testConfig(), Resources{DB: db}, logger.NewTestLogger(t))

	assert.NotNil(t, e.Orchestrator)
	assert.Nil(t, e.Cache)
	assert.Nil(t, e.Indexer)
	assert.IsType(t, &store.Store{}, e.Finder)
	assert.IsType(t, &search.StoreSearcher{}, e.Searcher)
	assert.IsType(t, &store.Store{}, e.Subscriptions())
}

func TestNewEngine_WithSubscriberCache(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	cfg := testConfig()
	cfg.Dispatch.SubscriberCacheTTL = 60000

	e := NewEngine(cfg, Resources{DB: db, Redis: rdb}, logger.NewTestLogger(t))

	require.NotNil(t, e.Cache)
	assert.Same(t, e.Cache, e.Finder)
	assert.IsType(t, &store.CacheInvalidatingStore{}, e.Subscriptions())
}

func TestNewEngine_CacheDisabledByZeroTTL(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	e := NewEngine(testConfig(), Resources{DB: db, Redis: rdb}, logger.NewTestLogger(t))
	assert.Nil(t, e.Cache)
}
