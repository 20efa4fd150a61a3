// internal/app/engine.go
package app

import (
	"context"
	"database/sql"

	"notification-dispatch/internal/common/config"
	"notification-dispatch/internal/common/logger"
	"notification-dispatch/internal/common/observability"
	"notification-dispatch/internal/dispatch"
	"notification-dispatch/internal/search"
	"notification-dispatch/internal/store"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Resources are the connections an Engine is built on. Only DB is required.
type Resources struct {
	DB            *sql.DB
	Redis         redis.Cmdable
	Elasticsearch *elasticsearch.Client
	Events        dispatch.EventPublisher
	Observability *observability.Observability
}

// SubscriptionWriter changes who receives a category's messages.
type SubscriptionWriter interface {
	Subscribe(ctx context.Context, userID, categoryID uuid.UUID) error
	AttachChannel(ctx context.Context, userID, channelID uuid.UUID) error
}

// Engine is the assembled dispatch pipeline and the stores around it.
type Engine struct {
	Store        *store.Store
	Finder       dispatch.SubscriberFinder
	Cache        *store.CachedFinder // nil without Redis
	Indexer      *search.Indexer     // nil without Elasticsearch
	Searcher     search.Searcher
	Orchestrator *dispatch.Orchestrator
}

// NewEngine wires store, subscriber cache, notifiers, recorder sinks and
// report observers according to cfg.
func NewEngine(cfg *config.Config, res Resources, log logger.Logger) *Engine {
	st := store.New(res.DB, log)
	e := &Engine{Store: st, Finder: st, Searcher: search.NewStoreSearcher(st)}

	if res.Redis != nil && cfg.Dispatch.SubscriberCacheTTLDuration() > 0 {
		e.Cache = store.NewCachedFinder(st, res.Redis, cfg.Dispatch.SubscriberCacheTTLDuration(), log)
		e.Finder = e.Cache
	}

	var sinks []dispatch.Sink
	if res.Elasticsearch != nil {
		e.Indexer = search.NewIndexer(res.Elasticsearch, cfg.Database.Elasticsearch.LogIndex, log)
		e.Searcher = e.Indexer
		sinks = append(sinks, e.Indexer)
	}

	var observers []dispatch.ReportObserver
	if res.Events != nil {
		observers = append(observers, dispatch.NewReportPublisher(res.Events, log))
	}

	notifiers := dispatch.DefaultNotifiers(dispatch.NotifierOptions{
		Logger:          log,
		RedactAddresses: cfg.Dispatch.RedactAddresses,
	})
	dispatcher := dispatch.NewDispatcher(notifiers, cfg.Dispatch.ChannelTimeoutDuration(), log).
		WithRedaction(cfg.Dispatch.RedactAddresses)

	e.Orchestrator = dispatch.NewOrchestrator(dispatch.OrchestratorOptions{
		Resolver:      dispatch.NewResolver(e.Finder, log),
		Dispatcher:    dispatcher,
		Recorder:      dispatch.NewRecorder(st, log, sinks...),
		MaxParallel:   cfg.Dispatch.MaxParallel,
		Observers:     observers,
		Observability: res.Observability,
		Logger:        log,
	})
	return e
}

// Subscriptions returns the write side for subscriptions and channel
// attachments, invalidating the subscriber cache when one is configured.
func (e *Engine) Subscriptions() SubscriptionWriter {
	if e.Cache != nil {
		return store.NewCacheInvalidatingStore(e.Store, e.Cache)
	}
	return e.Store
}

// Seed inserts the demo data and, when the subscriber cache is enabled,
// drops every cached subscriber set.
func (e *Engine) Seed(ctx context.Context) (store.SeedResult, error) {
	if e.Cache != nil {
		return store.NewCacheInvalidatingStore(e.Store, e.Cache).Seed(ctx)
	}
	return e.Store.Seed(ctx)
}
