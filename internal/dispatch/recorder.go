package dispatch

import (
	"context"
	stderrors "errors"

	"notification-dispatch/internal/common/errors"
	"notification-dispatch/internal/common/logger"
	"notification-dispatch/internal/models"
)

// LogAppender persists a batch atomically.
type LogAppender interface {
	AppendDeliveryLogs(ctx context.Context, batch []models.DeliveryLog) error
}

// Sink receives every committed batch, for example a search index. Sink
// errors never affect the dispatch.
type Sink interface {
	Name() string
	Consume(ctx context.Context, batch []models.DeliveryLog) error
}

// Recorder is the only writer of delivery logs.
type Recorder struct {
	appender LogAppender
	sinks    []Sink
	logger   logger.Logger
}

func NewRecorder(appender LogAppender, log logger.Logger, sinks ...Sink) *Recorder {
	return &Recorder{
		appender: appender,
		sinks:    sinks,
		logger:   log.WithFields(map[string]interface{}{"component": "recorder"}),
	}
}

// Persist writes batch in one transaction. An empty batch is a no-op. Any
// failure is reported as STORAGE_ERROR and nothing is written.
func (r *Recorder) Persist(ctx context.Context, batch []models.DeliveryLog) error {
	if len(batch) == 0 {
		return nil
	}

	if err := r.appender.AppendDeliveryLogs(ctx, batch); err != nil {
		if !stderrors.Is(err, ErrStorage) {
			err = errors.NewStorageError(err)
		}
		return err
	}

	for _, sink := range r.sinks {
		if err := sink.Consume(ctx, batch); err != nil {
			r.logger.Warn("delivery log sink failed", map[string]interface{}{
				"sink":  sink.Name(),
				"rows":  len(batch),
				"error": err.Error(),
			})
		}
	}
	return nil
}
