package dispatch

import (
	"context"

	"notification-dispatch/internal/common/errors"
	"notification-dispatch/internal/common/logger"
)

// EventPublisher publishes a JSON document to a topic.
type EventPublisher interface {
	PublishJSON(ctx context.Context, subject string, payload interface{}, attrs map[string]string) (string, error)
}

// ReportPublisher announces finished dispatches on an event topic.
type ReportPublisher struct {
	publisher EventPublisher
	logger    logger.Logger
}

func NewReportPublisher(publisher EventPublisher, log logger.Logger) *ReportPublisher {
	return &ReportPublisher{
		publisher: publisher,
		logger:    log.WithFields(map[string]interface{}{"component": "report-publisher"}),
	}
}

func (p *ReportPublisher) ObserveDispatch(ctx context.Context, report *Report) {
	attrs := map[string]string{
		"event":         "dispatch." + string(report.State),
		"dispatchState": string(report.State),
	}

	id, err := p.publisher.PublishJSON(ctx, "message dispatched", report, attrs)
	if err != nil {
		pubErr := errors.NewEventPublishFailedError(err)
		p.logger.Warn("dispatch event not published", map[string]interface{}{
			"messageId": report.MessageID.String(),
			"errorCode": string(pubErr.Code),
			"error":     pubErr.Error(),
		})
		return
	}

	p.logger.Debug("dispatch event published", map[string]interface{}{
		"messageId": report.MessageID.String(),
		"eventId":   id,
	})
}
