package dispatch

import (
	"context"
	"time"

	"notification-dispatch/internal/common/errors"
	"notification-dispatch/internal/common/logger"
	"notification-dispatch/internal/common/metrics"
	"notification-dispatch/internal/common/observability"
	"notification-dispatch/internal/models"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

const defaultMaxParallel = 8

// ReportObserver is told about every finished dispatch, successful or not.
type ReportObserver interface {
	ObserveDispatch(ctx context.Context, report *Report)
}

type OrchestratorOptions struct {
	Resolver      *Resolver
	Dispatcher    *Dispatcher
	Recorder      *Recorder
	MaxParallel   int
	Observers     []ReportObserver
	Observability *observability.Observability
	Logger        logger.Logger
}

// Orchestrator drives one message through RESOLVING, DELIVERING and LOGGING.
// It keeps no per-dispatch state, so concurrent dispatches are independent.
type Orchestrator struct {
	resolver    *Resolver
	dispatcher  *Dispatcher
	recorder    *Recorder
	maxParallel int
	observers   []ReportObserver
	obs         *observability.Observability
	logger      logger.Logger
	now         func() time.Time
}

func NewOrchestrator(opts OrchestratorOptions) *Orchestrator {
	maxParallel := opts.MaxParallel
	if maxParallel <= 0 {
		maxParallel = defaultMaxParallel
	}
	obs := opts.Observability
	if obs == nil {
		obs = &observability.Observability{}
	}
	return &Orchestrator{
		resolver:    opts.Resolver,
		dispatcher:  opts.Dispatcher,
		recorder:    opts.Recorder,
		maxParallel: maxParallel,
		observers:   opts.Observers,
		obs:         obs,
		logger:      opts.Logger.WithFields(map[string]interface{}{"component": "orchestrator"}),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// OnMessageCreated dispatches a freshly published message. The publisher
// never sees dispatch failures; they are logged and reported to observers.
func (o *Orchestrator) OnMessageCreated(ctx context.Context, msg models.Message) {
	report, err := o.Dispatch(ctx, msg)
	if err != nil {
		o.logger.Error("dispatch failed", map[string]interface{}{
			"messageId": msg.ID.String(),
			"state":     string(report.State),
			"errorCode": string(errors.CodeOf(err)),
			"error":     err.Error(),
		})
	}
}

// Dispatch runs the full pipeline for msg and always returns a report. The
// error is non-nil exactly when the report ends in FAILED. Per-target
// failures are listed in the report and never fail the dispatch.
func (o *Orchestrator) Dispatch(ctx context.Context, msg models.Message) (*Report, error) {
	sm := newStateMachine(o.now)
	report := &Report{
		MessageID:  msg.ID,
		CategoryID: msg.Category.ID,
		StartedAt:  o.now(),
	}

	ctx, endSpan := o.obs.StartSpan(ctx, "dispatch",
		attribute.String("message.id", msg.ID.String()),
		attribute.String("category.id", msg.Category.ID.String()),
	)

	err := o.run(ctx, sm, msg, report)
	if err != nil {
		sm.fail()
		report.Err = err
	}

	report.State = sm.current
	report.Transitions = sm.transitions
	report.FinishedAt = o.now()
	endSpan(err)

	o.record(ctx, report)
	for _, observer := range o.observers {
		observer.ObserveDispatch(ctx, report)
	}
	return report, err
}

func (o *Orchestrator) run(ctx context.Context, sm *stateMachine, msg models.Message, report *Report) error {
	resolveCtx, endResolve := o.obs.StartSpan(ctx, "dispatch.resolve")
	targets, err := o.resolver.Resolve(resolveCtx, msg)
	endResolve(err)
	if err != nil {
		return err
	}
	report.Targets = len(targets)

	if err := sm.advance(StateDelivering); err != nil {
		return errors.NewInternalError(err)
	}
	deliverCtx, endDeliver := o.obs.StartSpan(ctx, "dispatch.deliver")
	outcomes := o.deliverAll(deliverCtx, targets, msg)
	endDeliver(nil)

	batch := make([]models.DeliveryLog, 0, len(outcomes))
	for _, out := range outcomes {
		if out.Delivered {
			batch = append(batch, *out.Log)
			metrics.DeliveriesTotal.WithLabelValues(string(out.Target.Channel.Kind), "delivered").Inc()
			o.obs.RecordDelivery(ctx, string(out.Target.Channel.Kind), "delivered", out.Duration)
			continue
		}
		report.skip(out.Target, out.Err)
		metrics.DeliveriesTotal.WithLabelValues(string(out.Target.Channel.Kind), "skipped").Inc()
		o.obs.RecordDelivery(ctx, string(out.Target.Channel.Kind), "skipped", out.Duration)
		o.logger.Warn("target skipped", map[string]interface{}{
			"messageId":   msg.ID.String(),
			"userId":      out.Target.User.ID.String(),
			"channelId":   out.Target.Channel.ID.String(),
			"channelType": string(out.Target.Channel.Kind),
			"errorCode":   string(errors.CodeOf(out.Err)),
			"error":       out.Err.Error(),
		})
	}
	report.Delivered = len(batch)

	if err := sm.advance(StateLogging); err != nil {
		return errors.NewInternalError(err)
	}
	logCtx, endLog := o.obs.StartSpan(ctx, "dispatch.log")
	err = o.recorder.Persist(logCtx, batch)
	endLog(err)
	if err != nil {
		return err
	}
	report.Logs = batch

	if err := sm.advance(StateDone); err != nil {
		return errors.NewInternalError(err)
	}
	return nil
}

// deliverAll fans out over targets with at most maxParallel sends in flight
// and returns outcomes in target order. No delivery cancels another.
func (o *Orchestrator) deliverAll(ctx context.Context, targets []Target, msg models.Message) []Outcome {
	outcomes := make([]Outcome, len(targets))

	var g errgroup.Group
	g.SetLimit(o.maxParallel)
	for i, t := range targets {
		g.Go(func() error {
			outcomes[i] = o.dispatcher.Deliver(ctx, t.User, t.Channel, msg)
			return nil
		})
	}
	_ = g.Wait()

	return outcomes
}

func (o *Orchestrator) record(ctx context.Context, report *Report) {
	state := string(report.State)
	metrics.DispatchesTotal.WithLabelValues(state).Inc()
	metrics.DispatchDuration.WithLabelValues(state).Observe(report.Duration().Seconds())
	o.obs.RecordDispatch(ctx, state, report.Duration())

	o.logger.Info("dispatch finished", map[string]interface{}{
		"messageId": report.MessageID.String(),
		"state":     state,
		"targets":   report.Targets,
		"delivered": report.Delivered,
		"skipped":   len(report.Skipped),
		"duration":  report.Duration().String(),
	})
}
