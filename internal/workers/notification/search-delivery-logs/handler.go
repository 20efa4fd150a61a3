package searchdeliverylogs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"notification-dispatch/internal/common/errors"
	"notification-dispatch/internal/common/logger"
	"notification-dispatch/internal/common/metrics"
	"notification-dispatch/internal/models"
	"notification-dispatch/internal/search"
	"notification-dispatch/pkg/registry"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const TaskType = "search-delivery-logs"

// Searcher is served by the search index or, without one, by the database.
type Searcher interface {
	Search(ctx context.Context, q search.Query) (*search.Result, error)
}

type HandlerOptions struct {
	Config   *Config
	Searcher Searcher
	Registry *registry.ActivityRegistry
	Logger   logger.Logger
}

type Handler struct {
	config       *Config
	searcher     Searcher
	registry     *registry.ActivityRegistry
	errorHandler *errors.ErrorHandler
	logger       logger.Logger
}

func NewHandler(opts HandlerOptions) (*Handler, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration for %s: %w", TaskType, err)
	}
	if opts.Searcher == nil {
		return nil, fmt.Errorf("%s requires a searcher", TaskType)
	}

	reg := opts.Registry
	if reg == nil {
		reg = registry.Default()
	}
	log := opts.Logger
	if log == nil {
		log = logger.NewStructured("info", "json")
	}
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})

	return &Handler{
		config:       cfg,
		searcher:     opts.Searcher,
		registry:     reg,
		errorHandler: errors.NewErrorHandler(log),
		logger:       log,
	}, nil
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) error {
	startTime := time.Now()
	metrics.WorkerJobsActive.WithLabelValues(TaskType).Inc()
	defer metrics.WorkerJobsActive.WithLabelValues(TaskType).Dec()

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.GetKey(),
		"workflowKey": job.GetProcessInstanceKey(),
	})

	var input Input
	if err := json.Unmarshal([]byte(job.GetVariables()), &input); err != nil {
		return h.failJob(ctx, client, job, errors.NewInvalidInputError(fmt.Sprintf("parse input: %v", err)))
	}
	variables, err := job.GetVariablesAsMap()
	if err != nil {
		return h.failJob(ctx, client, job, errors.NewInvalidInputError(err.Error()))
	}
	if result := h.registry.ValidateInput(TaskType, variables); !result.Valid {
		return h.failJob(ctx, client, job, errors.NewInvalidInputError(result.Error()))
	}

	output, err := h.Execute(ctx, &input)
	if err != nil {
		return h.failJob(ctx, client, job, err)
	}

	cmd, err := client.NewCompleteJobCommand().JobKey(job.GetKey()).VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{
			"error": err.Error(),
		})
		return err
	}
	if _, err := cmd.Send(ctx); err != nil {
		h.logger.Error("failed to send complete job command", map[string]interface{}{
			"error": err.Error(),
		})
		return err
	}

	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
	metrics.WorkerJobDuration.WithLabelValues(TaskType).Observe(time.Since(startTime).Seconds())
	return nil
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	if input == nil {
		return nil, errors.NewInvalidInputError("input cannot be nil")
	}
	kind := models.ChannelKind(input.ChannelType)
	if kind != "" && !kind.Valid() {
		return nil, errors.NewInvalidInputError(fmt.Sprintf("unknown channel type %q", input.ChannelType))
	}

	result, err := h.searcher.Search(ctx, search.Query{
		MessageID:   input.MessageID,
		UserID:      input.UserID,
		ChannelKind: kind,
		Text:        input.Query,
		From:        input.From,
		Size:        input.Limit,
	})
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, errors.NewSearchTimeoutError(TaskType)
		}
		return nil, err
	}

	logs := result.Logs
	if logs == nil {
		logs = []models.DeliveryLog{}
	}
	return &Output{Logs: logs, Total: result.TotalHits, Took: result.Took}, nil
}

func (h *Handler) failJob(ctx context.Context, client worker.JobClient, job entities.Job, err error) error {
	metrics.WorkerJobsFailed.WithLabelValues(TaskType, string(errors.CodeOf(err))).Inc()
	h.errorHandler.HandleJobError(ctx, client, job, err)
	return err
}

func (h *Handler) GetTaskType() string {
	return TaskType
}

func (h *Handler) IsEnabled() bool {
	return h.config.Enabled
}
