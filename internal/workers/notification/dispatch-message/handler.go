package dispatchmessage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"notification-dispatch/internal/common/errors"
	"notification-dispatch/internal/common/logger"
	"notification-dispatch/internal/common/metrics"
	"notification-dispatch/internal/dispatch"
	"notification-dispatch/internal/models"
	"notification-dispatch/pkg/registry"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/google/uuid"
)

const TaskType = "dispatch-message"

type MessageLoader interface {
	GetMessage(ctx context.Context, id uuid.UUID) (models.Message, error)
}

type Dispatcher interface {
	Dispatch(ctx context.Context, msg models.Message) (*dispatch.Report, error)
}

type HandlerOptions struct {
	Config     *Config
	Messages   MessageLoader
	Dispatcher Dispatcher
	Registry   *registry.ActivityRegistry
	Logger     logger.Logger
}

// Handler dispatches an already stored message to the current subscribers
// of its category. Unlike publish, a failed dispatch fails the job so the
// workflow can retry it.
type Handler struct {
	config       *Config
	messages     MessageLoader
	dispatcher   Dispatcher
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
	if opts.Messages == nil || opts.Dispatcher == nil {
		return nil, fmt.Errorf("%s requires a message store and a dispatcher", TaskType)
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
		messages:     opts.Messages,
		dispatcher:   opts.Dispatcher,
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
		"jobKey":             job.GetKey(),
		"processInstanceKey": job.GetProcessInstanceKey(),
		"retries":            job.GetRetries(),
	})

	variables, err := job.GetVariablesAsMap()
	if err != nil {
		return h.failJob(ctx, client, job, errors.NewInvalidInputError(fmt.Sprintf("failed to parse job variables: %v", err)))
	}
	input, err := ParseInput(h.registry, variables)
	if err != nil {
		return h.failJob(ctx, client, job, err)
	}

	output, err := h.Execute(ctx, input)
	if err != nil {
		return h.failJob(ctx, client, job, err)
	}

	request, err := client.NewCompleteJobCommand().JobKey(job.GetKey()).VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{
			"jobKey": job.GetKey(),
			"error":  err.Error(),
		})
		return err
	}
	if _, err := request.Send(ctx); err != nil {
		h.logger.Error("failed to complete job", map[string]interface{}{
			"jobKey": job.GetKey(),
			"error":  err.Error(),
		})
		return err
	}

	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
	metrics.WorkerJobDuration.WithLabelValues(TaskType).Observe(time.Since(startTime).Seconds())
	return nil
}

// ParseInput validates job variables against the registered input schema.
func ParseInput(reg *registry.ActivityRegistry, variables map[string]interface{}) (*Input, error) {
	if result := reg.ValidateInput(TaskType, variables); !result.Valid {
		return nil, errors.NewInvalidInputError(result.Error())
	}
	raw, err := json.Marshal(variables)
	if err != nil {
		return nil, errors.NewInvalidInputError(err.Error())
	}
	var input Input
	if err := json.Unmarshal(raw, &input); err != nil {
		return nil, errors.NewInvalidInputError(err.Error())
	}
	return &input, nil
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	if input == nil {
		return nil, errors.NewInvalidInputError("input cannot be nil")
	}
	messageID, err := uuid.Parse(input.MessageID)
	if err != nil {
		return nil, errors.NewInvalidInputError("messageId is not a valid uuid")
	}

	msg, err := h.messages.GetMessage(ctx, messageID)
	if err != nil {
		if _, ok := errors.As(err); !ok {
			err = errors.NewStorageError(err)
		}
		return nil, err
	}

	report, err := h.dispatcher.Dispatch(ctx, msg)
	if err != nil {
		return nil, err
	}

	output := &Output{
		MessageID:     msg.ID.String(),
		DispatchState: string(report.State),
		Targets:       report.Targets,
		Delivered:     report.Delivered,
		Skipped:       len(report.Skipped),
	}
	for _, s := range report.Skipped {
		output.SkippedTarget = append(output.SkippedTarget, SkippedSummary{
			UserID:      s.UserID.String(),
			ChannelID:   s.ChannelID.String(),
			ChannelType: string(s.Kind),
			Code:        string(s.Code),
		})
	}
	return output, nil
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
