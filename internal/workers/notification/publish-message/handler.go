package publishmessage

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

const TaskType = "publish-message"

// MessageCreator stores a new message under an existing category.
type MessageCreator interface {
	CreateMessage(ctx context.Context, categoryID uuid.UUID, body string) (models.Message, error)
}

// Dispatcher runs a dispatch and reports how it went.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg models.Message) (*dispatch.Report, error)
}

type HandlerOptions struct {
	Config     *Config
	Messages   MessageCreator
	Dispatcher Dispatcher
	Registry   *registry.ActivityRegistry
	Logger     logger.Logger
}

// Handler publishes a message: the message is stored, then dispatched. A
// failed dispatch does not fail the publish.
type Handler struct {
	config       *Config
	messages     MessageCreator
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
	})

	input, err := h.parseInput(job)
	if err != nil {
		return h.failJob(ctx, client, job, err)
	}

	output, err := h.Execute(ctx, input)
	if err != nil {
		return h.failJob(ctx, client, job, err)
	}

	if err := h.completeJob(ctx, client, job, output); err != nil {
		return err
	}
	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
	metrics.WorkerJobDuration.WithLabelValues(TaskType).Observe(time.Since(startTime).Seconds())
	return nil
}

func (h *Handler) parseInput(job entities.Job) (*Input, error) {
	variables, err := job.GetVariablesAsMap()
	if err != nil {
		return nil, errors.NewInvalidInputError(fmt.Sprintf("failed to parse job variables: %v", err))
	}
	return ParseInput(h.registry, variables)
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

// Execute stores the message and dispatches it. Only storing can fail the
// job; the dispatch outcome is reported in the output.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	if input == nil {
		return nil, errors.NewInvalidInputError("input cannot be nil")
	}
	categoryID, err := uuid.Parse(input.CategoryID)
	if err != nil {
		return nil, errors.NewInvalidInputError("categoryId is not a valid uuid")
	}

	msg, err := h.messages.CreateMessage(ctx, categoryID, input.Message)
	if err != nil {
		if _, ok := errors.As(err); !ok {
			err = errors.NewStorageError(err)
		}
		return nil, err
	}

	h.logger.Info("message published", map[string]interface{}{
		"messageId":  msg.ID.String(),
		"categoryId": categoryID.String(),
	})

	report, dispatchErr := h.dispatcher.Dispatch(ctx, msg)
	output := &Output{
		MessageID:     msg.ID.String(),
		DispatchState: string(report.State),
		Delivered:     report.Delivered,
		Skipped:       len(report.Skipped),
	}
	if dispatchErr != nil {
		output.DispatchError = describeDispatchError(dispatchErr)
		h.logger.Warn("dispatch after publish failed", map[string]interface{}{
			"messageId": msg.ID.String(),
			"errorCode": string(errors.CodeOf(dispatchErr)),
			"error":     dispatchErr.Error(),
		})
	}
	return output, nil
}

func (h *Handler) completeJob(ctx context.Context, client worker.JobClient, job entities.Job, output *Output) error {
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

	h.logger.Info("job completed", map[string]interface{}{
		"jobKey":        job.GetKey(),
		"messageId":     output.MessageID,
		"dispatchState": output.DispatchState,
	})
	return nil
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

func (h *Handler) GetConfig() *Config {
	return h.config
}

// describeDispatchError renders the error code followed by the underlying cause.
func describeDispatchError(err error) string {
	stdErr := errors.Normalize(err)
	if stdErr.Details == "" {
		return string(stdErr.Code) + ": " + stdErr.Message
	}
	return string(stdErr.Code) + ": " + stdErr.Details
}
