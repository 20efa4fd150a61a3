package dispatch

import (
	"time"

	"notification-dispatch/internal/common/errors"
	"notification-dispatch/internal/models"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
)

// SkippedTarget is a target that produced no delivery log.
type SkippedTarget struct {
	UserID    uuid.UUID          `json:"userId"`
	ChannelID uuid.UUID          `json:"channelId"`
	Kind      models.ChannelKind `json:"channelType"`
	Code      errors.ErrorCode   `json:"code"`
	Reason    string             `json:"reason"`
}

// Report describes one dispatch run. Err is set only when State is FAILED.
type Report struct {
	MessageID   uuid.UUID            `json:"messageId"`
	CategoryID  uuid.UUID            `json:"categoryId"`
	State       State                `json:"state"`
	Transitions []Transition         `json:"transitions"`
	Targets     int                  `json:"targets"`
	Delivered   int                  `json:"delivered"`
	Skipped     []SkippedTarget      `json:"skipped,omitempty"`
	Logs        []models.DeliveryLog `json:"-"`
	StartedAt   time.Time            `json:"startedAt"`
	FinishedAt  time.Time            `json:"finishedAt"`
	Err         error                `json:"-"`

	skipErrs *multierror.Error
}

// SkipErrors returns every per-target failure combined, or nil.
func (r *Report) SkipErrors() error {
	return r.skipErrs.ErrorOrNil()
}

func (r *Report) skip(t Target, err error) {
	r.Skipped = append(r.Skipped, SkippedTarget{
		UserID:    t.User.ID,
		ChannelID: t.Channel.ID,
		Kind:      t.Channel.Kind,
		Code:      errors.CodeOf(err),
		Reason:    err.Error(),
	})
	r.skipErrs = multierror.Append(r.skipErrs, err)
}

// Duration is the wall time of the run.
func (r *Report) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Summary is the flat view handed to workflows and event consumers.
func (r *Report) Summary() map[string]interface{} {
	summary := map[string]interface{}{
		"messageId":     r.MessageID.String(),
		"dispatchState": string(r.State),
		"targets":       r.Targets,
		"delivered":     r.Delivered,
		"skipped":       len(r.Skipped),
	}
	if r.Err != nil {
		summary["dispatchError"] = r.Err.Error()
		summary["dispatchErrorCode"] = string(errors.CodeOf(r.Err))
	}
	return summary
}
