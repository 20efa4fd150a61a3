package dispatch

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"notification-dispatch/internal/common/errors"
	"notification-dispatch/internal/common/logger"
	"notification-dispatch/internal/models"

	"github.com/google/uuid"
)

// Outcome is the result of delivering to one target. Log is set exactly when
// Delivered is true.
type Outcome struct {
	Target     Target
	Delivered  bool
	SendTarget string
	Log        *models.DeliveryLog
	Err        error
	Duration   time.Duration
}

// Dispatcher routes a target to the notifier of its channel kind and turns a
// successful send into one delivery log candidate.
type Dispatcher struct {
	notifiers map[models.ChannelKind]Notifier
	timeout   time.Duration
	redact    bool
	logger    logger.Logger
	now       func() time.Time
}

// NewDispatcher builds a dispatcher. A zero timeout leaves sends unbounded.
func NewDispatcher(notifiers map[models.ChannelKind]Notifier, timeout time.Duration, log logger.Logger) *Dispatcher {
	return &Dispatcher{
		notifiers: notifiers,
		timeout:   timeout,
		logger:    log.WithFields(map[string]interface{}{"component": "dispatcher"}),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithRedaction masks the user's e-mail and omits the message body in the
// dispatcher's own log lines. Delivery log details are not affected.
func (d *Dispatcher) WithRedaction(on bool) *Dispatcher {
	d.redact = on
	return d
}

// Deliver sends msg over one channel of one user. Failures are returned in
// the outcome and concern this target only.
func (d *Dispatcher) Deliver(ctx context.Context, user models.User, channel models.Channel, msg models.Message) Outcome {
	start := time.Now()
	out := Outcome{Target: Target{User: user, Channel: channel}}

	notifier, ok := d.notifiers[channel.Kind]
	if !ok {
		out.Err = errors.NewUnsupportedChannelKindError(string(channel.Kind))
		out.Duration = time.Since(start)
		return out
	}

	sendTarget, err := d.send(ctx, notifier, user, channel, msg)
	out.Duration = time.Since(start)
	if err != nil {
		out.Err = err
		return out
	}

	out.Delivered = true
	out.SendTarget = sendTarget
	out.Log = d.logCandidate(user, channel, msg)

	fields := map[string]interface{}{
		"email":       maybeRedact(user.Email, d.redact),
		"channelType": string(channel.Kind),
		"messageId":   msg.ID.String(),
	}
	if d.redact {
		fields["messageLength"] = len(msg.Body)
	} else {
		fields["message"] = msg.Body
	}
	d.logger.Info("notified user", fields)
	return out
}

type sendResult struct {
	target string
	err    error
}

// send runs the notifier bounded by the per-channel timeout.
func (d *Dispatcher) send(ctx context.Context, notifier Notifier, user models.User, channel models.Channel, msg models.Message) (string, error) {
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	done := make(chan sendResult, 1)
	go func() {
		target, err := notifier.Notify(ctx, user, channel, msg)
		done <- sendResult{target: target, err: err}
	}()

	select {
	case res := <-done:
		if res.err == nil {
			return res.target, nil
		}
		if stderrors.Is(res.err, context.DeadlineExceeded) {
			return "", errors.NewDeliveryTimeoutError(string(channel.Kind), d.timeout)
		}
		if _, ok := errors.As(res.err); ok {
			return "", res.err
		}
		return "", errors.NewDeliveryFailedError(string(channel.Kind), res.err)
	case <-ctx.Done():
		if stderrors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", errors.NewDeliveryTimeoutError(string(channel.Kind), d.timeout)
		}
		return "", errors.NewDeliveryFailedError(string(channel.Kind), ctx.Err())
	}
}

func (d *Dispatcher) logCandidate(user models.User, channel models.Channel, msg models.Message) *models.DeliveryLog {
	return &models.DeliveryLog{
		ID:          uuid.New(),
		Time:        d.now(),
		UserID:      user.ID,
		ChannelID:   channel.ID,
		ChannelKind: channel.Kind,
		MessageID:   msg.ID,
		Detail:      DeliveryDetail(user, channel, msg),
	}
}

// DeliveryDetail is the textual record stored with every delivery log.
func DeliveryDetail(user models.User, channel models.Channel, msg models.Message) string {
	return fmt.Sprintf("Notified to %s by %s, message: %s", user.Email, channel.Kind, msg.Body)
}
