package dispatch

import (
	"context"
	"fmt"
	"strings"

	"notification-dispatch/internal/common/logger"
	"notification-dispatch/internal/models"
)

// Notifier performs the send for one channel kind and returns a description
// of the send target. Notifiers never write delivery logs.
type Notifier interface {
	Notify(ctx context.Context, user models.User, channel models.Channel, msg models.Message) (string, error)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, user models.User, channel models.Channel, msg models.Message) (string, error)

func (f NotifierFunc) Notify(ctx context.Context, user models.User, channel models.Channel, msg models.Message) (string, error) {
	return f(ctx, user, channel, msg)
}

// NotifierOptions are shared by the built-in notifiers.
type NotifierOptions struct {
	Logger          logger.Logger
	RedactAddresses bool
}

// DefaultNotifiers returns the SMS, e-mail and push notifiers keyed by kind.
func DefaultNotifiers(opts NotifierOptions) map[models.ChannelKind]Notifier {
	return map[models.ChannelKind]Notifier{
		models.ChannelKindSMS:   NewSMSNotifier(opts),
		models.ChannelKindEmail: NewEmailNotifier(opts),
		models.ChannelKindPush:  NewPushNotifier(opts),
	}
}

// SMSNotifier sends to the channel's phone number, falling back to the user's.
// Without either the send is still reported as delivered; a warning is logged.
type SMSNotifier struct {
	logger logger.Logger
	redact bool
}

func NewSMSNotifier(opts NotifierOptions) *SMSNotifier {
	return &SMSNotifier{
		logger: opts.Logger.WithFields(map[string]interface{}{"notifier": "sms"}),
		redact: opts.RedactAddresses,
	}
}

func (n *SMSNotifier) Notify(ctx context.Context, user models.User, channel models.Channel, msg models.Message) (string, error) {
	phone, _ := channel.PhoneNumber()
	address := string(phone)
	if address == "" {
		address = user.PhoneNumber
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if address == "" {
		n.logger.Warn("sms channel has no phone number", unregisteredFields(user, channel, msg))
		return "SMS to unregistered number", nil
	}

	target := fmt.Sprintf("SMS to %s", address)
	n.logger.Info("sms sent", map[string]interface{}{
		"to":        maybeRedact(address, n.redact),
		"messageId": msg.ID.String(),
	})
	return target, nil
}

// EmailNotifier sends to the channel's address, falling back to the user's.
// Without either the send is still reported as delivered; a warning is logged.
type EmailNotifier struct {
	logger logger.Logger
	redact bool
}

func NewEmailNotifier(opts NotifierOptions) *EmailNotifier {
	return &EmailNotifier{
		logger: opts.Logger.WithFields(map[string]interface{}{"notifier": "email"}),
		redact: opts.RedactAddresses,
	}
}

func (n *EmailNotifier) Notify(ctx context.Context, user models.User, channel models.Channel, msg models.Message) (string, error) {
	email, _ := channel.EmailAddress()
	address := string(email)
	if address == "" {
		address = user.Email
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if address == "" {
		n.logger.Warn("email channel has no address", unregisteredFields(user, channel, msg))
		return "E-Mail to unregistered address", nil
	}

	target := fmt.Sprintf("E-Mail to %s", address)
	n.logger.Info("email sent", map[string]interface{}{
		"to":        maybeRedact(address, n.redact),
		"messageId": msg.ID.String(),
	})
	return target, nil
}

// PushNotifier sends to the channel's device token. A channel without a token
// is still reported as delivered; a warning is logged.
type PushNotifier struct {
	logger logger.Logger
	redact bool
}

func NewPushNotifier(opts NotifierOptions) *PushNotifier {
	return &PushNotifier{
		logger: opts.Logger.WithFields(map[string]interface{}{"notifier": "push"}),
		redact: opts.RedactAddresses,
	}
}

func (n *PushNotifier) Notify(ctx context.Context, user models.User, channel models.Channel, msg models.Message) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	token, ok := channel.DeviceToken()
	if !ok {
		n.logger.Warn("push channel has no device token", unregisteredFields(user, channel, msg))
		return "Push Notification to unregistered device", nil
	}

	n.logger.Info("push sent", map[string]interface{}{
		"to":        maybeRedact(string(token), n.redact),
		"messageId": msg.ID.String(),
	})
	return fmt.Sprintf("Push Notification to %s", token), nil
}

func unregisteredFields(user models.User, channel models.Channel, msg models.Message) map[string]interface{} {
	return map[string]interface{}{
		"channelId": channel.ID.String(),
		"userId":    user.ID.String(),
		"messageId": msg.ID.String(),
	}
}

func maybeRedact(address string, redact bool) string {
	if !redact {
		return address
	}
	return Redact(address)
}

// Redact masks an address, keeping the e-mail domain or the last two characters.
func Redact(address string) string {
	if at := strings.LastIndex(address, "@"); at > 0 {
		return address[:1] + strings.Repeat("*", at-1) + address[at:]
	}
	if len(address) <= 2 {
		return strings.Repeat("*", len(address))
	}
	return strings.Repeat("*", len(address)-2) + address[len(address)-2:]
}
