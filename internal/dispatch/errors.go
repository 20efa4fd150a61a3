package dispatch

import (
	"notification-dispatch/internal/common/errors"
)

// Sentinels for errors.Is. Every StandardError with the same code matches.
var (
	ErrNotFound               = errors.ErrNotFound
	ErrUnsupportedChannelKind = errors.ErrUnsupportedChannelKind
	ErrStorage                = errors.ErrStorage
	ErrDeliveryTimeout        = errors.ErrDeliveryTimeout
)
