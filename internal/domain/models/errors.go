package models

import "errors"

// Error kinds surfaced by feed adapters and the monitor. Adapters wrap them with %w.
var (
	ErrConnection                 = errors.New("connection error")
	ErrInvalidToken               = errors.New("invalid token identifier")
	ErrMalformedEvent             = errors.New("malformed event")
	ErrHistoricalRangeUnavailable = errors.New("historical range unavailable")
	ErrInvalidRange               = errors.New("invalid time range")
)

// Normalizer rejections.
var (
	ErrDuplicate         = errors.New("duplicate signature")
	ErrNonPositiveAmount = errors.New("non-positive amount")
	ErrFutureTimestamp   = errors.New("timestamp beyond skew tolerance")
)

// IsRetryable reports whether a feed failure should be retried.
// Everything except an invalid token is.
func IsRetryable(err error) bool {
	return err != nil && !errors.Is(err, ErrInvalidToken)
}
