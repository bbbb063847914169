package normalizer

import (
	"errors"

	"TokenPulse/internal/domain/models"
)

// Reason maps a rejection to a low-cardinality metric label.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, models.ErrDuplicate):
		return "duplicate"
	case errors.Is(err, models.ErrNonPositiveAmount):
		return "non_positive"
	case errors.Is(err, models.ErrFutureTimestamp):
		return "future"
	default:
		return "malformed"
	}
}
