package http

import (
	"time"

	xutil "TokenPulse/pkg/util"
)

// ParseTime accepts RFC3339, a plain date, or unix seconds.
func ParseTime(s string) (time.Time, bool) { return xutil.ParseTime(s) }
