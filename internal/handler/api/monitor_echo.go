package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"TokenPulse/internal/domain/models"
	"TokenPulse/internal/service/metrics"
	"TokenPulse/internal/service/ratelimit"
	"TokenPulse/internal/services/activity"
	"TokenPulse/internal/usecase"
	xhttp "TokenPulse/pkg/http"
	xlogger "TokenPulse/pkg/logger"
)

// MonitorEchoHandler serves the token monitor read API.
type MonitorEchoHandler struct {
	logger *xlogger.Logger
	reg    *usecase.Registry
	rl     *ratelimit.Limiter
}

func NewMonitorEchoHandler(logger *xlogger.Logger, reg *usecase.Registry, rl *ratelimit.Limiter) *MonitorEchoHandler {
	metrics.Register()
	return &MonitorEchoHandler{logger: logger, reg: reg, rl: rl}
}

func (h *MonitorEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	if h.rl != nil {
		g.Use(h.rl.Middleware())
	}
	g.GET("/tokens", h.Tokens)
	g.GET("/tokens/:token/snapshot", h.Snapshot)
	g.GET("/tokens/:token/holders", h.Holders)
	g.GET("/tokens/:token/aggregates/:window", h.Aggregate)
	g.GET("/tokens/:token/activity", h.Activity)
	g.GET("/tokens/:token/history", h.History)
	g.GET("/tokens/:token/status", h.Status)
}

func (h *MonitorEchoHandler) Tokens(c echo.Context) error {
	defer metrics.Observe("tokens", time.Now())
	statuses := h.reg.Statuses()
	rows := make([]StatusDTO, len(statuses))
	for i, s := range statuses {
		rows[i] = toStatusDTO(s)
	}
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

func (h *MonitorEchoHandler) Snapshot(c echo.Context) error {
	const endpoint = "snapshot"
	defer metrics.Observe(endpoint, time.Now())
	req := &models.SnapshotRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return h.badRequest(c, endpoint, verr)
	}
	s, err := h.reg.Get(req.Token)
	if err != nil {
		return h.fail(c, endpoint, err)
	}
	snap := s.GetSnapshot()
	if len(snap.Holders) > req.Limit {
		snap.Holders = snap.Holders[:req.Limit]
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "no-store")
	return xhttp.SuccessResponse(c, toSnapshotDTO(snap, req.Txs))
}

func (h *MonitorEchoHandler) Holders(c echo.Context) error {
	const endpoint = "holders"
	defer metrics.Observe(endpoint, time.Now())
	req := &models.HoldersRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return h.badRequest(c, endpoint, verr)
	}
	s, err := h.reg.Get(req.Token)
	if err != nil {
		return h.fail(c, endpoint, err)
	}
	rows := toHolderDTOs(s.Holders(req.Limit))
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

func (h *MonitorEchoHandler) Aggregate(c echo.Context) error {
	const endpoint = "aggregate"
	defer metrics.Observe(endpoint, time.Now())
	req := &models.AggregateRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return h.badRequest(c, endpoint, verr)
	}
	s, err := h.reg.Get(req.Token)
	if err != nil {
		return h.fail(c, endpoint, err)
	}
	w, err := s.Aggregate(req.Window)
	if err != nil {
		return h.fail(c, endpoint, err)
	}
	return xhttp.SuccessResponse(c, toAggregateDTO(w))
}

func (h *MonitorEchoHandler) Activity(c echo.Context) error {
	const endpoint = "activity"
	defer metrics.Observe(endpoint, time.Now())
	req := &models.ActivityRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return h.badRequest(c, endpoint, verr)
	}
	bucket, err := time.ParseDuration(req.Bucket)
	if err != nil {
		return h.fail(c, endpoint, xhttp.BadRequestErrorf("bucket %q is not a duration", req.Bucket))
	}
	s, err := h.reg.Get(req.Token)
	if err != nil {
		return h.fail(c, endpoint, err)
	}
	buckets, err := s.Activity(req.Window, bucket)
	if err != nil {
		return h.fail(c, endpoint, err)
	}
	rows := toBucketDTOs(buckets)
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

func (h *MonitorEchoHandler) History(c echo.Context) error {
	const endpoint = "history"
	defer metrics.Observe(endpoint, time.Now())
	req := &models.HistoryRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return h.badRequest(c, endpoint, verr)
	}
	from, ok := xhttp.ParseTime(req.From)
	if !ok {
		return h.fail(c, endpoint, xhttp.BadRequestErrorf("from %q is not a time", req.From))
	}
	to, ok := xhttp.ParseTime(req.To)
	if !ok {
		return h.fail(c, endpoint, xhttp.BadRequestErrorf("to %q is not a time", req.To))
	}
	s, err := h.reg.Get(req.Token)
	if err != nil {
		return h.fail(c, endpoint, err)
	}
	recs, err := s.GetHistoricalRange(c.Request().Context(), from, to)
	if err != nil {
		return h.fail(c, endpoint, err)
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=60")
	rows := toDailyDTOs(recs)
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

func (h *MonitorEchoHandler) Status(c echo.Context) error {
	const endpoint = "status"
	defer metrics.Observe(endpoint, time.Now())
	req := &models.TokenRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return h.badRequest(c, endpoint, verr)
	}
	s, err := h.reg.Get(req.Token)
	if err != nil {
		return h.fail(c, endpoint, err)
	}
	return xhttp.SuccessResponse(c, toStatusDTO(s.Status()))
}

func (h *MonitorEchoHandler) badRequest(c echo.Context, endpoint string, verr []xhttp.ValidationError) error {
	metrics.Failed(endpoint, "ERR_VALIDATION")
	return xhttp.BadRequestResponse(c, verr)
}

func (h *MonitorEchoHandler) fail(c echo.Context, endpoint string, err error) error {
	appErr := toAppError(err)
	metrics.Failed(endpoint, appErr.Code)
	if appErr.Status >= http.StatusInternalServerError {
		h.logger.Error("monitor api error", xlogger.String("endpoint", endpoint), xlogger.Error(err))
	}
	return xhttp.AppErrorResponse(c, appErr)
}

func toAppError(err error) *xhttp.AppError {
	var appErr *xhttp.AppError
	switch {
	case errors.As(err, &appErr):
		return appErr
	case errors.Is(err, usecase.ErrUnknownToken):
		return xhttp.NewAppError("ERR_UNKNOWN_TOKEN", "token", err.Error(), http.StatusNotFound).WithError(err)
	case errors.Is(err, activity.ErrUnknownWindow):
		return xhttp.NewAppError("ERR_UNKNOWN_WINDOW", "window", err.Error(), http.StatusNotFound).WithError(err)
	case errors.Is(err, models.ErrHistoricalRangeUnavailable):
		return xhttp.NewAppError("ERR_HISTORY_UNAVAILABLE", "", err.Error(), http.StatusNotFound).WithError(err)
	case errors.Is(err, models.ErrInvalidRange):
		return xhttp.NewAppError("ERR_INVALID_RANGE", "", err.Error(), http.StatusBadRequest).WithError(err)
	case errors.Is(err, activity.ErrInvalidBucket):
		return xhttp.NewAppError("ERR_INVALID_BUCKET", "bucket", err.Error(), http.StatusBadRequest).WithError(err)
	case errors.Is(err, models.ErrConnection):
		return xhttp.NewAppError("ERR_UPSTREAM", "", "upstream data source unavailable", http.StatusBadGateway).WithError(err)
	default:
		return xhttp.InternalError("Something went wrong").WithError(err)
	}
}
