package api

import (
	"context"
	"time"

	"github.com/labstack/echo/v4"

	"SignalTrack/internal/domain/models"
	"SignalTrack/internal/usecase"
	xhttp "SignalTrack/pkg/http"
	xlogger "SignalTrack/pkg/logger"
)

// Enqueuer hands a cycle request to the job queue instead of running it inline.
type Enqueuer interface {
	Enqueue(ctx context.Context, msgType string, payload interface{}) error
}

// SignalsEchoHandler exposes the tracker over HTTP.
type SignalsEchoHandler struct {
	logger  *xlogger.Logger
	tracker *usecase.Tracker
	queue   Enqueuer
}

// NewSignalsEchoHandler builds the handler. queue may be nil, in which case
// POST /api/cycles runs the cycle synchronously.
func NewSignalsEchoHandler(logger *xlogger.Logger, tracker *usecase.Tracker, queue Enqueuer) *SignalsEchoHandler {
	if logger == nil {
		logger = xlogger.Nop()
	}
	return &SignalsEchoHandler{logger: logger, tracker: tracker, queue: queue}
}

func (h *SignalsEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.POST("/signals", h.CreateSignal)
	g.GET("/signals", h.ListSignals)
	g.GET("/signals/:id", h.GetSignal)
	g.POST("/signals/:id/cancel", h.CancelSignal)
	g.GET("/snapshot/latest", h.LatestSnapshot)
	g.GET("/performance", h.Performance)
	g.GET("/models", h.Models)
	g.POST("/cycles", h.RunCycle)
	g.POST("/retrain", h.Retrain)
}

func (h *SignalsEchoHandler) CreateSignal(c echo.Context) error {
	req := &models.CreateSignalRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	sig, err := h.tracker.Create(c.Request().Context(), req.ToSignal())
	if err != nil {
		return h.fail(c, "create signal", err)
	}
	return xhttp.CreatedResponse(c, sig)
}

func (h *SignalsEchoHandler) GetSignal(c echo.Context) error {
	req := &models.SignalIDRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	sig, err := h.tracker.Get(c.Request().Context(), req.ID)
	if err != nil {
		return h.fail(c, "get signal", err)
	}
	return xhttp.SuccessResponse(c, sig)
}

func (h *SignalsEchoHandler) CancelSignal(c echo.Context) error {
	req := &models.SignalIDRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	sig, err := h.tracker.Cancel(c.Request().Context(), req.ID)
	if err != nil {
		return h.fail(c, "cancel signal", err)
	}
	return xhttp.SuccessResponse(c, sig)
}

func (h *SignalsEchoHandler) ListSignals(c echo.Context) error {
	req := &models.ListSignalsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	ctx := c.Request().Context()

	var (
		rows []*models.Signal
		err  error
	)
	if req.State == "resolved" {
		since, perr := xhttp.ParseSince(req.Since, h.tracker.Now())
		if perr != nil {
			return xhttp.AppErrorResponse(c, xhttp.BadRequestError(perr.Error()).WithField("since"))
		}
		rows, err = h.tracker.ListResolved(ctx, since)
	} else {
		rows, err = h.tracker.ListPending(ctx)
	}
	if err != nil {
		return h.fail(c, "list signals", err)
	}
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

func (h *SignalsEchoHandler) LatestSnapshot(c echo.Context) error {
	snap, err := h.tracker.LatestSnapshot(c.Request().Context())
	if err != nil {
		return h.fail(c, "latest snapshot", err)
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=15")
	return xhttp.SuccessResponse(c, snap)
}

func (h *SignalsEchoHandler) Performance(c echo.Context) error {
	req := &models.PerformanceRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	window, err := xhttp.ParseWindow(req.Window)
	if err != nil {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError(err.Error()).WithField("window"))
	}
	snap, err := h.tracker.Performance(c.Request().Context(), window)
	if err != nil {
		return h.fail(c, "performance", err)
	}
	return xhttp.SuccessResponse(c, snap)
}

// modelView omits the artifact bytes.
type modelView struct {
	*models.ModelVersion
	Artifact      []byte `json:"artifact,omitempty"`
	ArtifactBytes int    `json:"artifact_bytes"`
}

func (h *SignalsEchoHandler) Models(c echo.Context) error {
	versions, err := h.tracker.ModelHistory(c.Request().Context())
	if err != nil {
		return h.fail(c, "model history", err)
	}
	if limit := xhttp.ParseIntDefault(c.QueryParam("limit"), 0); limit > 0 && limit < len(versions) {
		versions = versions[len(versions)-limit:]
	}
	rows := make([]modelView, 0, len(versions))
	for _, v := range versions {
		rows = append(rows, modelView{ModelVersion: v, ArtifactBytes: len(v.Artifact)})
	}
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

func (h *SignalsEchoHandler) RunCycle(c echo.Context) error {
	req := &usecase.CycleRequest{}
	if err := c.Bind(req); err != nil {
		return xhttp.BadRequestResponse(c, []xhttp.ValidationError{{Code: "ERR_BIND", Message: err.Error()}})
	}
	ctx := c.Request().Context()

	if h.queue != nil {
		if err := h.queue.Enqueue(ctx, usecase.CycleJobType, req); err != nil {
			return h.fail(c, "enqueue cycle", err)
		}
		return xhttp.AcceptedResponse(c, map[string]interface{}{"queued": usecase.CycleJobType, "at": time.Now().UTC()})
	}

	sum, err := h.tracker.RunCycle(ctx)
	if err != nil {
		return h.fail(c, "run cycle", err)
	}
	if req.Retrain {
		out, err := h.tracker.Retrain(ctx)
		if err != nil {
			return h.fail(c, "retrain", err)
		}
		sum.Retrain = out
	}
	return xhttp.SuccessResponse(c, sum)
}

func (h *SignalsEchoHandler) Retrain(c echo.Context) error {
	out, err := h.tracker.Retrain(c.Request().Context())
	if err != nil {
		return h.fail(c, "retrain", err)
	}
	return xhttp.SuccessResponse(c, out)
}

func (h *SignalsEchoHandler) fail(c echo.Context, op string, err error) error {
	appErr := toAppError(err)
	if appErr.Status >= 500 {
		h.logger.Error(op+" failed", xlogger.Error(err))
	}
	return xhttp.AppErrorResponse(c, appErr)
}
