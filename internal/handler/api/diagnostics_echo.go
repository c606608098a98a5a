package api

import (
	"errors"
	"time"

	models "MMDiag/internal/domain/models"
	domrepo "MMDiag/internal/domain/repository"
	"MMDiag/internal/usecase"
	xhttp "MMDiag/pkg/http"
	xlogger "MMDiag/pkg/logger"
	"MMDiag/pkg/util"

	"github.com/labstack/echo/v4"
)

// DiagnosticsEchoHandler exposes the diagnostic pipeline over HTTP: read
// access to stored results and baselines, plus explicit triggers for runs,
// onboarding, and locked-statistics refresh.
type DiagnosticsEchoHandler struct {
	logger    *xlogger.Logger
	sink      domrepo.DiagnosticSink
	baselines domrepo.BaselineStore
	runner    *usecase.DailyRunUseCase
	batch     *usecase.BatchRunUseCase
	onboard   *usecase.OnboardingUseCase
	recompute *usecase.RecomputeUseCase
}

func NewDiagnosticsEchoHandler(
	logger *xlogger.Logger,
	sink domrepo.DiagnosticSink,
	baselines domrepo.BaselineStore,
	runner *usecase.DailyRunUseCase,
	batch *usecase.BatchRunUseCase,
	onboard *usecase.OnboardingUseCase,
	recompute *usecase.RecomputeUseCase,
) *DiagnosticsEchoHandler {
	return &DiagnosticsEchoHandler{
		logger:    logger,
		sink:      sink,
		baselines: baselines,
		runner:    runner,
		batch:     batch,
		onboard:   onboard,
		recompute: recompute,
	}
}

func (h *DiagnosticsEchoHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.Health)

	g := e.Group("/api")
	g.GET("/diagnostic", h.Diagnostic)
	g.GET("/baseline", h.Baseline)
	g.GET("/instruments", h.Instruments)
	g.POST("/run", h.Run)
	g.POST("/run/batch", h.RunBatch)
	g.POST("/onboard", h.Onboard)
	g.POST("/recompute", h.Recompute)
}

func (h *DiagnosticsEchoHandler) Health(c echo.Context) error {
	return xhttp.SuccessResponse(c, map[string]string{"status": "ok"})
}

// Diagnostic returns the stored diagnostic for a date, or the latest one when
// no date is given.
func (h *DiagnosticsEchoHandler) Diagnostic(c echo.Context) error {
	req := &models.DiagnosticRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	ctx := c.Request().Context()
	var (
		d   *models.DailyDiagnostic
		err error
	)
	if req.Date == "" {
		d, err = h.sink.Latest(ctx, req.Instrument)
	} else {
		date, _ := util.ParseDay(req.Date)
		d, err = h.sink.GetDay(ctx, req.Instrument, date)
	}
	if err != nil {
		return xhttp.NotFoundResponse(c, err.Error())
	}
	return xhttp.SuccessResponse(c, d)
}

func (h *DiagnosticsEchoHandler) Baseline(c echo.Context) error {
	req := &models.BaselineRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	b, err := h.baselines.Load(c.Request().Context(), req.Instrument)
	if err != nil {
		if errors.Is(err, models.ErrMissingBaseline) {
			return xhttp.NotFoundResponse(c, err.Error())
		}
		h.logger.Error("baseline load error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, b)
}

func (h *DiagnosticsEchoHandler) Instruments(c echo.Context) error {
	list, err := h.baselines.List(c.Request().Context())
	if err != nil {
		h.logger.Error("instrument list error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.ListResponse(c, list, int64(len(list)))
}

// Run triggers the pipeline for one (instrument, date) from stored features.
// Safe to call repeatedly: reprocessing a day yields the identical record.
func (h *DiagnosticsEchoHandler) Run(c echo.Context) error {
	req := &models.RunRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	date, _ := util.ParseDay(req.Date)

	d, err := h.runner.Run(c.Request().Context(), req.Instrument, date)
	if err != nil {
		if errors.Is(err, models.ErrMissingBaseline) {
			return xhttp.NotFoundResponse(c, err.Error())
		}
		var domainErr *models.InvalidDomainValueError
		if errors.As(err, &domainErr) {
			return xhttp.AppErrorResponse(c, xhttp.BadRequestError(domainErr.Error()))
		}
		h.logger.Error("daily run error",
			xlogger.String("instrument", req.Instrument),
			xlogger.Error(err),
		)
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, d)
}

func (h *DiagnosticsEchoHandler) RunBatch(c echo.Context) error {
	req := &models.BatchRunRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	date, _ := util.ParseDay(req.Date)
	ctx := c.Request().Context()

	if req.Async {
		n, err := h.batch.RunDayAsync(ctx, date, req.Instruments)
		if err != nil {
			h.logger.Error("batch enqueue error", xlogger.Error(err))
			return xhttp.AppErrorResponse(c, err)
		}
		return xhttp.SuccessResponse(c, map[string]interface{}{
			"enqueued": n,
			"date":     req.Date,
		})
	}

	res, err := h.batch.RunDay(ctx, date, req.Instruments)
	if err != nil {
		h.logger.Error("batch run error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *DiagnosticsEchoHandler) Onboard(c echo.Context) error {
	req := &models.OnboardRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	b, err := h.onboard.Onboard(c.Request().Context(), usecase.OnboardParams{
		Instrument: req.Instrument,
		Lookback:   req.Lookback,
		Force:      req.Force,
	})
	if err != nil {
		h.logger.Error("onboard error",
			xlogger.String("instrument", req.Instrument),
			xlogger.Error(err),
		)
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.CreatedResponse(c, b)
}

// Recompute refreshes locked statistics for one instrument, or all when no
// instrument is given.
func (h *DiagnosticsEchoHandler) Recompute(c echo.Context) error {
	req := &models.RecomputeRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	asOf := time.Now().UTC()
	if req.AsOf != "" {
		asOf, _ = util.ParseDay(req.AsOf)
	}

	ctx := c.Request().Context()
	if req.Instrument != "" {
		warnings, err := h.recompute.RefreshLocked(ctx, req.Instrument, asOf)
		if err != nil {
			if errors.Is(err, models.ErrMissingBaseline) {
				return xhttp.NotFoundResponse(c, err.Error())
			}
			return xhttp.AppErrorResponse(c, err)
		}
		return xhttp.SuccessResponse(c, map[string]interface{}{
			"instrument":     req.Instrument,
			"drift_warnings": warnings,
		})
	}

	failures, err := h.recompute.RefreshAllLocked(ctx, asOf)
	if err != nil {
		return xhttp.AppErrorResponse(c, err)
	}
	out := make(map[string]string, len(failures))
	for k, v := range failures {
		out[k] = v.Error()
	}
	return xhttp.SuccessResponse(c, map[string]interface{}{
		"failures": out,
	})
}
