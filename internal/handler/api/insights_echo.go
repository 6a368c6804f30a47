package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"ClimaPulse/internal/domain/errs"
	"ClimaPulse/internal/domain/models"
	domrepo "ClimaPulse/internal/domain/repository"
	"ClimaPulse/internal/service/validation"
	"ClimaPulse/internal/usecase"
	xhttp "ClimaPulse/pkg/http"
	applogger "ClimaPulse/pkg/logger"
)

// InsightsEchoHandler exposes the gateway, alert rules, history and the
// live stream over Echo.
type InsightsEchoHandler struct {
	logger  *applogger.Logger
	gateway *usecase.Gateway
	alerts  *usecase.AlertEvaluator
	subs    *usecase.SubscriptionManager
	history domrepo.HistoryStore
	gate    *validation.Gate
	ws      StreamConfig
}

// StreamConfig tunes the websocket stream.
type StreamConfig struct {
	PingInterval time.Duration
	WriteTimeout time.Duration
}

// NewInsightsEchoHandler builds the handler. history may be nil when the
// history store is disabled.
func NewInsightsEchoHandler(
	l *applogger.Logger,
	gateway *usecase.Gateway,
	alerts *usecase.AlertEvaluator,
	subs *usecase.SubscriptionManager,
	history domrepo.HistoryStore,
	gate *validation.Gate,
	stream StreamConfig,
) *InsightsEchoHandler {
	if l == nil {
		l = applogger.Nop()
	}
	if stream.PingInterval <= 0 {
		stream.PingInterval = 30 * time.Second
	}
	if stream.WriteTimeout <= 0 {
		stream.WriteTimeout = 10 * time.Second
	}
	return &InsightsEchoHandler{
		logger:  l.With(applogger.String("component", "http")),
		gateway: gateway,
		alerts:  alerts,
		subs:    subs,
		history: history,
		gate:    gate,
		ws:      stream,
	}
}

// RegisterRoutes mounts the API under /api plus /healthz.
func (h *InsightsEchoHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.health)

	g := e.Group("/api")
	g.GET("/forecast", h.getForecast)
	g.GET("/narrative", h.getNarrative)
	g.GET("/similar", h.getSimilar)
	g.POST("/table", h.postTable)
	g.GET("/alerts", h.getAlert)
	g.PUT("/alerts", h.putAlert)
	g.DELETE("/alerts", h.deleteAlert)
	g.GET("/history", h.getHistory)
	g.GET("/indicators", h.getIndicators)
	g.GET("/stream", h.streamTopic)
}

func (h *InsightsEchoHandler) health(c echo.Context) error {
	mode := "live"
	if h.gateway.Demo() {
		mode = "demo"
	}
	return xhttp.SuccessResponse(c, map[string]interface{}{
		"status": "ok",
		"mode":   mode,
		"topics": h.subs.TopicCount(),
	})
}

func (h *InsightsEchoHandler) getForecast(c echo.Context) error {
	req := &models.ForecastRequest{}
	if verr := xhttp.ReadRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	out, err := h.gateway.GetForecast(c.Request().Context(), *req)
	if err != nil {
		return h.failure(c, err)
	}
	return xhttp.SuccessResponse(c, out)
}

func (h *InsightsEchoHandler) getNarrative(c echo.Context) error {
	req := &models.TopicRequest{}
	if verr := xhttp.ReadRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	out, err := h.gateway.GetNarrativeInsight(c.Request().Context(), *req)
	if err != nil {
		return h.failure(c, err)
	}
	return xhttp.SuccessResponse(c, out)
}

func (h *InsightsEchoHandler) getSimilar(c echo.Context) error {
	req := &models.TopicRequest{}
	if verr := xhttp.ReadRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	out, err := h.gateway.GetSimilarRegions(c.Request().Context(), *req)
	if err != nil {
		return h.failure(c, err)
	}
	return xhttp.SuccessResponse(c, out)
}

func (h *InsightsEchoHandler) postTable(c echo.Context) error {
	req := &models.TableRequest{}
	if verr := xhttp.ReadRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	out, err := h.gateway.GetStructuredTable(c.Request().Context(), *req)
	if err != nil {
		return h.failure(c, err)
	}
	return xhttp.SuccessResponse(c, out)
}

func (h *InsightsEchoHandler) putAlert(c echo.Context) error {
	req := &models.AlertRequest{}
	if verr := xhttp.ReadRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	rule, err := h.alerts.SetAlert(c.Request().Context(), *req)
	if err != nil {
		return h.failure(c, err)
	}
	return xhttp.SuccessResponse(c, rule)
}

func (h *InsightsEchoHandler) getAlert(c echo.Context) error {
	key, err := h.topic(c)
	if err != nil {
		return h.failure(c, err)
	}
	rule, ok := h.alerts.Rule(key)
	if !ok {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("no alert rule for %s", key))
	}
	return xhttp.SuccessResponse(c, rule)
}

func (h *InsightsEchoHandler) deleteAlert(c echo.Context) error {
	key, err := h.topic(c)
	if err != nil {
		return h.failure(c, err)
	}
	if !h.alerts.RemoveRule(key) {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("no alert rule for %s", key))
	}
	return xhttp.NoContentResponse(c)
}

func (h *InsightsEchoHandler) getHistory(c echo.Context) error {
	if h.history == nil {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundError("history is disabled"))
	}
	req := &models.HistoryRequest{}
	if verr := xhttp.ReadRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	ctx := c.Request().Context()
	if err := h.gate.Check(ctx, "history", req); err != nil {
		return h.failure(c, err)
	}

	ind, _ := models.ParseIndicator(req.Indicator)
	points, err := h.history.Recent(ctx, ind, models.NormalizeRegion(req.Region), req.Limit)
	if err != nil {
		return h.failure(c, err)
	}
	return xhttp.ListResponse(c, points, int64(len(points)))
}

type indicatorInfo struct {
	ID       models.Indicator `json:"id"`
	Label    string           `json:"label"`
	Unit     string           `json:"unit"`
	Category string           `json:"category"`
}

func (h *InsightsEchoHandler) getIndicators(c echo.Context) error {
	all := models.Indicators()
	out := make([]indicatorInfo, 0, len(all))
	for _, ind := range all {
		out = append(out, indicatorInfo{ID: ind, Label: ind.Label(), Unit: ind.Unit(), Category: ind.Category()})
	}
	return xhttp.SuccessResponse(c, map[string]interface{}{
		"indicators": out,
		"ranges":     models.TimeRangeNames(),
	})
}

// topic reads and validates the indicator and region query parameters.
func (h *InsightsEchoHandler) topic(c echo.Context) (models.TopicKey, error) {
	req := &models.TopicRequest{}
	if verr := xhttp.ReadRequest(c, req); verr != nil {
		return "", &bindError{details: verr}
	}
	if err := h.gate.Check(c.Request().Context(), "topic", req); err != nil {
		return "", err
	}
	ind, _ := models.ParseIndicator(req.Indicator)
	return models.NewTopicKey(ind, req.Region), nil
}

type bindError struct{ details []xhttp.ValidationError }

func (e *bindError) Error() string { return "bind request" }

func (h *InsightsEchoHandler) failure(c echo.Context, err error) error {
	if be, ok := err.(*bindError); ok {
		return xhttp.BadRequestResponse(c, be.details)
	}
	if errs.IsKind(err, errs.KindValidation) {
		return xhttp.BadRequestResponse(c, validationDetails(errs.FailuresOf(err)))
	}
	h.logger.Error("request failed",
		applogger.String("path", c.Path()),
		applogger.String("kind", string(errs.KindOf(err))),
		applogger.Error(err))
	return xhttp.AppErrorResponse(c, xhttp.InternalError(http.StatusText(http.StatusInternalServerError)).WithError(err))
}

func validationDetails(failures []errs.FieldError) []xhttp.ValidationError {
	out := make([]xhttp.ValidationError, len(failures))
	for i, f := range failures {
		out[i] = xhttp.ValidationError{Code: f.Code, Field: f.Field, Message: f.Message, Params: f.Params}
	}
	return out
}
