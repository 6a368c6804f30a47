package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ClimaPulse/internal/domain/models"
	domrepo "ClimaPulse/internal/domain/repository"
	svccache "ClimaPulse/internal/service/cache"
	"ClimaPulse/internal/service/retry"
	"ClimaPulse/internal/service/validation"
	"ClimaPulse/internal/services/synthetic"
	"ClimaPulse/internal/usecase"
	pkgcache "ClimaPulse/pkg/cache"
	xhttp "ClimaPulse/pkg/http"
)

type memHistory struct {
	mu     sync.Mutex
	points []models.DataPoint
}

func (h *memHistory) Record(_ context.Context, _ models.Indicator, _ string, dp models.DataPoint) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.points = append(h.points, dp)
	return nil
}

func (h *memHistory) Recent(_ context.Context, _ models.Indicator, _ string, limit int) ([]models.DataPoint, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.points) > limit {
		return append([]models.DataPoint(nil), h.points[len(h.points)-limit:]...), nil
	}
	return append([]models.DataPoint(nil), h.points...), nil
}

func (h *memHistory) Close() error { return nil }

// newEcho wires a demo-mode graph; history may be nil.
func newEcho(t *testing.T, history domrepo.HistoryStore) *echo.Echo {
	t.Helper()

	gate := validation.New()
	store := pkgcache.NewMemoryCache(pkgcache.WithMemoryCleanup(0))
	t.Cleanup(func() { _ = store.Close() })

	results := svccache.NewResultCache(store, svccache.Config{}, nil, nil)
	policy := retry.New(retry.Config{MaxAttempts: 0, BaseDelay: time.Millisecond})
	synth := synthetic.New(synthetic.WithSeed(3))
	gw := usecase.NewGateway(usecase.GatewayConfig{Demo: true}, gate, results, policy, nil, synth, nil, nil)
	alerts := usecase.NewAlertEvaluator(gate, nil, nil, nil, clockwork.NewRealClock(), time.Second)
	subs := usecase.NewSubscriptionManager(
		usecase.SubscriptionConfig{PollInterval: time.Hour, FetchTimeout: time.Second},
		gate, synth, alerts, history, nil, nil, clockwork.NewRealClock())
	t.Cleanup(subs.Close)

	h := NewInsightsEchoHandler(nil, gw, alerts, subs, history, gate, StreamConfig{PingInterval: time.Second})
	e := echo.New()
	h.RegisterRoutes(e)
	return e
}

func do(e *echo.Echo, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

type envelope[T any] struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
	Data    T      `json:"data"`
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) envelope[T] {
	t.Helper()
	var out envelope[T]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestInsights_ForecastRejectsUnknownIndicator(t *testing.T) {
	e := newEcho(t, nil)

	rec := do(e, http.MethodGet, "/api/forecast?indicator=methane&region=Germany", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	body := decode[[]xhttp.ValidationError](t, rec)
	assert.Equal(t, http.StatusBadRequest, body.Status)
	require.Len(t, body.Data, 1)
	assert.Equal(t, "indicator", body.Data[0].Field)
	assert.Equal(t, "ERR_INDICATOR", body.Data[0].Code)
	assert.Contains(t, body.Data[0].Message, "co2")
}

func TestInsights_ForecastDefaultsToOneYear(t *testing.T) {
	e := newEcho(t, nil)

	rec := do(e, http.MethodGet, "/api/forecast?indicator=co2&region=Germany", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decode[models.ForecastSeries](t, rec)
	assert.Equal(t, models.Range1Y, body.Data.TimeRange)
	assert.Len(t, body.Data.Points, 12)
	assert.Equal(t, models.SourceSynthetic, body.Data.Source)
	assert.Equal(t, models.ReliabilitySimulated, body.Data.Reliability)
}

func TestInsights_NarrativeAndSimilar(t *testing.T) {
	e := newEcho(t, nil)

	rec := do(e, http.MethodGet, "/api/narrative?indicator=gdp&region=Japan", "")
	require.Equal(t, http.StatusOK, rec.Code)
	narrative := decode[models.Narrative](t, rec)
	assert.NotEmpty(t, narrative.Data.Text)

	rec = do(e, http.MethodGet, "/api/similar?indicator=gdp&region=Japan", "")
	require.Equal(t, http.StatusOK, rec.Code)
	similar := decode[models.SimilarRegions](t, rec)
	require.NotEmpty(t, similar.Data.Results)
	for _, r := range similar.Data.Results {
		assert.NotEqual(t, "japan", strings.ToLower(r.Region))
	}
}

func TestInsights_Table(t *testing.T) {
	e := newEcho(t, nil)

	rec := do(e, http.MethodPost, "/api/table", `{"prompt":"top emitters","columns":["region","co2"]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode[models.Table](t, rec)
	assert.Equal(t, []string{"region", "co2"}, body.Data.Columns)
	assert.NotEmpty(t, body.Data.Rows)

	rec = do(e, http.MethodPost, "/api/table", `{"prompt":"top emitters","columns":[]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(e, http.MethodPost, "/api/table", `{"prompt":`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	bad := decode[[]xhttp.ValidationError](t, rec)
	require.Len(t, bad.Data, 1)
	assert.Equal(t, "ERR_BIND", bad.Data[0].Code)
}

func TestInsights_AlertLifecycle(t *testing.T) {
	e := newEcho(t, nil)

	rec := do(e, http.MethodGet, "/api/alerts?indicator=co2&region=Germany", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(e, http.MethodPut, "/api/alerts", `{"indicator":"co2","region":" Germany ","threshold":5}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	created := decode[models.AlertRule](t, rec)
	assert.Equal(t, models.TopicKey("co2:germany"), created.Data.Topic)
	assert.Equal(t, models.ThresholdPercentage, created.Data.Kind)
	assert.Equal(t, models.DirectionBoth, created.Data.Direction)

	rec = do(e, http.MethodGet, "/api/alerts?indicator=co2&region=germany", "")
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[models.AlertRule](t, rec)
	assert.Equal(t, 5.0, got.Data.Threshold)

	rec = do(e, http.MethodDelete, "/api/alerts?indicator=co2&region=GERMANY", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(e, http.MethodDelete, "/api/alerts?indicator=co2&region=Germany", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestInsights_AlertRejectsBadThreshold(t *testing.T) {
	e := newEcho(t, nil)

	rec := do(e, http.MethodPut, "/api/alerts", `{"indicator":"co2","region":"Germany","threshold":-1,"kind":"ratio"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	body := decode[[]xhttp.ValidationError](t, rec)
	fields := make([]string, 0, len(body.Data))
	for _, v := range body.Data {
		fields = append(fields, v.Field)
	}
	assert.ElementsMatch(t, []string{"threshold", "kind"}, fields)
}

func TestInsights_HistoryDisabled(t *testing.T) {
	e := newEcho(t, nil)

	rec := do(e, http.MethodGet, "/api/history?indicator=co2&region=Germany", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestInsights_History(t *testing.T) {
	h := &memHistory{}
	for i := 0; i < 3; i++ {
		require.NoError(t, h.Record(context.Background(), models.IndicatorCO2, "germany",
			models.DataPoint{Value: float64(400 + i), Source: models.SourceSynthetic}))
	}
	e := newEcho(t, h)

	rec := do(e, http.MethodGet, "/api/history?indicator=co2&region=Germany&limit=2", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decode[struct {
		Rows  []models.DataPoint `json:"rows"`
		Total int64              `json:"total"`
	}](t, rec)
	assert.EqualValues(t, 2, body.Data.Total)
	require.Len(t, body.Data.Rows, 2)
	assert.Equal(t, 401.0, body.Data.Rows[0].Value)

	rec = do(e, http.MethodGet, "/api/history?indicator=co2&region=Germany&limit=5000", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestInsights_Indicators(t *testing.T) {
	e := newEcho(t, nil)

	rec := do(e, http.MethodGet, "/api/indicators", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode[struct {
		Indicators []indicatorInfo `json:"indicators"`
		Ranges     []string        `json:"ranges"`
	}](t, rec)
	assert.Len(t, body.Data.Indicators, len(models.Indicators()))
	assert.Equal(t, models.TimeRangeNames(), body.Data.Ranges)
	assert.Equal(t, "Mt", body.Data.Indicators[0].Unit)
}

func TestInsights_Health(t *testing.T) {
	e := newEcho(t, nil)

	rec := do(e, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]interface{}](t, rec)
	assert.Equal(t, "demo", body.Data["mode"])
}

func TestInsights_StreamPushesDataPoints(t *testing.T) {
	e := newEcho(t, nil)
	srv := httptest.NewServer(e)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/stream?indicator=temperature&region=Kenya"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var dp models.DataPoint
	require.NoError(t, conn.ReadJSON(&dp))
	assert.Equal(t, models.SourceSynthetic, dp.Source)
	assert.False(t, dp.Timestamp.IsZero())
}

func TestInsights_StreamRejectsInvalidTopic(t *testing.T) {
	e := newEcho(t, nil)

	rec := do(e, http.MethodGet, "/api/stream?indicator=co2&region=", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
