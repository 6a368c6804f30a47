package remote

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ClimaPulse/internal/domain/errs"
	"ClimaPulse/internal/domain/models"
	domrepo "ClimaPulse/internal/domain/repository"
)

func TestHTTPRemote_PostsPayload(t *testing.T) {
	var gotPath string
	var gotBody map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = w.Write([]byte(`{"text":"ok"}`))
	}))
	defer srv.Close()

	r := NewHTTPRemote(Config{BaseURL: srv.URL + "/", Timeout: time.Second})
	raw, err := r.Invoke(context.Background(), models.OpNarrative, map[string]string{"indicator": "co2"})

	require.NoError(t, err)
	assert.Equal(t, "/v1/narrative", gotPath)
	assert.Equal(t, "co2", gotBody["indicator"])
	assert.JSONEq(t, `{"text":"ok"}`, string(raw))
}

func TestHTTPRemote_StatusClassification(t *testing.T) {
	tests := []struct {
		status    int
		permanent bool
	}{
		{http.StatusBadRequest, true},
		{http.StatusNotFound, true},
		{http.StatusTooManyRequests, false},
		{http.StatusBadGateway, false},
		{http.StatusServiceUnavailable, false},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, "nope", tt.status)
			}))
			defer srv.Close()

			_, err := NewHTTPRemote(Config{BaseURL: srv.URL}).Invoke(context.Background(), models.OpForecast, nil)
			require.Error(t, err)
			assert.Equal(t, tt.permanent, errs.IsPermanent(err))
		})
	}
}

func TestHTTPRemote_RejectsNonJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<html>"))
	}))
	defer srv.Close()

	_, err := NewHTTPRemote(Config{BaseURL: srv.URL}).Invoke(context.Background(), models.OpTable, nil)
	assert.Error(t, err)
}

func TestHTTPRemote_NotConfigured(t *testing.T) {
	_, err := NewHTTPRemote(Config{}).Invoke(context.Background(), models.OpForecast, nil)
	assert.True(t, errors.Is(err, domrepo.ErrRemoteNotConfigured))
}

func TestHTTPRemote_RateLimitHonoursContext(t *testing.T) {
	r := NewHTTPRemote(Config{BaseURL: "http://127.0.0.1:1", RateLimit: 0.001, Burst: 1})
	r.limiter.Allow()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := r.Invoke(ctx, models.OpForecast, nil)
	assert.Error(t, err)
}
