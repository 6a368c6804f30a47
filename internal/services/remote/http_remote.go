package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"ClimaPulse/internal/domain/errs"
	"ClimaPulse/internal/domain/models"
	domrepo "ClimaPulse/internal/domain/repository"
	xhttp "ClimaPulse/pkg/http"
)

type Config struct {
	BaseURL   string
	Timeout   time.Duration
	RateLimit float64 // requests per second
	Burst     int
}

// HTTPRemote calls the analytics backend over JSON/HTTP. Every operation
// kind is a POST to {BaseURL}/v1/{kind}.
type HTTPRemote struct {
	baseURL string
	client  *xhttp.Client
	limiter *rate.Limiter
}

func NewHTTPRemote(cfg Config) *HTTPRemote {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	return &HTTPRemote{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client: xhttp.NewClient(
			xhttp.WithTimeout(cfg.Timeout),
			xhttp.WithHeader("Accept", "application/json"),
		),
		limiter: rate.NewLimiter(limit, cfg.Burst),
	}
}

var _ domrepo.Remote = (*HTTPRemote)(nil)

// Invoke posts payload and returns the raw JSON answer. Client errors other
// than 408 and 429 are marked permanent.
func (r *HTTPRemote) Invoke(ctx context.Context, kind models.OperationKind, payload interface{}) (json.RawMessage, error) {
	if r.baseURL == "" {
		return nil, domrepo.ErrRemoteNotConfigured
	}
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}

	var body []byte
	err := r.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodPost,
		URL:    r.baseURL + "/v1/" + string(kind),
		Headers: map[string]string{
			"Content-Type": "application/json",
		},
		Body: payload,
	}, &body)
	if err != nil {
		var se *xhttp.StatusError
		if errors.As(err, &se) && !se.Temporary() {
			return nil, errs.Permanent(fmt.Errorf("post %s: %w", kind, err))
		}
		return nil, fmt.Errorf("post %s: %w", kind, err)
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("post %s: response is not valid JSON", kind)
	}
	return json.RawMessage(body), nil
}
