// Package client is the operator-side HTTP client for a running ERS server.
// The CLI's case and metrics commands use it.
package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"github.com/ers/ers/internal/domain/emergency"
	"github.com/ers/ers/internal/platform/middleware"
)

// APIError is a non-2xx response from the server. A 404 matches
// emergency.ErrNotFound via errors.Is.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) Is(target error) bool {
	return e.StatusCode == http.StatusNotFound && target == emergency.ErrNotFound
}

type errorBody struct {
	Message string `json:"message"`
}

// CasePage is one page of GET /api/v1/cases.
type CasePage struct {
	Data    []emergency.Case `json:"data"`
	Total   int              `json:"total"`
	Limit   int              `json:"limit"`
	Offset  int              `json:"offset"`
	HasMore bool             `json:"has_more"`
}

// Health is the body of GET /health.
type Health struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

type Client struct {
	http   *resty.Client
	logger zerolog.Logger
}

// New returns a client for the server at baseURL.
func New(baseURL string, logger zerolog.Logger) *Client {
	rc := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(10*time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(200*time.Millisecond).
		SetRetryMaxWaitTime(2*time.Second).
		AddRetryCondition(func(r *resty.Response, _ error) bool {
			// Gateway errors are retried for reads only.
			return r != nil && r.Request.Method == http.MethodGet && r.StatusCode() >= http.StatusBadGateway
		}).
		SetHeader("Accept", "application/json").
		SetHeader("X-ERS-Dashboard", "cli")

	return &Client{
		http:   rc,
		logger: logger.With().Str("component", "ers_client").Logger(),
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var apiErr errorBody
	req := c.http.R().
		SetContext(ctx).
		SetError(&apiErr)
	if body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(body)
	}
	if out != nil {
		req.SetResult(out)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		c.logger.Error().Err(err).Str("method", method).Str("path", middleware.RedactPath(path)).Msg("request failed")
		return fmt.Errorf("%s %s: %w", method, middleware.RedactPath(path), err)
	}
	if resp.IsError() {
		msg := apiErr.Message
		if msg == "" {
			msg = http.StatusText(resp.StatusCode())
		}
		c.logger.Debug().Int("status", resp.StatusCode()).Str("path", middleware.RedactPath(path)).Msg("server returned error")
		return &APIError{StatusCode: resp.StatusCode(), Message: msg}
	}
	return nil
}

func (c *Client) Health(ctx context.Context) (Health, error) {
	var h Health
	err := c.do(ctx, http.MethodGet, "/health", nil, &h)
	return h, err
}

func (c *Client) AddCase(ctx context.Context, in emergency.CaseInput) (emergency.Case, error) {
	var out emergency.Case
	err := c.do(ctx, http.MethodPost, "/api/v1/cases", in, &out)
	return out, err
}

func (c *Client) SimulateBooking(ctx context.Context) (emergency.Case, error) {
	var out emergency.Case
	err := c.do(ctx, http.MethodPost, "/api/v1/cases/simulate", nil, &out)
	return out, err
}

// ListCases fetches one page. An empty status lists every case.
func (c *Client) ListCases(ctx context.Context, status string, limit, offset int) (CasePage, error) {
	q := url.Values{}
	if status != "" {
		q.Set("status", status)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		q.Set("offset", strconv.Itoa(offset))
	}
	path := "/api/v1/cases"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var page CasePage
	err := c.do(ctx, http.MethodGet, path, nil, &page)
	return page, err
}

func (c *Client) GetCase(ctx context.Context, id string) (emergency.Case, error) {
	var out emergency.Case
	err := c.do(ctx, http.MethodGet, "/api/v1/cases/"+url.PathEscape(id), nil, &out)
	return out, err
}

func (c *Client) FindByAccessCode(ctx context.Context, code string) (emergency.Case, error) {
	var out emergency.Case
	err := c.do(ctx, http.MethodGet, "/api/v1/cases/by-code/"+url.PathEscape(code), nil, &out)
	return out, err
}

func (c *Client) SetStatus(ctx context.Context, id, status string) (emergency.Case, error) {
	var out emergency.Case
	body := map[string]string{"status": status}
	err := c.do(ctx, http.MethodPatch, "/api/v1/cases/"+url.PathEscape(id)+"/status", body, &out)
	return out, err
}

func (c *Client) Metrics(ctx context.Context) (emergency.Metrics, error) {
	var m emergency.Metrics
	err := c.do(ctx, http.MethodGet, "/api/v1/metrics", nil, &m)
	return m, err
}

func (c *Client) SetMetrics(ctx context.Context, p emergency.MetricsPatch) (emergency.Metrics, error) {
	var m emergency.Metrics
	err := c.do(ctx, http.MethodPatch, "/api/v1/metrics", p, &m)
	return m, err
}
