// Package lookup implements the typed clients for the backend's insurance and
// appointment-slot endpoints. Both lookups fail closed: any transport error,
// non-2xx status or undecodable body yields the conservative default value
// instead of an error.
package lookup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/haasonsaas/frontdesk/internal/backoff"
	"github.com/haasonsaas/frontdesk/internal/observability"
)

const (
	EndpointInsurance = "get_insurance_status"
	EndpointSlots     = "check_appt_slots"

	// DefaultTimeout bounds a whole lookup, retries included.
	DefaultTimeout = 5 * time.Second

	// DefaultMaxAttempts allows one retry on transport errors and 5xx.
	DefaultMaxAttempts = 2

	maxBodyBytes = 1 << 20
)

// Slot is an available appointment slot.
type Slot struct {
	ID        int64     `json:"id"`
	StartTime time.Time `json:"start_time"`
}

// InsuranceStatus is the backend's answer for one provider name.
type InsuranceStatus struct {
	Name     string `json:"name"`
	Accepted bool   `json:"accepted"`
}

type slotsResponse struct {
	Slots []Slot `json:"slots"`
}

// StatusError reports a non-2xx response.
type StatusError struct {
	Endpoint string
	Status   int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("lookup %s: unexpected status %d", e.Endpoint, e.Status)
}

// Config configures the lookup client.
type Config struct {
	// BaseURL is the backend root, e.g. "http://localhost:8000".
	BaseURL string
	// Timeout bounds each lookup including retries.
	Timeout time.Duration
	// MaxAttempts is the number of tries for retryable failures.
	MaxAttempts int
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger sets the logger used for fallback warnings.
func WithLogger(logger *observability.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithMetrics sets the metrics sink.
func WithMetrics(metrics *observability.Metrics) Option {
	return func(c *Client) { c.metrics = metrics }
}

// WithTracer sets the tracer.
func WithTracer(tracer *observability.Tracer) Option {
	return func(c *Client) { c.tracer = tracer }
}

// Client queries the lookup backend.
type Client struct {
	baseURL     *url.URL
	timeout     time.Duration
	maxAttempts int
	policy      backoff.Policy

	http    *http.Client
	logger  *observability.Logger
	metrics *observability.Metrics
	tracer  *observability.Tracer
}

// NewClient creates a lookup client for cfg.BaseURL.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	raw := strings.TrimSpace(cfg.BaseURL)
	if raw == "" {
		return nil, errors.New("lookup: base url is required")
	}
	base, err := url.Parse(strings.TrimRight(raw, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("lookup: invalid base url %q", raw)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}

	c := &Client{
		baseURL:     base,
		timeout:     cfg.Timeout,
		maxAttempts: cfg.MaxAttempts,
		policy:      backoff.LookupPolicy(),
		http:        &http.Client{},
		logger:      observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// FetchInsuranceStatus reports whether the named provider is accepted.
// Any failure, including an unknown provider, reports false.
func (c *Client) FetchInsuranceStatus(ctx context.Context, name string) bool {
	var status InsuranceStatus
	err := c.get(ctx, EndpointInsurance, url.Values{"name": {name}}, &status)
	if err != nil {
		c.logger.Warn(ctx, "insurance lookup failed, treating as not accepted", "provider", name, "error", err)
		return false
	}
	return status.Accepted
}

// FetchApptSlots returns the available slots between start and end in
// ascending order. Any failure returns an empty list.
func (c *Client) FetchApptSlots(ctx context.Context, start, end time.Time) []Slot {
	var resp slotsResponse
	params := url.Values{
		"start_time": {start.Format(time.RFC3339)},
		"end_time":   {end.Format(time.RFC3339)},
	}
	if err := c.get(ctx, EndpointSlots, params, &resp); err != nil {
		c.logger.Warn(ctx, "slot lookup failed, treating as no availability",
			"start_time", params.Get("start_time"),
			"end_time", params.Get("end_time"),
			"error", err,
		)
		return []Slot{}
	}
	if resp.Slots == nil {
		return []Slot{}
	}
	return resp.Slots
}

func (c *Client) get(ctx context.Context, endpoint string, params url.Values, out any) error {
	start := time.Now()
	ctx, span := c.tracer.TraceLookup(ctx, endpoint)
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	target := c.baseURL.JoinPath(endpoint)
	target.RawQuery = params.Encode()

	_, err := backoff.Retry(ctx, c.policy, c.maxAttempts, func(ctx context.Context, _ int) (struct{}, error) {
		return struct{}{}, c.do(ctx, endpoint, target.String(), out)
	})

	status := "success"
	if err != nil {
		status = "error"
		c.tracer.RecordError(span, err)
	}
	c.metrics.RecordLookup(endpoint, status, time.Since(start).Seconds())
	return err
}

func (c *Client) do(ctx context.Context, endpoint, target string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return backoff.Permanent(err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		statusErr := &StatusError{Endpoint: endpoint, Status: resp.StatusCode}
		if resp.StatusCode >= 500 {
			return statusErr
		}
		return backoff.Permanent(statusErr)
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(out); err != nil {
		return backoff.Permanent(fmt.Errorf("decode %s response: %w", endpoint, err))
	}
	return nil
}
