// Package countryconfig calls the country configuration service when an action
// requires confirmation before it is committed.
package countryconfig

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"crvs/internal/events/metrics"
	"crvs/internal/events/scope"
	id "crvs/pkg/domain"
	dErrors "crvs/pkg/domain-errors"
	"crvs/pkg/platform/circuit"
	"crvs/pkg/requestcontext"
)

const (
	DefaultTimeout = 10 * time.Second

	maxResponseBytes = 1 << 20

	traceScope       = "crvs.countryconfig"
	traceSpanNotify  = "crvs.countryconfig.notify"
	traceAttrEvent   = "crvs.event_id"
	traceAttrType    = "crvs.action_type"
	traceAttrOutcome = "crvs.outcome"
)

// Outcome is the result class of a webhook call.
type Outcome string

const (
	OutcomeSyncOK  Outcome = "sync-ok"
	OutcomePending Outcome = "pending"
	OutcomeFailed  Outcome = "failed"
)

// Notification is the body posted to the country configuration service.
type Notification struct {
	ActionID         id.ActionID    `json:"actionId"`
	EventID          id.EventID     `json:"eventId"`
	EventType        string         `json:"eventType"`
	ActionType       string         `json:"actionType"`
	CustomActionType string         `json:"customActionType,omitempty"`
	TransactionID    string         `json:"transactionId"`
	CreatedBy        id.UserID      `json:"createdBy"`
	Declaration      map[string]any `json:"declaration"`
	Annotation       map[string]any `json:"annotation"`
}

// Result describes a completed call. Annotation holds the optional
// "annotation" object of a synchronous response.
type Result struct {
	Outcome    Outcome
	StatusCode int
	Annotation map[string]any
}

type response struct {
	Annotation map[string]any `json:"annotation"`
}

// Client posts action notifications to {baseURL}/trigger/events/{slug}/actions/{TYPE}.
// Calls are never retried; a circuit breaker short-circuits calls while the
// service keeps failing.
type Client struct {
	baseURL string
	http    *http.Client
	timeout time.Duration
	breaker *circuit.Breaker
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		if c != nil {
			cl.http = c
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(cl *Client) {
		if d > 0 {
			cl.timeout = d
		}
	}
}

func WithBreaker(b *circuit.Breaker) Option {
	return func(cl *Client) {
		if b != nil {
			cl.breaker = b
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(cl *Client) {
		cl.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(cl *Client) {
		cl.metrics = m
	}
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{},
		timeout: DefaultTimeout,
		breaker: circuit.New("country-config"),
	}
	for _, opt := range opts {
		opt(c)
	}
	// Redirects are never followed; a 3xx answer fails the call.
	hc := *c.http
	hc.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	c.http = &hc
	return c
}

// Notify performs one webhook call. 202 Accepted yields OutcomePending, any
// other 2xx OutcomeSyncOK. Everything else is an error carrying
// CodeUpstream, or CodeTimeout when the call exceeded its deadline.
func (c *Client) Notify(ctx context.Context, n Notification) (result Result, err error) {
	ctx, span := otel.Tracer(traceScope).Start(ctx, traceSpanNotify, trace.WithAttributes(
		attribute.String(traceAttrEvent, n.EventID.String()),
		attribute.String(traceAttrType, n.ActionType),
	))
	start := time.Now()
	defer func() {
		span.SetAttributes(attribute.String(traceAttrOutcome, string(result.Outcome)))
		markSpanResult(span, err)
		span.End()
	}()

	if !c.breaker.Allow() {
		c.metrics.ObserveWebhook(n.ActionType, "short-circuit", time.Since(start))
		return Result{Outcome: OutcomeFailed}, dErrors.New(dErrors.CodeUpstream, "country config service unavailable")
	}

	result, err = c.do(ctx, n)
	// a 4xx answer still proves the service is reachable
	if err != nil && countsAsFailure(result) {
		if _, change := c.breaker.RecordFailure(); change.Opened && c.logger != nil {
			c.logger.WarnContext(ctx, "country config circuit opened", "breaker", c.breaker.Name())
		}
	} else if _, change := c.breaker.RecordSuccess(); change.Closed && c.logger != nil {
		c.logger.InfoContext(ctx, "country config circuit closed", "breaker", c.breaker.Name())
	}
	c.metrics.ObserveWebhook(n.ActionType, string(result.Outcome), time.Since(start))
	return result, err
}

func (c *Client) do(ctx context.Context, n Notification) (Result, error) {
	failed := Result{Outcome: OutcomeFailed}
	body, err := json.Marshal(n)
	if err != nil {
		return failed, dErrors.Wrap(err, dErrors.CodeInternal, "failed to encode notification")
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	endpoint := fmt.Sprintf("%s/trigger/events/%s/actions/%s",
		c.baseURL, url.PathEscape(scope.Slug(n.EventType)), url.PathEscape(strings.ToUpper(n.ActionType)))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return failed, dErrors.Wrap(err, dErrors.CodeInternal, "failed to build notification request")
	}
	req.Header.Set("Content-Type", "application/json")
	if token := requestcontext.BearerToken(ctx); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if reqID := requestcontext.RequestID(ctx); reqID != "" {
		req.Header.Set("X-Request-ID", reqID)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if isTimeout(err) {
			return failed, dErrors.Wrap(err, dErrors.CodeTimeout, "country config service timed out")
		}
		return failed, dErrors.Wrap(err, dErrors.CodeUpstream, "country config service unreachable")
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		if isTimeout(err) {
			return failed, dErrors.Wrap(err, dErrors.CodeTimeout, "country config service timed out")
		}
		return failed, dErrors.Wrap(err, dErrors.CodeUpstream, "failed to read country config response")
	}

	failed.StatusCode = resp.StatusCode
	switch {
	case resp.StatusCode == http.StatusAccepted:
		return Result{Outcome: OutcomePending, StatusCode: resp.StatusCode}, nil
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		res := Result{Outcome: OutcomeSyncOK, StatusCode: resp.StatusCode}
		if len(bytes.TrimSpace(raw)) > 0 {
			var parsed response
			if err := json.Unmarshal(raw, &parsed); err == nil {
				res.Annotation = parsed.Annotation
			}
		}
		return res, nil
	default:
		return failed, dErrors.New(dErrors.CodeUpstream, fmt.Sprintf("country config service rejected action: status %d", resp.StatusCode))
	}
}

// countsAsFailure reports whether a failed call says the service itself is
// unhealthy rather than refusing this action.
func countsAsFailure(r Result) bool {
	return r.StatusCode == 0 || r.StatusCode >= http.StatusInternalServerError
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func markSpanResult(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.SetStatus(codes.Ok, "")
}
