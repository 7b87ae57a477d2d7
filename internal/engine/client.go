package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"netmig/internal/async"
	apperrors "netmig/internal/errors"
	"netmig/internal/httpclient"
	"netmig/internal/logging"
	"netmig/internal/observability"
)

const (
	defaultRequestTimeout = 30 * time.Second

	// maxSnapshotBytes bounds status responses. A large DPSK import carries
	// thousands of per-identity tasks, so this is well above the usual size.
	maxSnapshotBytes = 4 << 20
	maxErrorBytes    = 64 * 1024
)

// Config configures a job engine client.
type Config struct {
	// BaseURL is the engine root, e.g. "https://migrate.example.net/api".
	BaseURL string
	// Token is sent as a bearer credential on every request.
	Token string
	// Timeout bounds non-streaming requests. Zero means the default.
	Timeout time.Duration

	Logger  logging.Logger
	Metrics *observability.MetricsCollector
	// Tracer is optional; nil disables request spans.
	Tracer *observability.TracerProvider
}

// Client talks to the job engine's HTTP API. All methods are safe for
// concurrent use.
type Client struct {
	baseURL string
	token   string

	httpClient   *http.Client
	streamClient *http.Client

	logger  logging.Logger
	metrics *observability.MetricsCollector
	tracer  *observability.TracerProvider
}

// NewClient validates config and returns a ready client.
func NewClient(config Config) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(config.BaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("engine base URL is required")
	}

	timeout := config.Timeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	logger := config.Logger
	if logging.IsNil(logger) {
		logger = logging.NewComponentLogger("engine")
	}

	metrics := config.Metrics
	if metrics == nil {
		metrics = &observability.MetricsCollector{}
	}

	return &Client{
		baseURL:      baseURL,
		token:        config.Token,
		httpClient:   httpclient.New(timeout),
		streamClient: httpclient.NewStreaming(),
		logger:       logger,
		metrics:      metrics,
		tracer:       config.Tracer,
	}, nil
}

// StartJob submits a new job and returns its ID.
func (c *Client) StartJob(ctx context.Context, req StartJobRequest) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal start request: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPost, "/jobs/start", "start", body,
		observability.OperationAttrs(req.Operation, req.Controller)...)
	if err != nil {
		return "", err
	}

	var started StartJobResponse
	if err := c.decode(resp, "start", &started); err != nil {
		return "", err
	}
	if started.JobID == "" {
		return "", apperrors.NewPermanentError(
			fmt.Errorf("start response carried no job_id"),
			"Engine accepted the job but returned no job id. Check the engine version.",
		)
	}

	c.logger.Info("Started %s job %s", req.Operation, started.JobID)
	return started.JobID, nil
}

// JobStatus fetches the full snapshot of one job.
func (c *Client) JobStatus(ctx context.Context, jobID string) (*Job, error) {
	resp, err := c.do(ctx, http.MethodGet, "/jobs/"+jobID+"/status", "status", nil,
		observability.JobAttrs(jobID)...)
	if err != nil {
		return nil, c.mapJobError(err, jobID)
	}

	var job Job
	if err := c.decode(resp, "status", &job); err != nil {
		return nil, err
	}
	if job.ID == "" {
		job.ID = jobID
	}
	return &job, nil
}

// CancelJob asks the engine to cancel a job. The engine decides what that
// means for work already in flight; callers learn the outcome from later
// snapshots, not from this call.
func (c *Client) CancelJob(ctx context.Context, jobID string) error {
	resp, err := c.do(ctx, http.MethodPost, "/jobs/"+jobID+"/cancel", "cancel", nil,
		observability.JobAttrs(jobID)...)
	if err != nil {
		return c.mapJobError(err, jobID)
	}
	_ = resp.Body.Close()
	c.logger.Info("Requested cancellation of job %s", jobID)
	return nil
}

// OpenStream opens the SSE event stream for a job. The returned Stream
// owns the connection; callers must Close it or drain Events to the end.
func (c *Client) OpenStream(ctx context.Context, jobID string) (*Stream, error) {
	streamCtx, cancel := context.WithCancel(ctx)

	endpoint := c.baseURL + "/jobs/" + jobID + "/stream"
	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		cancel()
		return nil, &TransportError{Op: "stream", Err: err}
	}
	c.setHeaders(req)
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	started := time.Now()
	resp, err := c.streamClient.Do(req)
	if err != nil {
		cancel()
		c.metrics.RecordEngineRequest(ctx, "stream", "error", time.Since(started))
		return nil, wrapRequestError("stream", err)
	}
	c.metrics.RecordEngineRequest(ctx, "stream", strconv.Itoa(resp.StatusCode), time.Since(started))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, readErr := httpclient.ReadAllWithLimit(resp.Body, maxErrorBytes)
		_ = resp.Body.Close()
		cancel()
		if readErr != nil {
			return nil, &TransportError{Op: "stream", Err: readErr}
		}
		return nil, c.mapJobError(mapHTTPError(resp.StatusCode, body, resp.Header), jobID)
	}

	c.logger.Debug("Stream open for job %s", jobID)
	stream := newStream(streamCtx, cancel, resp.Body)
	async.Go(c.logger, "engine-stream-"+jobID, stream.read)
	return stream, nil
}

// do runs one non-streaming request inside a span when tracing is on.
// On success the caller owns resp.Body.
func (c *Client) do(ctx context.Context, method, path, route string, body []byte, attrs ...attribute.KeyValue) (*http.Response, error) {
	if c.tracer == nil {
		return c.roundTrip(ctx, method, path, route, body)
	}

	ctx, span := c.tracer.StartSpan(ctx, observability.SpanEngineRequest,
		append(attrs, attribute.String(observability.AttrRoute, route))...)
	defer span.End()

	resp, err := c.roundTrip(ctx, method, path, route, body)
	if err != nil {
		span.SetAttributes(observability.ErrorAttrs(err)...)
	}
	return resp, err
}

// roundTrip maps any request failure into the error taxonomy.
func (c *Client) roundTrip(ctx context.Context, method, path, route string, body []byte) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, &TransportError{Op: route, Err: err}
	}
	c.setHeaders(req)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	latency := time.Since(started)
	if err != nil {
		c.metrics.RecordEngineRequest(ctx, route, "error", latency)
		c.logger.Debug("%s %s failed after %v: %v", method, path, latency, err)
		return nil, wrapRequestError(route, err)
	}
	c.metrics.RecordEngineRequest(ctx, route, strconv.Itoa(resp.StatusCode), latency)
	c.logger.Debug("%s %s -> %d in %v", method, path, resp.StatusCode, latency)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, readErr := httpclient.ReadAllWithLimit(resp.Body, maxErrorBytes)
		_ = resp.Body.Close()
		if readErr != nil {
			return nil, &TransportError{Op: route, Err: readErr}
		}
		return nil, mapHTTPError(resp.StatusCode, respBody, resp.Header)
	}
	return resp, nil
}

// decode drains and closes resp.Body into out. Decode failures count as
// transport failures so pollers treat them as retryable.
func (c *Client) decode(resp *http.Response, route string, out any) error {
	defer func() { _ = resp.Body.Close() }()

	data, err := httpclient.ReadAllWithLimit(resp.Body, maxSnapshotBytes)
	if err != nil {
		var tooLarge httpclient.ResponseTooLargeError
		if errors.As(err, &tooLarge) {
			return apperrors.NewPermanentError(err,
				"Engine response exceeded the size limit. The job snapshot is too large to monitor.")
		}
		return &TransportError{Op: route, Err: err}
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &TransportError{Op: route, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

// mapJobError upgrades job-scoped HTTP failures to their typed forms so
// callers can match on the job identity.
func (c *Client) mapJobError(err error, jobID string) error {
	switch apperrors.HTTPStatusCode(err) {
	case http.StatusNotFound:
		return &NotFoundError{JobID: jobID}
	case http.StatusForbidden:
		return &ForbiddenError{JobID: jobID}
	}
	return err
}

// wrapRequestError classifies a failure from http.Client.Do. Context
// cancellation passes through untouched so deliberate shutdown is not
// reported as an engine fault.
func wrapRequestError(route string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	return &TransportError{Op: route, Err: err}
}

// mapHTTPError converts a non-2xx engine response into the error taxonomy:
// 429 and server-side statuses are transient, other client errors permanent.
func mapHTTPError(statusCode int, body []byte, headers http.Header) error {
	detail := strings.TrimSpace(string(body))
	if detail == "" {
		detail = http.StatusText(statusCode)
	}
	baseErr := fmt.Errorf("engine returned %d: %s", statusCode, detail)

	switch {
	case statusCode == http.StatusTooManyRequests:
		retryAfter := 0
		if headers != nil {
			retryAfter = parseRetryAfter(headers.Get("Retry-After"))
		}
		return &apperrors.TransientError{
			Err:        baseErr,
			StatusCode: statusCode,
			RetryAfter: retryAfter,
			Message:    "Engine rate limit reached. The monitor will retry with backoff.",
		}
	case statusCode == http.StatusRequestTimeout || statusCode >= 500:
		return &apperrors.TransientError{
			Err:        baseErr,
			StatusCode: statusCode,
			Message:    "Engine error. The service is temporarily unavailable; the monitor will retry.",
		}
	case statusCode >= 400:
		return &apperrors.PermanentError{
			Err:        baseErr,
			StatusCode: statusCode,
		}
	default:
		return &apperrors.TransientError{Err: baseErr, StatusCode: statusCode}
	}
}

// parseRetryAfter reads an integer-seconds Retry-After value. Anything
// else (dates, garbage, negatives) collapses to 0.
func parseRetryAfter(value string) int {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	seconds, err := strconv.Atoi(value)
	if err != nil || seconds < 0 {
		return 0
	}
	return seconds
}
