// Package askclient talks to a question-answering endpoint: POST /ask with
// {"question": ...} and a JSON reply of any shape, plus the GET /health and
// GET /memory status endpoints.
package askclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"gopkg.in/resty.v1"

	"lawqa/pkg/circuitbreaker"
	"lawqa/pkg/correlation"
	"lawqa/pkg/logging"
	"lawqa/pkg/retry"
)

const (
	AskPath    = "/ask"
	HealthPath = "/health"
	MemoryPath = "/memory"
)

var (
	// ErrTransport means no HTTP response arrived (refused, reset, DNS, timeout).
	ErrTransport = errors.New("transport error")
	// ErrDecode means the response body was not valid JSON.
	ErrDecode = errors.New("response is not valid JSON")
	// ErrStatus means the server answered with a non-2xx status.
	ErrStatus = errors.New("unexpected status")
	// ErrEmptyQuestion is returned before any I/O for a blank question.
	ErrEmptyQuestion = errors.New("question is empty")
)

// StatusError carries the status of a non-2xx reply. It matches ErrStatus.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: %d %s", ErrStatus, e.Code, http.StatusText(e.Code))
}

func (e *StatusError) Is(target error) bool {
	return target == ErrStatus
}

// Request is the /ask request body.
type Request struct {
	Question string `json:"question"`
}

// Response is one reply from the endpoint. Body holds the parsed JSON
// (numbers kept as json.Number so re-encoding does not alter them).
type Response struct {
	StatusCode    int
	Body          interface{}
	Raw           []byte
	CorrelationID string
}

// OK reports a 2xx status.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Pretty indents the reply as received. Key order and string bytes are
// left exactly as the server sent them.
func (r *Response) Pretty() (string, error) {
	var buf bytes.Buffer
	if err := json.Indent(&buf, bytes.TrimSpace(r.Raw), "", "  "); err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return buf.String(), nil
}

// Options configures a Client. Zero values pick defaults.
type Options struct {
	BaseURL     string
	Timeout     time.Duration
	MaxAttempts int
	Logger      logging.Logger
	Breaker     *circuitbreaker.CircuitBreaker
	IDs         *correlation.IDGenerator
}

// Client sends questions to an answer server.
type Client struct {
	http     *resty.Client
	breaker  *circuitbreaker.CircuitBreaker
	retryCfg retry.Config
	ids      *correlation.IDGenerator
	logger   logging.Logger
}

// New builds a Client from opts.
func New(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = "http://localhost:5000"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewLogger("client")
	}
	if opts.IDs == nil {
		opts.IDs = correlation.NewIDGenerator("client")
	}
	if opts.Breaker == nil {
		opts.Breaker = circuitbreaker.New("ask", circuitbreaker.AskEndpointConfig(),
			circuitbreaker.WithIgnoredErrors(isCallerCancellation))
	}

	c := &Client{
		http:    resty.New().SetHostURL(opts.BaseURL).SetTimeout(opts.Timeout),
		breaker: opts.Breaker,
		ids:     opts.IDs,
		logger:  opts.Logger,
	}

	c.retryCfg = retry.AskRetryConfig(opts.MaxAttempts)
	c.retryCfg.ShouldRetry = shouldRetry
	c.retryCfg.OnRetry = func(attempt int, delay time.Duration, err error) {
		c.logger.WithFields(map[string]interface{}{
			"attempt":  attempt,
			"delay_ms": delay.Milliseconds(),
		}).Error("Request failed, retrying", err)
	}
	return c
}

// Ask posts question to /ask and parses the JSON reply.
//
// A transport failure returns (nil, error wrapping ErrTransport). A reply that is
// not JSON returns the Response with Raw set and an error wrapping ErrDecode. A
// non-2xx JSON reply returns the parsed Response and a *StatusError.
func (c *Client) Ask(ctx context.Context, question string) (*Response, error) {
	if strings.TrimSpace(question) == "" {
		return nil, ErrEmptyQuestion
	}
	return c.do(ctx, http.MethodPost, AskPath, Request{Question: question})
}

// Health fetches /health.
func (c *Client) Health(ctx context.Context) (*Response, error) {
	return c.do(ctx, http.MethodGet, HealthPath, nil)
}

// Memory fetches /memory.
func (c *Client) Memory(ctx context.Context) (*Response, error) {
	return c.do(ctx, http.MethodGet, MemoryPath, nil)
}

// BreakerState reports the endpoint breaker state. A batch stops asking once it is open.
func (c *Client) BreakerState() circuitbreaker.State {
	return c.breaker.State()
}

func (c *Client) do(ctx context.Context, method, path string, body interface{}) (*Response, error) {
	id, ctx := correlation.GetOrGenerate(ctx, c.ids)
	log := c.logger.WithCorrelationID(id).WithFields(map[string]interface{}{
		"method": method,
		"path":   path,
	})

	var out *Response
	err := retry.WithRetry(ctx, c.retryCfg, func() error {
		out = nil
		return c.breaker.Call(func() error {
			resp, err := c.send(ctx, id, method, path, body)
			if err != nil {
				return err
			}
			out = resp
			if isGatewayStatus(resp.StatusCode) {
				return &StatusError{Code: resp.StatusCode}
			}
			return nil
		})
	})
	if out == nil {
		log.Error("Request failed", err)
		return nil, err
	}

	log.WithField("status_code", out.StatusCode).Debug("Response received")

	if derr := decodeBody(out); derr != nil {
		return out, derr
	}
	if !out.OK() {
		return out, &StatusError{Code: out.StatusCode}
	}
	return out, nil
}

func (c *Client) send(ctx context.Context, id, method, path string, body interface{}) (*Response, error) {
	req := c.http.R().
		SetContext(ctx).
		SetHeader(correlation.HeaderName, id).
		SetHeader("Accept", "application/json")
	if body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(body)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	return &Response{
		StatusCode:    resp.StatusCode(),
		Raw:           resp.Body(),
		CorrelationID: id,
	}, nil
}

func decodeBody(r *Response) error {
	dec := json.NewDecoder(bytes.NewReader(r.Raw))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return fmt.Errorf("%w (status %d): %v", ErrDecode, r.StatusCode, err)
	}
	if dec.More() {
		return fmt.Errorf("%w (status %d): trailing data after JSON value", ErrDecode, r.StatusCode)
	}
	r.Body = v
	return nil
}

func isGatewayStatus(code int) bool {
	return code == http.StatusBadGateway || code == http.StatusServiceUnavailable || code == http.StatusGatewayTimeout
}

func isCallerCancellation(err error) bool {
	return errors.Is(err, context.Canceled)
}

func shouldRetry(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, circuitbreaker.ErrCircuitOpen) {
		return false
	}
	if errors.Is(err, ErrTransport) {
		return true
	}
	var se *StatusError
	return errors.As(err, &se) && isGatewayStatus(se.Code)
}
