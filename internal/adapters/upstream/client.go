// Package upstream is the HTTP client for the benchmark API the dashboard fronts.
package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/okian/tsarena/pkg/logger"
	"github.com/okian/tsarena/pkg/metrics"
)

const (
	defaultTimeout   = 30 * time.Second
	defaultUserAgent = "tsarena-dashboard"
	defaultMaxBody   = 32 << 20

	headerAPIKey    = "X-API-Key"
	headerRequestID = "X-Request-ID"
)

// Response is a raw upstream answer.
type Response struct {
	StatusCode  int
	Body        []byte
	ContentType string
}

// OK reports whether the status is 2xx.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Client issues GET requests against the benchmark API.
type Client struct {
	base      *url.URL
	apiKey    string
	http      Doer
	timeout   time.Duration
	userAgent string
	maxBody   int64
	log       logger.Logger
	validate  *validator.Validate
}

// New creates a client for baseURL. The api key is attached to every request.
func New(baseURL, apiKey string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidBaseURL, baseURL)
	}
	c := &Client{
		base:      u,
		apiKey:    apiKey,
		http:      &http.Client{},
		timeout:   defaultTimeout,
		userAgent: defaultUserAgent,
		maxBody:   defaultMaxBody,
		log:       logger.Nop(),
		validate:  validator.New(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Get performs one GET of path with query. Any HTTP status is returned as a Response;
// only transport failures produce an error.
func (c *Client) Get(ctx context.Context, endpoint, path string, query url.Values) (*Response, error) {
	const op = "upstream.get"

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	target := c.resolve(path, query)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrTransport, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if c.apiKey != "" {
		req.Header.Set(headerAPIKey, c.apiKey)
	}
	rid := logger.RequestID(ctx)
	if rid == "" {
		rid = uuid.New().String()
	}
	req.Header.Set(headerRequestID, rid)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		metrics.RecordUpstreamError("transport")
		metrics.RecordErrorByComponent("upstream", "transport")
		c.log.Warn(ctx, "upstream call failed",
			logger.String("endpoint", endpoint),
			logger.String("path", path),
			logger.Error(err))
		return nil, fmt.Errorf("%s: %w: %w", op, ErrTransport, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody))
	elapsed := time.Since(start)
	metrics.RecordUpstreamRequest(endpoint, strconv.Itoa(resp.StatusCode), float64(elapsed.Milliseconds()))
	if err != nil {
		metrics.RecordUpstreamError("transport")
		return nil, fmt.Errorf("%s: read body: %w: %w", op, ErrTransport, err)
	}

	c.log.Debug(ctx, "upstream call",
		logger.String("endpoint", endpoint),
		logger.String("path", path),
		logger.Int("status", resp.StatusCode),
		logger.Duration("took", elapsed))

	return &Response{
		StatusCode:  resp.StatusCode,
		Body:        body,
		ContentType: resp.Header.Get("Content-Type"),
	}, nil
}

// GetJSON performs Get and decodes a 2xx body into out, then checks it against its validate tags.
func (c *Client) GetJSON(ctx context.Context, endpoint, path string, query url.Values, out any) error {
	const op = "upstream.get_json"

	resp, err := c.Get(ctx, endpoint, path, query)
	if err != nil {
		return err
	}
	if !resp.OK() {
		metrics.RecordUpstreamError("status")
		return &StatusError{Endpoint: endpoint, StatusCode: resp.StatusCode, Body: resp.Body}
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		metrics.RecordUpstreamError("contract")
		return fmt.Errorf("%s: %s: %w: %w", op, endpoint, ErrContractViolation, err)
	}
	if err := c.check(out); err != nil {
		metrics.RecordUpstreamError("contract")
		c.log.Warn(ctx, "upstream payload failed validation",
			logger.String("endpoint", endpoint),
			logger.Error(err))
		return fmt.Errorf("%s: %s: %w: %w", op, endpoint, ErrContractViolation, err)
	}
	return nil
}

// resolve joins an already escaped path onto the base url.
func (c *Client) resolve(path string, query url.Values) string {
	u := *c.base
	u.RawQuery = ""
	u.Fragment = ""
	target := strings.TrimRight(u.String(), "/") + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	return target
}

// check validates structs and each struct element of slices.
func (c *Client) check(out any) error {
	v := reflect.ValueOf(out)
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return nil
		}
		v = v.Elem()
	}
	switch v.Kind() {
	case reflect.Struct:
		return c.validate.Struct(v.Interface())
	case reflect.Slice:
		var errs []error
		for i := 0; i < v.Len(); i++ {
			el := v.Index(i)
			if el.Kind() != reflect.Struct {
				continue
			}
			if err := c.validate.Struct(el.Interface()); err != nil {
				errs = append(errs, fmt.Errorf("item %d: %w", i, err))
			}
		}
		return errors.Join(errs...)
	}
	return nil
}
