package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

const defaultClientTimeout = 30 * time.Second
const defaultResponseBodyLimit int64 = 1 << 20 // 1 MiB

// HTTPDoer is the subset of *http.Client the provider client needs. Tests
// inject fakes; production wiring passes http.Client instances with provider
// specific timeouts.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Request describes one provider API call. Query values are merged into the
// URL's existing query string; Headers override the client defaults per key.
type Request struct {
	Method  string
	URL     string
	Query   map[string]string
	Headers map[string]string
	Body    []byte

	// Timeout bounds this call only. Zero inherits the context deadline.
	Timeout time.Duration
	// MaxResponseBodyBytes caps this response; zero uses the client limit.
	MaxResponseBodyBytes int64
}

// Response is the outcome of a completed HTTP exchange. Non-2xx statuses are
// not errors at this layer: adapters decide how provider rejections map onto
// their send results.
type Response struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
	Duration   time.Duration
}

// Success reports whether the status is in the 2xx range.
func (r Response) Success() bool {
	return r.StatusCode >= http.StatusOK && r.StatusCode < http.StatusMultipleChoices
}

// Header returns the named response header, case-insensitively. Multi-valued
// headers were flattened with commas at read time.
func (r Response) Header(key string) string {
	key = strings.TrimSpace(key)
	for existing, value := range r.Headers {
		if strings.EqualFold(strings.TrimSpace(existing), key) {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

// DecodeJSON unmarshals the response body into out.
func (r Response) DecodeJSON(out any) error {
	if len(r.Body) == 0 {
		return clientError(
			"transport: response body is empty",
			goerrors.CategoryExternal,
			http.StatusBadGateway,
			map[string]any{"status_code": r.StatusCode},
		)
	}
	if err := json.Unmarshal(r.Body, out); err != nil {
		return clientWrapError(
			err,
			goerrors.CategoryExternal,
			"transport: decode json response",
			http.StatusBadGateway,
			map[string]any{"status_code": r.StatusCode},
		)
	}
	return nil
}

// Client executes provider API requests over an injected HTTPDoer. Default
// headers are applied to every request; per-request headers win on conflict.
type Client struct {
	Doer                 HTTPDoer
	DefaultHeaders       map[string]string
	MaxResponseBodyBytes int64
}

func NewClient(doer HTTPDoer) *Client {
	if doer == nil {
		doer = &http.Client{Timeout: defaultClientTimeout}
	}
	return &Client{
		Doer:                 doer,
		DefaultHeaders:       map[string]string{},
		MaxResponseBodyBytes: defaultResponseBodyLimit,
	}
}

// Do executes one request. It returns an error only for transport-level
// failures: bad input, connection errors, oversized or unreadable bodies.
func (c *Client) Do(ctx context.Context, req Request) (Response, error) {
	if c == nil || c.Doer == nil {
		return Response{}, clientError(
			"transport: client requires an http doer",
			goerrors.CategoryInternal,
			http.StatusInternalServerError,
			nil,
		)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	method := strings.TrimSpace(strings.ToUpper(req.Method))
	if method == "" {
		method = http.MethodGet
	}
	parsedURL, err := url.Parse(strings.TrimSpace(req.URL))
	if err != nil {
		return Response{}, clientWrapError(
			err,
			goerrors.CategoryBadInput,
			"transport: invalid request url",
			http.StatusBadRequest,
			map[string]any{"url": strings.TrimSpace(req.URL)},
		)
	}
	if parsedURL.String() == "" {
		return Response{}, clientError(
			"transport: request url is required",
			goerrors.CategoryBadInput,
			http.StatusBadRequest,
			nil,
		)
	}

	query := parsedURL.Query()
	for key, value := range req.Query {
		if strings.TrimSpace(key) == "" {
			continue
		}
		query.Set(strings.TrimSpace(key), strings.TrimSpace(value))
	}
	parsedURL.RawQuery = query.Encode()

	requestCtx := ctx
	cancel := func() {}
	if req.Timeout > 0 {
		requestCtx, cancel = context.WithTimeout(ctx, req.Timeout)
	}
	defer cancel()

	httpReq, err := http.NewRequestWithContext(requestCtx, method, parsedURL.String(), bytes.NewReader(req.Body))
	if err != nil {
		return Response{}, clientWrapError(
			err,
			goerrors.CategoryBadInput,
			"transport: create http request",
			http.StatusBadRequest,
			map[string]any{"method": method, "url": parsedURL.String()},
		)
	}
	for key, value := range c.DefaultHeaders {
		if strings.TrimSpace(key) == "" {
			continue
		}
		httpReq.Header.Set(strings.TrimSpace(key), strings.TrimSpace(value))
	}
	for key, value := range req.Headers {
		if strings.TrimSpace(key) == "" {
			continue
		}
		httpReq.Header.Set(strings.TrimSpace(key), strings.TrimSpace(value))
	}

	startedAt := time.Now().UTC()
	httpRes, err := c.Doer.Do(httpReq)
	if err != nil {
		return Response{}, clientWrapError(
			err,
			goerrors.CategoryExternal,
			"transport: execute http request",
			http.StatusBadGateway,
			map[string]any{"method": method, "url": parsedURL.String()},
		)
	}
	defer httpRes.Body.Close()

	maxBodyBytes := resolveBodyLimit(req.MaxResponseBodyBytes, c.MaxResponseBodyBytes)
	body, err := io.ReadAll(io.LimitReader(httpRes.Body, maxBodyBytes+1))
	if err != nil {
		return Response{}, clientWrapError(
			err,
			goerrors.CategoryExternal,
			"transport: read response body",
			http.StatusBadGateway,
			map[string]any{"status_code": httpRes.StatusCode},
		)
	}
	if int64(len(body)) > maxBodyBytes {
		return Response{}, clientError(
			fmt.Sprintf("transport: response body exceeds limit of %d bytes", maxBodyBytes),
			goerrors.CategoryExternal,
			http.StatusBadGateway,
			map[string]any{
				"status_code":      httpRes.StatusCode,
				"response_limit_b": maxBodyBytes,
			},
		)
	}

	return Response{
		StatusCode: httpRes.StatusCode,
		Headers:    flattenHeaders(httpRes.Header),
		Body:       body,
		Duration:   time.Since(startedAt),
	}, nil
}

// GetJSON runs a GET and decodes a 2xx body into out. Non-2xx responses are
// returned to the caller undecoded.
func (c *Client) GetJSON(ctx context.Context, url string, headers map[string]string, out any) (Response, error) {
	res, err := c.Do(ctx, Request{Method: http.MethodGet, URL: url, Headers: headers})
	if err != nil {
		return Response{}, err
	}
	if !res.Success() || out == nil {
		return res, nil
	}
	if err := res.DecodeJSON(out); err != nil {
		return res, err
	}
	return res, nil
}

// PostJSON marshals payload, runs a POST with a JSON content type, and
// decodes a 2xx body into out when out is non-nil.
func (c *Client) PostJSON(ctx context.Context, url string, headers map[string]string, payload any, out any) (Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Response{}, clientWrapError(
			err,
			goerrors.CategoryBadInput,
			"transport: encode json request",
			http.StatusBadRequest,
			map[string]any{"url": url},
		)
	}
	merged := map[string]string{"Content-Type": "application/json"}
	for key, value := range headers {
		merged[key] = value
	}
	res, err := c.Do(ctx, Request{Method: http.MethodPost, URL: url, Headers: merged, Body: body})
	if err != nil {
		return Response{}, err
	}
	if !res.Success() || out == nil {
		return res, nil
	}
	if err := res.DecodeJSON(out); err != nil {
		return res, err
	}
	return res, nil
}

func flattenHeaders(headers http.Header) map[string]string {
	if len(headers) == 0 {
		return map[string]string{}
	}
	flat := make(map[string]string, len(headers))
	for key, values := range headers {
		if len(values) == 0 {
			flat[key] = ""
			continue
		}
		flat[key] = strings.Join(values, ",")
	}
	return flat
}

func resolveBodyLimit(requestLimit int64, clientLimit int64) int64 {
	if requestLimit > 0 {
		return requestLimit
	}
	if clientLimit > 0 {
		return clientLimit
	}
	return defaultResponseBodyLimit
}
