// Package ok is the client of the OK.ru REST API.
package ok

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"

	"discussion_syncer/internal/domain"
	"discussion_syncer/internal/metrics"
)

var jsonAPI = jsoniter.Config{
	EscapeHTML:             true,
	SortMapKeys:            true,
	ValidateJsonRawMessage: true,
	UseNumber:              true,
}.Froze()

type Config struct {
	BaseURL           string
	ApplicationKey    string
	ApplicationSecret string
	AccessToken       string
	Timeout           time.Duration
	MaxAttempts       int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
}

// Client performs signed calls against the REST endpoint.
type Client struct {
	httpClient     *http.Client
	baseURL        string
	applicationKey string
	accessToken    string
	secretKey      string
	maxAttempts    int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	logger         *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL:        cfg.BaseURL,
		applicationKey: cfg.ApplicationKey,
		accessToken:    cfg.AccessToken,
		secretKey:      md5Hex(cfg.AccessToken + cfg.ApplicationSecret),
		maxAttempts:    max(cfg.MaxAttempts, 1),
		initialBackoff: cfg.InitialBackoff,
		maxBackoff:     cfg.MaxBackoff,
		logger:         logger.With("source", "ok"),
	}
}

// Call invokes method with params and returns the decoded body. A body that
// is not a JSON object is returned under the "result" key. Network failures
// and 5xx statuses are retried with exponential backoff; API errors are not.
func (c *Client) Call(ctx context.Context, method string, params map[string]string) (map[string]any, error) {
	start := time.Now()
	defer func() {
		metrics.APICallDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
	}()

	form := c.sign(method, params)

	var (
		resp map[string]any
		err  error
	)
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		var retry bool
		resp, retry, err = c.doRequest(ctx, method, form)
		if err == nil {
			metrics.APICalls.WithLabelValues(method, "ok").Inc()
			return resp, nil
		}

		if !retry || attempt == c.maxAttempts {
			break
		}

		backoff := c.calculateBackoff(attempt)
		c.logger.Warn("request failed, retrying",
			"method", method,
			"attempt", attempt,
			"backoff", backoff,
			"error", err,
		)

		select {
		case <-ctx.Done():
			metrics.APICalls.WithLabelValues(method, "error").Inc()
			return nil, &domain.TransportError{Method: method, Err: ctx.Err()}
		case <-time.After(backoff):
		}
	}

	result := "error"
	if isAPIError(err) {
		result = "api_error"
	}
	metrics.APICalls.WithLabelValues(method, result).Inc()
	return nil, err
}

// sign builds the request form. The signature covers every parameter except
// access_token, sorted by key and concatenated without separators.
func (c *Client) sign(method string, params map[string]string) url.Values {
	form := url.Values{}
	for k, v := range params {
		form.Set(k, v)
	}
	form.Set("application_key", c.applicationKey)
	form.Set("method", method)
	form.Set("format", "json")

	keys := make([]string, 0, len(form))
	for k := range form {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(form.Get(k))
	}
	b.WriteString(c.secretKey)

	form.Set("sig", md5Hex(b.String()))
	form.Set("access_token", c.accessToken)
	return form
}

func (c *Client) doRequest(ctx context.Context, method string, form url.Values) (map[string]any, bool, error) {
	fail := func(code int, retry bool, err error) (map[string]any, bool, error) {
		return nil, retry, &domain.TransportError{Method: method, Code: code, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fail(0, false, fmt.Errorf("create request: %w", err))
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "DiscussionSyncer/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fail(0, ctx.Err() == nil, fmt.Errorf("execute request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return fail(resp.StatusCode, resp.StatusCode >= http.StatusInternalServerError,
			fmt.Errorf("unexpected status: %d", resp.StatusCode))
	}

	var body any
	if err := jsonAPI.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fail(0, false, fmt.Errorf("decode response: %w", err))
	}

	obj, ok := body.(map[string]any)
	if !ok {
		return map[string]any{"result": body}, false, nil
	}
	if apiErr := parseAPIError(obj); apiErr != nil {
		return fail(apiErr.code, false, apiErr)
	}
	return obj, false, nil
}

type apiError struct {
	code int
	msg  string
}

func (e *apiError) Error() string {
	return e.msg
}

func parseAPIError(obj map[string]any) *apiError {
	raw, ok := obj["error_code"]
	if !ok {
		return nil
	}
	code := 0
	switch v := raw.(type) {
	case json.Number:
		if n, err := v.Int64(); err == nil {
			code = int(n)
		}
	case float64:
		code = int(v)
	}
	msg, _ := obj["error_msg"].(string)
	if msg == "" {
		msg = "api error"
	}
	return &apiError{code: code, msg: msg}
}

// isAPIError reports whether err carries an error object returned by the API.
func isAPIError(err error) bool {
	var e *apiError
	return errors.As(err, &e)
}

func (c *Client) calculateBackoff(attempt int) time.Duration {
	backoff := c.initialBackoff
	for i := 1; i < attempt; i++ {
		backoff *= 2
	}
	if backoff > c.maxBackoff {
		backoff = c.maxBackoff
	}
	return backoff
}

func md5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}
