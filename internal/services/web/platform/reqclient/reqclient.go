// Package reqclient calls flash-enabled endpoints the way browser code does
// and dispatches their JSON envelopes to callbacks.
package reqclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/louisbranch/reqflash/internal/services/web/platform/flash"
)

// DefaultCSRFKey is the form field that carries the CSRF token.
const DefaultCSRFKey = "csrf"

// maxBody bounds how much of a response is read.
const maxBody = 1 << 20

// Result is a decoded envelope.
type Result struct {
	Status     string
	Messages   []flash.Message
	StatusCode int
	Header     http.Header
}

// Handler receives a decoded envelope.
type Handler func(ctx context.Context, res Result)

// StatusHandler handles a response with a specific HTTP status.
type StatusHandler func(ctx context.Context, resp *http.Response)

// TransportErrorHandler handles failed requests and unexpected statuses.
// resp is nil when no response arrived.
type TransportErrorHandler func(ctx context.Context, resp *http.Response, err error)

// StatusError reports a non-2xx response.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d %s", e.Code, http.StatusText(e.Code))
}

// Client sends AJAX-style requests.
type Client struct {
	HTTP *http.Client
	// CSRFKey names the token field; empty means DefaultCSRFKey.
	CSRFKey string
	// CSRFToken is added to every request when set.
	CSRFToken string

	// OnSuccess and OnError run in order for envelopes with the matching
	// status. Empty sets log the envelope instead.
	OnSuccess []Handler
	OnError   []Handler
	// StatusHandlers override the built-in 403 and 404 handlers and add
	// handlers for other codes.
	StatusHandlers   map[int]StatusHandler
	OnTransportError TransportErrorHandler

	Logger *zap.Logger
}

// Do sends form to target with the AJAX marker header and dispatches the
// envelope. GET and HEAD requests carry form in the query string.
func (c *Client) Do(ctx context.Context, method, target string, form url.Values) (*Result, error) {
	req, err := c.newRequest(ctx, method, target, form)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient().Do(req)
	if err != nil {
		c.transportError(ctx, nil, err)
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		statusErr := &StatusError{Code: resp.StatusCode}
		if handler, ok := c.statusHandler(resp.StatusCode); ok {
			handler(ctx, resp)
		} else {
			c.transportError(ctx, resp, statusErr)
		}
		return nil, statusErr
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		c.transportError(ctx, resp, err)
		return nil, fmt.Errorf("read response: %w", err)
	}
	res, err := Decode(body)
	if err != nil {
		c.transportError(ctx, resp, err)
		return nil, err
	}
	res.StatusCode = resp.StatusCode
	res.Header = resp.Header.Clone()
	c.dispatch(ctx, res)
	return &res, nil
}

func (c *Client) newRequest(ctx context.Context, method, target string, form url.Values) (*http.Request, error) {
	method = strings.ToUpper(strings.TrimSpace(method))
	if method == "" {
		method = http.MethodGet
	}
	values := url.Values{}
	for key, vals := range form {
		values[key] = append([]string(nil), vals...)
	}
	if c.CSRFToken != "" {
		key := c.CSRFKey
		if key == "" {
			key = DefaultCSRFKey
		}
		values.Set(key, c.CSRFToken)
	}

	var body io.Reader
	if method == http.MethodGet || method == http.MethodHead {
		u, err := url.Parse(target)
		if err != nil {
			return nil, fmt.Errorf("parse target: %w", err)
		}
		if len(values) > 0 {
			query := u.Query()
			for key, vals := range values {
				query[key] = vals
			}
			u.RawQuery = query.Encode()
		}
		target = u.String()
	} else {
		body = bytes.NewBufferString(values.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	return req, nil
}

func (c *Client) dispatch(ctx context.Context, res Result) {
	var handlers []Handler
	switch res.Status {
	case "error":
		handlers = c.OnError
	case "success":
		handlers = c.OnSuccess
	default:
		c.logger().Warn("unknown_envelope_status", zap.String("status", res.Status))
		return
	}
	if len(handlers) == 0 {
		c.logger().Info("envelope",
			zap.String("status", res.Status),
			zap.Int("messages", len(res.Messages)),
		)
		return
	}
	for _, handler := range handlers {
		if handler != nil {
			handler(ctx, res)
		}
	}
}

func (c *Client) statusHandler(code int) (StatusHandler, bool) {
	if handler, ok := c.StatusHandlers[code]; ok && handler != nil {
		return handler, true
	}
	switch code {
	case http.StatusNotFound:
		return func(context.Context, *http.Response) {
			c.logger().Warn("request not found")
		}, true
	case http.StatusForbidden:
		return func(context.Context, *http.Response) {
			c.logger().Warn("You have no permission to complete this request.")
		}, true
	}
	return nil, false
}

func (c *Client) transportError(ctx context.Context, resp *http.Response, err error) {
	if c.OnTransportError != nil {
		c.OnTransportError(ctx, resp, err)
		return
	}
	fields := []zap.Field{zap.Error(err)}
	if resp != nil {
		fields = append(fields, zap.Int("status", resp.StatusCode), zap.Any("headers", resp.Header))
	}
	c.logger().Warn("The request could not be completed.", fields...)
}

func (c *Client) httpClient() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return http.DefaultClient
}

func (c *Client) logger() *zap.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return zap.NewNop()
}

type envelope struct {
	Status   string          `json:"status"`
	Errors   json.RawMessage `json:"errors"`
	Response json.RawMessage `json:"response"`
}

// Decode parses an envelope body. The messages come from errors for error
// envelopes and from response otherwise.
func Decode(body []byte) (Result, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Result{}, fmt.Errorf("decode envelope: %w", err)
	}
	raw := env.Response
	if env.Status == "error" {
		raw = env.Errors
	}
	messages, err := Normalize(raw)
	if err != nil {
		return Result{}, err
	}
	return Result{Status: env.Status, Messages: messages}, nil
}

// Normalize turns an array, a single message object or a bare string into
// a message list. Empty strings are placeholders and are skipped.
func Normalize(raw json.RawMessage) ([]flash.Message, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	var items []json.RawMessage
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, fmt.Errorf("decode messages: %w", err)
		}
	} else {
		items = []json.RawMessage{trimmed}
	}

	var out []flash.Message
	for _, item := range items {
		item = bytes.TrimSpace(item)
		if len(item) == 0 {
			continue
		}
		if item[0] == '"' {
			var text string
			if err := json.Unmarshal(item, &text); err != nil {
				return nil, fmt.Errorf("decode message: %w", err)
			}
			if text != "" {
				out = append(out, flash.Message{Value: &text})
			}
			continue
		}
		var msg flash.Message
		if err := json.Unmarshal(item, &msg); err != nil {
			return nil, fmt.Errorf("decode message: %w", err)
		}
		out = append(out, msg)
	}
	return out, nil
}
