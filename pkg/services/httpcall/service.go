// Package httpcall provides the HTTP request service for SERVICE activities.
package httpcall

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/netvariant/moqui-workflow/pkg/protocol"
)

const ID = "http.request"

type Service struct {
	client *http.Client
	logger *slog.Logger
}

// New builds the service. A nil client gets a 30 second timeout.
func New(client *http.Client, logger *slog.Logger) protocol.Service {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	return &Service{client: client, logger: logger.With("service", ID)}
}

func (s *Service) ID() string { return ID }

func (s *Service) Name() string { return "HTTP Request" }

func (s *Service) Description() string {
	return "Calls an HTTP endpoint. The parsed JSON response, or the raw body, is the result."
}

func (s *Service) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"type":    "string",
				"pattern": "^https?://",
			},
			"method": map[string]any{
				"type": "string",
				"enum": []string{"GET", "POST", "PUT", "PATCH", "DELETE"},
			},
			"headers": map[string]any{
				"type":                 "object",
				"additionalProperties": map[string]any{"type": "string"},
			},
			"body": map[string]any{},
			"retries": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"attempts": map[string]any{"type": "integer", "minimum": 1, "maximum": 10},
					"delay":    map[string]any{"type": "integer", "minimum": 0},
				},
			},
		},
		"required": []string{"url"},
	}
}

// StatusError is a response with a 4xx or 5xx status.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

type request struct {
	url      string
	method   string
	headers  map[string]string
	body     string
	attempts int
	delay    time.Duration
}

func parse(params map[string]any) (request, error) {
	req := request{method: http.MethodGet, headers: map[string]string{}, attempts: 1}

	url, ok := params["url"].(string)
	if !ok || url == "" {
		return req, errors.New("missing required parameter 'url'")
	}

	req.url = url

	if method, ok := params["method"].(string); ok && method != "" {
		req.method = strings.ToUpper(method)
	}

	if headers, ok := params["headers"].(map[string]any); ok {
		for k, v := range headers {
			if s, ok := v.(string); ok {
				req.headers[k] = s
			}
		}
	}

	switch body := params["body"].(type) {
	case nil:
	case string:
		req.body = body
	default:
		data, err := json.Marshal(body)
		if err != nil {
			return req, fmt.Errorf("failed to encode body: %w", err)
		}

		req.body = string(data)
	}

	if retries, ok := params["retries"].(map[string]any); ok {
		if n, ok := number(retries["attempts"]); ok && n > 0 {
			req.attempts = n
		}

		if n, ok := number(retries["delay"]); ok && n > 0 {
			req.delay = time.Duration(n) * time.Millisecond
		}
	}

	return req, nil
}

func number(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	}

	return 0, false
}

// Call performs the request, retrying network failures and 5xx responses.
func (s *Service) Call(ctx context.Context, params map[string]any) (map[string]any, error) {
	req, err := parse(params)
	if err != nil {
		return nil, err
	}

	var lastErr error

	for attempt := 1; attempt <= req.attempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(req.delay):
			}
		}

		result, err := s.do(ctx, req)
		if err == nil {
			return result, nil
		}

		lastErr = err

		s.logger.WarnContext(ctx, "HTTP call failed", "url", req.url, "attempt", attempt, "error", err)

		var statusErr *StatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode < 500 {
			break
		}
	}

	return nil, fmt.Errorf("HTTP request failed after %d attempts: %w", req.attempts, lastErr)
}

func (s *Service) do(ctx context.Context, req request) (map[string]any, error) {
	var reqBody io.Reader
	if req.body != "" {
		reqBody = strings.NewReader(req.body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, req.url, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	for key, value := range req.headers {
		httpReq.Header.Set(key, value)
	}

	if req.body != "" && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}

	result := map[string]any{
		"status_code": resp.StatusCode,
		"body":        string(respBody),
		"result":      string(respBody),
	}

	var jsonBody any
	if err := json.Unmarshal(respBody, &jsonBody); err == nil {
		result["json"] = jsonBody
		result["result"] = jsonBody
	}

	return result, nil
}
