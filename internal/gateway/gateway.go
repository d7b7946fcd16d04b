// Package gateway is the single point of contact with the game service. Every
// call is one attempt: no retry, no backoff, and no deadline beyond the
// caller's context.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	apperrors "econsim-terminal/internal/errors"
	"econsim-terminal/internal/logging"
	"econsim-terminal/internal/metrics"
)

// DefaultBaseURL is the service address used when none is configured.
const DefaultBaseURL = "http://localhost:8000"

// Config holds configuration for the gateway client.
type Config struct {
	BaseURL    string
	HTTPClient *http.Client
	Logger     zerolog.Logger
}

// Client performs read and write calls against the game service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     zerolog.Logger
}

// New creates a new gateway client.
func New(cfg Config) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     cfg.Logger,
	}
}

// BaseURL returns the service address.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Read fetches an entity collection or object.
func Read[T any](ctx context.Context, c *Client, resource, path string) (T, error) {
	var out T
	if err := c.do(ctx, http.MethodGet, resource, path, nil, &out); err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}

// Submit sends a mutation and decodes the post-mutation representation.
// A nil payload is sent as an empty JSON object.
func Submit[T any](ctx context.Context, c *Client, resource, path string, payload any) (T, error) {
	if payload == nil {
		payload = struct{}{}
	}
	var out T
	if err := c.do(ctx, http.MethodPost, resource, path, payload, &out); err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, resource, path string, payload any, out any) (err error) {
	requestID := uuid.NewString()
	start := time.Now()
	status := 0
	defer func() {
		elapsed := time.Since(start)
		metrics.ObserveRequest(method, resource, status, elapsed)
		logging.LogAPICall(c.logger, requestID, method, path, status, elapsed, err)
	}()

	var body io.Reader
	if payload != nil {
		data, merr := json.Marshal(payload)
		if merr != nil {
			return apperrors.NewTransportError(method, path, fmt.Errorf("encoding payload: %w", merr))
		}
		body = bytes.NewReader(data)
	}

	req, rerr := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if rerr != nil {
		return apperrors.NewTransportError(method, path, rerr)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, derr := c.httpClient.Do(req)
	if derr != nil {
		return apperrors.NewTransportError(method, path, derr)
	}
	defer resp.Body.Close()
	status = resp.StatusCode

	raw, rerr := io.ReadAll(resp.Body)
	if rerr != nil {
		return apperrors.NewTransportError(method, path, fmt.Errorf("reading response: %w", rerr))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return apperrors.NewRemoteError(method, path, resp.StatusCode, string(raw))
	}

	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if jerr := json.Unmarshal(raw, out); jerr != nil {
		return apperrors.NewTransportError(method, path, fmt.Errorf("decoding response: %w", jerr))
	}
	return nil
}
