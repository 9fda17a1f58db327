package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"deviceguard/pkg/domain"
)

// Client talks to the device access API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a new API client.
func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// WithHTTPClient swaps the transport, e.g. for tests.
func (c *Client) WithHTTPClient(h *http.Client) *Client {
	c.httpClient = h
	return c
}

// CheckAccess returns the access decision for fingerprint.
func (c *Client) CheckAccess(ctx context.Context, fingerprint string) (*domain.AccessStatus, error) {
	var st domain.AccessStatus
	if err := c.get(ctx, "/devices/"+url.PathEscape(fingerprint)+"/access", &st); err != nil {
		return nil, fmt.Errorf("client.CheckAccess: %w", err)
	}
	return &st, nil
}

// Register binds a phone to the device and triggers a code.
func (c *Client) Register(ctx context.Context, req domain.RegisterRequest) (*domain.RegisterResult, error) {
	var res domain.RegisterResult
	if err := c.post(ctx, "/devices/register", req, &res); err != nil {
		return nil, fmt.Errorf("client.Register: %w", err)
	}
	return &res, nil
}

// Verify submits a code.
func (c *Client) Verify(ctx context.Context, req domain.VerifyRequest) (*domain.VerifyResult, error) {
	var res domain.VerifyResult
	if err := c.post(ctx, "/devices/verify", req, &res); err != nil {
		return nil, fmt.Errorf("client.Verify: %w", err)
	}
	return &res, nil
}

// Resend asks for a new code (device) or a new invitation link (token).
func (c *Client) Resend(ctx context.Context, req domain.ResendRequest) (*domain.ResendResult, error) {
	var res domain.ResendResult
	if err := c.post(ctx, "/devices/resend", req, &res); err != nil {
		return nil, fmt.Errorf("client.Resend: %w", err)
	}
	return &res, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	return c.doRequest(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) post(ctx context.Context, path string, body any, out any) error {
	return c.doRequest(ctx, http.MethodPost, path, body, out)
}

func (c *Client) doRequest(ctx context.Context, method, path string, body any, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		return unavailable(fmt.Sprintf("cannot reach server: %v", err))
	}
	defer resp.Body.Close() //nolint:errcheck // best-effort close

	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return unavailable(fmt.Sprintf("decode response: %v", err))
		}
	}
	return nil
}

func decodeError(resp *http.Response) error {
	respBody, readErr := io.ReadAll(io.LimitReader(resp.Body, 1<<20)) // 1 MB max error body
	if readErr != nil {
		return &HTTPError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("failed to read body: %v", readErr), API: fallbackError(resp)}
	}
	var env domain.ErrorResponse
	if json.Unmarshal(respBody, &env) == nil && env.Error != nil && env.Error.Kind != "" {
		if env.Error.Kind == domain.KindRateLimited && env.Error.RetryAfterSeconds == 0 {
			env.Error.RetryAfterSeconds = retryAfterHeader(resp)
		}
		return &HTTPError{StatusCode: resp.StatusCode, Message: env.Error.Message, API: env.Error}
	}
	return &HTTPError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(respBody)), API: fallbackError(resp)}
}

// fallbackError classifies bodies that are not protocol errors (proxies, gateways).
func fallbackError(resp *http.Response) *domain.Error {
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return domain.RateLimited(retryAfterHeader(resp), "too many requests")
	case resp.StatusCode >= 500:
		return domain.NewError(domain.KindBackendUnavailable, "server error (HTTP %d)", resp.StatusCode)
	default:
		return domain.NewError(domain.KindInvalidInput, "request rejected (HTTP %d)", resp.StatusCode)
	}
}

func retryAfterHeader(resp *http.Response) int {
	n, err := strconv.Atoi(resp.Header.Get("Retry-After"))
	if err != nil || n < 1 {
		return 1
	}
	return n
}

func unavailable(msg string) error {
	return domain.NewError(domain.KindBackendUnavailable, "%s", msg)
}
