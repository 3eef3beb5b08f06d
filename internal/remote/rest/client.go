// Package rest talks to the salon REST API.
package rest

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
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"caisse/internal/core"
	"caisse/internal/remote"
)

// ErrInvalidPayload is returned when a response decodes but fails validation.
var ErrInvalidPayload = errors.New("invalid payload")

const (
	recordsPath      = "collections/"
	servicesPath     = "services/"
	employeesPath    = "employees/"
	appointmentsPath = "appointments/create"

	maxErrorBody = 512
)

type Client struct {
	baseURL  string
	http     *http.Client
	validate *validator.Validate
}

var _ remote.API = (*Client)(nil)

type Option func(*Client)

// WithHTTPClient replaces the pooled default client, mostly for tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// New returns a client for the API rooted at baseURL
// (e.g. "https://salon.example/api/"). timeout bounds each request.
func New(baseURL string, timeout time.Duration, opts ...Option) (*Client, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, errors.New("missing API base URL")
	}
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		return nil, fmt.Errorf("API base URL must be http(s): %q", baseURL)
	}
	c := &Client{
		baseURL:  strings.TrimRight(baseURL, "/") + "/",
		http:     newHTTPClientWithPooling(timeout),
		validate: validator.New(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func newHTTPClientWithPooling(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		MaxIdleConns:          50,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: timeout,
		ExpectContinueTimeout: time.Second,
		ForceAttemptHTTP2:     true,
	}
	return &http.Client{Transport: transport, Timeout: timeout}
}

func (c *Client) ListRecords(ctx context.Context, token string) ([]core.Record, error) {
	var records []core.Record
	if err := c.getJSON(ctx, token, recordsPath, &records); err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	for _, r := range records {
		if err := c.validate.Struct(r); err != nil {
			return nil, fmt.Errorf("list records: record %d: %w: %v", r.ID, ErrInvalidPayload, err)
		}
	}
	return records, nil
}

func (c *Client) ListServices(ctx context.Context, token string) ([]core.Service, error) {
	var services []core.Service
	if err := c.getJSON(ctx, token, servicesPath, &services); err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}
	for _, s := range services {
		if err := c.validate.Struct(s); err != nil {
			return nil, fmt.Errorf("list services: %w: %v", ErrInvalidPayload, err)
		}
	}
	return services, nil
}

func (c *Client) ListEmployees(ctx context.Context, token string) ([]core.Employee, error) {
	var employees []core.Employee
	if err := c.getJSON(ctx, token, employeesPath, &employees); err != nil {
		return nil, fmt.Errorf("list employees: %w", err)
	}
	for _, e := range employees {
		if err := c.validate.Struct(e); err != nil {
			return nil, fmt.Errorf("list employees: %w: %v", ErrInvalidPayload, err)
		}
	}
	return employees, nil
}

func (c *Client) DeleteRecord(ctx context.Context, token string, id int64) error {
	path := recordsPath + strconv.FormatInt(id, 10) + "/"
	resp, err := c.do(ctx, http.MethodDelete, token, path, nil)
	if err != nil {
		return fmt.Errorf("delete record %d: %w", id, err)
	}
	defer drain(resp.Body)
	return nil
}

func (c *Client) CreateAppointment(ctx context.Context, token string, a core.Appointment) error {
	body, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encode appointment: %w", err)
	}
	resp, err := c.do(ctx, http.MethodPost, token, appointmentsPath, body)
	if err != nil {
		return fmt.Errorf("create appointment: %w", err)
	}
	defer drain(resp.Body)
	return nil
}

func (c *Client) getJSON(ctx context.Context, token, path string, dst any) error {
	resp, err := c.do(ctx, http.MethodGet, token, path, nil)
	if err != nil {
		return err
	}
	defer drain(resp.Body)
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("%w: decode %s: %v", ErrInvalidPayload, path, err)
	}
	return nil
}

// do sends the request and returns the response only for 2xx statuses.
func (c *Client) do(ctx context.Context, method, token, path string, body []byte) (*http.Response, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Token "+token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	slog.DebugContext(ctx, "Salon API call",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds())

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer drain(resp.Body)
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, remote.ErrUnauthorized
	case http.StatusNotFound:
		return nil, remote.ErrNotFound
	}
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return nil, fmt.Errorf("%s %s: unexpected status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(msg)))
}

func drain(rc io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(rc, 1<<16))
	_ = rc.Close()
}
