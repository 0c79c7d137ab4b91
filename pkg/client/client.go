// Package client talks to a running atom-robots daemon over HTTP.
package client

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultBaseURL = "http://127.0.0.1:8000"
	DefaultTimeout = 60 * time.Second
)

// Client provides HTTP client functionality to communicate with the daemon
type Client struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// Config holds client configuration
type Config struct {
	BaseURL  string // including the daemon's base path, if any
	Timeout  time.Duration
	Logger   *slog.Logger
	CACert   string // PEM file trusted for https base URLs
	Insecure bool   // skip TLS verification
}

// New creates a new API client. A CA certificate that cannot be loaded is
// an error.
func New(config Config) (*Client, error) {
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultTimeout
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	transport := &http.Transport{Proxy: http.ProxyFromEnvironment}
	if config.CACert != "" || config.Insecure {
		tlsConfig, err := setupClientTLS(config)
		if err != nil {
			return nil, err
		}
		transport.TLSClientConfig = tlsConfig
	}
	return &Client{
		baseURL: strings.TrimRight(config.BaseURL, "/"),
		logger:  config.Logger,
		client: &http.Client{
			Timeout:   config.Timeout,
			Transport: transport,
		},
	}, nil
}

// Start launches a robot counting from startNumber and returns the
// daemon's message, which carries the pid.
func (c *Client) Start(ctx context.Context, startNumber int) (string, error) {
	q := url.Values{"start_number": {strconv.Itoa(startNumber)}}
	var out messageResp
	if err := c.do(ctx, http.MethodPost, "/start", q, &out); err != nil {
		return "", err
	}
	return out.Message, nil
}

// Stop stops the robot with pid, or every robot when pid is 0.
func (c *Client) Stop(ctx context.Context, pid int) (string, error) {
	q := url.Values{"pid": {strconv.Itoa(pid)}}
	var out messageResp
	if err := c.do(ctx, http.MethodPost, "/stop", q, &out); err != nil {
		return "", err
	}
	return out.Message, nil
}

func (c *Client) Stats(ctx context.Context, sq StatsQuery) ([]Run, error) {
	q := url.Values{}
	if sq.Offset != 0 {
		q.Set("offset", strconv.Itoa(sq.Offset))
	}
	if sq.Limit != 0 {
		q.Set("limit", strconv.Itoa(sq.Limit))
	}
	if sq.OrderBy != "" {
		q.Set("order_by", sq.OrderBy)
	}
	out := []Run{}
	if err := c.do(ctx, http.MethodGet, "/stats", q, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Healthy reports whether the daemon answers /healthz with 200.
func (c *Client) Healthy(ctx context.Context) bool {
	if err := c.do(ctx, http.MethodGet, "/healthz", nil, nil); err != nil {
		c.logger.Debug("daemon unhealthy", "error", err)
		return false
	}
	return true
}

func (c *Client) do(ctx context.Context, method, path string, q url.Values, out any) error {
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.handleErrorResponse(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func (c *Client) handleErrorResponse(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}
	var body errorResp
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		c.logger.Debug("failed to decode error response", "status", resp.StatusCode, "error", err)
		apiErr.Detail = http.StatusText(resp.StatusCode)
		return apiErr
	}
	apiErr.Detail = body.Detail
	return apiErr
}

func setupClientTLS(config Config) (*tls.Config, error) {
	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}
	if config.Insecure {
		tlsConfig.InsecureSkipVerify = true
		return tlsConfig, nil
	}
	caCert, err := os.ReadFile(config.CACert)
	if err != nil {
		return nil, fmt.Errorf("failed to load CA certificate: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caCert) {
		return nil, fmt.Errorf("failed to load CA certificate: no PEM data in %s", config.CACert)
	}
	tlsConfig.RootCAs = pool
	return tlsConfig, nil
}
