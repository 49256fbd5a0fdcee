// Package api is the HTTP client for the apontamento endpoints of the
// production server.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/msageha/shopfloor/internal/model"
)

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Endpoint string
	Code     int
	Body     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status %d: %s", e.Endpoint, e.Code, e.Body)
}

// Filter narrows status-ativos to one kanban list and/or status.
type Filter struct {
	List   string
	Status string
}

type Client struct {
	baseURL string
	timeout time.Duration
	http    *http.Client
	logger  *zap.Logger
}

// New builds a client for cfg.BaseURL. Each request is bounded by
// cfg.Timeout() unless the caller's context expires first.
func New(cfg model.ServerConfig, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout()
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		timeout: timeout,
		http:    &http.Client{},
		logger:  logger.Named("api"),
	}
}

// ActiveStatus fetches GET /apontamento/status-ativos.
func (c *Client) ActiveStatus(ctx context.Context, f Filter) (*model.StatusResponse, error) {
	q := url.Values{}
	if f.List != "" {
		q.Set("lista", f.List)
	}
	if f.Status != "" {
		q.Set("status", f.Status)
	}
	var out model.StatusResponse
	if err := c.get(ctx, "/apontamento/status-ativos", q, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Logs fetches GET /apontamento/os/{id}/logs.
func (c *Client) Logs(ctx context.Context, orderID int) (*model.LogsResponse, error) {
	var out model.LogsResponse
	if err := c.get(ctx, "/apontamento/os/"+strconv.Itoa(orderID)+"/logs", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Details fetches GET /apontamento/detalhes/{id}.
func (c *Client) Details(ctx context.Context, orderID int) (*model.DetailResponse, error) {
	var out model.DetailResponse
	if err := c.get(ctx, "/apontamento/detalhes/"+strconv.Itoa(orderID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Pending fetches GET /apontamento/api/check-pending.
func (c *Client) Pending(ctx context.Context) (*model.PendingResponse, error) {
	var out model.PendingResponse
	if err := c.get(ctx, "/apontamento/api/check-pending", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) get(ctx context.Context, path string, q url.Values, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("build request %s: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", path, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("request",
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Endpoint: path, Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
