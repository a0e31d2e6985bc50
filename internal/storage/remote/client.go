// Package remote talks to a hosted backend that exposes the hosted schema
// over a PostgREST-style table API, a password auth endpoint and an
// object storage bucket.
package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/KevinKickass/OpenLabManager/internal/storage"
	"github.com/KevinKickass/OpenLabManager/internal/types"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

type Config struct {
	URL        string
	APIKey     string
	Timeout    time.Duration
	RetryCount int
}

type Client struct {
	http    *resty.Client
	baseURL string
	logger  *zap.Logger
}

var (
	_ storage.Backend               = (*Client)(nil)
	_ storage.ExternalAuthenticator = (*Client)(nil)
	_ storage.FileStore             = (*Client)(nil)
)

func New(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	baseURL := strings.TrimRight(cfg.URL, "/")

	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(3 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= http.StatusInternalServerError
		}).
		SetHeader("apikey", cfg.APIKey).
		SetAuthToken(cfg.APIKey).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &Client{http: client, baseURL: baseURL, logger: logger}
}

func (c *Client) Name() string { return "remote" }

// Capabilities: the hosted schema keeps device history in its own tables
// but owns neither credentials nor the password policy flag.
func (c *Client) Capabilities() storage.Capabilities {
	return storage.Capabilities{DeviceHistory: true}
}

func (c *Client) Ping(ctx context.Context) error {
	var rows []siteRow
	return c.get(ctx, "ping", storage.HostedSites, map[string]string{"select": "id", "limit": "1"}, &rows)
}

func (c *Client) Reset(ctx context.Context) error {
	return storage.ErrUnsupported
}

func (c *Client) Close() error { return nil }

// apiError is the error body of the table API.
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
	Hint    string `json:"hint"`
}

// check maps transport failures and error statuses to the domain taxonomy.
func (c *Client) check(op, entity, uniqueField string, resp *resty.Response, err error) error {
	if err != nil {
		c.logger.Warn("Remote call failed", zap.String("op", op), zap.Error(err))
		return types.Unavailable(op, err)
	}
	if !resp.IsError() {
		return nil
	}

	var body apiError
	_ = json.Unmarshal(resp.Body(), &body)

	if resp.StatusCode() == http.StatusConflict || body.Code == "23505" {
		return types.Duplicate(entity, uniqueField)
	}
	c.logger.Warn("Remote call rejected",
		zap.String("op", op),
		zap.Int("status_code", resp.StatusCode()),
		zap.String("code", body.Code),
		zap.String("message", body.Message))
	return types.Unavailable(op, fmt.Errorf("status %d: %s", resp.StatusCode(), body.Message))
}

func tablePath(table string) string {
	return "/rest/v1/" + table
}

func eq(v any) string {
	return fmt.Sprintf("eq.%v", v)
}

func (c *Client) get(ctx context.Context, op, table string, query map[string]string, out any) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(query).
		SetResult(out).
		Get(tablePath(table))
	return c.check(op, table, "", resp, err)
}

// insert posts one row and returns the id of the stored representation.
func (c *Client) insert(ctx context.Context, op, table, entity, uniqueField string, row any) (int64, error) {
	var out []struct {
		ID int64 `json:"id"`
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Prefer", "return=representation").
		SetBody(row).
		SetResult(&out).
		Post(tablePath(table))
	if err := c.check(op, entity, uniqueField, resp, err); err != nil {
		return 0, err
	}
	if len(out) == 0 {
		return 0, types.Unavailable(op, fmt.Errorf("empty representation"))
	}
	return out[0].ID, nil
}

// patch updates the rows matching filter. An empty update only checks that
// a matching row exists.
func (c *Client) patch(ctx context.Context, op, table, entity, uniqueField string, id any, body map[string]any) error {
	filter := map[string]string{"id": eq(id)}
	if len(body) == 0 {
		var rows []json.RawMessage
		filter["select"] = "id"
		if err := c.get(ctx, op, table, filter, &rows); err != nil {
			return err
		}
		if len(rows) == 0 {
			return types.NotFound(entity, id)
		}
		return nil
	}

	var out []json.RawMessage
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Prefer", "return=representation").
		SetQueryParams(filter).
		SetBody(body).
		SetResult(&out).
		Patch(tablePath(table))
	if err := c.check(op, entity, uniqueField, resp, err); err != nil {
		return err
	}
	if len(out) == 0 {
		return types.NotFound(entity, id)
	}
	return nil
}

func (c *Client) remove(ctx context.Context, op, table, entity string, id any) error {
	var out []json.RawMessage
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Prefer", "return=representation").
		SetQueryParam("id", eq(id)).
		SetResult(&out).
		Delete(tablePath(table))
	if err := c.check(op, entity, "", resp, err); err != nil {
		return err
	}
	if len(out) == 0 {
		return types.NotFound(entity, id)
	}
	return nil
}
