// Package rest implements remote.Client against a json-server style REST
// resource (GET/POST /goals, GET/PUT/PATCH/DELETE /goals/{id}).
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"goalplanner/internal/core"
	"goalplanner/internal/remote"
)

const (
	DefaultTimeout = 10 * time.Second
	resource       = "goals"
	maxErrorBody   = 512
)

var _ remote.Client = (*Client)(nil)

type Client struct {
	baseURL string
	http    *http.Client
	timeout time.Duration
}

type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout bounds every call. Zero or negative disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid base url %q", baseURL)
	}
	c := &Client{
		baseURL: strings.TrimRight(u.String(), "/"),
		http:    newHTTPClient(),
		timeout: DefaultTimeout,
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// newHTTPClient keeps a small idle pool; the service is a single host.
func newHTTPClient() *http.Client {
	dialer := &net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}
	return &http.Client{
		Transport: &http.Transport{
			DialContext:           dialer.DialContext,
			MaxIdleConns:          20,
			MaxIdleConnsPerHost:   10,
			IdleConnTimeout:       90 * time.Second,
			ResponseHeaderTimeout: 10 * time.Second,
		},
	}
}

func (c *Client) FetchAll(ctx context.Context) ([]core.Goal, error) {
	var out []wireGoal
	if err := c.do(ctx, "fetch_all", http.MethodGet, c.url(""), nil, &out); err != nil {
		return nil, err
	}
	goals := make([]core.Goal, 0, len(out))
	for _, w := range out {
		goals = append(goals, w.goal())
	}
	return goals, nil
}

func (c *Client) Create(ctx context.Context, d core.Draft) (core.Goal, error) {
	body := createBody{
		Name:         d.Name,
		Category:     d.Category,
		TargetAmount: d.TargetAmount,
		SavedAmount:  core.Zero(),
		Deadline:     d.Deadline,
		CreatedAt:    d.CreatedAt,
	}
	var out wireGoal
	if err := c.do(ctx, "create", http.MethodPost, c.url(""), body, &out); err != nil {
		return core.Goal{}, err
	}
	return out.goal(), nil
}

func (c *Client) Patch(ctx context.Context, id string, p core.Patch) (core.Goal, error) {
	var out wireGoal
	if err := c.do(ctx, "patch", http.MethodPatch, c.url(id), p, &out); err != nil {
		return core.Goal{}, err
	}
	return out.goal(), nil
}

func (c *Client) Replace(ctx context.Context, id string, g core.Goal) (core.Goal, error) {
	g.ID = id
	var out wireGoal
	if err := c.do(ctx, "replace", http.MethodPut, c.url(id), g, &out); err != nil {
		return core.Goal{}, err
	}
	return out.goal(), nil
}

func (c *Client) Delete(ctx context.Context, id string) error {
	return c.do(ctx, "delete", http.MethodDelete, c.url(id), nil, nil)
}

func (c *Client) url(id string) string {
	if id == "" {
		return c.baseURL + "/" + resource
	}
	return c.baseURL + "/" + resource + "/" + url.PathEscape(id)
}

// do performs one request. A nil out discards the response body.
func (c *Client) do(ctx context.Context, op, method, target string, in, out any) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", op, err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return remote.NetworkError(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		var cause error
		if s := strings.TrimSpace(string(msg)); s != "" {
			cause = errors.New(s)
		}
		return remote.ServerError(op, resp.StatusCode, cause)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if ctx.Err() != nil {
			return remote.NetworkError(op, ctx.Err())
		}
		return remote.ServerError(op, resp.StatusCode, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

type createBody struct {
	Name         string     `json:"name"`
	Category     string     `json:"category"`
	TargetAmount core.Money `json:"targetAmount"`
	SavedAmount  core.Money `json:"savedAmount"`
	Deadline     core.Date  `json:"deadline"`
	CreatedAt    core.Date  `json:"createdAt"`
}

// wireGoal tolerates numeric ids, which json-server assigns by default.
type wireGoal struct {
	ID           flexID     `json:"id"`
	Name         string     `json:"name"`
	Category     string     `json:"category"`
	TargetAmount core.Money `json:"targetAmount"`
	SavedAmount  core.Money `json:"savedAmount"`
	Deadline     core.Date  `json:"deadline"`
	CreatedAt    core.Date  `json:"createdAt"`
}

func (w wireGoal) goal() core.Goal {
	return core.Goal{
		ID:           string(w.ID),
		Name:         w.Name,
		Category:     w.Category,
		TargetAmount: w.TargetAmount,
		SavedAmount:  w.SavedAmount,
		Deadline:     w.Deadline,
		CreatedAt:    w.CreatedAt,
	}
}

type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("id: %w", err)
	}
	*f = flexID(n.String())
	return nil
}
