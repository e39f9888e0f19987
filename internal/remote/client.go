// Package remote implements the client for the hosted row API: per-table
// insert/update/upsert/delete/select plus domain RPCs, all of which can fail
// and must never corrupt local state when they do.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"eduai-sync-service/internal/config"
	"eduai-sync-service/internal/logger"
)

type Client interface {
	Insert(ctx context.Context, table string, data json.RawMessage) error
	Update(ctx context.Context, table, id string, data json.RawMessage) error
	Upsert(ctx context.Context, table string, data json.RawMessage) error
	Delete(ctx context.Context, table, id string) error
	Select(ctx context.Context, table string, filters map[string]string) ([]json.RawMessage, error)
	AutoGradeSubmission(ctx context.Context, submissionID string) error
	Health(ctx context.Context) error
}

// APIError is a non-2xx response from the remote store. The sync layer does
// not distinguish rejections from transient faults; both are retried.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("remote store returned %d: %s", e.Status, e.Body)
}

type HTTPClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
	timeout time.Duration
}

// NewHTTPClient builds a client for the remote row API. Every call carries an
// explicit timeout so a hung request cannot stall a drain indefinitely.
func NewHTTPClient(cfg config.RemoteConfig) *HTTPClient {
	return &HTTPClient{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		client:  &http.Client{},
		timeout: cfg.GetTimeout(),
	}
}

func (c *HTTPClient) do(ctx context.Context, method, path, query string, body []byte, prefer string) (*http.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	u := c.baseURL + path
	if query != "" {
		u += "?" + query
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("apikey", c.apiKey)
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if prefer != "" {
		req.Header.Set("Prefer", prefer)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, &APIError{Status: resp.StatusCode, Body: string(raw)}
	}

	return resp, nil
}

// exec runs a call whose response body is not needed.
func (c *HTTPClient) exec(ctx context.Context, method, path, query string, body []byte, prefer string) error {
	resp, err := c.do(ctx, method, path, query, body, prefer)
	if err != nil {
		return err
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return nil
}

func (c *HTTPClient) Insert(ctx context.Context, table string, data json.RawMessage) error {
	return c.exec(ctx, http.MethodPost, "/rest/v1/"+table, "", data, "return=minimal")
}

func (c *HTTPClient) Update(ctx context.Context, table, id string, data json.RawMessage) error {
	query := "id=eq." + url.QueryEscape(id)
	return c.exec(ctx, http.MethodPatch, "/rest/v1/"+table, query, data, "return=minimal")
}

func (c *HTTPClient) Upsert(ctx context.Context, table string, data json.RawMessage) error {
	return c.exec(ctx, http.MethodPost, "/rest/v1/"+table, "", data, "resolution=merge-duplicates,return=minimal")
}

func (c *HTTPClient) Delete(ctx context.Context, table, id string) error {
	query := "id=eq." + url.QueryEscape(id)
	return c.exec(ctx, http.MethodDelete, "/rest/v1/"+table, query, nil, "return=minimal")
}

// Select fetches rows matching the given equality filters (empty filters
// fetch the whole table). Used by the cache refreshers.
func (c *HTTPClient) Select(ctx context.Context, table string, filters map[string]string) ([]json.RawMessage, error) {
	q := url.Values{}
	q.Set("select", "*")
	for col, val := range filters {
		q.Set(col, "eq."+val)
	}

	resp, err := c.do(ctx, http.MethodGet, "/rest/v1/"+table, q.Encode(), nil, "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var rows []json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, fmt.Errorf("failed to decode %s rows: %w", table, err)
	}

	return rows, nil
}

// AutoGradeSubmission invokes the auto_grade_submission RPC. The sync layer
// knows nothing of its semantics beyond success or failure.
func (c *HTTPClient) AutoGradeSubmission(ctx context.Context, submissionID string) error {
	body, err := json.Marshal(map[string]string{"submission_id": submissionID})
	if err != nil {
		return err
	}
	return c.exec(ctx, http.MethodPost, "/rest/v1/rpc/auto_grade_submission", "", body, "")
}

// Health probes the remote store. It is the connectivity monitor's liveness
// signal; a failure here is reported as Offline, not surfaced as an error.
func (c *HTTPClient) Health(ctx context.Context) error {
	err := c.exec(ctx, http.MethodHead, "/rest/v1/", "", nil, "")
	if err != nil {
		logger.Log.Debug("Remote health probe failed", zap.Error(err))
	}
	return err
}
