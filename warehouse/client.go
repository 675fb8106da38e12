//
// Tencent is pleased to support the open source community by making trpc-pipeline-agent available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-pipeline-agent is licensed under the Apache License Version 2.0.
//
//

package warehouse

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/text/unicode/norm"
)

// API paths of the warehouse companion service.
const (
	sqlPath     = "/api/v1/sql"
	searchPath  = "/api/v1/search"
	analystPath = "/api/v1/analyst"
)

const defaultRequestTimeout = 2 * time.Minute

// APIError reports a non-2xx response from the warehouse service.
type APIError struct {
	Path       string
	StatusCode int
	Message    string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("warehouse %s: status %d: %s", e.Path, e.StatusCode, e.Message)
}

// Client is an HTTP implementation of SQLExecutor, Searcher and Analyst
// against one warehouse endpoint.
type Client struct {
	endpoint   string
	token      string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithToken sets the bearer credential attached to every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) { c.httpClient = httpClient }
}

// NewClient creates a warehouse client for the given base endpoint URL.
func NewClient(endpoint string, opts ...Option) *Client {
	c := &Client{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: defaultRequestTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Execute implements SQLExecutor.
func (c *Client) Execute(ctx context.Context, statement string) (*SQLResult, error) {
	var result SQLResult
	err := c.post(ctx, sqlPath, map[string]any{"statement": statement}, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// Search implements Searcher. The query is NFC-normalized before
// submission so equivalent unicode spellings rank identically.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]Hit, error) {
	var result struct {
		Hits []Hit `json:"hits"`
	}
	body := map[string]any{"query": norm.NFC.String(query)}
	if limit > 0 {
		body["limit"] = limit
	}
	if err := c.post(ctx, searchPath, body, &result); err != nil {
		return nil, err
	}
	return result.Hits, nil
}

// Ask implements Analyst.
func (c *Client) Ask(ctx context.Context, question string) (*AnalystAnswer, error) {
	var answer AnalystAnswer
	err := c.post(ctx, analystPath, map[string]any{"question": norm.NFC.String(question)}, &answer)
	if err != nil {
		return nil, err
	}
	return &answer, nil
}

func (c *Client) post(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("call warehouse %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &APIError{
			Path:       path,
			StatusCode: resp.StatusCode,
			Message:    string(bytes.TrimSpace(snippet)),
		}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode warehouse %s response: %w", path, err)
	}
	return nil
}
