//
// Tencent is pleased to support the open source community by making trpc-pipeline-agent available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-pipeline-agent is licensed under the Apache License Version 2.0.
//
//

// Package transport opens the authenticated streaming connection to the
// remote agent service and exposes the response body as a lazy, pull-based
// sequence of raw frames. It performs network I/O only: no retries, no
// decoding beyond stream framing, no persistence.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/openai/openai-go/packages/ssestream"

	"trpc.group/trpc-go/trpc-pipeline-agent/conversation"
)

// ConnectionError reports an inability to establish the streaming
// connection: network unreachable, auth rejected, non-2xx handshake.
// The transport never retries; retry policy belongs to the runner.
type ConnectionError struct {
	// Endpoint is the URL the connection was attempted against.
	Endpoint string
	// StatusCode is the handshake status, 0 when no response was received.
	StatusCode int
	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *ConnectionError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("connect %s: handshake status %d: %v", e.Endpoint, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("connect %s: %v", e.Endpoint, e.Err)
}

// Unwrap returns the underlying cause.
func (e *ConnectionError) Unwrap() error { return e.Err }

// ToolChoiceMode selects how the agent may pick tools during a run.
type ToolChoiceMode string

// Tool choice modes.
const (
	// ToolChoiceAuto lets the agent decide which allowed tools to invoke.
	ToolChoiceAuto ToolChoiceMode = "auto"
	// ToolChoiceNone forbids tool invocations for the run.
	ToolChoiceNone ToolChoiceMode = "none"
)

// ToolConstraint restricts the tools available to the agent for one run.
type ToolConstraint struct {
	Mode         ToolChoiceMode `json:"mode"`
	AllowedTools []string       `json:"allowedTools,omitempty"`
}

// Request is the conversation payload submitted when opening a stream.
type Request struct {
	ConversationID string                 `json:"conversationId,omitempty"`
	Messages       []conversation.Message `json:"messages"`
	Tools          *ToolConstraint        `json:"tools,omitempty"`
	Stream         bool                   `json:"stream"`
}

// Frame is one raw unit of data received from the stream before decoding.
type Frame struct {
	// Tag is the stream-level frame tag (the SSE event field), may be empty.
	Tag string
	// Data is the opaque frame payload.
	Data []byte
}

const (
	defaultStreamTimeout = 10 * time.Minute

	// handshakeErrorBodyLimit bounds how much of a non-2xx response body is
	// captured into the connection error.
	handshakeErrorBodyLimit = 2048
)

// doneSentinel is the explicit end-of-stream marker some agent backends
// emit instead of closing the connection.
var doneSentinel = []byte("[DONE]")

// Client opens streaming conversations against one agent endpoint.
type Client struct {
	endpoint   string
	token      string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithToken sets the bearer credential attached to every request. The
// credential is treated as an opaque string; acquisition is the caller's
// concern.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) { c.httpClient = httpClient }
}

// NewClient creates a transport client for the given endpoint URL.
func NewClient(endpoint string, opts ...Option) *Client {
	c := &Client{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: defaultStreamTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Open submits the conversation payload and returns the server-streamed
// response as a Stream of frames. The stream is bound to ctx: cancelling
// the context closes the underlying connection, which the consumer observes
// as end of stream.
func (c *Client) Open(ctx context.Context, req *Request) (*Stream, error) {
	payload := *req
	payload.Stream = true
	body, err := json.Marshal(&payload)
	if err != nil {
		return nil, fmt.Errorf("marshal conversation payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build stream request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Cache-Control", "no-cache")
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &ConnectionError{Endpoint: c.endpoint, Err: err}
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, handshakeErrorBodyLimit))
		resp.Body.Close()
		return nil, &ConnectionError{
			Endpoint:   c.endpoint,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("%s", bytes.TrimSpace(snippet)),
		}
	}
	return &Stream{decoder: ssestream.NewDecoder(resp)}, nil
}

// Stream is a lazy, finite sequence of raw frames. Next blocks on the
// network read; it is the single suspension point of a run.
type Stream struct {
	decoder ssestream.Decoder
	frame   Frame
}

// NewStream wraps an SSE decoder. Exported for tests that feed synthetic
// frame sequences without a network connection.
func NewStream(decoder ssestream.Decoder) *Stream {
	return &Stream{decoder: decoder}
}

// NewStreamFromResponse wraps an already-established SSE response, e.g. a
// replayed event log served by the diagnostics server.
func NewStreamFromResponse(resp *http.Response) *Stream {
	return &Stream{decoder: ssestream.NewDecoder(resp)}
}

// Next advances to the next frame. It returns false on connection close,
// read error or the explicit end-of-stream marker; Err distinguishes the
// failure case.
func (s *Stream) Next() bool {
	if !s.decoder.Next() {
		return false
	}
	evt := s.decoder.Event()
	if bytes.Equal(bytes.TrimSpace(evt.Data), doneSentinel) {
		return false
	}
	tag := evt.Type
	// SSE frames without an explicit event field default to "message".
	if tag == "message" {
		tag = ""
	}
	s.frame = Frame{Tag: tag, Data: evt.Data}
	return true
}

// Frame returns the current frame. Valid after Next reported true.
func (s *Stream) Frame() Frame { return s.frame }

// Err returns the terminal stream error, nil on clean close.
func (s *Stream) Err() error { return s.decoder.Err() }

// Close releases the underlying connection. Safe to call more than once.
func (s *Stream) Close() error { return s.decoder.Close() }
