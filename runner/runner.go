//
// Tencent is pleased to support the open source community by making trpc-pipeline-agent available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-pipeline-agent is licensed under the Apache License Version 2.0.
//
//

// Package runner orchestrates one conversation run end to end: it owns the
// pre-stream retry/backoff loop, enforces the overall run timeout, drives
// the decode/state-machine pipeline over the transport stream and invokes
// the persistence writer exactly once per run.
package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"trpc.group/trpc-go/trpc-pipeline-agent/artifact"
	"trpc.group/trpc-go/trpc-pipeline-agent/conversation"
	"trpc.group/trpc-go/trpc-pipeline-agent/event"
	"trpc.group/trpc-go/trpc-pipeline-agent/log"
	"trpc.group/trpc-go/trpc-pipeline-agent/telemetry"
	"trpc.group/trpc-go/trpc-pipeline-agent/transport"
)

const (
	defaultRunTimeout = 5 * time.Minute

	// persistTimeout bounds the artifact write, which must proceed even
	// after the run deadline expired.
	persistTimeout = 30 * time.Second
)

// ErrEmptyConversation is returned when a run is requested with no
// messages.
var ErrEmptyConversation = errors.New("conversation has no messages")

// Runner executes conversation runs against one agent endpoint. A Runner is
// safe for concurrent use; independent runs share no mutable state.
type Runner struct {
	client  *transport.Client
	writer  artifact.Writer
	policy  RetryPolicy
	timeout time.Duration
	tools   *transport.ToolConstraint
	strict  bool

	runCounter   metric.Int64Counter
	eventCounter metric.Int64Counter
	retryCounter metric.Int64Counter
}

// Option configures a Runner.
type Option func(*Runner)

// WithTimeout sets the overall wall-clock bound of one run, independent of
// any transport-level read timeouts.
func WithTimeout(d time.Duration) Option {
	return func(r *Runner) { r.timeout = d }
}

// WithRetryPolicy replaces the pre-stream connection retry policy.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(r *Runner) { r.policy = p }
}

// WithToolConstraint restricts which tools the agent may invoke.
func WithToolConstraint(tc *transport.ToolConstraint) Option {
	return func(r *Runner) { r.tools = tc }
}

// WithStrictDecoding fails a run on the first undecodable frame instead of
// dropping it.
func WithStrictDecoding() Option {
	return func(r *Runner) { r.strict = true }
}

// New creates a Runner over the given transport client and persistence
// writer. Endpoint and credentials live on the transport client; the
// artifact destination lives on the writer. Nothing is ambient.
func New(client *transport.Client, writer artifact.Writer, opts ...Option) *Runner {
	r := &Runner{
		client:  client,
		writer:  writer,
		policy:  DefaultRetryPolicy(),
		timeout: defaultRunTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	var err error
	if r.runCounter, err = telemetry.Meter.Int64Counter("pipeline_agent_run_count"); err != nil {
		log.Errorf("create run counter: %v", err)
	}
	if r.eventCounter, err = telemetry.Meter.Int64Counter("pipeline_agent_event_count"); err != nil {
		log.Errorf("create event counter: %v", err)
	}
	if r.retryCounter, err = telemetry.Meter.Int64Counter("pipeline_agent_connect_retry_count"); err != nil {
		log.Errorf("create retry counter: %v", err)
	}
	return r
}

// Run executes one conversation against the remote agent and persists its
// record. Once streaming has begun, failures surface as a terminal
// RunResult (status failed or timed_out) rather than an error, so callers
// can always inspect partial answer text and attempted tool calls. A nil
// result is returned only when the connection could never be established
// within the retry budget. A persistence failure is returned as a non-nil
// error alongside the fully populated result; it never masks the result's
// status.
func (r *Runner) Run(ctx context.Context, conv *conversation.Conversation) (*conversation.RunResult, error) {
	if conv == nil || len(conv.Messages) == 0 {
		return nil, ErrEmptyConversation
	}

	runID := uuid.New().String()
	start := time.Now()
	ctx, span := telemetry.Tracer.Start(ctx, "agent.conversation.run",
		trace.WithAttributes(
			attribute.String("run.id", runID),
			attribute.String("conversation.id", conv.ID),
		))
	defer span.End()

	runCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	stream, err := r.open(runCtx, &transport.Request{
		ConversationID: conv.ID,
		Messages:       conv.Messages,
		Tools:          r.tools,
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	defer stream.Close()

	var machineOpts []conversation.MachineOption
	if r.strict {
		machineOpts = append(machineOpts, conversation.WithStrictDecoding())
	}
	machine := conversation.NewMachine(machineOpts...)
	r.consume(runCtx, stream, machine)

	result := machine.Snapshot(runID, conv.ID, start, time.Now())
	r.runCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("status", string(result.Status)),
	))
	log.Infof("run %s finished: status=%s events=%d tool_calls=%d",
		runID, result.Status, len(result.Events), len(result.ToolCalls))

	// Persist exactly once per run, for failed and timed out outcomes too.
	// The run deadline may already have expired, so the write gets its own
	// bounded context.
	persistCtx, cancelPersist := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancelPersist()
	ref, err := r.writer.Write(persistCtx, result)
	if err != nil {
		span.RecordError(err)
		log.Errorf("persist run %s: %v", runID, err)
		return result, fmt.Errorf("persist run %s: %w", runID, err)
	}
	result.Artifact = ref.Location
	return result, nil
}

// open establishes the stream, retrying connection errors with backoff.
// Retries happen strictly before any event has been observed; a partially
// streamed conversation is never resumed because tool side effects may
// already have occurred.
func (r *Runner) open(ctx context.Context, req *transport.Request) (*transport.Stream, error) {
	for retry := 0; ; retry++ {
		stream, err := r.client.Open(ctx, req)
		if err == nil {
			return stream, nil
		}
		if !r.policy.ShouldRetry(err) || retry >= r.policy.MaxRetries {
			return nil, fmt.Errorf("open conversation stream: %w", err)
		}
		delay := r.policy.NextDelay(retry + 1)
		r.retryCounter.Add(ctx, 1)
		log.Warnf("connection attempt %d failed, retrying in %s: %v", retry+1, delay, err)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, fmt.Errorf("open conversation stream: %w", err)
		}
	}
}

// consume drives the frame pull loop until the machine reaches a terminal
// phase or the stream ends. Each frame is processed to completion before
// the next is read; the blocking Next is the run's single suspension point
// and is bounded by the run context deadline, whose expiry cancels the
// underlying connection.
func (r *Runner) consume(ctx context.Context, stream *transport.Stream, machine *conversation.Machine) {
	for stream.Next() {
		frame := stream.Frame()
		r.eventCounter.Add(ctx, 1)
		evt, err := event.Decode(frame.Tag, frame.Data)
		var terminal bool
		if err != nil {
			var derr *event.DecodeError
			if !errors.As(err, &derr) {
				derr = &event.DecodeError{Tag: frame.Tag, Data: frame.Data, Err: err}
			}
			terminal = machine.OnDecodeError(derr)
		} else {
			terminal = machine.OnEvent(evt)
		}
		if terminal {
			return
		}
	}
	if machine.Terminal() {
		return
	}
	// The stream ended without a terminal event: either the deadline
	// expired (the context cancellation closed the transport) or the
	// connection dropped mid-stream.
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		machine.Expire()
		return
	}
	if err := stream.Err(); err != nil && errors.Is(err, context.DeadlineExceeded) {
		machine.Expire()
		return
	}
	machine.OnClose()
}
