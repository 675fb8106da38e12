//
// Tencent is pleased to support the open source community by making trpc-pipeline-agent available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-pipeline-agent is licensed under the Apache License Version 2.0.
//
//

package conversation

import (
	"time"

	"trpc.group/trpc-go/trpc-pipeline-agent/event"
)

// Status is the terminal status of a run.
type Status string

// Run statuses.
const (
	// StatusCompleted means a final event arrived with no open tool calls
	// and no error.
	StatusCompleted Status = "completed"
	// StatusFailed means the run terminated on a protocol, decode, agent or
	// stream error.
	StatusFailed Status = "failed"
	// StatusTimedOut means the run deadline expired while streaming.
	StatusTimedOut Status = "timed_out"
)

// ErrorKind classifies why a run did not complete.
type ErrorKind string

// Error kinds recorded on failed or timed out runs.
const (
	// ErrorKindProtocol is an out-of-order or duplicate tool call event.
	ErrorKindProtocol ErrorKind = "protocol_error"
	// ErrorKindIncompleteToolCall is a final event with open tool calls.
	ErrorKindIncompleteToolCall ErrorKind = "incomplete_tool_call"
	// ErrorKindUnexpectedEndOfStream is a stream close without a terminal
	// event.
	ErrorKindUnexpectedEndOfStream ErrorKind = "unexpected_end_of_stream"
	// ErrorKindTimeout is an expired run deadline.
	ErrorKindTimeout ErrorKind = "timeout"
	// ErrorKindDecode is an undecodable frame under strict decoding.
	ErrorKindDecode ErrorKind = "decode_error"
	// ErrorKindAgent is a failure reported by the agent via an error event.
	ErrorKindAgent ErrorKind = "agent_error"
)

// RunResult is the immutable outcome of one run: the reconstructed answer,
// the tool calls in the order they were started, the full raw event log and
// the terminal status. Partial answer text and attempted tool calls are
// reported even for failed and timed out runs.
type RunResult struct {
	RunID          string            `json:"runId"`
	ConversationID string            `json:"conversationId"`
	Answer         string            `json:"answer"`
	ToolCalls      []*event.ToolCall `json:"toolCalls,omitempty"`
	Events         []*event.Event    `json:"events,omitempty"`
	Status         Status            `json:"status"`
	ErrorKind      ErrorKind         `json:"errorKind,omitempty"`
	ErrorMessage   string            `json:"errorMessage,omitempty"`
	DroppedFrames  int               `json:"droppedFrames,omitempty"`
	StartTime      time.Time         `json:"startTime"`
	EndTime        time.Time         `json:"endTime"`

	// Artifact is the path or handle of the persisted artifact pair, set by
	// the runner after the persistence writer publishes it.
	Artifact string `json:"artifact,omitempty"`
}

// Completed reports whether the run reached StatusCompleted.
func (r *RunResult) Completed() bool { return r.Status == StatusCompleted }

// Snapshot aggregates the machine's accumulated state into a RunResult. It
// is a pure function of that state: no I/O, no mutation of the machine.
// Tool calls and events are deep-copied so the result stays immutable even
// if the machine is (erroneously) fed afterwards.
func (m *Machine) Snapshot(runID, conversationID string, start, end time.Time) *RunResult {
	r := &RunResult{
		RunID:          runID,
		ConversationID: conversationID,
		Answer:         m.answer.String(),
		Status:         statusOf(m.phase),
		ErrorKind:      m.errKind,
		ErrorMessage:   m.errMsg,
		DroppedFrames:  m.dropped,
		StartTime:      start,
		EndTime:        end,
	}
	if len(m.order) > 0 {
		r.ToolCalls = make([]*event.ToolCall, 0, len(m.order))
		for _, id := range m.order {
			r.ToolCalls = append(r.ToolCalls, m.calls[id].Clone())
		}
	}
	if len(m.events) > 0 {
		r.Events = make([]*event.Event, 0, len(m.events))
		for _, e := range m.events {
			r.Events = append(r.Events, e.Clone())
		}
	}
	return r
}

func statusOf(p Phase) Status {
	switch p {
	case PhaseCompleted:
		return StatusCompleted
	case PhaseTimedOut:
		return StatusTimedOut
	default:
		return StatusFailed
	}
}

// Replay rebuilds a RunResult purely from a raw event log, by driving a
// fresh machine over it. For any event sequence a live run consumed to a
// terminal state, Replay over the persisted log yields a structurally equal
// result; start and end times derive from the first and last event
// timestamps.
func Replay(runID, conversationID string, events []*event.Event) *RunResult {
	m := NewMachine()
	terminal := false
	for _, e := range events {
		if m.OnEvent(e) {
			terminal = true
			break
		}
	}
	if !terminal {
		m.OnClose()
	}
	var start, end time.Time
	if len(events) > 0 {
		start = events[0].Timestamp
		end = events[len(events)-1].Timestamp
	}
	return m.Snapshot(runID, conversationID, start, end)
}
