//
// Tencent is pleased to support the open source community by making trpc-pipeline-agent available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-pipeline-agent is licensed under the Apache License Version 2.0.
//
//

// Package event defines the typed event stream emitted by the remote agent
// during one conversation run, and the decoding of raw stream frames into it.
package event

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Type discriminates the event variants of the agent stream protocol.
type Type string

// Event type constants. The set is closed: every decoded event carries
// exactly one of these types, with unrecognized wire tags folded into
// TypeStatus (phase "unknown") for forward compatibility.
const (
	// TypeTextDelta carries a fragment of the final answer text.
	TypeTextDelta Type = "text.delta"
	// TypeToolCallStart announces an agent-initiated tool invocation.
	TypeToolCallStart Type = "tool_call.start"
	// TypeToolCallResult carries the result payload of a started tool call.
	TypeToolCallResult Type = "tool_call.result"
	// TypeStatus reports an informational phase change.
	TypeStatus Type = "status"
	// TypeError reports an agent-side failure; it terminates the stream.
	TypeError Type = "error"
	// TypeFinal marks successful completion of the stream.
	TypeFinal Type = "final"
)

// StatusPhaseUnknown is the phase recorded for unrecognized wire tags.
const StatusPhaseUnknown = "unknown"

// Event is one decoded record of the agent stream. It is a tagged variant:
// Type selects which payload pointer is set, and at most one is non-nil
// (TypeFinal carries none). Events are immutable once appended to a run's
// event log.
type Event struct {
	// ID is the unique identifier of the event.
	ID string `json:"id"`
	// Type is the variant tag.
	Type Type `json:"type"`
	// Timestamp is the arrival time of the event.
	Timestamp time.Time `json:"timestamp"`

	TextDelta      *TextDelta      `json:"textDelta,omitempty"`
	ToolCallStart  *ToolCallStart  `json:"toolCallStart,omitempty"`
	ToolCallResult *ToolCallResult `json:"toolCallResult,omitempty"`
	Status         *Status         `json:"status,omitempty"`
	Error          *ErrorDetail    `json:"error,omitempty"`
}

// TextDelta is an ordered fragment of the final answer text.
type TextDelta struct {
	Text string `json:"text"`
}

// ToolCallStart announces a tool invocation with its call id, tool name and
// serialized arguments.
type ToolCallStart struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// ToolCallResult carries the result payload for a previously started call.
type ToolCallResult struct {
	ID      string          `json:"id"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Status is an informational phase report; it never affects the run outcome.
type Status struct {
	Phase string `json:"phase"`
	// Detail preserves the raw wire tag when the phase is "unknown".
	Detail string `json:"detail,omitempty"`
}

// ErrorDetail describes an agent-reported failure.
type ErrorDetail struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// New creates an event of the given type with a generated ID and the current
// timestamp. Callers set the matching payload via the typed constructors
// below; New is exported for tests that build synthetic streams.
func New(t Type) *Event {
	return &Event{
		ID:        uuid.New().String(),
		Type:      t,
		Timestamp: time.Now(),
	}
}

// NewTextDelta creates a text delta event.
func NewTextDelta(text string) *Event {
	e := New(TypeTextDelta)
	e.TextDelta = &TextDelta{Text: text}
	return e
}

// NewToolCallStart creates a tool call start event.
func NewToolCallStart(id, name string, arguments json.RawMessage) *Event {
	e := New(TypeToolCallStart)
	e.ToolCallStart = &ToolCallStart{ID: id, Name: name, Arguments: arguments}
	return e
}

// NewToolCallResult creates a tool call result event.
func NewToolCallResult(id string, payload json.RawMessage) *Event {
	e := New(TypeToolCallResult)
	e.ToolCallResult = &ToolCallResult{ID: id, Payload: payload}
	return e
}

// NewStatus creates a status event with the given phase.
func NewStatus(phase string) *Event {
	e := New(TypeStatus)
	e.Status = &Status{Phase: phase}
	return e
}

// NewError creates an agent error event.
func NewError(kind, message string) *Event {
	e := New(TypeError)
	e.Error = &ErrorDetail{Kind: kind, Message: message}
	return e
}

// NewFinal creates a stream completion event.
func NewFinal() *Event {
	return New(TypeFinal)
}

// Terminal reports whether the event ends a valid stream.
func (e *Event) Terminal() bool {
	return e.Type == TypeFinal || e.Type == TypeError
}

// Clone creates a deep copy of the event.
func (e *Event) Clone() *Event {
	if e == nil {
		return nil
	}
	clone := *e
	if e.TextDelta != nil {
		td := *e.TextDelta
		clone.TextDelta = &td
	}
	if e.ToolCallStart != nil {
		tc := *e.ToolCallStart
		tc.Arguments = append(json.RawMessage(nil), e.ToolCallStart.Arguments...)
		clone.ToolCallStart = &tc
	}
	if e.ToolCallResult != nil {
		tr := *e.ToolCallResult
		tr.Payload = append(json.RawMessage(nil), e.ToolCallResult.Payload...)
		clone.ToolCallResult = &tr
	}
	if e.Status != nil {
		st := *e.Status
		clone.Status = &st
	}
	if e.Error != nil {
		ed := *e.Error
		clone.Error = &ed
	}
	return &clone
}
