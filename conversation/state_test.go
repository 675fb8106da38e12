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
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trpc.group/trpc-go/trpc-pipeline-agent/event"
)

func feed(t *testing.T, m *Machine, events ...*event.Event) {
	t.Helper()
	for _, e := range events {
		if m.OnEvent(e) {
			return
		}
	}
}

func snapshot(m *Machine) *RunResult {
	return m.Snapshot("run-1", "conv-1", time.Now(), time.Now())
}

func TestTextOnlyRunCompletes(t *testing.T) {
	m := NewMachine()
	feed(t, m,
		event.NewTextDelta("Sales "),
		event.NewTextDelta("up 5%"),
		event.NewFinal(),
	)

	require.Equal(t, PhaseCompleted, m.Phase())
	r := snapshot(m)
	assert.Equal(t, "Sales up 5%", r.Answer)
	assert.Equal(t, StatusCompleted, r.Status)
	assert.Empty(t, r.ToolCalls)
	assert.Len(t, r.Events, 3)
}

func TestToolCallRunCompletes(t *testing.T) {
	m := NewMachine()
	feed(t, m,
		event.NewToolCallStart("1", "search", json.RawMessage(`{"q":"matches"}`)),
		event.NewTextDelta("Checking…"),
		event.NewToolCallResult("1", json.RawMessage(`{"hits":3}`)),
		event.NewTextDelta(" Found 3 matches."),
		event.NewFinal(),
	)

	r := snapshot(m)
	require.Equal(t, StatusCompleted, r.Status)
	assert.Equal(t, "Checking… Found 3 matches.", r.Answer)
	require.Len(t, r.ToolCalls, 1)
	call := r.ToolCalls[0]
	assert.Equal(t, "1", call.ID)
	assert.Equal(t, "search", call.Name)
	assert.Equal(t, event.ToolCallCompleted, call.State)
	assert.JSONEq(t, `{"hits":3}`, string(call.Result))
}

func TestFinalWithOpenToolCallFails(t *testing.T) {
	m := NewMachine()
	feed(t, m,
		event.NewToolCallStart("1", "search", nil),
		event.NewFinal(),
	)

	r := snapshot(m)
	require.Equal(t, StatusFailed, r.Status)
	assert.Equal(t, ErrorKindIncompleteToolCall, r.ErrorKind)
	require.Len(t, r.ToolCalls, 1)
	// The attempted call stays in its observed state so callers can see
	// which tool never came back.
	assert.Equal(t, event.ToolCallStarted, r.ToolCalls[0].State)
}

func TestStreamCloseWithoutTerminalFails(t *testing.T) {
	m := NewMachine()
	feed(t, m, event.NewTextDelta("partial"))
	m.OnClose()

	r := snapshot(m)
	require.Equal(t, StatusFailed, r.Status)
	assert.Equal(t, ErrorKindUnexpectedEndOfStream, r.ErrorKind)
	assert.Equal(t, "partial", r.Answer)
}

func TestEmptyStreamCloseFails(t *testing.T) {
	m := NewMachine()
	m.OnClose()
	require.Equal(t, PhaseFailed, m.Phase())
	assert.Equal(t, ErrorKindUnexpectedEndOfStream, snapshot(m).ErrorKind)
}

func TestDuplicateToolCallStartIsProtocolError(t *testing.T) {
	m := NewMachine()
	feed(t, m,
		event.NewToolCallStart("1", "search", nil),
		event.NewToolCallStart("1", "sql_exec", nil),
	)

	r := snapshot(m)
	require.Equal(t, StatusFailed, r.Status)
	assert.Equal(t, ErrorKindProtocol, r.ErrorKind)
	assert.Contains(t, r.ErrorMessage, `"1"`)
}

func TestUnmatchedToolCallResultIsProtocolError(t *testing.T) {
	m := NewMachine()
	terminal := m.OnEvent(event.NewToolCallResult("9", json.RawMessage(`{}`)))
	require.True(t, terminal)
	assert.Equal(t, ErrorKindProtocol, snapshot(m).ErrorKind)
}

func TestDuplicateToolCallResultIsProtocolError(t *testing.T) {
	m := NewMachine()
	feed(t, m,
		event.NewToolCallStart("1", "search", nil),
		event.NewToolCallResult("1", json.RawMessage(`{"hits":1}`)),
		event.NewToolCallResult("1", json.RawMessage(`{"hits":2}`)),
	)
	assert.Equal(t, ErrorKindProtocol, snapshot(m).ErrorKind)
}

func TestAgentErrorTerminatesRun(t *testing.T) {
	m := NewMachine()
	feed(t, m,
		event.NewToolCallStart("1", "search", nil),
		event.NewTextDelta("working"),
		event.NewError("throttled", "quota exceeded"),
	)

	r := snapshot(m)
	require.Equal(t, StatusFailed, r.Status)
	assert.Equal(t, ErrorKindAgent, r.ErrorKind)
	assert.Equal(t, "throttled: quota exceeded", r.ErrorMessage)
	assert.Equal(t, "working", r.Answer)
	require.Len(t, r.ToolCalls, 1)
	assert.Equal(t, event.ToolCallFailed, r.ToolCalls[0].State)
}

func TestEventsAfterTerminalAreIgnored(t *testing.T) {
	m := NewMachine()
	feed(t, m, event.NewTextDelta("done"), event.NewFinal())
	require.Equal(t, PhaseCompleted, m.Phase())

	assert.True(t, m.OnEvent(event.NewTextDelta("late")))
	r := snapshot(m)
	assert.Equal(t, "done", r.Answer)
	assert.Len(t, r.Events, 2)
}

func TestStatusEventsAreInformational(t *testing.T) {
	m := NewMachine()
	feed(t, m,
		event.NewStatus("planning"),
		event.NewTextDelta("ok"),
		event.NewStatus(event.StatusPhaseUnknown),
		event.NewFinal(),
	)
	r := snapshot(m)
	assert.Equal(t, StatusCompleted, r.Status)
	assert.Equal(t, "ok", r.Answer)
	assert.Len(t, r.Events, 4)
}

func TestDecodeErrorDroppedByDefault(t *testing.T) {
	m := NewMachine()
	feed(t, m, event.NewTextDelta("a"))
	terminal := m.OnDecodeError(&event.DecodeError{Tag: "text.delta", Err: assert.AnError})
	require.False(t, terminal)
	feed(t, m, event.NewTextDelta("b"), event.NewFinal())

	r := snapshot(m)
	assert.Equal(t, StatusCompleted, r.Status)
	assert.Equal(t, "ab", r.Answer)
	assert.Equal(t, 1, r.DroppedFrames)
}

func TestDecodeErrorFatalInStrictMode(t *testing.T) {
	m := NewMachine(WithStrictDecoding())
	terminal := m.OnDecodeError(&event.DecodeError{Tag: "status", Err: assert.AnError})
	require.True(t, terminal)

	r := snapshot(m)
	assert.Equal(t, StatusFailed, r.Status)
	assert.Equal(t, ErrorKindDecode, r.ErrorKind)
}

func TestExpireForcesTimedOut(t *testing.T) {
	m := NewMachine()
	feed(t, m, event.NewTextDelta("partial"))
	m.Expire()

	r := snapshot(m)
	require.Equal(t, StatusTimedOut, r.Status)
	assert.Equal(t, ErrorKindTimeout, r.ErrorKind)
	assert.Equal(t, "partial", r.Answer)
}

func TestExpireAfterTerminalIsNoop(t *testing.T) {
	m := NewMachine()
	feed(t, m, event.NewFinal())
	m.Expire()
	assert.Equal(t, PhaseCompleted, m.Phase())
}
