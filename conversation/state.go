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
	"fmt"
	"strings"

	"trpc.group/trpc-go/trpc-pipeline-agent/event"
	"trpc.group/trpc-go/trpc-pipeline-agent/log"
)

// Phase is the lifecycle phase of the streaming state machine.
type Phase string

// Machine phases. Completed, Failed and TimedOut are terminal: once
// reached, further events are ignored.
const (
	PhaseIdle      Phase = "idle"
	PhaseStreaming Phase = "streaming"
	PhaseCompleted Phase = "completed"
	PhaseFailed    Phase = "failed"
	PhaseTimedOut  Phase = "timed_out"
)

// Machine consumes decoded events in arrival order and maintains the
// running answer text, open tool calls, the raw event log and the terminal
// outcome of one run. It is not safe for concurrent use; one run drives one
// machine sequentially.
type Machine struct {
	strict bool

	phase   Phase
	answer  strings.Builder
	calls   map[string]*event.ToolCall
	order   []string
	events  []*event.Event
	dropped int
	errKind ErrorKind
	errMsg  string
}

// MachineOption configures a Machine.
type MachineOption func(*Machine)

// WithStrictDecoding promotes frame decode errors from dropped frames to a
// terminal failure.
func WithStrictDecoding() MachineOption {
	return func(m *Machine) { m.strict = true }
}

// NewMachine creates an idle machine.
func NewMachine(opts ...MachineOption) *Machine {
	m := &Machine{
		phase: PhaseIdle,
		calls: make(map[string]*event.ToolCall),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Phase returns the current phase.
func (m *Machine) Phase() Phase { return m.phase }

// Terminal reports whether the machine reached a terminal phase.
func (m *Machine) Terminal() bool {
	return m.phase == PhaseCompleted || m.phase == PhaseFailed || m.phase == PhaseTimedOut
}

// OnEvent applies one decoded event and reports whether the machine is now
// terminal. Events arriving after a terminal phase are ignored. The event
// is recorded in the raw log before any transition, so the log always
// reflects exactly what arrived.
func (m *Machine) OnEvent(e *event.Event) bool {
	if m.Terminal() {
		return true
	}
	if m.phase == PhaseIdle {
		m.phase = PhaseStreaming
	}
	m.events = append(m.events, e.Clone())

	switch e.Type {
	case event.TypeTextDelta:
		m.answer.WriteString(e.TextDelta.Text)
	case event.TypeToolCallStart:
		id := e.ToolCallStart.ID
		if _, exists := m.calls[id]; exists {
			m.fail(ErrorKindProtocol, fmt.Sprintf("duplicate tool call start: id %q", id))
			return true
		}
		m.calls[id] = &event.ToolCall{
			ID:        id,
			Name:      e.ToolCallStart.Name,
			Arguments: e.ToolCallStart.Arguments,
			State:     event.ToolCallStarted,
		}
		m.order = append(m.order, id)
	case event.TypeToolCallResult:
		id := e.ToolCallResult.ID
		call, exists := m.calls[id]
		if !exists || call.State != event.ToolCallStarted {
			m.fail(ErrorKindProtocol, fmt.Sprintf("tool call result without open start: id %q", id))
			return true
		}
		call.State = event.ToolCallCompleted
		call.Result = e.ToolCallResult.Payload
	case event.TypeStatus:
		// Informational only.
	case event.TypeError:
		msg := e.Error.Message
		if e.Error.Kind != "" {
			msg = e.Error.Kind + ": " + msg
		}
		// Tool calls interrupted by an agent error did not complete.
		for _, call := range m.calls {
			if call.State == event.ToolCallStarted {
				call.State = event.ToolCallFailed
			}
		}
		m.fail(ErrorKindAgent, msg)
		return true
	case event.TypeFinal:
		for _, id := range m.order {
			if m.calls[id].State == event.ToolCallStarted {
				m.fail(ErrorKindIncompleteToolCall, fmt.Sprintf("final with open tool call: id %q", id))
				return true
			}
		}
		m.phase = PhaseCompleted
		return true
	}
	return false
}

// OnDecodeError handles one undecodable frame. In strict mode it is
// promoted to a terminal failure; otherwise the frame is dropped, counted
// and logged. Returns whether the machine is now terminal.
func (m *Machine) OnDecodeError(err *event.DecodeError) bool {
	if m.Terminal() {
		return true
	}
	if m.strict {
		if m.phase == PhaseIdle {
			m.phase = PhaseStreaming
		}
		m.fail(ErrorKindDecode, err.Error())
		return true
	}
	m.dropped++
	log.Warnf("dropping undecodable frame (tag %q): %v", err.Tag, err.Err)
	return false
}

// OnClose marks the end of the event sequence. A stream that closes without
// a terminal event fails with UnexpectedEndOfStream; partial answer text is
// preserved.
func (m *Machine) OnClose() {
	if m.Terminal() {
		return
	}
	m.fail(ErrorKindUnexpectedEndOfStream, "stream closed without final or error event")
}

// Expire forcibly transitions a non-terminal machine to TimedOut.
func (m *Machine) Expire() {
	if m.Terminal() {
		return
	}
	m.phase = PhaseTimedOut
	m.errKind = ErrorKindTimeout
	m.errMsg = "run deadline exceeded while streaming"
}

func (m *Machine) fail(kind ErrorKind, msg string) {
	m.phase = PhaseFailed
	m.errKind = kind
	m.errMsg = msg
}
