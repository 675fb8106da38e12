//
// Tencent is pleased to support the open source community by making trpc-pipeline-agent available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-pipeline-agent is licensed under the Apache License Version 2.0.
//
//

package event

import "encoding/json"

// ToolCallState is the lifecycle state of a tool call within one run.
type ToolCallState string

// Tool call lifecycle states.
const (
	// ToolCallStarted means the start event arrived and no result has arrived yet.
	ToolCallStarted ToolCallState = "started"
	// ToolCallCompleted means the result event arrived with a payload.
	ToolCallCompleted ToolCallState = "completed"
	// ToolCallFailed means the run terminated before the call completed.
	ToolCallFailed ToolCallState = "failed"
)

// ToolCall is the per-run record of one agent-initiated tool invocation,
// assembled from its start and result events. IDs are unique per run.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
	State     ToolCallState   `json:"state"`
	Result    json.RawMessage `json:"result,omitempty"`
}

// Clone creates a deep copy of the tool call.
func (c *ToolCall) Clone() *ToolCall {
	if c == nil {
		return nil
	}
	clone := *c
	clone.Arguments = append(json.RawMessage(nil), c.Arguments...)
	clone.Result = append(json.RawMessage(nil), c.Result...)
	return &clone
}
