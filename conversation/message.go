//
// Tencent is pleased to support the open source community by making trpc-pipeline-agent available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-pipeline-agent is licensed under the Apache License Version 2.0.
//
//

// Package conversation holds the conversation data model, the streaming
// state machine that consumes decoded agent events, and the aggregation of
// a terminal machine snapshot into an immutable run result.
package conversation

import (
	"encoding/json"

	"github.com/google/uuid"
)

// Role identifies the author of a message.
type Role string

// Message roles.
const (
	// RoleUser is a caller-authored message.
	RoleUser Role = "user"
	// RoleAssistant is an agent-authored message.
	RoleAssistant Role = "assistant"
	// RoleTool is a tool-result message.
	RoleTool Role = "tool"
)

// Part is one content part of a message: either plain text or a structured
// tool-result payload.
type Part struct {
	Text       string          `json:"text,omitempty"`
	ToolResult json.RawMessage `json:"toolResult,omitempty"`
}

// Message is one entry of a conversation. Parts are append-only within a
// run.
type Message struct {
	Role  Role   `json:"role"`
	Parts []Part `json:"parts"`
}

// NewUserMessage creates a single-part text message authored by the caller.
func NewUserMessage(text string) Message {
	return Message{Role: RoleUser, Parts: []Part{{Text: text}}}
}

// NewAssistantMessage creates a single-part text message authored by the
// agent.
func NewAssistantMessage(text string) Message {
	return Message{Role: RoleAssistant, Parts: []Part{{Text: text}}}
}

// Conversation is the ordered message history submitted to the remote
// agent. It is immutable once a run over it completes; a new run appends to
// a copy.
type Conversation struct {
	ID       string    `json:"id"`
	Messages []Message `json:"messages"`
}

// New creates a conversation with the given id and initial messages. An
// empty id is replaced with a generated one.
func New(id string, messages ...Message) *Conversation {
	if id == "" {
		id = uuid.New().String()
	}
	return &Conversation{ID: id, Messages: messages}
}

// With returns a copy of the conversation with the given messages appended.
// The receiver is not modified.
func (c *Conversation) With(messages ...Message) *Conversation {
	out := &Conversation{ID: c.ID}
	out.Messages = make([]Message, 0, len(c.Messages)+len(messages))
	out.Messages = append(out.Messages, c.Messages...)
	out.Messages = append(out.Messages, messages...)
	return out
}
