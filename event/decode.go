//
// Tencent is pleased to support the open source community by making trpc-pipeline-agent available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-pipeline-agent is licensed under the Apache License Version 2.0.
//
//

package event

import (
	"encoding/json"
	"errors"
	"fmt"
)

// DecodeError reports a single frame that could not be decoded into an
// Event. It is recoverable: the consumer may drop the frame and continue,
// unless strict decoding is enabled upstream.
type DecodeError struct {
	// Tag is the wire tag of the offending frame, empty if the frame
	// carried none.
	Tag string
	// Data is the raw frame payload.
	Data []byte
	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode frame (tag %q): %v", e.Tag, e.Err)
}

// Unwrap returns the underlying cause.
func (e *DecodeError) Unwrap() error { return e.Err }

var (
	errEmptyFrame   = errors.New("empty frame")
	errMissingField = errors.New("missing required field")
)

// wireEvent is the flat on-wire payload shape. The variant tag comes from
// the SSE event field when present, otherwise from the payload's own type
// field; payload fields for all variants share the top level.
type wireEvent struct {
	Type      string          `json:"type,omitempty"`
	Text      *string         `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Phase     string          `json:"phase,omitempty"`
	Kind      string          `json:"kind,omitempty"`
	Message   string          `json:"message,omitempty"`
}

// Decode parses one raw frame into an Event. Decoding is pure and stateless
// per frame. The tag argument is the transport-level frame tag (the SSE
// "event:" field) and may be empty, in which case the payload's "type"
// field is consulted. Unrecognized tags decode to a status event with phase
// "unknown"; genuinely malformed frames return a *DecodeError.
func Decode(tag string, data []byte) (*Event, error) {
	var w wireEvent
	if len(data) > 0 {
		if err := json.Unmarshal(data, &w); err != nil {
			return nil, &DecodeError{Tag: tag, Data: data, Err: err}
		}
	}
	if tag == "" {
		tag = w.Type
	}
	if tag == "" {
		return nil, &DecodeError{Tag: tag, Data: data, Err: errEmptyFrame}
	}

	switch Type(tag) {
	case TypeTextDelta:
		if w.Text == nil {
			return nil, &DecodeError{Tag: tag, Data: data, Err: fmt.Errorf("%w: text", errMissingField)}
		}
		return NewTextDelta(*w.Text), nil
	case TypeToolCallStart:
		if w.ID == "" || w.Name == "" {
			return nil, &DecodeError{Tag: tag, Data: data, Err: fmt.Errorf("%w: id, name", errMissingField)}
		}
		return NewToolCallStart(w.ID, w.Name, w.Arguments), nil
	case TypeToolCallResult:
		if w.ID == "" {
			return nil, &DecodeError{Tag: tag, Data: data, Err: fmt.Errorf("%w: id", errMissingField)}
		}
		return NewToolCallResult(w.ID, w.Payload), nil
	case TypeStatus:
		return NewStatus(w.Phase), nil
	case TypeError:
		return NewError(w.Kind, w.Message), nil
	case TypeFinal:
		return NewFinal(), nil
	default:
		// Forward compatibility: new agent-side event types surface as
		// unknown status rather than failing the run.
		e := NewStatus(StatusPhaseUnknown)
		e.Status.Detail = tag
		return e, nil
	}
}

// Wire returns the flat on-wire payload for the event: the inverse of
// Decode up to the generated event id and timestamp. Used to re-emit
// persisted events in the same framing a live stream uses.
func (e *Event) Wire() ([]byte, error) {
	w := wireEvent{Type: string(e.Type)}
	switch e.Type {
	case TypeTextDelta:
		w.Text = &e.TextDelta.Text
	case TypeToolCallStart:
		w.ID = e.ToolCallStart.ID
		w.Name = e.ToolCallStart.Name
		w.Arguments = e.ToolCallStart.Arguments
	case TypeToolCallResult:
		w.ID = e.ToolCallResult.ID
		w.Payload = e.ToolCallResult.Payload
	case TypeStatus:
		w.Phase = e.Status.Phase
	case TypeError:
		w.Kind = e.Error.Kind
		w.Message = e.Error.Message
	case TypeFinal:
	default:
		return nil, fmt.Errorf("unsupported event type %q", e.Type)
	}
	return json.Marshal(&w)
}
