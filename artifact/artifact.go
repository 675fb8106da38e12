//
// Tencent is pleased to support the open source community by making trpc-pipeline-agent available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-pipeline-agent is licensed under the Apache License Version 2.0.
//
//

// Package artifact persists the record of one conversation run: the raw
// event log and the aggregated result, co-located under a single run
// identifier so a reader can reconstruct the result purely from the log.
package artifact

import (
	"context"

	"trpc.group/trpc-go/trpc-pipeline-agent/conversation"
)

// Artifact file names within one run's bundle.
const (
	// EventLogFile is the raw event log, one JSON event per line in arrival
	// order.
	EventLogFile = "events.jsonl"
	// ResultFile is the aggregated run result without the embedded event
	// log.
	ResultFile = "result.json"
	// AnswerFile is the optional HTML rendering of the final answer.
	AnswerFile = "answer.html"
)

// Ref locates a published artifact bundle.
type Ref struct {
	// RunID keys the bundle.
	RunID string `json:"runId"`
	// Location is the directory path or object prefix of the bundle.
	Location string `json:"location"`
}

// Writer durably stores a run's raw event log and aggregated result as a
// single unit. Implementations must publish atomically: a partially written
// bundle is never visible under the final location, and a failed write
// never corrupts a previously published one. Destinations are unique per
// run id, so concurrent runs need no cross-writer coordination.
type Writer interface {
	// Write persists the result (result.Events is the raw log) and returns
	// a reference to the published bundle. It is invoked exactly once per
	// run, for failed and timed out outcomes as well.
	Write(ctx context.Context, result *conversation.RunResult) (*Ref, error)
}
