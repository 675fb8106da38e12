//
// Tencent is pleased to support the open source community by making trpc-pipeline-agent available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-pipeline-agent is licensed under the Apache License Version 2.0.
//
//

package artifact

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"trpc.group/trpc-go/trpc-pipeline-agent/conversation"
	"trpc.group/trpc-go/trpc-pipeline-agent/event"
)

// StoredRun is one artifact bundle read back from disk.
type StoredRun struct {
	Ref    Ref
	Events []*event.Event
	Result *conversation.RunResult
}

// maxEventLine bounds one serialized event when scanning the log.
const maxEventLine = 16 << 20

// OpenRun reads the bundle for runID under root.
func OpenRun(root, runID string) (*StoredRun, error) {
	dir := filepath.Join(root, runID)
	events, err := ReadEventLog(filepath.Join(dir, EventLogFile))
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(dir, ResultFile))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", ResultFile, err)
	}
	var result conversation.RunResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("decode %s: %w", ResultFile, err)
	}
	return &StoredRun{
		Ref:    Ref{RunID: runID, Location: dir},
		Events: events,
		Result: &result,
	}, nil
}

// ReadEventLog reads a raw event log, one JSON event per line.
func ReadEventLog(path string) ([]*event.Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open event log: %w", err)
	}
	defer f.Close()

	var events []*event.Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64<<10), maxEventLine)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e event.Event
		if err := json.Unmarshal(line, &e); err != nil {
			return nil, fmt.Errorf("decode event log line %d: %w", len(events)+1, err)
		}
		events = append(events, &e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan event log: %w", err)
	}
	return events, nil
}

// ReplayRun reconstructs a RunResult purely from the persisted event log of
// runID. The stored aggregate is consulted only for the conversation id,
// which is metadata rather than stream state.
func ReplayRun(root, runID string) (*conversation.RunResult, error) {
	stored, err := OpenRun(root, runID)
	if err != nil {
		return nil, err
	}
	return conversation.Replay(runID, stored.Result.ConversationID, stored.Events), nil
}

// ListRuns returns the run ids published under root, sorted.
func ListRuns(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("read artifact root: %w", err)
	}
	var ids []string
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		ids = append(ids, entry.Name())
	}
	sort.Strings(ids)
	return ids, nil
}
