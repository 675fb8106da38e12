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
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trpc.group/trpc-go/trpc-pipeline-agent/conversation"
	"trpc.group/trpc-go/trpc-pipeline-agent/event"
)

func completedRun(t *testing.T, runID string) *conversation.RunResult {
	t.Helper()
	m := conversation.NewMachine()
	events := []*event.Event{
		event.NewToolCallStart("1", "search", json.RawMessage(`{"q":"revenue"}`)),
		event.NewTextDelta("Checking…"),
		event.NewToolCallResult("1", json.RawMessage(`{"hits":3}`)),
		event.NewTextDelta(" Found 3 matches."),
		event.NewFinal(),
	}
	for _, e := range events {
		if m.OnEvent(e) {
			break
		}
	}
	start := time.Now().Add(-2 * time.Second).UTC().Truncate(time.Millisecond)
	return m.Snapshot(runID, "conv-1", start, start.Add(2*time.Second))
}

func TestWriteAndOpenRun(t *testing.T) {
	root := t.TempDir()
	w, err := NewLocalWriter(root)
	require.NoError(t, err)

	result := completedRun(t, "run-1")
	ref, err := w.Write(context.Background(), result)
	require.NoError(t, err)
	assert.Equal(t, "run-1", ref.RunID)
	assert.Equal(t, filepath.Join(root, "run-1"), ref.Location)

	stored, err := OpenRun(root, "run-1")
	require.NoError(t, err)
	require.Len(t, stored.Events, len(result.Events))
	for i, e := range stored.Events {
		assert.Equal(t, result.Events[i].ID, e.ID)
		assert.Equal(t, result.Events[i].Type, e.Type)
	}
	assert.Equal(t, result.Answer, stored.Result.Answer)
	assert.Equal(t, result.Status, stored.Result.Status)
	// The aggregate record does not duplicate the raw log.
	assert.Nil(t, stored.Result.Events)
}

func TestReplayRunMatchesLiveResult(t *testing.T) {
	root := t.TempDir()
	w, err := NewLocalWriter(root)
	require.NoError(t, err)

	result := completedRun(t, "run-1")
	_, err = w.Write(context.Background(), result)
	require.NoError(t, err)

	replayed, err := ReplayRun(root, "run-1")
	require.NoError(t, err)
	assert.Equal(t, result.Answer, replayed.Answer)
	assert.Equal(t, result.Status, replayed.Status)
	assert.Equal(t, result.ConversationID, replayed.ConversationID)
	require.Equal(t, result.ToolCalls, replayed.ToolCalls)
}

func TestWriteRefusesExistingBundle(t *testing.T) {
	root := t.TempDir()
	w, err := NewLocalWriter(root)
	require.NoError(t, err)

	result := completedRun(t, "run-1")
	_, err = w.Write(context.Background(), result)
	require.NoError(t, err)

	_, err = w.Write(context.Background(), result)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	// The prior bundle is intact.
	stored, err := OpenRun(root, "run-1")
	require.NoError(t, err)
	assert.Equal(t, result.Answer, stored.Result.Answer)
}

func TestWriteCleansStagingOnFailure(t *testing.T) {
	root := t.TempDir()
	w, err := NewLocalWriter(root)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = w.Write(ctx, completedRun(t, "run-1"))
	require.Error(t, err)

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestWriteRendersAnswerHTML(t *testing.T) {
	root := t.TempDir()
	w, err := NewLocalWriter(root, WithAnswerHTML())
	require.NoError(t, err)

	m := conversation.NewMachine()
	m.OnEvent(event.NewTextDelta("# Summary\n\nSales **up** 5%"))
	m.OnEvent(event.NewFinal())
	result := m.Snapshot("run-1", "conv-1", time.Now(), time.Now())

	ref, err := w.Write(context.Background(), result)
	require.NoError(t, err)

	html, err := os.ReadFile(filepath.Join(ref.Location, AnswerFile))
	require.NoError(t, err)
	assert.Contains(t, string(html), "<h1>Summary</h1>")
	assert.Contains(t, string(html), "<strong>up</strong>")
}

func TestWriteFailedRunKeepsPartialAnswer(t *testing.T) {
	root := t.TempDir()
	w, err := NewLocalWriter(root)
	require.NoError(t, err)

	m := conversation.NewMachine()
	m.OnEvent(event.NewTextDelta("partial"))
	m.OnClose()
	result := m.Snapshot("run-failed", "conv-1", time.Now(), time.Now())

	_, err = w.Write(context.Background(), result)
	require.NoError(t, err)

	stored, err := OpenRun(root, "run-failed")
	require.NoError(t, err)
	assert.Equal(t, conversation.StatusFailed, stored.Result.Status)
	assert.Equal(t, conversation.ErrorKindUnexpectedEndOfStream, stored.Result.ErrorKind)
	assert.Equal(t, "partial", stored.Result.Answer)
}

func TestListRunsSkipsStaging(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "run-b"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "run-a"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".tmp-run-c"), 0o755))

	ids, err := ListRuns(root)
	require.NoError(t, err)
	assert.Equal(t, []string{"run-a", "run-b"}, ids)
}

func TestRenderAnswerHTMLTable(t *testing.T) {
	html, err := RenderAnswerHTML("| a | b |\n|---|---|\n| 1 | 2 |")
	require.NoError(t, err)
	assert.Contains(t, string(html), "<table>")
}
