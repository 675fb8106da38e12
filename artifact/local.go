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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"trpc.group/trpc-go/trpc-pipeline-agent/conversation"
	"trpc.group/trpc-go/trpc-pipeline-agent/log"
)

// LocalWriter publishes artifact bundles as one directory per run under a
// root directory. Writes go to a hidden temp directory first and are
// published with a single rename, so readers never observe a partial
// bundle.
type LocalWriter struct {
	root       string
	renderHTML bool
	dirMode    os.FileMode
	fileMode   os.FileMode
}

// LocalOption configures a LocalWriter.
type LocalOption func(*LocalWriter)

// WithAnswerHTML renders the final answer text (markdown) to answer.html
// inside each bundle.
func WithAnswerHTML() LocalOption {
	return func(w *LocalWriter) { w.renderHTML = true }
}

// NewLocalWriter creates a writer rooted at dir, creating it if needed.
func NewLocalWriter(dir string, opts ...LocalOption) (*LocalWriter, error) {
	w := &LocalWriter{
		root:     dir,
		dirMode:  0o755,
		fileMode: 0o644,
	}
	for _, opt := range opts {
		opt(w)
	}
	if err := os.MkdirAll(dir, w.dirMode); err != nil {
		return nil, fmt.Errorf("create artifact root %s: %w", dir, err)
	}
	return w, nil
}

// Root returns the artifact root directory.
func (w *LocalWriter) Root() string { return w.root }

// Write implements Writer. The bundle for result.RunID must not already
// exist; an existing bundle is never overwritten.
func (w *LocalWriter) Write(ctx context.Context, result *conversation.RunResult) (*Ref, error) {
	if result.RunID == "" {
		return nil, fmt.Errorf("empty run id")
	}
	final := filepath.Join(w.root, result.RunID)
	if _, err := os.Stat(final); err == nil {
		return nil, fmt.Errorf("artifact bundle already exists: %s", final)
	}

	tmp := filepath.Join(w.root, ".tmp-"+result.RunID)
	if err := os.MkdirAll(tmp, w.dirMode); err != nil {
		return nil, fmt.Errorf("create staging directory: %w", err)
	}
	// The staging directory is removed on every exit path; after a
	// successful rename this is a no-op.
	defer func() {
		if err := os.RemoveAll(tmp); err != nil {
			log.Warnf("remove staging directory %s: %v", tmp, err)
		}
	}()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("persist run %s: %w", result.RunID, err)
	}

	if err := w.writeEventLog(filepath.Join(tmp, EventLogFile), result); err != nil {
		return nil, err
	}
	if err := w.writeResult(filepath.Join(tmp, ResultFile), result); err != nil {
		return nil, err
	}
	if w.renderHTML {
		html, err := RenderAnswerHTML(result.Answer)
		if err != nil {
			return nil, fmt.Errorf("render answer html: %w", err)
		}
		if err := os.WriteFile(filepath.Join(tmp, AnswerFile), html, w.fileMode); err != nil {
			return nil, fmt.Errorf("write %s: %w", AnswerFile, err)
		}
	}

	if err := os.Rename(tmp, final); err != nil {
		return nil, fmt.Errorf("publish artifact bundle: %w", err)
	}
	return &Ref{RunID: result.RunID, Location: final}, nil
}

func (w *LocalWriter) writeEventLog(path string, result *conversation.RunResult) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, e := range result.Events {
		if err := enc.Encode(e); err != nil {
			return fmt.Errorf("encode event %s: %w", e.ID, err)
		}
	}
	if err := os.WriteFile(path, buf.Bytes(), w.fileMode); err != nil {
		return fmt.Errorf("write %s: %w", EventLogFile, err)
	}
	return nil
}

func (w *LocalWriter) writeResult(path string, result *conversation.RunResult) error {
	// The raw log lives in events.jsonl; the aggregate record stores
	// everything else.
	stripped := *result
	stripped.Events = nil
	data, err := json.MarshalIndent(&stripped, "", "  ")
	if err != nil {
		return fmt.Errorf("encode run result: %w", err)
	}
	if err := os.WriteFile(path, data, w.fileMode); err != nil {
		return fmt.Errorf("write %s: %w", ResultFile, err)
	}
	return nil
}
