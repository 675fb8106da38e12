//
// Tencent is pleased to support the open source community by making trpc-pipeline-agent available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-pipeline-agent is licensed under the Apache License Version 2.0.
//
//

// Package warehouse defines the single-shot companion services the agent's
// tools are backed by: plain SQL execution, semantic search and the
// natural-language analyst. These are plain request/response calls with no
// streaming and no multi-step state; they sit outside the conversation
// core and are specified here by interface.
package warehouse

import (
	"context"
	"encoding/json"
)

// SQLResult is the tabular outcome of one SQL statement. Large results may
// be spilled to a file, in which case FileURL is set instead of Rows.
type SQLResult struct {
	Columns []string `json:"columns,omitempty"`
	Rows    [][]any  `json:"rows,omitempty"`
	FileURL string   `json:"fileUrl,omitempty"`
}

// SQLExecutor runs one SQL statement to completion.
type SQLExecutor interface {
	Execute(ctx context.Context, statement string) (*SQLResult, error)
}

// Hit is one ranked semantic search result. Score is optional; zero means
// the backend reported none.
type Hit struct {
	ID     string          `json:"id"`
	Text   string          `json:"text"`
	Score  float64         `json:"score,omitempty"`
	Fields json.RawMessage `json:"fields,omitempty"`
}

// Searcher answers one semantic search query with ranked hits.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]Hit, error)
}

// AnalystAnswer is the outcome of one natural-language analyst question:
// the answer text plus, when the backend generated and executed a query to
// produce it, that query.
type AnalystAnswer struct {
	Answer       string `json:"answer"`
	GeneratedSQL string `json:"generatedSql,omitempty"`
}

// Analyst answers one natural-language question over the warehouse.
type Analyst interface {
	Ask(ctx context.Context, question string) (*AnalystAnswer, error)
}
