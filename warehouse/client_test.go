//
// Tencent is pleased to support the open source community by making trpc-pipeline-agent available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-pipeline-agent is licensed under the Apache License Version 2.0.
//
//

package warehouse

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/unicode/norm"
)

func TestExecuteReturnsRows(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, sqlPath, r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "SELECT 1", body["statement"])

		json.NewEncoder(w).Encode(SQLResult{
			Columns: []string{"n"},
			Rows:    [][]any{{float64(1)}},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, WithToken("tok"))
	result, err := c.Execute(context.Background(), "SELECT 1")
	require.NoError(t, err)
	assert.Equal(t, []string{"n"}, result.Columns)
	require.Len(t, result.Rows, 1)
}

func TestExecuteReturnsFileReference(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(SQLResult{FileURL: "s3://spill/result.parquet"})
	}))
	defer srv.Close()

	result, err := NewClient(srv.URL).Execute(context.Background(), "SELECT * FROM big")
	require.NoError(t, err)
	assert.Empty(t, result.Rows)
	assert.Equal(t, "s3://spill/result.parquet", result.FileURL)
}

func TestSearchNormalizesQuery(t *testing.T) {
	// "é" as combining sequence; NFC folds it to a single code point.
	decomposed := "cafe\u0301"
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, searchPath, r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		gotQuery = body["query"].(string)
		assert.Equal(t, float64(5), body["limit"])

		json.NewEncoder(w).Encode(map[string]any{"hits": []Hit{
			{ID: "doc-1", Text: "café revenue", Score: 0.91},
			{ID: "doc-2", Text: "other"},
		}})
	}))
	defer srv.Close()

	hits, err := NewClient(srv.URL).Search(context.Background(), decomposed, 5)
	require.NoError(t, err)
	assert.Equal(t, norm.NFC.String(decomposed), gotQuery)
	require.Len(t, hits, 2)
	assert.Equal(t, 0.91, hits[0].Score)
	assert.Zero(t, hits[1].Score)
}

func TestAskReturnsAnswerAndGeneratedSQL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, analystPath, r.URL.Path)
		json.NewEncoder(w).Encode(AnalystAnswer{
			Answer:       "Revenue grew 5% in Q2.",
			GeneratedSQL: "SELECT SUM(amount) FROM sales WHERE quarter = 'Q2'",
		})
	}))
	defer srv.Close()

	answer, err := NewClient(srv.URL).Ask(context.Background(), "how did revenue do in Q2?")
	require.NoError(t, err)
	assert.Equal(t, "Revenue grew 5% in Q2.", answer.Answer)
	assert.Contains(t, answer.GeneratedSQL, "SELECT")
}

func TestNon2xxIsAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "malformed statement", http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).Execute(context.Background(), "SELEC")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Contains(t, apiErr.Message, "malformed statement")
}
