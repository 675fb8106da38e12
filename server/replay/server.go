//
// Tencent is pleased to support the open source community by making trpc-pipeline-agent available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-pipeline-agent is licensed under the Apache License Version 2.0.
//
//

// Package replay serves persisted run artifacts over HTTP for diagnostics:
// listing runs, fetching aggregated results and replaying raw event logs as
// an SSE stream, so the original agent exchange can be inspected with the
// same tooling that consumes live streams.
package replay

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"trpc.group/trpc-go/trpc-pipeline-agent/artifact"
	"trpc.group/trpc-go/trpc-pipeline-agent/log"
)

// Server exposes one artifact root read-only.
type Server struct {
	root   string
	router *mux.Router
}

// New creates a replay server over the given artifact root directory.
func New(root string) *Server {
	s := &Server{root: root}
	r := mux.NewRouter()
	r.HandleFunc("/runs", s.handleListRuns).Methods(http.MethodGet)
	r.HandleFunc("/runs/{runID}", s.handleGetRun).Methods(http.MethodGet)
	r.HandleFunc("/runs/{runID}/events", s.handleReplayEvents).Methods(http.MethodGet)
	r.HandleFunc("/runs/{runID}/replay", s.handleReplayResult).Methods(http.MethodGet)
	s.router = r
	return s
}

// Handler returns the root HTTP handler with CORS enabled.
func (s *Server) Handler() http.Handler {
	return cors.Default().Handler(s.router)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	ids, err := artifact.ListRuns(s.root)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	s.writeJSON(w, map[string]any{"runs": ids})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	runID := mux.Vars(r)["runID"]
	stored, err := artifact.OpenRun(s.root, runID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	s.writeJSON(w, stored.Result)
}

// handleReplayResult re-aggregates the run purely from its persisted event
// log, bypassing the stored result.json.
func (s *Server) handleReplayResult(w http.ResponseWriter, r *http.Request) {
	runID := mux.Vars(r)["runID"]
	result, err := artifact.ReplayRun(s.root, runID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	s.writeJSON(w, result)
}

func (s *Server) handleReplayEvents(w http.ResponseWriter, r *http.Request) {
	runID := mux.Vars(r)["runID"]
	stored, err := artifact.OpenRun(s.root, runID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	for _, e := range stored.Events {
		// Re-emit in live wire framing so any stream consumer can decode
		// the replay.
		data, err := e.Wire()
		if err != nil {
			log.Errorf("encode replay event %s: %v", e.ID, err)
			continue
		}
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", e.Type, data)
		flusher.Flush()
		select {
		case <-r.Context().Done():
			return
		default:
		}
	}
	fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Errorf("write json response: %v", err)
	}
}
