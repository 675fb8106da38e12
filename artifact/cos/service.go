//
// Tencent is pleased to support the open source community by making trpc-pipeline-agent available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-pipeline-agent is licensed under the Apache License Version 2.0.
//
//

// Package cos provides a Tencent Cloud Object Storage (COS) implementation
// of the artifact writer, mirroring run bundles to object storage.
//
// Object name format:
//
//	{prefix}/{run_id}/events.jsonl
//	{prefix}/{run_id}/result.json
//
// The aggregate record is uploaded last, so a bundle is considered
// published only once its result.json object exists.
//
// Authentication:
// The uploader requires COS credentials which can be provided via:
// - Environment variables: COS_SECRETID and COS_SECRETKEY (recommended)
// - Option functions: WithSecretID() and WithSecretKey()
package cos

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"time"

	"trpc.group/trpc-go/trpc-pipeline-agent/artifact"
	"trpc.group/trpc-go/trpc-pipeline-agent/conversation"
	"trpc.group/trpc-go/trpc-pipeline-agent/event"
)

const defaultTimeout = 60 * time.Second

const (
	mimeJSON      = "application/json"
	mimeJSONLines = "application/jsonl"
)

// Uploader is a Tencent COS implementation of the artifact writer.
type Uploader struct {
	cosClient client
	prefix    string
}

// NewUploader creates a COS artifact uploader for the given bucket URL,
// e.g. "https://bucket.cos.region.myqcloud.com".
func NewUploader(bucketURL string, opts ...Option) (*Uploader, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	c, err := globalBuilder(bucketURL, opts...)
	if err != nil {
		return nil, err
	}
	cli, ok := c.(client)
	if !ok {
		return nil, fmt.Errorf("client builder returned invalid type: expected client interface, got %T", c)
	}
	return &Uploader{cosClient: cli, prefix: o.prefix}, nil
}

// Write implements artifact.Writer. The raw event log is uploaded first and
// the aggregate record last, so readers never observe a bundle without its
// log.
func (u *Uploader) Write(ctx context.Context, result *conversation.RunResult) (*artifact.Ref, error) {
	if result.RunID == "" {
		return nil, fmt.Errorf("empty run id")
	}
	location := path.Join(u.prefix, result.RunID)

	var logBuf bytes.Buffer
	enc := json.NewEncoder(&logBuf)
	for _, e := range result.Events {
		if err := enc.Encode(e); err != nil {
			return nil, fmt.Errorf("encode event %s: %w", e.ID, err)
		}
	}
	logName := path.Join(location, artifact.EventLogFile)
	if err := u.cosClient.PutObject(ctx, logName, &logBuf, mimeJSONLines); err != nil {
		return nil, fmt.Errorf("upload %s: %w", logName, err)
	}

	stripped := *result
	stripped.Events = nil
	data, err := json.Marshal(&stripped)
	if err != nil {
		return nil, fmt.Errorf("encode run result: %w", err)
	}
	resultName := path.Join(location, artifact.ResultFile)
	if err := u.cosClient.PutObject(ctx, resultName, bytes.NewReader(data), mimeJSON); err != nil {
		return nil, fmt.Errorf("upload %s: %w", resultName, err)
	}

	return &artifact.Ref{RunID: result.RunID, Location: location}, nil
}

// ReadEventLog fetches a run's raw event log back from object storage.
func (u *Uploader) ReadEventLog(ctx context.Context, runID string) ([]*event.Event, error) {
	name := path.Join(u.prefix, runID, artifact.EventLogFile)
	body, _, err := u.cosClient.GetObject(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", name, err)
	}
	defer body.Close()

	var events []*event.Event
	dec := json.NewDecoder(body)
	for {
		var e event.Event
		if err := dec.Decode(&e); err == io.EOF {
			break
		} else if err != nil {
			return nil, fmt.Errorf("decode event log %s: %w", name, err)
		}
		events = append(events, &e)
	}
	return events, nil
}

// Delete removes a run's bundle from object storage.
func (u *Uploader) Delete(ctx context.Context, runID string) error {
	for _, file := range []string{artifact.ResultFile, artifact.EventLogFile} {
		name := path.Join(u.prefix, runID, file)
		if err := u.cosClient.DeleteObject(ctx, name); err != nil {
			return fmt.Errorf("delete %s: %w", name, err)
		}
	}
	return nil
}
