//
// Tencent is pleased to support the open source community by making trpc-pipeline-agent available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-pipeline-agent is licensed under the Apache License Version 2.0.
//
//

package runner

import (
	"context"
	"fmt"
	"sync"

	"github.com/panjf2000/ants/v2"

	"trpc.group/trpc-go/trpc-pipeline-agent/conversation"
)

// BatchItem pairs one conversation of a batch with its outcome.
type BatchItem struct {
	Conversation *conversation.Conversation
	Result       *conversation.RunResult
	Err          error
}

// RunAll executes independent conversations in parallel on a bounded worker
// pool and returns one item per conversation, in input order. Runs share no
// mutable state and persist to disjoint destinations, so no cross-run
// coordination happens here; a single failed run never affects the others.
func (r *Runner) RunAll(ctx context.Context, convs []*conversation.Conversation, parallelism int) ([]*BatchItem, error) {
	if parallelism <= 0 {
		parallelism = 1
	}
	pool, err := ants.NewPool(parallelism)
	if err != nil {
		return nil, fmt.Errorf("create batch worker pool: %w", err)
	}
	defer pool.Release()

	items := make([]*BatchItem, len(convs))
	var wg sync.WaitGroup
	for i, conv := range convs {
		wg.Add(1)
		idx, c := i, conv
		if err := pool.Submit(func() {
			defer wg.Done()
			result, err := r.Run(ctx, c)
			items[idx] = &BatchItem{Conversation: c, Result: result, Err: err}
		}); err != nil {
			wg.Done()
			items[idx] = &BatchItem{Conversation: c, Err: fmt.Errorf("submit run: %w", err)}
		}
	}
	wg.Wait()
	return items, nil
}
