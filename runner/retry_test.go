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
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"trpc.group/trpc-go/trpc-pipeline-agent/transport"
)

func TestNextDelayExponentialGrowth(t *testing.T) {
	p := RetryPolicy{
		InitialInterval: 100 * time.Millisecond,
		BackoffFactor:   2.0,
		MaxInterval:     time.Second,
	}
	assert.Equal(t, 100*time.Millisecond, p.NextDelay(1))
	assert.Equal(t, 200*time.Millisecond, p.NextDelay(2))
	assert.Equal(t, 400*time.Millisecond, p.NextDelay(3))
	// Clamped to MaxInterval.
	assert.Equal(t, time.Second, p.NextDelay(10))
}

func TestNextDelayMisconfiguredFactor(t *testing.T) {
	p := RetryPolicy{InitialInterval: 50 * time.Millisecond}
	assert.Equal(t, 50*time.Millisecond, p.NextDelay(1))
	assert.Equal(t, 50*time.Millisecond, p.NextDelay(5))
}

func TestNextDelayJitterBounds(t *testing.T) {
	p := RetryPolicy{
		InitialInterval: 100 * time.Millisecond,
		BackoffFactor:   1.0,
		Jitter:          true,
	}
	for i := 0; i < 50; i++ {
		d := p.NextDelay(1)
		assert.GreaterOrEqual(t, d, 100*time.Millisecond)
		assert.Less(t, d, 200*time.Millisecond)
	}
}

func TestShouldRetryNoConditions(t *testing.T) {
	p := RetryPolicy{}
	assert.False(t, p.ShouldRetry(errors.New("anything")))
}

func TestRetryOnConnectionError(t *testing.T) {
	cond := RetryOnConnectionError()
	assert.True(t, cond.Match(&transport.ConnectionError{Endpoint: "http://x"}))
	assert.True(t, cond.Match(fmt.Errorf("wrapped: %w",
		&transport.ConnectionError{Endpoint: "http://x", StatusCode: 503})))
	assert.False(t, cond.Match(errors.New("mid-stream drop")))
	assert.False(t, cond.Match(nil))
}

func TestRetryOnErrors(t *testing.T) {
	target := errors.New("target")
	cond := RetryOnErrors(target, nil)
	assert.True(t, cond.Match(fmt.Errorf("outer: %w", target)))
	assert.False(t, cond.Match(errors.New("other")))
}

func TestDefaultRetryPolicy(t *testing.T) {
	p := DefaultRetryPolicy()
	assert.Equal(t, 3, p.MaxRetries)
	assert.True(t, p.ShouldRetry(&transport.ConnectionError{Endpoint: "http://x"}))
	assert.False(t, p.ShouldRetry(errors.New("protocol violation")))
}
