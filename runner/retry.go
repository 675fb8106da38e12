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
	"crypto/rand"
	"errors"
	"math"
	"math/big"
	"time"

	"trpc.group/trpc-go/trpc-pipeline-agent/transport"
)

// RetryCondition determines whether an error is retryable.
type RetryCondition interface {
	Match(err error) bool
}

// RetryConditionFunc is an adapter to allow the use of
// ordinary functions as RetryCondition.
type RetryConditionFunc func(error) bool

// Match calls f(err).
func (f RetryConditionFunc) Match(err error) bool { return f(err) }

// RetryPolicy bounds the pre-stream connection retries of a run.
// MaxRetries counts retries after the first attempt: MaxRetries=3 means
// 1 initial try + up to 3 retries.
type RetryPolicy struct {
	MaxRetries      int
	InitialInterval time.Duration
	BackoffFactor   float64
	MaxInterval     time.Duration
	Jitter          bool
	RetryOn         []RetryCondition
}

// DefaultRetryPolicy retries connection errors with exponential backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:      3,
		InitialInterval: 500 * time.Millisecond,
		BackoffFactor:   2.0,
		MaxInterval:     10 * time.Second,
		Jitter:          true,
		RetryOn:         []RetryCondition{RetryOnConnectionError()},
	}
}

// NextDelay returns the backoff delay before the given retry number.
// retry starts at 1 for the first retry.
func (p RetryPolicy) NextDelay(retry int) time.Duration {
	if retry < 1 {
		retry = 1
	}
	delay := float64(p.InitialInterval)
	factor := p.BackoffFactor
	if factor <= 0 {
		// No exponential growth if misconfigured.
		factor = 1.0
	}
	if retry > 1 {
		delay *= math.Pow(factor, float64(retry-1))
	}
	maxInt := p.MaxInterval
	if maxInt <= 0 {
		maxInt = p.InitialInterval
	}
	if maxInt > 0 {
		delay = math.Min(delay, float64(maxInt))
	}
	d := time.Duration(delay)
	if p.Jitter && d > 0 {
		// Additive jitter in [0, d). crypto/rand avoids gosec G404.
		if n, err := rand.Int(rand.Reader, big.NewInt(int64(d))); err == nil {
			d += time.Duration(n.Int64())
		}
	}
	if d < 0 {
		d = 0
	}
	return d
}

// ShouldRetry reports whether the given error matches any of the policy's
// conditions.
func (p RetryPolicy) ShouldRetry(err error) bool {
	if len(p.RetryOn) == 0 {
		return false
	}
	for _, cond := range p.RetryOn {
		if cond != nil && cond.Match(err) {
			return true
		}
	}
	return false
}

// RetryOnErrors creates a condition that matches when errors.Is(err, any
// target).
func RetryOnErrors(targets ...error) RetryCondition {
	return RetryConditionFunc(func(err error) bool {
		for _, t := range targets {
			if t == nil {
				continue
			}
			if errors.Is(err, t) {
				return true
			}
		}
		return false
	})
}

// RetryOnConnectionError matches transport connection failures, the only
// failure class that is safe to retry: no event has been observed, so no
// tool side effect can have occurred.
func RetryOnConnectionError() RetryCondition {
	return RetryConditionFunc(func(err error) bool {
		var cerr *transport.ConnectionError
		return errors.As(err, &cerr)
	})
}
