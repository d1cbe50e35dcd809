// Copyright 2024 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package retry implements truncated exponential backoff with jitter for
// the object store client's RPCs, wrapping any operation whose error
// classifies as transient per the gcserrors taxonomy.
package retry

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/cloudpathfs/gcsfs/internal/gcserrors"
	"github.com/cloudpathfs/gcsfs/internal/logger"
)

// Default retry parameters, ported from the object store client's design
// notes: the backoff curve is configuration, not a hardcoded constant.
const (
	DefaultRetryDeadline    = 30 * time.Second
	DefaultTotalRetryBudget = 5 * time.Minute
	DefaultInitialBackoff   = 1 * time.Second
	DefaultMaxBackoff       = 30 * time.Second
	DefaultMultiplier       = 2.0
)

// Config holds the backoff curve and time budgets for a retried operation.
type Config struct {
	// RetryDeadline bounds a single attempt.
	RetryDeadline time.Duration
	// TotalRetryBudget bounds all attempts combined.
	TotalRetryBudget time.Duration
	// InitialBackoff, MaxBackoff, Multiplier define the exponential curve.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
	// OnRetry, if set, is called once per retry attempt (not on the
	// first try) with the operation name, so a caller can report retry
	// counts to metrics without Execute depending on the metrics package
	// directly.
	OnRetry func(operationName string)
}

// DefaultConfig returns the teacher-ported default backoff curve.
func DefaultConfig() Config {
	return Config{
		RetryDeadline:    DefaultRetryDeadline,
		TotalRetryBudget: DefaultTotalRetryBudget,
		InitialBackoff:   DefaultInitialBackoff,
		MaxBackoff:       DefaultMaxBackoff,
		Multiplier:       DefaultMultiplier,
	}
}

type backoff struct {
	config Config
	next   time.Duration
	prev   time.Duration
}

func newBackoff(config Config) *backoff {
	return &backoff{config: config, next: config.InitialBackoff}
}

func (b *backoff) nextDuration() time.Duration {
	next := b.next
	b.next = min(b.config.MaxBackoff, time.Duration(float64(b.next)*b.config.Multiplier))
	return next
}

func (b *backoff) waitWithJitter(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	next := b.nextDuration()
	jittered := time.Duration(1 + rand.Int63n(int64(next)))
	jittered = max(jittered, time.Duration(float64(b.prev)*b.config.Multiplier))
	jittered = min(jittered, b.config.MaxBackoff)
	b.prev = jittered
	select {
	case <-time.After(jittered):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Execute runs apiCall, retrying on errors that gcserrors classifies as
// transient until either the call succeeds, a non-transient error is
// returned, or the total retry budget is exhausted. apiCall is expected to
// return a fully materialized result (never a partially-read response body)
// so a retried attempt leaves no dangling state behind.
func Execute[T any](ctx context.Context, config Config, operationName, reqDescription string, apiCall func(attemptCtx context.Context) (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	parentCtx, cancel := context.WithTimeout(ctx, config.TotalRetryBudget)
	defer cancel()

	b := newBackoff(config)
	for i := 0; ; i++ {
		attemptCtx, attemptCancel := context.WithTimeout(parentCtx, config.RetryDeadline)

		if i == 0 {
			logger.Tracef("Calling %s request for %q with deadline=%v", operationName, reqDescription, config.RetryDeadline)
		} else {
			logger.Tracef("Retrying %s for %q with deadline=%v ...", operationName, reqDescription, config.RetryDeadline)
			if config.OnRetry != nil {
				config.OnRetry(operationName)
			}
		}

		result, err := apiCall(attemptCtx)
		attemptCancel()

		if err == nil {
			logger.Tracef("%s for %q succeeded", operationName, reqDescription)
			return result, nil
		}

		classified := gcserrors.FromTransportError(err)
		if !gcserrors.IsTransient(classified) {
			return zero, fmt.Errorf("%s for %q failed with a non-retryable error: %w", operationName, reqDescription, classified)
		}

		if parentCtx.Err() != nil {
			return zero, fmt.Errorf("%s for %q failed after multiple retries (last error = %v): %w", operationName, reqDescription, classified, parentCtx.Err())
		}

		if waitErr := b.waitWithJitter(parentCtx); waitErr != nil {
			return zero, fmt.Errorf("%s for %q failed after multiple retries (last error = %v): %w", operationName, reqDescription, classified, waitErr)
		}
	}
}
