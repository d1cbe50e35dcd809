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

package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudpathfs/gcsfs/internal/gcserrors"
)

func fastTestConfig() Config {
	return Config{
		RetryDeadline:    time.Second,
		TotalRetryBudget: 2 * time.Second,
		InitialBackoff:   time.Millisecond,
		MaxBackoff:       5 * time.Millisecond,
		Multiplier:       2.0,
	}
}

func TestExecuteSucceedsOnFirstTry(t *testing.T) {
	calls := 0
	result, err := Execute(context.Background(), fastTestConfig(), "Op", "desc", func(ctx context.Context) (int, error) {
		calls++
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, result)
	assert.Equal(t, 1, calls)
}

func TestExecuteRetriesTransientThenSucceeds(t *testing.T) {
	calls := 0
	result, err := Execute(context.Background(), fastTestConfig(), "Op", "desc", func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", &gcserrors.TransientError{Err: errors.New("try again")}
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 3, calls)
}

func TestExecuteDoesNotRetryFatalError(t *testing.T) {
	calls := 0
	_, err := Execute(context.Background(), fastTestConfig(), "Op", "desc", func(ctx context.Context) (int, error) {
		calls++
		return 0, &gcserrors.FatalError{Err: errors.New("bad request")}
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestExecuteGivesUpAfterBudgetExhausted(t *testing.T) {
	cfg := fastTestConfig()
	cfg.TotalRetryBudget = 20 * time.Millisecond
	calls := 0
	_, err := Execute(context.Background(), cfg, "Op", "desc", func(ctx context.Context) (int, error) {
		calls++
		return 0, &gcserrors.TransientError{Err: errors.New("always fails")}
	})
	require.Error(t, err)
	assert.Greater(t, calls, 0)
}

func TestExecuteInvokesOnRetryOncePerRetryNotOnFirstTry(t *testing.T) {
	cfg := fastTestConfig()
	var retryCount int
	cfg.OnRetry = func(operationName string) {
		retryCount++
		assert.Equal(t, "Op", operationName)
	}

	calls := 0
	_, err := Execute(context.Background(), cfg, "Op", "desc", func(ctx context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, &gcserrors.TransientError{Err: errors.New("try again")}
		}
		return 1, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, retryCount, "OnRetry should fire once per retry, not on the first attempt")
}

func TestExecuteRespectsCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Execute(ctx, fastTestConfig(), "Op", "desc", func(ctx context.Context) (int, error) {
		t.Fatal("apiCall should not run against an already-canceled context")
		return 0, nil
	})
	require.Error(t, err)
}
