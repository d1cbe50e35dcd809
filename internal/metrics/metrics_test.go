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

package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestHandleCacheOutcomesIncrementByLabel(t *testing.T) {
	reg := prometheus.NewRegistry()
	h := New(reg)

	h.CacheHit()
	h.CacheHit()
	h.CacheMiss()
	h.CacheStale()

	assert.Equal(t, float64(2), testutil.ToFloat64(h.cacheHits.WithLabelValues("hit")))
	assert.Equal(t, float64(1), testutil.ToFloat64(h.cacheHits.WithLabelValues("miss")))
	assert.Equal(t, float64(1), testutil.ToFloat64(h.cacheHits.WithLabelValues("stale")))
}

func TestHandleRPCRetriedPartitionsByOperation(t *testing.T) {
	reg := prometheus.NewRegistry()
	h := New(reg)

	h.RPCRetried("GetInfo")
	h.RPCRetried("GetInfo")
	h.RPCRetried("Delete")

	assert.Equal(t, float64(2), testutil.ToFloat64(h.rpcRetries.WithLabelValues("GetInfo")))
	assert.Equal(t, float64(1), testutil.ToFloat64(h.rpcRetries.WithLabelValues("Delete")))
}

func TestHandleMtimeQueueDropped(t *testing.T) {
	reg := prometheus.NewRegistry()
	h := New(reg)

	h.MtimeQueueDropped()
	h.MtimeQueueDropped()

	assert.Equal(t, float64(2), testutil.ToFloat64(h.mtimeQueueDrops))
}

func TestHandleObserveRPCLatencySeconds(t *testing.T) {
	reg := prometheus.NewRegistry()
	h := New(reg)

	h.ObserveRPCLatencySeconds("GetInfo", 0.25)

	count := testutil.CollectAndCount(h.rpcLatency)
	assert.Equal(t, 1, count)
}

func TestNilHandleMethodsAreNoOps(t *testing.T) {
	var h *Handle
	assert.NotPanics(t, func() {
		h.CacheHit()
		h.CacheMiss()
		h.CacheStale()
		h.RPCRetried("GetInfo")
		h.MtimeQueueDropped()
		h.ObserveRPCLatencySeconds("GetInfo", 1.0)
	})
}
