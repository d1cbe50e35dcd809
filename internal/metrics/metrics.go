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

// Package metrics exposes Prometheus instrumentation for the directory
// cache and the timestamp updater. Registration is opt-in (cfg.Metrics.Enabled)
// so the facade imposes no collector-registry side effects by default.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Handle bundles every collector the facade and its collaborators report
// to. A nil *Handle is valid and every method becomes a no-op, so callers
// that disable metrics don't need to guard every call site.
type Handle struct {
	cacheHits       *prometheus.CounterVec
	rpcRetries      *prometheus.CounterVec
	mtimeQueueDrops prometheus.Counter
	rpcLatency      *prometheus.HistogramVec
}

// New registers and returns a Handle on reg. Pass a fresh registry (or
// prometheus.DefaultRegisterer) only when cfg.Metrics.Enabled is true.
func New(reg prometheus.Registerer) *Handle {
	h := &Handle{
		cacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gcsfs",
			Subsystem: "dircache",
			Name:      "lookups_total",
			Help:      "Directory list cache lookups, partitioned by outcome.",
		}, []string{"outcome"}),
		rpcRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gcsfs",
			Subsystem: "store",
			Name:      "rpc_retries_total",
			Help:      "Object store RPC retries, partitioned by operation.",
		}, []string{"operation"}),
		mtimeQueueDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gcsfs",
			Subsystem: "mtimeupdater",
			Name:      "queue_drops_total",
			Help:      "Timestamp update tasks dropped due to a saturated queue.",
		}),
		rpcLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "gcsfs",
			Subsystem: "store",
			Name:      "rpc_latency_seconds",
			Help:      "Object store RPC latency, partitioned by operation.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
	}
	reg.MustRegister(h.cacheHits, h.rpcRetries, h.mtimeQueueDrops, h.rpcLatency)
	return h
}

func (h *Handle) CacheHit()  { h.observeCache("hit") }
func (h *Handle) CacheMiss() { h.observeCache("miss") }
func (h *Handle) CacheStale() { h.observeCache("stale") }

func (h *Handle) observeCache(outcome string) {
	if h == nil {
		return
	}
	h.cacheHits.WithLabelValues(outcome).Inc()
}

func (h *Handle) RPCRetried(operation string) {
	if h == nil {
		return
	}
	h.rpcRetries.WithLabelValues(operation).Inc()
}

func (h *Handle) MtimeQueueDropped() {
	if h == nil {
		return
	}
	h.mtimeQueueDrops.Inc()
}

func (h *Handle) ObserveRPCLatencySeconds(operation string, seconds float64) {
	if h == nil {
		return
	}
	h.rpcLatency.WithLabelValues(operation).Observe(seconds)
}
