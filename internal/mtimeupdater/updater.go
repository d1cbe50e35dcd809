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

// Package mtimeupdater implements the Timestamp Updater: a bounded
// background worker pool that best-effort-stamps gcs_mtime_millis on the
// parent directories of every facade mutation.
package mtimeupdater

import (
	"context"
	"strings"
	"time"

	"github.com/jacobsa/timeutil"

	"github.com/cloudpathfs/gcsfs/internal/logger"
	"github.com/cloudpathfs/gcsfs/internal/metrics"
	"github.com/cloudpathfs/gcsfs/internal/resource"
	"github.com/cloudpathfs/gcsfs/internal/store"
	"github.com/cloudpathfs/gcsfs/internal/workerpool"
)

// Default tuning, ported from §4.G.
const (
	DefaultWorkers  = 2
	DefaultCapacity = 1000
	DefaultDrain    = 10 * time.Second
)

// Filter restricts which parent paths are eligible for an mtime update, by
// substring inclusion/exclusion, matching the "includes/excludes substring
// filters" option in §6.
type Filter struct {
	Includes []string
	Excludes []string
}

func (f Filter) allows(uri string) bool {
	if len(f.Includes) > 0 {
		included := false
		for _, s := range f.Includes {
			if strings.Contains(uri, s) {
				included = true
				break
			}
		}
		if !included {
			return false
		}
	}
	for _, s := range f.Excludes {
		if strings.Contains(uri, s) {
			return false
		}
	}
	return true
}

// Updater enqueues and executes parent-timestamp-update tasks.
type Updater struct {
	client  workerpool.WorkerPool
	store   store.Client
	clock   timeutil.Clock
	filter  Filter
	ctx     context.Context
	cancel  context.CancelFunc
	metrics *metrics.Handle
}

// WithMetrics attaches a Handle that Enqueue reports dropped updates to.
// Passing nil disables reporting.
func (u *Updater) WithMetrics(h *metrics.Handle) *Updater {
	u.metrics = h
	return u
}

// New constructs an Updater backed by a dedicated worker pool. Call Close
// to drain and stop it.
func New(parent context.Context, client store.Client, clock timeutil.Clock, filter Filter) *Updater {
	if clock == nil {
		clock = timeutil.RealClock()
	}
	ctx, cancel := context.WithCancel(parent)
	u := &Updater{
		client: workerpool.New(DefaultWorkers, DefaultCapacity, DefaultDrain),
		store:  client,
		clock:  clock,
		filter: filter,
		ctx:    ctx,
		cancel: cancel,
	}
	u.client.Start()
	return u
}

// Enqueue schedules a timestamp update for the parents of modified,
// excluding any resource id present in excluded (the paths that were
// themselves just created, so their own placeholder creation isn't
// double-counted as a "child changed" signal).
func (u *Updater) Enqueue(modified []resource.ID, excluded []resource.ID) {
	excludedSet := make(map[string]bool, len(excluded))
	for _, id := range excluded {
		excludedSet[id.String()] = true
	}

	seen := map[string]bool{}
	var parents []resource.ID
	for _, id := range modified {
		parent := resource.GetParent(id)
		if parent.IsRoot() || parent.IsBucket() {
			continue
		}
		if excludedSet[parent.String()] || seen[parent.String()] {
			continue
		}
		if !u.filter.allows(parent.String()) {
			continue
		}
		seen[parent.String()] = true
		parents = append(parents, parent)
	}
	if len(parents) == 0 {
		return
	}

	task := &updateTask{u: u, parents: parents}
	if !u.client.Schedule(false, task) {
		logger.Debugf("mtime updater: queue saturated, dropping update for %d parents", len(parents))
		u.metrics.MtimeQueueDropped()
	}
}

type updateTask struct {
	u       *Updater
	parents []resource.ID
}

func (t *updateTask) Execute() {
	now := t.u.clock.Now()
	reqs := make([]store.UpdateRequest, len(t.parents))
	for i, id := range t.parents {
		reqs[i] = store.UpdateRequest{
			Id:             id,
			AttributeDelta: map[string][]byte{store.MtimeAttribute: store.EncodeMtime(now)},
		}
	}
	if err := t.u.store.UpdateItems(t.u.ctx, reqs); err != nil {
		logger.Debugf("mtime updater: best-effort update failed for %d parents: %v", len(t.parents), err)
	}
}

// Close cancels the updater's background context and drains its pool.
func (u *Updater) Close() {
	u.cancel()
	u.client.Stop()
}
