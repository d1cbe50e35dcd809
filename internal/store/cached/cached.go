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

// Package cached implements the Cache-Supplemented Client: it layers a
// dircache.Cache onto a store.Client so that every successful mutation
// updates the cache before returning, and every listing is unioned with
// fresh cache entries to mask the wrapped client's eventual consistency.
package cached

import (
	"context"
	"time"

	"github.com/cloudpathfs/gcsfs/internal/dircache"
	"github.com/cloudpathfs/gcsfs/internal/logger"
	"github.com/cloudpathfs/gcsfs/internal/metrics"
	"github.com/cloudpathfs/gcsfs/internal/resource"
	"github.com/cloudpathfs/gcsfs/internal/store"
)

// Client wraps a store.Client with a dircache.Cache.
type Client struct {
	wrapped store.Client
	cache   dircache.Cache
	config  dircache.Config
	metrics *metrics.Handle
}

// New layers cache onto wrapped.
func New(wrapped store.Client, cache dircache.Cache, config dircache.Config) *Client {
	return &Client{wrapped: wrapped, cache: cache, config: config}
}

// WithMetrics attaches a Handle that GetInfo reports cache hit/miss/stale
// outcomes to. Passing nil disables reporting.
func (c *Client) WithMetrics(h *metrics.Handle) *Client {
	c.metrics = h
	return c
}

// GetInfo consults the cache first; a fresh entry is trusted directly, a
// stale one is refetched and re-cached, and a miss falls through to the
// wrapped client. Bucket-typed ids consult the CachedBucket's own entry;
// root is never cached.
func (c *Client) GetInfo(ctx context.Context, id resource.ID) (store.ItemInfo, error) {
	if id.IsRoot() {
		return c.wrapped.GetInfo(ctx, id)
	}

	if id.IsBucket() {
		return c.getBucketInfo(ctx, id)
	}

	if entry, ok, err := c.cache.GetEntry(ctx, id); err == nil && ok && entry.ItemInfo != nil {
		if entry.Stale(time.Now(), c.config.MaxInfoAge) {
			c.metrics.CacheStale()
		} else {
			c.metrics.CacheHit()
			return *entry.ItemInfo, nil
		}
	} else {
		c.metrics.CacheMiss()
	}

	info, err := c.wrapped.GetInfo(ctx, id)
	if err != nil {
		return store.ItemInfo{}, err
	}
	if info.Exists {
		if putErr := c.cache.PutResourceInfo(ctx, id, info); putErr != nil {
			logger.Warnf("cached store: failed to cache info for %s: %v", id, putErr)
		}
	}
	return info, nil
}

func (c *Client) getBucketInfo(ctx context.Context, id resource.ID) (store.ItemInfo, error) {
	name := id.Bucket()
	if entry, ok, err := c.cache.GetBucketEntry(ctx, name); err == nil && ok && entry.ItemInfo != nil {
		if entry.Stale(time.Now(), c.config.MaxInfoAge) {
			c.metrics.CacheStale()
		} else {
			c.metrics.CacheHit()
			return *entry.ItemInfo, nil
		}
	} else {
		c.metrics.CacheMiss()
	}

	info, err := c.wrapped.GetInfo(ctx, id)
	if err != nil {
		return store.ItemInfo{}, err
	}
	if info.Exists {
		if putErr := c.cache.PutBucketInfo(ctx, name, info); putErr != nil {
			logger.Warnf("cached store: failed to cache bucket info for %s: %v", name, putErr)
		}
	}
	return info, nil
}

func (c *Client) GetInfos(ctx context.Context, ids []resource.ID) ([]store.ItemInfo, error) {
	out := make([]store.ItemInfo, len(ids))
	for i, id := range ids {
		info, err := c.GetInfo(ctx, id)
		if err != nil {
			return nil, err
		}
		out[i] = info
	}
	return out, nil
}

func (c *Client) ListBucketNames(ctx context.Context) ([]string, error) {
	return c.wrapped.ListBucketNames(ctx)
}

// CreateBucket populates the CachedBucket's own entry on success, so a
// listing immediately after creation reflects it without waiting on the
// wrapped client's eventual consistency.
func (c *Client) CreateBucket(ctx context.Context, name string) error {
	if err := c.wrapped.CreateBucket(ctx, name); err != nil {
		return err
	}
	if err := c.cache.PutBucket(ctx, name); err != nil {
		logger.Warnf("cached store: failed to cache bucket creation of %s: %v", name, err)
	}
	return nil
}

func (c *Client) ListBucketInfos(ctx context.Context) ([]store.ItemInfo, error) {
	fromStore, err := c.wrapped.ListBucketInfos(ctx)
	if err != nil {
		return nil, err
	}
	cachedEntries, err := c.cache.GetBucketList(ctx)
	if err != nil {
		logger.Warnf("cached store: bucket list union failed: %v", err)
		return fromStore, nil
	}
	cached := make([]store.ItemInfo, len(cachedEntries))
	for i, e := range cachedEntries {
		info := store.ItemInfo{ResourceId: e.ResourceId, Exists: true}
		if e.ItemInfo != nil {
			info = *e.ItemInfo
		}
		cached[i] = info
	}
	return unionInfos(fromStore, cached), nil
}

// ListObjectNames lists from the wrapped client, then unions in any
// cache-only entries under the same bucket/prefix, de-duplicated by
// resource id. This is the read-your-writes mask described in §4.D.
func (c *Client) ListObjectNames(ctx context.Context, bucket, prefix, delimiter string) ([]string, error) {
	infos, err := c.ListObjectInfos(ctx, bucket, prefix, delimiter)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(infos))
	for i, info := range infos {
		names[i] = info.ResourceId.Object()
	}
	return names, nil
}

func (c *Client) ListObjectInfos(ctx context.Context, bucket, prefix, delimiter string) ([]store.ItemInfo, error) {
	fromStore, err := c.wrapped.ListObjectInfos(ctx, bucket, prefix, delimiter)
	if err != nil {
		return nil, err
	}

	cachedEntries, err := c.cache.GetObjectList(ctx, bucket)
	if err != nil {
		logger.Warnf("cached store: object list union failed: %v", err)
		return fromStore, nil
	}

	var supplement []store.ItemInfo
	for _, e := range cachedEntries {
		name := e.ResourceId.Object()
		if len(name) < len(prefix) || name[:len(prefix)] != prefix {
			continue
		}
		rest := name[len(prefix):]
		if delimiter != "" {
			if idx := indexOf(rest, delimiter); idx >= 0 && idx != len(rest)-len(delimiter) {
				continue
			}
		}
		info := store.ItemInfo{ResourceId: e.ResourceId, Exists: true}
		if e.ItemInfo != nil {
			info = *e.ItemInfo
		}
		supplement = append(supplement, info)
	}

	return unionInfos(fromStore, supplement), nil
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}

// unionInfos merges b into a, skipping anything in b whose resource id is
// already present in a. The result contains each resource id at most once.
func unionInfos(a, b []store.ItemInfo) []store.ItemInfo {
	seen := make(map[string]bool, len(a))
	for _, info := range a {
		seen[info.ResourceId.String()] = true
	}
	out := append([]store.ItemInfo(nil), a...)
	for _, info := range b {
		if !seen[info.ResourceId.String()] {
			seen[info.ResourceId.String()] = true
			out = append(out, info)
		}
	}
	return out
}

func (c *Client) CreateWriter(ctx context.Context, id resource.ID, opts store.WriteOptions) (store.Writer, error) {
	w, err := c.wrapped.CreateWriter(ctx, id, opts)
	if err != nil {
		return nil, err
	}
	return &cacheInvalidatingWriter{Writer: w, cache: c.cache, ctx: ctx}, nil
}

type cacheInvalidatingWriter struct {
	store.Writer
	cache  dircache.Cache
	ctx    context.Context
	closed bool
}

func (w *cacheInvalidatingWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	err := w.Writer.Close()
	if err == nil {
		if putErr := w.cache.PutResource(w.ctx, w.Id()); putErr != nil {
			logger.Warnf("cached store: failed to cache write of %s: %v", w.Id(), putErr)
		}
	}
	return err
}

func (c *Client) OpenReader(ctx context.Context, id resource.ID) (store.Reader, error) {
	return c.wrapped.OpenReader(ctx, id)
}

func (c *Client) CreateEmpty(ctx context.Context, id resource.ID, attrs map[string][]byte) error {
	if err := c.wrapped.CreateEmpty(ctx, id, attrs); err != nil {
		return err
	}
	if err := c.cache.PutResource(ctx, id); err != nil {
		logger.Warnf("cached store: failed to cache create of %s: %v", id, err)
	}
	return nil
}

func (c *Client) CreateEmptyBatch(ctx context.Context, ids []resource.ID, attrs map[string][]byte) error {
	err := c.wrapped.CreateEmptyBatch(ctx, ids, attrs)
	// Per §7's partial-failure rule: the cache reflects only the
	// successful mutations so a retry re-does the remainder. Since the
	// wrapped client reports failed indices, cache everything except
	// those.
	failed := map[int]bool{}
	if err != nil {
		if be, ok := asBatchError(err); ok {
			for _, i := range be.FailedIndices {
				failed[i] = true
			}
		} else {
			return err
		}
	}
	for i, id := range ids {
		if failed[i] {
			continue
		}
		if putErr := c.cache.PutResource(ctx, id); putErr != nil {
			logger.Warnf("cached store: failed to cache create of %s: %v", id, putErr)
		}
	}
	return err
}

func (c *Client) Copy(ctx context.Context, reqs []store.CopyRequest) error {
	err := c.wrapped.Copy(ctx, reqs)
	failed := map[int]bool{}
	if err != nil {
		if be, ok := asBatchError(err); ok {
			for _, i := range be.FailedIndices {
				failed[i] = true
			}
		} else {
			return err
		}
	}
	for i, req := range reqs {
		if failed[i] {
			continue
		}
		id := resource.ObjectID(req.DstBucket, req.DstName)
		if putErr := c.cache.PutResource(ctx, id); putErr != nil {
			logger.Warnf("cached store: failed to cache copy dest %s: %v", id, putErr)
		}
	}
	return err
}

func (c *Client) Delete(ctx context.Context, ids []resource.ID) error {
	err := c.wrapped.Delete(ctx, ids)
	failed := map[int]bool{}
	if err != nil {
		if be, ok := asBatchError(err); ok {
			for _, i := range be.FailedIndices {
				failed[i] = true
			}
		} else {
			return err
		}
	}
	for i, id := range ids {
		if failed[i] {
			continue
		}
		if rmErr := c.cache.RemoveResource(ctx, id); rmErr != nil {
			logger.Warnf("cached store: failed to evict deleted %s: %v", id, rmErr)
		}
	}
	return err
}

func (c *Client) DeleteBuckets(ctx context.Context, names []string) error {
	if err := c.wrapped.DeleteBuckets(ctx, names); err != nil {
		return err
	}
	for _, name := range names {
		if rmErr := c.cache.RemoveBucket(ctx, name); rmErr != nil {
			logger.Warnf("cached store: failed to evict deleted bucket %s: %v", name, rmErr)
		}
	}
	return nil
}

func (c *Client) WaitForBucketEmpty(ctx context.Context, name string) error {
	return c.wrapped.WaitForBucketEmpty(ctx, name)
}

func (c *Client) UpdateItems(ctx context.Context, reqs []store.UpdateRequest) error {
	if err := c.wrapped.UpdateItems(ctx, reqs); err != nil {
		return err
	}
	for _, req := range reqs {
		if entry, ok, _ := c.cache.GetEntry(ctx, req.Id); ok && entry.ItemInfo != nil {
			if err := c.cache.RemoveResource(ctx, req.Id); err != nil {
				logger.Warnf("cached store: failed to invalidate updated %s: %v", req.Id, err)
			}
		}
	}
	return nil
}

func (c *Client) Compose(ctx context.Context, bucket string, sources []string, dest, contentType string) error {
	if err := c.wrapped.Compose(ctx, bucket, sources, dest, contentType); err != nil {
		return err
	}
	if err := c.cache.PutResource(ctx, resource.ObjectID(bucket, dest)); err != nil {
		logger.Warnf("cached store: failed to cache compose dest %s/%s: %v", bucket, dest, err)
	}
	return nil
}

func (c *Client) Close() error { return c.wrapped.Close() }

func asBatchError(err error) (*store.BatchError, bool) {
	be, ok := err.(*store.BatchError)
	return be, ok
}

var _ store.Client = (*Client)(nil)
