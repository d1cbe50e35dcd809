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

package dircache

import (
	"container/list"
	"context"
	"fmt"

	"github.com/jacobsa/timeutil"

	"github.com/cloudpathfs/gcsfs/internal/locker"
	"github.com/cloudpathfs/gcsfs/internal/resource"
	"github.com/cloudpathfs/gcsfs/internal/store"
)

// cachedBucket groups a bucket's own existence/ItemInfo with an
// insertion-ordered mapping from object name to CacheEntry, mirroring the
// data model's CachedBucket: puts/gets/removes of a foreign-bucket
// resource id are rejected by the caller (MemoryCache), not by this type
// itself. The bucket's own entry (own) is tracked independently of its
// object entries -- listing buckets must never be confused with listing
// the objects within one.
type cachedBucket struct {
	name    string
	own     *CacheEntry
	order   list.List // element.Value is string (object name)
	entries map[string]*list.Element
	data    map[string]CacheEntry
}

func newCachedBucket(name string) *cachedBucket {
	return &cachedBucket{name: name, entries: map[string]*list.Element{}, data: map[string]CacheEntry{}}
}

func (b *cachedBucket) put(e CacheEntry) {
	name := e.ResourceId.Object()
	if _, ok := b.entries[name]; !ok {
		el := b.order.PushBack(name)
		b.entries[name] = el
	}
	b.data[name] = e
}

func (b *cachedBucket) get(name string) (CacheEntry, bool) {
	e, ok := b.data[name]
	return e, ok
}

func (b *cachedBucket) remove(name string) {
	if el, ok := b.entries[name]; ok {
		b.order.Remove(el)
		delete(b.entries, name)
		delete(b.data, name)
	}
}

func (b *cachedBucket) list() []CacheEntry {
	out := make([]CacheEntry, 0, len(b.data))
	for el := b.order.Front(); el != nil; el = el.Next() {
		out = append(out, b.data[el.Value.(string)])
	}
	return out
}

// MemoryCache is the process-local Cache backend: a mapping from bucket
// name to cachedBucket protected by a single mutex.
type MemoryCache struct {
	mu      locker.RWLocker
	buckets map[string]*cachedBucket
	config  Config
	clock   timeutil.Clock
}

// NewMemoryCache constructs an empty in-memory directory list cache. The
// returned locker's invariant check (active only when
// locker.EnableInvariantsCheck is set) walks every bucket's insertion-order
// list against its entry map, catching a PushBack/delete mismatch that
// would otherwise surface later as a corrupted listing order.
func NewMemoryCache(config Config, clock timeutil.Clock) *MemoryCache {
	if clock == nil {
		clock = timeutil.RealClock()
	}
	c := &MemoryCache{buckets: map[string]*cachedBucket{}, config: config, clock: clock}
	c.mu = locker.NewRW("dircache.MemoryCache", c.checkInvariants)
	return c
}

// checkInvariants verifies that every cachedBucket's insertion-order list
// stays in lockstep with its entry/data maps. Called with mu already held,
// so it must not lock.
func (c *MemoryCache) checkInvariants() {
	for name, b := range c.buckets {
		if b.order.Len() != len(b.entries) {
			panic(fmt.Sprintf("dircache: bucket %q order/entries length mismatch: %d vs %d", name, b.order.Len(), len(b.entries)))
		}
		if len(b.entries) != len(b.data) {
			panic(fmt.Sprintf("dircache: bucket %q entries/data length mismatch: %d vs %d", name, len(b.entries), len(b.data)))
		}
	}
}

func validateObjectId(id resource.ID) error {
	if id.IsRoot() || id.IsBucket() {
		return &ErrInvalidResource{Id: id}
	}
	return nil
}

func (c *MemoryCache) bucketFor(name string, create bool) *cachedBucket {
	b, ok := c.buckets[name]
	if !ok && create {
		b = newCachedBucket(name)
		c.buckets[name] = b
	}
	return b
}

func (c *MemoryCache) PutResource(ctx context.Context, id resource.ID) error {
	if err := validateObjectId(id); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.clock.Now().UnixMilli()
	b := c.bucketFor(id.Bucket(), true)
	if existing, ok := b.get(id.Object()); ok {
		existing.ResourceId = id
		b.put(existing)
		return nil
	}
	b.put(CacheEntry{ResourceId: id, CreationTimeMs: now})
	return nil
}

func (c *MemoryCache) PutResourceInfo(ctx context.Context, id resource.ID, info store.ItemInfo) error {
	if err := validateObjectId(id); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.clock.Now().UnixMilli()
	b := c.bucketFor(id.Bucket(), true)
	creation := now
	if existing, ok := b.get(id.Object()); ok {
		creation = existing.CreationTimeMs
	}
	infoCopy := info
	b.put(CacheEntry{ResourceId: id, ItemInfo: &infoCopy, CreationTimeMs: creation, ItemInfoUpdateTimeMs: now})
	return nil
}

func (c *MemoryCache) GetEntry(ctx context.Context, id resource.ID) (CacheEntry, bool, error) {
	if err := validateObjectId(id); err != nil {
		return CacheEntry{}, false, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.buckets[id.Bucket()]
	if !ok {
		return CacheEntry{}, false, nil
	}
	e, ok := b.get(id.Object())
	if !ok {
		return CacheEntry{}, false, nil
	}
	if e.Expired(c.clock.Now(), c.config.MaxEntryAge) {
		b.remove(id.Object())
		return CacheEntry{}, false, nil
	}
	return e, true, nil
}

func (c *MemoryCache) RemoveResource(ctx context.Context, id resource.ID) error {
	if err := validateObjectId(id); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if b, ok := c.buckets[id.Bucket()]; ok {
		b.remove(id.Object())
	}
	return nil
}

// PutBucket records that bucket exists, without yet knowing its own
// ItemInfo.
func (c *MemoryCache) PutBucket(ctx context.Context, bucket string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.clock.Now().UnixMilli()
	b := c.bucketFor(bucket, true)
	if b.own == nil {
		b.own = &CacheEntry{ResourceId: resource.BucketID(bucket), CreationTimeMs: now}
	}
	return nil
}

// PutBucketInfo inserts or updates the bucket's own ItemInfo.
func (c *MemoryCache) PutBucketInfo(ctx context.Context, bucket string, info store.ItemInfo) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.clock.Now().UnixMilli()
	b := c.bucketFor(bucket, true)
	creation := now
	if b.own != nil {
		creation = b.own.CreationTimeMs
	}
	infoCopy := info
	b.own = &CacheEntry{ResourceId: resource.BucketID(bucket), ItemInfo: &infoCopy, CreationTimeMs: creation, ItemInfoUpdateTimeMs: now}
	return nil
}

// GetBucketEntry returns bucket's own cached entry, or ok=false if absent
// or hard-expired.
func (c *MemoryCache) GetBucketEntry(ctx context.Context, bucket string) (CacheEntry, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.buckets[bucket]
	if !ok || b.own == nil {
		return CacheEntry{}, false, nil
	}
	if b.own.Expired(c.clock.Now(), c.config.MaxEntryAge) {
		b.own = nil
		return CacheEntry{}, false, nil
	}
	return *b.own, true, nil
}

// RemoveBucket evicts bucket's own cached entry, leaving any object
// entries under it untouched.
func (c *MemoryCache) RemoveBucket(ctx context.Context, bucket string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if b, ok := c.buckets[bucket]; ok {
		b.own = nil
	}
	return nil
}

// GetBucketList returns one entry per cached bucket -- the bucket's own
// ItemInfo, never its object entries.
func (c *MemoryCache) GetBucketList(ctx context.Context) ([]CacheEntry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	now := c.clock.Now()
	var out []CacheEntry
	for _, b := range c.buckets {
		if b.own != nil && !b.own.Expired(now, c.config.MaxEntryAge) {
			out = append(out, *b.own)
		}
	}
	return out, nil
}

func (c *MemoryCache) GetObjectList(ctx context.Context, bucket string) ([]CacheEntry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	b, ok := c.buckets[bucket]
	if !ok {
		return nil, nil
	}
	now := c.clock.Now()
	var out []CacheEntry
	for _, e := range b.list() {
		if !e.Expired(now, c.config.MaxEntryAge) {
			out = append(out, e)
		}
	}
	return out, nil
}

// Sweep removes every hard-expired entry in one pass. An expired bucket
// entry is removed together with all of its object entries, and a bucket
// left with zero entries is dropped entirely.
func (c *MemoryCache) Sweep(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.clock.Now()
	for name, b := range c.buckets {
		if b.own != nil && b.own.Expired(now, c.config.MaxEntryAge) {
			delete(c.buckets, name)
			continue
		}
		for _, name := range namesOf(b) {
			if e, ok := b.get(name); ok && e.Expired(now, c.config.MaxEntryAge) {
				b.remove(name)
			}
		}
		if len(b.data) == 0 && b.own == nil {
			delete(c.buckets, name)
		}
	}
	return nil
}

func namesOf(b *cachedBucket) []string {
	names := make([]string, 0, len(b.data))
	for name := range b.data {
		names = append(names, name)
	}
	return names
}

var _ Cache = (*MemoryCache)(nil)
