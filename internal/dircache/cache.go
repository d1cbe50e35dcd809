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

// Package dircache implements the Directory List Cache: a mapping from
// bucket name to a CachedBucket of per-entry TTL'd CacheEntry records,
// behind a Cache interface with two interchangeable backends (process-local
// and shared-filesystem-mirrored).
package dircache

import (
	"context"
	"fmt"
	"time"

	"github.com/cloudpathfs/gcsfs/internal/resource"
	"github.com/cloudpathfs/gcsfs/internal/store"
)

// DefaultMaxEntryAge is how long a cache row survives before it is eligible
// for eviction, regardless of whether its itemInfo is still fresh.
const DefaultMaxEntryAge = 4 * time.Hour

// DefaultMaxInfoAge is how long a cached ItemInfo may be trusted for a
// negative-existence decision before it must be refetched.
const DefaultMaxInfoAge = 5 * time.Second

// CacheEntry records what is known about one resource. A nil ItemInfo
// means "known to exist at some point" without fetched details.
type CacheEntry struct {
	ResourceId           resource.ID
	ItemInfo             *store.ItemInfo
	CreationTimeMs        int64
	ItemInfoUpdateTimeMs  int64
}

func (e CacheEntry) String() string {
	return fmt.Sprintf("CacheEntry{%s info=%v}", e.ResourceId, e.ItemInfo)
}

// Stale reports whether e's itemInfo is older than maxInfoAge as of now,
// and therefore must be refreshed before being trusted for a
// negative-existence decision.
func (e CacheEntry) Stale(now time.Time, maxInfoAge time.Duration) bool {
	if e.ItemInfo == nil {
		return true
	}
	return now.UnixMilli()-e.ItemInfoUpdateTimeMs > maxInfoAge.Milliseconds()
}

// Expired reports whether e is older than maxEntryAge as of now and
// eligible for eviction outright.
func (e CacheEntry) Expired(now time.Time, maxEntryAge time.Duration) bool {
	return now.UnixMilli()-e.CreationTimeMs > maxEntryAge.Milliseconds()
}

// Cache is the Directory List Cache contract. Implementations must reject
// a root or bucket-typed resource id on every object-scoped method below:
// an object entry always names an object within some bucket. A
// CachedBucket also carries the bucket's own existence/ItemInfo,
// independent of its object entries, through the Bucket* methods.
type Cache interface {
	// PutResource inserts a minimal entry recording only that id exists,
	// without yet knowing its ItemInfo.
	PutResource(ctx context.Context, id resource.ID) error
	// PutResourceInfo inserts or updates an entry with a freshly fetched
	// ItemInfo, stamping ItemInfoUpdateTimeMs to now.
	PutResourceInfo(ctx context.Context, id resource.ID, info store.ItemInfo) error
	// GetEntry returns the entry for id, or ok=false if absent or
	// hard-expired per maxEntryAge.
	GetEntry(ctx context.Context, id resource.ID) (entry CacheEntry, ok bool, err error)
	RemoveResource(ctx context.Context, id resource.ID) error

	// PutBucket records that bucket exists, without yet knowing its own
	// ItemInfo. Distinct from any object entries under bucket.
	PutBucket(ctx context.Context, bucket string) error
	// PutBucketInfo inserts or updates the CachedBucket's own ItemInfo.
	PutBucketInfo(ctx context.Context, bucket string, info store.ItemInfo) error
	// GetBucketEntry returns the bucket's own cached entry, or ok=false if
	// absent or hard-expired.
	GetBucketEntry(ctx context.Context, bucket string) (entry CacheEntry, ok bool, err error)
	// RemoveBucket evicts the bucket's own cached entry. Object entries
	// under the bucket are unaffected.
	RemoveBucket(ctx context.Context, bucket string) error
	// GetBucketList returns one entry per cached bucket -- each bucket's
	// own ItemInfo, not its objects -- filtering hard-expired entries.
	GetBucketList(ctx context.Context) ([]CacheEntry, error)
	// GetObjectList returns all object entries for one bucket, filtering
	// hard-expired entries.
	GetObjectList(ctx context.Context, bucket string) ([]CacheEntry, error)
	// Sweep garbage-collects expired entries in one pass. An expired
	// bucket is removed with all its object entries atomically from the
	// caller's perspective.
	Sweep(ctx context.Context) error
}

// ErrInvalidResource is returned when a cache operation is given a nil,
// root, or bucket-typed resource id where an object id is required.
type ErrInvalidResource struct {
	Id resource.ID
}

func (e *ErrInvalidResource) Error() string {
	return fmt.Sprintf("directory cache: %s is not a valid cache key (must be a bucket-scoped object)", e.Id)
}

// Config bounds the TTLs applied by a Cache implementation.
type Config struct {
	MaxEntryAge time.Duration
	MaxInfoAge  time.Duration
}

// DefaultConfig returns the spec-ported default TTLs.
func DefaultConfig() Config {
	return Config{MaxEntryAge: DefaultMaxEntryAge, MaxInfoAge: DefaultMaxInfoAge}
}
