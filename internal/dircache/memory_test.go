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
	"context"
	"testing"
	"time"

	"github.com/jacobsa/timeutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudpathfs/gcsfs/internal/resource"
	"github.com/cloudpathfs/gcsfs/internal/store"
)

func newTestMemoryCache(maxEntryAge, maxInfoAge time.Duration) (*MemoryCache, *timeutil.SimulatedClock) {
	clock := &timeutil.SimulatedClock{}
	c := NewMemoryCache(Config{MaxEntryAge: maxEntryAge, MaxInfoAge: maxInfoAge}, clock)
	return c, clock
}

func TestMemoryCachePutAndGetEntry(t *testing.T) {
	c, _ := newTestMemoryCache(time.Hour, time.Minute)
	ctx := context.Background()
	id := resource.ObjectID("bucket", "dir/file.txt")

	require.NoError(t, c.PutResource(ctx, id))

	entry, ok, err := c.GetEntry(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Nil(t, entry.ItemInfo)
}

func TestMemoryCacheRejectsBucketAndRootKeys(t *testing.T) {
	c, _ := newTestMemoryCache(time.Hour, time.Minute)
	ctx := context.Background()

	err := c.PutResource(ctx, resource.BucketID("bucket"))
	require.Error(t, err)

	err = c.PutResource(ctx, resource.RootID())
	require.Error(t, err)
}

func TestMemoryCachePutResourceInfoPreservesCreationTime(t *testing.T) {
	c, clock := newTestMemoryCache(time.Hour, time.Minute)
	ctx := context.Background()
	id := resource.ObjectID("bucket", "file.txt")

	require.NoError(t, c.PutResource(ctx, id))
	entry, _, err := c.GetEntry(ctx, id)
	require.NoError(t, err)
	firstCreation := entry.CreationTimeMs

	clock.AdvanceTime(time.Second)
	require.NoError(t, c.PutResourceInfo(ctx, id, store.ItemInfo{ResourceId: id, Exists: true, Size: 5}))

	entry, ok, err := c.GetEntry(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, firstCreation, entry.CreationTimeMs)
	require.NotNil(t, entry.ItemInfo)
	assert.EqualValues(t, 5, entry.ItemInfo.Size)
}

func TestMemoryCacheEntryExpiresByMaxEntryAge(t *testing.T) {
	c, clock := newTestMemoryCache(time.Second, time.Hour)
	ctx := context.Background()
	id := resource.ObjectID("bucket", "file.txt")

	require.NoError(t, c.PutResource(ctx, id))
	clock.AdvanceTime(2 * time.Second)

	_, ok, err := c.GetEntry(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryCacheEntryStaleByMaxInfoAge(t *testing.T) {
	c, clock := newTestMemoryCache(time.Hour, time.Second)
	ctx := context.Background()
	id := resource.ObjectID("bucket", "file.txt")

	require.NoError(t, c.PutResourceInfo(ctx, id, store.ItemInfo{ResourceId: id, Exists: true}))
	entry, ok, err := c.GetEntry(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.False(t, entry.Stale(clock.Now(), time.Second))

	clock.AdvanceTime(2 * time.Second)
	entry, ok, err = c.GetEntry(ctx, id)
	require.NoError(t, err)
	require.True(t, ok, "entry itself is not hard-expired, only stale")
	assert.True(t, entry.Stale(clock.Now(), time.Second))
}

func TestMemoryCacheRemoveResource(t *testing.T) {
	c, _ := newTestMemoryCache(time.Hour, time.Hour)
	ctx := context.Background()
	id := resource.ObjectID("bucket", "file.txt")

	require.NoError(t, c.PutResource(ctx, id))
	require.NoError(t, c.RemoveResource(ctx, id))

	_, ok, err := c.GetEntry(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryCacheGetObjectList(t *testing.T) {
	c, _ := newTestMemoryCache(time.Hour, time.Hour)
	ctx := context.Background()

	require.NoError(t, c.PutResource(ctx, resource.ObjectID("b1", "a.txt")))
	require.NoError(t, c.PutResource(ctx, resource.ObjectID("b1", "b.txt")))
	require.NoError(t, c.PutResource(ctx, resource.ObjectID("b2", "c.txt")))

	b1Entries, err := c.GetObjectList(ctx, "b1")
	require.NoError(t, err)
	assert.Len(t, b1Entries, 2)

	b2Entries, err := c.GetObjectList(ctx, "b2")
	require.NoError(t, err)
	assert.Len(t, b2Entries, 1)
}

func TestMemoryCacheGetBucketListReturnsOwnBucketEntriesOnly(t *testing.T) {
	c, _ := newTestMemoryCache(time.Hour, time.Hour)
	ctx := context.Background()

	// Object-only entries never surface as bucket entries: a bucket must
	// be put explicitly for it to appear in GetBucketList.
	require.NoError(t, c.PutResource(ctx, resource.ObjectID("b1", "a.txt")))
	require.NoError(t, c.PutResource(ctx, resource.ObjectID("b1", "b.txt")))
	require.NoError(t, c.PutResource(ctx, resource.ObjectID("b2", "c.txt")))

	empty, err := c.GetBucketList(ctx)
	require.NoError(t, err)
	assert.Empty(t, empty)

	require.NoError(t, c.PutBucket(ctx, "b1"))
	require.NoError(t, c.PutBucketInfo(ctx, "b2", store.ItemInfo{ResourceId: resource.BucketID("b2"), Exists: true}))

	all, err := c.GetBucketList(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	for _, e := range all {
		assert.True(t, e.ResourceId.IsBucket())
	}
}

func TestMemoryCacheBucketEntryStaleSeparatelyFromObjects(t *testing.T) {
	c, _ := newTestMemoryCache(time.Hour, time.Hour)
	ctx := context.Background()

	require.NoError(t, c.PutBucketInfo(ctx, "b1", store.ItemInfo{ResourceId: resource.BucketID("b1"), Exists: true}))

	entry, ok, err := c.GetBucketEntry(ctx, "b1")
	require.NoError(t, err)
	require.True(t, ok)
	require.NotNil(t, entry.ItemInfo)

	require.NoError(t, c.RemoveBucket(ctx, "b1"))
	_, ok, err = c.GetBucketEntry(ctx, "b1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryCacheSweepRemovesExpiredAndEmptiesBucket(t *testing.T) {
	c, clock := newTestMemoryCache(time.Second, time.Hour)
	ctx := context.Background()

	require.NoError(t, c.PutResource(ctx, resource.ObjectID("b1", "a.txt")))
	clock.AdvanceTime(2 * time.Second)

	require.NoError(t, c.Sweep(ctx))

	list, err := c.GetObjectList(ctx, "b1")
	require.NoError(t, err)
	assert.Empty(t, list)
}
