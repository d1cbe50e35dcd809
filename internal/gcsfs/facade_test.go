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

package gcsfs

import (
	"context"
	"testing"

	"github.com/jacobsa/timeutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudpathfs/gcsfs/internal/cfg"
	"github.com/cloudpathfs/gcsfs/internal/locker"
	"github.com/cloudpathfs/gcsfs/internal/resource"
	"github.com/cloudpathfs/gcsfs/internal/store"
	"github.com/cloudpathfs/gcsfs/internal/store/fake"
)

const testBucket = "gcsfs-facade-test"

// newTestFacade builds a Facade over a fresh fake store with metadata
// caching and the timestamp updater both disabled, so every test observes
// the store's state directly rather than through cached or asynchronous
// effects; tests that need those layers construct their own Facade.
func newTestFacade(t *testing.T) *Facade {
	t.Helper()
	client := fake.New()
	require.NoError(t, client.CreateBucket(context.Background(), testBucket))

	opts := cfg.Default()
	opts.MetadataCache.Enabled = false
	opts.TimestampUpdates.Enabled = false

	f, err := New(context.Background(), client, opts, timeutil.RealClock())
	require.NoError(t, err)
	return f
}

func mustCreate(t *testing.T, f *Facade, id resource.ID, content string) {
	t.Helper()
	w, err := f.Create(context.Background(), id, store.WriteOptions{})
	require.NoError(t, err)
	if content != "" {
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
}

func TestFacadeCreateAndGetStatus(t *testing.T) {
	f := newTestFacade(t)
	id := resource.ObjectID(testBucket, "dir/file.txt")

	mustCreate(t, f, id, "hello")

	info, err := f.GetStatus(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, info.Exists)
	assert.False(t, info.IsDirectory)
	assert.EqualValues(t, 5, info.Size)
}

func TestFacadeCreateRejectsWhenDirectoryExists(t *testing.T) {
	f := newTestFacade(t)
	dir := resource.ObjectID(testBucket, "dir")

	require.NoError(t, f.Mkdirs(context.Background(), dir))

	_, err := f.Create(context.Background(), dir.ToFilePath(), store.WriteOptions{})
	require.Error(t, err)
}

func TestFacadeMkdirsCreatesAncestorChain(t *testing.T) {
	f := newTestFacade(t)
	leaf := resource.ObjectID(testBucket, "a/b/c/")

	require.NoError(t, f.Mkdirs(context.Background(), leaf))

	for _, obj := range []string{"a/", "a/b/", "a/b/c/"} {
		info, err := f.GetStatus(context.Background(), resource.ObjectID(testBucket, obj))
		require.NoError(t, err)
		assert.Truef(t, info.Exists, "expected %s to exist", obj)
		assert.True(t, info.IsDirectory)
	}
}

func TestFacadeMkdirsFailsOnFileCollision(t *testing.T) {
	f := newTestFacade(t)
	mustCreate(t, f, resource.ObjectID(testBucket, "a/b"), "x")

	err := f.Mkdirs(context.Background(), resource.ObjectID(testBucket, "a/b/c/"))
	require.Error(t, err)
}

func TestFacadeListStatusOnImplicitDirectory(t *testing.T) {
	f := newTestFacade(t)
	mustCreate(t, f, resource.ObjectID(testBucket, "dir/a.txt"), "x")
	mustCreate(t, f, resource.ObjectID(testBucket, "dir/b.txt"), "y")

	out, err := f.ListStatus(context.Background(), resource.ObjectID(testBucket, "dir/"))
	require.NoError(t, err)
	assert.Len(t, out, 2)
}

func TestFacadeListStatusOnSingleFile(t *testing.T) {
	f := newTestFacade(t)
	mustCreate(t, f, resource.ObjectID(testBucket, "file.txt"), "x")

	out, err := f.ListStatus(context.Background(), resource.ObjectID(testBucket, "file.txt"))
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.False(t, out[0].IsDirectory)
}

func TestFacadeDeleteNonEmptyDirectoryRequiresRecursive(t *testing.T) {
	f := newTestFacade(t)
	mustCreate(t, f, resource.ObjectID(testBucket, "dir/a.txt"), "x")

	err := f.Delete(context.Background(), resource.ObjectID(testBucket, "dir/"), false)
	require.Error(t, err)

	require.NoError(t, f.Delete(context.Background(), resource.ObjectID(testBucket, "dir/"), true))

	info, err := f.GetStatus(context.Background(), resource.ObjectID(testBucket, "dir/a.txt"))
	require.NoError(t, err)
	assert.False(t, info.Exists)
}

func TestFacadeDeleteMissingFails(t *testing.T) {
	f := newTestFacade(t)
	err := f.Delete(context.Background(), resource.ObjectID(testBucket, "missing.txt"), false)
	require.Error(t, err)
}

func TestFacadeRenameFile(t *testing.T) {
	f := newTestFacade(t)
	mustCreate(t, f, resource.ObjectID(testBucket, "src.txt"), "content")

	src := resource.ObjectID(testBucket, "src.txt")
	dst := resource.ObjectID(testBucket, "dst.txt")
	require.NoError(t, f.Rename(context.Background(), src, dst))

	srcInfo, err := f.GetStatus(context.Background(), src)
	require.NoError(t, err)
	assert.False(t, srcInfo.Exists)

	dstInfo, err := f.GetStatus(context.Background(), dst)
	require.NoError(t, err)
	assert.True(t, dstInfo.Exists)
}

func TestFacadeRenameDirectory(t *testing.T) {
	f := newTestFacade(t)
	mustCreate(t, f, resource.ObjectID(testBucket, "olddir/a.txt"), "a")
	mustCreate(t, f, resource.ObjectID(testBucket, "olddir/sub/b.txt"), "b")

	err := f.Rename(context.Background(), resource.ObjectID(testBucket, "olddir/"), resource.ObjectID(testBucket, "newdir/"))
	require.NoError(t, err)

	for _, obj := range []string{"newdir/a.txt", "newdir/sub/b.txt"} {
		info, err := f.GetStatus(context.Background(), resource.ObjectID(testBucket, obj))
		require.NoError(t, err)
		assert.Truef(t, info.Exists, "expected %s to exist after rename", obj)
	}
	for _, obj := range []string{"olddir/a.txt", "olddir/sub/b.txt"} {
		info, err := f.GetStatus(context.Background(), resource.ObjectID(testBucket, obj))
		require.NoError(t, err)
		assert.Falsef(t, info.Exists, "expected %s to be gone after rename", obj)
	}
}

func TestFacadeRenameRejectsExistingFileDestination(t *testing.T) {
	f := newTestFacade(t)
	mustCreate(t, f, resource.ObjectID(testBucket, "a.txt"), "a")
	mustCreate(t, f, resource.ObjectID(testBucket, "b.txt"), "b")

	err := f.Rename(context.Background(), resource.ObjectID(testBucket, "a.txt"), resource.ObjectID(testBucket, "b.txt"))
	require.Error(t, err)
}

func TestFacadeCompose(t *testing.T) {
	f := newTestFacade(t)
	mustCreate(t, f, resource.ObjectID(testBucket, "part1"), "hello ")
	mustCreate(t, f, resource.ObjectID(testBucket, "part2"), "world")

	dest := resource.ObjectID(testBucket, "combined")
	err := f.Compose(context.Background(),
		[]resource.ID{resource.ObjectID(testBucket, "part1"), resource.ObjectID(testBucket, "part2")},
		dest, "text/plain")
	require.NoError(t, err)

	info, err := f.GetStatus(context.Background(), dest)
	require.NoError(t, err)
	assert.EqualValues(t, 11, info.Size)
}

func TestFacadeComposeRejectsCrossBucketSource(t *testing.T) {
	f := newTestFacade(t)
	err := f.Compose(context.Background(),
		[]resource.ID{resource.ObjectID("other-bucket", "part1")},
		resource.ObjectID(testBucket, "combined"), "text/plain")
	require.Error(t, err)
}

func TestFacadeGlobStatusMatchesSingleSegment(t *testing.T) {
	f := newTestFacade(t)
	mustCreate(t, f, resource.ObjectID(testBucket, "logs/2024-01.log"), "a")
	mustCreate(t, f, resource.ObjectID(testBucket, "logs/2024-02.log"), "b")
	mustCreate(t, f, resource.ObjectID(testBucket, "logs/readme.txt"), "c")

	out, err := f.GlobStatus(context.Background(), "gs://"+testBucket+"/logs/*.log")
	require.NoError(t, err)
	assert.Len(t, out, 2)
}

func TestFacadeRepairPossibleImplicitDirectory(t *testing.T) {
	f := newTestFacade(t)
	mustCreate(t, f, resource.ObjectID(testBucket, "implicit/child.txt"), "a")

	ok, err := f.RepairPossibleImplicitDirectory(context.Background(), resource.ObjectID(testBucket, "implicit"))
	require.NoError(t, err)
	assert.True(t, ok)

	info, err := f.GetStatus(context.Background(), resource.ObjectID(testBucket, "implicit/"))
	require.NoError(t, err)
	assert.True(t, info.Exists)
	assert.False(t, info.IsInferredDirectory())
}

func TestFacadeExists(t *testing.T) {
	f := newTestFacade(t)
	mustCreate(t, f, resource.ObjectID(testBucket, "present.txt"), "a")

	ok, err := f.Exists(context.Background(), resource.ObjectID(testBucket, "present.txt"))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.Exists(context.Background(), resource.ObjectID(testBucket, "absent.txt"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFacadeCloseIsIdempotentWithoutUpdater(t *testing.T) {
	f := newTestFacade(t)
	require.NoError(t, f.Close())
	require.NoError(t, f.Close())
}

func TestFacadeDebugOptionsEnableLockerInvariantsCheck(t *testing.T) {
	defer func() {
		locker.EnableInvariantsCheck = false
		locker.EnableDebugMessages = false
	}()

	client := fake.New()
	require.NoError(t, client.CreateBucket(context.Background(), testBucket))
	opts := cfg.Default()
	opts.Debug.EnableInvariantsCheck = true
	opts.Debug.EnableDebugMessages = true

	_, err := New(context.Background(), client, opts, timeutil.RealClock())
	require.NoError(t, err)

	assert.True(t, locker.EnableInvariantsCheck)
	assert.True(t, locker.EnableDebugMessages)
}
