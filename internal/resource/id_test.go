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

package resource

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Root(t *testing.T) {
	id, err := Parse(Root, true)
	require.NoError(t, err)
	assert.True(t, id.IsRoot())
}

func TestParse_Bucket(t *testing.T) {
	id, err := Parse("gs://my-bucket", true)
	require.NoError(t, err)
	assert.True(t, id.IsBucket())
	assert.Equal(t, "my-bucket", id.Bucket())
}

func TestParse_BucketRequiresObjectWhenDisallowed(t *testing.T) {
	_, err := Parse("gs://my-bucket", false)
	assert.Error(t, err)
}

func TestParse_Object(t *testing.T) {
	id, err := Parse("gs://my-bucket/a/b/c", true)
	require.NoError(t, err)
	assert.True(t, id.IsObject())
	assert.Equal(t, "a/b/c", id.Object())
}

func TestParse_StripsLeadingSlashOnObject(t *testing.T) {
	id, err := Parse("gs://my-bucket//a/b", true)
	// The authority/object separator consumes one slash; the second,
	// leading slash on the object is stripped.
	require.NoError(t, err)
	assert.Equal(t, "a/b", id.Object())
}

func TestParse_RejectsEmptyBucket(t *testing.T) {
	_, err := Parse("gs:///a/b", true)
	assert.Error(t, err)
}

func TestParse_RejectsConsecutiveSlashes(t *testing.T) {
	_, err := Parse("gs://bucket/a//b", true)
	assert.Error(t, err)
}

func TestParse_RejectsBadScheme(t *testing.T) {
	_, err := Parse("s3://bucket/a", true)
	assert.Error(t, err)
}

func TestParse_PreservesEscapesAndPlus(t *testing.T) {
	id, err := Parse("gs://bucket/a%3Ab+c", true)
	require.NoError(t, err)
	assert.Equal(t, "a%3Ab+c", id.Object())
}

func TestRoundTrip(t *testing.T) {
	cases := []string{
		Root,
		"gs://bucket",
		"gs://bucket/a",
		"gs://bucket/a/b/",
	}
	for _, uri := range cases {
		id, err := Parse(uri, true)
		require.NoError(t, err)
		id2, err := Parse(id.String(), true)
		require.NoError(t, err)
		assert.True(t, id.Equal(id2), "round-trip mismatch for %q: got %q", uri, id.String())
	}
}

func TestToDirectoryPath_IdempotentAndIdentityOnBucketRoot(t *testing.T) {
	obj := ObjectID("b", "a/b")
	assert.Equal(t, "a/b/", obj.ToDirectoryPath().Object())
	assert.Equal(t, obj.ToDirectoryPath(), obj.ToDirectoryPath().ToDirectoryPath())
	assert.True(t, RootID().ToDirectoryPath().IsRoot())
	assert.True(t, BucketID("b").ToDirectoryPath().IsBucket())
}

func TestGetParent_NonRoot(t *testing.T) {
	tests := []struct {
		in     ID
		parent ID
	}{
		{ObjectID("b", "a/b/c"), ObjectID("b", "a/b/")},
		{ObjectID("b", "a/b/"), ObjectID("b", "a/")},
		{ObjectID("b", "a"), BucketID("b")},
		{BucketID("b"), RootID()},
	}
	for _, tc := range tests {
		assert.True(t, GetParent(tc.in).Equal(tc.parent), "parent(%v) = %v, want %v", tc.in, GetParent(tc.in), tc.parent)
		assert.True(t, GetParent(tc.in).IsDirectoryPath())
	}
}

func TestGetParent_RootIsItsOwnParent(t *testing.T) {
	assert.True(t, GetParent(RootID()).IsRoot())
}

func TestGetLeafName_ReconstructsPath(t *testing.T) {
	tests := []ID{
		ObjectID("b", "a/b/c"),
		ObjectID("b", "a/b/c/"),
		BucketID("b"),
	}
	for _, id := range tests {
		parent := GetParent(id)
		leaf := GetLeafName(id)
		reconstructed := Join(parent, leaf)
		if id.IsDirectoryPath() {
			reconstructed = reconstructed.ToDirectoryPath()
		}
		assert.True(t, reconstructed.Equal(id), "join(parent(%v), leaf) = %v, want %v", id, reconstructed, id)
	}
}

func TestSubDirs(t *testing.T) {
	assert.Equal(t, []string{"foo/", "foo/bar/"}, SubDirs("foo/bar/zoo"))
	assert.Nil(t, SubDirs("foo"))
	assert.Nil(t, SubDirs(""))
}

func TestSortPathsDescending_LongerFirst(t *testing.T) {
	paths := []string{"gs://b/a", "gs://b/a/b/c", "gs://b/a/b"}
	SortPathsDescending(paths)
	for i := 1; i < len(paths); i++ {
		assert.GreaterOrEqual(t, len(paths[i-1]), len(paths[i]))
	}
}
