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

package store

import (
	"context"

	"github.com/cloudpathfs/gcsfs/internal/resource"
)

// Client is the Object Store Client contract: typed operations over the
// flat {bucket, object} namespace. Implementations encapsulate retries and
// write preconditions; callers never see a raw transport error that isn't
// already classified by gcserrors.
type Client interface {
	// GetInfo returns NotFoundInfo(id) for absent entities; it never fails
	// solely because the entity is absent.
	GetInfo(ctx context.Context, id resource.ID) (ItemInfo, error)
	// GetInfos is positional: result[i] corresponds to ids[i].
	GetInfos(ctx context.Context, ids []resource.ID) ([]ItemInfo, error)

	ListBucketNames(ctx context.Context) ([]string, error)
	ListBucketInfos(ctx context.Context) ([]ItemInfo, error)
	// CreateBucket idempotently creates a bucket: it succeeds silently if
	// the bucket already exists, mirroring CreateEmpty's idempotence.
	CreateBucket(ctx context.Context, name string) error

	// ListObjectNames lists names under bucket/prefix. A non-empty
	// delimiter restricts results to depth-1 relative to prefix; an empty
	// delimiter lists fully recursively.
	ListObjectNames(ctx context.Context, bucket, prefix, delimiter string) ([]string, error)
	ListObjectInfos(ctx context.Context, bucket, prefix, delimiter string) ([]ItemInfo, error)

	CreateWriter(ctx context.Context, id resource.ID, opts WriteOptions) (Writer, error)
	OpenReader(ctx context.Context, id resource.ID) (Reader, error)

	// CreateEmpty idempotently creates a zero-byte object. If the write
	// is rejected by a rate limit, implementations must refetch and
	// succeed silently when the existing object already matches the
	// intended metadata and zero size.
	CreateEmpty(ctx context.Context, id resource.ID, attrs map[string][]byte) error
	CreateEmptyBatch(ctx context.Context, ids []resource.ID, attrs map[string][]byte) error

	// Copy is positional; on partial failure it returns a *BatchError
	// naming the failed indices. Retrying a partial failure is the
	// caller's job.
	Copy(ctx context.Context, reqs []CopyRequest) error

	Delete(ctx context.Context, ids []resource.ID) error
	DeleteBuckets(ctx context.Context, names []string) error
	WaitForBucketEmpty(ctx context.Context, name string) error

	UpdateItems(ctx context.Context, reqs []UpdateRequest) error

	Compose(ctx context.Context, bucket string, sources []string, dest, contentType string) error

	// Close releases any held connections. Safe to call more than once.
	Close() error
}
