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

// Package fsbacked implements the shared-filesystem-mirrored Directory
// List Cache backend: the hierarchy is mirrored as empty marker files on an
// externally-mounted directory, so a cluster of processes can agree on
// which just-written objects must appear in listings without a shared
// in-memory cache. File stat/touch/unlink is irreducibly syscall-level
// here -- there is no higher-level library in the corpus that mediates a
// cross-process marker-file protocol, so this backend is necessarily built
// directly on os/syscall (see DESIGN.md).
package fsbacked

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cloudpathfs/gcsfs/internal/dircache"
	"github.com/cloudpathfs/gcsfs/internal/logger"
	"github.com/cloudpathfs/gcsfs/internal/resource"
	"github.com/cloudpathfs/gcsfs/internal/store"
)

// Cache mirrors the directory list cache onto marker files under BasePath.
// A resource's creation time is the marker file's mtime; a resource's
// ItemInfo, when known, is never persisted to disk -- only existence is
// shared across processes, matching §4.C's description of the backend as
// existence-only reconciliation ("which just-written objects must appear
// in listings").
type Cache struct {
	BasePath string
	Config   dircache.Config
}

// New constructs a filesystem-mirrored cache rooted at basePath, which
// must already exist and be writable by every cooperating process.
func New(basePath string, config dircache.Config) *Cache {
	return &Cache{BasePath: basePath, Config: config}
}

// bucketMarkerName is the sentinel file recording a CachedBucket's own
// existence/ItemInfo, sitting directly under the bucket's mirrored
// directory alongside (not among) its object markers.
const bucketMarkerName = ".bucket"

func validateObjectId(id resource.ID) error {
	if id.IsRoot() || id.IsBucket() {
		return &dircache.ErrInvalidResource{Id: id}
	}
	return nil
}

func (c *Cache) markerPath(id resource.ID) string {
	return filepath.Join(c.BasePath, id.Bucket(), id.Object())
}

func (c *Cache) bucketMarkerPath(bucket string) string {
	return filepath.Join(c.BasePath, bucket, bucketMarkerName)
}

func (c *Cache) PutResource(ctx context.Context, id resource.ID) error {
	if err := validateObjectId(id); err != nil {
		return err
	}
	path := c.markerPath(id)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("fsbacked: mkdir for %s: %w", id, err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("fsbacked: touch for %s: %w", id, err)
	}
	return f.Close()
}

func (c *Cache) PutResourceInfo(ctx context.Context, id resource.ID, info store.ItemInfo) error {
	// This backend only mirrors existence; ItemInfo itself always comes
	// from a follow-up GetInfo against the store, per §4.C.
	return c.PutResource(ctx, id)
}

func (c *Cache) GetEntry(ctx context.Context, id resource.ID) (dircache.CacheEntry, bool, error) {
	if err := validateObjectId(id); err != nil {
		return dircache.CacheEntry{}, false, err
	}
	fi, err := os.Stat(c.markerPath(id))
	if os.IsNotExist(err) {
		return dircache.CacheEntry{}, false, nil
	}
	if err != nil {
		return dircache.CacheEntry{}, false, fmt.Errorf("fsbacked: stat for %s: %w", id, err)
	}
	entry := dircache.CacheEntry{ResourceId: id, CreationTimeMs: fi.ModTime().UnixMilli()}
	if entry.Expired(time.Now(), c.Config.MaxEntryAge) {
		_ = c.RemoveResource(ctx, id)
		return dircache.CacheEntry{}, false, nil
	}
	return entry, true, nil
}

func (c *Cache) RemoveResource(ctx context.Context, id resource.ID) error {
	if err := validateObjectId(id); err != nil {
		return err
	}
	err := os.Remove(c.markerPath(id))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("fsbacked: unlink for %s: %w", id, err)
	}
	return nil
}

// PutBucket records that bucket exists by touching its marker file,
// without yet knowing its own ItemInfo.
func (c *Cache) PutBucket(ctx context.Context, bucket string) error {
	path := c.bucketMarkerPath(bucket)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("fsbacked: mkdir for bucket %s: %w", bucket, err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("fsbacked: touch bucket marker for %s: %w", bucket, err)
	}
	return f.Close()
}

// PutBucketInfo mirrors only existence, like PutResourceInfo: a bucket's
// ItemInfo always comes from a follow-up GetInfo against the store.
func (c *Cache) PutBucketInfo(ctx context.Context, bucket string, info store.ItemInfo) error {
	return c.PutBucket(ctx, bucket)
}

// GetBucketEntry returns bucket's own cached entry, or ok=false if absent
// or hard-expired.
func (c *Cache) GetBucketEntry(ctx context.Context, bucket string) (dircache.CacheEntry, bool, error) {
	fi, err := os.Stat(c.bucketMarkerPath(bucket))
	if os.IsNotExist(err) {
		return dircache.CacheEntry{}, false, nil
	}
	if err != nil {
		return dircache.CacheEntry{}, false, fmt.Errorf("fsbacked: stat bucket marker for %s: %w", bucket, err)
	}
	entry := dircache.CacheEntry{ResourceId: resource.BucketID(bucket), CreationTimeMs: fi.ModTime().UnixMilli()}
	if entry.Expired(time.Now(), c.Config.MaxEntryAge) {
		_ = c.RemoveBucket(ctx, bucket)
		return dircache.CacheEntry{}, false, nil
	}
	return entry, true, nil
}

// RemoveBucket evicts bucket's own cached entry, leaving any object
// markers under it untouched.
func (c *Cache) RemoveBucket(ctx context.Context, bucket string) error {
	err := os.Remove(c.bucketMarkerPath(bucket))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("fsbacked: unlink bucket marker for %s: %w", bucket, err)
	}
	return nil
}

// GetBucketList returns one entry per cached bucket -- the bucket's own
// marker, never its object markers.
func (c *Cache) GetBucketList(ctx context.Context) ([]dircache.CacheEntry, error) {
	bucketDirs, err := os.ReadDir(c.BasePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("fsbacked: readdir base: %w", err)
	}
	var out []dircache.CacheEntry
	for _, bd := range bucketDirs {
		if !bd.IsDir() {
			continue
		}
		entry, ok, err := c.GetBucketEntry(ctx, bd.Name())
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, entry)
		}
	}
	return out, nil
}

func (c *Cache) GetObjectList(ctx context.Context, bucket string) ([]dircache.CacheEntry, error) {
	root := filepath.Join(c.BasePath, bucket)
	var out []dircache.CacheEntry
	now := time.Now()
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return filepath.SkipAll
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		if d.Name() == bucketMarkerName {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return relErr
		}
		info, statErr := d.Info()
		if statErr != nil {
			return statErr
		}
		id := resource.ObjectID(bucket, filepath.ToSlash(rel))
		entry := dircache.CacheEntry{ResourceId: id, CreationTimeMs: info.ModTime().UnixMilli()}
		if !entry.Expired(now, c.Config.MaxEntryAge) {
			out = append(out, entry)
		}
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("fsbacked: walk %s: %w", root, err)
	}
	return out, nil
}

// Sweep walks the mirrored hierarchy once, unlinking every hard-expired
// marker in place without materializing the full listing first. An expired
// bucket marker takes the bucket's whole mirrored directory with it.
func (c *Cache) Sweep(ctx context.Context) error {
	now := time.Now()
	return filepath.WalkDir(c.BasePath, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return filepath.SkipAll
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, statErr := d.Info()
		if statErr != nil {
			return statErr
		}
		age := now.Sub(info.ModTime())
		if age > c.Config.MaxEntryAge {
			if d.Name() == bucketMarkerName && filepath.Dir(filepath.Dir(path)) == filepath.Clean(c.BasePath) {
				if rmErr := os.RemoveAll(filepath.Dir(path)); rmErr != nil {
					logger.Warnf("fsbacked sweep: failed to remove %s: %v", filepath.Dir(path), rmErr)
				}
				return filepath.SkipDir
			}
			if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
				logger.Warnf("fsbacked sweep: failed to remove %s: %v", path, rmErr)
			}
		}
		return nil
	})
}

var _ dircache.Cache = (*Cache)(nil)
