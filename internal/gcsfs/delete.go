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

	"github.com/cloudpathfs/gcsfs/internal/resource"
	"github.com/cloudpathfs/gcsfs/internal/tracing"
)

// Delete removes p. If p is a directory and recursive is false, it fails
// with DirectoryNotEmpty when any child exists. Objects are deleted in
// descending-length order (children before ancestors) so a partial failure
// never orphans a placeholder above an undeleted child.
func (f *Facade) Delete(ctx context.Context, p resource.ID, recursive bool) (err error) {
	ctx, end := tracing.Start(ctx, "Delete")
	defer func() { end(err) }()

	info, err := f.getFileInfo(ctx, p)
	if err != nil {
		return err
	}
	if !info.Exists {
		return notFoundf("delete %s: not found", p)
	}

	if !info.IsDirectory {
		if err := f.store.Delete(ctx, []resource.ID{p}); err != nil {
			return err
		}
		f.enqueueMtimeUpdate([]resource.ID{p}, []resource.ID{p})
		return nil
	}

	dirID := p.ToDirectoryPath()
	children, err := f.listChildren(ctx, dirID, recursive)
	if err != nil {
		return err
	}
	if !recursive && len(children) > 0 {
		return directoryNotEmptyf("delete %s: directory is not empty", p)
	}

	paths := make([]string, 0, len(children)+1)
	byPath := map[string]resource.ID{}
	for _, c := range children {
		paths = append(paths, c.String())
		byPath[c.String()] = c
	}
	// The directory's own placeholder (if it was ever materialized)
	// deletes last among objects, so include it in the same descending
	// sort -- it is always the shortest path among the set.
	if dirExists, err := f.store.GetInfo(ctx, dirID); err == nil && dirExists.Exists {
		paths = append(paths, dirID.String())
		byPath[dirID.String()] = dirID
	}
	resource.SortPathsDescending(paths)

	ids := make([]resource.ID, len(paths))
	for i, path := range paths {
		ids[i] = byPath[path]
	}

	if len(ids) > 0 {
		if err := f.store.Delete(ctx, ids); err != nil {
			return err
		}
	}

	if dirID.IsBucket() {
		if err := f.store.WaitForBucketEmpty(ctx, dirID.Bucket()); err != nil {
			return err
		}
		if err := f.store.DeleteBuckets(ctx, []string{dirID.Bucket()}); err != nil {
			return err
		}
	}

	excluded := append(ids, dirID)
	f.enqueueMtimeUpdate(excluded, excluded)
	return nil
}

// listChildren lists the entries directly (recursive=false) or fully
// (recursive=true) beneath dir.
func (f *Facade) listChildren(ctx context.Context, dir resource.ID, recursive bool) ([]resource.ID, error) {
	delimiter := "/"
	if recursive {
		delimiter = ""
	}
	infos, err := f.store.ListObjectInfos(ctx, dir.Bucket(), dir.Object(), delimiter)
	if err != nil {
		return nil, err
	}
	out := make([]resource.ID, 0, len(infos))
	for _, info := range infos {
		// The listing includes dir's own placeholder when it exists.
		if info.ResourceId.Equal(dir) {
			continue
		}
		out = append(out, info.ResourceId)
	}
	return out, nil
}
