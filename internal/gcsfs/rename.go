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
	"strings"

	"github.com/cloudpathfs/gcsfs/internal/resource"
	"github.com/cloudpathfs/gcsfs/internal/store"
	"github.com/cloudpathfs/gcsfs/internal/tracing"
)

// Rename moves src to dst. Directory renames are a non-atomic
// copy-then-delete sequence ordered so that every destination placeholder
// exists before any of its children are copied, and every source is
// removed only after its copy lands.
func (f *Facade) Rename(ctx context.Context, src, dst resource.ID) (err error) {
	ctx, end := tracing.Start(ctx, "Rename")
	defer func() { end(err) }()

	if src.IsRoot() {
		return invalidArgf("rename: cannot rename root")
	}

	srcInfo, err := f.getFileInfo(ctx, src)
	if err != nil {
		return err
	}
	if !srcInfo.Exists {
		return notFoundf("rename %s: source does not exist", src)
	}
	if !srcInfo.IsDirectory && dst.IsRoot() {
		return invalidArgf("rename %s: cannot rename a file onto root", src)
	}

	dstFileInfo, err := f.getFileInfo(ctx, dst.ToFilePath())
	if err != nil {
		return err
	}
	dstDirInfo, err := f.getFileInfo(ctx, dst.ToDirectoryPath())
	if err != nil {
		return err
	}
	if dstFileInfo.Exists && !dstFileInfo.IsDirectory {
		return alreadyExistsf("rename %s -> %s: destination is an existing file", src, dst)
	}

	parent := resource.GetParent(dst)
	if !parent.IsRoot() {
		parentInfo, err := f.getFileInfo(ctx, parent)
		if err != nil {
			return err
		}
		if !parentInfo.Exists {
			return notFoundf("rename %s -> %s: destination parent does not exist", src, dst)
		}
	}

	// Normalize dst. If src is a directory and dst names an existing
	// directory (as a bare file path or already a directory path),
	// reinterpret dst as that directory; otherwise append src's leaf
	// name to an existing destination directory.
	effectiveDst := dst
	if srcInfo.IsDirectory {
		if dstDirInfo.Exists {
			effectiveDst = dst.ToDirectoryPath()
		}
	} else if dstDirInfo.Exists {
		effectiveDst = resource.Join(dst, resource.GetLeafName(src))
	}

	if !srcInfo.IsDirectory {
		return f.renameFile(ctx, src, effectiveDst)
	}
	return f.renameDirectory(ctx, src.ToDirectoryPath(), effectiveDst.ToDirectoryPath())
}

func (f *Facade) renameFile(ctx context.Context, src, dst resource.ID) error {
	if err := f.store.Copy(ctx, []store.CopyRequest{{
		SrcBucket: src.Bucket(), SrcName: src.Object(),
		DstBucket: dst.Bucket(), DstName: dst.Object(),
	}}); err != nil {
		return err
	}
	if err := f.store.Delete(ctx, []resource.ID{src}); err != nil {
		return err
	}
	f.enqueueMtimeUpdate([]resource.ID{dst}, nil)
	return nil
}

func (f *Facade) renameDirectory(ctx context.Context, src, dst resource.ID) error {
	descendants, err := f.listChildren(ctx, src, true)
	if err != nil {
		return err
	}

	// Ascending length sort: directory placeholders precede their
	// children, so the destination parent always exists before a copy
	// targets a path beneath it.
	srcPaths := make([]string, len(descendants))
	byPath := map[string]resource.ID{}
	for i, d := range descendants {
		srcPaths[i] = d.String()
		byPath[d.String()] = d
	}
	resource.SortPathsAscending(srcPaths)

	if dst.IsBucket() {
		if err := f.store.CreateBucket(ctx, dst.Bucket()); err != nil {
			return err
		}
	} else if err := f.store.CreateEmpty(ctx, dst, nil); err != nil {
		return err
	}

	copies := make([]store.CopyRequest, 0, len(srcPaths))
	destIDs := make([]resource.ID, 0, len(srcPaths))
	for _, path := range srcPaths {
		id := byPath[path]
		destID := substitutePrefix(id, src, dst)
		destIDs = append(destIDs, destID)
		copies = append(copies, store.CopyRequest{
			SrcBucket: id.Bucket(), SrcName: id.Object(),
			DstBucket: destID.Bucket(), DstName: destID.Object(),
		})
	}
	if len(copies) > 0 {
		if err := f.store.Copy(ctx, copies); err != nil {
			return err
		}
	}

	deletePaths := append([]string(nil), srcPaths...)
	deletePaths = append(deletePaths, src.String())
	resource.SortPathsDescending(deletePaths)
	deleteByPath := map[string]resource.ID{src.String(): src}
	for k, v := range byPath {
		deleteByPath[k] = v
	}
	deleteIDs := make([]resource.ID, len(deletePaths))
	for i, path := range deletePaths {
		deleteIDs[i] = deleteByPath[path]
	}
	if len(deleteIDs) > 0 {
		if err := f.store.Delete(ctx, deleteIDs); err != nil {
			return err
		}
	}

	if src.IsBucket() {
		if err := f.store.WaitForBucketEmpty(ctx, src.Bucket()); err != nil {
			return err
		}
		if err := f.store.DeleteBuckets(ctx, []string{src.Bucket()}); err != nil {
			return err
		}
	}

	excluded := append(append([]resource.ID(nil), destIDs...), dst)
	f.enqueueMtimeUpdate(excluded, excluded)
	return nil
}

// substitutePrefix rewrites id's position under the src subtree to the
// equivalent position under dst.
func substitutePrefix(id, src, dst resource.ID) resource.ID {
	rest := strings.TrimPrefix(id.Object(), src.Object())
	return resource.ObjectID(dst.Bucket(), dst.Object()+rest)
}
