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
	"github.com/cloudpathfs/gcsfs/internal/store"
	"github.com/cloudpathfs/gcsfs/internal/tracing"
)

// Mkdirs materializes a directory placeholder at p and at every one of its
// ancestor directories that does not already exist. Any prefix that exists
// as a non-directory object aborts the whole call before anything is
// created.
func (f *Facade) Mkdirs(ctx context.Context, p resource.ID) (err error) {
	ctx, end := tracing.Start(ctx, "Mkdirs")
	defer func() { end(err) }()

	if p.IsRoot() {
		return nil
	}

	prefixes := directoryPrefixes(p)

	// Batch getInfo both the directory and file-path form of every
	// prefix, to detect a file/directory name collision anywhere along
	// the chain.
	fileForms := make([]resource.ID, len(prefixes))
	for i, dir := range prefixes {
		fileForms[i] = dir.ToFilePath()
	}
	probe := append(append([]resource.ID(nil), prefixes...), fileForms...)
	infos, err := f.store.GetInfos(ctx, probe)
	if err != nil {
		return err
	}
	dirInfos, fileInfos := infos[:len(prefixes)], infos[len(prefixes):]

	for i, dir := range prefixes {
		if dirInfos[i].Exists {
			continue
		}
		if fileInfos[i].Exists {
			return invalidArgf("mkdirs %s: a file already exists at %s", p, dir.ToFilePath())
		}
	}

	var toCreate []resource.ID
	for i, dir := range prefixes {
		if dirInfos[i].Exists {
			continue
		}
		if dir.IsBucket() {
			if err := f.store.CreateBucket(ctx, dir.Bucket()); err != nil {
				return err
			}
			continue
		}
		toCreate = append(toCreate, dir)
	}

	if len(toCreate) > 0 {
		if err := f.store.CreateEmptyBatch(ctx, toCreate, nil); err != nil {
			return err
		}
	}

	f.enqueueMtimeUpdate(toCreate, toCreate)
	return nil
}

// directoryPrefixes enumerates every directory-path prefix of p, shortest
// first, ending with p's own directory form -- the full set of placeholders
// mkdirs must ensure exist.
func directoryPrefixes(p resource.ID) []resource.ID {
	var out []resource.ID
	if p.IsBucket() {
		return []resource.ID{p}
	}
	out = append(out, resource.BucketID(p.Bucket()))
	for _, sub := range resource.SubDirs(p.Object()) {
		out = append(out, resource.ObjectID(p.Bucket(), sub))
	}
	out = append(out, p.ToDirectoryPath())
	return out
}

// Create opens a writer for p, ensuring its parent directory chain exists
// first. p must not look like a directory path, and no directory may
// already be materialized at p.
func (f *Facade) Create(ctx context.Context, p resource.ID, opts store.WriteOptions) (_ store.Writer, err error) {
	ctx, end := tracing.Start(ctx, "Create")
	defer func() { end(err) }()

	if p.IsDirectoryPath() {
		return nil, invalidArgf("create %s: path looks like a directory", p)
	}

	dirInfo, err := f.store.GetInfo(ctx, p.ToDirectoryPath())
	if err != nil {
		return nil, err
	}
	if dirInfo.Exists {
		return nil, alreadyExistsf("create %s: a directory already exists at this path", p)
	}

	if err := f.Mkdirs(ctx, resource.GetParent(p)); err != nil {
		return nil, err
	}

	if f.options.CreateMarkerFiles {
		if err := f.store.CreateEmpty(ctx, p, nil); err != nil {
			return nil, err
		}
	}

	w, err := f.store.CreateWriter(ctx, p, opts)
	if err != nil {
		return nil, err
	}

	f.enqueueMtimeUpdate([]resource.ID{p}, nil)
	return w, nil
}
