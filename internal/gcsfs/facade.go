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

// Package gcsfs implements the File-System Facade: the public surface
// (create, open, delete, mkdirs, rename, listStatus, getStatus, compose,
// globStatus) that bridges POSIX path semantics onto the flat object store
// reached through a store.Client, composing the resource, store, dircache,
// mtimeupdater, cfg, metrics, and gcserrors packages.
package gcsfs

import (
	"context"
	"fmt"
	"time"

	"github.com/jacobsa/timeutil"

	"github.com/cloudpathfs/gcsfs/internal/cfg"
	"github.com/cloudpathfs/gcsfs/internal/dircache"
	"github.com/cloudpathfs/gcsfs/internal/dircache/fsbacked"
	"github.com/cloudpathfs/gcsfs/internal/gcserrors"
	"github.com/cloudpathfs/gcsfs/internal/locker"
	"github.com/cloudpathfs/gcsfs/internal/metrics"
	"github.com/cloudpathfs/gcsfs/internal/mtimeupdater"
	"github.com/cloudpathfs/gcsfs/internal/resource"
	"github.com/cloudpathfs/gcsfs/internal/store"
	"github.com/cloudpathfs/gcsfs/internal/store/cached"
)

// FileInfo is the path-level view of a resource returned by the facade's
// read operations, layered over store.ItemInfo.
type FileInfo struct {
	Path              resource.ID
	IsDirectory       bool
	Exists            bool
	ModificationTime  time.Time
	Size              int64
	isInferredDir     bool
}

func (fi FileInfo) String() string {
	return fmt.Sprintf("FileInfo{%s dir=%v exists=%v}", fi.Path, fi.IsDirectory, fi.Exists)
}

// IsInferredDirectory reports whether fi represents a directory synthesized
// from object-name prefixes rather than a materialized placeholder; see
// store.ItemInfo.IsInferredDirectory.
func (fi FileInfo) IsInferredDirectory() bool {
	return fi.isInferredDir
}

func fileInfoFromItemInfo(info store.ItemInfo) FileInfo {
	return FileInfo{
		Path:             info.ResourceId,
		IsDirectory:      info.ResourceId.IsDirectoryPath(),
		Exists:           info.Exists,
		ModificationTime: info.Mtime(),
		Size:             info.Size,
		isInferredDir:    info.IsInferredDirectory(),
	}
}

func notFoundFileInfo(id resource.ID) FileInfo {
	return FileInfo{Path: id, IsDirectory: id.IsDirectoryPath(), Exists: false}
}

// Facade is the File-System Facade. It is safe for concurrent use by
// multiple callers; each call is a cooperative sequence of blocking RPCs
// against the underlying store.
type Facade struct {
	store        store.Client
	cachedClient *cached.Client
	cache        dircache.Cache
	options      cfg.Options
	updater      *mtimeupdater.Updater
	metrics      *metrics.Handle
	clock        timeutil.Clock
}

// New constructs a Facade. client is the raw Object Store Client; it is
// wrapped with the Directory List Cache described by options unless
// options.MetadataCache.Enabled is false. clock is used for the mtime
// updater and may be nil to default to the real wall clock.
func New(ctx context.Context, client store.Client, options cfg.Options, clock timeutil.Clock) (*Facade, error) {
	if clock == nil {
		clock = timeutil.RealClock()
	}
	if err := options.Validate(); err != nil {
		return nil, err
	}

	// The locker package's debug switches are process-wide, not per-Facade,
	// so the last-constructed Facade's Options win if more than one is
	// built with conflicting settings in the same process.
	locker.EnableInvariantsCheck = options.Debug.EnableInvariantsCheck
	locker.EnableDebugMessages = options.Debug.EnableDebugMessages

	cacheConfig := dircache.Config{
		MaxEntryAge: options.MetadataCache.MaxEntryAge,
		MaxInfoAge:  options.MetadataCache.MaxInfoAge,
	}
	if cacheConfig.MaxEntryAge == 0 {
		cacheConfig.MaxEntryAge = dircache.DefaultMaxEntryAge
	}
	if cacheConfig.MaxInfoAge == 0 {
		cacheConfig.MaxInfoAge = dircache.DefaultMaxInfoAge
	}

	effectiveClient := client
	var cache dircache.Cache
	var cachedClient *cached.Client
	if options.MetadataCache.Enabled {
		switch options.MetadataCache.Type {
		case cfg.FilesystemBacked:
			cache = fsbacked.New(options.MetadataCache.BasePath, cacheConfig)
		default:
			cache = dircache.NewMemoryCache(cacheConfig, clock)
		}
		cachedClient = cached.New(client, cache, cacheConfig)
		effectiveClient = cachedClient
	}

	// Metrics registration is left to the caller: Options.Metrics.Enabled
	// only gates whether the facade reports through a handle it is
	// handed via WithMetrics, since constructing a prometheus.Registerer
	// is an external collaborator's decision (see DESIGN.md).

	filter := mtimeupdater.Filter{
		Includes: options.TimestampUpdates.Includes,
		Excludes: options.TimestampUpdates.Excludes,
	}
	var updater *mtimeupdater.Updater
	if options.TimestampUpdates.Enabled {
		updater = mtimeupdater.New(ctx, effectiveClient, clock, filter)
	}

	return &Facade{
		store:        effectiveClient,
		cachedClient: cachedClient,
		cache:        cache,
		options:      options,
		updater:      updater,
		clock:        clock,
	}, nil
}

// WithMetrics attaches a metrics.Handle the facade, its directory cache
// layer, and its timestamp updater report outcomes through. Pass nil to
// disable reporting.
func (f *Facade) WithMetrics(h *metrics.Handle) *Facade {
	f.metrics = h
	if f.cachedClient != nil {
		f.cachedClient.WithMetrics(h)
	}
	if f.updater != nil {
		f.updater.WithMetrics(h)
	}
	return f
}

func (f *Facade) now() time.Time { return f.clock.Now() }

func (f *Facade) enqueueMtimeUpdate(modified, excluded []resource.ID) {
	if f.updater == nil {
		return
	}
	f.updater.Enqueue(modified, excluded)
}

// getFileInfo resolves both the file-path and directory-path forms of id in
// one batch and prefers a materialized directory entry over both the
// inferred-directory path and a stale cache hit, per §9's tie-break rule.
func (f *Facade) getFileInfo(ctx context.Context, id resource.ID) (FileInfo, error) {
	if id.IsRoot() {
		return FileInfo{Path: id, IsDirectory: true, Exists: true}, nil
	}

	filePath := id.ToFilePath()
	dirPath := id.ToDirectoryPath()
	if filePath.Equal(dirPath) {
		info, err := f.store.GetInfo(ctx, id)
		if err != nil {
			return FileInfo{}, err
		}
		return fileInfoFromItemInfo(info), nil
	}

	infos, err := f.store.GetInfos(ctx, []resource.ID{filePath, dirPath})
	if err != nil {
		return FileInfo{}, err
	}
	fileInfo, dirInfo := infos[0], infos[1]
	if dirInfo.Exists {
		return fileInfoFromItemInfo(dirInfo), nil
	}
	if fileInfo.Exists {
		return fileInfoFromItemInfo(fileInfo), nil
	}
	return notFoundFileInfo(dirPath), nil
}

// Exists reports whether id resolves to an existing file or directory.
func (f *Facade) Exists(ctx context.Context, id resource.ID) (bool, error) {
	info, err := f.getFileInfo(ctx, id)
	if err != nil {
		return false, err
	}
	return info.Exists, nil
}

// Close releases the underlying store client and drains the timestamp
// updater's worker pool.
func (f *Facade) Close() error {
	if f.updater != nil {
		f.updater.Close()
	}
	return f.store.Close()
}

func invalidArgf(format string, args ...interface{}) error {
	return &gcserrors.InvalidArgumentError{Err: fmt.Errorf(format, args...)}
}

func notFoundf(format string, args ...interface{}) error {
	return &gcserrors.NotFoundError{Err: fmt.Errorf(format, args...)}
}

func alreadyExistsf(format string, args ...interface{}) error {
	return &gcserrors.AlreadyExistsError{Err: fmt.Errorf(format, args...)}
}

func directoryNotEmptyf(format string, args ...interface{}) error {
	return &gcserrors.DirectoryNotEmptyError{Err: fmt.Errorf(format, args...)}
}
