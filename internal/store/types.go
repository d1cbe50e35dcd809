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

// Package store defines the Object Store Client contract: typed operations
// over the flat {bucket, object} namespace, with retries and preconditions
// encapsulated behind the interface so callers never see a raw HTTP/gRPC
// response.
package store

import (
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/cloudpathfs/gcsfs/internal/resource"
)

// MtimeAttribute is the metadata key under which a directory's best-effort
// modification time is stored, big-endian millis-since-epoch.
const MtimeAttribute = "gcs_mtime_millis"

// EncodeMtime renders t as the big-endian 8-byte value stored under
// MtimeAttribute.
func EncodeMtime(t time.Time) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(t.UnixMilli()))
	return buf
}

// DecodeMtime parses a value previously produced by EncodeMtime. ok is
// false if b is not exactly 8 bytes.
func DecodeMtime(b []byte) (t time.Time, ok bool) {
	if len(b) != 8 {
		return time.Time{}, false
	}
	millis := int64(binary.BigEndian.Uint64(b))
	return time.UnixMilli(millis), true
}

// ItemInfo is a snapshot of a store entity as of the moment it was fetched.
// Two synthetic forms are produced by higher layers rather than by the
// store client itself: NotFoundInfo and InferredDirectoryInfo.
type ItemInfo struct {
	ResourceId         resource.ID
	Exists             bool
	Size               int64
	CreationTimeMillis int64
	ContentType        string
	Metadata           map[string][]byte
	BucketLocation     string
	StorageClass       string
	Generation         int64
}

func (i ItemInfo) String() string {
	return fmt.Sprintf("ItemInfo{%s exists=%v size=%d}", i.ResourceId, i.Exists, i.Size)
}

func (i ItemInfo) GoString() string { return i.String() }

// NotFoundInfo returns the synthetic ItemInfo used by getInfo-family calls
// to report absence without raising an error.
func NotFoundInfo(id resource.ID) ItemInfo {
	return ItemInfo{ResourceId: id, Exists: false}
}

// InferredDirectoryInfo returns the synthetic ItemInfo for a directory that
// exists only as a prefix of other objects, never materialized itself.
func InferredDirectoryInfo(id resource.ID) ItemInfo {
	dir := id.ToDirectoryPath()
	return ItemInfo{ResourceId: dir, Exists: true, Size: 0}
}

// IsInferredDirectory reports whether info was produced by
// InferredDirectoryInfo: exists, zero size, directory path, no metadata and
// no recorded generation (a materialized placeholder always has one).
func (i ItemInfo) IsInferredDirectory() bool {
	return i.Exists && i.Size == 0 && i.ResourceId.IsDirectoryPath() && i.Generation == 0 && len(i.Metadata) == 0
}

// Mtime returns the modification time recorded in the gcs_mtime_millis
// attribute if present, else falls back to the creation time.
func (i ItemInfo) Mtime() time.Time {
	if raw, ok := i.Metadata[MtimeAttribute]; ok {
		if t, ok := DecodeMtime(raw); ok {
			return t
		}
	}
	return time.UnixMilli(i.CreationTimeMillis)
}

// WriteOptions controls CreateWriter behavior.
type WriteOptions struct {
	// OverwriteExisting, when false, requires the write to fail if an
	// object already exists at the destination (if-generation-match=0).
	OverwriteExisting bool
	ContentType       string
	Attributes        map[string][]byte
	UseDirectUpload   bool
}

// UpdateRequest merges AttributeDelta into an object's existing metadata,
// carrying a precondition on IfGenerationMatch when non-zero.
type UpdateRequest struct {
	Id               resource.ID
	AttributeDelta   map[string][]byte
	IfGenerationMatch int64
}

// CopyRequest names one positional copy within a batch Copy call.
type CopyRequest struct {
	SrcBucket, SrcName string
	DstBucket, DstName string
}

// Writer is a scoped, cancelable upload channel. Close is idempotent.
type Writer interface {
	io.WriteCloser
	// Id is the destination object identifier.
	Id() resource.ID
}

// Reader is a seekable, scoped download channel. Close is idempotent.
type Reader interface {
	io.ReadSeekCloser
}

// BatchError aggregates the partial failures of a multi-item operation:
// the first error encountered and how many of the N items failed overall.
// Per §7's partial-failure rule, the remaining successes already landed.
type BatchError struct {
	FailedIndices []int
	FirstErr      error
	Count         int
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("%d of the batch failed, first error: %v", e.Count, e.FirstErr)
}

func (e *BatchError) Unwrap() error { return e.FirstErr }
