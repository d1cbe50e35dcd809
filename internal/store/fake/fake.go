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

// Package fake is an in-memory store.Client test double, grounded on the
// object/generation bookkeeping of the real fake storage backend, used to
// exercise the facade's algorithms without any network dependency.
package fake

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"maps"
	"sort"
	"strings"
	"sync"

	"github.com/cloudpathfs/gcsfs/internal/gcserrors"
	"github.com/cloudpathfs/gcsfs/internal/resource"
	"github.com/cloudpathfs/gcsfs/internal/store"
)

type fakeObject struct {
	name       string
	data       []byte
	generation int64
	metadata   map[string][]byte
	created    int64 // nanoseconds, monotonic counter standing in for a clock
	attrs      string
}

type fakeBucket struct {
	mu      sync.Mutex
	objects map[string]*fakeObject
	clock   int64
}

// Client is an in-memory store.Client. Zero value is ready to use.
type Client struct {
	mu      sync.Mutex
	buckets map[string]*fakeBucket
}

// New returns an empty fake store.
func New() *Client { return &Client{buckets: map[string]*fakeBucket{}} }

func (c *Client) bucket(name string, create bool) (*fakeBucket, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.buckets[name]
	if !ok && create {
		if c.buckets == nil {
			c.buckets = map[string]*fakeBucket{}
		}
		b = &fakeBucket{objects: map[string]*fakeObject{}}
		c.buckets[name] = b
	}
	return b, ok
}

// CreateBucket idempotently makes the fake bucket exist with no objects.
func (c *Client) CreateBucket(ctx context.Context, name string) error {
	c.bucket(name, true)
	return nil
}

func (c *Client) GetInfo(ctx context.Context, id resource.ID) (store.ItemInfo, error) {
	if id.IsRoot() {
		return store.ItemInfo{ResourceId: id, Exists: true}, nil
	}
	b, ok := c.bucket(id.Bucket(), false)
	if !ok {
		return store.NotFoundInfo(id), nil
	}
	if id.IsBucket() {
		return store.ItemInfo{ResourceId: id, Exists: true}, nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	obj, ok := b.objects[id.Object()]
	if !ok {
		return store.NotFoundInfo(id), nil
	}
	return toItemInfo(id, obj), nil
}

func (c *Client) GetInfos(ctx context.Context, ids []resource.ID) ([]store.ItemInfo, error) {
	out := make([]store.ItemInfo, len(ids))
	for i, id := range ids {
		info, err := c.GetInfo(ctx, id)
		if err != nil {
			return nil, err
		}
		out[i] = info
	}
	return out, nil
}

func (c *Client) ListBucketNames(ctx context.Context) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var names []string
	for name := range c.buckets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (c *Client) ListBucketInfos(ctx context.Context) ([]store.ItemInfo, error) {
	names, _ := c.ListBucketNames(ctx)
	out := make([]store.ItemInfo, len(names))
	for i, name := range names {
		out[i] = store.ItemInfo{ResourceId: resource.BucketID(name), Exists: true}
	}
	return out, nil
}

func (c *Client) ListObjectNames(ctx context.Context, bucket, prefix, delimiter string) ([]string, error) {
	infos, err := c.ListObjectInfos(ctx, bucket, prefix, delimiter)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(infos))
	for i, info := range infos {
		names[i] = info.ResourceId.Object()
	}
	return names, nil
}

func (c *Client) ListObjectInfos(ctx context.Context, bucket, prefix, delimiter string) ([]store.ItemInfo, error) {
	b, ok := c.bucket(bucket, false)
	if !ok {
		return nil, nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	seenDirs := map[string]bool{}
	var out []store.ItemInfo
	for name, obj := range b.objects {
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		rest := name[len(prefix):]
		if delimiter == "" {
			out = append(out, toItemInfo(resource.ObjectID(bucket, name), obj))
			continue
		}
		idx := strings.Index(rest, delimiter)
		if idx < 0 {
			out = append(out, toItemInfo(resource.ObjectID(bucket, name), obj))
			continue
		}
		dirName := prefix + rest[:idx+len(delimiter)]
		if !seenDirs[dirName] {
			seenDirs[dirName] = true
			out = append(out, store.ItemInfo{ResourceId: resource.ObjectID(bucket, dirName), Exists: true})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ResourceId.Object() < out[j].ResourceId.Object() })
	return out, nil
}

type writer struct {
	id       resource.ID
	buf      bytes.Buffer
	opts     store.WriteOptions
	bucket   *fakeBucket
	closed   bool
	closeErr error
}

func (w *writer) Id() resource.ID { return w.id }

func (w *writer) Write(p []byte) (int, error) {
	if w.closed {
		return 0, io.ErrClosedPipe
	}
	return w.buf.Write(p)
}

func (w *writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	w.bucket.mu.Lock()
	defer w.bucket.mu.Unlock()

	if !w.opts.OverwriteExisting {
		if _, exists := w.bucket.objects[w.id.Object()]; exists {
			w.closeErr = &gcserrors.AlreadyExistsError{Err: fmt.Errorf("object %q exists", w.id.Object())}
			return w.closeErr
		}
	}
	w.bucket.clock++
	w.bucket.objects[w.id.Object()] = &fakeObject{
		name:       w.id.Object(),
		data:       w.buf.Bytes(),
		generation: w.bucket.clock,
		metadata:   maps.Clone(w.opts.Attributes),
		created:    w.bucket.clock,
	}
	return nil
}

func (c *Client) CreateWriter(ctx context.Context, id resource.ID, opts store.WriteOptions) (store.Writer, error) {
	b, _ := c.bucket(id.Bucket(), true)
	return &writer{id: id, opts: opts, bucket: b}, nil
}

type reader struct {
	r *bytes.Reader
}

func (r *reader) Read(p []byte) (int, error)               { return r.r.Read(p) }
func (r *reader) Seek(off int64, whence int) (int64, error) { return r.r.Seek(off, whence) }
func (r *reader) Close() error                              { return nil }

func (c *Client) OpenReader(ctx context.Context, id resource.ID) (store.Reader, error) {
	b, ok := c.bucket(id.Bucket(), false)
	if !ok {
		return nil, &gcserrors.NotFoundError{Err: fmt.Errorf("bucket %q not found", id.Bucket())}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	obj, ok := b.objects[id.Object()]
	if !ok {
		return nil, &gcserrors.NotFoundError{Err: fmt.Errorf("object %q not found", id.Object())}
	}
	return &reader{r: bytes.NewReader(obj.data)}, nil
}

func (c *Client) createEmptyOne(ctx context.Context, id resource.ID, attrs map[string][]byte) error {
	b, _ := c.bucket(id.Bucket(), true)
	b.mu.Lock()
	defer b.mu.Unlock()
	if existing, ok := b.objects[id.Object()]; ok {
		if existing.data != nil && len(existing.data) != 0 {
			return &gcserrors.AlreadyExistsError{Err: fmt.Errorf("non-empty object %q exists", id.Object())}
		}
		return nil
	}
	b.clock++
	b.objects[id.Object()] = &fakeObject{name: id.Object(), generation: b.clock, metadata: maps.Clone(attrs), created: b.clock}
	return nil
}

func (c *Client) CreateEmpty(ctx context.Context, id resource.ID, attrs map[string][]byte) error {
	return c.createEmptyOne(ctx, id, attrs)
}

func (c *Client) CreateEmptyBatch(ctx context.Context, ids []resource.ID, attrs map[string][]byte) error {
	var be store.BatchError
	for i, id := range ids {
		if err := c.createEmptyOne(ctx, id, attrs); err != nil {
			if be.FirstErr == nil {
				be.FirstErr = err
			}
			be.FailedIndices = append(be.FailedIndices, i)
			be.Count++
		}
	}
	if be.Count > 0 {
		return &be
	}
	return nil
}

func (c *Client) Copy(ctx context.Context, reqs []store.CopyRequest) error {
	var be store.BatchError
	fail := func(i int, err error) {
		if be.FirstErr == nil {
			be.FirstErr = err
		}
		be.FailedIndices = append(be.FailedIndices, i)
		be.Count++
	}
	for i, req := range reqs {
		srcB, ok := c.bucket(req.SrcBucket, false)
		if !ok {
			fail(i, &gcserrors.NotFoundError{Err: fmt.Errorf("source bucket %q not found", req.SrcBucket)})
			continue
		}
		srcB.mu.Lock()
		obj, ok := srcB.objects[req.SrcName]
		var clone *fakeObject
		if ok {
			clone = &fakeObject{name: req.DstName, data: append([]byte(nil), obj.data...), metadata: maps.Clone(obj.metadata)}
		}
		srcB.mu.Unlock()
		if !ok {
			fail(i, &gcserrors.NotFoundError{Err: fmt.Errorf("source object %q not found", req.SrcName)})
			continue
		}
		dstB, _ := c.bucket(req.DstBucket, true)
		dstB.mu.Lock()
		dstB.clock++
		clone.generation = dstB.clock
		clone.created = dstB.clock
		dstB.objects[req.DstName] = clone
		dstB.mu.Unlock()
	}
	if be.Count > 0 {
		return &be
	}
	return nil
}

func (c *Client) Delete(ctx context.Context, ids []resource.ID) error {
	var be store.BatchError
	for i, id := range ids {
		b, ok := c.bucket(id.Bucket(), false)
		if !ok {
			continue
		}
		b.mu.Lock()
		if _, exists := b.objects[id.Object()]; !exists {
			b.mu.Unlock()
			if be.FirstErr == nil {
				be.FirstErr = &gcserrors.NotFoundError{Err: fmt.Errorf("object %q not found", id.Object())}
			}
			be.FailedIndices = append(be.FailedIndices, i)
			be.Count++
			continue
		}
		delete(b.objects, id.Object())
		b.mu.Unlock()
	}
	if be.Count > 0 {
		return &be
	}
	return nil
}

func (c *Client) DeleteBuckets(ctx context.Context, names []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, name := range names {
		delete(c.buckets, name)
	}
	return nil
}

func (c *Client) WaitForBucketEmpty(ctx context.Context, name string) error {
	b, ok := c.bucket(name, false)
	if !ok {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.objects) != 0 {
		return &gcserrors.FailedPreconditionError{Err: fmt.Errorf("bucket %q still has %d objects", name, len(b.objects))}
	}
	return nil
}

func (c *Client) UpdateItems(ctx context.Context, reqs []store.UpdateRequest) error {
	for _, req := range reqs {
		b, ok := c.bucket(req.Id.Bucket(), false)
		if !ok {
			return &gcserrors.NotFoundError{Err: fmt.Errorf("bucket %q not found", req.Id.Bucket())}
		}
		b.mu.Lock()
		obj, ok := b.objects[req.Id.Object()]
		if !ok {
			b.mu.Unlock()
			return &gcserrors.NotFoundError{Err: fmt.Errorf("object %q not found", req.Id.Object())}
		}
		if req.IfGenerationMatch != 0 && obj.generation != req.IfGenerationMatch {
			b.mu.Unlock()
			return &gcserrors.FailedPreconditionError{Err: fmt.Errorf("generation mismatch for %q", req.Id.Object())}
		}
		if obj.metadata == nil {
			obj.metadata = map[string][]byte{}
		}
		maps.Copy(obj.metadata, req.AttributeDelta)
		b.mu.Unlock()
	}
	return nil
}

func (c *Client) Compose(ctx context.Context, bucket string, sources []string, dest, contentType string) error {
	b, ok := c.bucket(bucket, false)
	if !ok {
		return &gcserrors.NotFoundError{Err: fmt.Errorf("bucket %q not found", bucket)}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	var combined bytes.Buffer
	for _, src := range sources {
		obj, ok := b.objects[src]
		if !ok {
			return &gcserrors.NotFoundError{Err: fmt.Errorf("source object %q not found", src)}
		}
		combined.Write(obj.data)
	}
	b.clock++
	b.objects[dest] = &fakeObject{name: dest, data: combined.Bytes(), generation: b.clock, created: b.clock, attrs: contentType}
	return nil
}

func (c *Client) Close() error { return nil }

func toItemInfo(id resource.ID, obj *fakeObject) store.ItemInfo {
	return store.ItemInfo{
		ResourceId:         id,
		Exists:             true,
		Size:               int64(len(obj.data)),
		CreationTimeMillis: obj.created,
		Metadata:           obj.metadata,
		Generation:         obj.generation,
	}
}
