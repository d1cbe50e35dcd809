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

package gcsclient

import (
	"context"
	"errors"
	"io"

	"cloud.google.com/go/storage"

	"github.com/cloudpathfs/gcsfs/internal/gcserrors"
	"github.com/cloudpathfs/gcsfs/internal/logger"
	"github.com/cloudpathfs/gcsfs/internal/resource"
)

// readerState models the premature-end-of-stream recovery cycle: a healthy
// reader is Open; a premature end-of-stream flips it to broken, and the same
// Read reopens a ranged request from the last successfully delivered offset
// and returns to Open (a Read or Seek retries the reopen if that failed).
// Other read errors are returned as they are. Reopening never tears down the
// caller's handle.
type readerState int

const (
	stateOpen readerState = iota
	stateBroken
	stateReopening
)

// resumableReader implements store.Reader, reopening the underlying
// cloud.google.com/go/storage reader on a premature end-of-stream instead
// of surfacing it to the caller. For gzip-encoded objects the resume point
// tracks the decoded byte offset, which the object's declared size may not
// agree with -- callers of gzip-encoded objects opt into that ambiguity.
type resumableReader struct {
	ctx    context.Context
	client *Client
	id     resource.ID

	inner       *storage.Reader
	state       readerState
	offset      int64 // next byte to be delivered, in decoded space
	gzipEncoded bool
}

func newResumableReader(ctx context.Context, c *Client, id resource.ID, r *storage.Reader) *resumableReader {
	return &resumableReader{
		ctx:         ctx,
		client:      c,
		id:          id,
		inner:       r,
		state:       stateOpen,
		gzipEncoded: r.Attrs.ContentEncoding == "gzip",
	}
}

func (r *resumableReader) Read(p []byte) (int, error) {
	if r.state != stateOpen {
		if err := r.reopen(); err != nil {
			return 0, err
		}
	}

	n, err := r.inner.Read(p)
	r.offset += int64(n)
	if err == nil || err == io.EOF {
		return n, err
	}

	if isPrematureEOF(err) {
		r.state = stateBroken
		logger.Debugf("reader for %s hit premature end-of-stream at offset %d, will reopen", r.id, r.offset)
		if reopenErr := r.reopen(); reopenErr != nil {
			return n, reopenErr
		}
		// The caller sees a short read, not an error; the next Read call
		// continues from the reopened stream.
		return n, nil
	}

	return n, gcserrors.FromTransportError(err)
}

func (r *resumableReader) Seek(offset int64, whence int) (int64, error) {
	var target int64
	switch whence {
	case io.SeekStart:
		target = offset
	case io.SeekCurrent:
		target = r.offset + offset
	case io.SeekEnd:
		target = r.inner.Attrs.Size + offset
	}

	r.closeInner()
	r.offset = target
	r.state = stateReopening
	if err := r.reopen(); err != nil {
		return 0, err
	}
	return target, nil
}

func (r *resumableReader) reopen() error {
	r.state = stateReopening
	obj := r.client.bucketHandle(r.id.Bucket()).Object(r.id.Object())
	newReader, err := obj.NewRangeReader(r.ctx, r.offset, -1)
	if err != nil {
		return gcserrors.FromTransportError(err)
	}
	r.inner = newReader
	r.state = stateOpen
	return nil
}

func (r *resumableReader) closeInner() {
	if r.inner == nil {
		return
	}
	// Close even if it errors: the contract is close-then-reopen, never
	// propagate a close failure up to the caller.
	if err := r.inner.Close(); err != nil {
		logger.Warnf("error closing reader for %s: %v", r.id, err)
	}
}

func (r *resumableReader) Close() error {
	if r.inner == nil {
		return nil
	}
	err := r.inner.Close()
	r.inner = nil
	return err
}

func isPrematureEOF(err error) bool {
	return errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.ErrClosedPipe)
}
