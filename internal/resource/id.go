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

// Package resource parses gs://bucket/object URIs into typed resource
// identifiers and implements the path-to-directory conventions (trailing
// delimiter, parent/leaf extraction) that the rest of the module builds on.
package resource

import (
	"fmt"
	"strings"
)

// Scheme is the URI scheme recognized by this package.
const Scheme = "gs"

// Delimiter separates path components, both in object names and in the
// trailing-slash directory convention.
const Delimiter = "/"

// Root is the URI of the global root (the bucket namespace itself).
const Root = Scheme + ":/"

// Kind discriminates the three flavors of ID.
type Kind int

const (
	KindRoot Kind = iota
	KindBucket
	KindObject
)

// ID is the sum type described in the data model as ResourceId: Root,
// Bucket(name), or Object(bucket, name). The zero value is the root.
type ID struct {
	kind   Kind
	bucket string
	object string
}

// RootID returns the singleton root identifier.
func RootID() ID { return ID{kind: KindRoot} }

// BucketID returns the identifier for a bucket.
func BucketID(bucket string) ID { return ID{kind: KindBucket, bucket: bucket} }

// ObjectID returns the identifier for an object within a bucket. A leading
// "/" in name is stripped, matching the construction invariant in the data
// model.
func ObjectID(bucket, name string) ID {
	return ID{kind: KindObject, bucket: bucket, object: strings.TrimPrefix(name, Delimiter)}
}

func (id ID) Kind() Kind       { return id.kind }
func (id ID) IsRoot() bool     { return id.kind == KindRoot }
func (id ID) IsBucket() bool   { return id.kind == KindBucket }
func (id ID) IsObject() bool   { return id.kind == KindObject }
func (id ID) Bucket() string   { return id.bucket }
func (id ID) Object() string   { return id.object }

// String renders the canonical gs:// form of the identifier.
func (id ID) String() string {
	switch id.kind {
	case KindRoot:
		return Root
	case KindBucket:
		return fmt.Sprintf("%s://%s/", Scheme, id.bucket)
	default:
		return fmt.Sprintf("%s://%s/%s", Scheme, id.bucket, id.object)
	}
}

// Equal reports whether two identifiers name the same resource.
func (id ID) Equal(other ID) bool {
	return id.kind == other.kind && id.bucket == other.bucket && id.object == other.object
}

// IsDirectoryPath reports whether the identifier's object name ends in the
// delimiter; always true for Root and Bucket, which are inherently
// directories.
func (id ID) IsDirectoryPath() bool {
	switch id.kind {
	case KindRoot, KindBucket:
		return true
	default:
		return id.object == "" || strings.HasSuffix(id.object, Delimiter)
	}
}

// ToDirectoryPath returns an identifier equivalent to id but guaranteed to
// look like a directory (trailing delimiter appended if absent). Root and
// Bucket are returned unchanged.
func (id ID) ToDirectoryPath() ID {
	if id.kind != KindObject || strings.HasSuffix(id.object, Delimiter) {
		return id
	}
	return ID{kind: KindObject, bucket: id.bucket, object: id.object + Delimiter}
}

// ToFilePath strips a single trailing delimiter, if present. Root and
// Bucket are returned unchanged since they have no file-path form.
func (id ID) ToFilePath() ID {
	if id.kind != KindObject || !strings.HasSuffix(id.object, Delimiter) {
		return id
	}
	return ID{kind: KindObject, bucket: id.bucket, object: strings.TrimSuffix(id.object, Delimiter)}
}

// InvalidArgumentError is returned by Parse for malformed URIs.
type InvalidArgumentError struct {
	Message string
}

func (e *InvalidArgumentError) Error() string { return e.Message }

// Parse validates and decomposes a gs://bucket/object URI. When
// allowEmptyObject is false, a bucket-only URI (no object component) is
// rejected -- used by operations that require a concrete object.
//
// The bucket must be non-empty and free of "/". The object must not contain
// consecutive delimiters. A leading "/" on the object is stripped. Percent-
// escaped sequences and literal "+" are preserved verbatim; this package
// never performs URL decoding.
func Parse(uri string, allowEmptyObject bool) (ID, error) {
	if uri == Root || uri == Scheme+"://" {
		return RootID(), nil
	}

	prefix := Scheme + "://"
	if !strings.HasPrefix(uri, prefix) {
		return ID{}, &InvalidArgumentError{Message: fmt.Sprintf("unsupported scheme in URI %q, expected %q", uri, Scheme)}
	}
	rest := uri[len(prefix):]

	slash := strings.Index(rest, Delimiter)
	var bucket, object string
	if slash < 0 {
		bucket, object = rest, ""
	} else {
		bucket, object = rest[:slash], rest[slash+1:]
	}

	if bucket == "" {
		return ID{}, &InvalidArgumentError{Message: fmt.Sprintf("empty bucket name in URI %q", uri)}
	}
	if strings.Contains(bucket, Delimiter) {
		return ID{}, &InvalidArgumentError{Message: fmt.Sprintf("bucket name %q must not contain %q", bucket, Delimiter)}
	}
	object = strings.TrimPrefix(object, Delimiter)
	if strings.Contains(object, "//") {
		return ID{}, &InvalidArgumentError{Message: fmt.Sprintf("object name %q must not contain consecutive delimiters", object)}
	}
	if object == "" {
		if !allowEmptyObject {
			return ID{}, &InvalidArgumentError{Message: fmt.Sprintf("URI %q must name an object", uri)}
		}
		return BucketID(bucket), nil
	}

	return ObjectID(bucket, object), nil
}

// GetParent returns the identifier of the longest proper directory-prefix
// of id. The root's parent is itself, matching the POSIX "/.." convention.
// A bucket's parent is the root.
func GetParent(id ID) ID {
	switch id.kind {
	case KindRoot:
		return id
	case KindBucket:
		return RootID()
	}

	trimmed := strings.TrimSuffix(id.object, Delimiter)
	idx := strings.LastIndex(trimmed, Delimiter)
	if idx < 0 {
		return BucketID(id.bucket)
	}
	return ID{kind: KindObject, bucket: id.bucket, object: trimmed[:idx+1]}
}

// GetLeafName returns the last non-empty path segment of id, accounting for
// a trailing delimiter.
func GetLeafName(id ID) string {
	switch id.kind {
	case KindRoot:
		return ""
	case KindBucket:
		return id.bucket
	}

	trimmed := strings.TrimSuffix(id.object, Delimiter)
	idx := strings.LastIndex(trimmed, Delimiter)
	if idx < 0 {
		return trimmed
	}
	return trimmed[idx+1:]
}

// SubDirs returns the directory-path prefixes of objectName that end at
// each delimiter, shortest first. For "foo/bar/zoo" it returns ("foo/",
// "foo/bar/"); a name that itself ends in the delimiter is included as its
// own last element. An empty or delimiter-free name returns nil.
func SubDirs(objectName string) []string {
	var subdirs []string
	if objectName == "" {
		return subdirs
	}
	current := 0
	for current < len(objectName) {
		idx := strings.Index(objectName[current:], Delimiter)
		if idx < 0 {
			break
		}
		end := current + idx + 1
		subdirs = append(subdirs, objectName[:end])
		current = end
	}
	return subdirs
}

// Join appends a relative name to a directory identifier, as if by
// path.Join but preserving the distinction between directory and file
// forms (a trailing delimiter on name is preserved).
func Join(dir ID, name string) ID {
	base := dir.ToDirectoryPath()
	switch base.kind {
	case KindRoot:
		return BucketID(name)
	case KindBucket:
		return ObjectID(base.bucket, name)
	default:
		return ObjectID(base.bucket, base.object+name)
	}
}
