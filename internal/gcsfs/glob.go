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
	"path"
	"strings"

	"github.com/cloudpathfs/gcsfs/internal/resource"
	"github.com/cloudpathfs/gcsfs/internal/tracing"
)

// GlobStatus expands pattern component-wise over ListStatus results: each
// "/"-separated segment of pattern is matched independently against the
// corresponding path level, breadth-first (every match at depth N is
// expanded before any of its children at depth N+1), mirroring the Hadoop
// Globber's traversal order. "*"/"?"/"[...]" are recognized within one
// segment only -- there is no "**" recursive form.
func (f *Facade) GlobStatus(ctx context.Context, pattern string) (_ []FileInfo, err error) {
	ctx, end := tracing.Start(ctx, "GlobStatus")
	defer func() { end(err) }()

	id, err := resource.Parse(pattern, true)
	if err != nil {
		return nil, err
	}
	if id.IsRoot() {
		return f.ListStatus(ctx, id)
	}

	segments := splitSegments(id.Object())
	if !hasWildcard(id.Bucket()) && len(segments) == 0 {
		return f.ListStatus(ctx, id)
	}

	var frontier []resource.ID
	if hasWildcard(id.Bucket()) {
		names, err := f.store.ListBucketNames(ctx)
		if err != nil {
			return nil, err
		}
		for _, name := range names {
			if matchSegment(id.Bucket(), name) {
				frontier = append(frontier, resource.BucketID(name))
			}
		}
	} else {
		frontier = []resource.ID{resource.BucketID(id.Bucket())}
	}

	for depth, segment := range segments {
		last := depth == len(segments)-1
		var next []resource.ID
		for _, dir := range frontier {
			children, err := f.store.ListObjectInfos(ctx, dir.Bucket(), dir.Object(), "/")
			if err != nil {
				return nil, err
			}
			for _, child := range children {
				leaf := leafOf(dir, child.ResourceId)
				if !matchSegment(segment, leaf) {
					continue
				}
				if last {
					next = append(next, child.ResourceId)
				} else if child.ResourceId.IsDirectoryPath() {
					next = append(next, child.ResourceId)
				}
			}
		}
		frontier = next
		if len(frontier) == 0 {
			return nil, nil
		}
	}

	out := make([]FileInfo, 0, len(frontier))
	for _, match := range frontier {
		info, err := f.GetStatus(ctx, match)
		if err != nil {
			return nil, err
		}
		out = append(out, info)
	}
	return out, nil
}

func splitSegments(object string) []string {
	trimmed := strings.Trim(object, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func hasWildcard(s string) bool {
	return strings.ContainsAny(s, "*?[")
}

func matchSegment(pattern, name string) bool {
	ok, err := path.Match(pattern, name)
	return err == nil && ok
}

// leafOf returns the single path segment by which child sits directly
// beneath dir.
func leafOf(dir, child resource.ID) string {
	rest := strings.TrimPrefix(child.Object(), dir.Object())
	return strings.TrimSuffix(rest, "/")
}
