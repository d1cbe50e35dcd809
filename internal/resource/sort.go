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

package resource

import "sort"

// ComparePaths orders two URI strings by length first, then lexicographically.
// Sorting a slice with this comparator ascending guarantees ancestors sort
// before descendants; sorting descending guarantees the reverse. This is the
// only topological property the multi-object operations (mkdirs, rename,
// delete) require.
func ComparePaths(a, b string) int {
	if len(a) != len(b) {
		if len(a) < len(b) {
			return -1
		}
		return 1
	}
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// SortPathsAscending sorts paths so that ancestors precede descendants.
func SortPathsAscending(paths []string) {
	sort.Slice(paths, func(i, j int) bool { return ComparePaths(paths[i], paths[j]) < 0 })
}

// SortPathsDescending sorts paths so that descendants precede ancestors.
func SortPathsDescending(paths []string) {
	sort.Slice(paths, func(i, j int) bool { return ComparePaths(paths[i], paths[j]) > 0 })
}
