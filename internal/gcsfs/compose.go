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

// Compose server-side concatenates sources, in order, into dest, overwriting
// dest if it already exists. All sources and dest must share one bucket.
func (f *Facade) Compose(ctx context.Context, sources []resource.ID, dest resource.ID, contentType string) (err error) {
	ctx, end := tracing.Start(ctx, "Compose")
	defer func() { end(err) }()

	if len(sources) == 0 {
		return invalidArgf("compose %s: no sources given", dest)
	}
	bucket := dest.Bucket()
	names := make([]string, len(sources))
	for i, s := range sources {
		if s.Bucket() != bucket {
			return invalidArgf("compose %s: source %s is not in the destination bucket", dest, s)
		}
		names[i] = s.Object()
	}
	if err := f.store.Compose(ctx, bucket, names, dest.Object(), contentType); err != nil {
		return err
	}
	f.enqueueMtimeUpdate([]resource.ID{dest}, nil)
	return nil
}
