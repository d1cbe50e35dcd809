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

// Package tracing starts one span per File-System Facade operation, the
// same shape as gcsfuse's own per-FUSE-op span wrapper: a server-kind span
// named after the operation, recording the operation's error onto the span
// before ending it. Unlike gcsfuse, which wraps an entire fuseutil.FileSystem
// from the outside, the facade has no such wrapping seam -- there is one
// Facade, not a decorator chain -- so each exported method starts its own
// span directly rather than going through a wrapping type.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/cloudpathfs/gcsfs"

func tracer() trace.Tracer { return otel.Tracer(tracerName) }

// Start begins a span named opName, SpanKindServer like gcsfuse's (the
// facade is, from the caller's perspective, serving a filesystem request).
// The caller must invoke the returned End exactly once, typically via
// defer, passing the operation's final error.
func Start(ctx context.Context, opName string) (context.Context, func(err error)) {
	ctx, span := tracer().Start(ctx, opName, trace.WithSpanKind(trace.SpanKindServer))
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
}
