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

// Package gcserrors defines the error taxonomy shared by the store,
// directory cache, and facade layers: InvalidArgument, NotFound,
// AlreadyExists, DirectoryNotEmpty, FailedPrecondition, Transient, and
// Fatal. Each is a concrete type wrapping an underlying error so callers
// can use errors.As/errors.Is.
package gcserrors

import (
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// InvalidArgumentError indicates a malformed request: a bad URI, an attempt
// to rename root, or a create over what looks like a directory.
type InvalidArgumentError struct{ Err error }

func (e *InvalidArgumentError) Error() string { return fmt.Sprintf("invalid argument: %v", e.Err) }
func (e *InvalidArgumentError) Unwrap() error  { return e.Err }

// NotFoundError indicates a path did not resolve, even after implicit
// directory repair/inference.
type NotFoundError struct{ Err error }

func (e *NotFoundError) Error() string { return fmt.Sprintf("not found: %v", e.Err) }
func (e *NotFoundError) Unwrap() error  { return e.Err }

// AlreadyExistsError indicates a create collided with an existing
// directory, or a rename destination already exists as a file.
type AlreadyExistsError struct{ Err error }

func (e *AlreadyExistsError) Error() string { return fmt.Sprintf("already exists: %v", e.Err) }
func (e *AlreadyExistsError) Unwrap() error  { return e.Err }

// DirectoryNotEmptyError indicates a non-recursive delete found children.
type DirectoryNotEmptyError struct{ Err error }

func (e *DirectoryNotEmptyError) Error() string {
	return fmt.Sprintf("directory not empty: %v", e.Err)
}
func (e *DirectoryNotEmptyError) Unwrap() error { return e.Err }

// FailedPreconditionError indicates a generation-match or if-not-exists
// precondition failed even after retries.
type FailedPreconditionError struct{ Err error }

func (e *FailedPreconditionError) Error() string {
	return fmt.Sprintf("failed precondition: %v", e.Err)
}
func (e *FailedPreconditionError) Unwrap() error { return e.Err }

// TransientError indicates a retriable failure: 5xx, 429, connection
// reset, premature end-of-stream, or a transient auth failure.
type TransientError struct{ Err error }

func (e *TransientError) Error() string { return fmt.Sprintf("transient: %v", e.Err) }
func (e *TransientError) Unwrap() error  { return e.Err }

// FatalError indicates a non-retriable failure: any 4xx other than
// 404/412/429, or a malformed response.
type FatalError struct{ Err error }

func (e *FatalError) Error() string { return fmt.Sprintf("fatal: %v", e.Err) }
func (e *FatalError) Unwrap() error  { return e.Err }

// IsNotFound reports whether err (or something it wraps) is a NotFoundError.
func IsNotFound(err error) bool {
	var nfe *NotFoundError
	return errors.As(err, &nfe)
}

// IsTransient reports whether err (or something it wraps) is a
// TransientError, i.e. whether a retry is warranted.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// IsFailedPrecondition reports whether err is a FailedPreconditionError.
func IsFailedPrecondition(err error) bool {
	var pe *FailedPreconditionError
	return errors.As(err, &pe)
}

// FromTransportError classifies a raw error returned by an HTTP/gRPC client
// into the taxonomy above, using the HTTP status code (via *googleapi.Error)
// or the gRPC status code, whichever is present. Errors that are already
// part of the taxonomy pass through unchanged. Unrecognized errors are
// classified Fatal, matching the design's "non-retriable by default" bias.
func FromTransportError(err error) error {
	if err == nil {
		return nil
	}
	if isTaxonomyError(err) {
		return err
	}

	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		switch gErr.Code {
		case http.StatusNotFound:
			return &NotFoundError{Err: err}
		case http.StatusPreconditionFailed:
			return &FailedPreconditionError{Err: err}
		case http.StatusTooManyRequests:
			return &TransientError{Err: err}
		default:
			if gErr.Code >= 500 {
				return &TransientError{Err: err}
			}
			return &FatalError{Err: err}
		}
	}

	if rpcErr, ok := status.FromError(err); ok {
		switch rpcErr.Code() {
		case codes.NotFound:
			return &NotFoundError{Err: err}
		case codes.FailedPrecondition, codes.Aborted:
			return &FailedPreconditionError{Err: err}
		case codes.Unavailable, codes.ResourceExhausted, codes.DeadlineExceeded, codes.Internal:
			return &TransientError{Err: err}
		default:
			return &FatalError{Err: err}
		}
	}

	return &FatalError{Err: err}
}

func isTaxonomyError(err error) bool {
	switch err.(type) {
	case *InvalidArgumentError, *NotFoundError, *AlreadyExistsError,
		*DirectoryNotEmptyError, *FailedPreconditionError, *TransientError, *FatalError:
		return true
	default:
		return false
	}
}
