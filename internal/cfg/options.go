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

// Package cfg holds the facade's Options struct and its decode path. It
// deliberately carries no flag-parsing surface: CLI binding is an
// out-of-scope external collaborator (the facade only consumes a decoded
// Options value).
package cfg

import (
	"fmt"
	"io"
	"time"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	"github.com/cloudpathfs/gcsfs/internal/logger"
)

// CacheType selects a Directory List Cache backend.
type CacheType string

const (
	InMemory         CacheType = "IN_MEMORY"
	FilesystemBacked CacheType = "FILESYSTEM_BACKED"
)

// MetadataCacheOptions configures the Directory List Cache.
type MetadataCacheOptions struct {
	Enabled       bool          `mapstructure:"enabled"`
	Type          CacheType     `mapstructure:"type"`
	BasePath      string        `mapstructure:"base-path"`
	MaxEntryAge   time.Duration `mapstructure:"max-entry-age"`
	MaxInfoAge    time.Duration `mapstructure:"max-info-age"`
}

// TimestampUpdateOptions configures the background mtime updater.
type TimestampUpdateOptions struct {
	Enabled  bool     `mapstructure:"enabled"`
	Includes []string `mapstructure:"includes"`
	Excludes []string `mapstructure:"excludes"`
}

// RetryOptions exposes the backoff curve, resolving the "expose as
// configuration" open question from the design notes.
type RetryOptions struct {
	InitialBackoff time.Duration `mapstructure:"initial-backoff"`
	MaxBackoff     time.Duration `mapstructure:"max-backoff"`
	Multiplier     float64       `mapstructure:"multiplier"`
	MaxElapsed     time.Duration `mapstructure:"max-elapsed"`
}

// MetricsOptions gates Prometheus registration.
type MetricsOptions struct {
	Enabled bool `mapstructure:"enabled"`
}

// DebugOptions gates the locker package's optional invariant checking and
// deadlock-suspicion logging. Both default off: they add per-lock
// overhead that is only worth paying while chasing a specific cache
// concurrency bug.
type DebugOptions struct {
	EnableInvariantsCheck bool `mapstructure:"enable-invariants-check"`
	EnableDebugMessages   bool `mapstructure:"enable-debug-messages"`
}

// Options is the complete set of facade-level configuration.
type Options struct {
	MetadataCache            MetadataCacheOptions `mapstructure:"metadata-cache"`
	InferImplicitDirectories bool                 `mapstructure:"infer-implicit-directories"`
	// AutoRepairImplicitDirectories, when true, materializes a directory
	// placeholder on the read path as soon as listStatus/getStatus
	// detects an implicit directory, taking priority over pure
	// in-memory inference (ported from the original's enableAutoRepair).
	AutoRepairImplicitDirectories bool                   `mapstructure:"auto-repair-implicit-directories"`
	CreateMarkerFiles             bool                   `mapstructure:"create-marker-files"`
	TimestampUpdates              TimestampUpdateOptions `mapstructure:"timestamp-updates"`
	ReportedPermissions           uint32                 `mapstructure:"reported-permissions"`
	WriteChunkSize                int64                  `mapstructure:"write-chunk-size"`
	ReadChunkSize                 int64                  `mapstructure:"read-chunk-size"`
	Retry                         RetryOptions           `mapstructure:"retry"`
	Metrics                       MetricsOptions         `mapstructure:"metrics"`
	Debug                         DebugOptions           `mapstructure:"debug"`
}

const minWriteChunkSize = 8 * 1024 * 1024

// Default returns the option set with every documented default applied.
func Default() Options {
	return Options{
		MetadataCache: MetadataCacheOptions{
			Enabled:     true,
			Type:        InMemory,
			MaxEntryAge: 4 * time.Hour,
			MaxInfoAge:  5 * time.Second,
		},
		InferImplicitDirectories:      true,
		AutoRepairImplicitDirectories: false,
		CreateMarkerFiles:             false,
		TimestampUpdates:         TimestampUpdateOptions{Enabled: true},
		ReportedPermissions:      0o700,
		WriteChunkSize:           minWriteChunkSize,
		ReadChunkSize:            8 * 1024 * 1024,
		Retry: RetryOptions{
			InitialBackoff: time.Second,
			MaxBackoff:     30 * time.Second,
			Multiplier:     2.0,
			MaxElapsed:     5 * time.Minute,
		},
	}
}

// Decode populates Options from an arbitrary map (as produced by a YAML or
// JSON config loader living outside this module), layering onto the
// documented defaults and applying decode hooks for duration strings and
// comma-separated lists, as gcsfuse's own config layer does.
func Decode(raw map[string]interface{}) (Options, error) {
	out := Default()
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result: &out,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return Options{}, fmt.Errorf("cfg: building decoder: %w", err)
	}
	if err := decoder.Decode(raw); err != nil {
		return Options{}, fmt.Errorf("cfg: decoding options: %w", err)
	}
	if err := out.Validate(); err != nil {
		return Options{}, err
	}
	return out, nil
}

// LoadYAML reads a gcsfs config file (the same shape as gcsfuse's own
// config.yaml, restricted to the keys this facade understands) and decodes
// it through Decode, so file-sourced and programmatically-built Options go
// through one validation path.
func LoadYAML(r io.Reader) (Options, error) {
	var raw map[string]interface{}
	if err := yaml.NewDecoder(r).Decode(&raw); err != nil {
		if err == io.EOF {
			return Default(), nil
		}
		return Options{}, fmt.Errorf("cfg: parsing yaml: %w", err)
	}
	return Decode(raw)
}

// Validate applies the option-level constraints named in the external
// interfaces: a filesystem-backed cache requires a base path, and a write
// chunk size below the floor is rounded up rather than rejected outright,
// and one that is not a multiple of the floor is accepted with a warning.
func (o *Options) Validate() error {
	if o.MetadataCache.Type == FilesystemBacked && o.MetadataCache.BasePath == "" {
		return fmt.Errorf("cfg: metadata-cache.base-path is required when type is %s", FilesystemBacked)
	}
	if o.WriteChunkSize < minWriteChunkSize {
		o.WriteChunkSize = minWriteChunkSize
	} else if o.WriteChunkSize%minWriteChunkSize != 0 {
		// Non-multiples warn rather than fail.
		logger.Warnf("cfg: write-chunk-size %d is not a multiple of %d", o.WriteChunkSize, minWriteChunkSize)
	}
	return nil
}
