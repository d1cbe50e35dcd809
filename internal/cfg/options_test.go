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

package cfg

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPassesValidate(t *testing.T) {
	o := Default()
	require.NoError(t, o.Validate())
	assert.Equal(t, InMemory, o.MetadataCache.Type)
	assert.True(t, o.InferImplicitDirectories)
}

func TestDecodeLayersOntoDefaults(t *testing.T) {
	o, err := Decode(map[string]interface{}{
		"metadata-cache": map[string]interface{}{
			"max-entry-age": "10m",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 10*time.Minute, o.MetadataCache.MaxEntryAge)
	// Untouched fields keep their documented default.
	assert.Equal(t, 5*time.Second, o.MetadataCache.MaxInfoAge)
	assert.True(t, o.MetadataCache.Enabled)
}

func TestDecodeRejectsFilesystemBackedWithoutBasePath(t *testing.T) {
	_, err := Decode(map[string]interface{}{
		"metadata-cache": map[string]interface{}{
			"type": "FILESYSTEM_BACKED",
		},
	})
	require.Error(t, err)
}

func TestDecodeAcceptsFilesystemBackedWithBasePath(t *testing.T) {
	o, err := Decode(map[string]interface{}{
		"metadata-cache": map[string]interface{}{
			"type":      "FILESYSTEM_BACKED",
			"base-path": "/var/run/gcsfs-cache",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, FilesystemBacked, o.MetadataCache.Type)
}

func TestValidateRoundsUpSmallWriteChunkSize(t *testing.T) {
	o := Default()
	o.WriteChunkSize = 1024
	require.NoError(t, o.Validate())
	assert.Equal(t, int64(minWriteChunkSize), o.WriteChunkSize)
}

func TestLoadYAMLDecodesDocument(t *testing.T) {
	doc := strings.NewReader(`
metadata-cache:
  enabled: true
  type: IN_MEMORY
  max-entry-age: 1h
timestamp-updates:
  enabled: false
retry:
  initial-backoff: 2s
  max-backoff: 1m
  multiplier: 1.5
`)
	o, err := LoadYAML(doc)
	require.NoError(t, err)
	assert.Equal(t, time.Hour, o.MetadataCache.MaxEntryAge)
	assert.False(t, o.TimestampUpdates.Enabled)
	assert.Equal(t, 2*time.Second, o.Retry.InitialBackoff)
	assert.Equal(t, 1.5, o.Retry.Multiplier)
}

func TestLoadYAMLEmptyDocumentReturnsDefaults(t *testing.T) {
	o, err := LoadYAML(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, Default(), o)
}
