// Copyright 2023 Google Inc. All Rights Reserved.
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

package locker

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewRWPlainByDefault(t *testing.T) {
	l := NewRW("test", nil)
	l.Lock()
	l.Unlock()
	l.RLock()
	l.RUnlock()
}

func TestNewRWAppliesInvariantsCheckWhenEnabled(t *testing.T) {
	EnableInvariantsCheck = true
	defer func() { EnableInvariantsCheck = false }()

	calls := 0
	l := NewRW("test", func() { calls++ })
	l.Lock()
	l.Unlock()
	l.RLock()
	l.RUnlock()

	assert.Equal(t, 4, calls)
}

func TestNewRWSkipsInvariantsCheckWhenDisabled(t *testing.T) {
	calls := 0
	l := NewRW("test", func() { calls++ })
	l.Lock()
	l.Unlock()

	assert.Equal(t, 0, calls)
}

func TestNewRWAppliesDebuggerWhenEnabled(t *testing.T) {
	EnableDebugMessages = true
	defer func() { EnableDebugMessages = false }()

	l := NewRW("test", nil)
	l.Lock()
	l.Unlock()
	l.RLock()
	l.RUnlock()
}
