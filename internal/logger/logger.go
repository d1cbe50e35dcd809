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

// Package logger provides the structured logging entry points consumed by
// the rest of the module. Where the daemon logs land (stdout, a file, a
// syslog socket) is a deployment decision that belongs to the out-of-scope
// CLI/daemon adapter; this package only offers the leveled functions and a
// default handler, mirroring the narrow surface gcsfuse's own callers use.
package logger

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/jacobsa/daemonize"
)

// traceLevel sits below slog.LevelDebug, matching gcsfuse's five-level
// scheme (TRACE, DEBUG, INFO, WARNING, ERROR, OFF).
const traceLevel = slog.Level(-8)

var (
	level  = new(slog.LevelVar)
	logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
)

func init() {
	level.Set(slog.LevelInfo)
}

// SetLevel adjusts the minimum severity logged. One of "TRACE", "DEBUG",
// "INFO", "WARNING", "ERROR", or "OFF".
func SetLevel(name string) {
	switch name {
	case "TRACE":
		level.Set(traceLevel)
	case "DEBUG":
		level.Set(slog.LevelDebug)
	case "INFO":
		level.Set(slog.LevelInfo)
	case "WARNING":
		level.Set(slog.LevelWarn)
	case "ERROR":
		level.Set(slog.LevelError)
	case "OFF":
		level.Set(slog.Level(12))
	}
}

// SetHandler swaps the underlying slog handler, e.g. to redirect output to
// a file or to a JSON handler. The daemon/CLI adapter owns this decision.
func SetHandler(h slog.Handler) { logger = slog.New(h) }

// NoticeWriter forwards notice-level messages to the invoking process when
// running daemonized, mirroring gcsfuse's status-channel convention.
var NoticeWriter = daemonize.StatusWriter

func Tracef(format string, args ...interface{}) {
	logger.Log(context.Background(), traceLevel, sprintf(format, args...))
}

func Debugf(format string, args ...interface{}) {
	logger.Debug(sprintf(format, args...))
}

func Infof(format string, args ...interface{}) {
	logger.Info(sprintf(format, args...))
}

func Warnf(format string, args ...interface{}) {
	logger.Warn(sprintf(format, args...))
}

func Errorf(format string, args ...interface{}) {
	logger.Error(sprintf(format, args...))
}

func sprintf(format string, args ...interface{}) string {
	if len(args) == 0 {
		return format
	}
	return fmt.Sprintf(format, args...)
}
