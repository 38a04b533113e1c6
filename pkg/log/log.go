// Copyright 2019 Intel Corporation. All Rights Reserved.
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

// Package log provides a leveled logger keyed by source name, the way
// callers elsewhere in this tree expect: log.Get("pagesampler").Infof(...).
package log

import (
	"fmt"
	"os"
	"sync"
)

// Level is the log message severity level.
type Level int

const (
	// LevelDebug is the severity for debug messages.
	LevelDebug Level = iota
	// LevelInfo is the severity for informational messages.
	LevelInfo
	// LevelWarn is the severity for warnings.
	LevelWarn
	// LevelError is the severity for errors.
	LevelError
)

// Logger produces log messages for one source.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Fatalf(format string, args ...interface{})
}

// Backend is the entity that actually emits formatted log lines.
type Backend interface {
	Emit(level Level, source, message string)
}

type registry struct {
	mu      sync.RWMutex
	backend Backend
	debug   map[string]bool
	all     map[string]*logger
}

var reg = &registry{
	backend: &stderrBackend{},
	debug:   map[string]bool{},
	all:     map[string]*logger{},
}

type logger struct {
	source string
}

// Get returns the logger for source, creating it on first use.
func Get(source string) Logger {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if l, ok := reg.all[source]; ok {
		return l
	}
	l := &logger{source: source}
	reg.all[source] = l
	return l
}

// Default returns the logger for the "default" source.
func Default() Logger {
	return Get("default")
}

// SetBackend swaps the active backend (tests and alternate front ends use
// this; the default backend writes to stderr).
func SetBackend(b Backend) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.backend = b
}

// SetDebug enables or disables debug messages for a source. source == ""
// sets the default for every source that has no setting of its own.
func SetDebug(source string, enabled bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.debug[source] = enabled
}

func (l *logger) debugEnabled() bool {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	if v, ok := reg.debug[l.source]; ok {
		return v
	}
	return reg.debug[""]
}

func (l *logger) emit(level Level, format string, args ...interface{}) {
	reg.mu.RLock()
	backend := reg.backend
	reg.mu.RUnlock()
	backend.Emit(level, l.source, fmt.Sprintf(format, args...))
}

func (l *logger) Debugf(format string, args ...interface{}) {
	if !l.debugEnabled() {
		return
	}
	l.emit(LevelDebug, format, args...)
}

func (l *logger) Infof(format string, args ...interface{}) {
	l.emit(LevelInfo, format, args...)
}

func (l *logger) Warnf(format string, args ...interface{}) {
	l.emit(LevelWarn, format, args...)
}

func (l *logger) Errorf(format string, args ...interface{}) {
	l.emit(LevelError, format, args...)
}

func (l *logger) Fatalf(format string, args ...interface{}) {
	l.emit(LevelError, format, args...)
	os.Exit(1)
}

// stderrBackend is the default Backend, writing "LEVEL [source] message" to
// stderr.
type stderrBackend struct {
	mu sync.Mutex
}

func (b *stderrBackend) Emit(level Level, source, message string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fmt.Fprintf(os.Stderr, "%s [%s] %s\n", levelPrefix(level), source, message)
}

func levelPrefix(level Level) string {
	switch level {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "?"
	}
}
