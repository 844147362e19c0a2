// Copyright 2026 The IPC Fabric Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use file except in compliance with the License.
// You may obtain a copy of the license at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package logging provides the small unbuffered logger the teacher's
// log.go uses, gated by the verbose constructor option spec.md §6
// defines. When verbose is false the logger is a silent sink; when true
// it writes to the configured io.Writer (stderr by default).
package logging

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// Logger is a minimal leveled writer. The zero value discards output.
type Logger struct {
	mu      sync.Mutex
	out     io.Writer
	verbose bool
}

// New returns a Logger that writes to os.Stderr only when verbose is true.
func New(verbose bool) *Logger {
	return &Logger{out: os.Stderr, verbose: verbose}
}

// SetOutput redirects where verbose log lines go.
func (l *Logger) SetOutput(w io.Writer) {
	l.mu.Lock()
	l.out = w
	l.mu.Unlock()
}

// Logf writes a formatted diagnostic line when verbose logging is
// enabled; it is a no-op otherwise.
func (l *Logger) Logf(format string, args ...interface{}) {
	if l == nil || !l.verbose {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.out, format+"\n", args...)
}
