// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package codec

import (
	"strings"
	"sync"
)

// LineRing keeps the last lines written to it. Pipeline stderr goes here so
// start failures can report what the encoder complained about.
type LineRing struct {
	mu      sync.Mutex
	lines   []string
	head    int
	size    int
	partial string
}

// NewLineRing creates a LineRing with the specified capacity.
func NewLineRing(capacity int) *LineRing {
	if capacity < 1 {
		capacity = 50
	}
	return &LineRing{
		lines: make([]string, capacity),
		size:  capacity,
	}
}

// maxPartial bounds an unterminated trailing line.
const maxPartial = 4 << 10

// Write implements io.Writer. Both \n and \r end a line. An incomplete
// trailing line is held, truncated to its last maxPartial bytes, until the
// next write completes it.
func (r *LineRing) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rest := r.partial + string(p)
	for {
		i := strings.IndexAny(rest, "\r\n")
		if i < 0 {
			break
		}
		if line := rest[:i]; line != "" {
			r.lines[r.head] = line
			r.head = (r.head + 1) % r.size
		}
		rest = rest[i+1:]
	}
	if len(rest) > maxPartial {
		rest = rest[len(rest)-maxPartial:]
	}
	r.partial = rest
	return len(p), nil
}

// LastN returns up to n of the most recent lines in chronological order.
func (r *LineRing) LastN(n int) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ordered := make([]string, 0, r.size+1)
	for i := 0; i < r.size; i++ {
		if line := r.lines[(r.head+i)%r.size]; line != "" {
			ordered = append(ordered, line)
		}
	}
	if r.partial != "" {
		ordered = append(ordered, r.partial)
	}
	if len(ordered) <= n {
		return ordered
	}
	return ordered[len(ordered)-n:]
}
