// Package logbuf keeps the most recent log entries in memory so the admin
// API can serve them without shell access to the host.
package logbuf

import (
	"log/slog"
	"strings"
	"sync"
	"time"
)

// Entry is a single log entry captured from slog. Component and Thread are
// lifted out of the attributes when present.
type Entry struct {
	Time      time.Time      `json:"time"`
	Level     string         `json:"level"`
	Message   string         `json:"message"`
	Component string         `json:"component,omitempty"`
	Thread    string         `json:"thread,omitempty"`
	Attrs     map[string]any `json:"attrs,omitempty"`
}

// Query selects entries from a Buffer. Zero fields match everything, except
// MinLevel whose zero value is INFO.
type Query struct {
	Since     time.Time
	MinLevel  slog.Level
	Component string
	Thread    string
	Limit     int // newest Limit matches; 0 = all
}

// Buffer is a thread-safe ring buffer for log entries.
type Buffer struct {
	mu      sync.Mutex
	entries []Entry
	size    int
	pos     int
	count   int
}

// New creates a new ring buffer that holds up to size entries.
func New(size int) *Buffer {
	if size <= 0 {
		size = 1
	}
	return &Buffer{
		entries: make([]Entry, size),
		size:    size,
	}
}

// Write appends an entry to the ring buffer.
func (b *Buffer) Write(e Entry) {
	b.mu.Lock()
	b.entries[b.pos] = e
	b.pos = (b.pos + 1) % b.size
	if b.count < b.size {
		b.count++
	}
	b.mu.Unlock()
}

// Len returns the number of entries held.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Query returns entries matching q, oldest first.
func (b *Buffer) Query(q Query) []Entry {
	b.mu.Lock()
	defer b.mu.Unlock()

	var result []Entry

	start := 0
	if b.count == b.size {
		start = b.pos // oldest entry when buffer is full
	}

	for i := 0; i < b.count; i++ {
		e := b.entries[(start+i)%b.size]

		if !q.Since.IsZero() && e.Time.Before(q.Since) {
			continue
		}
		if ParseLevel(e.Level) < q.MinLevel {
			continue
		}
		if q.Component != "" && !strings.HasPrefix(e.Component, q.Component) {
			continue
		}
		if q.Thread != "" && e.Thread != q.Thread {
			continue
		}
		result = append(result, e)
	}

	if q.Limit > 0 && len(result) > q.Limit {
		result = result[len(result)-q.Limit:]
	}
	return result
}

// ParseLevel converts a level string back to slog.Level. Unknown strings
// map to INFO.
func ParseLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
