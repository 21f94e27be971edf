// Package persist records every message a runtime manager observes, in
// arrival order, behind a pluggable backend (spec.md §4.I).
package persist

import (
	"context"
	"sync"
	"time"

	"github.com/dstq/kernelbus/message"
)

// Direction distinguishes a message sent to a kernel from one received
// from it.
type Direction string

const (
	Outbound Direction = "outbound"
	Inbound  Direction = "inbound"
)

// Record is one persisted message observation.
type Record struct {
	RuntimeID string
	Channel   string
	Direction Direction
	Message   *message.Message
	At        time.Time
}

// Persister appends observed messages in arrival order. Implementations
// must be safe for concurrent use: the manager calls Append from every
// runtime's sender/receiver goroutine pair.
type Persister interface {
	Append(ctx context.Context, rec Record) error
}

// MemoryLog is the default in-process Persister: an append-only slice
// behind a mutex, with no external dependency (spec.md §1 excludes
// durable notebook persistence; this is the teacher-style default).
type MemoryLog struct {
	mu      sync.Mutex
	records []Record
}

// NewMemoryLog returns an empty in-memory log.
func NewMemoryLog() *MemoryLog { return &MemoryLog{} }

// Append records rec. Never returns an error.
func (l *MemoryLog) Append(_ context.Context, rec Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, rec)
	return nil
}

// Records returns a snapshot of everything appended so far, in arrival
// order.
func (l *MemoryLog) Records() []Record {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Record, len(l.records))
	copy(out, l.records)
	return out
}
