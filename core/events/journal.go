package events

import (
	"strings"
	"sync"

	"escrowd/core/types"
)

// payloadCarrier is implemented by events that expose a canonical attribute
// payload in addition to their type string.
type payloadCarrier interface {
	Event() *types.Event
}

// Entry is one recorded event with its position in the audit stream.
type Entry struct {
	Sequence   uint64
	Type       string
	Attributes map[string]string
}

// Journal is an append-only, bounded in-memory record of emitted events. It
// backs the escrow_listEvents RPC so observers can catch up without polling
// individual records. Sequence numbers keep increasing even after old entries
// are evicted.
type Journal struct {
	mu      sync.RWMutex
	next    uint64
	maxSize int
	entries []Entry
}

// NewJournal creates a journal retaining at most maxSize entries. A
// non-positive maxSize falls back to a sane default.
func NewJournal(maxSize int) *Journal {
	if maxSize <= 0 {
		maxSize = 1024
	}
	return &Journal{maxSize: maxSize}
}

// Emit implements the Emitter interface.
func (j *Journal) Emit(evt Event) {
	if j == nil || evt == nil {
		return
	}
	entry := Entry{Type: evt.EventType()}
	if carrier, ok := evt.(payloadCarrier); ok {
		if payload := carrier.Event(); payload != nil {
			entry.Attributes = make(map[string]string, len(payload.Attributes))
			for k, v := range payload.Attributes {
				entry.Attributes[k] = v
			}
		}
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	j.next++
	entry.Sequence = j.next
	j.entries = append(j.entries, entry)
	if len(j.entries) > j.maxSize {
		j.entries = j.entries[len(j.entries)-j.maxSize:]
	}
}

// List returns retained entries whose type matches the prefix, oldest first,
// capped at limit when limit is positive.
func (j *Journal) List(prefix string, limit int) []Entry {
	j.mu.RLock()
	defer j.mu.RUnlock()
	out := make([]Entry, 0, len(j.entries))
	for _, entry := range j.entries {
		if prefix != "" && !strings.HasPrefix(entry.Type, prefix) {
			continue
		}
		out = append(out, entry)
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

// MultiEmitter fans a single event out to several sinks.
type MultiEmitter []Emitter

// Emit implements the Emitter interface.
func (m MultiEmitter) Emit(evt Event) {
	for _, emitter := range m {
		if emitter != nil {
			emitter.Emit(evt)
		}
	}
}
