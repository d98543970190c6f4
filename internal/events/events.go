// Package events publishes memory lifecycle events to NATS JetStream
// so downstream consumers (dashboards, analytics) can follow the store
// without polling it.
package events

import "time"

// Stream name.
const StreamEvents = "MEMCORE_EVENTS"

// Subject constants.
const (
	SubjectMemorySaved   = "memcore.events.memory.saved"
	SubjectMemoryDeleted = "memcore.events.memory.deleted"
)

// MemorySavedEvent is published after a memory is persisted.
type MemorySavedEvent struct {
	MemoryID  string    `json:"memory_id"`
	OwnerID   string    `json:"owner_id"`
	Emotions  []string  `json:"emotions"`
	Timestamp time.Time `json:"timestamp"`
}

// MemoryDeletedEvent is published after a memory is removed.
type MemoryDeletedEvent struct {
	MemoryID  string    `json:"memory_id"`
	Timestamp time.Time `json:"timestamp"`
}
