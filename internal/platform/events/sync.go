// Package events defines shared cross-service event payloads.
package events

import "time"

// Event types emitted by the sync engine.
const (
	TypeEntityChanged        = "entity.changed"
	TypeSyncConflictDetected = "sync.conflict_detected"
)

// Change types carried by EntityChanged.
const (
	ChangeCreated = "created"
	ChangeUpdated = "updated"
	ChangeDeleted = "deleted"
)

// Envelope pairs an event payload with the routing data the outbox needs.
type Envelope struct {
	EventType     string
	UserID        string
	AggregateType string
	AggregateID   string
	Payload       interface{}
}

// EntityChanged is emitted whenever a sync request creates or mutates an entity.
type EntityChanged struct {
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id"`
	UserID     string    `json:"user_id"`
	Version    int       `json:"version"`
	ChangeType string    `json:"change_type"`
	DeviceID   string    `json:"device_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

// SyncConflictDetected records a server-wins resolution so other devices can be told to refresh.
type SyncConflictDetected struct {
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	UserID        string    `json:"user_id"`
	DeviceID      string    `json:"device_id"`
	Resolution    string    `json:"resolution"`
	ServerVersion int       `json:"server_version"`
	ClientVersion int       `json:"client_version"`
	DetectedAt    time.Time `json:"detected_at"`
}
