package outbox

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"

	platformevents "github.com/qiuhuiming/titan-track/internal/platform/events"
)

const entityChangedSchema = `{
  "type": "object",
  "title": "EntityChanged",
  "properties": {
    "entity_type": {"type": "string", "enum": ["exercise", "workout_plan", "workout_entry"]},
    "entity_id": {"type": "string", "minLength": 1},
    "user_id": {"type": "string", "minLength": 1},
    "version": {"type": "integer", "minimum": 1},
    "change_type": {"type": "string", "enum": ["created", "updated", "deleted"]},
    "device_id": {"type": "string"},
    "occurred_at": {"type": "string", "format": "date-time"}
  },
  "required": ["entity_type", "entity_id", "user_id", "version", "change_type", "device_id", "occurred_at"],
  "additionalProperties": false
}`

const syncConflictDetectedSchema = `{
  "type": "object",
  "title": "SyncConflictDetected",
  "properties": {
    "entity_type": {"type": "string", "enum": ["exercise", "workout_plan", "workout_entry"]},
    "entity_id": {"type": "string", "minLength": 1},
    "user_id": {"type": "string", "minLength": 1},
    "device_id": {"type": "string"},
    "resolution": {"type": "string"},
    "server_version": {"type": "integer"},
    "client_version": {"type": "integer"},
    "detected_at": {"type": "string", "format": "date-time"}
  },
  "required": ["entity_type", "entity_id", "user_id", "device_id", "resolution", "server_version", "client_version", "detected_at"],
  "additionalProperties": false
}`

// SchemaCatalogEntry maps event type to schema definition.
type SchemaCatalogEntry struct {
	Schema    string
	validator *jsonschema.Schema
}

// Validate checks a payload against the compiled schema.
func (e SchemaCatalogEntry) Validate(payload []byte) error {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	return e.validator.Validate(doc)
}

var schemaCatalog = mustCompileCatalog(map[string]string{
	platformevents.TypeEntityChanged:        entityChangedSchema,
	platformevents.TypeSyncConflictDetected: syncConflictDetectedSchema,
})

func mustCompileCatalog(schemas map[string]string) map[string]SchemaCatalogEntry {
	compiler := jsonschema.NewCompiler()
	for eventType, schema := range schemas {
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(schema))
		if err != nil {
			panic(fmt.Sprintf("outbox: parse schema for %s: %v", eventType, err))
		}
		if err := compiler.AddResource(schemaLocation(eventType), doc); err != nil {
			panic(fmt.Sprintf("outbox: add schema for %s: %v", eventType, err))
		}
	}

	catalog := make(map[string]SchemaCatalogEntry, len(schemas))
	for eventType, schema := range schemas {
		compiled, err := compiler.Compile(schemaLocation(eventType))
		if err != nil {
			panic(fmt.Sprintf("outbox: compile schema for %s: %v", eventType, err))
		}
		catalog[eventType] = SchemaCatalogEntry{Schema: schema, validator: compiled}
	}
	return catalog
}

func schemaLocation(eventType string) string {
	return "https://schemas.titan-track.local/" + strings.ReplaceAll(eventType, ".", "_") + ".json"
}
