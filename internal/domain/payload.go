package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidPayload marks client records that cannot be decoded.
var ErrInvalidPayload = errors.New("invalid client payload")

// ValidationError describes the offending field of a rejected client record.
type ValidationError struct {
	Kind  EntityKind
	ID    string
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s %s: field %s: %v", e.Kind, e.ID, e.Field, e.Err)
	}
	return fmt.Sprintf("%s: field %s: %v", e.Kind, e.Field, e.Err)
}

// Unwrap lets callers match ErrInvalidPayload.
func (e *ValidationError) Unwrap() []error {
	return []error{ErrInvalidPayload, e.Err}
}

// ClientHeader holds the sync fields every client record carries. Version is clamped
// to at least 1 for comparison and creation; SentVersion is the value as sent and is
// what conflicts report back.
type ClientHeader struct {
	ID          string
	Version     int
	SentVersion int
	UpdatedAt   *time.Time
	IsDeleted   bool
}

// ClientRecord is the closed set of decoded client payloads.
type ClientRecord interface {
	Kind() EntityKind
	Header() ClientHeader
}

// ExercisePayload is a decoded client exercise. Nil pointers mean the key was absent.
type ExercisePayload struct {
	ClientHeader
	Name         *string
	MuscleGroup  *MuscleGroup
	Equipment    *string
	Notes        *string
	PersonalBest *float64
}

// PlanPayload is a decoded client workout plan.
type PlanPayload struct {
	ClientHeader
	Date        *time.Time
	Title       *string
	Tags        *[]string
	Exercises   json.RawMessage
	IsCompleted bool
}

// EntryPayload is a decoded client workout entry.
type EntryPayload struct {
	ClientHeader
	Date        *time.Time
	ExerciseID  *string
	WorkoutType *string
	Sets        json.RawMessage
	PlanID      *string
}

func (ExercisePayload) Kind() EntityKind { return KindExercise }
func (PlanPayload) Kind() EntityKind { return KindWorkoutPlan }
func (EntryPayload) Kind() EntityKind { return KindWorkoutEntry }

func (p ExercisePayload) Header() ClientHeader { return p.ClientHeader }
func (p PlanPayload) Header() ClientHeader { return p.ClientHeader }
func (p EntryPayload) Header() ClientHeader { return p.ClientHeader }

// ClientBatch is the decoded form of one sync request body.
type ClientBatch struct {
	Exercises []ExercisePayload
	Plans     []PlanPayload
	Entries   []EntryPayload
}

// DecodeBatch normalizes raw client objects into typed payloads. Records without an id
// are kept with an empty ID so the engine can skip them.
func DecodeBatch(exercises, plans, entries []json.RawMessage) (ClientBatch, error) {
	batch := ClientBatch{
		Exercises: make([]ExercisePayload, 0, len(exercises)),
		Plans:     make([]PlanPayload, 0, len(plans)),
		Entries:   make([]EntryPayload, 0, len(entries)),
	}
	for _, raw := range exercises {
		p, err := DecodeExercise(raw)
		if err != nil {
			return ClientBatch{}, err
		}
		batch.Exercises = append(batch.Exercises, p)
	}
	for _, raw := range plans {
		p, err := DecodePlan(raw)
		if err != nil {
			return ClientBatch{}, err
		}
		batch.Plans = append(batch.Plans, p)
	}
	for _, raw := range entries {
		p, err := DecodeEntry(raw)
		if err != nil {
			return ClientBatch{}, err
		}
		batch.Entries = append(batch.Entries, p)
	}
	return batch, nil
}

// DecodeExercise decodes one client exercise object.
func DecodeExercise(raw json.RawMessage) (ExercisePayload, error) {
	r, hdr, err := decodeHeader(KindExercise, raw)
	if err != nil {
		return ExercisePayload{}, err
	}
	p := ExercisePayload{ClientHeader: hdr}
	if p.Name, err = r.string("name"); err != nil {
		return ExercisePayload{}, err
	}
	group, err := r.string("muscle_group", "muscleGroup")
	if err != nil {
		return ExercisePayload{}, err
	}
	if group != nil && *group != "" {
		parsed, perr := ParseMuscleGroup(*group)
		if perr != nil {
			return ExercisePayload{}, r.invalid("muscle_group", perr)
		}
		p.MuscleGroup = &parsed
	}
	if p.Equipment, err = r.string("equipment"); err != nil {
		return ExercisePayload{}, err
	}
	if p.Notes, err = r.string("notes"); err != nil {
		return ExercisePayload{}, err
	}
	if p.PersonalBest, err = r.float("personal_best", "personalBest"); err != nil {
		return ExercisePayload{}, err
	}
	return p, nil
}

// DecodePlan decodes one client workout plan object.
func DecodePlan(raw json.RawMessage) (PlanPayload, error) {
	r, hdr, err := decodeHeader(KindWorkoutPlan, raw)
	if err != nil {
		return PlanPayload{}, err
	}
	p := PlanPayload{ClientHeader: hdr}
	if p.Date, err = r.date("date"); err != nil {
		return PlanPayload{}, err
	}
	if p.Title, err = r.string("title"); err != nil {
		return PlanPayload{}, err
	}
	if p.Tags, err = r.strings("tags"); err != nil {
		return PlanPayload{}, err
	}
	if p.Exercises, err = r.array("exercises"); err != nil {
		return PlanPayload{}, err
	}
	if p.IsCompleted, err = r.flag("is_completed", "isCompleted"); err != nil {
		return PlanPayload{}, err
	}
	return p, nil
}

// DecodeEntry decodes one client workout entry object.
func DecodeEntry(raw json.RawMessage) (EntryPayload, error) {
	r, hdr, err := decodeHeader(KindWorkoutEntry, raw)
	if err != nil {
		return EntryPayload{}, err
	}
	p := EntryPayload{ClientHeader: hdr}
	if p.Date, err = r.date("date"); err != nil {
		return EntryPayload{}, err
	}
	if p.ExerciseID, err = r.string("exercise_id", "exerciseId"); err != nil {
		return EntryPayload{}, err
	}
	if p.WorkoutType, err = r.string("workout_type", "workoutType"); err != nil {
		return EntryPayload{}, err
	}
	if p.Sets, err = r.array("sets"); err != nil {
		return EntryPayload{}, err
	}
	if p.PlanID, err = r.string("plan_id", "planId"); err != nil {
		return EntryPayload{}, err
	}
	return p, nil
}

func decodeHeader(kind EntityKind, raw json.RawMessage) (record, ClientHeader, error) {
	r := record{kind: kind}
	if err := json.Unmarshal(raw, &r.fields); err != nil {
		return record{}, ClientHeader{}, &ValidationError{Kind: kind, Field: "(object)", Err: err}
	}

	var hdr ClientHeader
	id, err := r.string("id")
	if err != nil {
		return record{}, ClientHeader{}, err
	}
	if id != nil {
		hdr.ID = strings.TrimSpace(*id)
		r.id = hdr.ID
	}

	hdr.Version, hdr.SentVersion = 1, 1
	if value, ok := r.lookup("version"); ok {
		var version int
		if err := json.Unmarshal(value, &version); err != nil {
			return record{}, ClientHeader{}, r.invalid("version", err)
		}
		hdr.SentVersion = version
		if version > 1 {
			hdr.Version = version
		}
	}

	if value, ok := r.lookup("updated_at", "updatedAt"); ok {
		var text string
		if err := json.Unmarshal(value, &text); err != nil {
			return record{}, ClientHeader{}, r.invalid("updated_at", err)
		}
		ts, err := ParseTimestamp(text)
		if err != nil {
			return record{}, ClientHeader{}, r.invalid("updated_at", err)
		}
		hdr.UpdatedAt = &ts
	}

	if hdr.IsDeleted, err = r.flag("is_deleted", "isDeleted"); err != nil {
		return record{}, ClientHeader{}, err
	}
	return r, hdr, nil
}

// record is a raw client object with spelling-tolerant accessors.
type record struct {
	kind   EntityKind
	id     string
	fields map[string]json.RawMessage
}

// lookup returns the first non-null value among keys, so snake_case wins when listed first.
func (r record) lookup(keys ...string) (json.RawMessage, bool) {
	for _, key := range keys {
		if value, ok := r.fields[key]; ok && !isNull(value) {
			return value, true
		}
	}
	return nil, false
}

func (r record) invalid(field string, err error) error {
	return &ValidationError{Kind: r.kind, ID: r.id, Field: field, Err: err}
}

func (r record) string(keys ...string) (*string, error) {
	value, ok := r.lookup(keys...)
	if !ok {
		return nil, nil
	}
	var out string
	if err := json.Unmarshal(value, &out); err != nil {
		return nil, r.invalid(keys[0], err)
	}
	return &out, nil
}

func (r record) float(keys ...string) (*float64, error) {
	value, ok := r.lookup(keys...)
	if !ok {
		return nil, nil
	}
	var out float64
	if err := json.Unmarshal(value, &out); err != nil {
		return nil, r.invalid(keys[0], err)
	}
	return &out, nil
}

// flag is true when any spelling carries true.
func (r record) flag(keys ...string) (bool, error) {
	for _, key := range keys {
		value, ok := r.fields[key]
		if !ok || isNull(value) {
			continue
		}
		var out bool
		if err := json.Unmarshal(value, &out); err != nil {
			return false, r.invalid(keys[0], err)
		}
		if out {
			return true, nil
		}
	}
	return false, nil
}

func (r record) strings(keys ...string) (*[]string, error) {
	value, ok := r.lookup(keys...)
	if !ok {
		return nil, nil
	}
	out := make([]string, 0)
	if err := json.Unmarshal(value, &out); err != nil {
		return nil, r.invalid(keys[0], err)
	}
	return &out, nil
}

// array keeps a JSON array verbatim; nested objects are opaque to the engine.
func (r record) array(keys ...string) (json.RawMessage, error) {
	value, ok := r.lookup(keys...)
	if !ok {
		return nil, nil
	}
	trimmed := bytes.TrimSpace(value)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, r.invalid(keys[0], errors.New("expected array"))
	}
	return append(json.RawMessage(nil), trimmed...), nil
}

func (r record) date(keys ...string) (*time.Time, error) {
	text, err := r.string(keys...)
	if err != nil || text == nil {
		return nil, err
	}
	if *text == "" {
		return nil, nil
	}
	d, err := ParseDate(*text)
	if err != nil {
		return nil, r.invalid(keys[0], err)
	}
	return &d, nil
}

func isNull(value json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(value), []byte("null"))
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

// ParseTimestamp accepts RFC 3339 timestamps and offset-less ISO timestamps, the latter read as UTC.
func ParseTimestamp(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", value)
}

// ParseDate reads the calendar date from the first ten characters of an ISO date or timestamp.
func ParseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if len(value) < 10 {
		return time.Time{}, fmt.Errorf("unrecognised date %q", value)
	}
	return time.Parse(time.DateOnly, value[:10])
}
